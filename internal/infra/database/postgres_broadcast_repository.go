// internal/infra/database/postgres_broadcast_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"channel_broadcast_bot/internal/domain/broadcast"
)

// Custom errors specific to broadcast repository
var ErrBroadcastNotFound = fmt.Errorf("broadcast not found")

type PostgresBroadcastRepository struct {
	db *sql.DB
}

func NewPostgresBroadcastRepository(db *sql.DB) *PostgresBroadcastRepository {
	return &PostgresBroadcastRepository{db: db}
}

const broadcastColumns = `id, message_text, media_file_id, media_kind, target_filter, status, total_users, sent_count, failed_count, errors_by_kind, error_message, created_at, schedule_time, started_at, completed_at`

// Target filters and error tallies travel as JSONB. A nil map round-trips
// as SQL NULL so "no filter" stays distinguishable from an empty filter.
func marshalJSONMap[V any](m map[string]V) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("error marshaling JSON map: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalJSONMap[V any](raw sql.NullString, dst *map[string]V) error {
	if !raw.Valid || raw.String == "" {
		*dst = nil
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return fmt.Errorf("error unmarshaling JSON map: %w", err)
	}
	return nil
}

func scanBroadcast(row interface{ Scan(...any) error }) (*broadcast.Broadcast, error) {
	b := broadcast.Broadcast{}
	var mediaKind sql.NullString
	var rawFilter, rawErrors sql.NullString
	err := row.Scan(
		&b.ID, &b.MessageText, &b.MediaFileID, &mediaKind, &rawFilter,
		&b.Status, &b.TotalUsers, &b.SentCount, &b.FailedCount, &rawErrors,
		&b.ErrorMessage, &b.CreatedAt, &b.ScheduleTime, &b.StartedAt, &b.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	b.MediaKind = broadcast.MediaKind(mediaKind.String)
	if err := unmarshalJSONMap(rawFilter, &b.TargetFilter); err != nil {
		return nil, err
	}
	if err := unmarshalJSONMap(rawErrors, &b.ErrorsByKind); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *PostgresBroadcastRepository) Create(ctx context.Context, b *broadcast.Broadcast) error {
	rawFilter, err := marshalJSONMap(b.TargetFilter)
	if err != nil {
		return err
	}
	query := `INSERT INTO broadcasts (id, message_text, media_file_id, media_kind, target_filter, status, total_users, sent_count, failed_count, schedule_time, started_at, created_at)
               VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, 0, 0, $8, $9, NOW())
               RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query,
		b.ID, b.MessageText, b.MediaFileID, string(b.MediaKind), rawFilter,
		b.Status, b.TotalUsers, b.ScheduleTime, b.StartedAt,
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating broadcast: %w", err)
	}
	return nil
}

func (r *PostgresBroadcastRepository) GetByID(ctx context.Context, id string) (*broadcast.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts WHERE id = $1`
	b, err := scanBroadcast(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBroadcastNotFound
		}
		return nil, fmt.Errorf("error getting broadcast by ID: %w", err)
	}
	return b, nil
}

// IncrementSent applies an atomic delta to the sent counter. The increment
// is expressed in SQL rather than read-modify-write so a concurrent reader
// never observes a torn update.
func (r *PostgresBroadcastRepository) IncrementSent(ctx context.Context, id string, delta int) error {
	return r.increment(ctx, id, "sent_count", delta)
}

func (r *PostgresBroadcastRepository) IncrementFailed(ctx context.Context, id string, delta int) error {
	return r.increment(ctx, id, "failed_count", delta)
}

func (r *PostgresBroadcastRepository) increment(ctx context.Context, id, column string, delta int) error {
	query := fmt.Sprintf(`UPDATE broadcasts SET %s = %s + $1 WHERE id = $2`, column, column)
	result, err := r.db.ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("error incrementing broadcast %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking broadcast counter update: %w", err)
	}
	if affected == 0 {
		return ErrBroadcastNotFound
	}
	return nil
}

func (r *PostgresBroadcastRepository) SetStatus(ctx context.Context, id string, status broadcast.Status) error {
	query := `UPDATE broadcasts
               SET status = $1,
                   started_at = CASE WHEN $1 = 'in_progress' AND started_at IS NULL THEN NOW() ELSE started_at END
               WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("error setting broadcast status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking broadcast status update: %w", err)
	}
	if affected == 0 {
		return ErrBroadcastNotFound
	}
	return nil
}

func (r *PostgresBroadcastRepository) MarkCompleted(ctx context.Context, id string, completedAt time.Time, errorsByKind map[string]int) error {
	rawErrors, err := marshalJSONMap(errorsByKind)
	if err != nil {
		return err
	}
	query := `UPDATE broadcasts SET status = 'completed', completed_at = $1, errors_by_kind = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, completedAt, rawErrors, id)
	if err != nil {
		return fmt.Errorf("error marking broadcast completed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking broadcast completion update: %w", err)
	}
	if affected == 0 {
		return ErrBroadcastNotFound
	}
	return nil
}

func (r *PostgresBroadcastRepository) MarkError(ctx context.Context, id string, message string) error {
	query := `UPDATE broadcasts SET status = 'error', error_message = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, message, id)
	if err != nil {
		return fmt.Errorf("error marking broadcast failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking broadcast error update: %w", err)
	}
	if affected == 0 {
		return ErrBroadcastNotFound
	}
	return nil
}

// Helper to scan multiple rows
func scanBroadcasts(rows *sql.Rows) ([]*broadcast.Broadcast, error) {
	broadcasts := make([]*broadcast.Broadcast, 0)
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning broadcast row: %w", err)
		}
		broadcasts = append(broadcasts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating broadcast rows: %w", err)
	}
	return broadcasts, nil
}

// FindDue matches scheduled records only, so an already claimed record can
// never be picked up by a second tick.
func (r *PostgresBroadcastRepository) FindDue(ctx context.Context, now time.Time) ([]*broadcast.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts
               WHERE status = 'scheduled' AND schedule_time <= $1
               ORDER BY schedule_time ASC`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error querying due broadcasts: %w", err)
	}
	defer rows.Close()
	return scanBroadcasts(rows)
}

func (r *PostgresBroadcastRepository) ListScheduled(ctx context.Context) ([]*broadcast.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts
               WHERE status = 'scheduled' ORDER BY schedule_time ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying scheduled broadcasts: %w", err)
	}
	defer rows.Close()
	return scanBroadcasts(rows)
}

func (r *PostgresBroadcastRepository) List(ctx context.Context, limit, offset int) ([]*broadcast.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts ORDER BY created_at, id LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error querying broadcasts: %w", err)
	}
	defer rows.Close()
	return scanBroadcasts(rows)
}

func (r *PostgresBroadcastRepository) UpdateTargetFilter(ctx context.Context, id string, filter map[string]string) error {
	rawFilter, err := marshalJSONMap(filter)
	if err != nil {
		return err
	}
	query := `UPDATE broadcasts SET target_filter = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, rawFilter, id); err != nil {
		return fmt.Errorf("error updating broadcast target filter: %w", err)
	}
	return nil
}

func (r *PostgresBroadcastRepository) UpdateScheduleTime(ctx context.Context, id string, scheduleTime time.Time) error {
	query := `UPDATE broadcasts SET schedule_time = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, scheduleTime, id); err != nil {
		return fmt.Errorf("error updating broadcast schedule time: %w", err)
	}
	return nil
}
