// internal/infra/database/postgres_subscriber_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"channel_broadcast_bot/internal/domain/subscriber"
)

// Custom errors specific to subscriber repository
var ErrSubscriberNotFound = fmt.Errorf("subscriber not found")
var ErrUnsupportedFilterKey = fmt.Errorf("unsupported filter key")

// filterColumns maps filter keys to their subscriber table columns.
// Filters are exact-match conjunctions; only these attributes can be
// targeted by a broadcast.
var filterColumns = map[string]string{
	"status": "status",
	"source": "source",
	"city":   "city",
}

type PostgresSubscriberRepository struct {
	db *sql.DB
}

func NewPostgresSubscriberRepository(db *sql.DB) *PostgresSubscriberRepository {
	return &PostgresSubscriberRepository{db: db}
}

const subscriberColumns = `id, username, first_name, last_name, source, city, status, status_reason, created_at, updated_at, activated_at, deactivated_at`

func scanSubscriber(row interface{ Scan(...any) error }) (*subscriber.Subscriber, error) {
	s := subscriber.Subscriber{}
	err := row.Scan(
		&s.ID, &s.Username, &s.FirstName, &s.LastName, &s.Source, &s.City,
		&s.Status, &s.StatusReason, &s.CreatedAt, &s.UpdatedAt,
		&s.ActivatedAt, &s.DeactivatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresSubscriberRepository) GetByID(ctx context.Context, id int64) (*subscriber.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`
	s, err := scanSubscriber(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("error getting subscriber by ID: %w", err)
	}
	return s, nil
}

// Upsert inserts a new subscriber or refreshes an existing one. Source is
// only set when previously empty; the status is promoted to active
// (stamping activated_at) only when the stored status is not active yet.
func (r *PostgresSubscriberRepository) Upsert(ctx context.Context, s *subscriber.Subscriber) (*subscriber.Subscriber, error) {
	query := `INSERT INTO subscribers (id, username, first_name, last_name, source, city, status, created_at, updated_at, activated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(),
                       CASE WHEN $7 = 'active' THEN NOW() END)
               ON CONFLICT (id) DO UPDATE SET
                       username   = EXCLUDED.username,
                       first_name = EXCLUDED.first_name,
                       last_name  = EXCLUDED.last_name,
                       source     = COALESCE(NULLIF(subscribers.source, ''), EXCLUDED.source),
                       status     = CASE WHEN subscribers.status <> 'active' AND EXCLUDED.status = 'active'
                                         THEN 'active' ELSE subscribers.status END,
                       activated_at = CASE WHEN subscribers.status <> 'active' AND EXCLUDED.status = 'active'
                                           THEN NOW() ELSE subscribers.activated_at END,
                       updated_at = NOW()
               RETURNING ` + subscriberColumns
	stored, err := scanSubscriber(r.db.QueryRowContext(ctx, query,
		s.ID, s.Username, s.FirstName, s.LastName, s.Source, s.City, s.Status))
	if err != nil {
		return nil, fmt.Errorf("error upserting subscriber %d: %w", s.ID, err)
	}
	return stored, nil
}

func (r *PostgresSubscriberRepository) List(ctx context.Context, filter map[string]string, limit, offset int) ([]*subscriber.Subscriber, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + subscriberColumns + ` FROM subscribers`)

	args := make([]any, 0, len(filter)+2)
	conditions := make([]string, 0, len(filter))
	for key, value := range filter {
		column, ok := filterColumns[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFilterKey, key)
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if len(conditions) > 0 {
		b.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY created_at, id")
	if limit > 0 {
		args = append(args, limit)
		b.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if offset > 0 {
		args = append(args, offset)
		b.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := make([]*subscriber.Subscriber, 0)
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning subscriber row: %w", err)
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriber rows: %w", err)
	}
	return subscribers, nil
}

func (r *PostgresSubscriberRepository) UpdateStatus(ctx context.Context, id int64, status subscriber.Status, reason string) error {
	query := `UPDATE subscribers
               SET status = $1,
                   status_reason = NULLIF($2, ''),
                   activated_at = CASE WHEN $1 = 'active' THEN NOW() ELSE activated_at END,
                   deactivated_at = CASE WHEN $1 = 'inactive' THEN NOW() ELSE deactivated_at END,
                   updated_at = NOW()
               WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, reason, id)
	if err != nil {
		return fmt.Errorf("error updating subscriber %d status: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking subscriber status update: %w", err)
	}
	if affected == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

func (r *PostgresSubscriberRepository) SetCity(ctx context.Context, id int64, city string) error {
	query := `UPDATE subscribers SET city = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, city, id)
	if err != nil {
		return fmt.Errorf("error setting subscriber %d city: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking subscriber city update: %w", err)
	}
	if affected == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

func (r *PostgresSubscriberRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx, `SELECT status, COUNT(*) FROM subscribers GROUP BY status`)
}

func (r *PostgresSubscriberRepository) CountBySource(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx, `SELECT COALESCE(source, ''), COUNT(*) FROM subscribers WHERE status = 'active' GROUP BY COALESCE(source, '')`)
}

func (r *PostgresSubscriberRepository) countGrouped(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying subscriber counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("error scanning subscriber count row: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriber count rows: %w", err)
	}
	return counts, nil
}
