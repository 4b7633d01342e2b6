// internal/infra/database/postgres_invite_link_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"channel_broadcast_bot/internal/domain/invitelink"
)

// Custom errors specific to invite link repository
var ErrInviteLinkNotFound = fmt.Errorf("invite link not found")
var ErrDuplicateInviteLink = fmt.Errorf("invite link already exists")

type PostgresInviteLinkRepository struct {
	db *sql.DB
}

func NewPostgresInviteLinkRepository(db *sql.DB) *PostgresInviteLinkRepository {
	return &PostgresInviteLinkRepository{db: db}
}

const inviteLinkColumns = `id, link, source, description, created_by, expires_at, uses_count, is_active, created_at, updated_at`

func scanInviteLink(row interface{ Scan(...any) error }) (*invitelink.InviteLink, error) {
	l := invitelink.InviteLink{}
	err := row.Scan(
		&l.ID, &l.Link, &l.Source, &l.Description, &l.CreatedBy,
		&l.ExpiresAt, &l.UsesCount, &l.IsActive, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *PostgresInviteLinkRepository) Create(ctx context.Context, l *invitelink.InviteLink) error {
	query := `INSERT INTO invite_links (link, source, description, created_by, expires_at, uses_count, is_active, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, 0, TRUE, NOW(), NOW())
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, l.Link, l.Source, l.Description, l.CreatedBy, l.ExpiresAt).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "invite_links_link_key") {
			return ErrDuplicateInviteLink
		}
		return fmt.Errorf("error creating invite link: %w", err)
	}
	l.IsActive = true
	return nil
}

func (r *PostgresInviteLinkRepository) GetByLink(ctx context.Context, link string) (*invitelink.InviteLink, error) {
	query := `SELECT ` + inviteLinkColumns + ` FROM invite_links WHERE link = $1`
	l, err := scanInviteLink(r.db.QueryRowContext(ctx, query, link))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInviteLinkNotFound
		}
		return nil, fmt.Errorf("error getting invite link: %w", err)
	}
	return l, nil
}

// SourceByLink resolves the link's source and counts the use in the same
// statement, so concurrent join requests never lose an increment.
func (r *PostgresInviteLinkRepository) SourceByLink(ctx context.Context, link string) (string, error) {
	query := `UPDATE invite_links
               SET uses_count = uses_count + 1, updated_at = NOW()
               WHERE link = $1
               RETURNING source`
	var source string
	err := r.db.QueryRowContext(ctx, query, link).Scan(&source)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrInviteLinkNotFound
		}
		return "", fmt.Errorf("error resolving invite link source: %w", err)
	}
	return source, nil
}

func (r *PostgresInviteLinkRepository) ListActive(ctx context.Context) ([]*invitelink.InviteLink, error) {
	query := `SELECT ` + inviteLinkColumns + ` FROM invite_links WHERE is_active ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying invite links: %w", err)
	}
	defer rows.Close()

	links := make([]*invitelink.InviteLink, 0)
	for rows.Next() {
		l, err := scanInviteLink(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning invite link row: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invite link rows: %w", err)
	}
	return links, nil
}
