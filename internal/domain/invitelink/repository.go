// internal/domain/invitelink/repository.go
package invitelink

import "context"

// Repository defines persistence operations for invite links.
type Repository interface {
	Create(ctx context.Context, l *InviteLink) error
	GetByLink(ctx context.Context, link string) (*InviteLink, error)
	// SourceByLink resolves the acquisition source for a link and
	// increments its uses counter. Returns ErrInviteLinkNotFound from the
	// infra package when the link is unknown.
	SourceByLink(ctx context.Context, link string) (string, error)
	ListActive(ctx context.Context) ([]*InviteLink, error)
}
