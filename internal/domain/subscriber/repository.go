// internal/domain/subscriber/repository.go
package subscriber

import "context"

// Repository defines persistence operations for Subscriber entities.
type Repository interface {
	// Upsert inserts a new subscriber or updates an existing one. For an
	// existing row names are refreshed, the source is only set when it was
	// previously empty, and the status is promoted to active (stamping
	// activated_at) only when the stored status is not already active.
	Upsert(ctx context.Context, s *Subscriber) (*Subscriber, error)
	GetByID(ctx context.Context, id int64) (*Subscriber, error)

	// List returns subscribers matching the exact-match filter, in a
	// stable order. A nil filter matches all subscribers. limit <= 0 means
	// no limit; offset skips rows for paged export reads.
	List(ctx context.Context, filter map[string]string, limit, offset int) ([]*Subscriber, error)

	// UpdateStatus changes the membership status, recording the optional
	// reason and stamping activated_at / deactivated_at as appropriate.
	UpdateStatus(ctx context.Context, id int64, status Status, reason string) error
	SetCity(ctx context.Context, id int64, city string) error

	// CountByStatus and CountBySource back the admin statistics view.
	CountByStatus(ctx context.Context) (map[string]int, error)
	CountBySource(ctx context.Context) (map[string]int, error)
}
