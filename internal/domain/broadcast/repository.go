// internal/domain/broadcast/repository.go
package broadcast

import (
	"context"
	"time"
)

// Repository defines persistence operations for Broadcast records.
// Counter increments must be atomic delta operations against the store so
// a crash between two per-recipient writes never produces a torn update.
type Repository interface {
	Create(ctx context.Context, b *Broadcast) error
	GetByID(ctx context.Context, id string) (*Broadcast, error)

	// IncrementSent / IncrementFailed apply an atomic delta to the running
	// counters. Called once per processed recipient, before moving on, so
	// the persisted counts always reflect the recipients processed so far.
	IncrementSent(ctx context.Context, id string, delta int) error
	IncrementFailed(ctx context.Context, id string, delta int) error

	// SetStatus performs a lifecycle transition (e.g. the scheduler's claim
	// of a due record). StartedAt is stamped when transitioning to
	// in_progress.
	SetStatus(ctx context.Context, id string, status Status) error
	// MarkCompleted finalizes a run: status, completion timestamp and the
	// per-error-kind tally.
	MarkCompleted(ctx context.Context, id string, completedAt time.Time, errorsByKind map[string]int) error
	// MarkError records a structural failure of the whole run. Counters
	// keep whatever partial values were already persisted.
	MarkError(ctx context.Context, id string, message string) error

	// FindDue returns scheduled records whose schedule time has passed.
	// Claimed (in_progress) records never match, which is what prevents a
	// slow send from being picked up twice.
	FindDue(ctx context.Context, now time.Time) ([]*Broadcast, error)
	// ListScheduled returns all records still in scheduled state,
	// regardless of due time. Used for diagnostics and the startup
	// schedule-time migration.
	ListScheduled(ctx context.Context) ([]*Broadcast, error)
	// List pages through all records in creation order, for the exporter.
	List(ctx context.Context, limit, offset int) ([]*Broadcast, error)

	// UpdateTargetFilter persists a normalized filter (idempotent).
	UpdateTargetFilter(ctx context.Context, id string, filter map[string]string) error
	// UpdateScheduleTime rewrites the schedule timestamp (legacy time-zone
	// migration).
	UpdateScheduleTime(ctx context.Context, id string, scheduleTime time.Time) error
}
