// internal/domain/broadcast/broadcast.go
package broadcast

import (
	"database/sql"
	"time"
)

// Status represents the lifecycle state of a broadcast job.
// Transitions are monotonic: scheduled -> in_progress -> completed | error.
// Immediate sends start directly at in_progress.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// MediaKind identifies the attached media type of a broadcast message.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
)

// Broadcast is one bulk-messaging job: fixed content, target filter and
// running delivery counters. Corresponds to the 'broadcasts' table.
// Records are never deleted; they form the delivery audit trail.
type Broadcast struct {
	ID           string // generated UUID
	MessageText  string
	MediaFileID  sql.NullString    // Telegram file_id; empty for text-only
	MediaKind    MediaKind         // empty for text-only
	TargetFilter map[string]string // nil means "all active subscribers"
	Status       Status
	TotalUsers   int // snapshotted at creation/scheduling, never recomputed
	SentCount    int
	FailedCount  int
	ErrorsByKind map[string]int // per-error-kind tally, set on completion
	ErrorMessage sql.NullString // set when Status == StatusError
	CreatedAt    time.Time
	ScheduleTime sql.NullTime // UTC; set only for scheduled broadcasts
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
}

// HasMedia reports whether the broadcast carries an attached media file.
func (b *Broadcast) HasMedia() bool {
	return b.MediaFileID.Valid && b.MediaFileID.String != ""
}
