// internal/domain/invitelink/invite_link.go
package invitelink

import (
	"database/sql"
	"time"
)

// InviteLink is a tagged channel invite link: every join request arriving
// through it is attributed to its Source. Corresponds to the
// 'invite_links' table.
type InviteLink struct {
	ID          int64
	Link        string
	Source      string
	Description sql.NullString
	CreatedBy   int64 // admin Telegram ID
	ExpiresAt   sql.NullTime
	UsesCount   int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
