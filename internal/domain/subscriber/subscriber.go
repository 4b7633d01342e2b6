// internal/domain/subscriber/subscriber.go
package subscriber

import (
	"database/sql"
	"time"
)

// Status represents a subscriber's membership state.
type Status string

const (
	StatusPending  Status = "pending" // join request received, handshake not completed
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

// Subscriber represents one channel subscriber. Corresponds to the
// 'subscribers' table. The broadcast engine treats subscribers as
// read-only input produced by the resolver.
type Subscriber struct {
	ID            int64 // Telegram user ID
	Username      sql.NullString
	FirstName     sql.NullString
	LastName      sql.NullString
	Source        sql.NullString // acquisition source, resolved from the invite link
	City          sql.NullString
	Status        Status
	StatusReason  sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ActivatedAt   sql.NullTime
	DeactivatedAt sql.NullTime
}

// Attribute returns the subscriber's value for a filter key, or "" when
// the key is unknown or the attribute is unset. Filters are evaluated as
// exact-match conjunctions over these attributes.
func (s *Subscriber) Attribute(key string) string {
	switch key {
	case "source":
		return s.Source.String
	case "city":
		return s.City.String
	case "status":
		return string(s.Status)
	default:
		return ""
	}
}

// MatchesFilter reports whether the subscriber satisfies every key=value
// pair of the filter. A nil or empty filter matches everything.
func (s *Subscriber) MatchesFilter(filter map[string]string) bool {
	for key, value := range filter {
		if s.Attribute(key) != value {
			return false
		}
	}
	return true
}
