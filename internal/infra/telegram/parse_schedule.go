// internal/infra/telegram/parse_schedule.go
package telegram

import (
	"errors"
	"fmt"
	"time"
)

// Schedule times are typed by operators as Moscow wall-clock values and
// stored in UTC.
const scheduleTimeLayout = "02.01.2006 15:04"

var moscowZone = time.FixedZone("MSK", 3*60*60)

var (
	ErrInvalidScheduleTime = errors.New("invalid schedule time format")
	ErrScheduleTimeInPast  = errors.New("schedule time is in the past")
)

// ParseScheduleTime parses "DD.MM.YYYY HH:MM" as Moscow time and returns
// the UTC instant. Times at or before now are rejected.
func ParseScheduleTime(raw string, now time.Time) (time.Time, error) {
	t, err := time.ParseInLocation(scheduleTimeLayout, raw, moscowZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidScheduleTime, raw)
	}
	utc := t.UTC()
	if !utc.After(now.UTC()) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrScheduleTimeInPast, raw)
	}
	return utc, nil
}
