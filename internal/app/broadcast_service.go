// internal/app/broadcast_service.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"channel_broadcast_bot/internal/domain/broadcast"
	"channel_broadcast_bot/internal/domain/subscriber"
	domainTelegram "channel_broadcast_bot/internal/domain/telegram"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// BroadcastRequest describes one bulk send: the message content and the
// attribute filter narrowing the audience. A nil filter targets all active
// subscribers.
type BroadcastRequest struct {
	MessageText  string
	MediaFileID  string
	MediaKind    broadcast.MediaKind
	TargetFilter map[string]string
}

// BroadcastSummary reports per-recipient outcomes of a finished run.
type BroadcastSummary struct {
	Total  int
	Sent   int
	Failed int
	Errors map[string]int // failure tally by error kind
}

// defaultProtocolCooldown is the defensive pause after a generic Telegram
// protocol error before the loop continues with the next recipient.
const defaultProtocolCooldown = 2 * time.Second

// BroadcastService is the rate-limited batch sender: it resolves the
// audience, sends one message per recipient in paced batches, classifies
// per-recipient outcomes and persists running counters after every
// recipient so progress survives a crash.
type BroadcastService struct {
	subscribers    subscriber.Repository
	broadcasts     broadcast.Repository
	telegramClient domainTelegram.Client
	logger         *logrus.Entry

	baseDelay        time.Duration
	protocolCooldown time.Duration
	// sleep is a hook over timer waits (batch pauses, rate-limit backoff,
	// cooldowns) so tests can run without real time.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewBroadcastService(
	sr subscriber.Repository,
	br broadcast.Repository,
	tc domainTelegram.Client,
	logger *logrus.Entry,
) *BroadcastService {
	return &BroadcastService{
		subscribers:      sr,
		broadcasts:       br,
		telegramClient:   tc,
		logger:           logger,
		baseDelay:        broadcast.BaseMessageDelay,
		protocolCooldown: defaultProtocolCooldown,
		sleep:            sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resolveRecipients returns the ordered audience for a filter, merging the
// implicit active-status constraint. A filter-supplied status, if present,
// is not overridden.
func (s *BroadcastService) resolveRecipients(ctx context.Context, filter map[string]string) ([]*subscriber.Subscriber, error) {
	merged := make(map[string]string, len(filter)+1)
	for key, value := range filter {
		merged[key] = value
	}
	if _, ok := merged["status"]; !ok {
		merged["status"] = string(subscriber.StatusActive)
	}
	recipients, err := s.subscribers.List(ctx, merged, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve broadcast recipients: %w", err)
	}
	return recipients, nil
}

// SendNow performs an immediate broadcast: it resolves the audience,
// persists a new record in in_progress state with the recipient count
// snapshotted, delivers, and finalizes the record. An empty audience is
// reported as an all-zero summary without writing anything. Returns the
// summary and the persisted record (nil when the audience was empty).
func (s *BroadcastService) SendNow(ctx context.Context, req BroadcastRequest) (*BroadcastSummary, *broadcast.Broadcast, error) {
	recipients, err := s.resolveRecipients(ctx, req.TargetFilter)
	if err != nil {
		return nil, nil, err
	}
	if len(recipients) == 0 {
		s.logger.WithField("target_filter", req.TargetFilter).Info("Broadcast matched no recipients, nothing to send")
		return &BroadcastSummary{Errors: map[string]int{}}, nil, nil
	}

	now := time.Now().UTC()
	rec := s.newRecord(req, len(recipients))
	rec.Status = broadcast.StatusInProgress
	rec.StartedAt = sql.NullTime{Time: now, Valid: true}
	if err := s.broadcasts.Create(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("failed to create broadcast record: %w", err)
	}

	summary, err := s.deliver(ctx, rec, recipients)
	if err != nil {
		// Interrupted mid-run (process shutdown). The record stays
		// in_progress with the counters persisted so far; there is no
		// automatic resume.
		return summary, rec, err
	}

	if err := s.broadcasts.MarkCompleted(ctx, rec.ID, time.Now().UTC(), summary.Errors); err != nil {
		s.logger.WithError(err).WithField("broadcast_id", rec.ID).Error("Failed to finalize broadcast record")
	}
	return summary, rec, nil
}

// Schedule creates a deferred broadcast record. scheduleTime must already
// be in UTC. The recipient count is snapshotted now and not recomputed at
// send time, even if the audience changes in between.
func (s *BroadcastService) Schedule(ctx context.Context, req BroadcastRequest, scheduleTime time.Time) (*broadcast.Broadcast, error) {
	recipients, err := s.resolveRecipients(ctx, req.TargetFilter)
	if err != nil {
		return nil, err
	}

	rec := s.newRecord(req, len(recipients))
	rec.Status = broadcast.StatusScheduled
	rec.ScheduleTime = sql.NullTime{Time: scheduleTime.UTC(), Valid: true}
	if err := s.broadcasts.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create scheduled broadcast record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"broadcast_id":  rec.ID,
		"schedule_time": rec.ScheduleTime.Time.Format(time.RFC3339),
		"total_users":   rec.TotalUsers,
	}).Info("Broadcast scheduled")
	return rec, nil
}

// Run executes an already claimed (in_progress) record, reusing its ID for
// counter updates rather than creating a new one. Used by the scheduler
// loop. A structural failure marks the record error and is returned.
func (s *BroadcastService) Run(ctx context.Context, rec *broadcast.Broadcast) (*BroadcastSummary, error) {
	recipients, err := s.resolveRecipients(ctx, rec.TargetFilter)
	if err != nil {
		if markErr := s.broadcasts.MarkError(ctx, rec.ID, err.Error()); markErr != nil {
			s.logger.WithError(markErr).WithField("broadcast_id", rec.ID).Error("Failed to mark broadcast as failed")
		}
		return nil, err
	}

	summary, err := s.deliver(ctx, rec, recipients)
	if err != nil {
		return summary, err
	}

	if err := s.broadcasts.MarkCompleted(ctx, rec.ID, time.Now().UTC(), summary.Errors); err != nil {
		s.logger.WithError(err).WithField("broadcast_id", rec.ID).Error("Failed to finalize broadcast record")
	}
	return summary, nil
}

// ListScheduled returns all pending scheduled broadcasts (diagnostics).
func (s *BroadcastService) ListScheduled(ctx context.Context) ([]*broadcast.Broadcast, error) {
	return s.broadcasts.ListScheduled(ctx)
}

func (s *BroadcastService) newRecord(req BroadcastRequest, total int) *broadcast.Broadcast {
	rec := &broadcast.Broadcast{
		ID:           uuid.NewString(),
		MessageText:  req.MessageText,
		MediaKind:    req.MediaKind,
		TargetFilter: req.TargetFilter,
		TotalUsers:   total,
	}
	if req.MediaFileID != "" {
		rec.MediaFileID = sql.NullString{String: req.MediaFileID, Valid: true}
	}
	return rec
}

// deliver is the batch loop. Counters are incremented in the store before
// moving to the next recipient, so at any inspection point the persisted
// counts reflect exactly the recipients processed so far. The returned
// error is non-nil only when the run was interrupted by context
// cancellation; per-recipient failures never abort the loop.
func (s *BroadcastService) deliver(ctx context.Context, rec *broadcast.Broadcast, recipients []*subscriber.Subscriber) (*BroadcastSummary, error) {
	plan := broadcast.PlanFor(rec.TotalUsers)
	delay := s.baseDelay
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	msg := domainTelegram.Message{
		Text:        rec.MessageText,
		MediaFileID: rec.MediaFileID.String,
		MediaKind:   string(rec.MediaKind),
	}
	summary := &BroadcastSummary{Total: len(recipients), Errors: make(map[string]int)}

	s.logger.WithFields(logrus.Fields{
		"broadcast_id": rec.ID,
		"recipients":   len(recipients),
		"batch_size":   plan.BatchSize,
		"batch_pause":  plan.BatchPause,
	}).Info("Starting broadcast delivery")

	for i, sub := range recipients {
		if err := limiter.Wait(ctx); err != nil {
			return summary, err
		}

		result := s.telegramClient.SendBroadcast(sub.ID, msg)

		if result.Class == domainTelegram.OutcomeRateLimited {
			s.logger.WithFields(logrus.Fields{
				"broadcast_id": rec.ID,
				"recipient_id": sub.ID,
				"retry_after":  result.RetryAfter,
			}).Warn("Rate limit signaled, backing off before retry")
			if err := s.sleep(ctx, result.RetryAfter); err != nil {
				return summary, err
			}
			// Widen the pacing floor so subsequent sends self-throttle.
			if widened := broadcast.WidenedDelay(delay, result.RetryAfter, plan.BatchSize); widened > delay {
				delay = widened
				limiter.SetLimit(rate.Every(delay))
			}
			// Retry exactly once; a second rate limit counts as failed.
			result = s.telegramClient.SendBroadcast(sub.ID, msg)
		}

		if result.Class == domainTelegram.OutcomeSuccess {
			summary.Sent++
			if err := s.broadcasts.IncrementSent(ctx, rec.ID, 1); err != nil {
				s.logger.WithError(err).WithField("broadcast_id", rec.ID).Error("Failed to persist sent counter")
			}
		} else {
			summary.Failed++
			summary.Errors[result.Kind]++
			s.logger.WithFields(logrus.Fields{
				"broadcast_id": rec.ID,
				"recipient_id": sub.ID,
				"error_kind":   result.Kind,
			}).WithError(result.Err).Warn("Failed to deliver broadcast message")
			if err := s.broadcasts.IncrementFailed(ctx, rec.ID, 1); err != nil {
				s.logger.WithError(err).WithField("broadcast_id", rec.ID).Error("Failed to persist failed counter")
			}
			if result.Class == domainTelegram.OutcomeProtocolError {
				if err := s.sleep(ctx, s.protocolCooldown); err != nil {
					return summary, err
				}
			}
		}

		// Pause between batches, skipped after the final one.
		if (i+1)%plan.BatchSize == 0 && i+1 < len(recipients) {
			if err := s.sleep(ctx, plan.BatchPause); err != nil {
				return summary, err
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"broadcast_id": rec.ID,
		"sent":         summary.Sent,
		"failed":       summary.Failed,
	}).Info("Broadcast delivery finished")
	return summary, nil
}
