package scheduler

import (
	"context"
	"time"

	"channel_broadcast_bot/internal/app"
	"channel_broadcast_bot/internal/domain/broadcast"
	"channel_broadcast_bot/internal/domain/subscriber"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// BroadcastSender executes a claimed broadcast record. Satisfied by
// app.BroadcastService; narrowed to an interface so the dispatch loop can
// be tested against a stub.
type BroadcastSender interface {
	Run(ctx context.Context, rec *broadcast.Broadcast) (*app.BroadcastSummary, error)
}

// Approver is the pending join-request ledger the daily sweep job drives.
type Approver interface {
	Sweep() (remaining, evicted int)
}

// legacyUTCOffset corrects schedule times written by an earlier version
// that stored UTC+3 wall-clock values as if they were UTC.
const legacyUTCOffset = 3 * time.Hour

// BroadcastScheduler polls for due scheduled broadcasts once a minute,
// claims each one by flipping it to in_progress, and hands it to the
// sender. The claim happens before execution so a record is never picked
// up twice.
type BroadcastScheduler struct {
	cronEngine *cron.Cron
	sender     BroadcastSender
	broadcasts broadcast.Repository
	approvals  Approver
	logger     *logrus.Entry

	now func() time.Time
}

func NewBroadcastScheduler(
	sender BroadcastSender,
	br broadcast.Repository,
	approvals Approver,
	logger *logrus.Entry,
) *BroadcastScheduler {
	return &BroadcastScheduler{
		cronEngine: cron.New(),
		sender:     sender,
		broadcasts: br,
		approvals:  approvals,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the jobs and launches the cron engine. One dispatch
// pass runs synchronously first so broadcasts that came due while the
// process was down go out immediately rather than a minute later.
func (s *BroadcastScheduler) Start() error {
	s.migrateLegacyScheduleTimes()
	s.dispatchDue()

	if _, err := s.cronEngine.AddFunc("@every 1m", s.dispatchDue); err != nil {
		return err
	}
	if _, err := s.cronEngine.AddFunc("@every 24h", func() {
		s.approvals.Sweep()
	}); err != nil {
		return err
	}

	s.cronEngine.Start()
	s.logger.Info("Broadcast scheduler started")
	return nil
}

func (s *BroadcastScheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Broadcast scheduler stopped")
}

// dispatchDue is one polling pass: find due records, claim and run each.
func (s *BroadcastScheduler) dispatchDue() {
	ctx := context.Background()

	due, err := s.broadcasts.FindDue(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("Failed to query due broadcasts")
		return
	}

	for _, rec := range due {
		s.runOne(ctx, rec)
	}
}

func (s *BroadcastScheduler) runOne(ctx context.Context, rec *broadcast.Broadcast) {
	log := s.logger.WithField("broadcast_id", rec.ID)

	// Records written before filters carried the implicit status key are
	// normalized on first pickup so the stored filter matches what will
	// actually be sent.
	if rec.TargetFilter != nil {
		if _, ok := rec.TargetFilter["status"]; !ok {
			rec.TargetFilter["status"] = string(subscriber.StatusActive)
			if err := s.broadcasts.UpdateTargetFilter(ctx, rec.ID, rec.TargetFilter); err != nil {
				log.WithError(err).Error("Failed to normalize target filter")
			}
		}
	}

	// Claim: a record that is no longer scheduled was taken by someone
	// else or already ran, so the status flip is the gate.
	if err := s.broadcasts.SetStatus(ctx, rec.ID, broadcast.StatusInProgress); err != nil {
		log.WithError(err).Error("Failed to claim scheduled broadcast")
		return
	}
	rec.Status = broadcast.StatusInProgress

	log.WithField("total_users", rec.TotalUsers).Info("Dispatching scheduled broadcast")
	summary, err := s.sender.Run(ctx, rec)
	if err != nil {
		log.WithError(err).Error("Scheduled broadcast failed")
		return
	}
	log.WithFields(logrus.Fields{
		"sent":   summary.Sent,
		"failed": summary.Failed,
	}).Info("Scheduled broadcast finished")
}

// migrateLegacyScheduleTimes rewrites schedule times stored by the old
// deployment, which saved UTC+3 wall-clock values verbatim. Any pending
// record with an hour past 14 UTC is assumed to be such a value and is
// shifted back three hours. Runs once per process start.
func (s *BroadcastScheduler) migrateLegacyScheduleTimes() {
	ctx := context.Background()

	pending, err := s.broadcasts.ListScheduled(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list scheduled broadcasts for schedule time migration")
		return
	}

	migrated := 0
	for _, rec := range pending {
		if !rec.ScheduleTime.Valid || rec.ScheduleTime.Time.UTC().Hour() <= 14 {
			continue
		}
		corrected := rec.ScheduleTime.Time.UTC().Add(-legacyUTCOffset)
		if err := s.broadcasts.UpdateScheduleTime(ctx, rec.ID, corrected); err != nil {
			s.logger.WithError(err).WithField("broadcast_id", rec.ID).Error("Failed to migrate schedule time")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"broadcast_id": rec.ID,
			"old_time":     rec.ScheduleTime.Time.UTC().Format(time.RFC3339),
			"new_time":     corrected.Format(time.RFC3339),
		}).Info("Migrated legacy schedule time")
		migrated++
	}
	if migrated > 0 {
		s.logger.WithField("migrated", migrated).Info("Legacy schedule time migration finished")
	}
}
