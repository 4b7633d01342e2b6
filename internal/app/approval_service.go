// internal/app/approval_service.go
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"channel_broadcast_bot/internal/domain/subscriber"
	domainTelegram "channel_broadcast_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// pendingApprovalTTL bounds how long a join request waits for the user to
// start the bot before the entry is evicted and the request is never
// approved.
const pendingApprovalTTL = 7 * 24 * time.Hour

type pendingApproval struct {
	ChannelID  int64
	Source     string
	RecordedAt time.Time
}

// ApprovalService holds join requests awaiting the /start handshake. The
// ledger is process-local: entries do not survive a restart, and such users
// simply stay pending until they reapply.
type ApprovalService struct {
	subscribers    subscriber.Repository
	telegramClient domainTelegram.Client
	logger         *logrus.Entry

	mu      sync.Mutex
	pending map[int64]pendingApproval

	now func() time.Time
}

func NewApprovalService(
	sr subscriber.Repository,
	tc domainTelegram.Client,
	logger *logrus.Entry,
) *ApprovalService {
	return &ApprovalService{
		subscribers:    sr,
		telegramClient: tc,
		logger:         logger,
		pending:        make(map[int64]pendingApproval),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Record remembers a join request until the user confirms via /start. A
// repeated request from the same user overwrites the previous entry.
func (s *ApprovalService) Record(userID, channelID int64, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = pendingApproval{
		ChannelID:  channelID,
		Source:     source,
		RecordedAt: s.now(),
	}
}

// Confirm completes the handshake for a user who pressed /start: the join
// request is approved at Telegram, the subscriber is promoted to active and
// the ledger entry is dropped. Returns false when no pending request is
// known for the user.
func (s *ApprovalService) Confirm(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	entry, ok := s.pending[userID]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	if err := s.telegramClient.ApproveJoinRequest(entry.ChannelID, userID); err != nil {
		return true, fmt.Errorf("failed to approve join request for user %d: %w", userID, err)
	}

	if err := s.subscribers.UpdateStatus(ctx, userID, subscriber.StatusActive, "join request approved"); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to activate subscriber after approval")
	}

	s.mu.Lock()
	delete(s.pending, userID)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"source":  entry.Source,
	}).Info("Join request approved")
	return true, nil
}

// Sweep evicts entries older than the TTL and returns how many remain and
// how many were removed.
func (s *ApprovalService) Sweep() (remaining, evicted int) {
	cutoff := s.now().Add(-pendingApprovalTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, entry := range s.pending {
		if entry.RecordedAt.Before(cutoff) {
			delete(s.pending, userID)
			evicted++
		}
	}
	remaining = len(s.pending)

	if evicted > 0 {
		s.logger.WithFields(logrus.Fields{
			"evicted":   evicted,
			"remaining": remaining,
		}).Info("Evicted stale pending join requests")
	}
	return remaining, evicted
}
