// internal/app/admin_service.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"channel_broadcast_bot/internal/domain/invitelink"
	"channel_broadcast_bot/internal/domain/subscriber"
	domainTelegram "channel_broadcast_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// SubscriberStats aggregates the subscriber base for the /stats command.
type SubscriberStats struct {
	ByStatus map[string]int
	BySource map[string]int
}

// AdminService backs the operator commands that are not broadcasts:
// statistics and tagged invite link management.
type AdminService struct {
	subscribers    subscriber.Repository
	inviteLinks    invitelink.Repository
	telegramClient domainTelegram.Client
	channelID      int64
	logger         *logrus.Entry
}

func NewAdminService(
	sr subscriber.Repository,
	ir invitelink.Repository,
	tc domainTelegram.Client,
	channelID int64,
	logger *logrus.Entry,
) *AdminService {
	return &AdminService{
		subscribers:    sr,
		inviteLinks:    ir,
		telegramClient: tc,
		channelID:      channelID,
		logger:         logger,
	}
}

func (s *AdminService) Stats(ctx context.Context) (*SubscriberStats, error) {
	byStatus, err := s.subscribers.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers by status: %w", err)
	}
	bySource, err := s.subscribers.CountBySource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers by source: %w", err)
	}
	return &SubscriberStats{ByStatus: byStatus, BySource: bySource}, nil
}

// CreateInviteLink asks Telegram for a new join-request invite link named
// after the source tag and persists the mapping. expireAt may be zero for
// a non-expiring link.
func (s *AdminService) CreateInviteLink(ctx context.Context, createdBy int64, source, description string, expireAt time.Time) (*invitelink.InviteLink, error) {
	link, err := s.telegramClient.CreateInviteLink(s.channelID, source, expireAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite link for source %q: %w", source, err)
	}

	l := &invitelink.InviteLink{
		Link:      link,
		Source:    source,
		CreatedBy: createdBy,
		IsActive:  true,
	}
	if description != "" {
		l.Description = sql.NullString{String: description, Valid: true}
	}
	if !expireAt.IsZero() {
		l.ExpiresAt = sql.NullTime{Time: expireAt.UTC(), Valid: true}
	}
	if err := s.inviteLinks.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to persist invite link for source %q: %w", source, err)
	}

	s.logger.WithFields(logrus.Fields{
		"source": source,
		"link":   link,
	}).Info("Invite link created")
	return l, nil
}

func (s *AdminService) ListInviteLinks(ctx context.Context) ([]*invitelink.InviteLink, error) {
	return s.inviteLinks.ListActive(ctx)
}
