package app

import (
	"context"
	"testing"
	"time"

	"channel_broadcast_bot/internal/domain/subscriber"
)

func TestStatsAggregatesStatusAndSource(t *testing.T) {
	subs := &mockSubscriberRepo{subscribers: []*subscriber.Subscriber{
		activeSubscriber(1, "vk", ""),
		activeSubscriber(2, "vk", ""),
		activeSubscriber(3, "ads", ""),
	}}
	pending := activeSubscriber(4, "vk", "")
	pending.Status = subscriber.StatusPending
	subs.subscribers = append(subs.subscribers, pending)

	svc := NewAdminService(subs, &mockInviteLinkRepo{}, &mockTelegramClient{}, -100123, testLogger())

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ByStatus["active"] != 3 || stats.ByStatus["pending"] != 1 {
		t.Errorf("by status = %v", stats.ByStatus)
	}
	// Source counts cover active subscribers only.
	if stats.BySource["vk"] != 2 || stats.BySource["ads"] != 1 {
		t.Errorf("by source = %v", stats.BySource)
	}
}

func TestCreateInviteLinkPersistsMapping(t *testing.T) {
	links := &mockInviteLinkRepo{}
	tg := &mockTelegramClient{}
	svc := NewAdminService(&mockSubscriberRepo{}, links, tg, -100123, testLogger())

	l, err := svc.CreateInviteLink(context.Background(), 99, "vk", "весенняя кампания", time.Time{})
	if err != nil {
		t.Fatalf("CreateInviteLink: %v", err)
	}
	if l.Link != tg.createdLink {
		t.Errorf("stored link = %q, want the one Telegram issued (%q)", l.Link, tg.createdLink)
	}
	if l.Source != "vk" || !l.IsActive || l.CreatedBy != 99 {
		t.Errorf("link = %+v", l)
	}
	if l.ExpiresAt.Valid {
		t.Error("zero expireAt must produce a non-expiring link")
	}

	active, err := svc.ListInviteLinks(context.Background())
	if err != nil || len(active) != 1 {
		t.Fatalf("ListInviteLinks = %v, %v", active, err)
	}
}
