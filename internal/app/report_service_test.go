package app

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"channel_broadcast_bot/internal/domain/broadcast"
	"channel_broadcast_bot/internal/domain/subscriber"

	"github.com/xuri/excelize/v2"
)

func TestGenerateFullReport(t *testing.T) {
	subs := &mockSubscriberRepo{subscribers: []*subscriber.Subscriber{
		activeSubscriber(1, "vk", "Москва"),
		activeSubscriber(2, "ads", "Казань"),
	}}
	blocked := activeSubscriber(3, "vk", "")
	blocked.Status = subscriber.StatusBlocked
	subs.subscribers = append(subs.subscribers, blocked)

	repo := newMockBroadcastRepo()
	toVK := &broadcast.Broadcast{
		ID:           "b1",
		MessageText:  "vk only",
		Status:       broadcast.StatusCompleted,
		TargetFilter: map[string]string{"source": "vk"},
		TotalUsers:   1,
		SentCount:    1,
		CreatedAt:    time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		CompletedAt:  sql.NullTime{Time: time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC), Valid: true},
	}
	toAll := &broadcast.Broadcast{
		ID:          "b2",
		MessageText: "everyone",
		Status:      broadcast.StatusCompleted,
		TotalUsers:  2,
		SentCount:   2,
		CreatedAt:   time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
	}
	pending := &broadcast.Broadcast{ID: "b3", MessageText: "later", Status: broadcast.StatusScheduled}
	failed := &broadcast.Broadcast{ID: "b4", MessageText: "broken", Status: broadcast.StatusError}
	for _, rec := range []*broadcast.Broadcast{toVK, toAll, pending, failed} {
		if err := repo.Create(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}

	svc := NewReportService(subs, repo, testLogger())
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	buf, err := svc.GenerateFullReport(context.Background())
	if err != nil {
		t.Fatalf("GenerateFullReport: %v", err)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	subRows, err := f.GetRows("Subscribers")
	if err != nil {
		t.Fatalf("read Subscribers sheet: %v", err)
	}
	if len(subRows) != 4 { // header + all three regardless of status
		t.Fatalf("subscriber rows = %d, want 4", len(subRows))
	}
	if subRows[1][5] != "Москва" {
		t.Errorf("city cell = %q, want Москва", subRows[1][5])
	}
	// Subscriber 1 (active, vk) matched both broadcasts; subscriber 2
	// only the unfiltered one; the blocked one matched neither because
	// filters imply active status.
	if got := subRows[1][11]; got != "2" {
		t.Errorf("broadcast count for subscriber 1 = %q, want 2", got)
	}
	if got := subRows[2][11]; got != "1" {
		t.Errorf("broadcast count for subscriber 2 = %q, want 1", got)
	}
	if len(subRows[3]) > 11 && subRows[3][11] != "0" {
		t.Errorf("broadcast count for blocked subscriber = %q, want 0", subRows[3][11])
	}

	bcRows, err := f.GetRows("Broadcasts")
	if err != nil {
		t.Fatalf("read Broadcasts sheet: %v", err)
	}
	if len(bcRows) != 3 { // header + the two completed runs
		t.Fatalf("broadcast rows = %d, want 3", len(bcRows))
	}
	if bcRows[1][3] != "source=vk" {
		t.Errorf("filter cell = %q, want source=vk", bcRows[1][3])
	}
	if bcRows[2][3] != "all active" {
		t.Errorf("filter cell = %q, want all active", bcRows[2][3])
	}
	if bcRows[1][7] != "01.08.2026 10:05:00" {
		t.Errorf("completed-at cell = %q", bcRows[1][7])
	}
}

func TestGenerateActiveReportFiltersStatus(t *testing.T) {
	subs := &mockSubscriberRepo{subscribers: []*subscriber.Subscriber{
		activeSubscriber(1, "vk", ""),
	}}
	inactive := activeSubscriber(2, "vk", "")
	inactive.Status = subscriber.StatusInactive
	subs.subscribers = append(subs.subscribers, inactive)

	svc := NewReportService(subs, newMockBroadcastRepo(), testLogger())
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	buf, err := svc.GenerateActiveReport(context.Background())
	if err != nil {
		t.Fatalf("GenerateActiveReport: %v", err)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Active subscribers")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header plus the single active subscriber", len(rows))
	}
	if rows[1][0] != "1" {
		t.Errorf("user id cell = %q, want 1", rows[1][0])
	}
}

func TestReportPagesThroughLargeBase(t *testing.T) {
	subs := &mockSubscriberRepo{}
	for i := int64(1); i <= 2350; i++ {
		subs.subscribers = append(subs.subscribers, activeSubscriber(i, "vk", ""))
	}

	svc := NewReportService(subs, newMockBroadcastRepo(), testLogger())
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	loaded, err := svc.loadSubscribers(context.Background(), nil)
	if err != nil {
		t.Fatalf("loadSubscribers: %v", err)
	}
	if len(loaded) != 2350 {
		t.Fatalf("loaded = %d, want 2350", len(loaded))
	}
	// No duplicates across page boundaries.
	seen := make(map[int64]bool, len(loaded))
	for _, s := range loaded {
		if seen[s.ID] {
			t.Fatalf("subscriber %d loaded twice", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestLoadBroadcastHistoryYieldsBetweenPages(t *testing.T) {
	repo := newMockBroadcastRepo()
	for i := 0; i < broadcastPageSize+10; i++ {
		rec := &broadcast.Broadcast{
			ID:     fmt.Sprintf("b%d", i),
			Status: broadcast.StatusCompleted,
		}
		if err := repo.Create(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}

	svc := NewReportService(&mockSubscriberRepo{}, repo, testLogger())
	yields := 0
	svc.sleep = func(context.Context, time.Duration) error {
		yields++
		return nil
	}

	history, _, err := svc.loadBroadcastHistory(context.Background(), nil)
	if err != nil {
		t.Fatalf("loadBroadcastHistory: %v", err)
	}
	if len(history) != broadcastPageSize+10 {
		t.Fatalf("history = %d records, want %d", len(history), broadcastPageSize+10)
	}
	if yields != 1 {
		t.Errorf("yields = %d, want 1 between the two pages", yields)
	}
}

func TestFormatTargetFilter(t *testing.T) {
	if got := formatTargetFilter(nil); got != "all active" {
		t.Errorf("nil filter = %q", got)
	}
	got := formatTargetFilter(map[string]string{"source": "vk", "city": "Москва"})
	if got != "city=Москва, source=vk" {
		t.Errorf("filter = %q, want sorted key=value pairs", got)
	}
}
