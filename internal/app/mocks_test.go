package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"channel_broadcast_bot/internal/domain/broadcast"
	"channel_broadcast_bot/internal/domain/invitelink"
	"channel_broadcast_bot/internal/domain/subscriber"
	domainTelegram "channel_broadcast_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type statusUpdate struct {
	ID     int64
	Status subscriber.Status
	Reason string
}

type mockSubscriberRepo struct {
	subscribers []*subscriber.Subscriber
	listErr     error

	statusUpdates []statusUpdate
	cities        map[int64]string
}

func (m *mockSubscriberRepo) Upsert(_ context.Context, s *subscriber.Subscriber) (*subscriber.Subscriber, error) {
	m.subscribers = append(m.subscribers, s)
	return s, nil
}

func (m *mockSubscriberRepo) GetByID(_ context.Context, id int64) (*subscriber.Subscriber, error) {
	for _, s := range m.subscribers {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("subscriber %d not found", id)
}

func (m *mockSubscriberRepo) List(_ context.Context, filter map[string]string, limit, offset int) ([]*subscriber.Subscriber, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var matched []*subscriber.Subscriber
	for _, s := range m.subscribers {
		if s.MatchesFilter(filter) {
			matched = append(matched, s)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *mockSubscriberRepo) UpdateStatus(_ context.Context, id int64, status subscriber.Status, reason string) error {
	m.statusUpdates = append(m.statusUpdates, statusUpdate{ID: id, Status: status, Reason: reason})
	for _, s := range m.subscribers {
		if s.ID == id {
			s.Status = status
		}
	}
	return nil
}

func (m *mockSubscriberRepo) SetCity(_ context.Context, id int64, city string) error {
	if m.cities == nil {
		m.cities = make(map[int64]string)
	}
	m.cities[id] = city
	return nil
}

func (m *mockSubscriberRepo) CountByStatus(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, s := range m.subscribers {
		counts[string(s.Status)]++
	}
	return counts, nil
}

func (m *mockSubscriberRepo) CountBySource(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, s := range m.subscribers {
		if s.Status == subscriber.StatusActive {
			counts[s.Source.String]++
		}
	}
	return counts, nil
}

type mockBroadcastRepo struct {
	mu      sync.Mutex
	records map[string]*broadcast.Broadcast
	order   []string
	listErr error
}

func newMockBroadcastRepo() *mockBroadcastRepo {
	return &mockBroadcastRepo{records: make(map[string]*broadcast.Broadcast)}
}

func (m *mockBroadcastRepo) get(id string) *broadcast.Broadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

func (m *mockBroadcastRepo) Create(_ context.Context, b *broadcast.Broadcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[b.ID] = b
	m.order = append(m.order, b.ID)
	return nil
}

func (m *mockBroadcastRepo) GetByID(_ context.Context, id string) (*broadcast.Broadcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("broadcast %s not found", id)
	}
	return rec, nil
}

func (m *mockBroadcastRepo) IncrementSent(_ context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id].SentCount += delta
	return nil
}

func (m *mockBroadcastRepo) IncrementFailed(_ context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id].FailedCount += delta
	return nil
}

func (m *mockBroadcastRepo) SetStatus(_ context.Context, id string, status broadcast.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id].Status = status
	return nil
}

func (m *mockBroadcastRepo) MarkCompleted(_ context.Context, id string, completedAt time.Time, errorsByKind map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[id]
	rec.Status = broadcast.StatusCompleted
	rec.CompletedAt.Time = completedAt
	rec.CompletedAt.Valid = true
	rec.ErrorsByKind = errorsByKind
	return nil
}

func (m *mockBroadcastRepo) MarkError(_ context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[id]
	rec.Status = broadcast.StatusError
	rec.ErrorMessage.String = message
	rec.ErrorMessage.Valid = true
	return nil
}

func (m *mockBroadcastRepo) FindDue(_ context.Context, now time.Time) ([]*broadcast.Broadcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*broadcast.Broadcast
	for _, id := range m.order {
		rec := m.records[id]
		if rec.Status == broadcast.StatusScheduled && rec.ScheduleTime.Valid && !rec.ScheduleTime.Time.After(now) {
			due = append(due, rec)
		}
	}
	return due, nil
}

func (m *mockBroadcastRepo) ListScheduled(_ context.Context) ([]*broadcast.Broadcast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*broadcast.Broadcast
	for _, id := range m.order {
		if rec := m.records[id]; rec.Status == broadcast.StatusScheduled {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}

func (m *mockBroadcastRepo) List(_ context.Context, limit, offset int) ([]*broadcast.Broadcast, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset >= len(m.order) {
		return nil, nil
	}
	ids := m.order[offset:]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*broadcast.Broadcast, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.records[id])
	}
	return out, nil
}

func (m *mockBroadcastRepo) UpdateTargetFilter(_ context.Context, id string, filter map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id].TargetFilter = filter
	return nil
}

func (m *mockBroadcastRepo) UpdateScheduleTime(_ context.Context, id string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[id]
	rec.ScheduleTime.Time = t
	rec.ScheduleTime.Valid = true
	return nil
}

type sendCall struct {
	ChatID int64
	Msg    domainTelegram.Message
}

// mockTelegramClient replays a per-recipient queue of results; recipients
// without a queue always succeed.
type mockTelegramClient struct {
	results map[int64][]domainTelegram.SendResult

	calls       []sendCall
	messages    []int64
	approved    []int64
	approveErr  error
	createdLink string
}

func (m *mockTelegramClient) SendMessage(chatID int64, _ string, _ *telebot.SendOptions) error {
	m.messages = append(m.messages, chatID)
	return nil
}

func (m *mockTelegramClient) SendBroadcast(chatID int64, msg domainTelegram.Message) domainTelegram.SendResult {
	m.calls = append(m.calls, sendCall{ChatID: chatID, Msg: msg})
	queue := m.results[chatID]
	if len(queue) == 0 {
		return domainTelegram.SendResult{Class: domainTelegram.OutcomeSuccess}
	}
	next := queue[0]
	m.results[chatID] = queue[1:]
	return next
}

func (m *mockTelegramClient) ApproveJoinRequest(_, userID int64) error {
	if m.approveErr != nil {
		return m.approveErr
	}
	m.approved = append(m.approved, userID)
	return nil
}

func (m *mockTelegramClient) CreateInviteLink(_ int64, name string, _ time.Time) (string, error) {
	m.createdLink = "https://t.me/+" + name
	return m.createdLink, nil
}

type mockInviteLinkRepo struct {
	links     []*invitelink.InviteLink
	createErr error
}

func (m *mockInviteLinkRepo) Create(_ context.Context, l *invitelink.InviteLink) error {
	if m.createErr != nil {
		return m.createErr
	}
	l.ID = int64(len(m.links) + 1)
	m.links = append(m.links, l)
	return nil
}

func (m *mockInviteLinkRepo) GetByLink(_ context.Context, link string) (*invitelink.InviteLink, error) {
	for _, l := range m.links {
		if l.Link == link {
			return l, nil
		}
	}
	return nil, fmt.Errorf("invite link %q not found", link)
}

func (m *mockInviteLinkRepo) SourceByLink(_ context.Context, link string) (string, error) {
	l, err := m.GetByLink(context.Background(), link)
	if err != nil {
		return "", err
	}
	l.UsesCount++
	return l.Source, nil
}

func (m *mockInviteLinkRepo) ListActive(_ context.Context) ([]*invitelink.InviteLink, error) {
	var active []*invitelink.InviteLink
	for _, l := range m.links {
		if l.IsActive {
			active = append(active, l)
		}
	}
	return active, nil
}

func activeSubscriber(id int64, source, city string) *subscriber.Subscriber {
	s := &subscriber.Subscriber{ID: id, Status: subscriber.StatusActive}
	if source != "" {
		s.Source.String = source
		s.Source.Valid = true
	}
	if city != "" {
		s.City.String = city
		s.City.Valid = true
	}
	return s
}
