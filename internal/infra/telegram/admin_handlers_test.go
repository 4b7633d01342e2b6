package telegram

import (
	"testing"
	"time"

	"channel_broadcast_bot/internal/domain/broadcast"

	"gopkg.in/telebot.v3"
)

func TestParseTargetFilter(t *testing.T) {
	filter, err := parseTargetFilter("source=vk, city=Москва")
	if err != nil {
		t.Fatalf("parseTargetFilter: %v", err)
	}
	if filter["source"] != "vk" || filter["city"] != "Москва" || len(filter) != 2 {
		t.Errorf("filter = %v", filter)
	}

	for _, raw := range []string{"", "-"} {
		filter, err := parseTargetFilter(raw)
		if err != nil || filter != nil {
			t.Errorf("parseTargetFilter(%q) = %v, %v; want nil, nil", raw, filter, err)
		}
	}

	for _, raw := range []string{"source", "=vk", "source=", "source=vk,,"} {
		if _, err := parseTargetFilter(raw); err == nil {
			t.Errorf("parseTargetFilter(%q) succeeded, want error", raw)
		}
	}
}

func TestParseBroadcastPayload(t *testing.T) {
	msg := &telebot.Message{Payload: "source=vk | Привет всем!"}
	req, err := parseBroadcastPayload(msg)
	if err != nil {
		t.Fatalf("parseBroadcastPayload: %v", err)
	}
	if req.MessageText != "Привет всем!" {
		t.Errorf("text = %q", req.MessageText)
	}
	if req.TargetFilter["source"] != "vk" {
		t.Errorf("filter = %v", req.TargetFilter)
	}

	// No separator means no filter.
	req, err = parseBroadcastPayload(&telebot.Message{Payload: "Всем привет"})
	if err != nil {
		t.Fatalf("parseBroadcastPayload: %v", err)
	}
	if req.TargetFilter != nil || req.MessageText != "Всем привет" {
		t.Errorf("req = %+v", req)
	}

	if _, err := parseBroadcastPayload(&telebot.Message{Payload: ""}); err == nil {
		t.Error("empty payload must be rejected")
	}
}

func TestParseBroadcastPayloadMediaFromReply(t *testing.T) {
	msg := &telebot.Message{
		Payload: "- | Смотрите фото",
		ReplyTo: &telebot.Message{
			Photo: &telebot.Photo{File: telebot.File{FileID: "photo123"}},
		},
	}
	req, err := parseBroadcastPayload(msg)
	if err != nil {
		t.Fatalf("parseBroadcastPayload: %v", err)
	}
	if req.MediaFileID != "photo123" || req.MediaKind != broadcast.MediaPhoto {
		t.Errorf("media = %q/%q", req.MediaFileID, req.MediaKind)
	}
}

func TestParseSchedulePayload(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	msg := &telebot.Message{Payload: "10.09.2026 15:00 | city=Казань | Скоро событие"}

	req, at, err := parseSchedulePayload(msg, now)
	if err != nil {
		t.Fatalf("parseSchedulePayload: %v", err)
	}
	if !at.Equal(time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("schedule time = %v", at)
	}
	if req.TargetFilter["city"] != "Казань" || req.MessageText != "Скоро событие" {
		t.Errorf("req = %+v", req)
	}

	// Time and text without a filter part.
	req, _, err = parseSchedulePayload(&telebot.Message{Payload: "10.09.2026 15:00 | Скоро"}, now)
	if err != nil {
		t.Fatalf("parseSchedulePayload: %v", err)
	}
	if req.TargetFilter != nil || req.MessageText != "Скоро" {
		t.Errorf("req = %+v", req)
	}

	if _, _, err := parseSchedulePayload(&telebot.Message{Payload: "Скоро"}, now); err == nil {
		t.Error("payload without a time must be rejected")
	}
}
