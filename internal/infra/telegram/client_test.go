package telegram

import (
	"testing"
	"time"
)

func TestNewJoinRequestLink(t *testing.T) {
	expireAt := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	link := newJoinRequestLink("vk", expireAt)
	if link.Name != "vk" {
		t.Errorf("name = %q, want vk", link.Name)
	}
	if !link.JoinRequest {
		t.Error("link must require a join request")
	}
	if link.ExpireUnixtime != expireAt.Unix() {
		t.Errorf("expire = %d, want %d", link.ExpireUnixtime, expireAt.Unix())
	}
}

func TestNewJoinRequestLinkNonExpiring(t *testing.T) {
	link := newJoinRequestLink("site", time.Time{})
	if link.ExpireUnixtime != 0 {
		t.Errorf("expire = %d, want 0 for a non-expiring link", link.ExpireUnixtime)
	}
}
