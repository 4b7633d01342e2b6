// internal/domain/telegram/client.go
package telegram

import (
	"time"

	"gopkg.in/telebot.v3"
)

// OutcomeClass classifies the result of delivering one broadcast message.
// The send primitive returns a closed variant instead of raw errors so the
// batch sender can dispatch with a switch.
type OutcomeClass int

const (
	OutcomeSuccess OutcomeClass = iota
	// OutcomeRateLimited carries a platform-mandated wait duration; the
	// sender honors it and retries exactly once.
	OutcomeRateLimited
	// OutcomeUnreachable covers permanent per-recipient conditions:
	// blocked the bot, deactivated account, chat not found, unauthorized,
	// cannot initiate conversation.
	OutcomeUnreachable
	// OutcomeProtocolError is any other Telegram API error.
	OutcomeProtocolError
	OutcomeUnknown
)

// SendResult is the outcome of one send attempt.
type SendResult struct {
	Class      OutcomeClass
	Kind       string        // error kind label for tallies, e.g. "BotBlocked"
	RetryAfter time.Duration // set when Class == OutcomeRateLimited
	Err        error
}

// Message is one broadcast payload: text plus optional attached media.
// An unrecognized media kind degrades to a plain text message.
type Message struct {
	Text        string
	MediaFileID string
	MediaKind   string // "photo", "video" or "animation"
}

// Client defines the operations the application needs from the Telegram
// bot, decoupling services from the bot library.
type Client interface {
	// SendMessage sends a plain text message (admin replies, prompts).
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
	// SendBroadcast delivers one broadcast message and classifies the
	// outcome. Never panics; all errors end up in the SendResult.
	SendBroadcast(recipientChatID int64, msg Message) SendResult
	// ApproveJoinRequest approves a pending channel join request.
	ApproveJoinRequest(channelID, userID int64) error
	// CreateInviteLink issues a join-request invite link on the channel.
	// expireAt may be zero for a non-expiring link.
	CreateInviteLink(channelID int64, name string, expireAt time.Time) (string, error)
}
