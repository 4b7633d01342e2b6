// internal/infra/telegram/client.go
package telegram

import (
	"errors"
	"time"

	domainTelegram "channel_broadcast_bot/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the domain Client interface using the
// gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the specified recipient.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.User{ID: recipientChatID}
	_, err := tba.bot.Send(recipient, text, options)
	return err
}

// SendBroadcast delivers one broadcast message, with media when attached,
// and classifies the outcome. An unrecognized media kind degrades to a
// plain text send.
func (tba *TelebotAdapter) SendBroadcast(recipientChatID int64, msg domainTelegram.Message) domainTelegram.SendResult {
	recipient := &telebot.User{ID: recipientChatID}

	var what interface{} = msg.Text
	if msg.MediaFileID != "" {
		switch msg.MediaKind {
		case "photo":
			what = &telebot.Photo{File: telebot.File{FileID: msg.MediaFileID}, Caption: msg.Text}
		case "video":
			what = &telebot.Video{File: telebot.File{FileID: msg.MediaFileID}, Caption: msg.Text}
		case "animation":
			what = &telebot.Animation{File: telebot.File{FileID: msg.MediaFileID}, Caption: msg.Text}
		}
	}

	_, err := tba.bot.Send(recipient, what)
	return ClassifySendError(err)
}

// ApproveJoinRequest approves a pending join request on the channel.
func (tba *TelebotAdapter) ApproveJoinRequest(channelID, userID int64) error {
	return tba.bot.ApproveJoinRequest(&telebot.Chat{ID: channelID}, &telebot.User{ID: userID})
}

// CreateInviteLink issues a join-request invite link on the channel, named
// after the acquisition source so it can be recognized in the channel UI.
func (tba *TelebotAdapter) CreateInviteLink(channelID int64, name string, expireAt time.Time) (string, error) {
	created, err := tba.bot.CreateInviteLink(&telebot.Chat{ID: channelID}, newJoinRequestLink(name, expireAt))
	if err != nil {
		return "", err
	}
	return created.InviteLink, nil
}

// newJoinRequestLink builds the invite link parameters. Every link requires
// admin approval to join; a zero expireAt means the link never expires.
func newJoinRequestLink(name string, expireAt time.Time) *telebot.ChatInviteLink {
	link := &telebot.ChatInviteLink{
		Name:        name,
		JoinRequest: true,
	}
	if !expireAt.IsZero() {
		link.ExpireUnixtime = expireAt.Unix()
	}
	return link
}

// unreachableKinds maps the permanent per-recipient failure conditions to
// their tally labels.
var unreachableKinds = []struct {
	err  error
	kind string
}{
	{telebot.ErrBlockedByUser, "BotBlocked"},
	{telebot.ErrUserIsDeactivated, "UserDeactivated"},
	{telebot.ErrChatNotFound, "ChatNotFound"},
	{telebot.ErrUnauthorized, "Unauthorized"},
	{telebot.ErrNotStartedByUser, "CantInitiateConversation"},
}

// ClassifySendError converts a telebot error into the closed send-outcome
// variant the broadcast engine dispatches on.
func ClassifySendError(err error) domainTelegram.SendResult {
	if err == nil {
		return domainTelegram.SendResult{Class: domainTelegram.OutcomeSuccess}
	}

	var flood telebot.FloodError
	if errors.As(err, &flood) {
		return domainTelegram.SendResult{
			Class:      domainTelegram.OutcomeRateLimited,
			Kind:       "RetryAfter",
			RetryAfter: time.Duration(flood.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	for _, u := range unreachableKinds {
		if errors.Is(err, u.err) {
			return domainTelegram.SendResult{Class: domainTelegram.OutcomeUnreachable, Kind: u.kind, Err: err}
		}
	}

	var apiErr *telebot.Error
	if errors.As(err, &apiErr) {
		return domainTelegram.SendResult{Class: domainTelegram.OutcomeProtocolError, Kind: "TelegramAPIError", Err: err}
	}

	return domainTelegram.SendResult{Class: domainTelegram.OutcomeUnknown, Kind: "Unknown", Err: err}
}
