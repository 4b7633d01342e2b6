// internal/infra/telegram/join_request_handlers.go
package telegram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"channel_broadcast_bot/internal/app"
	"channel_broadcast_bot/internal/domain/invitelink"
	"channel_broadcast_bot/internal/domain/subscriber"
	idb "channel_broadcast_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// unknownSource is recorded when a join request arrives through a link
// the bot did not create (or the channel's primary link).
const unknownSource = "unknown"

// RegisterJoinRequestHandlers wires the channel join-request flow: the
// request is attributed to its invite link's source, the subscriber is
// recorded as pending, and approval is deferred until the user starts the
// bot.
func RegisterJoinRequestHandlers(
	ctx context.Context,
	b *telebot.Bot,
	channelID int64,
	subscribers subscriber.Repository,
	inviteLinks invitelink.Repository,
	approvals *app.ApprovalService,
	baseLogger *logrus.Entry,
) {
	b.Handle(telebot.OnChatJoinRequest, func(c telebot.Context) error {
		req := c.Update().ChatJoinRequest
		if req == nil || req.Sender == nil || req.Chat == nil {
			return nil
		}
		if req.Chat.ID != channelID {
			return nil
		}

		log := baseLogger.WithFields(logrus.Fields{
			"handler": "chat_join_request",
			"user_id": req.Sender.ID,
		})

		source := unknownSource
		if req.InviteLink != nil && req.InviteLink.InviteLink != "" {
			resolved, err := inviteLinks.SourceByLink(ctx, req.InviteLink.InviteLink)
			switch {
			case err == nil:
				source = resolved
			case errors.Is(err, idb.ErrInviteLinkNotFound):
				log.WithField("link", req.InviteLink.InviteLink).Info("Join request via untracked invite link")
			default:
				log.WithError(err).Error("Failed to resolve invite link source")
			}
		}
		log = log.WithField("source", source)

		sub := &subscriber.Subscriber{
			ID:     req.Sender.ID,
			Status: subscriber.StatusPending,
			Source: sql.NullString{String: source, Valid: true},
		}
		if req.Sender.Username != "" {
			sub.Username = sql.NullString{String: req.Sender.Username, Valid: true}
		}
		if req.Sender.FirstName != "" {
			sub.FirstName = sql.NullString{String: req.Sender.FirstName, Valid: true}
		}
		if req.Sender.LastName != "" {
			sub.LastName = sql.NullString{String: req.Sender.LastName, Valid: true}
		}
		if _, err := subscribers.Upsert(ctx, sub); err != nil {
			log.WithError(err).Error("Failed to record pending subscriber")
			return nil
		}

		approvals.Record(req.Sender.ID, req.Chat.ID, source)
		log.Info("Join request recorded, awaiting /start handshake")

		// The prompt fails when the user has never started the bot; the
		// request then simply waits until they do.
		prompt := fmt.Sprintf(
			"Привет, %s! Чтобы ваша заявка на вступление была одобрена, нажмите /start.",
			req.Sender.FirstName,
		)
		markup := &telebot.ReplyMarkup{}
		markup.Inline(markup.Row(markup.URL(
			"Открыть бота",
			fmt.Sprintf("https://t.me/%s?start=join", b.Me.Username),
		)))
		if _, err := b.Send(&telebot.User{ID: req.Sender.ID}, prompt, markup); err != nil {
			log.WithError(err).Info("Could not message join requester directly")
		}
		return nil
	})
}
