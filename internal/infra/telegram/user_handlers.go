// internal/infra/telegram/user_handlers.go
package telegram

import (
	"context"
	"errors"
	"strings"

	"channel_broadcast_bot/internal/app"
	"channel_broadcast_bot/internal/domain/subscriber"
	"channel_broadcast_bot/internal/infra/config"
	idb "channel_broadcast_bot/internal/infra/database"
	"channel_broadcast_bot/internal/infra/email"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const cityPrompt = "Из какого вы города? Напишите название в ответном сообщении."

// RegisterUserHandlers wires the subscriber-facing commands: the /start
// handshake that completes join-request approval, the city capture reply
// and the /contact request.
func RegisterUserHandlers(
	ctx context.Context,
	b *telebot.Bot,
	cfg *config.AppConfig,
	subscribers subscriber.Repository,
	approvals *app.ApprovalService,
	mailer *email.Mailer,
	baseLogger *logrus.Entry,
) {
	b.Handle("/start", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/start",
			"sender_id": c.Sender().ID,
		})

		confirmed, err := approvals.Confirm(ctx, c.Sender().ID)
		if err != nil {
			log.WithError(err).Error("Failed to complete join request approval")
			return c.Send("Произошла ошибка при одобрении вашей заявки. Пожалуйста, попробуйте позже.")
		}
		if !confirmed {
			log.Info("Start without pending join request")
			return c.Send("Привет! Я бот канала. Если вы подали заявку на вступление, она будет одобрена автоматически.")
		}

		log.Info("Join request confirmed via /start")
		if err := c.Send(cfg.DefaultWelcomeMessage); err != nil {
			return err
		}
		return c.Send(cityPrompt)
	})

	b.Handle("/contact", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/contact",
			"sender_id": c.Sender().ID,
		})

		text := strings.TrimSpace(c.Message().Payload)
		if text == "" {
			return c.Send("Напишите ваш вопрос после команды: /contact <текст>")
		}

		if err := mailer.SendContactNotification(c.Sender().ID, c.Sender().Username, text); err != nil {
			log.WithError(err).Error("Failed to forward contact request")
			return c.Send("Не удалось отправить ваш запрос. Пожалуйста, попробуйте позже.")
		}
		log.Info("Contact request forwarded")
		return c.Send("Спасибо! Ваш запрос передан, мы свяжемся с вами.")
	})

	// A plain text message from a subscriber without a recorded city is
	// treated as the answer to the city prompt.
	b.Handle(telebot.OnText, func(c telebot.Context) error {
		text := strings.TrimSpace(c.Text())
		if text == "" || strings.HasPrefix(text, "/") {
			return nil
		}

		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "on_text",
			"sender_id": c.Sender().ID,
		})

		sub, err := subscribers.GetByID(ctx, c.Sender().ID)
		if err != nil {
			if !errors.Is(err, idb.ErrSubscriberNotFound) {
				log.WithError(err).Error("Failed to load subscriber for city capture")
			}
			return nil
		}
		if sub.Status != subscriber.StatusActive || sub.City.Valid {
			return nil
		}

		if err := subscribers.SetCity(ctx, sub.ID, text); err != nil {
			log.WithError(err).Error("Failed to save subscriber city")
			return c.Send("Не удалось сохранить город. Пожалуйста, попробуйте ещё раз.")
		}
		log.WithField("city", text).Info("Subscriber city recorded")
		return c.Send("Спасибо! Город сохранён: " + text)
	})
}
