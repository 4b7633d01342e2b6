// internal/infra/telegram/admin_handlers.go
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"channel_broadcast_bot/internal/app"
	"channel_broadcast_bot/internal/domain/broadcast"
	"channel_broadcast_bot/internal/infra/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterAdminHandlers registers the operator commands: broadcasts,
// scheduling, statistics, reports and invite link management. Every
// handler checks the static admin allowlist first.
func RegisterAdminHandlers(
	ctx context.Context,
	b *telebot.Bot,
	cfg *config.AppConfig,
	broadcastService *app.BroadcastService,
	adminService *app.AdminService,
	reportService *app.ReportService,
	baseLogger *logrus.Entry,
) {
	requireAdmin := func(c telebot.Context, log *logrus.Entry) bool {
		if cfg.IsAdmin(c.Sender().ID) {
			return true
		}
		log.Warn("Unauthorized access attempt")
		_ = c.Send("Ошибка: У вас нет прав для выполнения этой команды.")
		return false
	}

	b.Handle("/broadcast", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/broadcast",
			"sender_id": c.Sender().ID,
		})
		if !requireAdmin(c, log) {
			return nil
		}

		req, err := parseBroadcastPayload(c.Message())
		if err != nil {
			return c.Send("Неверный формат. Используйте: /broadcast [фильтр] | <текст>\n" +
				"Фильтр: key=value через запятую (source, city, status) или «-» для всех активных.\n" +
				"Чтобы приложить медиа, отправьте команду ответом на сообщение с фото или видео.")
		}

		if err := c.Send("Рассылка запущена..."); err != nil {
			log.WithError(err).Warn("Failed to acknowledge broadcast command")
		}

		summary, rec, err := broadcastService.SendNow(ctx, req)
		if err != nil {
			log.WithError(err).Error("Broadcast failed")
			return c.Send(fmt.Sprintf("Ошибка при выполнении рассылки: %s", err.Error()))
		}
		if rec == nil {
			return c.Send("Нет получателей, подходящих под фильтр. Рассылка не создана.")
		}

		log.WithFields(logrus.Fields{
			"broadcast_id": rec.ID,
			"sent":         summary.Sent,
			"failed":       summary.Failed,
		}).Info("Broadcast finished")
		return c.Send(formatSummary(summary))
	})

	b.Handle("/schedule", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/schedule",
			"sender_id": c.Sender().ID,
		})
		if !requireAdmin(c, log) {
			return nil
		}

		req, scheduleTime, err := parseSchedulePayload(c.Message(), time.Now())
		if err != nil {
			return c.Send("Неверный формат. Используйте: /schedule ДД.ММ.ГГГГ ЧЧ:ММ | [фильтр] | <текст>\n" +
				"Время указывается по Москве и должно быть в будущем.")
		}

		rec, err := broadcastService.Schedule(ctx, req, scheduleTime)
		if err != nil {
			log.WithError(err).Error("Failed to schedule broadcast")
			return c.Send(fmt.Sprintf("Ошибка при планировании рассылки: %s", err.Error()))
		}

		return c.Send(fmt.Sprintf(
			"Рассылка запланирована на %s (МСК). Получателей сейчас: %d.",
			rec.ScheduleTime.Time.In(moscowZone).Format(scheduleTimeLayout),
			rec.TotalUsers,
		))
	})

	b.Handle("/scheduled", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/scheduled",
			"sender_id": c.Sender().ID,
		})
		if !requireAdmin(c, log) {
			return nil
		}

		pending, err := broadcastService.ListScheduled(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to list scheduled broadcasts")
			return c.Send("Произошла ошибка при получении списка запланированных рассылок.")
		}
		if len(pending) == 0 {
			return c.Send("Запланированных рассылок нет.")
		}

		var sb strings.Builder
		sb.WriteString("Запланированные рассылки:\n")
		for _, rec := range pending {
			sb.WriteString(fmt.Sprintf(
				"\n• %s (МСК), получателей: %d\n  %s\n",
				rec.ScheduleTime.Time.In(moscowZone).Format(scheduleTimeLayout),
				rec.TotalUsers,
				truncateText(rec.MessageText, 80),
			))
		}
		return c.Send(sb.String())
	})

	b.Handle("/stats", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/stats",
			"sender_id": c.Sender().ID,
		})
		if !requireAdmin(c, log) {
			return nil
		}

		stats, err := adminService.Stats(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to collect subscriber stats")
			return c.Send("Произошла ошибка при подсчёте статистики.")
		}

		var sb strings.Builder
		sb.WriteString("Статистика подписчиков\n\nПо статусам:\n")
		for status, count := range stats.ByStatus {
			sb.WriteString(fmt.Sprintf("  %s: %d\n", status, count))
		}
		sb.WriteString("\nПо источникам:\n")
		for source, count := range stats.BySource {
			if source == "" {
				source = "(не указан)"
			}
			sb.WriteString(fmt.Sprintf("  %s: %d\n", source, count))
		}
		return c.Send(sb.String())
	})

	b.Handle("/report", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/report",
			"sender_id": c.Sender().ID,
		})
		if !requireAdmin(c, log) {
			return nil
		}

		buf, err := reportService.GenerateFullReport(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to generate full report")
			return c.Send("Произошла ошибка при формировании отчёта.")
		}
		return c.Send(&telebot.Document{
			File:     telebot.FromReader(buf),
			FileName: fmt.Sprintf("report_%s.xlsx", time.Now().Format("2006-01-02")),
		})
	})

	b.Handle("/report_active", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/report_active",
			"sender_id": c.Sender().ID,
		})
		if !requireAdmin(c, log) {
			return nil
		}

		buf, err := reportService.GenerateActiveReport(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to generate active subscribers report")
			return c.Send("Произошла ошибка при формировании отчёта.")
		}
		return c.Send(&telebot.Document{
			File:     telebot.FromReader(buf),
			FileName: fmt.Sprintf("active_%s.xlsx", time.Now().Format("2006-01-02")),
		})
	})

	b.Handle("/newlink", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/newlink",
			"sender_id": c.Sender().ID,
		})
		if !requireAdmin(c, log) {
			return nil
		}

		args := c.Args()
		if len(args) < 1 {
			return c.Send("Неверный формат. Используйте: /newlink <источник> [описание]")
		}
		source := args[0]
		description := strings.Join(args[1:], " ")

		link, err := adminService.CreateInviteLink(ctx, c.Sender().ID, source, description, time.Time{})
		if err != nil {
			log.WithError(err).Error("Failed to create invite link")
			return c.Send(fmt.Sprintf("Ошибка при создании ссылки: %s", err.Error()))
		}
		return c.Send(fmt.Sprintf("Ссылка для источника «%s»:\n%s", link.Source, link.Link))
	})

	b.Handle("/links", func(c telebot.Context) error {
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "/links",
			"sender_id": c.Sender().ID,
		})
		if !requireAdmin(c, log) {
			return nil
		}

		links, err := adminService.ListInviteLinks(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to list invite links")
			return c.Send("Произошла ошибка при получении списка ссылок.")
		}
		if len(links) == 0 {
			return c.Send("Активных ссылок нет. Создайте первую командой /newlink.")
		}

		var sb strings.Builder
		sb.WriteString("Активные ссылки:\n")
		for _, l := range links {
			sb.WriteString(fmt.Sprintf("\n• %s\n  %s (переходов: %d)\n", l.Source, l.Link, l.UsesCount))
		}
		return c.Send(sb.String())
	})
}

// parseBroadcastPayload reads "/broadcast [filter] | text". Media is taken
// from the replied-to message when the command is sent as a reply.
func parseBroadcastPayload(m *telebot.Message) (app.BroadcastRequest, error) {
	var req app.BroadcastRequest

	filter, text, err := splitFilterAndText(m.Payload)
	if err != nil {
		return req, err
	}
	req.TargetFilter = filter
	req.MessageText = text
	req.MediaFileID, req.MediaKind = mediaFromMessage(m.ReplyTo)

	if req.MessageText == "" && req.MediaFileID == "" {
		return req, fmt.Errorf("empty broadcast message")
	}
	return req, nil
}

// parseSchedulePayload reads "/schedule DD.MM.YYYY HH:MM | [filter] | text".
func parseSchedulePayload(m *telebot.Message, now time.Time) (app.BroadcastRequest, time.Time, error) {
	var req app.BroadcastRequest

	parts := strings.SplitN(m.Payload, "|", 2)
	if len(parts) != 2 {
		return req, time.Time{}, fmt.Errorf("missing schedule time separator")
	}
	scheduleTime, err := ParseScheduleTime(strings.TrimSpace(parts[0]), now)
	if err != nil {
		return req, time.Time{}, err
	}

	filter, text, err := splitFilterAndText(parts[1])
	if err != nil {
		return req, time.Time{}, err
	}
	req.TargetFilter = filter
	req.MessageText = text
	req.MediaFileID, req.MediaKind = mediaFromMessage(m.ReplyTo)

	if req.MessageText == "" && req.MediaFileID == "" {
		return req, time.Time{}, fmt.Errorf("empty broadcast message")
	}
	return req, scheduleTime, nil
}

// splitFilterAndText interprets "filter | text" or just "text". A filter
// of "-" targets all active subscribers.
func splitFilterAndText(payload string) (map[string]string, string, error) {
	parts := strings.SplitN(payload, "|", 2)
	if len(parts) == 1 {
		return nil, strings.TrimSpace(parts[0]), nil
	}
	filter, err := parseTargetFilter(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, "", err
	}
	return filter, strings.TrimSpace(parts[1]), nil
}

// parseTargetFilter parses "key=value,key=value". Empty or "-" means no
// filter. Key validation is left to the subscriber repository.
func parseTargetFilter(raw string) (map[string]string, error) {
	if raw == "" || raw == "-" {
		return nil, nil
	}
	filter := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid filter pair %q", pair)
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		if key == "" || value == "" {
			return nil, fmt.Errorf("invalid filter pair %q", pair)
		}
		filter[key] = value
	}
	return filter, nil
}

func mediaFromMessage(m *telebot.Message) (fileID string, kind broadcast.MediaKind) {
	if m == nil {
		return "", ""
	}
	switch {
	case m.Photo != nil:
		return m.Photo.FileID, broadcast.MediaPhoto
	case m.Video != nil:
		return m.Video.FileID, broadcast.MediaVideo
	case m.Animation != nil:
		return m.Animation.FileID, broadcast.MediaAnimation
	}
	return "", ""
}

func formatSummary(s *app.BroadcastSummary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		"Рассылка завершена.\nВсего: %d\nОтправлено: %d\nОшибок: %d\n",
		s.Total, s.Sent, s.Failed,
	))
	if len(s.Errors) > 0 {
		sb.WriteString("\nОшибки по типам:\n")
		for kind, count := range s.Errors {
			sb.WriteString(fmt.Sprintf("  %s: %d\n", kind, count))
		}
	}
	return sb.String()
}

func truncateText(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
