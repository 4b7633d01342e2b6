// internal/app/report_service.go
package app

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"channel_broadcast_bot/internal/domain/broadcast"
	"channel_broadcast_bot/internal/domain/subscriber"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	subscriberPageSize = 1000
	broadcastPageSize  = 500

	// reportTimeLayout renders timestamps in the operator's local
	// convention rather than RFC3339.
	reportTimeLayout = "02.01.2006 15:04:05"

	// broadcastPageYield keeps long exports from starving other work
	// between broadcast pages.
	broadcastPageYield = 100 * time.Millisecond
)

// ReportService builds Excel workbooks of subscribers and broadcast
// history. Data is read page by page so a large base never has to fit in
// a single query result.
type ReportService struct {
	subscribers subscriber.Repository
	broadcasts  broadcast.Repository
	logger      *logrus.Entry

	sleep func(ctx context.Context, d time.Duration) error
}

func NewReportService(
	sr subscriber.Repository,
	br broadcast.Repository,
	logger *logrus.Entry,
) *ReportService {
	return &ReportService{
		subscribers: sr,
		broadcasts:  br,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// GenerateFullReport exports every subscriber regardless of status plus
// the broadcast history. Each subscriber row carries the number of
// broadcasts whose target filter matched them, computed in memory while
// paging through the broadcast records.
func (s *ReportService) GenerateFullReport(ctx context.Context) (*bytes.Buffer, error) {
	subscribers, err := s.loadSubscribers(ctx, nil)
	if err != nil {
		return nil, err
	}
	history, counts, err := s.loadBroadcastHistory(ctx, subscribers)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := s.writeSubscriberSheet(f, "Subscribers", subscribers, counts); err != nil {
		return nil, err
	}
	if err := s.writeBroadcastSheet(f, history); err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report workbook: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"subscribers": len(subscribers),
		"broadcasts":  len(history),
	}).Info("Full report generated")
	return buf, nil
}

// GenerateActiveReport exports active subscribers only, as a single sheet
// without the broadcast-count column.
func (s *ReportService) GenerateActiveReport(ctx context.Context) (*bytes.Buffer, error) {
	filter := map[string]string{"status": string(subscriber.StatusActive)}
	subscribers, err := s.loadSubscribers(ctx, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := s.writeSubscriberSheet(f, "Active subscribers", subscribers, nil); err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report workbook: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"subscribers": len(subscribers),
	}).Info("Active subscribers report generated")
	return buf, nil
}

func (s *ReportService) loadSubscribers(ctx context.Context, filter map[string]string) ([]*subscriber.Subscriber, error) {
	var all []*subscriber.Subscriber
	for offset := 0; ; offset += subscriberPageSize {
		page, err := s.subscribers.List(ctx, filter, subscriberPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to load subscribers page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < subscriberPageSize {
			return all, nil
		}
	}
}

// loadBroadcastHistory pages through all broadcast records, keeping the
// completed and in-progress ones for the history sheet and tallying, per
// subscriber, how many of those broadcasts targeted them. Matching runs
// against the already-loaded subscriber set instead of re-querying
// storage per record. A short yield separates pages.
func (s *ReportService) loadBroadcastHistory(ctx context.Context, subscribers []*subscriber.Subscriber) ([]*broadcast.Broadcast, map[int64]int, error) {
	counts := make(map[int64]int, len(subscribers))
	var history []*broadcast.Broadcast

	for offset := 0; ; offset += broadcastPageSize {
		page, err := s.broadcasts.List(ctx, broadcastPageSize, offset)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load broadcasts page at offset %d: %w", offset, err)
		}
		for _, rec := range page {
			if rec.Status != broadcast.StatusCompleted && rec.Status != broadcast.StatusInProgress {
				continue
			}
			history = append(history, rec)
			merged := mergeActiveStatus(rec.TargetFilter)
			for _, sub := range subscribers {
				if sub.MatchesFilter(merged) {
					counts[sub.ID]++
				}
			}
		}
		if len(page) < broadcastPageSize {
			return history, counts, nil
		}
		if err := s.sleep(ctx, broadcastPageYield); err != nil {
			return nil, nil, err
		}
	}
}

// mergeActiveStatus applies the same implicit active-status rule the
// sender uses when resolving recipients.
func mergeActiveStatus(filter map[string]string) map[string]string {
	merged := make(map[string]string, len(filter)+1)
	for key, value := range filter {
		merged[key] = value
	}
	if _, ok := merged["status"]; !ok {
		merged["status"] = string(subscriber.StatusActive)
	}
	return merged
}

// writeSubscriberSheet writes one subscriber row per line. counts adds the
// trailing broadcast-count column; pass nil to omit it.
func (s *ReportService) writeSubscriberSheet(f *excelize.File, sheet string, subscribers []*subscriber.Subscriber, counts map[int64]int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", sheet, err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer for %q: %w", sheet, err)
	}

	widths := []float64{14, 20, 18, 18, 16, 16, 12, 24, 20, 20, 20, 12}
	for i, w := range widths {
		if err := sw.SetColWidth(i+1, i+1, w); err != nil {
			return err
		}
	}

	header := []interface{}{
		"User ID", "Username", "First name", "Last name",
		"Source", "City", "Status", "Status reason",
		"Created at", "Activated at", "Deactivated at",
	}
	if counts != nil {
		header = append(header, "Broadcasts received")
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, sub := range subscribers {
		row := []interface{}{
			sub.ID,
			sub.Username.String,
			sub.FirstName.String,
			sub.LastName.String,
			sub.Source.String,
			sub.City.String,
			string(sub.Status),
			sub.StatusReason.String,
			formatReportTime(sql.NullTime{Time: sub.CreatedAt, Valid: true}),
			formatReportTime(sub.ActivatedAt),
			formatReportTime(sub.DeactivatedAt),
		}
		if counts != nil {
			row = append(row, counts[sub.ID])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func (s *ReportService) writeBroadcastSheet(f *excelize.File, history []*broadcast.Broadcast) error {
	const sheet = "Broadcasts"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", sheet, err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer for %q: %w", sheet, err)
	}

	widths := []float64{20, 14, 50, 28, 12, 12, 12, 20, 40}
	for i, w := range widths {
		if err := sw.SetColWidth(i+1, i+1, w); err != nil {
			return err
		}
	}

	header := []interface{}{
		"Created at", "Status", "Message", "Target filter",
		"Total", "Sent", "Failed", "Completed at", "Error",
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, rec := range history {
		row := []interface{}{
			formatReportTime(sql.NullTime{Time: rec.CreatedAt, Valid: true}),
			string(rec.Status),
			rec.MessageText,
			formatTargetFilter(rec.TargetFilter),
			rec.TotalUsers,
			rec.SentCount,
			rec.FailedCount,
			formatReportTime(rec.CompletedAt),
			rec.ErrorMessage.String,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func formatTargetFilter(filter map[string]string) string {
	if len(filter) == 0 {
		return "all active"
	}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+filter[key])
	}
	return strings.Join(parts, ", ")
}

func formatReportTime(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(reportTimeLayout)
}
