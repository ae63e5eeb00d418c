// Package store is the ClickHouse adapter for raw click events and the
// daily/global roll-ups.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/services/analytics"
)

// AnalyticsStore wraps the native ClickHouse connection.
type AnalyticsStore struct {
	conn driver.Conn
	log  *logrus.Entry
}

func New(conn driver.Conn, log *logrus.Logger) *AnalyticsStore {
	return &AnalyticsStore{conn: conn, log: log.WithField("component", "analytics-store")}
}

// InsertEvents appends a batch of raw events. The driver's batch API is the
// multi-row bulk insert path.
func (s *AnalyticsStore) InsertEvents(ctx context.Context, events []analytics.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events
			(event_id, short_code, clicked_at, ip_address, user_agent, referrer,
			 country_code, region, city, device_type, browser, os)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.EventID, e.ShortCode, e.ClickedAt, e.IPAddress, e.UserAgent, e.Referrer,
			e.CountryCode, e.Region, e.City, e.DeviceType, e.Browser, e.OS,
		); err != nil {
			return fmt.Errorf("append event %s: %w", e.EventID, err)
		}
	}
	return batch.Send()
}

// SummarizeDay computes per-code daily summaries for the given UTC date from
// the raw events.
func (s *AnalyticsStore) SummarizeDay(ctx context.Context, date time.Time) ([]analytics.DailySummary, error) {
	day := date.UTC().Format("2006-01-02")

	rows, err := s.conn.Query(ctx, `
		SELECT
			short_code,
			count() AS total,
			topK(5)(country_code) AS countries,
			topK(5)(referrer) AS referrers,
			topK(5)(device_type) AS devices,
			topK(5)(browser) AS browsers,
			sumForEach(arrayMap(h -> toUInt64(h = toHour(clicked_at)), range(24))) AS hourly
		FROM analytics_events
		WHERE toDate(clicked_at) = toDate(?)
		GROUP BY short_code`, day)
	if err != nil {
		return nil, fmt.Errorf("summarize day %s: %w", day, err)
	}
	defer rows.Close()

	var summaries []analytics.DailySummary
	for rows.Next() {
		var (
			sum       analytics.DailySummary
			countries []string
			referrers []string
			devices   []string
			browsers  []string
			hourly    []uint64
		)
		if err := rows.Scan(&sum.ShortCode, &sum.TotalClicks, &countries, &referrers, &devices, &browsers, &hourly); err != nil {
			return nil, err
		}
		sum.Date = day
		sum.TopCountries = dropEmpty(countries)
		sum.TopReferrers = dropEmpty(referrers)
		sum.TopDevices = dropEmpty(devices)
		sum.TopBrowsers = dropEmpty(browsers)
		copy(sum.Hourly[:], hourly)
		sum.PeakHour = peakHour(sum.Hourly)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// SummarizeGlobal computes the service-wide roll-up for a date.
func (s *AnalyticsStore) SummarizeGlobal(ctx context.Context, date time.Time) (*analytics.GlobalSummary, error) {
	day := date.UTC().Format("2006-01-02")

	row := s.conn.QueryRow(ctx, `
		SELECT
			count() AS total,
			uniqExact(short_code) AS codes,
			topK(5)(country_code) AS countries,
			topK(5)(referrer) AS referrers,
			topK(5)(device_type) AS devices,
			topK(5)(browser) AS browsers,
			sumForEach(arrayMap(h -> toUInt64(h = toHour(clicked_at)), range(24))) AS hourly
		FROM analytics_events
		WHERE toDate(clicked_at) = toDate(?)`, day)

	var (
		sum       analytics.GlobalSummary
		countries []string
		referrers []string
		devices   []string
		browsers  []string
		hourly    []uint64
	)
	if err := row.Scan(&sum.TotalClicks, &sum.UniqueCodes, &countries, &referrers, &devices, &browsers, &hourly); err != nil {
		return nil, fmt.Errorf("summarize global %s: %w", day, err)
	}
	sum.Date = day
	sum.TopCountries = dropEmpty(countries)
	sum.TopReferrers = dropEmpty(referrers)
	sum.TopDevices = dropEmpty(devices)
	sum.TopBrowsers = dropEmpty(browsers)
	copy(sum.Hourly[:], hourly)
	sum.PeakHour = peakHour(sum.Hourly)
	return &sum, nil
}

// StoreDailySummaries writes the materialized per-code roll-ups.
func (s *AnalyticsStore) StoreDailySummaries(ctx context.Context, summaries []analytics.DailySummary) error {
	if len(summaries) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO analytics_daily_summaries
			(short_code, date, total_clicks, top_countries, top_referrers,
			 top_devices, top_browsers, hourly, peak_hour)`)
	if err != nil {
		return err
	}
	for _, sum := range summaries {
		if err := batch.Append(
			sum.ShortCode, sum.Date, sum.TotalClicks,
			sum.TopCountries, sum.TopReferrers, sum.TopDevices, sum.TopBrowsers,
			sum.Hourly[:], uint8(sum.PeakHour),
		); err != nil {
			return err
		}
	}
	return batch.Send()
}

// StoreGlobalSummary writes the service-wide roll-up.
func (s *AnalyticsStore) StoreGlobalSummary(ctx context.Context, sum *analytics.GlobalSummary) error {
	return s.conn.Exec(ctx, `
		INSERT INTO analytics_global_summaries
			(date, total_clicks, unique_codes, top_countries, top_referrers,
			 top_devices, top_browsers, hourly, peak_hour)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.Date, sum.TotalClicks, sum.UniqueCodes,
		sum.TopCountries, sum.TopReferrers, sum.TopDevices, sum.TopBrowsers,
		sum.Hourly[:], uint8(sum.PeakHour))
}

// dropEmpty strips the empty-string bucket topK produces when events carry no
// value for the dimension.
func dropEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func peakHour(hourly [24]uint64) int {
	peak := 0
	for h := 1; h < 24; h++ {
		if hourly[h] > hourly[peak] {
			peak = h
		}
	}
	return peak
}
