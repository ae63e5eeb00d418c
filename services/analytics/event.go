// Package analytics implements the click ingestion pipeline: enrichment,
// single WebSocket emission, buffered publication to the durable bus (or the
// direct store writer when the bus is down), the bus consumer, and the batch
// summarizer.
package analytics

import "time"

// ClickEvent is the raw, append-only analytics record. The JSON form is the
// bus payload.
type ClickEvent struct {
	EventID     string    `json:"event_id"`
	ShortCode   string    `json:"short_code"`
	ClickedAt   time.Time `json:"clicked_at"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	Referrer    string    `json:"referrer"`
	CountryCode string    `json:"country_code"`
	Region      string    `json:"region"`
	City        string    `json:"city"`
	DeviceType  string    `json:"device_type"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
}

// DailySummary is the per-code daily roll-up. Top-N lists are ordered
// most-frequent first, as produced by the warehouse's topK aggregation.
type DailySummary struct {
	ShortCode    string     `json:"short_code"`
	Date         string     `json:"date"` // YYYY-MM-DD
	TotalClicks  uint64     `json:"total_clicks"`
	TopCountries []string   `json:"top_countries"`
	TopReferrers []string   `json:"top_referrers"`
	TopDevices   []string   `json:"top_devices"`
	TopBrowsers  []string   `json:"top_browsers"`
	Hourly       [24]uint64 `json:"hourly"`
	PeakHour     int        `json:"peak_hour"`
}

// GlobalSummary is the service-wide daily roll-up.
type GlobalSummary struct {
	Date         string     `json:"date"`
	TotalClicks  uint64     `json:"total_clicks"`
	UniqueCodes  uint64     `json:"unique_codes"`
	TopCountries []string   `json:"top_countries"`
	TopReferrers []string   `json:"top_referrers"`
	TopDevices   []string   `json:"top_devices"`
	TopBrowsers  []string   `json:"top_browsers"`
	Hourly       [24]uint64 `json:"hourly"`
	PeakHour     int        `json:"peak_hour"`
}
