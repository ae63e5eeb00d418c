package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"
	uaEdgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	uaIPad          = "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"
	uaChromeAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
)

func TestEnrichFillsIdentity(t *testing.T) {
	en := NewEnricher()
	e := ClickEvent{ShortCode: "abc1234", UserAgent: uaChromeWindows}
	en.Enrich(&e)

	_, err := uuid.Parse(e.EventID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), e.ClickedAt, time.Minute)
}

func TestEnrichPreservesCallerFields(t *testing.T) {
	en := NewEnricher()
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	e := ClickEvent{EventID: "fixed-id", ClickedAt: at, UserAgent: uaChromeWindows, Browser: "Custom"}
	en.Enrich(&e)

	assert.Equal(t, "fixed-id", e.EventID)
	assert.Equal(t, at, e.ClickedAt)
	assert.Equal(t, "Custom", e.Browser)
}

func TestEnrichClassification(t *testing.T) {
	en := NewEnricher()
	cases := []struct {
		ua      string
		device  string
		browser string
		os      string
	}{
		{uaChromeWindows, "Desktop", "Chrome", "Windows"},
		{uaSafariIPhone, "Mobile", "Safari", "iOS"},
		{uaFirefoxLinux, "Desktop", "Firefox", "Linux"},
		{uaEdgeWindows, "Desktop", "Edge", "Windows"},
		{uaIPad, "Tablet", "Safari", "iOS"},
		{uaChromeAndroid, "Mobile", "Chrome", "Android"},
	}
	for _, tc := range cases {
		e := ClickEvent{UserAgent: tc.ua}
		en.Enrich(&e)
		assert.Equal(t, tc.device, e.DeviceType, "device for %q", tc.ua)
		assert.Equal(t, tc.browser, e.Browser, "browser for %q", tc.ua)
		assert.Equal(t, tc.os, e.OS, "os for %q", tc.ua)
	}
}

func TestEnrichUnknownUserAgent(t *testing.T) {
	en := NewEnricher()
	e := ClickEvent{UserAgent: "definitely-not-a-real-agent/0.0"}
	en.Enrich(&e)

	assert.Equal(t, "Desktop", e.DeviceType)
	assert.NotEmpty(t, e.Browser)
	assert.NotEmpty(t, e.OS)
}

func TestEnrichEmptyUserAgent(t *testing.T) {
	en := NewEnricher()
	e := ClickEvent{}
	en.Enrich(&e)

	assert.Equal(t, "Desktop", e.DeviceType)
	assert.Equal(t, "Unknown", e.Browser)
	assert.Equal(t, "Unknown", e.OS)
}
