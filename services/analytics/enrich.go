package analytics

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ua-parser/uap-go/uaparser"
)

// Enricher fills in missing event fields: identity, timestamp, and the
// device/browser/OS classification derived from the user agent. Substring
// rules are the canonical classifier; the uap parser backstops user agents
// the rules don't recognize.
type Enricher struct {
	parser *uaparser.Parser
}

func NewEnricher() *Enricher {
	return &Enricher{parser: uaparser.NewFromSaved()}
}

// Enrich mutates e in place. Fields already set by the caller are preserved.
func (en *Enricher) Enrich(e *ClickEvent) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.ClickedAt.IsZero() {
		e.ClickedAt = time.Now().UTC()
	}

	ua := strings.ToLower(e.UserAgent)
	if e.DeviceType == "" {
		e.DeviceType = classifyDevice(ua)
	}
	if e.Browser == "" {
		e.Browser = en.classifyBrowser(ua, e.UserAgent)
	}
	if e.OS == "" {
		e.OS = en.classifyOS(ua, e.UserAgent)
	}
}

func classifyDevice(ua string) string {
	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		return "Tablet"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "android"), strings.Contains(ua, "mobile"):
		return "Mobile"
	default:
		return "Desktop"
	}
}

func (en *Enricher) classifyBrowser(ua, raw string) string {
	switch {
	case strings.Contains(ua, "edg"):
		return "Edge"
	case strings.Contains(ua, "opr"), strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "chrome"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari"):
		return "Safari"
	case strings.Contains(ua, "msie"), strings.Contains(ua, "trident"):
		return "IE"
	}
	if family := en.parser.ParseUserAgent(raw).Family; family != "" && family != "Other" {
		return family
	}
	return "Unknown"
}

func (en *Enricher) classifyOS(ua, raw string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		return "iOS"
	case strings.Contains(ua, "mac"):
		return "macOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "linux"):
		return "Linux"
	}
	if family := en.parser.ParseOs(raw).Family; family != "" && family != "Other" {
		return family
	}
	return "Unknown"
}
