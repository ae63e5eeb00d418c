// Package domain resolves short codes into redirects. The hot path performs
// at most one synchronous cache/store round-trip; access counting and
// analytics run after the response.
package domain

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortly-systems/shortly/services/analytics"
	shortener "github.com/shortly-systems/shortly/services/shortener/domain"
	"github.com/shortly-systems/shortly/utils/apperror"
	"github.com/shortly-systems/shortly/utils/cache"
	"github.com/shortly-systems/shortly/utils/metrics"
)

// slowRedirectThreshold is the per-request latency SLO; anything over it is
// logged at warn.
const slowRedirectThreshold = 50 * time.Millisecond

// Resolver is the multi-layer cache capability the redirect path uses.
type Resolver interface {
	Lookup(ctx context.Context, shortCode string) (cache.Result, error)
	MarkExpired(ctx context.Context, shortCode string, ttl time.Duration)
	WriteThrough(ctx context.Context, m *shortener.URLMapping)
}

// AccessRecorder bumps access counters in the primary store.
type AccessRecorder interface {
	IncrementAccess(ctx context.Context, shortCode string) error
}

// ClickContext carries the request attributes an analytics event needs.
// Geo fields arrive pre-resolved from the edge collaborator.
type ClickContext struct {
	IPAddress   string
	UserAgent   string
	Referrer    string
	CountryCode string
	Region      string
	City        string
}

// Outcome is what the HTTP handler renders.
type Outcome struct {
	Status  int
	LongURL string
	ErrCode string
	Mapping *shortener.URLMapping
	Source  cache.Source
}

// Service implements redirect resolution.
type Service struct {
	resolver   Resolver
	store      AccessRecorder
	publisher  analytics.Publisher
	stats      *Stats
	expiredTTL time.Duration
	log        *logrus.Entry
	tracer     trace.Tracer
}

func NewService(resolver Resolver, store AccessRecorder, publisher analytics.Publisher, expiredTTL time.Duration, log *logrus.Logger) *Service {
	if expiredTTL == 0 {
		expiredTTL = 7 * 24 * time.Hour
	}
	return &Service{
		resolver:   resolver,
		store:      store,
		publisher:  publisher,
		stats:      &Stats{},
		expiredTTL: expiredTTL,
		log:        log.WithField("component", "redirect"),
		tracer:     otel.Tracer("redirect"),
	}
}

// Resolve maps a short code to its redirect outcome: 301 with the target,
// 400 on shape, 404 on missing/deleted, 410 on expired.
func (s *Service) Resolve(ctx context.Context, shortCode string) Outcome {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "redirect.resolve")
	defer span.End()

	outcome := s.resolve(ctx, shortCode)

	latency := time.Since(started)
	cacheHit := outcome.Source == cache.SourceMemory || outcome.Source == cache.SourceRedis
	s.stats.record(outcome.Status, latency, cacheHit)
	metrics.RedirectsTotal.WithLabelValues(strconv.Itoa(outcome.Status)).Inc()
	metrics.RedirectLatency.Observe(latency.Seconds())
	span.SetAttributes(
		attribute.String("short_code", shortCode),
		attribute.Int("status", outcome.Status),
		attribute.String("cache.source", string(outcome.Source)),
	)

	if latency > slowRedirectThreshold {
		s.log.WithFields(logrus.Fields{
			"short_code": shortCode,
			"latency_ms": latency.Milliseconds(),
			"source":     outcome.Source,
		}).Warn("slow redirect")
	}
	return outcome
}

func (s *Service) resolve(ctx context.Context, shortCode string) Outcome {
	if !shortener.IsValidShortCode(shortCode) {
		return Outcome{Status: http.StatusBadRequest, ErrCode: apperror.CodeInvalidShortCode}
	}

	result, err := s.resolver.Lookup(ctx, shortCode)
	if err != nil {
		s.log.WithError(err).WithField("short_code", shortCode).Error("lookup failed")
		return Outcome{Status: http.StatusInternalServerError, ErrCode: apperror.CodeStoreUnavailable, Source: result.Source}
	}

	entry := result.Entry
	switch entry.Tombstone {
	case cache.TombstoneMissing, cache.TombstoneDeleted:
		return Outcome{Status: http.StatusNotFound, ErrCode: apperror.CodeURLNotFound, Source: result.Source}
	case cache.TombstoneExpired:
		return Outcome{Status: http.StatusGone, ErrCode: apperror.CodeURLExpired, Source: result.Source}
	}

	mapping := entry.Mapping
	if mapping == nil {
		return Outcome{Status: http.StatusNotFound, ErrCode: apperror.CodeURLNotFound, Source: result.Source}
	}
	if mapping.IsExpired(time.Now()) {
		s.resolver.MarkExpired(ctx, shortCode, s.expiredTTL)
		return Outcome{Status: http.StatusGone, ErrCode: apperror.CodeURLExpired, Source: result.Source}
	}

	return Outcome{
		Status:  http.StatusMovedPermanently,
		LongURL: mapping.LongURL,
		Mapping: mapping,
		Source:  result.Source,
	}
}

// AfterRedirect runs the fire-and-forget follow-ups once the response has
// been written: access counting and analytics emission. Failures are logged,
// never surfaced.
func (s *Service) AfterRedirect(mapping *shortener.URLMapping, click ClickContext) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.store.IncrementAccess(ctx, mapping.ShortCode); err != nil {
		s.log.WithError(err).WithField("short_code", mapping.ShortCode).Warn("access count update failed")
	} else {
		refreshed := *mapping
		refreshed.AccessCount++
		now := time.Now()
		refreshed.LastAccessedAt = &now
		s.resolver.WriteThrough(ctx, &refreshed)
	}

	s.publisher.PublishClick(ctx, analytics.ClickEvent{
		ShortCode:   mapping.ShortCode,
		IPAddress:   click.IPAddress,
		UserAgent:   click.UserAgent,
		Referrer:    click.Referrer,
		CountryCode: click.CountryCode,
		Region:      click.Region,
		City:        click.City,
	})
}

// StatsSnapshot exposes the counters for the admin surface.
func (s *Service) StatsSnapshot() Snapshot {
	return s.stats.Snapshot()
}
