package domain

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortly-systems/shortly/services/analytics"
	shortener "github.com/shortly-systems/shortly/services/shortener/domain"
	"github.com/shortly-systems/shortly/utils/apperror"
	"github.com/shortly-systems/shortly/utils/cache"
)

type fakeResolver struct {
	mu       sync.Mutex
	results  map[string]cache.Result
	err      error
	expired  []string
	written  []string
}

func (f *fakeResolver) Lookup(ctx context.Context, shortCode string) (cache.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return cache.Result{}, f.err
	}
	if res, ok := f.results[shortCode]; ok {
		return res, nil
	}
	return cache.Result{Entry: cache.Entry{Tombstone: cache.TombstoneMissing}, Source: cache.SourceNotFound}, nil
}

func (f *fakeResolver) MarkExpired(ctx context.Context, shortCode string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, shortCode)
}

func (f *fakeResolver) WriteThrough(ctx context.Context, m *shortener.URLMapping) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, m.ShortCode)
}

type fakeRecorder struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (f *fakeRecorder) IncrementAccess(ctx context.Context, shortCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.codes = append(f.codes, shortCode)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []analytics.ClickEvent
}

func (f *fakePublisher) PublishClick(ctx context.Context, e analytics.ClickEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakePublisher) Pending() int    { return 0 }
func (f *fakePublisher) Dropped() uint64 { return 0 }
func (f *fakePublisher) Close()          {}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func liveResult(code, longURL string, src cache.Source) cache.Result {
	return cache.Result{
		Entry:  cache.Entry{Mapping: &shortener.URLMapping{ShortCode: code, LongURL: longURL}},
		Source: src,
	}
}

func TestResolveOutcomes(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	resolver := &fakeResolver{results: map[string]cache.Result{
		"live123": liveResult("live123", "https://example.com", cache.SourceMemory),
		"deleted1": {
			Entry:  cache.Entry{Tombstone: cache.TombstoneDeleted},
			Source: cache.SourceRedis,
		},
		"expired1": {
			Entry:  cache.Entry{Tombstone: cache.TombstoneExpired},
			Source: cache.SourceRedis,
		},
		"stale123": {
			Entry: cache.Entry{Mapping: &shortener.URLMapping{
				ShortCode: "stale123", LongURL: "https://example.com", ExpiresAt: &past,
			}},
			Source: cache.SourceMemory,
		},
	}}
	svc := NewService(resolver, &fakeRecorder{}, &fakePublisher{}, 0, quietLogger())

	cases := []struct {
		code    string
		status  int
		errCode string
	}{
		{"live123", http.StatusMovedPermanently, ""},
		{"no_such1", http.StatusNotFound, apperror.CodeURLNotFound},
		{"deleted1", http.StatusNotFound, apperror.CodeURLNotFound},
		{"expired1", http.StatusGone, apperror.CodeURLExpired},
		{"stale123", http.StatusGone, apperror.CodeURLExpired},
		{"x!", http.StatusBadRequest, apperror.CodeInvalidShortCode},
	}
	for _, tc := range cases {
		outcome := svc.Resolve(context.Background(), tc.code)
		assert.Equal(t, tc.status, outcome.Status, "code %q", tc.code)
		assert.Equal(t, tc.errCode, outcome.ErrCode, "code %q", tc.code)
	}

	// The stale mapping must have been tombstoned on the way out.
	assert.Contains(t, resolver.expired, "stale123")
}

func TestResolveSuccessCarriesTarget(t *testing.T) {
	resolver := &fakeResolver{results: map[string]cache.Result{
		"live123": liveResult("live123", "https://example.com/landing", cache.SourceRedis),
	}}
	svc := NewService(resolver, &fakeRecorder{}, &fakePublisher{}, 0, quietLogger())

	outcome := svc.Resolve(context.Background(), "live123")
	require.Equal(t, http.StatusMovedPermanently, outcome.Status)
	assert.Equal(t, "https://example.com/landing", outcome.LongURL)
	require.NotNil(t, outcome.Mapping)
	assert.Equal(t, cache.SourceRedis, outcome.Source)
}

func TestResolveLookupFailure(t *testing.T) {
	resolver := &fakeResolver{err: apperror.ErrStoreUnavailable}
	svc := NewService(resolver, &fakeRecorder{}, &fakePublisher{}, 0, quietLogger())

	outcome := svc.Resolve(context.Background(), "live123")
	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	assert.Equal(t, apperror.CodeStoreUnavailable, outcome.ErrCode)
}

func TestAfterRedirectRecordsAndPublishes(t *testing.T) {
	resolver := &fakeResolver{results: map[string]cache.Result{}}
	recorder := &fakeRecorder{}
	publisher := &fakePublisher{}
	svc := NewService(resolver, recorder, publisher, 0, quietLogger())

	mapping := &shortener.URLMapping{ShortCode: "live123", LongURL: "https://example.com", AccessCount: 41}
	svc.AfterRedirect(mapping, ClickContext{
		IPAddress:   "203.0.113.9",
		UserAgent:   "Mozilla/5.0",
		Referrer:    "https://twitter.com",
		CountryCode: "DE",
	})

	assert.Equal(t, []string{"live123"}, recorder.codes)
	require.Len(t, resolver.written, 1)

	require.Len(t, publisher.events, 1)
	e := publisher.events[0]
	assert.Equal(t, "live123", e.ShortCode)
	assert.Equal(t, "203.0.113.9", e.IPAddress)
	assert.Equal(t, "DE", e.CountryCode)
	assert.Equal(t, "https://twitter.com", e.Referrer)
}

func TestAfterRedirectSkipsWriteThroughWhenCountFails(t *testing.T) {
	resolver := &fakeResolver{results: map[string]cache.Result{}}
	recorder := &fakeRecorder{err: apperror.ErrStoreUnavailable}
	publisher := &fakePublisher{}
	svc := NewService(resolver, recorder, publisher, 0, quietLogger())

	svc.AfterRedirect(&shortener.URLMapping{ShortCode: "live123", LongURL: "https://example.com"}, ClickContext{})

	assert.Empty(t, resolver.written)
	// The click is still published; analytics must not depend on the counter.
	assert.Len(t, publisher.events, 1)
}

func TestStatsSnapshot(t *testing.T) {
	resolver := &fakeResolver{results: map[string]cache.Result{
		"live123": liveResult("live123", "https://example.com", cache.SourceMemory),
	}}
	svc := NewService(resolver, &fakeRecorder{}, &fakePublisher{}, 0, quietLogger())

	svc.Resolve(context.Background(), "live123")
	svc.Resolve(context.Background(), "no_such1")

	snap := svc.StatsSnapshot()
	assert.Equal(t, uint64(2), snap.Total)
	assert.Equal(t, uint64(1), snap.Success)
	assert.Equal(t, uint64(1), snap.NotFound)
	assert.InDelta(t, 0.5, snap.CacheHitRate, 0.01)
}
