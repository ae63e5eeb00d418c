package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/services/shortener/domain"
	"github.com/shortly-systems/shortly/utils/apperror"
	"github.com/shortly-systems/shortly/utils/metrics"
)

// TombstoneKind marks a negative cache entry.
type TombstoneKind string

const (
	TombstoneMissing TombstoneKind = "missing"
	TombstoneExpired TombstoneKind = "expired"
	TombstoneDeleted TombstoneKind = "deleted"
)

// Entry is the logical cache value: either a mapping or a tombstone.
type Entry struct {
	Mapping   *domain.URLMapping `json:"mapping,omitempty"`
	Tombstone TombstoneKind      `json:"tombstone,omitempty"`
}

func (e Entry) IsTombstone() bool { return e.Tombstone != "" }

// Source identifies the layer that resolved a lookup.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceRedis    Source = "redis"
	SourceDatabase Source = "database"
	SourceNotFound Source = "not_found"
)

// Result is a lookup outcome.
type Result struct {
	Entry  Entry
	Source Source
}

// Loader is the L3 read path. It must return apperror.ErrURLNotFound when no
// non-deleted row exists.
type Loader interface {
	GetByShortCode(ctx context.Context, shortCode string) (*domain.URLMapping, error)
}

// MultiLayer composes L1 (LRU) + L2 (Redis) + L3 (store) with read-through,
// write-through and negative caching. L1/L2 failures are logged, never
// propagated.
type MultiLayer struct {
	lru    *LRU
	redis  *Redis
	loader Loader
	log    *logrus.Entry

	memoryTTL  time.Duration // L1, capped at 5 minutes
	hitTTL     time.Duration // L2 for live mappings
	missTTL    time.Duration // L2 for missing/deleted tombstones
	expiredTTL time.Duration // L2 for expired tombstones
}

// MultiLayerOptions override the default TTLs.
type MultiLayerOptions struct {
	LRUCapacity int
	MemoryTTL   time.Duration
	HitTTL      time.Duration
	MissTTL     time.Duration
	ExpiredTTL  time.Duration
}

func NewMultiLayer(redis *Redis, loader Loader, log *logrus.Logger, opts MultiLayerOptions) *MultiLayer {
	if opts.LRUCapacity == 0 {
		opts.LRUCapacity = 10000
	}
	if opts.MemoryTTL == 0 || opts.MemoryTTL > 5*time.Minute {
		opts.MemoryTTL = 5 * time.Minute
	}
	if opts.HitTTL == 0 {
		opts.HitTTL = time.Hour
	}
	if opts.MissTTL == 0 {
		opts.MissTTL = time.Hour
	}
	if opts.ExpiredTTL == 0 {
		opts.ExpiredTTL = 7 * 24 * time.Hour
	}
	return &MultiLayer{
		lru:        NewLRU(opts.LRUCapacity),
		redis:      redis,
		loader:     loader,
		log:        log.WithField("component", "multilayer-cache"),
		memoryTTL:  opts.MemoryTTL,
		hitTTL:     opts.HitTTL,
		missTTL:    opts.MissTTL,
		expiredTTL: opts.ExpiredTTL,
	}
}

// Lookup resolves a short code through the three layers. A database miss
// writes a missing-tombstone to L2 so repeated probes never reach the store.
func (m *MultiLayer) Lookup(ctx context.Context, shortCode string) (Result, error) {
	// L1
	if entry, ok := m.lru.Get(shortCode); ok {
		metrics.CacheLookups.WithLabelValues(string(SourceMemory)).Inc()
		if entry.IsTombstone() {
			metrics.TombstoneHits.WithLabelValues(string(entry.Tombstone)).Inc()
		}
		return Result{Entry: entry, Source: SourceMemory}, nil
	}

	// L2. Failures (including timeouts) fall through to the store.
	key := URLCacheKey(shortCode)
	var entry Entry
	opCtx, cancel := context.WithTimeout(ctx, DefaultOpTimeout)
	found, err := m.redis.GetJSON(opCtx, key, &entry)
	cancel()
	if err != nil {
		m.log.WithError(err).WithField("short_code", shortCode).Warn("L2 read failed, falling through")
	} else if found {
		metrics.CacheLookups.WithLabelValues(string(SourceRedis)).Inc()
		if entry.IsTombstone() {
			metrics.TombstoneHits.WithLabelValues(string(entry.Tombstone)).Inc()
		}
		m.lru.Put(shortCode, entry, m.l1TTL(entry))
		return Result{Entry: entry, Source: SourceRedis}, nil
	}

	// L3
	dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	mapping, err := m.loader.GetByShortCode(dbCtx, shortCode)
	cancel()
	if err != nil {
		if apperror.FromError(err).Code == apperror.CodeURLNotFound {
			metrics.CacheLookups.WithLabelValues(string(SourceNotFound)).Inc()
			tomb := Entry{Tombstone: TombstoneMissing}
			m.bestEffortSet(key, tomb, m.missTTL)
			return Result{Entry: tomb, Source: SourceNotFound}, nil
		}
		return Result{}, err
	}

	metrics.CacheLookups.WithLabelValues(string(SourceDatabase)).Inc()
	hit := Entry{Mapping: mapping}
	m.bestEffortSet(key, hit, m.l2TTL(hit))
	m.lru.Put(shortCode, hit, m.l1TTL(hit))
	return Result{Entry: hit, Source: SourceDatabase}, nil
}

// WriteThrough populates L2 and L1 after the store write has succeeded.
// Failures are best-effort.
func (m *MultiLayer) WriteThrough(ctx context.Context, mapping *domain.URLMapping) {
	entry := Entry{Mapping: mapping}
	m.bestEffortSet(URLCacheKey(mapping.ShortCode), entry, m.l2TTL(entry))
	m.lru.Put(mapping.ShortCode, entry, m.l1TTL(entry))
}

// Invalidate synchronously evicts a code from L1 and L2.
func (m *MultiLayer) Invalidate(ctx context.Context, shortCode string) error {
	m.lru.Delete(shortCode)
	opCtx, cancel := context.WithTimeout(ctx, DefaultOpTimeout)
	defer cancel()
	if err := m.redis.Delete(opCtx, URLCacheKey(shortCode)); err != nil {
		m.log.WithError(err).WithField("short_code", shortCode).Warn("L2 invalidation failed")
		return err
	}
	return nil
}

// MarkExpired writes an expired tombstone to L2 with the given TTL and drops
// the code from L1.
func (m *MultiLayer) MarkExpired(ctx context.Context, shortCode string, ttl time.Duration) {
	if ttl == 0 {
		ttl = m.expiredTTL
	}
	m.lru.Delete(shortCode)
	m.bestEffortSet(URLCacheKey(shortCode), Entry{Tombstone: TombstoneExpired}, ttl)
}

// MarkDeleted writes a deleted tombstone after a soft delete.
func (m *MultiLayer) MarkDeleted(ctx context.Context, shortCode string) {
	m.lru.Delete(shortCode)
	m.bestEffortSet(URLCacheKey(shortCode), Entry{Tombstone: TombstoneDeleted}, m.missTTL)
}

// Warmup batch-populates L1 and L2 with known-popular mappings.
func (m *MultiLayer) Warmup(ctx context.Context, mappings []*domain.URLMapping) error {
	pipe := m.redis.Pipeline()
	for _, mapping := range mappings {
		entry := Entry{Mapping: mapping}
		raw, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		pipe.Set(ctx, URLCacheKey(mapping.ShortCode), raw, m.l2TTL(entry))
		m.lru.Put(mapping.ShortCode, entry, m.l1TTL(entry))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Stats reports L1 effectiveness.
func (m *MultiLayer) Stats() map[string]any {
	hits, misses := m.lru.Counters()
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return map[string]any{
		"l1_entries":  m.lru.Len(),
		"l1_hits":     hits,
		"l1_misses":   misses,
		"l1_hit_rate": rate,
	}
}

func (m *MultiLayer) bestEffortSet(key string, entry Entry, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultOpTimeout)
	defer cancel()
	if err := m.redis.SetJSON(ctx, key, entry, ttl); err != nil {
		m.log.WithError(err).WithField("key", key).Warn("L2 write failed")
	}
}

// l1TTL caps the in-process lifetime at memoryTTL and never outlives the
// mapping's own expiry.
func (m *MultiLayer) l1TTL(entry Entry) time.Duration {
	ttl := m.memoryTTL
	if entry.Mapping != nil && entry.Mapping.ExpiresAt != nil {
		if until := time.Until(*entry.Mapping.ExpiresAt); until > 0 && until < ttl {
			ttl = until
		}
	}
	return ttl
}

func (m *MultiLayer) l2TTL(entry Entry) time.Duration {
	ttl := m.hitTTL
	if entry.Mapping != nil && entry.Mapping.ExpiresAt != nil {
		if until := time.Until(*entry.Mapping.ExpiresAt); until > 0 && until < ttl {
			ttl = until
		}
	}
	return ttl
}
