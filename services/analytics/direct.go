package analytics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/cache"
	"github.com/shortly-systems/shortly/utils/metrics"
)

// EventsInserter is the analytics store's bulk write surface.
type EventsInserter interface {
	InsertEvents(ctx context.Context, events []ClickEvent) error
}

// DirectWriter is the fallback path used when the bus is unreachable at
// startup: identical emit-then-buffer contract, with the flush targeting the
// analytics store directly. It must never run alongside the bus consumer.
type DirectWriter struct {
	*pipeline
	store EventsInserter
	redis *cache.Redis
	log   *logrus.Entry
}

func NewDirectWriter(store EventsInserter, redisCache *cache.Redis, hub Emitter, enricher *Enricher, bufferMax int, flushInterval time.Duration, log *logrus.Logger) *DirectWriter {
	w := &DirectWriter{
		store: store,
		redis: redisCache,
		log:   log.WithField("component", "analytics-direct"),
	}
	w.pipeline = newPipeline("direct", hub, enricher, bufferMax, flushInterval, w.flushToStore, log)
	return w
}

// PublishClick captures one click. Never blocks on store I/O.
func (w *DirectWriter) PublishClick(ctx context.Context, e ClickEvent) {
	w.Publish(ctx, e)
}

func (w *DirectWriter) flushToStore(ctx context.Context, batch []ClickEvent) []ClickEvent {
	if err := w.store.InsertEvents(ctx, batch); err != nil {
		w.log.WithError(err).WithField("batch", len(batch)).Warn("direct batch insert failed")
		return batch
	}
	metrics.AnalyticsPersisted.Add(float64(len(batch)))
	invalidateSummaries(ctx, w.redis, batch, w.log)
	return nil
}

// invalidateSummaries drops the cached roll-ups for every short code touched
// by a persisted batch. Shared by the direct writer and the bus consumer.
func invalidateSummaries(ctx context.Context, redisCache *cache.Redis, batch []ClickEvent, log *logrus.Entry) {
	if redisCache == nil {
		return
	}
	seen := make(map[string]struct{}, len(batch))
	keys := make([]string, 0, len(batch))
	for _, e := range batch {
		if _, ok := seen[e.ShortCode]; ok {
			continue
		}
		seen[e.ShortCode] = struct{}{}
		date := e.ClickedAt.UTC().Format("2006-01-02")
		keys = append(keys, cache.SummaryCacheKey(e.ShortCode, date))
	}
	if len(keys) == 0 {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, cache.DefaultOpTimeout)
	defer cancel()
	if err := redisCache.Delete(opCtx, keys...); err != nil {
		log.WithError(err).Warn("summary cache invalidation failed")
	}
}
