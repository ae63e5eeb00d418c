package analytics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/cache"
)

// SummaryStore is the warehouse capability the summarizer needs.
type SummaryStore interface {
	SummarizeDay(ctx context.Context, date time.Time) ([]DailySummary, error)
	SummarizeGlobal(ctx context.Context, date time.Time) (*GlobalSummary, error)
	StoreDailySummaries(ctx context.Context, summaries []DailySummary) error
	StoreGlobalSummary(ctx context.Context, sum *GlobalSummary) error
}

// Summarizer rolls raw events up into daily and global summaries once per
// day, shortly after UTC midnight, and primes the summary caches.
type Summarizer struct {
	store SummaryStore
	redis *cache.Redis
	log   *logrus.Entry

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// summaryCacheTTL keeps materialized roll-ups hot for a day.
const summaryCacheTTL = 24 * time.Hour

func NewSummarizer(store SummaryStore, redisCache *cache.Redis, log *logrus.Logger) *Summarizer {
	return &Summarizer{
		store: store,
		redis: redisCache,
		log:   log.WithField("component", "summarizer"),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start schedules the nightly run.
func (s *Summarizer) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			next := nextRunAfter(time.Now().UTC())
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(time.Until(next)):
				// Roll up the day that just ended.
				if err := s.RunOnce(ctx, next.AddDate(0, 0, -1)); err != nil {
					s.log.WithError(err).Error("nightly roll-up failed")
				}
			}
		}
	}()
}

// RunOnce summarizes a single date. Guarded against overlap so a slow run
// cannot stack on the next trigger.
func (s *Summarizer) RunOnce(ctx context.Context, date time.Time) error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("roll-up already running, skipping")
		return nil
	}
	defer s.running.Store(false)

	day := date.UTC().Format("2006-01-02")
	started := time.Now()

	daily, err := s.store.SummarizeDay(ctx, date)
	if err != nil {
		return err
	}
	if err := s.store.StoreDailySummaries(ctx, daily); err != nil {
		return err
	}

	global, err := s.store.SummarizeGlobal(ctx, date)
	if err != nil {
		return err
	}
	if err := s.store.StoreGlobalSummary(ctx, global); err != nil {
		return err
	}

	if s.redis != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		for _, sum := range daily {
			if err := s.redis.SetJSON(cacheCtx, cache.SummaryCacheKey(sum.ShortCode, day), sum, summaryCacheTTL); err != nil {
				s.log.WithError(err).Warn("summary cache prime failed")
				break
			}
		}
		if err := s.redis.SetJSON(cacheCtx, cache.GlobalSummaryCacheKey(day), global, summaryCacheTTL); err != nil {
			s.log.WithError(err).Warn("global summary cache prime failed")
		}
		cancel()
	}

	s.log.WithFields(logrus.Fields{
		"date":     day,
		"codes":    len(daily),
		"clicks":   global.TotalClicks,
		"duration": time.Since(started).String(),
	}).Info("roll-up complete")
	return nil
}

// Stop halts the scheduler.
func (s *Summarizer) Stop() {
	close(s.stop)
	<-s.done
}

// nextRunAfter returns the next 00:05 UTC after now; the five-minute offset
// lets late events land before the roll-up reads the day.
func nextRunAfter(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 5, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
