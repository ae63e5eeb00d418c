// Package expiry retires mappings past their TTL and evicts them from the
// caches.
package expiry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/metrics"
)

// Store is the batch-retire capability.
type Store interface {
	MarkExpiredBatch(ctx context.Context, limit int) ([]string, error)
}

// Cache is the eviction capability.
type Cache interface {
	MarkExpired(ctx context.Context, shortCode string, ttl time.Duration)
	Invalidate(ctx context.Context, shortCode string) error
}

// Sweeper periodically marks expired rows deleted and tombstones their cache
// entries. A running flag makes overlapping ticks no-ops.
type Sweeper struct {
	store        Store
	cache        Cache
	interval     time.Duration
	batchSize    int
	tombstoneTTL time.Duration
	log          *logrus.Entry

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

func NewSweeper(store Store, cache Cache, interval time.Duration, batchSize int, tombstoneTTL time.Duration, log *logrus.Logger) *Sweeper {
	if interval == 0 {
		interval = time.Minute
	}
	if batchSize == 0 {
		batchSize = 500
	}
	if tombstoneTTL == 0 {
		tombstoneTTL = 7 * 24 * time.Hour
	}
	return &Sweeper{
		store:        store,
		cache:        cache,
		interval:     interval,
		batchSize:    batchSize,
		tombstoneTTL: tombstoneTTL,
		log:          log.WithField("component", "expiry-sweeper"),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop or context cancellation.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.SweepOnce(ctx); err != nil {
					s.log.WithError(err).Error("sweep failed")
				} else if n > 0 {
					s.log.WithField("swept", n).Info("retired expired mappings")
				}
			}
		}
	}()
}

// SweepOnce retires one batch. Idempotent under overlap: a second caller
// returns immediately while a sweep is in flight.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer s.running.Store(false)

	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	codes, err := s.store.MarkExpiredBatch(sweepCtx, s.batchSize)
	if err != nil {
		return 0, err
	}

	for _, code := range codes {
		// Drop the stale mapping first, then leave the expired tombstone.
		if err := s.cache.Invalidate(sweepCtx, code); err != nil {
			s.log.WithError(err).WithField("short_code", code).Warn("cache invalidation failed")
		}
		s.cache.MarkExpired(sweepCtx, code, s.tombstoneTTL)
	}

	metrics.ExpiredSwept.Add(float64(len(codes)))
	return len(codes), nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}
