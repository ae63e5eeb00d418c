package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/metrics"
)

// Emitter is the WebSocket fanout capability.
type Emitter interface {
	Emit(shortCode string, payload any) int
}

// flushFunc persists a batch, returning the events that failed and should be
// re-queued.
type flushFunc func(ctx context.Context, batch []ClickEvent) (failed []ClickEvent)

// pipeline is the buffering core shared by the bus producer and the direct
// writer. It owns the one-WebSocket-emission-per-click invariant: Publish
// emits synchronously before enqueueing, and nothing downstream emits again.
type pipeline struct {
	mu  sync.Mutex
	buf []ClickEvent

	max      int
	interval time.Duration
	flush    flushFunc
	hub      Emitter
	enricher *Enricher
	path     string
	log      *logrus.Entry

	dropped atomic.Uint64
	stop    chan struct{}
	wg      sync.WaitGroup
}

func newPipeline(path string, hub Emitter, enricher *Enricher, max int, interval time.Duration, flush flushFunc, log *logrus.Logger) *pipeline {
	if max == 0 {
		max = 1000
	}
	if interval == 0 {
		interval = time.Second
	}
	p := &pipeline{
		buf:      make([]ClickEvent, 0, max),
		max:      max,
		interval: interval,
		flush:    flush,
		hub:      hub,
		enricher: enricher,
		path:     path,
		log:      log.WithField("component", "analytics-"+path),
		stop:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.flushLoop()
	return p
}

// Publish enriches the event, emits it to WebSocket subscribers exactly once,
// then enqueues it for the durable path. A full buffer triggers an async
// flush.
func (p *pipeline) Publish(ctx context.Context, e ClickEvent) {
	p.enricher.Enrich(&e)

	p.hub.Emit(e.ShortCode, e)

	p.mu.Lock()
	p.buf = append(p.buf, e)
	full := len(p.buf) >= p.max
	p.mu.Unlock()

	metrics.AnalyticsPublished.WithLabelValues(p.path).Inc()
	if full {
		go p.flushNow()
	}
}

func (p *pipeline) flushLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.flushNow()
		}
	}
}

func (p *pipeline) flushNow() {
	p.mu.Lock()
	if len(p.buf) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.buf
	p.buf = make([]ClickEvent, 0, p.max)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	failed := p.flush(ctx, batch)
	cancel()

	if len(failed) == 0 {
		return
	}

	// Re-queue failures within buffer capacity; the overflow is dropped and
	// counted so losses are never silent.
	p.mu.Lock()
	room := p.max - len(p.buf)
	requeued := failed
	if len(requeued) > room {
		requeued = requeued[:room]
	}
	p.buf = append(p.buf, requeued...)
	dropped := len(failed) - len(requeued)
	p.mu.Unlock()

	if dropped > 0 {
		p.dropped.Add(uint64(dropped))
		metrics.AnalyticsDropped.Add(float64(dropped))
		p.log.WithFields(logrus.Fields{"dropped": dropped, "total_dropped": p.dropped.Load()}).
			Error("analytics events dropped after buffer exhaustion")
	}
}

// Pending reports buffered, not-yet-flushed events.
func (p *pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Dropped reports the cumulative drop count.
func (p *pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// Close stops the timer and performs a final synchronous flush.
func (p *pipeline) Close() {
	close(p.stop)
	p.wg.Wait()
	p.flushNow()
}
