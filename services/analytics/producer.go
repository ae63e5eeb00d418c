package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher is the click capture entry point the redirect path uses. Both
// implementations (bus producer, direct writer) are non-blocking and emit the
// WebSocket event synchronously before buffering.
type Publisher interface {
	PublishClick(ctx context.Context, e ClickEvent)
	Pending() int
	Dropped() uint64
	Close()
}

// busPublisher is the slice of Bus the producer needs; tests fake it.
type busPublisher interface {
	PublishAsync(payload []byte) (nats.PubAckFuture, error)
	PublishAsyncComplete() <-chan struct{}
}

// BusProducer buffers click events and flushes them to the durable bus.
type BusProducer struct {
	*pipeline
	bus busPublisher
	log *logrus.Entry
}

func NewBusProducer(bus busPublisher, hub Emitter, enricher *Enricher, bufferMax int, flushInterval time.Duration, log *logrus.Logger) *BusProducer {
	p := &BusProducer{
		bus: bus,
		log: log.WithField("component", "analytics-producer"),
	}
	p.pipeline = newPipeline("bus", hub, enricher, bufferMax, flushInterval, p.flushToBus, log)
	return p
}

// PublishClick captures one click. Never blocks on bus I/O.
func (p *BusProducer) PublishClick(ctx context.Context, e ClickEvent) {
	p.Publish(ctx, e)
}

// flushToBus publishes the batch asynchronously and returns the events whose
// acks failed so the pipeline can re-queue them.
func (p *BusProducer) flushToBus(ctx context.Context, batch []ClickEvent) []ClickEvent {
	futures := make([]nats.PubAckFuture, len(batch))
	var failed []ClickEvent

	for i, e := range batch {
		payload, err := json.Marshal(e)
		if err != nil {
			p.log.WithError(err).WithField("event_id", e.EventID).Error("event marshal failed")
			continue
		}
		future, err := p.bus.PublishAsync(payload)
		if err != nil {
			failed = append(failed, e)
			continue
		}
		futures[i] = future
	}

	select {
	case <-p.bus.PublishAsyncComplete():
	case <-ctx.Done():
	}

	for i, future := range futures {
		if future == nil {
			continue
		}
		select {
		case <-future.Ok():
		case err := <-future.Err():
			p.log.WithError(err).Warn("bus publish rejected")
			failed = append(failed, batch[i])
		default:
			// Ack still outstanding past the flush deadline; treat as failed.
			failed = append(failed, batch[i])
		}
	}
	return failed
}
