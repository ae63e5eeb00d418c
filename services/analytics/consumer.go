package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/cache"
	"github.com/shortly-systems/shortly/utils/metrics"
)

const (
	consumerBatchSize = 1000
	consumerMaxWait   = 2 * time.Second
)

// Consumer drains the click stream into the analytics store in batches. It is
// at-least-once: a failed insert leaves the batch unacked for redelivery.
// It never re-emits WebSocket events; producer-side emission is canonical.
type Consumer struct {
	bus   *Bus
	store EventsInserter
	redis *cache.Redis
	log   *logrus.Entry

	cancel context.CancelFunc
	done   chan struct{}
}

func NewConsumer(bus *Bus, store EventsInserter, redisCache *cache.Redis, log *logrus.Logger) *Consumer {
	return &Consumer{
		bus:   bus,
		store: store,
		redis: redisCache,
		log:   log.WithField("component", "analytics-consumer"),
		done:  make(chan struct{}),
	}
}

// Start binds the durable subscription and runs the fetch loop until Stop.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.bus.PullSubscribe()
	if err != nil {
		return err
	}

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx, sub)
	c.log.Info("consumer started")
	return nil
}

func (c *Consumer) run(ctx context.Context, sub *nats.Subscription) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(consumerBatchSize, nats.MaxWait(consumerMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.log.WithError(err).Warn("fetch failed")
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		c.handleBatch(ctx, msgs)
	}
}

func (c *Consumer) handleBatch(ctx context.Context, msgs []*nats.Msg) {
	events := make([]ClickEvent, 0, len(msgs))
	for _, msg := range msgs {
		var e ClickEvent
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			// Poison message: ack so it never redelivers.
			c.log.WithError(err).Error("unparseable click event, discarding")
			msg.Ack()
			continue
		}
		events = append(events, e)
	}
	if len(events) == 0 {
		return
	}

	insertCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := c.store.InsertEvents(insertCtx, events)
	cancel()
	if err != nil {
		// Leave unacked; JetStream redelivers the batch.
		c.log.WithError(err).WithField("batch", len(events)).Warn("batch insert failed, will redeliver")
		for _, msg := range msgs {
			msg.Nak()
		}
		return
	}

	for _, msg := range msgs {
		msg.Ack()
	}
	metrics.AnalyticsPersisted.Add(float64(len(events)))
	invalidateSummaries(ctx, c.redis, events, c.log)
	c.log.WithField("batch", len(events)).Debug("batch committed")
}

// Stop halts the fetch loop and waits for the in-flight batch.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.done
	c.log.Info("consumer stopped")
}
