package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/config"
)

const (
	// StreamName is the durable click stream.
	StreamName = "URL_CLICKS"
	// Subject carries raw click events.
	Subject = "url.clicks"
	// ConsumerName is the durable consumer the batch inserter binds to.
	ConsumerName = "analytics-event-consumer"

	streamRetention = 7 * 24 * time.Hour
)

// Bus wraps the JetStream connection for the click pipeline.
type Bus struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *logrus.Entry
}

// ConnectBus dials the bus within the boot probe window. A failure here is
// the signal to activate the direct writer instead.
func ConnectBus(cfg *config.Config, log *logrus.Logger) (*Bus, error) {
	nc, err := nats.Connect(strings.Join(cfg.Bus.Brokers, ","),
		nats.Name(cfg.Bus.ClientID),
		nats.Timeout(cfg.BusConnectTimeout()),
		nats.RetryOnFailedConnect(false),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bus connect: %w", err)
	}

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(1000))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	bus := &Bus{nc: nc, js: js, log: log.WithField("component", "bus")}
	if err := bus.ensureStream(cfg.Bus.Replicas); err != nil {
		nc.Close()
		return nil, err
	}

	bus.log.WithField("brokers", cfg.Bus.Brokers).Info("connected to message bus")
	return bus, nil
}

// ensureStream creates or updates the click stream: 7-day retention,
// delete-style cleanup, compressed file storage.
func (b *Bus) ensureStream(replicas int) error {
	cfg := &nats.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{Subject},
		Retention:   nats.LimitsPolicy,
		Discard:     nats.DiscardOld,
		MaxAge:      streamRetention,
		Storage:     nats.FileStorage,
		Replicas:    replicas,
		Compression: nats.S2Compression,
		Duplicates:  2 * time.Minute,
	}

	_, err := b.js.AddStream(cfg)
	if err == nats.ErrStreamNameAlreadyInUse {
		_, err = b.js.UpdateStream(cfg)
	}
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}
	return nil
}

// PublishAsync hands one serialized event to JetStream.
func (b *Bus) PublishAsync(payload []byte) (nats.PubAckFuture, error) {
	return b.js.PublishAsync(Subject, payload)
}

// PublishAsyncComplete signals when all outstanding async publishes resolved.
func (b *Bus) PublishAsyncComplete() <-chan struct{} {
	return b.js.PublishAsyncComplete()
}

// PullSubscribe binds the durable batch consumer.
func (b *Bus) PullSubscribe() (*nats.Subscription, error) {
	return b.js.PullSubscribe(Subject, ConsumerName,
		nats.BindStream(StreamName),
		nats.AckExplicit(),
		nats.MaxAckPending(5000),
	)
}

// Close drains in-flight messages before disconnecting.
func (b *Bus) Close() {
	if err := b.nc.Drain(); err != nil {
		b.log.WithError(err).Warn("bus drain failed")
		b.nc.Close()
	}
}
