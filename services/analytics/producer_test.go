package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFuture struct {
	ok  chan *nats.PubAck
	err chan error
}

func ackedFuture() *fakeFuture {
	f := &fakeFuture{ok: make(chan *nats.PubAck, 1), err: make(chan error, 1)}
	f.ok <- &nats.PubAck{Stream: StreamName, Sequence: 1}
	return f
}

func nackedFuture(err error) *fakeFuture {
	f := &fakeFuture{ok: make(chan *nats.PubAck, 1), err: make(chan error, 1)}
	f.err <- err
	return f
}

func (f *fakeFuture) Ok() <-chan *nats.PubAck { return f.ok }
func (f *fakeFuture) Err() <-chan error       { return f.err }
func (f *fakeFuture) Msg() *nats.Msg          { return nil }

type fakeBus struct {
	mu       sync.Mutex
	payloads [][]byte
	pubErr   error
	futures  []nats.PubAckFuture
	next     int
}

func (f *fakeBus) PublishAsync(payload []byte) (nats.PubAckFuture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	f.payloads = append(f.payloads, payload)
	if f.next < len(f.futures) {
		future := f.futures[f.next]
		f.next++
		return future, nil
	}
	return ackedFuture(), nil
}

func (f *fakeBus) PublishAsyncComplete() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

func (f *fakeBus) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func TestBusProducerPublishesEnrichedEvents(t *testing.T) {
	bus := &fakeBus{}
	hub := newCountingEmitter()
	p := NewBusProducer(bus, hub, NewEnricher(), 100, time.Hour, quietLogger())
	defer p.Close()

	p.PublishClick(context.Background(), ClickEvent{ShortCode: "abc1234", UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0"})
	assert.Equal(t, 1, hub.count("abc1234"))

	p.flushNow()
	require.Equal(t, 1, bus.published())

	var e ClickEvent
	require.NoError(t, json.Unmarshal(bus.payloads[0], &e))
	assert.Equal(t, "abc1234", e.ShortCode)
	assert.NotEmpty(t, e.EventID)
	assert.False(t, e.ClickedAt.IsZero())
	assert.Equal(t, "Chrome", e.Browser)
}

func TestBusProducerEmitsBeforeBusOutcomeIsKnown(t *testing.T) {
	// Publishes fail outright, yet the live feed still sees each click once.
	bus := &fakeBus{pubErr: nats.ErrConnectionClosed}
	hub := newCountingEmitter()
	p := NewBusProducer(bus, hub, NewEnricher(), 100, time.Hour, quietLogger())

	p.PublishClick(context.Background(), ClickEvent{ShortCode: "abc1234"})
	p.flushNow()

	assert.Equal(t, 1, hub.count("abc1234"))
	assert.Equal(t, 1, p.Pending())
	bus.mu.Lock()
	bus.pubErr = nil
	bus.mu.Unlock()
	p.Close()
	assert.Equal(t, 1, hub.count("abc1234"))
}

func TestBusProducerRequeuesRejectedEvents(t *testing.T) {
	bus := &fakeBus{futures: []nats.PubAckFuture{
		ackedFuture(),
		nackedFuture(nats.ErrTimeout),
	}}
	hub := newCountingEmitter()
	p := NewBusProducer(bus, hub, NewEnricher(), 100, time.Hour, quietLogger())

	p.PublishClick(context.Background(), ClickEvent{ShortCode: "aaa1111"})
	p.PublishClick(context.Background(), ClickEvent{ShortCode: "bbb2222"})
	p.flushNow()

	// The acked event is gone, the rejected one is waiting for the next flush.
	assert.Equal(t, 1, p.Pending())
	assert.Zero(t, p.Dropped())
	p.Close()
}
