package ws

import (
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeConn struct {
	mu       sync.Mutex
	payloads []any
	writeErr error
	closed   bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.payloads = append(f.payloads, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestHubEmitReachesSubscribersOfCodeOnly(t *testing.T) {
	hub := NewHub(quietLogger())
	a, b, other := &fakeConn{}, &fakeConn{}, &fakeConn{}

	hub.Subscribe("abc1234", a)
	hub.Subscribe("abc1234", b)
	hub.Subscribe("zzz9999", other)

	delivered := hub.Emit("abc1234", map[string]string{"short_code": "abc1234"})
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, a.received())
	assert.Equal(t, 1, b.received())
	assert.Zero(t, other.received())
}

func TestHubEmitWithoutSubscribers(t *testing.T) {
	hub := NewHub(quietLogger())
	assert.Zero(t, hub.Emit("abc1234", "payload"))
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(quietLogger())
	conn := &fakeConn{}

	hub.Subscribe("abc1234", conn)
	assert.Equal(t, 1, hub.SubscriberCount("abc1234"))

	hub.Unsubscribe("abc1234", conn)
	assert.Zero(t, hub.SubscriberCount("abc1234"))
	assert.Zero(t, hub.Emit("abc1234", "payload"))

	// Double unsubscribe is a no-op.
	hub.Unsubscribe("abc1234", conn)
}

func TestHubReapsDeadConnections(t *testing.T) {
	hub := NewHub(quietLogger())
	live := &fakeConn{}
	dead := &fakeConn{writeErr: errors.New("broken pipe")}

	hub.Subscribe("abc1234", live)
	hub.Subscribe("abc1234", dead)

	delivered := hub.Emit("abc1234", "payload")
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, hub.SubscriberCount("abc1234"))
	assert.True(t, dead.closed)

	// The dead connection is gone for subsequent emits.
	assert.Equal(t, 1, hub.Emit("abc1234", "payload"))
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub(quietLogger())
	a, b := &fakeConn{}, &fakeConn{}
	hub.Subscribe("abc1234", a)
	hub.Subscribe("zzz9999", b)

	hub.CloseAll()
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Zero(t, hub.SubscriberCount("abc1234"))
	assert.Zero(t, hub.SubscriberCount("zzz9999"))
}

func TestHubStats(t *testing.T) {
	hub := NewHub(quietLogger())
	hub.Subscribe("abc1234", &fakeConn{})
	hub.Subscribe("abc1234", &fakeConn{})
	hub.Subscribe("zzz9999", &fakeConn{})

	stats := hub.Stats()
	assert.Equal(t, 2, stats["short_codes"])
	assert.Equal(t, 3, stats["subscribers"])
}

func TestHubConcurrentEmit(t *testing.T) {
	hub := NewHub(quietLogger())
	conn := &fakeConn{}
	hub.Subscribe("abc1234", conn)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Emit("abc1234", "payload")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, conn.received())
}
