package idgen

import (
	"context"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/apperror"
	"github.com/shortly-systems/shortly/utils/database"
	"github.com/shortly-systems/shortly/utils/metrics"
)

// ErrAllocatorUnavailable is surfaced when a range reservation fails after
// retries; the façade falls back to the hash generator.
var ErrAllocatorUnavailable = &apperror.Error{
	Code:       "ALLOCATOR_UNAVAILABLE",
	Message:    "counter allocator could not reserve a range",
	HTTPStatus: http.StatusInternalServerError,
	Retryable:  true,
}

// RangeReserver reserves a contiguous id range [start, start+size) from the
// primary store inside a transaction.
type RangeReserver interface {
	ReserveRange(ctx context.Context, name string, size uint64) (start uint64, err error)
}

// CounterAllocator hands out monotonically increasing ids from an in-memory
// window, refilling from the store when the window is exhausted. The mutex is
// held only across cursor advancement and refill.
type CounterAllocator struct {
	mu     sync.Mutex
	cursor uint64
	end    uint64

	store  RangeReserver
	name   string
	batch  uint64
	policy database.RetryPolicy
	log    *logrus.Entry
}

func NewCounterAllocator(store RangeReserver, counterName string, batch uint64, log *logrus.Logger) *CounterAllocator {
	if batch == 0 {
		batch = 10000
	}
	return &CounterAllocator{
		store:  store,
		name:   counterName,
		batch:  batch,
		policy: database.DefaultRetryPolicy(),
		log:    log.WithField("component", "counter-allocator"),
	}
}

// Next returns the next id, reserving a fresh range when the current one is
// spent.
func (a *CounterAllocator) Next(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cursor == a.end {
		if err := a.refillLocked(ctx); err != nil {
			return 0, ErrAllocatorUnavailable.WithCause(err)
		}
	}
	id := a.cursor
	a.cursor++
	metrics.AllocatorRemaining.Set(float64(a.end - a.cursor))
	return id, nil
}

// PreAllocate forces range acquisition, typically at startup so the first
// request never pays the reservation round-trip.
func (a *CounterAllocator) PreAllocate(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cursor != a.end {
		return nil
	}
	if err := a.refillLocked(ctx); err != nil {
		return ErrAllocatorUnavailable.WithCause(err)
	}
	return nil
}

// Remaining reports unused ids in the current window.
func (a *CounterAllocator) Remaining() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.end - a.cursor
}

// CurrentRange reports the reserved window [start, end).
func (a *CounterAllocator) CurrentRange() (start, end uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor, a.end
}

func (a *CounterAllocator) refillLocked(ctx context.Context) error {
	var start uint64
	err := database.WithRetry(ctx, a.policy, func(ctx context.Context) error {
		var err error
		start, err = a.store.ReserveRange(ctx, a.name, a.batch)
		return err
	})
	if err != nil {
		a.log.WithError(err).Error("range reservation failed")
		return err
	}
	a.cursor = start
	a.end = start + a.batch
	metrics.AllocatorRemaining.Set(float64(a.batch))
	a.log.WithFields(logrus.Fields{"start": start, "end": a.end}).Info("reserved id range")
	return nil
}
