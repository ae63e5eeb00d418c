package idgen

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Method records which path produced an id.
type Method string

const (
	MethodCounter Method = "counter"
	MethodHash    Method = "hash"
)

// Capability summarizes which generation paths are currently usable.
type Capability string

const (
	CapabilityBoth         Capability = "both-available"
	CapabilityCounter      Capability = "counter"
	CapabilityHashFallback Capability = "hash-fallback"
	CapabilityUnavailable  Capability = "unavailable"
)

// Status is the observability snapshot for the façade.
type Status struct {
	Capability Capability `json:"capability"`
	Remaining  uint64     `json:"allocatorRemaining"`
	RangeStart uint64     `json:"rangeStart"`
	RangeEnd   uint64     `json:"rangeEnd"`
}

// Generator chooses between the counter and hash paths and verifies
// uniqueness against the store.
type Generator struct {
	counter *CounterAllocator
	hash    *HashGenerator
	exists  ExistsChecker

	minLength  int
	maxRetries int

	counterHealthy atomic.Bool
	hashHealthy    atomic.Bool

	log *logrus.Entry
}

func NewGenerator(counter *CounterAllocator, hash *HashGenerator, exists ExistsChecker, minLength, maxRetries int, log *logrus.Logger) *Generator {
	if minLength == 0 {
		minLength = 7
	}
	if maxRetries == 0 {
		maxRetries = 3
	}
	g := &Generator{
		counter:    counter,
		hash:       hash,
		exists:     exists,
		minLength:  minLength,
		maxRetries: maxRetries,
		log:        log.WithField("component", "id-generator"),
	}
	g.counterHealthy.Store(true)
	g.hashHealthy.Store(true)
	return g
}

// GenerateID returns a unique short code, the method that produced it, and
// the number of attempts. Counter ids are monotone so no uniqueness recheck
// is strictly needed, but a single existence probe guards against historical
// divergences between the counter row and the mappings table.
func (g *Generator) GenerateID(ctx context.Context) (string, Method, int, error) {
	attempts := 0
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		attempts++
		n, err := g.counter.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrAllocatorUnavailable) {
				g.counterHealthy.Store(false)
				g.log.WithError(err).Warn("allocator unavailable, falling back to hash generation")
				return g.generateHash(ctx, attempts)
			}
			return "", MethodCounter, attempts, err
		}
		g.counterHealthy.Store(true)

		code := EncodeMinLen(n, g.minLength)
		taken, err := g.exists.ShortCodeExists(ctx, code)
		if err != nil {
			return "", MethodCounter, attempts, err
		}
		if !taken {
			return code, MethodCounter, attempts, nil
		}
		// A counter id colliding with an existing row means the counter was
		// rewound at some point; skip it and take the next id.
		g.log.WithField("short_code", code).Warn("counter id already present in store, skipping")
	}
	return g.generateHash(ctx, attempts)
}

func (g *Generator) generateHash(ctx context.Context, priorAttempts int) (string, Method, int, error) {
	code, attempts, err := g.hash.Random(ctx, g.minLength)
	if err != nil {
		g.hashHealthy.Store(false)
		return "", MethodHash, priorAttempts + attempts, err
	}
	g.hashHealthy.Store(true)
	return code, MethodHash, priorAttempts + attempts, nil
}

// GetStatus reports current capabilities and allocator capacity.
func (g *Generator) GetStatus() Status {
	start, end := g.counter.CurrentRange()
	st := Status{
		Remaining:  end - start,
		RangeStart: start,
		RangeEnd:   end,
	}
	counterOK := g.counterHealthy.Load()
	hashOK := g.hashHealthy.Load()
	switch {
	case counterOK && hashOK:
		st.Capability = CapabilityBoth
	case counterOK:
		st.Capability = CapabilityCounter
	case hashOK:
		st.Capability = CapabilityHashFallback
	default:
		st.Capability = CapabilityUnavailable
	}
	return st
}
