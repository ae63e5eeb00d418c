package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortly-systems/shortly/utils/cache"
	"github.com/shortly-systems/shortly/utils/config"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg, err := config.Load("")
	require.NoError(t, err)

	limiter := New(cache.NewRedisFromClient(client, log), cfg, log)
	now := time.Now()
	limiter.now = func() time.Time { return now }
	return limiter, mr, &now
}

func TestConsumeWithinBudget(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)

	d := limiter.Consume(context.Background(), "user:u1", TierStrict)
	assert.True(t, d.Allowed)
	assert.Equal(t, 10, d.Limit)
	assert.Equal(t, 9, d.Remaining)
	assert.Zero(t, d.RetryAfter)
}

func TestConsumeExhaustsBudget(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		d := limiter.Consume(context.Background(), "user:u1", TierStrict)
		require.True(t, d.Allowed, "request %d should pass", i+1)
		assert.Equal(t, 9-i, d.Remaining)
	}

	d := limiter.Consume(context.Background(), "user:u1", TierStrict)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.GreaterOrEqual(t, d.RetryAfter, 1)
	assert.LessOrEqual(t, d.RetryAfter, 60)
}

func TestConsumeIsolatesPrincipals(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		limiter.Consume(context.Background(), "user:u1", TierStrict)
	}
	assert.False(t, limiter.Consume(context.Background(), "user:u1", TierStrict).Allowed)
	assert.True(t, limiter.Consume(context.Background(), "user:u2", TierStrict).Allowed)
}

func TestConsumeWindowReset(t *testing.T) {
	limiter, _, now := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		limiter.Consume(context.Background(), "user:u1", TierStrict)
	}
	require.False(t, limiter.Consume(context.Background(), "user:u1", TierStrict).Allowed)

	// After the window elapses the bucket refills completely.
	*now = now.Add(61 * time.Second)
	d := limiter.Consume(context.Background(), "user:u1", TierStrict)
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
}

func TestConsumeGradualRefill(t *testing.T) {
	limiter, _, now := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		limiter.Consume(context.Background(), "user:u1", TierStrict)
	}
	require.False(t, limiter.Consume(context.Background(), "user:u1", TierStrict).Allowed)

	// Half the window at 10 tokens/window earns 5 tokens back.
	*now = now.Add(30 * time.Second)
	d := limiter.Consume(context.Background(), "user:u1", TierStrict)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestConsumeUnknownTierFallsBackToAnonymous(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)

	d := limiter.Consume(context.Background(), "user:u1", Tier("made-up"))
	assert.True(t, d.Allowed)
	assert.Equal(t, 100, d.Limit)
}

func TestConsumeTierBudgets(t *testing.T) {
	limiter, _, _ := newTestLimiter(t)

	cases := map[Tier]int{
		TierAnonymous:  100,
		TierStandard:   1000,
		TierPremium:    5000,
		TierEnterprise: 20000,
		TierStrict:     10,
	}
	for tier, limit := range cases {
		d := limiter.Consume(context.Background(), "user:"+string(tier), tier)
		assert.Equal(t, limit, d.Limit, "tier %s", tier)
		assert.Equal(t, limit-1, d.Remaining, "tier %s", tier)
	}
}

func TestConsumeFailsOpenOnCacheOutage(t *testing.T) {
	limiter, mr, _ := newTestLimiter(t)
	mr.Close()

	d := limiter.Consume(context.Background(), "user:u1", TierStrict)
	assert.True(t, d.Allowed)
}
