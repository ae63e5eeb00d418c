// Package ratelimit implements tiered token-bucket admission control with
// state shared through the distributed cache, so every instance sees the same
// budget per principal.
package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/utils/cache"
	"github.com/shortly-systems/shortly/utils/config"
	"github.com/shortly-systems/shortly/utils/metrics"
)

// Tier is the rate-limit class of a principal.
type Tier string

const (
	TierAnonymous  Tier = "anonymous"
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
	TierStrict     Tier = "strict"
)

// Limits is the bucket shape for a tier.
type Limits struct {
	Window time.Duration
	Max    int
}

// Decision is the admission outcome plus the header values for it.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds; only meaningful when denied
}

// Limiter evaluates buckets stored as Redis hash fields
// {tokens, last_refill, reset_time} under ratelimit:{principal}.
type Limiter struct {
	redis  *cache.Redis
	limits map[Tier]Limits
	log    *logrus.Entry
	now    func() time.Time
}

func New(redisCache *cache.Redis, cfg *config.Config, log *logrus.Logger) *Limiter {
	window := cfg.RateLimitWindow()
	return &Limiter{
		redis: redisCache,
		limits: map[Tier]Limits{
			TierAnonymous:  {Window: window, Max: cfg.RateLimit.Tiers.Anonymous},
			TierStandard:   {Window: window, Max: cfg.RateLimit.Tiers.Standard},
			TierPremium:    {Window: window, Max: cfg.RateLimit.Tiers.Premium},
			TierEnterprise: {Window: window, Max: cfg.RateLimit.Tiers.Enterprise},
			TierStrict:     {Window: window, Max: cfg.RateLimit.Tiers.Strict},
		},
		log: log.WithField("component", "ratelimit"),
		now: time.Now,
	}
}

// Consume takes one token for the principal. On any cache failure the
// limiter fails open: the request is admitted and the failure logged.
func (l *Limiter) Consume(ctx context.Context, principal string, tier Tier) Decision {
	limits, ok := l.limits[tier]
	if !ok {
		limits = l.limits[TierAnonymous]
	}

	key := cache.RateLimitKey(principal)
	now := l.now()

	opCtx, cancel := context.WithTimeout(ctx, cache.DefaultOpTimeout)
	defer cancel()

	state, err := l.redis.HGetAll(opCtx, key)
	if err != nil {
		l.log.WithError(err).Warn("limiter state read failed, failing open")
		metrics.RateLimitDecisions.WithLabelValues(string(tier), "fail_open").Inc()
		return Decision{Allowed: true, Limit: limits.Max, Remaining: limits.Max, ResetAt: now.Add(limits.Window)}
	}

	tokens, lastRefill, resetTime := parseState(state)
	if len(state) == 0 {
		tokens = limits.Max
		lastRefill = now
		resetTime = now.Add(limits.Window)
	} else if !now.Before(resetTime) {
		tokens = limits.Max
		lastRefill = now
		resetTime = now.Add(limits.Window)
	} else {
		elapsed := now.Sub(lastRefill)
		if refill := int(float64(limits.Max) * elapsed.Seconds() / limits.Window.Seconds()); refill > 0 {
			tokens += refill
			if tokens > limits.Max {
				tokens = limits.Max
			}
			lastRefill = now
		}
	}

	decision := Decision{Limit: limits.Max, ResetAt: resetTime}
	if tokens > 0 {
		tokens--
		decision.Allowed = true
		decision.Remaining = tokens
	} else {
		decision.RetryAfter = int(math.Ceil(resetTime.Sub(now).Seconds()))
		if decision.RetryAfter < 1 {
			decision.RetryAfter = 1
		}
	}

	fields := map[string]any{
		"tokens":      tokens,
		"last_refill": lastRefill.UnixMilli(),
		"reset_time":  resetTime.UnixMilli(),
	}
	if err := l.redis.HSetWithExpiry(opCtx, key, fields, limits.Window); err != nil {
		l.log.WithError(err).Warn("limiter state write failed, failing open")
		metrics.RateLimitDecisions.WithLabelValues(string(tier), "fail_open").Inc()
		decision.Allowed = true
		return decision
	}

	if decision.Allowed {
		metrics.RateLimitDecisions.WithLabelValues(string(tier), "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(string(tier), "denied").Inc()
	}
	return decision
}

func parseState(state map[string]string) (tokens int, lastRefill, resetTime time.Time) {
	tokens, _ = strconv.Atoi(state["tokens"])
	if ms, err := strconv.ParseInt(state["last_refill"], 10, 64); err == nil {
		lastRefill = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(state["reset_time"], 10, 64); err == nil {
		resetTime = time.UnixMilli(ms)
	}
	return tokens, lastRefill, resetTime
}
