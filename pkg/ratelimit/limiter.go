// Package ratelimit implements fixed-window request counting.
//
// A window is identified by floor(now/window), so a client can push up to
// 2×max requests across a window boundary (max at the end of window N, max at
// the start of N+1). That burst is accepted behavior.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Policy is a window/ceiling pair for one route class.
type Policy struct {
	Window time.Duration
	Max    int
}

var (
	AuthPolicy  = Policy{Window: 15 * time.Minute, Max: 5}
	AdminPolicy = Policy{Window: time.Minute, Max: 30}
	APIPolicy   = Policy{Window: time.Minute, Max: 60}
)

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter counts requests for one partition (route class). Partitions never
// share keys, so one class cannot spend another's budget.
type Limiter struct {
	name   string
	policy Policy
	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Limiter)

func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func NewLimiter(name string, policy Policy, opts ...Option) *Limiter {
	l := &Limiter{
		name:   name,
		policy: policy,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	return l
}

func (l *Limiter) Name() string   { return l.name }
func (l *Limiter) Policy() Policy { return l.policy }
func (l *Limiter) Store() Store   { return l.store }

// Allow checks identity against the limiter's own policy.
func (l *Limiter) Allow(ctx context.Context, identity string) Decision {
	return l.Check(ctx, identity, l.policy.Window, l.policy.Max)
}

// Check charges one request to identity in the current window. It never fails:
// a store error is logged and the request is let through.
func (l *Limiter) Check(ctx context.Context, identity string, window time.Duration, limit int) Decision {
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}
	bucket := now.UnixMilli() / windowMs
	resetAt := time.UnixMilli((bucket + 1) * windowMs)
	key := l.name + ":" + identity + ":" + strconv.FormatInt(windowMs, 10) + ":" + strconv.FormatInt(bucket, 10)

	count, err := l.store.Increment(ctx, key, resetAt)
	if err != nil {
		l.logger.Error().Err(err).Str("limiter", l.name).Str("key", key).Msg("rate limit store failed, allowing request")
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: resetAt}
	}

	if count > int64(limit) {
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - int(count),
		ResetAt:   resetAt,
	}
}

// Sweep removes records whose window has ended.
func (l *Limiter) Sweep(ctx context.Context) int {
	removed, err := l.store.SweepExpired(ctx, l.now())
	if err != nil {
		l.logger.Warn().Err(err).Str("limiter", l.name).Msg("rate limit sweep failed")
	}
	return removed
}

// StartSweeper sweeps on a fixed interval until ctx is done.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := l.Sweep(ctx); removed > 0 {
					l.logger.Debug().Str("limiter", l.name).Int("removed", removed).Msg("swept expired rate limit records")
				}
			}
		}
	}()
}
