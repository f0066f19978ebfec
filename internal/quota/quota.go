// Package quota enforces per-tier admission: sliding per-route request
// windows and the monthly speech-synthesis character budget.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/tier"
)

// ErrPremiumFeatureRequired is returned when a tier without voice access
// requests speech synthesis. Distinct from a budget denial: upgrading the
// subscription is the remedy, not waiting for the month to roll over.
var ErrPremiumFeatureRequired = errors.New("voice synthesis requires a premium subscription")

// Decision is the outcome of a rate-limit admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// CounterStore tracks fixed-window request counters. Incr bumps the counter
// for key, starting a fresh window of the given length if none is active, and
// returns the new count plus the time remaining in the window.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// VoiceReserver is the subset of storage the governor needs for voice budget
// accounting.
type VoiceReserver interface {
	ReserveVoiceChars(ctx context.Context, userID uuid.UUID, chars int64, budget int64, now time.Time) (*storage.VoiceUsage, error)
}

// Governor makes admission decisions for authenticated requests using the
// process-wide tier table.
type Governor struct {
	counters CounterStore
	usage    VoiceReserver
	table    tier.Table
	now      func() time.Time
	logger   *slog.Logger
}

// NewGovernor creates a new admission governor
func NewGovernor(counters CounterStore, usage VoiceReserver, table tier.Table, logger *slog.Logger) *Governor {
	return &Governor{
		counters: counters,
		usage:    usage,
		table:    table,
		now:      time.Now,
		logger:   logger,
	}
}

// WithNow overrides the clock (used in tests).
func (g *Governor) WithNow(now func() time.Time) *Governor {
	g.now = now
	return g
}

// Limits returns the limits for a tier, resolving unknown tiers to the
// fallback entry.
func (g *Governor) Limits(t tier.Tier) tier.Limits {
	return g.table.Lookup(t)
}

// Admit checks the per-route request window for a user. When the counter
// backend is unreachable the request is admitted: a degraded limiter should
// not take the whole service down with it.
func (g *Governor) Admit(ctx context.Context, userID uuid.UUID, t tier.Tier, route tier.Route) Decision {
	limits := g.table.Lookup(t)
	key := fmt.Sprintf("ratelimit:%s:%s", userID, route)

	count, remaining, err := g.counters.Incr(ctx, key, limits.Window)
	if err != nil {
		g.logger.Warn("Rate counter unavailable, admitting request",
			"user_id", userID,
			"route", route,
			"error", err)
		return Decision{Allowed: true}
	}

	if count > int64(limits.RouteQuota(route)) {
		return Decision{Allowed: false, RetryAfter: remaining}
	}
	return Decision{Allowed: true}
}

// ReserveVoiceBudget admits a speech-synthesis request of the given character
// count against the user's monthly budget. It returns
// ErrPremiumFeatureRequired for tiers without voice access and
// storage.ErrVoiceBudgetExceeded when the reservation would overrun the
// budget; in both cases nothing is consumed.
func (g *Governor) ReserveVoiceBudget(ctx context.Context, userID uuid.UUID, t tier.Tier, chars int64) (*storage.VoiceUsage, error) {
	limits := g.table.Lookup(t)
	if !limits.VoiceEnabled {
		return nil, ErrPremiumFeatureRequired
	}
	return g.usage.ReserveVoiceChars(ctx, userID, chars, limits.VoiceCharsPerMonth, g.now())
}

// RedisCounterStore implements CounterStore on Redis fixed windows.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a counter store on an existing Redis client
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Incr bumps the window counter for key. The first hit in a window sets the
// expiry; later hits ride the existing one.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to set counter expiry: %w", err)
		}
		return count, window, nil
	}

	remaining, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read counter ttl: %w", err)
	}
	if remaining < 0 {
		// Counter lost its expiry (for example after a restart mid-window);
		// re-arm it rather than leaving the window permanent.
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to re-arm counter expiry: %w", err)
		}
		remaining = window
	}
	return count, remaining, nil
}
