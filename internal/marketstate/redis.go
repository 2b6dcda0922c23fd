package marketstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisMirror publishes the cache's accepted snapshots to Redis as a
// read-through layer other processes (a dashboard, a second core
// instance recovering from a cold start) can consult without replaying
// every venue adapter's feed. Grounded on the teacher's
// internal/infrastructure/data.RedisCacheManager: same key-prefix /
// JSON-entry shape, generalized from a generic interface{} cache to the
// two snapshot types the Market State Cache actually carries.
type RedisMirror struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	log       zerolog.Logger
}

// NewRedisMirror constructs a mirror against an already-configured redis
// client. addr/password/db selection is the caller's responsibility,
// following the teacher's NewRedisCacheManager constructor shape.
func NewRedisMirror(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisMirror {
	return &RedisMirror{
		client:    client,
		keyPrefix: "fundingarb:marketstate:",
		ttl:       ttl,
		log:       log.With().Str("component", "marketstate.redis").Logger(),
	}
}

// MirrorFundingRate writes the accepted rate through to Redis. Failures
// are logged and swallowed: per spec §7's transient-external taxonomy,
// the mirror is best-effort and must never block the write path the
// in-memory cache already serves.
func (m *RedisMirror) MirrorFundingRate(ctx context.Context, key string, payload interface{}) {
	m.set(ctx, "rate:"+key, payload)
}

// MirrorQuote writes the accepted quote through to Redis.
func (m *RedisMirror) MirrorQuote(ctx context.Context, key string, payload interface{}) {
	m.set(ctx, "quote:"+key, payload)
}

// MirrorVenueHealth writes a venue health snapshot through to Redis, for
// an external dashboard to poll without touching the core's memory.
func (m *RedisMirror) MirrorVenueHealth(ctx context.Context, venueName string, payload interface{}) {
	m.set(ctx, "health:"+venueName, payload)
}

func (m *RedisMirror) set(ctx context.Context, suffix string, payload interface{}) {
	if m.client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		m.log.Error().Err(err).Str("key", suffix).Msg("marshal mirror payload")
		return
	}
	if err := m.client.Set(ctx, m.keyPrefix+suffix, data, m.ttl).Err(); err != nil {
		m.log.Warn().Err(err).Str("key", suffix).Msg("redis mirror write failed")
	}
}

// Get reads a mirrored snapshot back, used on cold start before the
// in-memory cache has observed any live venue traffic.
func (m *RedisMirror) Get(ctx context.Context, suffix string, out interface{}) (bool, error) {
	if m.client == nil {
		return false, nil
	}
	raw, err := m.client.Get(ctx, m.keyPrefix+suffix).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("marketstate: redis mirror get %s: %w", suffix, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("marketstate: redis mirror unmarshal %s: %w", suffix, err)
	}
	return true, nil
}

// Close releases the underlying Redis client.
func (m *RedisMirror) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
