// Package cache implements the two-tier cache: an optional in-memory fast
// tier backed by patrickmn/go-cache, and a durable tier backed by the
// analysis_cache table in cache.db. Reads consult fast-then-durable;
// writes go through both tiers with the same expiry.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/database"
)

// Durable is the persistence contract the durable tier needs. Satisfied by
// *database.CacheRepository.
type Durable interface {
	Get(key string, now time.Time) ([]byte, bool, error)
	Set(key string, payload []byte, now time.Time, ttl time.Duration) error
	Delete(key string) error
	PruneExpired(now time.Time) (int64, error)
}

// Cache is the two-tier cache described by the contract: get consults fast
// then durable; set writes through both; delete removes from both.
type Cache struct {
	fast    *gocache.Cache
	durable Durable
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithoutFastTier disables the in-memory tier: every operation falls
// through to the durable tier, with no change to the contract.
func WithoutFastTier() Option {
	return func(c *Cache) { c.fast = nil }
}

// New creates a two-tier cache. cleanupInterval governs how often go-cache
// sweeps its own expired entries; it has no bearing on the durable tier's
// sweep, which callers drive separately via PruneExpired.
func New(durable Durable, cleanupInterval time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		fast:    gocache.New(gocache.NoExpiration, cleanupInterval),
		durable: durable,
		log:     log.With().Str("component", "cache").Logger(),
		now:     time.Now,
	}
}

// NewWithOptions creates a two-tier cache with optional overrides applied.
func NewWithOptions(durable Durable, cleanupInterval time.Duration, log zerolog.Logger, opts ...Option) *Cache {
	c := New(durable, cleanupInterval, log)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get consults the fast tier first; on miss it consults the durable tier and,
// on a durable hit, backfills the fast tier with the remaining TTL.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	if c.fast != nil {
		if v, ok := c.fast.Get(key); ok {
			return v.([]byte), true, nil
		}
	}

	payload, ok, err := c.durable.Get(key, c.now())
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	if c.fast != nil {
		c.fast.Set(key, payload, gocache.DefaultExpiration)
	}
	return payload, true, nil
}

// Set writes through to both tiers with the same absolute expiry.
func (c *Cache) Set(key string, payload []byte, ttl time.Duration) error {
	if err := c.durable.Set(key, payload, c.now(), ttl); err != nil {
		return err
	}
	if c.fast != nil {
		c.fast.Set(key, payload, ttl)
	}
	return nil
}

// Delete removes an entry from both tiers.
func (c *Cache) Delete(key string) error {
	if c.fast != nil {
		c.fast.Delete(key)
	}
	return c.durable.Delete(key)
}

// Sweep removes durable entries whose expiry has passed. Intended to run on
// a periodic ticker alongside the scheduler's other maintenance jobs.
func (c *Cache) Sweep() (int64, error) {
	n, err := c.durable.PruneExpired(c.now())
	if err != nil {
		c.log.Error().Err(err).Msg("cache sweep failed")
		return 0, err
	}
	if n > 0 {
		c.log.Debug().Int64("pruned", n).Msg("cache sweep removed expired entries")
	}
	return n, nil
}

var _ Durable = (*database.CacheRepository)(nil)
