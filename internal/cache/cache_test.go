package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDurable is an in-memory stand-in for the analysis_cache table.
type fakeDurable struct {
	entries map[string]fakeEntry
	gets    int
}

type fakeEntry struct {
	payload   []byte
	expiresAt time.Time
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{entries: map[string]fakeEntry{}}
}

func (f *fakeDurable) Get(key string, now time.Time) ([]byte, bool, error) {
	f.gets++
	e, ok := f.entries[key]
	if !ok || now.After(e.expiresAt) {
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (f *fakeDurable) Set(key string, payload []byte, now time.Time, ttl time.Duration) error {
	f.entries[key] = fakeEntry{payload: payload, expiresAt: now.Add(ttl)}
	return nil
}

func (f *fakeDurable) Delete(key string) error {
	delete(f.entries, key)
	return nil
}

func (f *fakeDurable) PruneExpired(now time.Time) (int64, error) {
	var n int64
	for k, e := range f.entries {
		if now.After(e.expiresAt) {
			delete(f.entries, k)
			n++
		}
	}
	return n, nil
}

func newTestCache(durable Durable) *Cache {
	return New(durable, time.Minute, zerolog.Nop())
}

func TestCacheSetThenGetHitsFastTier(t *testing.T) {
	durable := newFakeDurable()
	c := newTestCache(durable)

	require.NoError(t, c.Set("k1", []byte("v1"), time.Hour))

	v, ok, err := c.Get("k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestCacheGetFallsThroughToDurableOnFastMiss(t *testing.T) {
	durable := newFakeDurable()
	require.NoError(t, durable.Set("k1", []byte("v1"), time.Now(), time.Hour))

	c := newTestCache(durable)

	v, ok, err := c.Get("k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
	assert.Equal(t, 1, durable.gets)

	// second read should be served from the fast tier without another
	// durable lookup
	_, ok, err = c.Get("k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, durable.gets)
}

func TestCacheGetMiss(t *testing.T) {
	c := newTestCache(newFakeDurable())

	_, ok, err := c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheDeleteRemovesFromBothTiers(t *testing.T) {
	durable := newFakeDurable()
	c := newTestCache(durable)
	require.NoError(t, c.Set("k1", []byte("v1"), time.Hour))

	require.NoError(t, c.Delete("k1"))

	_, ok, err := c.Get("k1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, durableOK, _ := durable.Get("k1", time.Now())
	assert.False(t, durableOK)
}

func TestCacheWithoutFastTierFallsThroughEveryRead(t *testing.T) {
	durable := newFakeDurable()
	c := NewWithOptions(durable, time.Minute, zerolog.Nop(), WithoutFastTier())

	require.NoError(t, c.Set("k1", []byte("v1"), time.Hour))
	_, _, _ = c.Get("k1")
	_, _, _ = c.Get("k1")

	assert.Equal(t, 2, durable.gets)
}

func TestCacheSweepRemovesExpiredDurableEntries(t *testing.T) {
	durable := newFakeDurable()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, durable.Set("stale", []byte("v"), past, time.Millisecond))

	c := newTestCache(durable)
	n, err := c.Sweep()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCacheJSONRoundTrip(t *testing.T) {
	type payload struct {
		Ratio int `json:"ratio"`
	}

	c := newTestCache(newFakeDurable())
	require.NoError(t, c.SetJSON("signal:AAPL", payload{Ratio: 82}, time.Hour))

	var out payload
	ok, err := c.GetJSON("signal:AAPL", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 82, out.Ratio)
}
