package cache

import (
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestCache(t *testing.T) (*RuleCache, *storage.BoltStore, *clock) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewWithClock(store, clk.Now), store, clk
}

func TestGetMissing(t *testing.T) {
	c, _, _ := newTestCache(t)

	entry, err := c.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, entry)

	fresh, err := c.IsFresh("nope")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestSetReplacesWholesale(t *testing.T) {
	c, _, clk := newTestCache(t)

	_, err := c.Set("srv", []string{"||a.example^", "||b.example^", "||c.example^"})
	require.NoError(t, err)

	clk.now = clk.now.Add(time.Minute)
	rules := []string{"||d.example^"}
	entry, err := c.Set("srv", rules)
	require.NoError(t, err)

	rules[0] = "mutated"

	got, err := c.Get("srv")
	require.NoError(t, err)
	assert.Equal(t, []string{"||d.example^"}, got.Rules)
	assert.Equal(t, 1, got.Count)
	assert.True(t, clk.now.Equal(got.FetchedAt))
	assert.True(t, entry.FetchedAt.Equal(got.FetchedAt))
	assert.Equal(t, 60, got.TTLMinutes)
}

func TestIsFreshBoundary(t *testing.T) {
	tests := []struct {
		name  string
		ttl   int
		age   time.Duration
		fresh bool
	}{
		{name: "just written", ttl: 60, age: 0, fresh: true},
		{name: "one nanosecond before expiry", ttl: 60, age: time.Hour - time.Nanosecond, fresh: true},
		{name: "exactly at expiry", ttl: 60, age: time.Hour, fresh: false},
		{name: "long expired", ttl: 60, age: 48 * time.Hour, fresh: false},
		{name: "short ttl", ttl: 1, age: 30 * time.Second, fresh: true},
		{name: "short ttl expired", ttl: 1, age: 61 * time.Second, fresh: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store, clk := newTestCache(t)
			settings := types.DefaultSettings()
			settings.CacheTTLMinutes = tt.ttl
			require.NoError(t, store.PutSettings(settings))

			_, err := c.Set("srv", []string{"||ads.example^"})
			require.NoError(t, err)

			clk.now = clk.now.Add(tt.age)
			fresh, err := c.IsFresh("srv")
			require.NoError(t, err)
			assert.Equal(t, tt.fresh, fresh)
		})
	}
}

func TestIsFreshUsesCurrentTTL(t *testing.T) {
	c, store, clk := newTestCache(t)

	_, err := c.Set("srv", []string{"||ads.example^"})
	require.NoError(t, err)
	clk.now = clk.now.Add(10 * time.Minute)

	fresh, err := c.IsFresh("srv")
	require.NoError(t, err)
	assert.True(t, fresh)

	// Shrinking the TTL after the write makes the entry stale immediately
	settings := types.DefaultSettings()
	settings.CacheTTLMinutes = 5
	require.NoError(t, store.PutSettings(settings))

	fresh, err = c.IsFresh("srv")
	require.NoError(t, err)
	assert.False(t, fresh)

	entry, err := c.Get("srv")
	require.NoError(t, err)
	assert.Equal(t, 60, entry.TTLMinutes, "snapshot keeps the TTL in effect at write time")
}

func TestFreshNoTimestamp(t *testing.T) {
	assert.False(t, Fresh(&types.RuleCacheEntry{ServerID: "srv"}, 60, time.Now()))
	assert.False(t, Fresh(nil, 60, time.Now()))
}

func TestClear(t *testing.T) {
	c, _, _ := newTestCache(t)

	_, err := c.Set("a", []string{"||a.example^"})
	require.NoError(t, err)
	_, err = c.Set("b", []string{"||b.example^"})
	require.NoError(t, err)

	existed, err := c.Clear("a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = c.Clear("a")
	require.NoError(t, err)
	assert.False(t, existed)

	entry, err := c.Get("b")
	require.NoError(t, err)
	assert.NotNil(t, entry)

	require.NoError(t, c.ClearAll())
	entry, err = c.Get("b")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
