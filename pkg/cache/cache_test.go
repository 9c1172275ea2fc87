package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type activity struct {
	Address string    `json:"address"`
	Seen    time.Time `json:"seen"`
}

func TestMemoryCacheRoundTripAndExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(clk.Now))
	defer mc.Close()
	ctx := context.Background()

	in := activity{Address: "bc1q", Seen: clk.t}
	require.NoError(t, mc.Set(ctx, "a", in, time.Minute))

	var out activity
	require.NoError(t, mc.Get(ctx, "a", &out))
	assert.Equal(t, in.Address, out.Address)
	assert.True(t, in.Seen.Equal(out.Seen))

	clk.t = clk.t.Add(time.Minute)
	assert.ErrorIs(t, mc.Get(ctx, "a", &out), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
	require.NoError(t, mc.Delete(ctx, "a", "missing"))
	assert.Equal(t, 1, mc.Len())
}

func TestLayeredCacheFillsL1FromL2(t *testing.T) {
	l2 := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(l2, 10, time.Minute)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", activity{Address: "x"}, time.Hour))
	var out activity
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, "x", out.Address)

	require.NoError(t, l2.Delete(ctx, "k"))
	out = activity{}
	require.NoError(t, lc.Get(ctx, "k", &out), "served from L1")
	assert.Equal(t, "x", out.Address)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.ErrorIs(t, lc.Get(ctx, "k", &out), ErrCacheMiss)
}

func TestGetOrLoad(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}
	for i := 0; i < 3; i++ {
		v, err := GetOrLoad(ctx, mc, Key("addr", "x"), time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err := GetOrLoad(ctx, mc, "other", time.Minute, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "other", &s), ErrCacheMiss)

	v, err := GetOrLoad[string](ctx, nil, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
