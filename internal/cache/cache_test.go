package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/maintenance-analytics/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestStatsKey(t *testing.T) {
	assert.Equal(t, "stats:u1:admin:global", StatsKey("u1", models.RoleAdmin, models.GlobalScope()))
	assert.Equal(t, "stats:u1:manager:building%3Ab-1", StatsKey("u1", models.RoleManager, models.BuildingScope("b-1")))
	assert.NotEqual(t,
		StatsKey("u1", models.RoleAdmin, models.BuildingScope("b-1")),
		StatsKey("u1", models.RoleAdmin, models.BuildingScope("b-2")),
	)
}

func TestStatsKey_SeparatorInIDs(t *testing.T) {
	// Unescaped, both join to "stats:a:manager:building:manager:building:b".
	a := StatsKey("a", models.RoleManager, models.BuildingScope("manager:building:b"))
	b := StatsKey("a:manager:building", models.RoleManager, models.BuildingScope("b"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, "stats:a%3Amanager%3Abuilding:manager:building%3Ab", b)
}

func TestMemoryCache_TTL(t *testing.T) {
	clock := newClock()
	c := NewMemoryCache(30*time.Second, 0, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v1")))
	clock.Advance(29 * time.Second)
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	clock.Advance(time.Second)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestMemoryCache_BoundedEviction(t *testing.T) {
	clock := newClock()
	c := NewMemoryCache(time.Minute, 3, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte{byte(i)}))
		clock.Advance(time.Second)
	}
	// Full with live entries: the oldest goes.
	require.NoError(t, c.Set(ctx, "k3", []byte{3}))
	assert.Equal(t, 3, c.Len())
	_, ok, _ := c.Get(ctx, "k0")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "k1")
	assert.True(t, ok)

	// Overwriting an existing key never evicts.
	require.NoError(t, c.Set(ctx, "k3", []byte{33}))
	assert.Equal(t, 3, c.Len())

	// Expired entries are swept before anything live is evicted.
	clock.Advance(58 * time.Second)
	require.NoError(t, c.Set(ctx, "k4", []byte{4}))
	for _, k := range []string{"k2", "k3", "k4"} {
		_, ok, _ = c.Get(ctx, k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestMemoryCache_Sweep(t *testing.T) {
	clock := newClock()
	c := NewMemoryCache(10*time.Second, 0, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", []byte("a")))
	clock.Advance(6 * time.Second)
	require.NoError(t, c.Set(ctx, "new", []byte("b")))
	clock.Advance(5 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_RunStopsOnCancel(t *testing.T) {
	c := NewMemoryCache(time.Millisecond, 0)
	require.NoError(t, c.Set(context.Background(), "k", []byte("v")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestMemo_RecomputesOnlyAfterTTL(t *testing.T) {
	clock := newClock()
	memo := NewMemo(NewMemoryCache(30*time.Second, 0, WithClock(clock.Now)), quietLogger())
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (interface{}, error) {
		calls++
		return map[string]interface{}{"total": calls, "at": clock.Now()}, nil
	}

	first, err := memo.Do(ctx, "k", compute)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		clock.Advance(5 * time.Second)
		again, err := memo.Do(ctx, "k", compute)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 1, calls)

	clock.Advance(5 * time.Second)
	refreshed, err := memo.Do(ctx, "k", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NotEqual(t, first, refreshed)
}

func TestMemo_ComputeErrorIsNotCached(t *testing.T) {
	memo := NewMemo(NewMemoryCache(time.Minute, 0), quietLogger())
	ctx := context.Background()
	boom := errors.New("aggregation failed")

	_, err := memo.Do(ctx, "k", func(context.Context) (interface{}, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	b, err := memo.Do(ctx, "k", func(context.Context) (interface{}, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, "7", string(b))
}

type brokenCache struct{ err error }

func (b brokenCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, b.err }
func (b brokenCache) Set(context.Context, string, []byte) error         { return b.err }

func TestMemo_BackendFailureFallsThrough(t *testing.T) {
	memo := NewMemo(brokenCache{err: errors.New("connection reset")}, quietLogger())
	calls := 0
	for i := 0; i < 2; i++ {
		b, err := memo.Do(context.Background(), "k", func(context.Context) (interface{}, error) {
			calls++
			return []string{"ok"}, nil
		})
		require.NoError(t, err)
		assert.JSONEq(t, `["ok"]`, string(b))
	}
	assert.Equal(t, 2, calls)
}

// Integration test (requires running Redis)
func TestRedisCache_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewRedisClient(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	defer client.Close()

	c := NewRedisCache(client, time.Second)
	key := fmt.Sprintf("test:%d", time.Now().UnixNano())

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, []byte(`{"total":1}`)))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"total":1}`, string(got))

	assert.Eventually(t, func() bool {
		_, ok, err := c.Get(ctx, key)
		return err == nil && !ok
	}, 3*time.Second, 100*time.Millisecond)
}
