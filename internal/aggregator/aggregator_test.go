package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/muster-fabric/internal/store"
)

func TestSafeCallRecoversPanic(t *testing.T) {
	_, err := SafeCall(context.Background(), func(ctx context.Context) (any, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSafeCallPropagatesError(t *testing.T) {
	_, err := SafeCall(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("fail")
	})
	require.Error(t, err)
}

func TestAggregateDegradesFailures(t *testing.T) {
	result := Aggregate(context.Background(), map[string]Fetcher{
		"ok": func(ctx context.Context) (any, error) { return "value", nil },
		"bad": func(ctx context.Context) (any, error) {
			return nil, errors.New("unreachable")
		},
		"panics": func(ctx context.Context) (any, error) {
			panic("kaboom")
		},
	})

	assert.Equal(t, "value", result.Values["ok"])
	assert.Equal(t, Unavailable{Status: "unavailable", Reason: "unreachable"}, result.Values["bad"])
	_, ok := result.Values["panics"].(Unavailable)
	assert.True(t, ok)

	assert.Equal(t, "available", result.DataSources["ok"])
	assert.Equal(t, "unavailable", result.DataSources["bad"])
	assert.Equal(t, "unavailable", result.DataSources["panics"])

	_, err := time.Parse(time.RFC3339, result.GeneratedAt)
	assert.NoError(t, err)
	assert.False(t, result.FromCache)
}

func TestAggregateCachedReusesEntry(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	cache := NewCache(db)

	calls := 0
	fetchers := map[string]Fetcher{
		"x": func(ctx context.Context) (any, error) {
			calls++
			return calls, nil
		},
	}

	first, err := AggregateCached(context.Background(), cache, "cat", "key", time.Minute, false, fetchers)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := AggregateCached(context.Background(), cache, "cat", "key", time.Minute, false, fetchers)
	require.NoError(t, err)
	assert.True(t, second.FromCache)

	assert.EqualValues(t, first.Values["x"], second.Values["x"])
	assert.Equal(t, 1, calls)

	third, err := AggregateCached(context.Background(), cache, "cat", "key", time.Minute, true, fetchers)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.Equal(t, 2, calls)
	assert.NotEqualValues(t, first.Values["x"], third.Values["x"])
}

func TestCacheExpires(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	cache := NewCache(db)

	require.NoError(t, cache.Set("cat", "key", Result{
		Values:      Composite{"a": 1},
		DataSources: map[string]string{"a": "available"},
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, -time.Second))
	_, ok, err := cache.Get("cat", "key")
	require.NoError(t, err)
	assert.False(t, ok)
}
