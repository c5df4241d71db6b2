// Package aggregator implements the fan-out/cache pattern used to
// build composite views across multiple peer tool servers: SafeCall
// never lets a fetcher's panic or error escape uncaught, Aggregate
// runs a set of named fetchers concurrently and degrades individual
// failures to an "unavailable" status rather than failing the whole
// call, and Cache stores the resulting composite for a TTL so repeat
// callers don't re-fan-out.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/muster-fabric/internal/obslog"
)

// Fetcher retrieves one named piece of a composite view.
type Fetcher func(ctx context.Context) (any, error)

// Composite is one entry per fetcher name, either its value or a
// degraded "unavailable" marker.
type Composite map[string]any

// Unavailable is the value substituted for a fetcher that errored or
// panicked.
type Unavailable struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Result is the full output of Aggregate/AggregateCached: the
// per-source values, a dataSources map recording which sources
// answered and which degraded, the time the composite was produced,
// and whether it was served from the cache rather than freshly
// fetched.
type Result struct {
	Values      Composite
	DataSources map[string]string
	GeneratedAt string
	FromCache   bool
}

// SafeCall runs fetcher and converts both a returned error and a
// panic into a returned error, so a caller never needs two failure
// paths and a single misbehaving fetcher can never crash its caller.
func SafeCall(ctx context.Context, fetcher Fetcher) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panicked: %v", r)
		}
	}()
	return fetcher(ctx)
}

// Aggregate runs every fetcher in fetchers concurrently and returns a
// Result keyed by the same names. A fetcher that errors or panics
// contributes an Unavailable{Status: "unavailable"} value and an
// "unavailable" dataSources entry instead of failing the whole
// aggregate.
func Aggregate(ctx context.Context, fetchers map[string]Fetcher) Result {
	var mu sync.Mutex
	values := make(Composite, len(fetchers))
	dataSources := make(map[string]string, len(fetchers))

	g, gctx := errgroup.WithContext(ctx)
	for name, fetcher := range fetchers {
		name, fetcher := name, fetcher
		g.Go(func() error {
			value, err := SafeCall(gctx, fetcher)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				obslog.Warn("aggregator", "fetcher %q unavailable: %v", name, err)
				values[name] = Unavailable{Status: "unavailable", Reason: err.Error()}
				dataSources[name] = "unavailable"
			} else {
				values[name] = value
				dataSources[name] = "available"
			}
			return nil
		})
	}
	_ = g.Wait()
	return Result{
		Values:      values,
		DataSources: dataSources,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// AggregateCached is Aggregate with a write-through TTL cache keyed by
// (category, key): a cached, unexpired Result is returned with
// FromCache set, without re-running any fetcher, unless forceRefresh
// is set.
func AggregateCached(ctx context.Context, cache *Cache, category, key string, ttl time.Duration, forceRefresh bool, fetchers map[string]Fetcher) (Result, error) {
	if !forceRefresh {
		if cached, ok, err := cache.Get(category, key); err != nil {
			return Result{}, err
		} else if ok {
			cached.FromCache = true
			return cached, nil
		}
	}

	result := Aggregate(ctx, fetchers)
	if err := cache.Set(category, key, result, ttl); err != nil {
		return Result{}, err
	}
	return result, nil
}
