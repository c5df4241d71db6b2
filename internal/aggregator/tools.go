package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/muster-fabric/internal/clientpool"
	"github.com/giantswarm/muster-fabric/internal/dispatcher"
)

const defaultTTL = 30 * time.Second

// Tools builds the composite dispatcher.Tool set that fans out across
// every peer registered in pool, caching results through cache.
func Tools(pool *clientpool.Pool, cache *Cache) []dispatcher.Tool {
	return []dispatcher.Tool{
		overviewTool(pool, cache),
		projectSummaryTool(pool, cache),
		serverStatusTool(pool, cache),
	}
}

func overviewTool(pool *clientpool.Pool, cache *Cache) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "get-overview",
		Description: "Return a composite overview fanned out across every registered peer.",
		Schema: dispatcher.ArgSchema{
			"forceRefresh": {Type: "boolean"},
		},
		Handler: func(ctx context.Context, args map[string]any) (*dispatcher.Envelope, error) {
			forceRefresh, _ := args["forceRefresh"].(bool)
			fetchers := make(map[string]Fetcher)
			for _, name := range pool.GetRegisteredServers() {
				name := name
				fetchers[name] = func(ctx context.Context) (any, error) {
					return pool.CallTool(ctx, name, "ping", nil)
				}
			}
			result, err := AggregateCached(ctx, cache, "overview", "all", defaultTTL, forceRefresh, fetchers)
			if err != nil {
				return nil, err
			}
			return compositeEnvelope(result)
		},
	}
}

func projectSummaryTool(pool *clientpool.Pool, cache *Cache) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "get-project-summary",
		Description: "Return a composite project summary from a named set of peers.",
		Schema: dispatcher.ArgSchema{
			"project":      {Type: "string", Required: true},
			"servers":      {Type: "array", Required: true},
			"forceRefresh": {Type: "boolean"},
		},
		Handler: func(ctx context.Context, args map[string]any) (*dispatcher.Envelope, error) {
			project, _ := args["project"].(string)
			forceRefresh, _ := args["forceRefresh"].(bool)
			servers, _ := args["servers"].([]any)

			fetchers := make(map[string]Fetcher, len(servers))
			for _, s := range servers {
				name, ok := s.(string)
				if !ok {
					continue
				}
				fetchers[name] = func(ctx context.Context) (any, error) {
					return pool.CallTool(ctx, name, "project-summary", map[string]any{"project": project})
				}
			}

			result, err := AggregateCached(ctx, cache, "project-summary", project, defaultTTL, forceRefresh, fetchers)
			if err != nil {
				return nil, err
			}
			return compositeEnvelope(result)
		},
	}
}

func serverStatusTool(pool *clientpool.Pool, cache *Cache) dispatcher.Tool {
	return dispatcher.Tool{
		Name:        "get-server-status",
		Description: "Return connectivity status for every registered peer.",
		Schema: dispatcher.ArgSchema{
			"forceRefresh": {Type: "boolean"},
		},
		Handler: func(ctx context.Context, args map[string]any) (*dispatcher.Envelope, error) {
			forceRefresh, _ := args["forceRefresh"].(bool)
			fetchers := make(map[string]Fetcher)
			for _, name := range pool.GetRegisteredServers() {
				name := name
				fetchers[name] = func(ctx context.Context) (any, error) {
					if _, err := pool.CallTool(ctx, name, "ping", nil); err != nil {
						return nil, err
					}
					return map[string]any{"connected": pool.IsConnected(name)}, nil
				}
			}
			result, err := AggregateCached(ctx, cache, "server-status", "all", defaultTTL, forceRefresh, fetchers)
			if err != nil {
				return nil, err
			}
			return compositeEnvelope(result)
		},
	}
}

// compositeEnvelope flattens a Result into the wire shape callers
// expect: each source's value as a top-level field, alongside
// dataSources, generatedAt, and (on a cache hit) fromCache.
func compositeEnvelope(result Result) (*dispatcher.Envelope, error) {
	out := make(map[string]any, len(result.Values)+3)
	for name, value := range result.Values {
		out[name] = value
	}
	out["dataSources"] = result.DataSources
	out["generatedAt"] = result.GeneratedAt
	if result.FromCache {
		out["fromCache"] = true
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("aggregator: marshal composite: %w", err)
	}
	return dispatcher.TextEnvelope(string(data)), nil
}
