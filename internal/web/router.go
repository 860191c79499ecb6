// Package web provides cache.ValueFactory implementations that fill misses
// from the web: URL keys are fetched and summarized, "search:" keys are
// answered by a search engine.
package web

import (
	"context"

	"github.com/leonardcser/readthrough/internal/cache"
)

// Router dispatches a miss to the factory matching the key's shape.
type Router struct {
	Fetcher  cache.ValueFactory
	Searcher cache.ValueFactory
	// Fallback handles every other key. Nil uses cache.RandomValue.
	Fallback cache.ValueFactory
}

var _ cache.ValueFactory = (*Router)(nil)

// NewRouter wires a Fetcher and a Searcher with the given fallback.
func NewRouter(fetcher *Fetcher, searcher *Searcher, fallback cache.ValueFactory) *Router {
	r := &Router{Fallback: fallback}
	if fetcher != nil {
		r.Fetcher = fetcher
	}
	if searcher != nil {
		r.Searcher = searcher
	}
	return r
}

func (r *Router) Value(ctx context.Context, key string) (string, error) {
	switch {
	case IsURL(key) && r.Fetcher != nil:
		return r.Fetcher.Value(ctx, key)
	case IsSearch(key) && r.Searcher != nil:
		return r.Searcher.Value(ctx, key)
	case r.Fallback != nil:
		return r.Fallback.Value(ctx, key)
	default:
		return cache.RandomValue.Value(ctx, key)
	}
}
