package metadata

import (
	"context"
)

// CachedResolver memoizes resolved documents. Documents are content
// addressed and therefore immutable, so entries never need invalidation,
// only bounding.
type CachedResolver struct {
	Resolver

	cache abstractCache[string, *Document]
}

func WithCondCache(r Resolver) Resolver {
	return &CachedResolver{
		Resolver: r,

		cache: newCondCache[string, *Document](100),
	}
}

func WithRingCache(r Resolver) Resolver {
	return &CachedResolver{
		Resolver: r,

		cache: newRingCache[string, *Document](100),
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, ref string) (*Document, error) {
	return c.cache.Get(ctx, ref, c.Resolver.Resolve)
}

type abstractCache[K comparable, V any] interface {
	Len(ctx context.Context) (int, error)
	Get(ctx context.Context, key K, fill func(context.Context, K) (V, error)) (V, error)
}

var (
	_ abstractCache[string, *Document] = (*condCache[string, *Document])(nil)
	_ abstractCache[string, *Document] = (*ringCache[string, *Document])(nil)
)
