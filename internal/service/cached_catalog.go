package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"movies-sync-service/internal/engine"
	"movies-sync-service/internal/model"
	"movies-sync-service/internal/repository"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ResponseCache is the JSON cache used by CachedCatalog. Satisfied by
// *repository.Cache.
type ResponseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CacheTTLs sets how long each kind of catalog response is cached
type CacheTTLs struct {
	Popular time.Duration
	Search  time.Duration
	Detail  time.Duration
	Similar time.Duration
	Credits time.Duration
}

// CacheStats counts cache outcomes since start
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Shared int64 `json:"shared"`
}

// CachedCatalog serves catalog calls from Redis when possible and collapses
// identical concurrent misses into a single upstream request.
type CachedCatalog struct {
	inner engine.Catalog
	cache ResponseCache
	ttl   CacheTTLs
	group singleflight.Group

	hits, misses, shared atomic.Int64
}

// NewCachedCatalog wraps inner
func NewCachedCatalog(inner engine.Catalog, cache ResponseCache, ttl CacheTTLs) *CachedCatalog {
	return &CachedCatalog{inner: inner, cache: cache, ttl: ttl}
}

// Stats returns the cache counters
func (c *CachedCatalog) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.shared.Load(),
	}
}

// cached returns the value under key, fetching and storing it on a miss.
// The upstream call outlives a cancelled caller so that other waiters on
// the same key still get a result.
func cached[T any](ctx context.Context, c *CachedCatalog, key string, ttl time.Duration, fetch func(context.Context) (*T, error)) (*T, error) {
	var hit T
	err := c.cache.Get(ctx, key, &hit)
	if err == nil {
		c.hits.Add(1)
		return &hit, nil
	}
	if !repository.IsCacheMiss(err) {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to TMDB")
	}
	c.misses.Add(1)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(fetchCtx, key, v, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SearchMovies implements engine.Catalog
func (c *CachedCatalog) SearchMovies(ctx context.Context, query string, opts model.ListOptions) (*model.PagedMovies, error) {
	key := fmt.Sprintf("search:%s:%t:%d:%s", opts.LanguageOrDefault(), opts.IncludeAdult, opts.PageOrDefault(), query)
	return cached(ctx, c, key, c.ttl.Search, func(ctx context.Context) (*model.PagedMovies, error) {
		return c.inner.SearchMovies(ctx, query, opts)
	})
}

// PopularMovies implements engine.Catalog
func (c *CachedCatalog) PopularMovies(ctx context.Context, opts model.ListOptions) (*model.PagedMovies, error) {
	key := fmt.Sprintf("popular:%s:%d", opts.LanguageOrDefault(), opts.PageOrDefault())
	return cached(ctx, c, key, c.ttl.Popular, func(ctx context.Context) (*model.PagedMovies, error) {
		return c.inner.PopularMovies(ctx, opts)
	})
}

// MovieDetail implements engine.Catalog
func (c *CachedCatalog) MovieDetail(ctx context.Context, id int, language string) (*model.MovieDetail, error) {
	key := fmt.Sprintf("detail:%s:%d", orDefault(language), id)
	return cached(ctx, c, key, c.ttl.Detail, func(ctx context.Context) (*model.MovieDetail, error) {
		return c.inner.MovieDetail(ctx, id, language)
	})
}

// SimilarMovies implements engine.Catalog
func (c *CachedCatalog) SimilarMovies(ctx context.Context, id int, opts model.ListOptions) (*model.PagedMovies, error) {
	key := fmt.Sprintf("similar:%s:%d:%d", opts.LanguageOrDefault(), opts.PageOrDefault(), id)
	return cached(ctx, c, key, c.ttl.Similar, func(ctx context.Context) (*model.PagedMovies, error) {
		return c.inner.SimilarMovies(ctx, id, opts)
	})
}

// Credits implements engine.Catalog
func (c *CachedCatalog) Credits(ctx context.Context, id int, language string) (*model.CreditSet, error) {
	key := fmt.Sprintf("credits:%s:%d", orDefault(language), id)
	return cached(ctx, c, key, c.ttl.Credits, func(ctx context.Context) (*model.CreditSet, error) {
		return c.inner.Credits(ctx, id, language)
	})
}

func orDefault(language string) string {
	if language == "" {
		return model.DefaultLanguage
	}
	return language
}
