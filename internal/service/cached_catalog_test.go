package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"movies-sync-service/internal/model"
	"movies-sync-service/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCatalog answers every call with a fixed movie and counts upstream hits
type countingCatalog struct {
	calls atomic.Int32
	gate  chan struct{}
	fail  bool
}

func (c *countingCatalog) wait() error {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.fail {
		return errors.New("upstream down")
	}
	return nil
}

func (c *countingCatalog) SearchMovies(_ context.Context, q string, _ model.ListOptions) (*model.PagedMovies, error) {
	if err := c.wait(); err != nil {
		return nil, err
	}
	return &model.PagedMovies{Page: 1, Results: []model.MovieSummary{{ID: 1, Title: q}}}, nil
}

func (c *countingCatalog) PopularMovies(context.Context, model.ListOptions) (*model.PagedMovies, error) {
	if err := c.wait(); err != nil {
		return nil, err
	}
	return &model.PagedMovies{Page: 1, Results: []model.MovieSummary{{ID: 2}}}, nil
}

func (c *countingCatalog) MovieDetail(_ context.Context, id int, _ string) (*model.MovieDetail, error) {
	if err := c.wait(); err != nil {
		return nil, err
	}
	return &model.MovieDetail{MovieSummary: model.MovieSummary{ID: id}, Runtime: 90}, nil
}

func (c *countingCatalog) SimilarMovies(context.Context, int, model.ListOptions) (*model.PagedMovies, error) {
	if err := c.wait(); err != nil {
		return nil, err
	}
	return &model.PagedMovies{Page: 1}, nil
}

func (c *countingCatalog) Credits(_ context.Context, id int, _ string) (*model.CreditSet, error) {
	if err := c.wait(); err != nil {
		return nil, err
	}
	return &model.CreditSet{ID: id}, nil
}

func newCachedCatalog(t *testing.T, inner *countingCatalog) (*CachedCatalog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := repository.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ttl := CacheTTLs{Popular: time.Minute, Search: time.Minute, Detail: time.Hour, Similar: time.Hour, Credits: time.Hour}
	return NewCachedCatalog(inner, repository.NewCache(client, time.Minute), ttl), mr
}

func TestCachedCatalogServesSecondCallFromRedis(t *testing.T) {
	inner := &countingCatalog{}
	c, mr := newCachedCatalog(t, inner)
	ctx := context.Background()

	first, err := c.MovieDetail(ctx, 42, "")
	require.NoError(t, err)
	second, err := c.MovieDetail(ctx, 42, "en-US")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, inner.calls.Load())
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1}, c.Stats())
	assert.Equal(t, time.Hour, mr.TTL(repository.CacheKeyPrefix+"detail:en-US:42"))
}

func TestCachedCatalogKeysSeparateQueries(t *testing.T) {
	inner := &countingCatalog{}
	c, _ := newCachedCatalog(t, inner)
	ctx := context.Background()

	a, err := c.SearchMovies(ctx, "alien", model.ListOptions{})
	require.NoError(t, err)
	b, err := c.SearchMovies(ctx, "aliens", model.ListOptions{})
	require.NoError(t, err)

	assert.Equal(t, "alien", a.Results[0].Title)
	assert.Equal(t, "aliens", b.Results[0].Title)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestCachedCatalogCollapsesConcurrentMisses(t *testing.T) {
	inner := &countingCatalog{gate: make(chan struct{})}
	c, _ := newCachedCatalog(t, inner)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.PopularMovies(context.Background(), model.ListOptions{})
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.gate)
	wg.Wait()

	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachedCatalogDoesNotCacheErrors(t *testing.T) {
	inner := &countingCatalog{fail: true}
	c, mr := newCachedCatalog(t, inner)
	ctx := context.Background()

	_, err := c.Credits(ctx, 7, "")
	require.Error(t, err)
	_, err = c.Credits(ctx, 7, "")
	require.Error(t, err)

	assert.EqualValues(t, 2, inner.calls.Load())
	assert.False(t, mr.Exists(repository.CacheKeyPrefix+"credits:en-US:7"))
}
