package engine

import (
	"context"
	"testing"
	"time"

	"movies-sync-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDetail(t *testing.T, id int, catalog *fakeCatalog, store *fakeStore) *DetailEngine {
	t.Helper()
	e := OpenDetail(context.Background(), id, DetailConfig{Catalog: catalog, Store: store})
	t.Cleanup(e.Close)
	return e
}

func requireDetail(t *testing.T, e *DetailEngine, cond func(DetailState) bool) DetailState {
	t.Helper()
	var got DetailState
	require.Eventually(t, func() bool {
		s := e.State()
		if !cond(s) {
			return false
		}
		got = s
		return true
	}, waitFor, tick)
	return got
}

func settled(s DetailState) bool {
	return !s.Detail.Loading && !s.Similar.Loading && !s.Credits.Loading
}

func stubDetail(_ context.Context, id int) (*model.MovieDetail, error) {
	return &model.MovieDetail{MovieSummary: movie(id, "2010-07-16"), Tagline: "dream", Runtime: 148}, nil
}

func TestDetailLoadsAllSections(t *testing.T) {
	catalog := &fakeCatalog{
		detail: stubDetail,
		similar: func(context.Context, int) (*model.PagedMovies, error) {
			var ms []model.MovieSummary
			for i := 1; i <= 8; i++ {
				ms = append(ms, movie(i, ""))
			}
			return paged(ms...), nil
		},
		credits: func(_ context.Context, id int) (*model.CreditSet, error) {
			return &model.CreditSet{ID: id, Cast: []model.CastMember{actor(id, float64(id))}}, nil
		},
	}
	store := newFakeStore(27205, 3)
	e := openDetail(t, 27205, catalog, store)

	s := requireDetail(t, e, settled)

	require.NotNil(t, s.Detail.Movie)
	assert.True(t, s.Detail.Movie.InWatchlist)
	assert.Equal(t, "dream", s.Detail.Movie.Tagline)

	require.Len(t, s.Similar.Movies, DefaultSimilarLimit)
	assert.Equal(t, 1, s.Similar.Movies[0].ID)
	assert.True(t, s.Similar.Movies[2].InWatchlist)
	assert.False(t, s.Similar.Movies[0].InWatchlist)

	assert.Equal(t, []int{27205, 1, 2, 3, 4, 5}, catalog.CreditCalls())
	assert.Equal(t, 6, s.Credits.Sets)
	require.Len(t, s.Credits.TopActors, 5)
	assert.Equal(t, 27205, s.Credits.TopActors[0].ID)
	assert.Nil(t, s.Credits.Err)
}

func TestDetailCreditsWaitForSimilar(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{
		detail: stubDetail,
		similar: func(ctx context.Context, _ int) (*model.PagedMovies, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return paged(movie(2, "")), nil
		},
		credits: func(_ context.Context, id int) (*model.CreditSet, error) {
			return &model.CreditSet{ID: id}, nil
		},
	}
	e := openDetail(t, 1, catalog, newFakeStore())

	requireDetail(t, e, func(s DetailState) bool { return !s.Detail.Loading })
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, catalog.CreditCalls())
	assert.True(t, e.State().Credits.Loading)

	close(release)
	requireDetail(t, e, settled)
	assert.Equal(t, []int{1, 2}, catalog.CreditCalls())
}

func TestDetailPartialCreditFailuresAbsorbed(t *testing.T) {
	catalog := &fakeCatalog{
		detail: stubDetail,
		similar: func(context.Context, int) (*model.PagedMovies, error) {
			return paged(movie(2, ""), movie(3, "")), nil
		},
		credits: func(_ context.Context, id int) (*model.CreditSet, error) {
			if id != 3 {
				return nil, errBoom
			}
			return &model.CreditSet{ID: 3, Crew: []model.CrewMember{{ID: 9, Department: DepartmentDirecting, Job: JobDirector}}}, nil
		},
	}
	e := openDetail(t, 1, catalog, newFakeStore())

	s := requireDetail(t, e, settled)

	assert.Nil(t, s.Credits.Err)
	assert.Equal(t, 1, s.Credits.Sets)
	require.Len(t, s.Credits.TopDirectors, 1)
	assert.Equal(t, 9, s.Credits.TopDirectors[0].ID)
}

func TestDetailNoCastData(t *testing.T) {
	catalog := &fakeCatalog{
		detail: stubDetail,
		similar: func(context.Context, int) (*model.PagedMovies, error) {
			return paged(movie(2, "")), nil
		},
	}
	e := openDetail(t, 1, catalog, newFakeStore())

	s := requireDetail(t, e, func(s DetailState) bool { return !s.Credits.Loading })

	require.NotNil(t, s.Credits.Err)
	assert.Equal(t, FailureNoCastData, s.Credits.Err.Kind)
	assert.Equal(t, ReasonNoCast, s.Credits.Err.Reason)
	assert.False(t, s.Credits.Loading)
}

func TestDetailSectionsFailIndependently(t *testing.T) {
	catalog := &fakeCatalog{
		similar: func(context.Context, int) (*model.PagedMovies, error) {
			return paged(movie(2, "")), nil
		},
		credits: func(_ context.Context, id int) (*model.CreditSet, error) {
			return &model.CreditSet{ID: id}, nil
		},
	}
	e := openDetail(t, 1, catalog, newFakeStore())

	s := requireDetail(t, e, settled)

	require.NotNil(t, s.Detail.Err)
	assert.Equal(t, FailureTransport, s.Detail.Err.Kind)
	assert.Nil(t, s.Detail.Movie)
	assert.Len(t, s.Similar.Movies, 1)
	assert.Nil(t, s.Similar.Err)
	assert.Nil(t, s.Credits.Err)
}

func TestDetailSimilarFailureStillAggregatesPrimary(t *testing.T) {
	catalog := &fakeCatalog{
		detail: stubDetail,
		similar: func(context.Context, int) (*model.PagedMovies, error) {
			return nil, errBoom
		},
		credits: func(_ context.Context, id int) (*model.CreditSet, error) {
			return &model.CreditSet{ID: id, Cast: []model.CastMember{actor(5, 1)}}, nil
		},
	}
	e := openDetail(t, 1, catalog, newFakeStore())

	s := requireDetail(t, e, settled)

	require.NotNil(t, s.Similar.Err)
	assert.Equal(t, ReasonSimilarFailed, s.Similar.Err.Reason)
	assert.NotNil(t, s.Detail.Movie)
	assert.Equal(t, []int{1}, catalog.CreditCalls())
	assert.Len(t, s.Credits.TopActors, 1)
}

func TestDetailToggleFlipsPrimaryAndSimilarEntry(t *testing.T) {
	catalog := &fakeCatalog{
		detail: stubDetail,
		similar: func(context.Context, int) (*model.PagedMovies, error) {
			return paged(movie(3, ""), movie(7, ""), movie(8, "")), nil
		},
	}
	store := newFakeStore()
	e := openDetail(t, 7, catalog, store)
	requireDetail(t, e, settled)

	require.NoError(t, e.ToggleWatchlist(context.Background()))

	s := e.State()
	assert.True(t, store.Has(7))
	assert.True(t, s.Detail.Movie.InWatchlist)
	assert.True(t, s.Similar.Movies[1].InWatchlist)
	assert.False(t, s.Similar.Movies[0].InWatchlist)
	assert.False(t, s.Similar.Movies[2].InWatchlist)

	require.NoError(t, e.ToggleWatchlist(context.Background()))

	s = e.State()
	assert.False(t, store.Has(7))
	assert.False(t, s.Detail.Movie.InWatchlist)
	assert.False(t, s.Similar.Movies[1].InWatchlist)
}

func TestDetailFlagsFollowWatchlistChangesElsewhere(t *testing.T) {
	catalog := &fakeCatalog{
		detail: stubDetail,
		similar: func(context.Context, int) (*model.PagedMovies, error) {
			return paged(movie(1, ""), movie(2, "")), nil
		},
	}
	store := newFakeStore()
	e := openDetail(t, 1, catalog, store)
	requireDetail(t, e, settled)

	// another screen writes through its own coordinator
	other := NewCoordinator(store, nil)
	ctx := context.Background()
	require.NoError(t, other.Add(ctx, model.MovieRecord{ID: 1}))
	require.NoError(t, other.Add(ctx, model.MovieRecord{ID: 2}))

	requireDetail(t, e, func(s DetailState) bool {
		return s.Detail.Movie.InWatchlist &&
			s.Similar.Movies[0].InWatchlist &&
			s.Similar.Movies[1].InWatchlist
	})

	require.NoError(t, other.Remove(ctx, 1))

	s := requireDetail(t, e, func(s DetailState) bool {
		return !s.Detail.Movie.InWatchlist && !s.Similar.Movies[0].InWatchlist
	})
	assert.True(t, s.Similar.Movies[1].InWatchlist)

	// the next toggle starts from the observed flag
	require.NoError(t, e.ToggleWatchlist(ctx))
	assert.True(t, store.Has(1))
	assert.True(t, e.State().Detail.Movie.InWatchlist)
}

func TestDetailIgnoresUnrelatedWatchlistChanges(t *testing.T) {
	catalog := &fakeCatalog{
		detail: stubDetail,
		similar: func(context.Context, int) (*model.PagedMovies, error) {
			return paged(movie(2, "")), nil
		},
	}
	store := newFakeStore()
	e := openDetail(t, 1, catalog, store)
	requireDetail(t, e, settled)

	states, detach := e.Watch()
	defer detach()
	<-states

	require.NoError(t, store.Add(context.Background(), model.MovieRecord{ID: 99}))

	select {
	case s := <-states:
		t.Fatalf("unexpected state published: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDetailToggleFailureLeavesState(t *testing.T) {
	catalog := &fakeCatalog{detail: stubDetail}
	store := newFakeStore()
	e := openDetail(t, 7, catalog, store)
	before := requireDetail(t, e, settled)

	store.mu.Lock()
	store.failAdd = true
	store.mu.Unlock()

	err := e.ToggleWatchlist(context.Background())
	require.ErrorIs(t, err, ErrMutationFailed)
	assert.Equal(t, before, e.State())
}

func TestDetailToggleBeforeLoad(t *testing.T) {
	e := openDetail(t, 7, &fakeCatalog{}, newFakeStore())
	requireDetail(t, e, func(s DetailState) bool { return !s.Detail.Loading })

	assert.ErrorIs(t, e.ToggleWatchlist(context.Background()), ErrDetailNotLoaded)
}

func TestDetailCloseStopsUpdates(t *testing.T) {
	release := make(chan struct{})
	catalog := &fakeCatalog{
		detail: func(ctx context.Context, id int) (*model.MovieDetail, error) {
			<-release
			return &model.MovieDetail{MovieSummary: movie(id, "")}, nil
		},
	}
	e := openDetail(t, 1, catalog, newFakeStore())
	states, detach := e.Watch()
	defer detach()

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	e.Close()

	assert.True(t, e.State().Detail.Loading)
	for range states {
	}
	assert.ErrorIs(t, e.ToggleWatchlist(context.Background()), ErrEngineClosed)
}
