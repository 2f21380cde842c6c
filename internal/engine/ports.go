// Package engine holds the per-screen state containers of the movie client:
// the browse/search list engine, the detail aggregation engine and the
// watchlist mutation coordinator they share.
package engine

import (
	"context"

	"movies-sync-service/internal/model"
)

// Catalog is the remote movie catalog. Satisfied by *service.TMDBService and
// *service.CachedCatalog.
type Catalog interface {
	SearchMovies(ctx context.Context, query string, opts model.ListOptions) (*model.PagedMovies, error)
	PopularMovies(ctx context.Context, opts model.ListOptions) (*model.PagedMovies, error)
	MovieDetail(ctx context.Context, id int, language string) (*model.MovieDetail, error)
	SimilarMovies(ctx context.Context, id int, opts model.ListOptions) (*model.PagedMovies, error)
	Credits(ctx context.Context, id int, language string) (*model.CreditSet, error)
}

// WatchlistStore is the persisted set of saved movies. Satisfied by
// *repository.RedisWatchlist and *repository.PostgresWatchlist.
//
// Observe emits the full current set at subscription time and again after
// every change. The channel is closed when ctx is done.
type WatchlistStore interface {
	IsMember(ctx context.Context, id int) (bool, error)
	Add(ctx context.Context, rec model.MovieRecord) error
	Remove(ctx context.Context, id int) error
	Observe(ctx context.Context) (<-chan []model.MovieRecord, error)
}

// MutationRecorder receives the outcome of every watchlist mutation.
// Satisfied by *repository.Metrics.
type MutationRecorder interface {
	RecordWatchlistMutation(ctx context.Context, op string, ok bool)
}
