package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"movies-sync-service/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const watchlistSchema = `
    CREATE TABLE IF NOT EXISTS watchlist_movies (
        id                INTEGER PRIMARY KEY,
        title             TEXT NOT NULL,
        original_title    TEXT NOT NULL DEFAULT '',
        original_language TEXT NOT NULL DEFAULT '',
        overview          TEXT NOT NULL DEFAULT '',
        poster_path       TEXT NOT NULL DEFAULT '',
        release_date      TEXT NOT NULL DEFAULT '',
        vote_average      DOUBLE PRECISION NOT NULL DEFAULT 0,
        vote_count        INTEGER NOT NULL DEFAULT 0,
        popularity        DOUBLE PRECISION NOT NULL DEFAULT 0,
        added_at          TIMESTAMPTZ NOT NULL DEFAULT now()
    )
`

// PostgresWatchlist keeps the watchlist in a single Postgres table
type PostgresWatchlist struct {
	pool *pgxpool.Pool
	feed *memberFeed

	mu sync.Mutex
}

// NewPostgresWatchlist connects to dsn and creates the table when missing
func NewPostgresWatchlist(ctx context.Context, dsn string) (*PostgresWatchlist, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database failed: %w", err)
	}

	if _, err := pool.Exec(ctx, watchlistSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create watchlist table: %w", err)
	}

	log.Info().Str("host", cfg.ConnConfig.Host).Msg("✅ Postgres watchlist ready")
	return &PostgresWatchlist{pool: pool, feed: newMemberFeed()}, nil
}

// IsMember reports whether id is saved
func (w *PostgresWatchlist) IsMember(ctx context.Context, id int) (bool, error) {
	var ok bool
	err := w.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM watchlist_movies WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("watchlist membership: %w", err)
	}
	return ok, nil
}

// Add saves rec. Saving an existing movie refreshes its fields but keeps added_at.
func (w *PostgresWatchlist) Add(ctx context.Context, rec model.MovieRecord) error {
	const query = `
        INSERT INTO watchlist_movies
            (id, title, original_title, original_language, overview, poster_path,
             release_date, vote_average, vote_count, popularity, added_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,COALESCE($11, now()))
        ON CONFLICT (id) DO UPDATE SET
            title = EXCLUDED.title,
            original_title = EXCLUDED.original_title,
            original_language = EXCLUDED.original_language,
            overview = EXCLUDED.overview,
            poster_path = EXCLUDED.poster_path,
            release_date = EXCLUDED.release_date,
            vote_average = EXCLUDED.vote_average,
            vote_count = EXCLUDED.vote_count,
            popularity = EXCLUDED.popularity
    `
	var addedAt *time.Time
	if !rec.AddedAt.IsZero() {
		addedAt = &rec.AddedAt
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := w.pool.Exec(ctx, query,
		rec.ID, rec.Title, rec.OriginalTitle, rec.OriginalLanguage, rec.Overview, rec.PosterPath,
		rec.ReleaseDate, rec.VoteAverage, rec.VoteCount, rec.Popularity, addedAt,
	)
	if err != nil {
		return fmt.Errorf("insert watchlist movie: %w", err)
	}

	log.Info().Int("movie_id", rec.ID).Str("title", rec.Title).Msg("⭐ Added to watchlist")
	w.publishLocked(ctx)
	return nil
}

// Remove deletes id from the watchlist. Removing an absent movie is a no-op.
func (w *PostgresWatchlist) Remove(ctx context.Context, id int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tag, err := w.pool.Exec(ctx, `DELETE FROM watchlist_movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete watchlist movie: %w", err)
	}
	if tag.RowsAffected() > 0 {
		log.Info().Int("movie_id", id).Msg("🗑️ Removed from watchlist")
		w.publishLocked(ctx)
	}
	return nil
}

// Members returns the saved movies in the order they were added
func (w *PostgresWatchlist) Members(ctx context.Context) ([]model.MovieRecord, error) {
	const query = `
        SELECT id, title, original_title, original_language, overview, poster_path,
               release_date, vote_average, vote_count, popularity, added_at
        FROM watchlist_movies
        ORDER BY added_at, id
    `
	rows, err := w.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}

	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.MovieRecord, error) {
		var r model.MovieRecord
		err := row.Scan(
			&r.ID, &r.Title, &r.OriginalTitle, &r.OriginalLanguage, &r.Overview, &r.PosterPath,
			&r.ReleaseDate, &r.VoteAverage, &r.VoteCount, &r.Popularity, &r.AddedAt,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan watchlist: %w", err)
	}
	if recs == nil {
		recs = []model.MovieRecord{}
	}
	return recs, nil
}

// Observe emits the saved movies now and after every change until ctx ends
func (w *PostgresWatchlist) Observe(ctx context.Context) (<-chan []model.MovieRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap, err := w.Members(ctx)
	if err != nil {
		return nil, err
	}
	return w.feed.subscribe(ctx, snap), nil
}

// Close releases the pool
func (w *PostgresWatchlist) Close() {
	w.pool.Close()
}

func (w *PostgresWatchlist) publishLocked(ctx context.Context) {
	snap, err := w.Members(context.WithoutCancel(ctx))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read watchlist after write")
		return
	}
	w.feed.publish(snap)
}
