package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"movies-sync-service/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	watchlistHashKey  = "watchlist:movies"
	watchlistOrderKey = "watchlist:order"
)

// RedisWatchlist keeps the watchlist in a hash of JSON records plus a sorted
// set ordering ids by the time they were added.
type RedisWatchlist struct {
	client *redis.Client
	feed   *memberFeed
	now    func() time.Time

	// mu serializes writes with their feed publication
	mu sync.Mutex
}

// NewRedisWatchlist creates a watchlist on an existing client
func NewRedisWatchlist(client *redis.Client) *RedisWatchlist {
	return &RedisWatchlist{
		client: client,
		feed:   newMemberFeed(),
		now:    time.Now,
	}
}

// IsMember reports whether id is saved
func (w *RedisWatchlist) IsMember(ctx context.Context, id int) (bool, error) {
	ok, err := w.client.HExists(ctx, watchlistHashKey, strconv.Itoa(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis hexists error: %w", err)
	}
	return ok, nil
}

// Add saves rec, keeping the original position of an already saved movie
func (w *RedisWatchlist) Add(ctx context.Context, rec model.MovieRecord) error {
	member := strconv.Itoa(rec.ID)

	w.mu.Lock()
	defer w.mu.Unlock()

	// 重复添加时保留首次添加时间
	raw, err := w.client.HGet(ctx, watchlistHashKey, member).Result()
	switch {
	case err == nil:
		var prev model.MovieRecord
		if jsonErr := json.Unmarshal([]byte(raw), &prev); jsonErr == nil && !prev.AddedAt.IsZero() {
			rec.AddedAt = prev.AddedAt
		}
	case !errors.Is(err, redis.Nil):
		return fmt.Errorf("redis hget error: %w", err)
	}
	if rec.AddedAt.IsZero() {
		rec.AddedAt = w.now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, watchlistHashKey, member, data)
		pipe.ZAddNX(ctx, watchlistOrderKey, redis.Z{Score: float64(rec.AddedAt.UnixNano()), Member: member})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis watchlist add: %w", err)
	}

	log.Info().Int("movie_id", rec.ID).Str("title", rec.Title).Msg("⭐ Added to watchlist")
	w.publishLocked(ctx)
	return nil
}

// Remove deletes id from the watchlist. Removing an absent movie is a no-op.
func (w *RedisWatchlist) Remove(ctx context.Context, id int) error {
	member := strconv.Itoa(id)

	w.mu.Lock()
	defer w.mu.Unlock()

	var del *redis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.HDel(ctx, watchlistHashKey, member)
		pipe.ZRem(ctx, watchlistOrderKey, member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis watchlist remove: %w", err)
	}

	if del.Val() > 0 {
		log.Info().Int("movie_id", id).Msg("🗑️ Removed from watchlist")
		w.publishLocked(ctx)
	}
	return nil
}

// Members returns the saved movies in the order they were added
func (w *RedisWatchlist) Members(ctx context.Context) ([]model.MovieRecord, error) {
	ids, err := w.client.ZRange(ctx, watchlistOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange error: %w", err)
	}
	if len(ids) == 0 {
		return []model.MovieRecord{}, nil
	}

	vals, err := w.client.HMGet(ctx, watchlistHashKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget error: %w", err)
	}

	recs := make([]model.MovieRecord, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// order entry without a record, left behind by an interrupted write
			continue
		}
		var rec model.MovieRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			log.Warn().Err(err).Str("movie_id", ids[i]).Msg("Skipping corrupt watchlist record")
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Observe emits the saved movies now and after every change until ctx ends
func (w *RedisWatchlist) Observe(ctx context.Context) (<-chan []model.MovieRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap, err := w.Members(ctx)
	if err != nil {
		return nil, err
	}
	return w.feed.subscribe(ctx, snap), nil
}

func (w *RedisWatchlist) publishLocked(ctx context.Context) {
	// the write already succeeded; a failed read only delays observers
	snap, err := w.Members(context.WithoutCancel(ctx))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read watchlist after write")
		return
	}
	w.feed.publish(snap)
}
