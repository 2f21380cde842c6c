package engine

import (
	"context"
	"errors"
	"fmt"

	"movies-sync-service/internal/model"

	"github.com/rs/zerolog/log"
)

// ErrMutationFailed is returned when the watchlist store rejects a write
var ErrMutationFailed = errors.New(ReasonMutationFailed)

// Mutation ops reported to the recorder
const (
	OpAdd    = "add"
	OpRemove = "remove"
)

// Coordinator performs watchlist mutations on behalf of every engine. It
// never touches view state: engines learn about the new membership either
// from its return value (detail screen) or from the store's observation
// stream (browse screen).
type Coordinator struct {
	store    WatchlistStore
	recorder MutationRecorder
}

// NewCoordinator creates a Coordinator. recorder may be nil.
func NewCoordinator(store WatchlistStore, recorder MutationRecorder) *Coordinator {
	return &Coordinator{
		store:    store,
		recorder: recorder,
	}
}

// Add saves rec. A nil error means the store has durably applied the write.
func (c *Coordinator) Add(ctx context.Context, rec model.MovieRecord) error {
	err := c.store.Add(ctx, rec)
	c.record(ctx, OpAdd, err == nil)
	if err != nil {
		log.Warn().Err(err).Int("movie_id", rec.ID).Msg("Watchlist add failed")
		return fmt.Errorf("%w: add movie %d: %v", ErrMutationFailed, rec.ID, err)
	}
	log.Debug().Int("movie_id", rec.ID).Msg("Watchlist add")
	return nil
}

// Remove deletes the movie with the given id from the watchlist
func (c *Coordinator) Remove(ctx context.Context, id int) error {
	err := c.store.Remove(ctx, id)
	c.record(ctx, OpRemove, err == nil)
	if err != nil {
		log.Warn().Err(err).Int("movie_id", id).Msg("Watchlist remove failed")
		return fmt.Errorf("%w: remove movie %d: %v", ErrMutationFailed, id, err)
	}
	log.Debug().Int("movie_id", id).Msg("Watchlist remove")
	return nil
}

// Toggle removes the movie when member is true and adds rec otherwise.
// It returns the membership the store now holds for rec.ID.
func (c *Coordinator) Toggle(ctx context.Context, rec model.MovieRecord, member bool) (bool, error) {
	if member {
		if err := c.Remove(ctx, rec.ID); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := c.Add(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) record(ctx context.Context, op string, ok bool) {
	if c.recorder != nil {
		c.recorder.RecordWatchlistMutation(ctx, op, ok)
	}
}

// membershipSet indexes watchlist records by movie id
type membershipSet map[int]struct{}

func newMembershipSet(recs []model.MovieRecord) membershipSet {
	set := make(membershipSet, len(recs))
	for _, r := range recs {
		set[r.ID] = struct{}{}
	}
	return set
}

func (s membershipSet) has(id int) bool {
	_, ok := s[id]
	return ok
}

// withMembership returns a copy of movies with flags taken from set
func withMembership(movies []model.MovieSummary, set membershipSet) []model.MovieSummary {
	if movies == nil {
		return nil
	}
	out := make([]model.MovieSummary, len(movies))
	for i, m := range movies {
		m.InWatchlist = set.has(m.ID)
		out[i] = m
	}
	return out
}

// mergeMembership asks the store for each movie's membership and returns a
// flagged copy of movies.
func mergeMembership(ctx context.Context, store WatchlistStore, movies []model.MovieSummary) ([]model.MovieSummary, error) {
	out := make([]model.MovieSummary, len(movies))
	for i, m := range movies {
		member, err := store.IsMember(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("membership of movie %d: %w", m.ID, err)
		}
		m.InWatchlist = member
		out[i] = m
	}
	return out, nil
}

// setFlag returns a copy of movies where entries with the given id carry
// member. The input slice is returned untouched when nothing matches.
func setFlag(movies []model.MovieSummary, id int, member bool) []model.MovieSummary {
	idx := -1
	for i := range movies {
		if movies[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return movies
	}
	out := make([]model.MovieSummary, len(movies))
	copy(out, movies)
	for i := idx; i < len(out); i++ {
		if out[i].ID == id {
			out[i].InWatchlist = member
		}
	}
	return out
}
