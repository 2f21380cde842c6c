package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"movies-sync-service/internal/model"

	"github.com/rs/zerolog/log"
)

// DefaultSimilarLimit is how many similar movies a detail screen keeps
const DefaultSimilarLimit = 5

// ErrDetailNotLoaded is returned by a toggle issued before the movie loaded
var ErrDetailNotLoaded = errors.New("movie detail not loaded")

// DetailConfig holds the collaborators and tuning of a detail screen.
type DetailConfig struct {
	Catalog     Catalog
	Store       WatchlistStore
	Coordinator *Coordinator

	Language string
	// SimilarLimit truncates the similar list. Zero means DefaultSimilarLimit.
	SimilarLimit int
	// TopLimit bounds the actor and director rankings. Zero means DefaultTopLimit.
	TopLimit int
}

func (c DetailConfig) resolve() DetailConfig {
	if c.Language == "" {
		c.Language = model.DefaultLanguage
	}
	if c.SimilarLimit <= 0 {
		c.SimilarLimit = DefaultSimilarLimit
	}
	if c.TopLimit <= 0 {
		c.TopLimit = DefaultTopLimit
	}
	if c.Coordinator == nil {
		c.Coordinator = NewCoordinator(c.Store, nil)
	}
	return c
}

// DetailSection is the primary detail sub-state
type DetailSection struct {
	Loading bool               `json:"loading"`
	Movie   *model.MovieDetail `json:"movie,omitempty"`
	Err     *Failure           `json:"error,omitempty"`
}

// SimilarSection is the similar-movies sub-state
type SimilarSection struct {
	Loading bool                 `json:"loading"`
	Movies  []model.MovieSummary `json:"movies"`
	Err     *Failure             `json:"error,omitempty"`
}

// CreditsSection is the cast/crew sub-state
type CreditsSection struct {
	Loading bool `json:"loading"`
	CreditAggregate
	Err *Failure `json:"error,omitempty"`
}

// DetailState is the view state of one detail screen. The three sections
// load and fail independently. Values are never mutated after publication.
type DetailState struct {
	MovieID int            `json:"movie_id"`
	Detail  DetailSection  `json:"detail"`
	Similar SimilarSection `json:"similar"`
	Credits CreditsSection `json:"credits"`
}

// DetailEngine owns the state of one movie detail screen.
type DetailEngine struct {
	movieID int
	cfg     DetailConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	state *stateFlow[DetailState]

	// similarSettled is closed once the similar section stops loading
	similarSettled chan struct{}
	settleOnce     sync.Once

	toggleMu  sync.Mutex
	toggleGen atomic.Uint64

	// memberMu guards the last observed membership. It is taken before the
	// state lock.
	memberMu  sync.Mutex
	members   membershipSet
	memberGen uint64
	// generation of the last emission that held / did not hold movieID
	seenIn, seenOut uint64
}

// OpenDetail mounts a detail screen for movieID and starts its three loads.
func OpenDetail(ctx context.Context, movieID int, cfg DetailConfig) *DetailEngine {
	cfg = cfg.resolve()
	ctx, cancel := context.WithCancel(ctx)

	e := &DetailEngine{
		movieID: movieID,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		state: newStateFlow(DetailState{
			MovieID: movieID,
			Detail:  DetailSection{Loading: true},
			Similar: SimilarSection{Loading: true, Movies: []model.MovieSummary{}},
			Credits: CreditsSection{Loading: true},
		}),
		similarSettled: make(chan struct{}),
	}

	e.wg.Add(3)
	go e.loadDetail()
	go e.loadSimilar()
	go e.loadCredits()

	// 订阅失败时页面仍可用，只是标记不再跟随其他页面的修改
	if feed, err := cfg.Store.Observe(ctx); err != nil {
		log.Warn().Err(err).Int("movie_id", movieID).Msg("Detail watchlist observe failed")
	} else {
		e.wg.Add(1)
		go e.runObserver(feed)
	}

	log.Debug().Int("movie_id", movieID).Msg("Detail screen opened")
	return e
}

// State returns the current view state
func (e *DetailEngine) State() DetailState {
	return e.state.load()
}

// Watch returns a channel carrying the current state and every later one.
func (e *DetailEngine) Watch() (<-chan DetailState, func()) {
	return e.state.watch()
}

// Close unmounts the screen and waits for its loads to stop.
func (e *DetailEngine) Close() {
	e.once.Do(func() {
		e.cancel()
		e.state.close()
		e.wg.Wait()
		log.Debug().Int("movie_id", e.movieID).Msg("Detail screen closed")
	})
}

// ToggleWatchlist adds the movie to the watchlist or removes it, depending
// on the flag the screen currently shows. On success the primary movie and
// any similar entry with the same id are flipped together.
func (e *DetailEngine) ToggleWatchlist(ctx context.Context) error {
	if e.ctx.Err() != nil {
		return ErrEngineClosed
	}

	e.toggleMu.Lock()
	defer e.toggleMu.Unlock()

	movie := e.state.load().Detail.Movie
	if movie == nil {
		return ErrDetailNotLoaded
	}

	e.memberMu.Lock()
	startGen := e.memberGen
	e.memberMu.Unlock()

	member, err := e.cfg.Coordinator.Toggle(ctx, model.RecordFromDetail(*movie), movie.InWatchlist)
	if err != nil {
		return err
	}

	e.toggleGen.Add(1)

	e.memberMu.Lock()
	defer e.memberMu.Unlock()
	seen := e.seenOut
	if member {
		seen = e.seenIn
	}
	if seen > startGen {
		// the observer already applied this write or a later one
		return nil
	}
	e.state.update(func(s DetailState) DetailState {
		if s.Detail.Movie != nil {
			m := *s.Detail.Movie
			m.InWatchlist = member
			s.Detail.Movie = &m
		}
		s.Similar.Movies = setFlag(s.Similar.Movies, s.MovieID, member)
		return s
	})
	return nil
}

// runObserver re-flags the primary movie and the similar list on every
// membership emission, so changes made by other screens show up here too.
func (e *DetailEngine) runObserver(feed <-chan []model.MovieRecord) {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case recs, ok := <-feed:
			if !ok {
				return
			}
			e.applyMembers(newMembershipSet(recs))
		}
	}
}

func (e *DetailEngine) applyMembers(set membershipSet) {
	e.memberMu.Lock()
	defer e.memberMu.Unlock()

	e.members = set
	e.memberGen++
	if set.has(e.movieID) {
		e.seenIn = e.memberGen
	} else {
		e.seenOut = e.memberGen
	}
	e.state.patch(func(s DetailState) (DetailState, bool) {
		return reflagDetail(s, set)
	})
}

// reflagDetail returns s with every watchlist flag taken from set, and
// whether any flag changed.
func reflagDetail(s DetailState, set membershipSet) (DetailState, bool) {
	changed := false
	if m := s.Detail.Movie; m != nil && m.InWatchlist != set.has(m.ID) {
		d := *m
		d.InWatchlist = !m.InWatchlist
		s.Detail.Movie = &d
		changed = true
	}
	for _, m := range s.Similar.Movies {
		if m.InWatchlist != set.has(m.ID) {
			s.Similar.Movies = withMembership(s.Similar.Movies, set)
			changed = true
			break
		}
	}
	return s, changed
}

// observedSince reports the membership seen by the observer if it has
// applied an emission after generation gen.
func (e *DetailEngine) observedSince(gen uint64) (membershipSet, bool) {
	if e.memberGen == gen {
		return nil, false
	}
	return e.members, true
}

func (e *DetailEngine) loadDetail() {
	defer e.wg.Done()

	detail, err := e.cfg.Catalog.MovieDetail(e.ctx, e.movieID, e.cfg.Language)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Int("movie_id", e.movieID).Msg("Detail load failed")
		e.setDetail(DetailSection{Err: transportFailure(ReasonDetailFailed)})
		return
	}

	e.memberMu.Lock()
	gen := e.memberGen
	e.memberMu.Unlock()

	member, err := e.cfg.Store.IsMember(e.ctx, e.movieID)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Int("movie_id", e.movieID).Msg("Detail membership read failed")
		e.setDetail(DetailSection{Err: storeFailure()})
		return
	}

	d := *detail
	d.InWatchlist = member

	e.memberMu.Lock()
	defer e.memberMu.Unlock()
	// an emission applied during the read is newer than the read
	if set, ok := e.observedSince(gen); ok {
		d.InWatchlist = set.has(d.ID)
	}
	e.setDetail(DetailSection{Movie: &d})
}

func (e *DetailEngine) setDetail(sec DetailSection) {
	e.state.update(func(s DetailState) DetailState {
		s.Detail = sec
		return s
	})
}

func (e *DetailEngine) loadSimilar() {
	defer e.wg.Done()
	defer e.settleSimilar()

	opts := model.ListOptions{Language: e.cfg.Language, Page: 1}
	page, err := e.cfg.Catalog.SimilarMovies(e.ctx, e.movieID, opts)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Int("movie_id", e.movieID).Msg("Similar movies load failed")
		e.setSimilar(SimilarSection{Movies: []model.MovieSummary{}, Err: transportFailure(ReasonSimilarFailed)})
		return
	}

	movies := page.Results
	if len(movies) > e.cfg.SimilarLimit {
		movies = movies[:e.cfg.SimilarLimit]
	}

	gen := e.toggleGen.Load()
	e.memberMu.Lock()
	memberGen := e.memberGen
	e.memberMu.Unlock()

	merged, err := mergeMembership(e.ctx, e.cfg.Store, movies)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Int("movie_id", e.movieID).Msg("Similar membership merge failed")
		e.setSimilar(SimilarSection{Movies: []model.MovieSummary{}, Err: storeFailure()})
		return
	}

	e.memberMu.Lock()
	defer e.memberMu.Unlock()
	if set, ok := e.observedSince(memberGen); ok {
		merged = withMembership(merged, set)
	}
	e.state.update(func(s DetailState) DetailState {
		// a toggle confirmed during the merge wins over the store read
		if e.toggleGen.Load() != gen && s.Detail.Movie != nil {
			merged = setFlag(merged, s.MovieID, s.Detail.Movie.InWatchlist)
		}
		s.Similar = SimilarSection{Movies: merged}
		return s
	})
}

func (e *DetailEngine) setSimilar(sec SimilarSection) {
	e.state.update(func(s DetailState) DetailState {
		s.Similar = sec
		return s
	})
}

func (e *DetailEngine) settleSimilar() {
	e.settleOnce.Do(func() { close(e.similarSettled) })
}

// loadCredits waits for the similar list to settle, then fetches the credits
// of the primary movie followed by each similar movie, one at a time. A
// failed fetch only drops that movie's credits.
func (e *DetailEngine) loadCredits() {
	defer e.wg.Done()

	select {
	case <-e.similarSettled:
	case <-e.ctx.Done():
		return
	}

	ids := []int{e.movieID}
	for _, m := range e.state.load().Similar.Movies {
		ids = append(ids, m.ID)
	}

	sets := make([]model.CreditSet, 0, len(ids))
	for _, id := range ids {
		if e.ctx.Err() != nil {
			return
		}
		cs, err := e.cfg.Catalog.Credits(e.ctx, id, e.cfg.Language)
		if err != nil {
			log.Debug().Err(err).Int("movie_id", id).Msg("Credits unavailable, skipped")
			continue
		}
		sets = append(sets, *cs)
	}
	if e.ctx.Err() != nil {
		return
	}

	if len(sets) == 0 {
		e.state.update(func(s DetailState) DetailState {
			s.Credits = CreditsSection{Err: &Failure{Kind: FailureNoCastData, Reason: ReasonNoCast}}
			return s
		})
		return
	}

	agg := AggregateCredits(sets, e.cfg.TopLimit)
	log.Debug().Int("movie_id", e.movieID).Int("sets", agg.Sets).Int("top_actors", len(agg.TopActors)).Msg("Credits aggregated")
	e.state.update(func(s DetailState) DetailState {
		s.Credits = CreditsSection{CreditAggregate: agg}
		return s
	})
}
