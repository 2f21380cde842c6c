package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"movies-sync-service/internal/model"

	"github.com/rs/zerolog/log"
)

// Browse pipeline defaults
const (
	DefaultSearchDebounce = 300 * time.Millisecond
	DefaultMinQueryLength = 3
)

var (
	// ErrMovieNotHeld is returned when a toggle names a movie the screen does not show
	ErrMovieNotHeld = errors.New("movie not held by screen")
	// ErrEngineClosed is returned by operations on an unmounted screen
	ErrEngineClosed = errors.New("screen closed")
)

// BrowseConfig holds the collaborators and tuning of a browse screen.
type BrowseConfig struct {
	Catalog     Catalog
	Store       WatchlistStore
	Coordinator *Coordinator

	// Debounce is the quiet period after the last keystroke before a query
	// is dispatched. Zero means DefaultSearchDebounce.
	Debounce time.Duration
	// MinQueryLength is the shortest query, in characters, that is sent to
	// the catalog. Zero means DefaultMinQueryLength.
	MinQueryLength int

	Language     string
	IncludeAdult bool
}

func (c BrowseConfig) resolve() BrowseConfig {
	if c.Debounce <= 0 {
		c.Debounce = DefaultSearchDebounce
	}
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = DefaultMinQueryLength
	}
	if c.Language == "" {
		c.Language = model.DefaultLanguage
	}
	if c.Coordinator == nil {
		c.Coordinator = NewCoordinator(c.Store, nil)
	}
	return c
}

// BrowseEngine owns the state of one browse/search screen.
//
// Keystrokes go through debounce and duplicate suppression before they are
// dispatched. Only the result of the latest dispatch is ever applied. The
// watchlist flags of every held movie follow the store's membership feed.
type BrowseEngine struct {
	cfg BrowseConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	input   chan string
	state   *stateFlow[BrowseState]
	effects *effectBus

	// mu guards the held lists and publishes state so that a stale load can
	// never interleave with a newer one.
	mu        sync.Mutex
	popular   []model.MovieSummary
	search    []model.MovieSummary
	query     string
	seq       uint64
	members   membershipSet
	memberGen uint64
}

// OpenBrowse mounts a browse screen. It subscribes to the watchlist feed and
// starts loading popular movies; the returned engine starts in BrowseLoading.
func OpenBrowse(ctx context.Context, cfg BrowseConfig) (*BrowseEngine, error) {
	if cfg.Catalog == nil || cfg.Store == nil {
		return nil, errors.New("browse: catalog and store are required")
	}
	cfg = cfg.resolve()

	ctx, cancel := context.WithCancel(ctx)
	feed, err := cfg.Store.Observe(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("browse: observe watchlist: %w", err)
	}

	e := &BrowseEngine{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		input:   make(chan string, 16),
		state:   newStateFlow[BrowseState](BrowseLoading{}),
		effects: newEffectBus(8),
	}

	e.wg.Add(2)
	go e.runPipeline()
	go e.runObserver(feed)

	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()
	e.spawn(func() { e.loadPopular(seq) })

	log.Debug().Dur("debounce", cfg.Debounce).Msg("Browse screen opened")
	return e, nil
}

// Search feeds one keystroke (the full text of the search box) into the
// query pipeline.
func (e *BrowseEngine) Search(query string) {
	select {
	case e.input <- query:
	case <-e.ctx.Done():
	}
}

// State returns the current view state
func (e *BrowseEngine) State() BrowseState {
	return e.state.load()
}

// Watch returns a channel carrying the current state and every later one.
// A slow reader only sees the latest. Call the returned func to detach.
func (e *BrowseEngine) Watch() (<-chan BrowseState, func()) {
	return e.state.watch()
}

// Effects returns the stream of transient watchlist notifications. It is
// closed by Close.
func (e *BrowseEngine) Effects() <-chan Effect {
	return e.effects.ch
}

// ToggleWatchlist adds or removes a movie shown by the screen. The screen's
// flags change only once the store reports the new membership.
func (e *BrowseEngine) ToggleWatchlist(ctx context.Context, movieID int) error {
	if e.ctx.Err() != nil {
		return ErrEngineClosed
	}

	e.mu.Lock()
	movie, ok := findMovie(e.search, movieID)
	if !ok {
		movie, ok = findMovie(e.popular, movieID)
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrMovieNotHeld, movieID)
	}

	_, err := e.cfg.Coordinator.Toggle(ctx, model.RecordFromSummary(movie), movie.InWatchlist)
	return err
}

// Close unmounts the screen. No state or effect is delivered afterwards and
// the Watch and Effects channels are closed.
func (e *BrowseEngine) Close() {
	e.once.Do(func() {
		e.cancel()
		e.state.close()
		e.effects.close()
		e.wg.Wait()
		log.Debug().Msg("Browse screen closed")
	})
}

func (e *BrowseEngine) spawn(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// runPipeline debounces raw input, drops repeats of the last delivered
// value and dispatches the rest.
func (e *BrowseEngine) runPipeline() {
	defer e.wg.Done()

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
		last    string // the pipeline starts as if "" had been delivered
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-e.ctx.Done():
			return
		case q := <-e.input:
			pending = q
			if timer == nil {
				timer = time.NewTimer(e.cfg.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(e.cfg.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if pending == last {
				log.Debug().Str("query", pending).Msg("Browse query unchanged, skipped")
				continue
			}
			last = pending
			e.dispatch(pending)
		}
	}
}

func (e *BrowseEngine) dispatch(query string) {
	n := utf8.RuneCountInString(query)
	switch {
	case n == 0:
		e.dispatchReset()
	case n >= e.cfg.MinQueryLength:
		e.dispatchSearch(query)
	default:
		log.Debug().Str("query", query).Msg("Browse query too short, no dispatch")
	}
}

func (e *BrowseEngine) dispatchSearch(query string) {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.state.set(BrowseLoading{})
	e.mu.Unlock()

	log.Debug().Str("query", query).Uint64("seq", seq).Msg("Browse search dispatched")
	e.spawn(func() { e.loadSearch(seq, query) })
}

// dispatchReset leaves search mode. Popular movies are fetched only when
// none are held yet.
func (e *BrowseEngine) dispatchReset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	seq := e.seq
	if len(e.popular) == 0 {
		e.state.set(BrowseLoading{})
		e.spawn(func() { e.loadPopular(seq) })
		return
	}
	e.search = nil
	e.query = ""
	e.publishResultLocked()
}

func (e *BrowseEngine) loadSearch(seq uint64, query string) {
	opts := model.ListOptions{Language: e.cfg.Language, Page: 1, IncludeAdult: e.cfg.IncludeAdult}
	page, err := e.cfg.Catalog.SearchMovies(e.ctx, query, opts)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("query", query).Msg("Browse search failed")
		e.fail(seq, transportFailure(ReasonSearchFailed))
		return
	}
	if len(page.Results) == 0 {
		e.fail(seq, emptyFailure(ReasonNoResults))
		return
	}

	movies, gen, err := e.merge(page.Results)
	if err != nil {
		e.fail(seq, storeFailure())
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.seq {
		log.Debug().Str("query", query).Uint64("seq", seq).Msg("Browse search result superseded")
		return
	}
	if gen != e.memberGen {
		movies = withMembership(movies, e.members)
	}
	e.search = movies
	e.query = query
	e.publishResultLocked()
}

func (e *BrowseEngine) loadPopular(seq uint64) {
	opts := model.ListOptions{Language: e.cfg.Language, Page: 1}
	page, err := e.cfg.Catalog.PopularMovies(e.ctx, opts)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("Browse popular load failed")
		e.fail(seq, transportFailure(ReasonPopularFailed))
		return
	}
	if len(page.Results) == 0 {
		e.fail(seq, emptyFailure(ReasonNoMovies))
		return
	}

	movies, gen, err := e.merge(page.Results)
	if err != nil {
		e.fail(seq, storeFailure())
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.memberGen {
		movies = withMembership(movies, e.members)
	}
	// kept even when superseded so that leaving search mode needs no refetch
	e.popular = movies
	if seq != e.seq {
		log.Debug().Uint64("seq", seq).Msg("Browse popular result superseded")
		return
	}
	e.search = nil
	e.query = ""
	e.publishResultLocked()
}

// merge flags movies with their current membership. gen is the feed
// generation observed before the store was asked.
func (e *BrowseEngine) merge(movies []model.MovieSummary) ([]model.MovieSummary, uint64, error) {
	e.mu.Lock()
	gen := e.memberGen
	e.mu.Unlock()

	out, err := mergeMembership(e.ctx, e.cfg.Store, movies)
	if err != nil {
		if e.ctx.Err() == nil {
			log.Warn().Err(err).Msg("Browse membership merge failed")
		}
		return nil, gen, err
	}
	return out, gen, nil
}

func (e *BrowseEngine) fail(seq uint64, f *Failure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.seq {
		log.Debug().Uint64("seq", seq).Str("reason", f.Reason).Msg("Browse failure superseded")
		return
	}
	e.state.set(BrowseError{Failure: *f})
}

func (e *BrowseEngine) publishResultLocked() {
	active := e.popular
	if e.query != "" {
		active = e.search
	}
	e.state.set(BrowseResult{
		Popular:  e.popular,
		Search:   e.search,
		Query:    e.query,
		Sections: BuildSections(active),
	})
}

// runObserver applies every membership emission to both held lists. The
// first emission is the baseline; later size changes raise an effect.
func (e *BrowseEngine) runObserver(feed <-chan []model.MovieRecord) {
	defer e.wg.Done()

	prev := -1
	for {
		select {
		case <-e.ctx.Done():
			return
		case recs, ok := <-feed:
			if !ok {
				return
			}

			e.mu.Lock()
			e.members = newMembershipSet(recs)
			e.memberGen++
			e.popular = withMembership(e.popular, e.members)
			e.search = withMembership(e.search, e.members)
			if _, showing := e.state.load().(BrowseResult); showing {
				e.publishResultLocked()
			}
			e.mu.Unlock()

			size := len(recs)
			if prev >= 0 && size != prev {
				kind := EffectWatchlistAdded
				if size < prev {
					kind = EffectWatchlistRemoved
				}
				if !e.effects.emit(Effect{Kind: kind, Size: size}) {
					log.Debug().Str("kind", string(kind)).Msg("Browse effect dropped")
				}
			}
			prev = size
		}
	}
}

func findMovie(movies []model.MovieSummary, id int) (model.MovieSummary, bool) {
	for _, m := range movies {
		if m.ID == id {
			return m, true
		}
	}
	return model.MovieSummary{}, false
}
