package engine

import (
	"context"
	"errors"
	"sort"
	"sync"

	"movies-sync-service/internal/model"

	"github.com/stretchr/testify/mock"
)

var errBoom = errors.New("boom")

type fakeCatalog struct {
	mu sync.Mutex

	search  func(ctx context.Context, query string) (*model.PagedMovies, error)
	popular func(ctx context.Context) (*model.PagedMovies, error)
	detail  func(ctx context.Context, id int) (*model.MovieDetail, error)
	similar func(ctx context.Context, id int) (*model.PagedMovies, error)
	credits func(ctx context.Context, id int) (*model.CreditSet, error)

	searches     []string
	popularCalls int
	creditCalls  []int
}

func (f *fakeCatalog) SearchMovies(ctx context.Context, query string, _ model.ListOptions) (*model.PagedMovies, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	fn := f.search
	f.mu.Unlock()
	if fn == nil {
		return &model.PagedMovies{Page: 1}, nil
	}
	return fn(ctx, query)
}

func (f *fakeCatalog) PopularMovies(ctx context.Context, _ model.ListOptions) (*model.PagedMovies, error) {
	f.mu.Lock()
	f.popularCalls++
	fn := f.popular
	f.mu.Unlock()
	if fn == nil {
		return &model.PagedMovies{Page: 1}, nil
	}
	return fn(ctx)
}

func (f *fakeCatalog) MovieDetail(ctx context.Context, id int, _ string) (*model.MovieDetail, error) {
	if f.detail == nil {
		return nil, errBoom
	}
	return f.detail(ctx, id)
}

func (f *fakeCatalog) SimilarMovies(ctx context.Context, id int, _ model.ListOptions) (*model.PagedMovies, error) {
	if f.similar == nil {
		return &model.PagedMovies{Page: 1}, nil
	}
	return f.similar(ctx, id)
}

func (f *fakeCatalog) Credits(ctx context.Context, id int, _ string) (*model.CreditSet, error) {
	f.mu.Lock()
	f.creditCalls = append(f.creditCalls, id)
	fn := f.credits
	f.mu.Unlock()
	if fn == nil {
		return nil, errBoom
	}
	return fn(ctx, id)
}

func (f *fakeCatalog) Searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

func (f *fakeCatalog) PopularCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.popularCalls
}

func (f *fakeCatalog) CreditCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.creditCalls...)
}

func paged(movies ...model.MovieSummary) *model.PagedMovies {
	return &model.PagedMovies{Page: 1, Results: movies, TotalPages: 1, TotalResults: len(movies)}
}

func movie(id int, date string) model.MovieSummary {
	return model.MovieSummary{ID: id, Title: "movie", ReleaseDate: date}
}

// fakeStore is an in-memory watchlist with an observable feed
type fakeStore struct {
	mu       sync.Mutex
	recs     map[int]model.MovieRecord
	subs     []chan []model.MovieRecord
	failRead bool
	failAdd  bool
}

func newFakeStore(ids ...int) *fakeStore {
	s := &fakeStore{recs: make(map[int]model.MovieRecord)}
	for _, id := range ids {
		s.recs[id] = model.MovieRecord{ID: id}
	}
	return s
}

func (s *fakeStore) IsMember(_ context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return false, errBoom
	}
	_, ok := s.recs[id]
	return ok, nil
}

func (s *fakeStore) Add(_ context.Context, rec model.MovieRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdd {
		return errBoom
	}
	s.recs[rec.ID] = rec
	s.broadcastLocked()
	return nil
}

func (s *fakeStore) Remove(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	s.broadcastLocked()
	return nil
}

func (s *fakeStore) Observe(ctx context.Context) (<-chan []model.MovieRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan []model.MovieRecord, 16)
	ch <- s.snapshotLocked()
	s.subs = append(s.subs, ch)
	return ch, nil
}

func (s *fakeStore) Has(id int) bool {
	ok, _ := s.IsMember(context.Background(), id)
	return ok
}

func (s *fakeStore) snapshotLocked() []model.MovieRecord {
	out := make([]model.MovieRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) broadcastLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordWatchlistMutation(ctx context.Context, op string, ok bool) {
	m.Called(ctx, op, ok)
}
