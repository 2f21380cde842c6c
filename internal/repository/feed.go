package repository

import (
	"context"
	"sync"

	"movies-sync-service/internal/model"
)

const feedBuffer = 16

// memberFeed fans watchlist snapshots out to subscribers. A subscriber that
// falls behind by more than feedBuffer snapshots loses the oldest ones.
type memberFeed struct {
	mu   sync.Mutex
	subs map[chan []model.MovieRecord]struct{}
}

func newMemberFeed() *memberFeed {
	return &memberFeed{subs: make(map[chan []model.MovieRecord]struct{})}
}

// subscribe registers a channel primed with snapshot. The caller must hold
// the store's write lock so no publish can slip between the snapshot read
// and the registration.
func (f *memberFeed) subscribe(ctx context.Context, snapshot []model.MovieRecord) <-chan []model.MovieRecord {
	ch := make(chan []model.MovieRecord, feedBuffer)
	ch <- snapshot

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, ch)
		close(ch)
		f.mu.Unlock()
	}()
	return ch
}

func (f *memberFeed) publish(snapshot []model.MovieRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- snapshot:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func (f *memberFeed) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
