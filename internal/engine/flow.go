package engine

import "sync"

// stateFlow holds the latest value of a screen state and pushes every new
// value to its watchers. Watchers only ever see the most recent value; a slow
// watcher skips intermediate ones. After close no update is delivered.
type stateFlow[T any] struct {
	mu       sync.Mutex
	value    T
	closed   bool
	watchers map[chan T]struct{}
}

func newStateFlow[T any](initial T) *stateFlow[T] {
	return &stateFlow[T]{
		value:    initial,
		watchers: make(map[chan T]struct{}),
	}
}

func (f *stateFlow[T]) load() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// update applies fn to the current value and publishes the result.
// It reports false when the flow is already closed.
func (f *stateFlow[T]) update(fn func(T) T) bool {
	return f.patch(func(v T) (T, bool) { return fn(v), true })
}

// patch is update for changes that may turn out to be no-ops: nothing is
// published when fn reports no change.
func (f *stateFlow[T]) patch(fn func(T) (T, bool)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	v, changed := fn(f.value)
	if !changed {
		return false
	}
	f.value = v
	for ch := range f.watchers {
		offerLatest(ch, v)
	}
	return true
}

func (f *stateFlow[T]) set(v T) bool {
	return f.update(func(T) T { return v })
}

// watch returns a channel primed with the current value and a function that
// detaches it. The channel is closed on detach or when the flow closes.
func (f *stateFlow[T]) watch() (<-chan T, func()) {
	ch := make(chan T, 1)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- f.value
	f.watchers[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.watchers[ch]; ok {
				delete(f.watchers, ch)
				close(ch)
			}
		})
	}
}

func (f *stateFlow[T]) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.watchers {
		close(ch)
	}
	f.watchers = nil
}

// offerLatest replaces whatever is buffered in ch with v.
// Callers must be the only sender on ch.
func offerLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// effectBus delivers one-shot notifications. Emits never block; when the
// buffer is full the notification is dropped.
type effectBus struct {
	mu     sync.Mutex
	ch     chan Effect
	closed bool
}

func newEffectBus(size int) *effectBus {
	return &effectBus{ch: make(chan Effect, size)}
}

func (b *effectBus) emit(e Effect) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.ch <- e:
		return true
	default:
		return false
	}
}

func (b *effectBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
