// Package screen keeps the engines of the screens clients currently have
// mounted, keyed by an opaque id.
package screen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned for an unknown or already unmounted screen
var ErrNotFound = errors.New("screen not found")

// Closer is anything that can be unmounted
type Closer interface {
	Close()
}

type entry[S Closer] struct {
	screen   S
	lastSeen time.Time
}

// Registry holds mounted screens of one kind. Screens untouched for longer
// than the idle TTL are closed by Sweep.
type Registry[S Closer] struct {
	kind    string
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	screens map[string]*entry[S]
}

// NewRegistry creates a registry; kind is only used in logs
func NewRegistry[S Closer](kind string, idleTTL time.Duration) *Registry[S] {
	return &Registry[S]{
		kind:    kind,
		idleTTL: idleTTL,
		now:     time.Now,
		screens: make(map[string]*entry[S]),
	}
}

// Add registers s and returns its new id
func (r *Registry[S]) Add(s S) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.screens[id] = &entry[S]{screen: s, lastSeen: r.now()}
	r.mu.Unlock()
	log.Debug().Str("kind", r.kind).Str("screen_id", id).Msg("Screen mounted")
	return id
}

// Get returns the screen and marks it as active
func (r *Registry[S]) Get(id string) (S, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.screens[id]
	if !ok {
		var zero S
		return zero, ErrNotFound
	}
	e.lastSeen = r.now()
	return e.screen, nil
}

// Touch marks the screen as active without returning it
func (r *Registry[S]) Touch(id string) {
	r.mu.Lock()
	if e, ok := r.screens[id]; ok {
		e.lastSeen = r.now()
	}
	r.mu.Unlock()
}

// Remove unmounts the screen
func (r *Registry[S]) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.screens[id]
	delete(r.screens, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	e.screen.Close()
	log.Debug().Str("kind", r.kind).Str("screen_id", id).Msg("Screen unmounted")
	return nil
}

// Sweep unmounts every screen idle since before now minus the TTL and
// returns how many were closed
func (r *Registry[S]) Sweep(now time.Time) int {
	var stale []S
	r.mu.Lock()
	for id, e := range r.screens {
		if now.Sub(e.lastSeen) > r.idleTTL {
			stale = append(stale, e.screen)
			delete(r.screens, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		log.Info().Str("kind", r.kind).Int("count", len(stale)).Msg("🧹 Idle screens unmounted")
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done
func (r *Registry[S]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			r.Sweep(t)
		}
	}
}

// CloseAll unmounts every screen
func (r *Registry[S]) CloseAll() {
	r.mu.Lock()
	all := r.screens
	r.screens = make(map[string]*entry[S])
	r.mu.Unlock()
	for _, e := range all {
		e.screen.Close()
	}
}

// Len returns the number of mounted screens
func (r *Registry[S]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.screens)
}
