package engine

import "movies-sync-service/internal/model"

// BrowseState is the view state of the browse/search screen. It is exactly
// one of BrowseLoading, BrowseResult or BrowseError.
type BrowseState interface {
	isBrowseState()
}

// BrowseLoading is shown while a popular or search request is in flight
type BrowseLoading struct{}

// BrowseResult is a displayable list. Sections are derived from Search when
// Query is non-empty and from Popular otherwise.
type BrowseResult struct {
	Popular  []model.MovieSummary
	Search   []model.MovieSummary
	Query    string
	Sections []GridItem
}

// BrowseError is a failed or empty load
type BrowseError struct {
	Failure Failure
}

func (BrowseLoading) isBrowseState() {}
func (BrowseResult) isBrowseState()  {}
func (BrowseError) isBrowseState()   {}

// Active returns the list the sections were built from
func (r BrowseResult) Active() []model.MovieSummary {
	if r.Query != "" {
		return r.Search
	}
	return r.Popular
}

// EffectKind names a transient browse notification
type EffectKind string

const (
	EffectWatchlistAdded   EffectKind = "watchlist_added"
	EffectWatchlistRemoved EffectKind = "watchlist_removed"
)

// Effect is a one-shot notification for the browse screen
type Effect struct {
	Kind EffectKind `json:"kind"`
	Size int        `json:"size"`
}
