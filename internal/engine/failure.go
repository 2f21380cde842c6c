package engine

import "fmt"

// FailureKind classifies what went wrong in a sub-state
type FailureKind int

const (
	// FailureTransport is a network or decoding failure of a catalog call
	FailureTransport FailureKind = iota + 1
	// FailureEmpty is a successful call that returned zero items
	FailureEmpty
	// FailureNoCastData means no credit set could be obtained at all
	FailureNoCastData
	// FailureStore is a watchlist store read failure during a merge
	FailureStore
)

// User-visible failure reasons
const (
	ReasonNoResults      = "no results"
	ReasonNoMovies       = "no movies found"
	ReasonNoCast         = "no cast information available"
	ReasonSearchFailed   = "failed to search movies"
	ReasonPopularFailed  = "failed to load popular movies"
	ReasonDetailFailed   = "failed to load movie details"
	ReasonSimilarFailed  = "failed to load similar movies"
	ReasonWatchlistRead  = "failed to read watchlist"
	ReasonMutationFailed = "operation failed"
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureEmpty:
		return "empty"
	case FailureNoCastData:
		return "no_cast"
	case FailureStore:
		return "store"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON payloads
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind rendered by MarshalText
func (k *FailureKind) UnmarshalText(text []byte) error {
	for _, kind := range []FailureKind{FailureTransport, FailureEmpty, FailureNoCastData, FailureStore} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown failure kind %q", text)
}

// Failure is the error half of a sub-state
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

func transportFailure(reason string) *Failure {
	return &Failure{Kind: FailureTransport, Reason: reason}
}

func emptyFailure(reason string) *Failure {
	return &Failure{Kind: FailureEmpty, Reason: reason}
}

func storeFailure() *Failure {
	return &Failure{Kind: FailureStore, Reason: ReasonWatchlistRead}
}
