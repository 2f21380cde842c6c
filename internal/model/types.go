package model

import "time"

// ================== 通用响应 ==================

// APIResponse is the standard API response format
type APIResponse struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Source  string      `json:"source,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ================== 电影数据模型 ==================

// MovieSummary is a catalog list entry. InWatchlist is never part of the
// remote payload; the engines recompute it on every merge.
type MovieSummary struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title,omitempty"`
	OriginalLanguage string  `json:"original_language,omitempty"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path,omitempty"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count,omitempty"`
	Popularity       float64 `json:"popularity,omitempty"`
	InWatchlist      bool    `json:"in_watchlist"`
}

// Genre is a TMDB genre
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MovieDetail is the full record of a single movie
type MovieDetail struct {
	MovieSummary
	Tagline  string  `json:"tagline,omitempty"`
	Status   string  `json:"status,omitempty"`
	Budget   int64   `json:"budget"`
	Revenue  int64   `json:"revenue"`
	Runtime  int     `json:"runtime"`
	Genres   []Genre `json:"genres,omitempty"`
	Homepage string  `json:"homepage,omitempty"`
	IMDbID   string  `json:"imdb_id,omitempty"`
}

// PagedMovies is one page of a catalog list response
type PagedMovies struct {
	Page         int            `json:"page"`
	Results      []MovieSummary `json:"results"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
}

// ListOptions are the optional request parameters of catalog list calls.
// Zero values fall back to DefaultLanguage and page 1.
type ListOptions struct {
	Language     string
	Page         int
	IncludeAdult bool
}

// DefaultLanguage is used when a request leaves the language empty
const DefaultLanguage = "en-US"

// LanguageOrDefault returns the language or DefaultLanguage
func (o ListOptions) LanguageOrDefault() string {
	if o.Language == "" {
		return DefaultLanguage
	}
	return o.Language
}

// PageOrDefault returns the page or 1
func (o ListOptions) PageOrDefault() int {
	if o.Page < 1 {
		return 1
	}
	return o.Page
}

// ================== 演职员 ==================

// CastMember is one acting credit. Department carries the person's known-for
// department, which is what the aggregation groups cast by.
type CastMember struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Character   string  `json:"character"`
	Department  string  `json:"known_for_department"`
	Popularity  float64 `json:"popularity"`
	ProfilePath string  `json:"profile_path,omitempty"`
	Order       int     `json:"order"`
}

// CrewMember is one crew credit
type CrewMember struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Job         string  `json:"job"`
	Department  string  `json:"department"`
	Popularity  float64 `json:"popularity"`
	ProfilePath string  `json:"profile_path,omitempty"`
}

// CreditSet holds the cast and crew of the movie identified by ID
type CreditSet struct {
	ID   int          `json:"id"`
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// ================== 片单 ==================

// MovieRecord is a movie persisted in the watchlist
type MovieRecord struct {
	ID               int       `json:"id"`
	Title            string    `json:"title"`
	OriginalTitle    string    `json:"original_title,omitempty"`
	OriginalLanguage string    `json:"original_language,omitempty"`
	Overview         string    `json:"overview"`
	PosterPath       string    `json:"poster_path,omitempty"`
	ReleaseDate      string    `json:"release_date"`
	VoteAverage      float64   `json:"vote_average"`
	VoteCount        int       `json:"vote_count,omitempty"`
	Popularity       float64   `json:"popularity,omitempty"`
	AddedAt          time.Time `json:"added_at"`
}

// RecordFromSummary builds a watchlist record from a list entry
func RecordFromSummary(m MovieSummary) MovieRecord {
	return MovieRecord{
		ID:               m.ID,
		Title:            m.Title,
		OriginalTitle:    m.OriginalTitle,
		OriginalLanguage: m.OriginalLanguage,
		Overview:         m.Overview,
		PosterPath:       m.PosterPath,
		ReleaseDate:      m.ReleaseDate,
		VoteAverage:      m.VoteAverage,
		VoteCount:        m.VoteCount,
		Popularity:       m.Popularity,
	}
}

// RecordFromDetail builds a watchlist record from a detail
func RecordFromDetail(d MovieDetail) MovieRecord {
	return RecordFromSummary(d.MovieSummary)
}

// Summary converts a stored record back to a list entry
func (r MovieRecord) Summary() MovieSummary {
	return MovieSummary{
		ID:               r.ID,
		Title:            r.Title,
		OriginalTitle:    r.OriginalTitle,
		OriginalLanguage: r.OriginalLanguage,
		Overview:         r.Overview,
		PosterPath:       r.PosterPath,
		ReleaseDate:      r.ReleaseDate,
		VoteAverage:      r.VoteAverage,
		VoteCount:        r.VoteCount,
		Popularity:       r.Popularity,
		InWatchlist:      true,
	}
}
