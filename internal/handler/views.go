package handler

import (
	"movies-sync-service/internal/engine"
	"movies-sync-service/internal/model"
)

// ImageResolver turns catalog image paths into absolute URLs. Satisfied by
// *service.TMDBService.
type ImageResolver interface {
	ImageURL(path string) string
}

// Browse view statuses
const (
	StatusLoading = "loading"
	StatusResult  = "result"
	StatusError   = "error"
)

// MovieView is a list entry as sent to clients
type MovieView struct {
	model.MovieSummary
	PosterURL string `json:"poster_url,omitempty"`
}

// GridItemView is one row of the sectioned grid
type GridItemView struct {
	Kind  engine.GridItemKind `json:"kind"`
	Title string              `json:"title,omitempty"`
	Year  int                 `json:"year,omitempty"`
	Movie *MovieView          `json:"movie,omitempty"`
}

// BrowseView is the JSON rendering of engine.BrowseState
type BrowseView struct {
	Status       string          `json:"status"`
	Query        string          `json:"query,omitempty"`
	Sections     []GridItemView  `json:"sections,omitempty"`
	PopularCount int             `json:"popular_count"`
	SearchCount  int             `json:"search_count"`
	Error        *engine.Failure `json:"error,omitempty"`
}

// DetailView is the JSON rendering of engine.DetailState
type DetailView struct {
	MovieID int                   `json:"movie_id"`
	Detail  DetailSectionView     `json:"detail"`
	Similar SimilarView           `json:"similar"`
	Credits engine.CreditsSection `json:"credits"`
}

// DetailSectionView carries the primary movie
type DetailSectionView struct {
	Loading   bool               `json:"loading"`
	Movie     *model.MovieDetail `json:"movie,omitempty"`
	PosterURL string             `json:"poster_url,omitempty"`
	Error     *engine.Failure    `json:"error,omitempty"`
}

// SimilarView carries the similar list
type SimilarView struct {
	Loading bool            `json:"loading"`
	Movies  []MovieView     `json:"movies"`
	Error   *engine.Failure `json:"error,omitempty"`
}

func movieView(images ImageResolver, m model.MovieSummary) MovieView {
	v := MovieView{MovieSummary: m}
	if images != nil {
		v.PosterURL = images.ImageURL(m.PosterPath)
	}
	return v
}

func newBrowseView(images ImageResolver, state engine.BrowseState) BrowseView {
	switch s := state.(type) {
	case engine.BrowseResult:
		v := BrowseView{
			Status:       StatusResult,
			Query:        s.Query,
			Sections:     make([]GridItemView, 0, len(s.Sections)),
			PopularCount: len(s.Popular),
			SearchCount:  len(s.Search),
		}
		for _, item := range s.Sections {
			row := GridItemView{Kind: item.Kind, Title: item.Title, Year: item.Year}
			if item.Movie != nil {
				mv := movieView(images, *item.Movie)
				row.Movie = &mv
			}
			v.Sections = append(v.Sections, row)
		}
		return v
	case engine.BrowseError:
		f := s.Failure
		return BrowseView{Status: StatusError, Error: &f}
	default:
		return BrowseView{Status: StatusLoading}
	}
}

func newDetailView(images ImageResolver, s engine.DetailState) DetailView {
	v := DetailView{
		MovieID: s.MovieID,
		Detail: DetailSectionView{
			Loading: s.Detail.Loading,
			Movie:   s.Detail.Movie,
			Error:   s.Detail.Err,
		},
		Similar: SimilarView{
			Loading: s.Similar.Loading,
			Movies:  make([]MovieView, 0, len(s.Similar.Movies)),
			Error:   s.Similar.Err,
		},
		Credits: s.Credits,
	}
	if s.Detail.Movie != nil && images != nil {
		v.Detail.PosterURL = images.ImageURL(s.Detail.Movie.PosterPath)
	}
	for _, m := range s.Similar.Movies {
		v.Similar.Movies = append(v.Similar.Movies, movieView(images, m))
	}
	return v
}
