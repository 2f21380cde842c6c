package engine

import (
	"sort"
	"strconv"
	"strings"

	"movies-sync-service/internal/model"
)

// UnknownYearLabel heads the group of movies without a parseable release year
const UnknownYearLabel = "Unknown year"

// GridItemKind tells headers and movie rows apart
type GridItemKind string

const (
	GridHeader GridItemKind = "header"
	GridMovie  GridItemKind = "movie"
)

// GridItem is one entry of the sectioned browse grid. Headers carry Title and
// Year (0 for the unknown group); movie rows carry Movie.
type GridItem struct {
	Kind  GridItemKind        `json:"kind"`
	Title string              `json:"title,omitempty"`
	Year  int                 `json:"year,omitempty"`
	Movie *model.MovieSummary `json:"movie,omitempty"`
}

// releaseYear parses the leading component of an ISO date. Anything that is
// not a positive number yields 0, the unknown-year key.
func releaseYear(date string) int {
	head, _, _ := strings.Cut(date, "-")
	year, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || year <= 0 {
		return 0
	}
	return year
}

// BuildSections groups movies by release year, newest first with the unknown
// group last, keeping input order inside each group. Every group is emitted as
// a header followed by its movie rows.
func BuildSections(movies []model.MovieSummary) []GridItem {
	if len(movies) == 0 {
		return []GridItem{}
	}

	groups := make(map[int][]model.MovieSummary)
	var years []int
	for _, m := range movies {
		y := releaseYear(m.ReleaseDate)
		if _, seen := groups[y]; !seen {
			years = append(years, y)
		}
		groups[y] = append(groups[y], m)
	}

	sort.Slice(years, func(i, j int) bool {
		// 0 sorts after every real year
		if years[i] == 0 || years[j] == 0 {
			return years[j] == 0 && years[i] != 0
		}
		return years[i] > years[j]
	})

	items := make([]GridItem, 0, len(movies)+len(years))
	for _, y := range years {
		title := UnknownYearLabel
		if y != 0 {
			title = strconv.Itoa(y)
		}
		items = append(items, GridItem{Kind: GridHeader, Title: title, Year: y})
		for _, m := range groups[y] {
			items = append(items, GridItem{Kind: GridMovie, Movie: &m})
		}
	}
	return items
}
