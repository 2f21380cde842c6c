package engine

import (
	"testing"

	"movies-sync-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headers(items []GridItem) []string {
	var out []string
	for _, it := range items {
		if it.Kind == GridHeader {
			out = append(out, it.Title)
		}
	}
	return out
}

func TestBuildSectionsOrdersYearsDescendingUnknownLast(t *testing.T) {
	movies := []model.MovieSummary{
		movie(1, "2020-05-01"),
		movie(2, ""),
		movie(3, "2021-01-01"),
		movie(4, "2020-12-31"),
	}

	items := BuildSections(movies)

	assert.Equal(t, []string{"2021", "2020", UnknownYearLabel}, headers(items))
	require.Len(t, items, 7)
	assert.Equal(t, 3, items[1].Movie.ID)
	assert.Equal(t, GridHeader, items[2].Kind)
	assert.Equal(t, 1, items[3].Movie.ID)
	assert.Equal(t, 4, items[4].Movie.ID)
	assert.Equal(t, 0, items[5].Year)
	assert.Equal(t, 2, items[6].Movie.ID)
}

func TestBuildSectionsUnparsableDates(t *testing.T) {
	tests := []struct {
		name string
		date string
		want int
	}{
		{"empty", "", 0},
		{"garbage", "soon", 0},
		{"year only", "1999", 1999},
		{"full date", "1999-03-31", 1999},
		{"zero year", "0000-01-01", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, releaseYear(tt.date))
		})
	}
}

func TestBuildSectionsEmpty(t *testing.T) {
	items := BuildSections(nil)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestBuildSectionsOnlyUnknown(t *testing.T) {
	items := BuildSections([]model.MovieSummary{movie(1, ""), movie(2, "n/a")})
	assert.Equal(t, []string{UnknownYearLabel}, headers(items))
	assert.Len(t, items, 3)
}
