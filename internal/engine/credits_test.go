package engine

import (
	"testing"

	"movies-sync-service/internal/model"

	"github.com/stretchr/testify/assert"
)

func actor(id int, pop float64) model.CastMember {
	return model.CastMember{ID: id, Name: "actor", Department: DepartmentActing, Popularity: pop}
}

func TestAggregateCreditsTopActors(t *testing.T) {
	set := model.CreditSet{ID: 1}
	for i, p := range []float64{9, 3, 7, 1, 8, 2} {
		set.Cast = append(set.Cast, actor(i+1, p))
	}

	agg := AggregateCredits([]model.CreditSet{set}, 5)

	var pops []float64
	for _, a := range agg.TopActors {
		pops = append(pops, a.Popularity)
	}
	assert.Equal(t, []float64{9, 8, 7, 3, 2}, pops)
	assert.Len(t, agg.CastByDepartment[DepartmentActing], 6)
	assert.Equal(t, 1, agg.Sets)
}

func TestAggregateCreditsStableTies(t *testing.T) {
	set := model.CreditSet{Cast: []model.CastMember{actor(1, 5), actor(2, 5), actor(3, 6), actor(4, 5)}}

	agg := AggregateCredits([]model.CreditSet{set}, 5)

	var ids []int
	for _, a := range agg.TopActors {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int{3, 1, 2, 4}, ids)
}

func TestAggregateCreditsDirectorsRequireDirectorJob(t *testing.T) {
	set := model.CreditSet{Crew: []model.CrewMember{
		{ID: 1, Name: "producer", Department: DepartmentDirecting, Job: "Producer", Popularity: 10},
		{ID: 2, Name: "director", Department: DepartmentDirecting, Job: JobDirector, Popularity: 1},
		{ID: 3, Name: "writer", Department: "Writing", Job: "Screenplay", Popularity: 4},
	}}

	agg := AggregateCredits([]model.CreditSet{set}, 5)

	if assert.Len(t, agg.TopDirectors, 1) {
		assert.Equal(t, 2, agg.TopDirectors[0].ID)
	}
	assert.Len(t, agg.CrewByDepartment[DepartmentDirecting], 2)
	assert.Len(t, agg.CrewByDepartment["Writing"], 1)
}

func TestAggregateCreditsKeepsDuplicatesAcrossMovies(t *testing.T) {
	a := actor(7, 3)
	sets := []model.CreditSet{
		{ID: 1, Cast: []model.CastMember{a}},
		{ID: 2, Cast: []model.CastMember{a, {ID: 8, Department: "Directing", Popularity: 99}}},
	}

	agg := AggregateCredits(sets, 0)

	assert.Len(t, agg.TopActors, 2)
	assert.Len(t, agg.CastByDepartment["Directing"], 1)
	assert.Equal(t, 2, agg.Sets)
}

func TestAggregateCreditsEmpty(t *testing.T) {
	agg := AggregateCredits(nil, 5)
	assert.Empty(t, agg.TopActors)
	assert.NotNil(t, agg.TopActors)
	assert.Empty(t, agg.TopDirectors)
	assert.Zero(t, agg.Sets)
}
