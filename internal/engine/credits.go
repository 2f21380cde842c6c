package engine

import (
	"sort"

	"movies-sync-service/internal/model"
)

// Department and job labels used for ranking
const (
	DepartmentActing    = "Acting"
	DepartmentDirecting = "Directing"
	JobDirector         = "Director"
)

// DefaultTopLimit is how many actors and directors a ranking keeps
const DefaultTopLimit = 5

// CreditAggregate is the cast/crew of several movies merged together
type CreditAggregate struct {
	CastByDepartment map[string][]model.CastMember `json:"cast_by_department"`
	CrewByDepartment map[string][]model.CrewMember `json:"crew_by_department"`
	TopActors        []model.CastMember            `json:"top_actors"`
	TopDirectors     []model.CrewMember            `json:"top_directors"`
	// Sets is the number of credit sets the aggregate was built from
	Sets int `json:"sets"`
}

// AggregateCredits concatenates every cast and crew entry of sets, groups
// them by department and ranks the most popular actors and directors.
// People credited on several movies appear once per credit.
func AggregateCredits(sets []model.CreditSet, limit int) CreditAggregate {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	agg := CreditAggregate{
		CastByDepartment: make(map[string][]model.CastMember),
		CrewByDepartment: make(map[string][]model.CrewMember),
		TopActors:        []model.CastMember{},
		TopDirectors:     []model.CrewMember{},
		Sets:             len(sets),
	}
	for _, set := range sets {
		for _, c := range set.Cast {
			agg.CastByDepartment[c.Department] = append(agg.CastByDepartment[c.Department], c)
		}
		for _, c := range set.Crew {
			agg.CrewByDepartment[c.Department] = append(agg.CrewByDepartment[c.Department], c)
		}
	}

	actors := append([]model.CastMember(nil), agg.CastByDepartment[DepartmentActing]...)
	sort.SliceStable(actors, func(i, j int) bool {
		return actors[i].Popularity > actors[j].Popularity
	})
	if len(actors) > limit {
		actors = actors[:limit]
	}
	if len(actors) > 0 {
		agg.TopActors = actors
	}

	var directors []model.CrewMember
	for _, c := range agg.CrewByDepartment[DepartmentDirecting] {
		if c.Job == JobDirector {
			directors = append(directors, c)
		}
	}
	sort.SliceStable(directors, func(i, j int) bool {
		return directors[i].Popularity > directors[j].Popularity
	})
	if len(directors) > limit {
		directors = directors[:limit]
	}
	if len(directors) > 0 {
		agg.TopDirectors = directors
	}

	return agg
}
