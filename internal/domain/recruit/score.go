package recruit

import (
	"sort"

	"github.com/ganot/teamescrow/internal/domain/profile"
)

// Score ranks a candidate against the normalized skills a role wants.
func Score(p profile.Profile, wanted []string) int {
	score := 100 * p.MatchCount(wanted)
	switch {
	case p.Rating >= 4.5:
		score += 80
	case p.Rating >= 4:
		score += 40
	}
	score += 10 * p.CompletedProjects
	if p.Availability == profile.AvailabilityOnline {
		score += 30
	}
	return score
}

// Rank keeps active candidates sharing at least one wanted skill, ordered
// by score and then by user id.
func Rank(pool []profile.Profile, wanted []string, exclude map[string]struct{}) []profile.Profile {
	type scored struct {
		profile.Profile
		score int
	}
	var kept []scored
	for _, p := range pool {
		if _, skip := exclude[p.UserID]; skip || !p.Active() {
			continue
		}
		if p.MatchCount(wanted) == 0 {
			continue
		}
		kept = append(kept, scored{Profile: p, score: Score(p, wanted)})
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		return kept[i].UserID < kept[j].UserID
	})

	out := make([]profile.Profile, len(kept))
	for i := range kept {
		out[i] = kept[i].Profile
	}
	return out
}
