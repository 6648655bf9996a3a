package duel

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/park285/cf-duels/internal/cfapi"
)

// ProblemCatalog is the read-only problem listing the selector draws from.
// *cfapi.Client satisfies it; tests supply a fixed catalog.
type ProblemCatalog interface {
	Problems(ctx context.Context) ([]cfapi.Problem, error)
}

// Selector picks the battle problem for an accepted challenge: rating within
// the requested range and at least one requested tag, uniformly at random
// among matches. Selection happens before the duel activates, so a failed
// fetch or an empty match set leaves the challenge pending.
type Selector struct {
	catalog ProblemCatalog
}

func NewSelector(catalog ProblemCatalog) *Selector {
	return &Selector{catalog: catalog}
}

func (s *Selector) Select(ctx context.Context, rr RatingRange, tags []string) (*Problem, error) {
	problems, err := s.catalog.Problems(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch problem catalog: %w", err)
	}

	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}

	var matches []cfapi.Problem
	for _, p := range problems {
		if p.Rating < rr.Min || p.Rating > rr.Max {
			continue
		}
		if !hasAnyTag(p.Tags, tagSet) {
			continue
		}
		matches = append(matches, p)
	}
	if len(matches) == 0 {
		return nil, ErrNoMatchingProblem
	}

	pick := matches[rand.IntN(len(matches))]
	return &Problem{
		ContestID: pick.ContestID,
		Index:     pick.Index,
		Name:      pick.Name,
		Rating:    pick.Rating,
		URL:       fmt.Sprintf("https://codeforces.com/contest/%d/problem/%s", pick.ContestID, pick.Index),
	}, nil
}

func hasAnyTag(tags []string, want map[string]bool) bool {
	for _, t := range tags {
		if want[t] {
			return true
		}
	}
	return false
}
