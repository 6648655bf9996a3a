package duel

import (
	"context"
	"time"

	"github.com/park285/cf-duels/internal/cfapi"
	"github.com/park285/cf-duels/internal/obslog"
	"go.uber.org/zap"
)

// VerdictSource lists a handle's recent submissions, newest first.
// *cfapi.Client satisfies it; tests supply canned histories.
type VerdictSource interface {
	RecentSubmissions(ctx context.Context, handle string, count int) ([]cfapi.Submission, error)
}

// Resolver decides the winner of an active battle by polling the verdict
// source for both participants. Fetch failures are reported as undetermined
// so the next poll retries; they never fail the duel.
type Resolver struct {
	verdicts   VerdictSource
	fetchCount int
}

func NewResolver(verdicts VerdictSource, fetchCount int) *Resolver {
	if fetchCount <= 0 {
		fetchCount = 20
	}
	return &Resolver{verdicts: verdicts, fetchCount: fetchCount}
}

// Winner returns the winning participant id, or "" while undetermined.
// A submission qualifies when it targets the selected problem, carries the
// success verdict, and was created strictly after the battle start. When
// both sides qualify the earlier timestamp wins; an exact tie goes to the
// challenger.
func (r *Resolver) Winner(ctx context.Context, d *Duel, challengerHandle, opponentHandle string) string {
	if d.ChallengeDetails.SelectedProblem == nil || d.BattleDetails == nil {
		return ""
	}
	problem := d.ChallengeDetails.SelectedProblem
	start := d.BattleDetails.StartTime

	challengerAt, ok := r.earliestAccepted(ctx, challengerHandle, problem, start)
	if !ok {
		return ""
	}
	opponentAt, ok := r.earliestAccepted(ctx, opponentHandle, problem, start)
	if !ok {
		return ""
	}

	switch {
	case challengerAt != nil && opponentAt != nil:
		if opponentAt.Before(*challengerAt) {
			return d.OpponentID
		}
		return d.ChallengerID
	case challengerAt != nil:
		return d.ChallengerID
	case opponentAt != nil:
		return d.OpponentID
	}
	return ""
}

// earliestAccepted returns the earliest qualifying solve time, nil when the
// handle has none yet. ok is false when the fetch failed and the poll should
// be treated as undetermined.
func (r *Resolver) earliestAccepted(ctx context.Context, handle string, problem *Problem, start time.Time) (*time.Time, bool) {
	subs, err := r.verdicts.RecentSubmissions(ctx, handle, r.fetchCount)
	if err != nil {
		obslog.L().Warn("verdict_fetch_error", zap.String("handle", handle), zap.Error(err))
		return nil, false
	}

	var earliest *time.Time
	for _, sub := range subs {
		if sub.Problem.ContestID != problem.ContestID || sub.Problem.Index != problem.Index {
			continue
		}
		if sub.Verdict != cfapi.VerdictOK {
			continue
		}
		at := time.Unix(sub.CreationTimeSeconds, 0)
		if !at.After(start) {
			continue
		}
		if earliest == nil || at.Before(*earliest) {
			earliest = &at
		}
	}
	return earliest, true
}
