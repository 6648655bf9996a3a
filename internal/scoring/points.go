// Package scoring computes the point transfer for duel outcomes. All
// functions are pure; callers clamp against stored balances themselves via
// ActualLoss.
package scoring

import (
	"math"
)

const (
	// DefaultRating substitutes for participants without a Codeforces rating.
	DefaultRating = 1200

	basePoints = 50
	kFactor    = 32
	minPoints  = 5
	maxPoints  = 100

	baseDrawPoints = 15
	maxDrawBonus   = 10
)

// Points is the win/loss split for a decided duel.
type Points struct {
	WinnerGains int
	LoserLoses  int
	RatingDiff  int // loser rating - winner rating
	Upset       bool
}

// BonusKind classifies the advisory annotation attached to a decided duel.
type BonusKind string

const (
	BonusUpset    BonusKind = "upset"
	BonusExpected BonusKind = "expected"
	BonusEven     BonusKind = "even"
)

// CalculatePoints returns the Elo-weighted split for winnerRating beating
// loserRating. Zero ratings are treated as unset.
func CalculatePoints(winnerRating, loserRating int) Points {
	w := orDefault(winnerRating)
	l := orDefault(loserRating)

	diff := l - w
	expectedWinner := 1 / (1 + math.Pow(10, float64(diff)/400))
	expectedLoser := 1 - expectedWinner

	gain := int(math.Round(basePoints + kFactor*(1-expectedWinner)))
	loss := int(math.Round(basePoints * expectedLoser))

	return Points{
		WinnerGains: clamp(gain),
		LoserLoses:  clamp(loss),
		RatingDiff:  diff,
		Upset:       diff > 200,
	}
}

// ActualLoss bounds a deduction so the loser's balance never goes negative.
func ActualLoss(loss, currentPoints int) int {
	if currentPoints < 0 {
		currentPoints = 0
	}
	if loss > currentPoints {
		return currentPoints
	}
	return loss
}

// DrawPoints is the split when both sides accept a draw.
type DrawPoints struct {
	Challenger int
	Opponent   int
}

// CalculateDrawPoints awards the base to both sides plus a small bonus to
// the lower-rated participant. Equal ratings award the base to both.
func CalculateDrawPoints(challengerRating, opponentRating int) DrawPoints {
	c := orDefault(challengerRating)
	o := orDefault(opponentRating)

	diff := c - o
	if diff < 0 {
		diff = -diff
	}
	bonus := diff / 100
	if bonus > maxDrawBonus {
		bonus = maxDrawBonus
	}

	d := DrawPoints{Challenger: baseDrawPoints, Opponent: baseDrawPoints}
	switch {
	case c < o:
		d.Challenger += bonus
	case o < c:
		d.Opponent += bonus
	}
	return d
}

// Bonus classifies the result for the advisory message: an upset win, an
// expected win over a much lower-rated opponent, or an even duel.
func Bonus(p Points) BonusKind {
	switch {
	case p.Upset:
		return BonusUpset
	case p.RatingDiff < -200:
		return BonusExpected
	default:
		return BonusEven
	}
}

func orDefault(rating int) int {
	if rating == 0 {
		return DefaultRating
	}
	return rating
}

func clamp(v int) int {
	if v < minPoints {
		return minPoints
	}
	if v > maxPoints {
		return maxPoints
	}
	return v
}
