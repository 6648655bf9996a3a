package duel

import (
	"time"
)

// Status represents a duel lifecycle state. Transitions are monotonic:
// pending → {active, expired}; active → {completed, draw}; the rest terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusDraw      Status = "draw"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusDraw
}

// WinCondition records how a terminal duel was decided.
type WinCondition string

const (
	WinFirstSolve WinCondition = "first_solve"
	WinTimeout    WinCondition = "timeout"
	WinDraw       WinCondition = "draw"
	WinWithdrawal WinCondition = "withdrawal"
)

// DrawOfferStatus is the sub-state of an in-battle draw negotiation.
type DrawOfferStatus string

const (
	OfferPending   DrawOfferStatus = "pending"
	OfferAccepted  DrawOfferStatus = "accepted"
	OfferRejected  DrawOfferStatus = "rejected"
	OfferWithdrawn DrawOfferStatus = "withdrawn"
)

// RatingRange bounds the problem rating for a challenge.
type RatingRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Problem is the selected Codeforces problem a battle is fought over.
type Problem struct {
	ContestID int    `json:"contest_id"`
	Index     string `json:"index"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
	URL       string `json:"url"`
}

// ChallengeDetails carries the challenge parameters; SelectedProblem is set
// on acceptance.
type ChallengeDetails struct {
	RatingRange     RatingRange `json:"rating_range"`
	Tags            []string    `json:"tags"`
	SelectedProblem *Problem    `json:"selected_problem,omitempty"`
}

// DrawOffer is the single in-flight draw negotiation of an active battle.
type DrawOffer struct {
	OfferedBy string          `json:"offered_by"`
	OfferedAt time.Time       `json:"offered_at"`
	Status    DrawOfferStatus `json:"status"`
}

// BattleDetails exists once a duel is (or was) active.
type BattleDetails struct {
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Duration  int        `json:"duration"` // seconds
	DrawOffer *DrawOffer `json:"draw_offer,omitempty"`
}

// PointsAwarded records the score split applied when a duel closed.
// Winner/Loser are set for first_solve results, Challenger/Opponent for
// draws. Loser is the actual (clamped) deduction, stored negative.
type PointsAwarded struct {
	Winner     int    `json:"winner,omitempty"`
	Loser      int    `json:"loser,omitempty"`
	Challenger int    `json:"challenger,omitempty"`
	Opponent   int    `json:"opponent,omitempty"`
	Bonus      string `json:"bonus,omitempty"`
}

// Result exists once a duel is terminal (except expired challenges, which
// never started).
type Result struct {
	Winner        string         `json:"winner,omitempty"`
	CompletedAt   time.Time      `json:"completed_at"`
	WinCondition  WinCondition   `json:"win_condition"`
	PointsAwarded *PointsAwarded `json:"points_awarded,omitempty"`
}

// Duel is the persisted record, stored as JSON under duel:<id>.
type Duel struct {
	ID           string `json:"id"`
	ChallengerID string `json:"challenger_id"`
	OpponentID   string `json:"opponent_id"`
	Status       Status `json:"status"`

	ChallengeDetails ChallengeDetails `json:"challenge_details"`
	BattleDetails    *BattleDetails   `json:"battle_details,omitempty"`
	Result           *Result          `json:"result,omitempty"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsParticipant reports whether userID is one of the two sides.
func (d *Duel) IsParticipant(userID string) bool {
	return userID != "" && (d.ChallengerID == userID || d.OpponentID == userID)
}

// Other returns the opposing participant id, or "" when userID is not in the
// duel.
func (d *Duel) Other(userID string) string {
	switch userID {
	case d.ChallengerID:
		return d.OpponentID
	case d.OpponentID:
		return d.ChallengerID
	}
	return ""
}

// PendingOffer returns the draw offer iff one is currently pending.
func (d *Duel) PendingOffer() *DrawOffer {
	if d.BattleDetails == nil || d.BattleDetails.DrawOffer == nil {
		return nil
	}
	if d.BattleDetails.DrawOffer.Status != OfferPending {
		return nil
	}
	return d.BattleDetails.DrawOffer
}

// Errors
var (
	ErrInvalidArgs       = errf("invalid arguments")
	ErrNotFound          = errf("duel not found")
	ErrSelfChallenge     = errf("cannot challenge yourself")
	ErrNotFriends        = errf("users are not friends")
	ErrDuplicatePending  = errf("a pending duel already exists between these users")
	ErrNotOpponent       = errf("only the challenged user may act on this duel")
	ErrNotParticipant    = errf("user is not a participant in this duel")
	ErrNotPending        = errf("duel is no longer pending")
	ErrNotActive         = errf("duel is not active")
	ErrChallengeExpired  = errf("challenge has expired")
	ErrDrawOfferPending  = errf("a draw offer is already pending")
	ErrNoDrawOffer       = errf("no pending draw offer")
	ErrNotOfferRecipient = errf("only the other participant may respond to the draw offer")
	ErrNotOfferOwner     = errf("only the offering participant may withdraw the draw offer")
	ErrConflict          = errf("duel was modified concurrently")
	ErrNoMatchingProblem = errf("no problems match the challenge criteria")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
