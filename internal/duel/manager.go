package duel

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cf-duels/internal/msgcat"
	"github.com/park285/cf-duels/internal/obslog"
	"github.com/park285/cf-duels/internal/scoring"
	"github.com/park285/cf-duels/internal/userstore"
	"go.uber.org/zap"
)

const (
	defaultChallengeTTL   = 5 * time.Minute
	defaultBattleDuration = time.Hour
)

// Manager owns the duel lifecycle. Every status change goes through the
// store's conditional transition, so a racing accept, winner check, or
// expiry sweep applies at most once.
type Manager struct {
	store    *Store
	users    userstore.Repository
	selector *Selector
	resolver *Resolver
	msgs     *msgcat.Catalog

	challengeTTL   time.Duration
	battleDuration time.Duration
}

// ManagerConfig tunes the lifecycle windows; zero values take the defaults
// (5 minute challenge window, 1 hour battle).
type ManagerConfig struct {
	ChallengeTTL   time.Duration
	BattleDuration time.Duration
}

func NewManager(rdb *redis.Client, users userstore.Repository, selector *Selector, resolver *Resolver, msgs *msgcat.Catalog, cfg ManagerConfig) *Manager {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = defaultChallengeTTL
	}
	if cfg.BattleDuration <= 0 {
		cfg.BattleDuration = defaultBattleDuration
	}
	return &Manager{
		store:          NewStore(rdb),
		users:          users,
		selector:       selector,
		resolver:       resolver,
		msgs:           msgs,
		challengeTTL:   cfg.ChallengeTTL,
		battleDuration: cfg.BattleDuration,
	}
}

// CreateChallenge opens a pending duel from challenger to a friend.
func (m *Manager) CreateChallenge(ctx context.Context, challengerID, opponentID string, rr RatingRange, tags []string) (*Duel, error) {
	challengerID = strings.TrimSpace(challengerID)
	opponentID = strings.TrimSpace(opponentID)
	if challengerID == "" || opponentID == "" {
		return nil, ErrInvalidArgs
	}
	if challengerID == opponentID {
		return nil, ErrSelfChallenge
	}
	if rr.Min <= 0 || rr.Max < rr.Min {
		return nil, ErrInvalidArgs
	}
	tags = cleanTags(tags)
	if len(tags) == 0 {
		return nil, ErrInvalidArgs
	}

	if _, err := m.users.GetUser(ctx, opponentID); err != nil {
		return nil, err
	}
	isFriend, err := m.users.AreFriends(ctx, challengerID, opponentID)
	if err != nil {
		return nil, err
	}
	if !isFriend {
		return nil, ErrNotFriends
	}

	now := time.Now()
	expires := now.Add(m.challengeTTL)
	d := &Duel{
		ID:           uuid.NewString(),
		ChallengerID: challengerID,
		OpponentID:   opponentID,
		Status:       StatusPending,
		ChallengeDetails: ChallengeDetails{
			RatingRange: rr,
			Tags:        tags,
		},
		ExpiresAt: &expires,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, d); err != nil {
		return nil, err
	}
	obslog.L().Info("duel_create",
		zap.String("duel_id", d.ID),
		zap.String("challenger_id", challengerID),
		zap.String("opponent_id", opponentID),
		zap.Int("rating_min", rr.Min),
		zap.Int("rating_max", rr.Max),
	)
	return d, nil
}

// ListPending returns open challenges addressed to the user, skipping any
// that ran out of their window but have not been swept yet.
func (m *Manager) ListPending(ctx context.Context, userID string) ([]*Duel, error) {
	all, err := m.store.DuelsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var out []*Duel
	for _, d := range all {
		if d.OpponentID != userID || d.Status != StatusPending {
			continue
		}
		if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// ListUserDuels returns the user's full duel history, newest first.
func (m *Manager) ListUserDuels(ctx context.Context, userID string) ([]*Duel, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidArgs
	}
	return m.store.DuelsByUser(ctx, userID)
}

// Accept activates a pending challenge: the problem is selected first, and
// the duel only transitions once a problem is in hand. A late accept expires
// the challenge instead.
func (m *Manager) Accept(ctx context.Context, duelID, userID string) (*Duel, error) {
	d, err := m.load(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if d.OpponentID != userID {
		return nil, ErrNotOpponent
	}
	if d.Status != StatusPending {
		return nil, ErrNotPending
	}
	if d.ExpiresAt != nil && time.Now().After(*d.ExpiresAt) {
		_, _ = m.store.Transition(ctx, d.ID, StatusPending, func(cur *Duel) error {
			cur.Status = StatusExpired
			cur.ExpiresAt = nil
			return nil
		})
		return nil, ErrChallengeExpired
	}

	problem, err := m.selector.Select(ctx, d.ChallengeDetails.RatingRange, d.ChallengeDetails.Tags)
	if err != nil {
		return nil, err
	}

	updated, err := m.store.Transition(ctx, d.ID, StatusPending, func(cur *Duel) error {
		if cur.ExpiresAt != nil && time.Now().After(*cur.ExpiresAt) {
			return ErrChallengeExpired
		}
		start := time.Now()
		cur.Status = StatusActive
		cur.ChallengeDetails.SelectedProblem = problem
		cur.BattleDetails = &BattleDetails{
			StartTime: start,
			EndTime:   start.Add(m.battleDuration),
			Duration:  int(m.battleDuration / time.Second),
		}
		cur.ExpiresAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("duel_accept",
		zap.String("duel_id", updated.ID),
		zap.String("opponent_id", userID),
		zap.Int("contest_id", problem.ContestID),
		zap.String("problem_index", problem.Index),
	)
	return updated, nil
}

// Reject deletes a pending challenge outright; no record is kept.
func (m *Manager) Reject(ctx context.Context, duelID, userID string) error {
	d, err := m.load(ctx, duelID)
	if err != nil {
		return err
	}
	if d.OpponentID != userID {
		return ErrNotOpponent
	}
	if d.Status != StatusPending {
		return ErrNotPending
	}
	if err := m.store.Delete(ctx, d); err != nil {
		return err
	}
	obslog.L().Info("duel_reject", zap.String("duel_id", d.ID), zap.String("opponent_id", userID))
	return nil
}

// BattleState returns the duel for a participant, lazily completing an
// active battle whose clock ran out.
func (m *Manager) BattleState(ctx context.Context, duelID, userID string) (*Duel, error) {
	d, err := m.load(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if !d.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return m.completeIfTimedOut(ctx, d)
}

// BattleView is BattleState plus both participants' display records.
func (m *Manager) BattleView(ctx context.Context, duelID, userID string) (*Duel, *userstore.User, *userstore.User, error) {
	d, err := m.BattleState(ctx, duelID, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	challenger, err := m.users.GetUser(ctx, d.ChallengerID)
	if err != nil {
		return nil, nil, nil, err
	}
	opponent, err := m.users.GetUser(ctx, d.OpponentID)
	if err != nil {
		return nil, nil, nil, err
	}
	return d, challenger, opponent, nil
}

func (m *Manager) completeIfTimedOut(ctx context.Context, d *Duel) (*Duel, error) {
	if d.Status != StatusActive || d.BattleDetails == nil || !time.Now().After(d.BattleDetails.EndTime) {
		return d, nil
	}
	updated, err := m.store.Transition(ctx, d.ID, StatusActive, func(cur *Duel) error {
		cur.Status = StatusCompleted
		cur.Result = &Result{
			WinCondition: WinTimeout,
			CompletedAt:  time.Now(),
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		// another caller closed it first; serve whatever won
		return m.load(ctx, d.ID)
	}
	if err != nil {
		return nil, err
	}
	obslog.L().Info("duel_timeout", zap.String("duel_id", updated.ID))
	return updated, nil
}

// OfferDraw places a draw offer on an active battle. At most one offer may
// be pending at a time.
func (m *Manager) OfferDraw(ctx context.Context, duelID, userID string) (*Duel, error) {
	d, err := m.load(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if !d.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if d.Status != StatusActive {
		return nil, ErrNotActive
	}
	if d.PendingOffer() != nil {
		return nil, ErrDrawOfferPending
	}

	updated, err := m.store.Transition(ctx, d.ID, StatusActive, func(cur *Duel) error {
		if cur.PendingOffer() != nil {
			return ErrDrawOfferPending
		}
		cur.BattleDetails.DrawOffer = &DrawOffer{
			OfferedBy: userID,
			OfferedAt: time.Now(),
			Status:    OfferPending,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("draw_offer", zap.String("duel_id", updated.ID), zap.String("offered_by", userID))
	return updated, nil
}

// RespondDraw accepts or rejects a pending draw offer. Only the participant
// who did not offer may respond. Accepting splits points and closes the duel
// as a draw; rejecting keeps the battle running.
func (m *Manager) RespondDraw(ctx context.Context, duelID, userID string, accept bool) (*Duel, error) {
	d, err := m.load(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if !d.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if d.Status != StatusActive {
		return nil, ErrNotActive
	}
	offer := d.PendingOffer()
	if offer == nil {
		return nil, ErrNoDrawOffer
	}
	if offer.OfferedBy == userID {
		return nil, ErrNotOfferRecipient
	}

	if !accept {
		updated, err := m.store.Transition(ctx, d.ID, StatusActive, func(cur *Duel) error {
			if cur.PendingOffer() == nil {
				return ErrNoDrawOffer
			}
			cur.BattleDetails.DrawOffer.Status = OfferRejected
			return nil
		})
		if err != nil {
			return nil, err
		}
		obslog.L().Info("draw_reject", zap.String("duel_id", updated.ID), zap.String("rejected_by", userID))
		return updated, nil
	}

	challenger, err := m.users.GetUser(ctx, d.ChallengerID)
	if err != nil {
		return nil, err
	}
	opponent, err := m.users.GetUser(ctx, d.OpponentID)
	if err != nil {
		return nil, err
	}
	split := scoring.CalculateDrawPoints(ratingOf(challenger), ratingOf(opponent))

	updated, err := m.store.Transition(ctx, d.ID, StatusActive, func(cur *Duel) error {
		if cur.PendingOffer() == nil {
			return ErrNoDrawOffer
		}
		cur.BattleDetails.DrawOffer.Status = OfferAccepted
		cur.Status = StatusDraw
		cur.Result = &Result{
			WinCondition: WinDraw,
			CompletedAt:  time.Now(),
			PointsAwarded: &PointsAwarded{
				Challenger: split.Challenger,
				Opponent:   split.Opponent,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// the transition committed exactly once, so the award applies once
	if err := m.users.AddPoints(ctx, d.ChallengerID, split.Challenger); err != nil {
		obslog.L().Error("points_apply_error", zap.String("duel_id", d.ID), zap.String("user_id", d.ChallengerID), zap.Error(err))
	}
	if err := m.users.AddPoints(ctx, d.OpponentID, split.Opponent); err != nil {
		obslog.L().Error("points_apply_error", zap.String("duel_id", d.ID), zap.String("user_id", d.OpponentID), zap.Error(err))
	}
	obslog.L().Info("duel_draw",
		zap.String("duel_id", updated.ID),
		zap.Int("challenger_points", split.Challenger),
		zap.Int("opponent_points", split.Opponent),
	)
	return updated, nil
}

// WithdrawDraw lets the offering participant take back a pending offer.
func (m *Manager) WithdrawDraw(ctx context.Context, duelID, userID string) (*Duel, error) {
	d, err := m.load(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusActive {
		return nil, ErrNotActive
	}
	offer := d.PendingOffer()
	if offer == nil || offer.OfferedBy != userID {
		return nil, ErrNotOfferOwner
	}

	updated, err := m.store.Transition(ctx, d.ID, StatusActive, func(cur *Duel) error {
		if cur.PendingOffer() == nil || cur.BattleDetails.DrawOffer.OfferedBy != userID {
			return ErrNotOfferOwner
		}
		cur.BattleDetails.DrawOffer.Status = OfferWithdrawn
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("draw_withdraw", zap.String("duel_id", updated.ID), zap.String("offered_by", userID))
	return updated, nil
}

// CheckWinner polls the verdict source and closes the duel when a first
// solve is found. Undetermined polls are no-ops, and repeated calls after
// resolution return the settled result without re-applying points.
func (m *Manager) CheckWinner(ctx context.Context, duelID, userID string) (*Duel, bool, error) {
	d, err := m.load(ctx, duelID)
	if err != nil {
		return nil, false, err
	}
	if !d.IsParticipant(userID) {
		return nil, false, ErrNotParticipant
	}
	if d.Status.Terminal() {
		return d, d.Result != nil && d.Result.Winner != "", nil
	}
	if d.Status != StatusActive {
		return nil, false, ErrNotActive
	}

	d, err = m.completeIfTimedOut(ctx, d)
	if err != nil {
		return nil, false, err
	}
	if d.Status != StatusActive {
		return d, false, nil
	}

	challenger, err := m.users.GetUser(ctx, d.ChallengerID)
	if err != nil {
		return nil, false, err
	}
	opponent, err := m.users.GetUser(ctx, d.OpponentID)
	if err != nil {
		return nil, false, err
	}
	if challenger.Handle == "" || opponent.Handle == "" {
		obslog.L().Warn("winner_check_skipped", zap.String("duel_id", d.ID), zap.String("reason", "missing handle"))
		return d, false, nil
	}

	winnerID := m.resolver.Winner(ctx, d, challenger.Handle, opponent.Handle)
	if winnerID == "" {
		return d, false, nil
	}

	winner, loser := challenger, opponent
	if winnerID == d.OpponentID {
		winner, loser = opponent, challenger
	}
	pts := scoring.CalculatePoints(ratingOf(winner), ratingOf(loser))
	actualLoss := scoring.ActualLoss(pts.LoserLoses, loser.Points)
	bonus := m.bonusMessage(pts)

	updated, err := m.store.Transition(ctx, d.ID, StatusActive, func(cur *Duel) error {
		cur.Status = StatusCompleted
		cur.Result = &Result{
			Winner:       winnerID,
			WinCondition: WinFirstSolve,
			CompletedAt:  time.Now(),
			PointsAwarded: &PointsAwarded{
				Winner: pts.WinnerGains,
				Loser:  -actualLoss,
				Bonus:  bonus,
			},
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		// a concurrent check already settled it; points were applied there
		settled, lerr := m.load(ctx, d.ID)
		if lerr != nil {
			return nil, false, lerr
		}
		return settled, settled.Result != nil && settled.Result.Winner != "", nil
	}
	if err != nil {
		return nil, false, err
	}

	if err := m.users.AddPoints(ctx, winner.ID, pts.WinnerGains); err != nil {
		obslog.L().Error("points_apply_error", zap.String("duel_id", d.ID), zap.String("user_id", winner.ID), zap.Error(err))
	}
	if err := m.users.AddPoints(ctx, loser.ID, -actualLoss); err != nil {
		obslog.L().Error("points_apply_error", zap.String("duel_id", d.ID), zap.String("user_id", loser.ID), zap.Error(err))
	}
	obslog.L().Info("duel_complete",
		zap.String("duel_id", updated.ID),
		zap.String("winner_id", winnerID),
		zap.Int("winner_gains", pts.WinnerGains),
		zap.Int("loser_loses", actualLoss),
		zap.Bool("upset", pts.Upset),
	)
	return updated, true, nil
}

// ExpireOverdue force-expires pending challenges past their window and
// reports how many it closed. Safe to run alongside request traffic: each
// transition is conditional on the record still being pending.
func (m *Manager) ExpireOverdue(ctx context.Context) (int, error) {
	ids, err := m.store.ExpiredPendingIDs(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		_, terr := m.store.Transition(ctx, id, StatusPending, func(cur *Duel) error {
			cur.Status = StatusExpired
			cur.ExpiresAt = nil
			return nil
		})
		switch {
		case terr == nil:
			expired++
		case errors.Is(terr, ErrConflict), errors.Is(terr, ErrNotFound):
			// accepted, rejected, or swept concurrently; not ours to touch
		default:
			obslog.L().Warn("expiry_sweep_error", zap.String("duel_id", id), zap.Error(terr))
		}
	}
	if expired > 0 {
		obslog.L().Info("duel_expire_sweep", zap.Int("expired", expired))
	}
	return expired, nil
}

func (m *Manager) load(ctx context.Context, duelID string) (*Duel, error) {
	if strings.TrimSpace(duelID) == "" {
		return nil, ErrInvalidArgs
	}
	d, err := m.store.Load(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *Manager) bonusMessage(pts scoring.Points) string {
	if m.msgs == nil {
		return ""
	}
	msg, err := m.msgs.Render("bonus."+string(scoring.Bonus(pts)), nil)
	if err != nil {
		return ""
	}
	return msg
}

func ratingOf(u *userstore.User) int {
	if u == nil || u.Rating == nil {
		return 0
	}
	return *u.Rating
}

func cleanTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}
