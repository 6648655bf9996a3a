package duel

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists duel records in Redis. Records live under duel:<id> with no
// TTL (terminal duels are history); companion indexes:
//
//	duel:index:user:<uid>   set of duel ids per participant
//	duel:pending:pair:<a>|<b>  guard key for one pending duel per pair
//	duel:expiry             zset of pending duel ids scored by expiresAt
//
// The expiry zset only ever holds pending duels: members are added on create
// and removed inside the same transaction that leaves the pending state.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func duelKey(id string) string     { return "duel:" + strings.TrimSpace(id) }
func userIdxKey(uid string) string { return "duel:index:user:" + strings.TrimSpace(uid) }
func expiryKey() string            { return "duel:expiry" }

// pairKey is order-independent so A→B and B→A guard the same slot.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "duel:pending:pair:" + a + "|" + b
}

// Create stores a new pending duel. The pair guard is claimed with SetNX so
// two concurrent challenges between the same users cannot both land; the
// guard expires with the challenge window as a backstop, and is cleared
// explicitly when the duel leaves pending.
func (s *Store) Create(ctx context.Context, d *Duel) error {
	if d == nil || d.ID == "" || d.ExpiresAt == nil {
		return ErrInvalidArgs
	}
	guard := pairKey(d.ChallengerID, d.OpponentID)
	guardTTL := time.Until(*d.ExpiresAt) + time.Minute

	ok, err := s.rdb.SetNX(ctx, guard, d.ID, guardTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicatePending
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, duelKey(d.ID), raw, 0)
	pipe.SAdd(ctx, userIdxKey(d.ChallengerID), d.ID)
	pipe.SAdd(ctx, userIdxKey(d.OpponentID), d.ID)
	pipe.ZAdd(ctx, expiryKey(), redis.Z{Score: float64(d.ExpiresAt.Unix()), Member: d.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		// roll the guard back so the pair is not locked out
		_ = s.rdb.Del(ctx, guard).Err()
		return err
	}
	return nil
}

// Load returns the duel by id, or nil when absent.
func (s *Store) Load(ctx context.Context, id string) (*Duel, error) {
	raw, err := s.rdb.Get(ctx, duelKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d Duel
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Delete removes a pending duel outright (reject keeps no record). The
// WATCH guards against a racing accept: once the record left pending the
// delete fails with ErrConflict instead of destroying an active battle.
func (s *Store) Delete(ctx context.Context, d *Duel) error {
	if d == nil || d.ID == "" {
		return ErrInvalidArgs
	}
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, duelKey(d.ID)).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur Duel
		if err := json.Unmarshal(raw, &cur); err != nil {
			return err
		}
		if cur.Status != StatusPending {
			return ErrConflict
		}
		pipe := tx.TxPipeline()
		pipe.Del(ctx, duelKey(d.ID))
		pipe.SRem(ctx, userIdxKey(d.ChallengerID), d.ID)
		pipe.SRem(ctx, userIdxKey(d.OpponentID), d.ID)
		pipe.ZRem(ctx, expiryKey(), d.ID)
		pipe.Del(ctx, pairKey(d.ChallengerID, d.OpponentID))
		_, err = pipe.Exec(ctx)
		return err
	}, duelKey(d.ID))

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// Transition applies mutate under a WATCH on the duel key, succeeding only
// if the record's status still equals expect when the transaction commits.
// Concurrent writers observe ErrConflict and must re-read. When the mutation
// leaves the pending state, the pair guard and expiry index are cleared in
// the same transaction.
func (s *Store) Transition(ctx context.Context, id string, expect Status, mutate func(*Duel) error) (*Duel, error) {
	var out *Duel
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, duelKey(id)).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur Duel
		if err := json.Unmarshal(raw, &cur); err != nil {
			return err
		}
		if cur.Status != expect {
			return ErrConflict
		}

		if err := mutate(&cur); err != nil {
			return err
		}
		cur.UpdatedAt = time.Now()

		newRaw, err := json.Marshal(&cur)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, duelKey(cur.ID), newRaw, 0)
		if expect == StatusPending && cur.Status != StatusPending {
			pipe.ZRem(ctx, expiryKey(), cur.ID)
			pipe.Del(ctx, pairKey(cur.ChallengerID, cur.OpponentID))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = &cur
		return nil
	}, duelKey(id))

	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DuelsByUser returns every duel the user participates in, newest first.
func (s *Store) DuelsByUser(ctx context.Context, userID string) ([]*Duel, error) {
	ids, err := s.rdb.SMembers(ctx, userIdxKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	var list []*Duel
	for _, id := range ids {
		d, derr := s.Load(ctx, id)
		if derr != nil || d == nil {
			continue
		}
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// ExpiredPendingIDs returns ids from the expiry index whose deadline is at
// or before now. Members are only removed once the status transition
// commits, so a failed sweep retries on the next tick.
func (s *Store) ExpiredPendingIDs(ctx context.Context, now time.Time) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
}
