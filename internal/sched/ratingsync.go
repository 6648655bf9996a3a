package sched

import (
	"context"
	"sync"
	"time"

	"github.com/park285/cf-duels/internal/obslog"
	"github.com/park285/cf-duels/internal/userstore"
	"go.uber.org/zap"
)

// RatingSource fetches a handle's current external rating; nil means
// unrated. *cfapi.Client satisfies it.
type RatingSource interface {
	UserRating(ctx context.Context, handle string) (*int, error)
}

// RatingSync refreshes every verified user's Codeforces rating in small
// paced batches so the external API is never hammered. Per-user failures
// are logged and skipped; the run always completes.
type RatingSync struct {
	users   userstore.Repository
	ratings RatingSource

	batchSize  int
	userPause  time.Duration
	batchPause time.Duration
}

func NewRatingSync(users userstore.Repository, ratings RatingSource, batchSize int, userPause, batchPause time.Duration) *RatingSync {
	if batchSize <= 0 {
		batchSize = 5
	}
	if userPause <= 0 {
		userPause = 500 * time.Millisecond
	}
	if batchPause <= 0 {
		batchPause = 2 * time.Second
	}
	return &RatingSync{
		users:      users,
		ratings:    ratings,
		batchSize:  batchSize,
		userPause:  userPause,
		batchPause: batchPause,
	}
}

// Run refreshes all verified users once.
func (s *RatingSync) Run(ctx context.Context) {
	users, err := s.users.ListVerified(ctx)
	if err != nil {
		obslog.L().Error("rating_sync_list_error", zap.Error(err))
		return
	}
	obslog.L().Info("rating_sync_start", zap.Int("users", len(users)))

	updated := 0
	var mu sync.Mutex
	for i := 0; i < len(users); i += s.batchSize {
		if ctx.Err() != nil {
			obslog.L().Warn("rating_sync_cancelled", zap.Int("synced", i))
			return
		}
		end := i + s.batchSize
		if end > len(users) {
			end = len(users)
		}

		var wg sync.WaitGroup
		for _, u := range users[i:end] {
			wg.Add(1)
			go func(u *userstore.User) {
				defer wg.Done()
				if s.syncUser(ctx, u) {
					mu.Lock()
					updated++
					mu.Unlock()
				}
				// pace requests within the batch
				sleepCtx(ctx, s.userPause)
			}(u)
		}
		wg.Wait()

		if end < len(users) {
			sleepCtx(ctx, s.batchPause)
		}
	}
	obslog.L().Info("rating_sync_done", zap.Int("users", len(users)), zap.Int("updated", updated))
}

// syncUser fetches and persists one user's rating; reports whether it
// changed.
func (s *RatingSync) syncUser(ctx context.Context, u *userstore.User) bool {
	rating, err := s.ratings.UserRating(ctx, u.Handle)
	if err != nil {
		obslog.L().Warn("rating_fetch_error", zap.String("user_id", u.ID), zap.String("handle", u.Handle), zap.Error(err))
		return false
	}
	if ratingEqual(u.Rating, rating) {
		return false
	}
	if err := s.users.SetRating(ctx, u.ID, rating); err != nil {
		obslog.L().Warn("rating_persist_error", zap.String("user_id", u.ID), zap.Error(err))
		return false
	}
	obslog.L().Info("rating_updated",
		zap.String("user_id", u.ID),
		zap.String("handle", u.Handle),
		zap.Any("old", ratingValue(u.Rating)),
		zap.Any("new", ratingValue(rating)),
	)
	return true
}

func ratingEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func ratingValue(r *int) any {
	if r == nil {
		return nil
	}
	return *r
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
