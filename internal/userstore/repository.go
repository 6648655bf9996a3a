// Package userstore is the persistence collaborator for user records. The
// duel core only reads rating/handle/friendship and mutates points; account
// management lives elsewhere.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

var ErrUserNotFound = errors.New("user not found")

// User is the collaborator-owned record as the duel core sees it.
type User struct {
	ID       string
	Username string
	Handle   string // verified Codeforces handle, "" when unset
	Verified bool
	Rating   *int // external rating, nil when unrated
	Points   int
}

type Repository interface {
	GetUser(ctx context.Context, id string) (*User, error)
	AreFriends(ctx context.Context, userID, otherID string) (bool, error)
	// ListVerified returns users with a verified Codeforces handle.
	ListVerified(ctx context.Context) ([]*User, error)
	// AddPoints atomically applies delta, clamping the balance at zero.
	AddPoints(ctx context.Context, id string, delta int) error
	SetRating(ctx context.Context, id string, rating *int) error
}

// Postgres is the production Repository backed by lib/pq.
type Postgres struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// NewRepositoryFromDB wraps an existing handle; the caller owns its lifetime.
func NewRepositoryFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (r *Postgres) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Postgres) GetUser(ctx context.Context, id string) (*User, error) {
	const query = `
		SELECT id, username, COALESCE(cf_handle, ''), cf_verified, rating, points
		FROM users
		WHERE id = $1`

	var (
		u      User
		rating sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.Handle, &u.Verified, &rating, &u.Points)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if rating.Valid {
		v := int(rating.Int64)
		u.Rating = &v
	}
	return &u, nil
}

func (r *Postgres) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE user_id = $1 AND friend_id = $2
		)`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, userID, otherID).Scan(&ok); err != nil {
		return false, fmt.Errorf("friend check: %w", err)
	}
	return ok, nil
}

func (r *Postgres) ListVerified(ctx context.Context) ([]*User, error) {
	const query = `
		SELECT id, username, cf_handle, cf_verified, rating, points
		FROM users
		WHERE cf_verified = TRUE AND cf_handle IS NOT NULL
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list verified: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var (
			u      User
			rating sql.NullInt64
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.Handle, &u.Verified, &rating, &u.Points); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if rating.Valid {
			v := int(rating.Int64)
			u.Rating = &v
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// AddPoints clamps at zero in the statement itself so concurrent awards
// cannot drive the balance negative.
func (r *Postgres) AddPoints(ctx context.Context, id string, delta int) error {
	const query = `UPDATE users SET points = GREATEST(points + $2, 0) WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *Postgres) SetRating(ctx context.Context, id string, rating *int) error {
	const query = `UPDATE users SET rating = $2 WHERE id = $1`

	var arg sql.NullInt64
	if rating != nil {
		arg = sql.NullInt64{Int64: int64(*rating), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, query, id, arg)
	if err != nil {
		return fmt.Errorf("set rating: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
