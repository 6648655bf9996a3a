package userstore

import (
	"context"
	"sort"
	"sync"
)

// memrepo is an in-memory Repository used by tests and local development
// when no DB is configured.
type memrepo struct {
	mu sync.RWMutex

	users   map[string]*User
	friends map[string]map[string]bool // userID -> friendID set
}

func NewMemoryRepository() *Memory {
	return &Memory{memrepo{
		users:   make(map[string]*User),
		friends: make(map[string]map[string]bool),
	}}
}

// Memory exposes seeding helpers on top of the Repository contract.
type Memory struct {
	memrepo
}

// Put inserts or replaces a user record.
func (m *Memory) Put(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := u
	m.users[u.ID] = &cp
}

// Befriend records a mutual friendship.
func (m *Memory) Befriend(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.friends[a] == nil {
		m.friends[a] = make(map[string]bool)
	}
	if m.friends[b] == nil {
		m.friends[b] = make(map[string]bool)
	}
	m.friends[a][b] = true
	m.friends[b][a] = true
}

func (m *memrepo) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memrepo) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.friends[userID][otherID], nil
}

func (m *memrepo) ListVerified(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*User
	for _, u := range m.users {
		if u.Verified && u.Handle != "" {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memrepo) AddPoints(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Points += delta
	if u.Points < 0 {
		u.Points = 0
	}
	return nil
}

func (m *memrepo) SetRating(ctx context.Context, id string, rating *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if rating == nil {
		u.Rating = nil
	} else {
		v := *rating
		u.Rating = &v
	}
	return nil
}
