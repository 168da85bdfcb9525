// Package userdir adapts the marketplace user directory: spendable balances
// and freelancer profiles.
package userdir

import (
	"context"
	"sort"
	"sync"

	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/profile"
)

type memoryUser struct {
	profile profile.Profile
	balance ledger.Money
}

// Memory is an in-process directory for development and tests.
type Memory struct {
	mu      sync.RWMutex
	users   map[string]*memoryUser
	applied map[string]struct{}
}

// NewMemory creates an empty directory.
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]*memoryUser),
		applied: make(map[string]struct{}),
	}
}

// Put inserts or replaces a user.
func (m *Memory) Put(p profile.Profile, balance ledger.Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Skills = append([]string(nil), p.Skills...)
	m.users[p.UserID] = &memoryUser{profile: p, balance: balance}
}

// GetBalance returns the user's spendable balance.
func (m *Memory) GetBalance(_ context.Context, userID string) (ledger.Money, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return u.balance, nil
}

// AdjustBalance applies delta once per key.
func (m *Memory) AdjustBalance(_ context.Context, userID string, delta ledger.Money, key, _ string) (ledger.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	if _, done := m.applied[key]; done {
		return u.balance, nil
	}
	if u.balance+delta < 0 {
		return u.balance, ledger.ErrInsufficientBalance
	}
	u.balance += delta
	m.applied[key] = struct{}{}
	return u.balance, nil
}

// GetProfile returns a copy of the user's profile.
func (m *Memory) GetProfile(_ context.Context, userID string) (*profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	p := u.profile
	p.Skills = append([]string(nil), u.profile.Skills...)
	return &p, nil
}

// SearchFreelancers returns active freelancers sharing at least one skill with the
// query, ordered by user ID.
func (m *Memory) SearchFreelancers(_ context.Context, q profile.SearchQuery) ([]profile.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exclude := make(map[string]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		exclude[id] = struct{}{}
	}
	wanted := profile.NormalizeSkills(q.Skills)

	var out []profile.Profile
	for id, u := range m.users {
		if _, skip := exclude[id]; skip {
			continue
		}
		if !u.profile.Active() || !u.profile.Freelancer() {
			continue
		}
		if len(wanted) > 0 && u.profile.MatchCount(wanted) == 0 {
			continue
		}
		p := u.profile
		p.Skills = append([]string(nil), u.profile.Skills...)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// RecordCompletion stores the freelancer's new rating and completion count.
func (m *Memory) RecordCompletion(_ context.Context, userID string, rating float64, completed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.profile.Rating = rating
	u.profile.CompletedProjects = completed
	return nil
}
