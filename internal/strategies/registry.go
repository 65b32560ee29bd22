// Package strategies tracks strategy ownership, the authorization boundary
// for detection, config and outcome access.
package strategies

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Strategy is a user-owned trading strategy that requests detections.
type Strategy struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry is an in-memory strategy ownership index.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Strategy)}
}

// Register adds a strategy for the given user and returns it.
func (r *Registry) Register(userID, name string) *Strategy {
	s := &Strategy{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.byID[s.ID] = s
	r.mu.Unlock()
	return s
}

// Add inserts a strategy with a caller-chosen id, used when seeding from
// configuration.
func (r *Registry) Add(s Strategy) {
	r.mu.Lock()
	r.byID[s.ID] = &s
	r.mu.Unlock()
}

// Get returns a strategy by id.
func (r *Registry) Get(strategyID string) (*Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[strategyID]
	if !ok {
		return nil, false
	}
	out := *s
	return &out, true
}

// ListByUser returns the user's strategies.
func (r *Registry) ListByUser(userID string) []*Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Strategy
	for _, s := range r.byID {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

// Owner resolves the owning user of a strategy. The second return is false
// when the strategy id is unknown.
func (r *Registry) Owner(strategyID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[strategyID]
	if !ok {
		return "", false
	}
	return s.UserID, true
}
