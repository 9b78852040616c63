// Package session keeps per-browser UI state in a bounded, expiring cache.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/okian/petal/internal/domain/predict"
	"github.com/okian/petal/pkg/metrics"
)

// Store defaults.
const (
	defaultMaxSessions = 10_000
	defaultTTL         = 30 * time.Minute
)

// State is everything the page needs about one visitor. Handlers work on a
// copy and Put it back.
type State struct {
	ID          string
	Started     bool
	FileName    string
	Predictions *predict.Table
	UpdatedAt   time.Time
}

// Store maps session ids to State. Entries expire after the TTL and the
// least recently used entry is dropped when the store is full.
type Store struct {
	maxSessions int
	ttl         time.Duration
	cache       *expirable.LRU[string, State]
}

// NewStore creates a session store.
func NewStore(opts ...Option) *Store {
	s := &Store{maxSessions: defaultMaxSessions, ttl: defaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = expirable.NewLRU[string, State](s.maxSessions, nil, s.ttl)
	return s
}

// New returns a fresh state with a random id. It is not stored until Put.
func (s *Store) New() State {
	return State{ID: uuid.NewString(), UpdatedAt: time.Now()}
}

// Get returns the state for id. Unknown, malformed and expired ids report false.
func (s *Store) Get(id string) (State, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return State{}, false
	}
	return s.cache.Get(id)
}

// Put stores st under its id.
func (s *Store) Put(st State) {
	if st.ID == "" {
		return
	}
	st.UpdatedAt = time.Now()
	s.cache.Add(st.ID, st)
	metrics.UpdateActiveSessions(s.cache.Len())
}

// Delete forgets id.
func (s *Store) Delete(id string) {
	s.cache.Remove(id)
	metrics.UpdateActiveSessions(s.cache.Len())
}

// Len returns the number of live sessions.
func (s *Store) Len() int { return s.cache.Len() }

// TTL returns the idle lifetime of a session.
func (s *Store) TTL() time.Duration { return s.ttl }

// GetStats reports the store occupancy for /stats.
func (s *Store) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"activeSessions":    s.cache.Len(),
		"maxSessions":       s.maxSessions,
		"sessionTTLSeconds": int(s.ttl.Seconds()),
	}
}
