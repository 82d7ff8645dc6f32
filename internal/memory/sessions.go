package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/fyrsmithlabs/complyd/internal/logging"
)

// DefaultSessionID is used when the context carries no session id.
const DefaultSessionID = "default"

// DefaultSessionTTL evicts short-term buffers idle for longer than this.
const DefaultSessionTTL = 24 * time.Hour

// Sessions holds one ShortTerm buffer per session id. Idle sessions expire.
type Sessions struct {
	mu    sync.Mutex
	cache *cache.Cache
	size  int
	ttl   time.Duration
}

// NewSessions creates a registry whose buffers hold size turns.
func NewSessions(size int, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{
		cache: cache.New(ttl, ttl/2),
		size:  size,
		ttl:   ttl,
	}
}

// Get returns the buffer for id, creating it if needed. Access refreshes
// the expiry.
func (s *Sessions) Get(id string) *ShortTerm {
	if id == "" {
		id = DefaultSessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(id); ok {
		st := v.(*ShortTerm)
		s.cache.Set(id, st, cache.DefaultExpiration)
		return st
	}
	st := NewShortTerm(s.size)
	s.cache.Set(id, st, cache.DefaultExpiration)
	return st
}

// FromContext returns the buffer for the session id carried by ctx.
func (s *Sessions) FromContext(ctx context.Context) *ShortTerm {
	return s.Get(logging.SessionIDFromContext(ctx))
}

// Delete drops a session.
func (s *Sessions) Delete(id string) {
	s.cache.Delete(id)
}

// Count returns the number of live sessions.
func (s *Sessions) Count() int {
	return s.cache.ItemCount()
}

// Size returns the per-session capacity.
func (s *Sessions) Size() int {
	if s.size < 1 {
		return DefaultShortTermSize
	}
	return s.size
}
