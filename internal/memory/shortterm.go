package memory

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultShortTermSize is the number of turns kept when no size is configured.
const DefaultShortTermSize = 10

const (
	noRecentHistory    = "No recent conversation history."
	recentHistoryTitle = "## Recent Conversation History\n\n"
	turnPreviewLimit   = 200
)

// Turn is one user/agent exchange.
type Turn struct {
	User  string `json:"user"`
	Agent string `json:"agent"`
}

// ShortTerm is a bounded buffer of recent turns. The oldest turn is evicted
// once capacity is reached. Safe for concurrent use.
type ShortTerm struct {
	mu       sync.Mutex
	turns    []Turn
	capacity int
	disabled bool
}

// NewShortTerm creates a buffer holding at most capacity turns.
func NewShortTerm(capacity int) *ShortTerm {
	if capacity < 1 {
		capacity = DefaultShortTermSize
	}
	return &ShortTerm{
		turns:    make([]Turn, 0, capacity),
		capacity: capacity,
	}
}

// Add appends a turn, evicting the oldest when full.
func (s *ShortTerm) Add(user, agent string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) == s.capacity {
		copy(s.turns, s.turns[1:])
		s.turns = s.turns[:len(s.turns)-1]
	}
	s.turns = append(s.turns, Turn{User: user, Agent: agent})
}

// Context renders the buffered turns for a prompt. When skipIfDisabled is
// set, a disabled buffer renders as empty.
func (s *ShortTerm) Context(skipIfDisabled bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) == 0 || (skipIfDisabled && s.disabled) {
		return noRecentHistory
	}

	var b strings.Builder
	b.WriteString(recentHistoryTitle)
	for i, t := range s.turns {
		agent, cut := truncate(t.Agent, turnPreviewLimit)
		suffix := ""
		if cut {
			suffix = "..."
		}
		fmt.Fprintf(&b, "**Turn %d:**\nUser: %s\nAgent: %s%s\n\n", i+1, t.User, agent, suffix)
	}
	return b.String()
}

// Turns returns a copy of the buffered turns, oldest first.
func (s *ShortTerm) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// SetDisabled toggles whether Context(true) hides the buffer. Used by the
// evaluation harness to isolate long-term recall.
func (s *ShortTerm) SetDisabled(disabled bool) {
	s.mu.Lock()
	s.disabled = disabled
	s.mu.Unlock()
}

// Disabled reports the disable flag.
func (s *ShortTerm) Disabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// Len returns the number of buffered turns.
func (s *ShortTerm) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Capacity returns the maximum number of turns.
func (s *ShortTerm) Capacity() int { return s.capacity }

// Clear drops every buffered turn.
func (s *ShortTerm) Clear() {
	s.mu.Lock()
	s.turns = s.turns[:0]
	s.mu.Unlock()
}
