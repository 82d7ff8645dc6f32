package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/complyd/internal/logging"
)

func TestSessions_IsolatesBuffers(t *testing.T) {
	s := NewSessions(4, time.Hour)

	s.Get("alice").Add("q", "a")
	assert.Equal(t, 1, s.Get("alice").Len())
	assert.Equal(t, 0, s.Get("bob").Len())
	assert.Equal(t, 4, s.Get("bob").Capacity())
	assert.Equal(t, 2, s.Count())

	s.Delete("alice")
	assert.Equal(t, 0, s.Get("alice").Len())
}

func TestSessions_DefaultAndContext(t *testing.T) {
	s := NewSessions(0, 0)
	assert.Equal(t, DefaultShortTermSize, s.Size())

	s.FromContext(context.Background()).Add("q", "a")
	assert.Equal(t, 1, s.Get(DefaultSessionID).Len())

	ctx := logging.WithSessionID(context.Background(), "cli-42")
	s.FromContext(ctx).Add("q", "a")
	s.FromContext(ctx).Add("q2", "a2")
	assert.Equal(t, 2, s.Get("cli-42").Len())
}

func TestSessions_Expire(t *testing.T) {
	s := NewSessions(2, 20*time.Millisecond)
	s.Get("short").Add("q", "a")

	assert.Eventually(t, func() bool {
		return s.Get("short").Len() == 0
	}, time.Second, 30*time.Millisecond)
}
