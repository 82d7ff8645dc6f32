// Package memory layers short-term turns, long-term semantic recall and the
// user profile into prompt context.
package memory

import (
	"context"
	"errors"
	"math"
	"time"
	"unicode/utf8"
)

// Metadata keys written with every stored conversation.
const (
	MetaConversationID  = "conversation_id"
	MetaTimestamp       = "timestamp"
	MetaUserMessage     = "user_message"
	MetaAgentResponse   = "agent_response"
	MetaCitationQuality = "citation_quality"
	MetaQueryType       = "query_type"
	MetaLoopCount       = "loop_count"
	MetaHumanApproved   = "human_approved"
	MetaHumanFeedback   = "human_feedback"
)

// Hybrid score weights.
const (
	RelevanceWeight  = 0.5
	RecencyWeight    = 0.3
	ImportanceWeight = 0.2

	// recencyWindowDays is the age at which recency reaches zero.
	recencyWindowDays = 30

	storedResponseLimit = 500
	memoryPreviewLimit  = 100
)

var (
	// ErrBackendUnavailable is returned when the long-term store cannot be reached.
	ErrBackendUnavailable = errors.New("long-term memory backend unavailable")

	// ErrEmptyTurn is returned when storing a turn without a user message.
	ErrEmptyTurn = errors.New("user message cannot be empty")
)

// Capability describes how a backend scores its results.
type Capability int

const (
	// CapabilitySimilarity backends return raw similarity; the coordinator
	// applies hybrid scoring.
	CapabilitySimilarity Capability = iota

	// CapabilityNativeRanking backends rank results themselves; their score
	// is used as-is.
	CapabilityNativeRanking
)

// String implements fmt.Stringer.
func (c Capability) String() string {
	switch c {
	case CapabilitySimilarity:
		return "similarity"
	case CapabilityNativeRanking:
		return "native_ranking"
	default:
		return "unknown"
	}
}

// Record is one recalled conversation.
type Record struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	UserMessage   string            `json:"user_message"`
	AgentResponse string            `json:"agent_response"`
	Timestamp     string            `json:"timestamp"`
	Relevance     float64           `json:"relevance"`
	Recency       float64           `json:"recency"`
	Importance    float64           `json:"importance"`
	Hybrid        float64           `json:"hybrid"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// LongTermBackend stores and recalls conversations.
type LongTermBackend interface {
	// Store persists a turn and returns its conversation id.
	Store(ctx context.Context, user, agent string, meta map[string]string) (string, error)

	// Search returns up to k records ordered by the backend's own score.
	Search(ctx context.Context, query string, k int) ([]Record, error)

	// ListAll returns every stored record.
	ListAll(ctx context.Context) ([]Record, error)

	// Clear removes every record and returns how many were removed.
	Clear(ctx context.Context) (int, error)

	// Capability reports how Search results are scored.
	Capability() Capability

	// Name identifies the backend in logs and metrics.
	Name() string
}

// Recency scores an RFC3339 timestamp by age in whole days, linearly from 1
// (today) to 0 (30 days or older). Unparseable timestamps score 0.
func Recency(timestamp string, now time.Time) float64 {
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		ts, err = time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return 0
		}
	}
	days := math.Floor(now.Sub(ts).Hours() / 24)
	return math.Max(0, 1-days/recencyWindowDays)
}

// Importance maps a citation quality to a weight. Records without a quality
// are treated as Good.
func Importance(meta map[string]string) float64 {
	quality, ok := meta[MetaCitationQuality]
	if !ok {
		quality = "Good"
	}
	switch quality {
	case "Excellent":
		return 1.0
	case "Good":
		return 0.8
	case "Fair":
		return 0.6
	case "Poor":
		return 0.4
	default:
		return 0.5
	}
}

// HybridScore combines the three signals with the fixed weights.
func HybridScore(relevance, recency, importance float64) float64 {
	return RelevanceWeight*relevance + RecencyWeight*recency + ImportanceWeight*importance
}

// clamp01 bounds a similarity into [0, 1].
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// memoryText is the one-line rendering of a stored turn.
func memoryText(user, agent string) string {
	preview, _ := truncate(agent, memoryPreviewLimit)
	return "User: " + user + " | Agent: " + preview
}

// truncate shortens s to at most n runes and reports whether it cut.
func truncate(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:n]), true
}
