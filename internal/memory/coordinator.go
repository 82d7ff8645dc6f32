package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/logging"
	"github.com/fyrsmithlabs/complyd/internal/profile"
)

// DefaultRecallK is the number of memories rendered into context.
const DefaultRecallK = 5

const (
	rememberedTitle = "## What I Remember\n\n"
	nothingRecalled = "No relevant past information found."
)

var tracer = otel.Tracer("complyd/memory")

// Stats summarizes every memory layer.
type Stats struct {
	ShortTermCount     int       `json:"short_term_count"`
	ShortTermCapacity  int       `json:"short_term_capacity"`
	LongTermCount      int       `json:"long_term_count"`
	ProfileFacts       int       `json:"profile_facts"`
	ProfileLastUpdated time.Time `json:"profile_last_updated"`
}

// Coordinator merges short-term turns, long-term recall and the profile.
type Coordinator struct {
	backend  LongTermBackend
	sessions *Sessions
	profile  *profile.Store
	logger   *zap.Logger
	now      func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock overrides the clock used for recency scoring.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator wires the memory layers together. profileStore may be nil.
func NewCoordinator(backend LongTermBackend, sessions *Sessions, profileStore *profile.Store, logger *zap.Logger, opts ...CoordinatorOption) *Coordinator {
	if sessions == nil {
		sessions = NewSessions(DefaultShortTermSize, DefaultSessionTTL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		backend:  backend,
		sessions: sessions,
		profile:  profileStore,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShortTerm returns the short-term buffer of the session in ctx.
func (c *Coordinator) ShortTerm(ctx context.Context) *ShortTerm {
	return c.sessions.FromContext(ctx)
}

// Profile returns the profile store, which may be nil.
func (c *Coordinator) Profile() *profile.Store {
	return c.profile
}

// Search recalls up to k records ranked by hybrid score. Backend errors are
// logged and yield no records.
func (c *Coordinator) Search(ctx context.Context, query string, k int) []Record {
	ctx, span := tracer.Start(ctx, "memory.Search")
	defer span.End()

	if k <= 0 {
		k = DefaultRecallK
	}
	if c.backend == nil {
		return nil
	}

	records, err := c.backend.Search(ctx, query, k)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("memory recall failed",
			append(logging.ContextFields(ctx), zap.String("backend", c.backend.Name()), zap.Error(err))...)
		return nil
	}

	records = c.rank(records, c.backend.Capability())
	if len(records) > k {
		records = records[:k]
	}
	span.SetAttributes(
		attribute.String("backend", c.backend.Name()),
		attribute.Int("results_count", len(records)),
	)
	return records
}

// rank scores records for the backend's capability and sorts them by hybrid
// score. The sort is stable so ties keep the backend's relevance order.
func (c *Coordinator) rank(records []Record, capability Capability) []Record {
	now := c.now()
	for i := range records {
		r := &records[i]
		switch capability {
		case CapabilityNativeRanking:
			r.Hybrid = r.Relevance
		case CapabilitySimilarity:
			r.Recency = Recency(r.Timestamp, now)
			r.Importance = Importance(r.Metadata)
			r.Hybrid = HybridScore(r.Relevance, r.Recency, r.Importance)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Hybrid > records[j].Hybrid
	})
	return records
}

// RelevantContext renders recalled memories for a prompt. With nothing
// recalled it falls back to the session's short-term turns when enabled.
func (c *Coordinator) RelevantContext(ctx context.Context, query string, k int) string {
	records := c.Search(ctx, query, k)
	if len(records) == 0 {
		st := c.ShortTerm(ctx)
		if !st.Disabled() && st.Len() > 0 {
			return st.Context(false)
		}
		return nothingRecalled
	}
	return FormatRecords(records)
}

// FormatRecords renders records as a numbered list.
func FormatRecords(records []Record) string {
	var b strings.Builder
	b.WriteString(rememberedTitle)
	for i, r := range records {
		ts := r.Timestamp
		if ts == "" {
			ts = "unknown"
		} else if len(ts) > 10 {
			ts = ts[:10]
		}
		text := r.Text
		if text == "" {
			text = "No content"
		}
		fmt.Fprintf(&b, "%d. %s _(from %s, relevance: %.2f)_\n", i+1, text, ts, r.Hybrid)
	}
	return b.String()
}

// Remember records a turn in the session buffer and in long-term memory.
// The short-term add happens even when long-term storage fails.
func (c *Coordinator) Remember(ctx context.Context, user, agent string, meta map[string]string) (string, error) {
	ctx, span := tracer.Start(ctx, "memory.Remember")
	defer span.End()

	c.ShortTerm(ctx).Add(user, agent)
	if c.backend == nil {
		return "", ErrBackendUnavailable
	}

	id, err := c.backend.Store(ctx, user, agent, meta)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("conversation_id", id))
	return id, nil
}

// Stats reports counts for every layer. A failing backend reports zero
// long-term records.
func (c *Coordinator) Stats(ctx context.Context) Stats {
	st := c.ShortTerm(ctx)
	stats := Stats{
		ShortTermCount:    st.Len(),
		ShortTermCapacity: st.Capacity(),
	}
	if c.backend != nil {
		all, err := c.backend.ListAll(ctx)
		if err != nil {
			c.logger.Warn("listing memories failed", zap.Error(err))
		}
		stats.LongTermCount = len(all)
	}
	if c.profile != nil {
		stats.ProfileFacts = c.profile.FactCount()
		stats.ProfileLastUpdated = c.profile.Stats().LastUpdated
	}
	return stats
}

// Clear deletes every long-term memory and returns how many were removed.
func (c *Coordinator) Clear(ctx context.Context) (int, error) {
	if c.backend == nil {
		return 0, ErrBackendUnavailable
	}
	return c.backend.Clear(ctx)
}
