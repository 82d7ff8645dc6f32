package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Store owns the profile document and serializes every mutation.
type Store struct {
	mu       sync.Mutex
	path     string
	profile  *Profile
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore opens the profile at path. A missing or unreadable file yields a
// fresh empty profile; the load error is logged, not returned.
func NewStore(path string, logger *zap.Logger, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("profile path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		path:     path,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
	}

	p, err := s.load()
	switch {
	case err == nil:
		s.profile = p
	case errors.Is(err, os.ErrNotExist):
		s.profile = newProfile(s.now())
	default:
		logger.Warn("failed to load profile, starting fresh", zap.String("path", path), zap.Error(err))
		s.profile = newProfile(s.now())
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Snapshot returns a deep copy of the current profile.
func (s *Store) Snapshot() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() Profile {
	p := *s.profile
	pi := &p.PersonalInfo
	pi.Name = append([]string(nil), pi.Name...)
	pi.Role = append([]string(nil), pi.Role...)
	pi.Company = append([]string(nil), pi.Company...)
	pi.Location = append([]string(nil), pi.Location...)
	pi.Industry = append([]string(nil), pi.Industry...)
	p.Preferences = append([]Preference(nil), p.Preferences...)
	p.Expertise = append([]Expertise(nil), p.Expertise...)
	return p
}

// ApplyFacts merges facts into the profile. Invalid facts are skipped.
// The whole batch is applied under one lock.
func (s *Store) ApplyFacts(facts []Fact) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := ApplyResult{Updated: []string{}, Conflicts: []string{}}
	for _, f := range facts {
		if err := s.validate.Struct(f); err != nil {
			s.logger.Warn("skipping invalid fact",
				zap.String("category", f.Category),
				zap.String("field", f.Field),
				zap.Error(fmt.Errorf("%w: %v", ErrInvalidFact, err)))
			continue
		}

		switch f.Category {
		case CategoryPersonalInfo:
			s.applyPersonalInfo(f, &res)
		case CategoryPreference:
			s.applyPreference(f)
			res.Updated = append(res.Updated, fmt.Sprintf("preference: %s = %s", f.Field, f.Value))
		case CategoryExpertise:
			level := s.applyExpertise(f)
			res.Updated = append(res.Updated, fmt.Sprintf("expertise: %s (%s)", f.Field, level))
		}
	}
	return res
}

func (s *Store) applyPersonalInfo(f Fact, res *ApplyResult) {
	values := s.profile.PersonalInfo.field(f.Field)
	if values == nil {
		s.logger.Debug("ignoring unknown personal info field", zap.String("field", f.Field))
		return
	}

	if containsFold(*values, f.Value) {
		return
	}
	if len(*values) > 0 {
		res.Conflicts = append(res.Conflicts, conflictText(f.Field, *values, f.Value))
		ConflictsTotal.Inc()
	}

	*values = append(*values, f.Value)
	s.profile.PersonalInfo.LastUpdated = s.now()
	s.saveLocked()
	res.Updated = append(res.Updated, fmt.Sprintf("personal_info.%s += %s", f.Field, f.Value))
}

func (s *Store) applyPreference(f Fact) {
	now := s.now()
	for i := range s.profile.Preferences {
		p := &s.profile.Preferences[i]
		if p.Type != f.Field {
			continue
		}
		p.Value = f.Value
		p.Confidence = min(1.0, p.Confidence+0.1)
		p.Occurrences++
		p.LastUpdated = now
		s.saveLocked()
		return
	}

	s.profile.Preferences = append(s.profile.Preferences, Preference{
		Type:        f.Field,
		Value:       f.Value,
		Confidence:  f.Confidence,
		Occurrences: 1,
		LastUpdated: now,
	})
	s.saveLocked()
}

func (s *Store) applyExpertise(f Fact) string {
	level, context := DefaultSkillLevel, f.Value
	if lv, ctx, ok := strings.Cut(f.Value, ":"); ok {
		level, context = strings.TrimSpace(lv), strings.TrimSpace(ctx)
	}

	now := s.now()
	for i := range s.profile.Expertise {
		e := &s.profile.Expertise[i]
		if !strings.EqualFold(e.Domain, f.Field) {
			continue
		}
		e.SkillLevel = level
		if context != "" {
			e.Context = context
		}
		e.LastUpdated = now
		s.saveLocked()
		return level
	}

	s.profile.Expertise = append(s.profile.Expertise, Expertise{
		Domain:      f.Field,
		SkillLevel:  level,
		Context:     context,
		LastUpdated: now,
	})
	s.saveLocked()
	return level
}

// Stats summarizes the profile.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	pi := s.profile.PersonalInfo
	return Stats{
		HasPersonalInfo: len(pi.Name) > 0 || len(pi.Role) > 0 || len(pi.Company) > 0,
		PreferenceCount: len(s.profile.Preferences),
		ExpertiseCount:  len(s.profile.Expertise),
		CreatedAt:       s.profile.CreatedAt,
		LastUpdated:     s.profile.LastUpdated,
	}
}

// FactCount returns preferences plus expertise, plus one when any personal
// info is set.
func (s *Store) FactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.profile.Preferences) + len(s.profile.Expertise)
	if !s.profile.PersonalInfo.empty() {
		n++
	}
	return n
}

// Clear resets the profile and removes the backing file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profile = newProfile(s.now())
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove profile: %w", err)
	}
	s.logger.Info("user profile cleared", zap.String("path", s.path))
	return nil
}

func (s *Store) load() (*Profile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if p.Preferences == nil {
		p.Preferences = []Preference{}
	}
	if p.Expertise == nil {
		p.Expertise = []Expertise{}
	}
	return &p, nil
}

// saveLocked rewrites the whole document. Failures are logged and the
// in-memory state is kept.
func (s *Store) saveLocked() {
	s.profile.LastUpdated = s.now()
	if err := s.writeFile(); err != nil {
		SaveErrors.Inc()
		s.logger.Error("failed to save profile", zap.String("path", s.path), zap.Error(err))
	}
}

func (s *Store) writeFile() error {
	data, err := json.MarshalIndent(s.profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename profile: %w", err)
	}
	return nil
}

func containsFold(values []string, v string) bool {
	for _, existing := range values {
		if strings.EqualFold(existing, v) {
			return true
		}
	}
	return false
}

// conflictText renders "company: existing ['Microsoft'] + new 'Google'".
func conflictText(field string, existing []string, value string) string {
	quoted := make([]string, len(existing))
	for i, v := range existing {
		quoted[i] = "'" + v + "'"
	}
	return fmt.Sprintf("%s: existing [%s] + new '%s'", field, strings.Join(quoted, ", "), value)
}
