// Package profile keeps a durable structured record of facts about one user.
//
// Personal-info fields hold every distinct value ever observed, so a second
// employer or role is kept alongside the first and reported as a conflict
// rather than replacing it. Preferences are keyed by type and expertise by
// domain (case-insensitive); both are updated in place.
//
// The whole document is rewritten to disk on every mutation.
package profile

import (
	"errors"
	"time"
)

// Fact categories.
const (
	CategoryPersonalInfo = "personal_info"
	CategoryPreference   = "preference"
	CategoryExpertise    = "expertise"
)

// DefaultSkillLevel is used when an expertise value carries no level.
const DefaultSkillLevel = "intermediate"

const emptyProfileText = "No user profile information available yet."

var (
	// ErrInvalidFact is returned for facts that fail validation.
	ErrInvalidFact = errors.New("invalid fact")

	// ErrCorrupted indicates the profile file could not be decoded.
	ErrCorrupted = errors.New("profile file corrupted")
)

// PersonalInfo holds multi-valued personal fields.
type PersonalInfo struct {
	Name        []string  `json:"name"`
	Role        []string  `json:"role"`
	Company     []string  `json:"company"`
	Location    []string  `json:"location"`
	Industry    []string  `json:"industry"`
	LastUpdated time.Time `json:"last_updated"`
}

// field returns a pointer to the named value list, or nil for unknown names.
func (p *PersonalInfo) field(name string) *[]string {
	switch name {
	case "name":
		return &p.Name
	case "role":
		return &p.Role
	case "company":
		return &p.Company
	case "location":
		return &p.Location
	case "industry":
		return &p.Industry
	}
	return nil
}

func (p *PersonalInfo) empty() bool {
	return len(p.Name) == 0 && len(p.Role) == 0 && len(p.Company) == 0 &&
		len(p.Location) == 0 && len(p.Industry) == 0
}

// Preference is an observed user preference.
type Preference struct {
	Type        string    `json:"preference_type"`
	Value       string    `json:"value"`
	Confidence  float64   `json:"confidence"`
	Occurrences int       `json:"occurrences"`
	LastUpdated time.Time `json:"last_updated"`
}

// Expertise is a domain the user knows, with a skill level.
type Expertise struct {
	Domain      string    `json:"domain"`
	SkillLevel  string    `json:"skill_level"`
	Context     string    `json:"context,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Profile is the persisted document.
type Profile struct {
	PersonalInfo PersonalInfo `json:"personal_info"`
	Preferences  []Preference `json:"preferences"`
	Expertise    []Expertise  `json:"expertise"`
	CreatedAt    time.Time    `json:"created_at"`
	LastUpdated  time.Time    `json:"last_updated"`
}

func newProfile(now time.Time) *Profile {
	return &Profile{
		PersonalInfo: PersonalInfo{LastUpdated: now},
		Preferences:  []Preference{},
		Expertise:    []Expertise{},
		CreatedAt:    now,
		LastUpdated:  now,
	}
}

// Fact is a single piece of information extracted from a conversation.
type Fact struct {
	Category      string  `json:"category" validate:"required,oneof=personal_info preference expertise"`
	Field         string  `json:"field" validate:"required"`
	Value         string  `json:"value" validate:"required"`
	Confidence    float64 `json:"confidence" validate:"gte=0,lte=1"`
	SourceContext string  `json:"source_context"`
}

// ApplyResult lists what changed and which personal values conflicted.
type ApplyResult struct {
	Updated   []string `json:"updated"`
	Conflicts []string `json:"conflicts"`
}

// Stats summarizes the profile.
type Stats struct {
	HasPersonalInfo bool      `json:"has_personal_info"`
	PreferenceCount int       `json:"preference_count"`
	ExpertiseCount  int       `json:"expertise_count"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
}
