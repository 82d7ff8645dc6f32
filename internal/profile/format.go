package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Format renders the profile as prompt text.
func (s *Store) Format() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return formatProfile(s.profile)
}

// Relevant returns the parts of the profile that matter for query. Personal
// questions get the full profile; otherwise matching expertise and
// style preferences are listed, falling back to the full profile.
func (s *Store) Relevant(query string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	full := formatProfile(s.profile)

	if containsAny(q, "my", "i", "me", "who", "what do you know") && full != emptyProfileText {
		return full
	}

	var relevant []string
	for _, e := range s.profile.Expertise {
		if strings.Contains(q, strings.ToLower(e.Domain)) {
			relevant = append(relevant, fmt.Sprintf("User expertise in %s: %s", e.Domain, e.SkillLevel))
		}
	}
	if containsAny(q, "brief", "detailed", "summary", "explain") {
		for _, p := range s.profile.Preferences {
			if p.Type == "response_style" || p.Type == "detail_level" {
				relevant = append(relevant, fmt.Sprintf("User prefers %s: %s", p.Type, p.Value))
			}
		}
	}

	if len(relevant) == 0 {
		return full
	}
	return strings.Join(relevant, "\n")
}

func formatProfile(p *Profile) string {
	var lines []string

	var personal []string
	for _, f := range []struct {
		label  string
		values []string
	}{
		{"Name", p.PersonalInfo.Name},
		{"Role", p.PersonalInfo.Role},
		{"Company", p.PersonalInfo.Company},
		{"Location", p.PersonalInfo.Location},
		{"Industry", p.PersonalInfo.Industry},
	} {
		if len(f.values) > 0 {
			personal = append(personal, fmt.Sprintf("  - %s: %s", f.label, strings.Join(f.values, ", ")))
		}
	}
	if len(personal) > 0 {
		lines = append(lines, "**Personal Information:**")
		lines = append(lines, personal...)
		lines = append(lines, "")
	}

	if len(p.Preferences) > 0 {
		prefs := append([]Preference(nil), p.Preferences...)
		sort.SliceStable(prefs, func(i, j int) bool { return prefs[i].Confidence > prefs[j].Confidence })
		lines = append(lines, "**Preferences:**")
		for _, pr := range prefs {
			lines = append(lines, fmt.Sprintf("  - %s: %s (confidence: %.2f)", pr.Type, pr.Value, pr.Confidence))
		}
		lines = append(lines, "")
	}

	if len(p.Expertise) > 0 {
		exp := append([]Expertise(nil), p.Expertise...)
		sort.SliceStable(exp, func(i, j int) bool { return exp[i].Domain < exp[j].Domain })
		lines = append(lines, "**Expertise:**")
		for _, e := range exp {
			ctx := ""
			if e.Context != "" {
				ctx = " - " + e.Context
			}
			lines = append(lines, fmt.Sprintf("  - %s: %s%s", e.Domain, e.SkillLevel, ctx))
		}
		lines = append(lines, "")
	}

	if len(lines) == 0 {
		return emptyProfileText
	}
	return strings.Join(lines, "\n")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
