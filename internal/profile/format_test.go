package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, "No user profile information available yet.", s.Format())

	s.ApplyFacts([]Fact{
		{Category: CategoryPersonalInfo, Field: "company", Value: "Acme", Confidence: 0.9},
		{Category: CategoryPersonalInfo, Field: "company", Value: "Globex", Confidence: 0.9},
		{Category: CategoryPreference, Field: "tone", Value: "formal", Confidence: 0.5},
		{Category: CategoryPreference, Field: "response_style", Value: "concise", Confidence: 0.9},
		{Category: CategoryExpertise, Field: "SOC 2", Value: "advanced: auditor", Confidence: 0.8},
		{Category: CategoryExpertise, Field: "GDPR", Value: "beginner:", Confidence: 0.8},
	})

	want := "**Personal Information:**\n" +
		"  - Company: Acme, Globex\n" +
		"\n" +
		"**Preferences:**\n" +
		"  - response_style: concise (confidence: 0.90)\n" +
		"  - tone: formal (confidence: 0.50)\n" +
		"\n" +
		"**Expertise:**\n" +
		"  - GDPR: beginner\n" +
		"  - SOC 2: advanced - auditor\n"
	assert.Equal(t, want, s.Format())
}

func TestRelevant(t *testing.T) {
	s := newTestStore(t)
	s.ApplyFacts([]Fact{
		{Category: CategoryPreference, Field: "detail_level", Value: "high", Confidence: 0.7},
		{Category: CategoryExpertise, Field: "SOC", Value: "expert: compliance lead", Confidence: 0.8},
	})

	t.Run("personal query returns full profile", func(t *testing.T) {
		assert.Equal(t, s.Format(), s.Relevant("What is my role?"))
	})

	t.Run("expertise and style match", func(t *testing.T) {
		got := s.Relevant("SOC 2 summary")
		assert.Equal(t, "User expertise in SOC: expert\nUser prefers detail_level: high", got)
	})

	t.Run("no match falls back to full", func(t *testing.T) {
		assert.Equal(t, s.Format(), s.Relevant("PCI DSS scope rules"))
	})
}

func TestRelevant_EmptyProfile(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, emptyProfileText, s.Relevant("who am I"))
}
