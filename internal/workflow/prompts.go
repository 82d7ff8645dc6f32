package workflow

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/complyd/internal/retrieval"
)

// Generation temperatures per stage.
const (
	intentTemperature    = 0.2
	synthTemperature     = 0.3
	followupTemperature  = 0.4
	factsTemperature     = 0.2
	maxFollowUpQuestions = 3
)

const noDocumentsText = "No directly relevant compliance documents found for this query."

const intentSystem = `You are a compliance and security analyst who remembers earlier conversations.
Work out what the user is asking and which details they left out.

Classify the query:
- "What is ..." or "Define ..." is definition
- questions about risks or security concerns are security_risk
- questions about regulatory or compliance requirements are compliance
- "Compare ..." or "difference between" is comparison
- anything else is general

Use the conversation history when the user refers to "my project" or "our system", and note
when the query follows up an earlier question. Definitions and high-level comparisons usually
need no extra context; risk and compliance questions often need details such as the kind of
data handled, the deployment region or the risk level.

Reply with JSON: {"intent_analysis": "...", "query_type": "...", "missing_context": ["..."]}`

const intentRefineSystem = `You are a compliance and security analyst. A previous answer to this query
failed review. Analyze the query again and be specific about which details are missing, for example
"deployment region for EU AI Act scope" or "categories of personal data processed".

Reply with JSON: {"intent_analysis": "...", "query_type": "...", "missing_context": ["..."]}`

func intentPrompt(s *State, loopBack bool) (system, user string) {
	if !loopBack {
		return intentSystem, fmt.Sprintf(`USER PROFILE:
%s

CONVERSATION CONTEXT:
%s

USER QUERY: %q

Return intent_analysis (one sentence), query_type (security_risk, compliance, comparison,
definition or general) and missing_context (an empty list when the query is specific enough).`,
			s.UserProfile, s.UserContext, s.Query)
	}

	claims := "None"
	if len(s.UnsupportedClaims) > 0 {
		claims = "- " + strings.Join(s.UnsupportedClaims, "\n- ")
	}
	return intentRefineSystem, fmt.Sprintf(`USER QUERY: %q

USER PROFILE:
%s

CONVERSATION CONTEXT:
%s

REVIEW NOTES FROM THE PREVIOUS ATTEMPT:
%s

LOOP REASON: %s

UNSUPPORTED CLAIMS:
%s`, s.Query, s.UserProfile, s.UserContext, s.ValidationNotes, s.LoopReason, claims)
}

// parseIntentText pulls the analysis out of a free-text reply.
func parseIntentText(text string) string {
	const marker = "intent_analysis:"
	idx := strings.LastIndex(text, marker)
	if idx < 0 {
		return "Query analysis"
	}
	rest := text[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

const synthSystem = `You are a compliance and security expert who remembers past conversations with this user.

Citations:
- When you use information from the compliance documents, cite it as [Source: document_name]
  using the exact document name shown in the context.
- Information not in the documents may come from general knowledge or memory; say so.
- Never invent a citation.

Style: answer the question directly and naturally, like a knowledgeable colleague. Adapt to the
user's expertise and preferences from their profile, be brief when they prefer brief answers,
and refer to earlier discussions when it helps.`

// documentContext renders chunks into the block given to the generator.
func documentContext(chunks []retrieval.Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n--- Source %d: %s (Page %s, Relevance: %.3f) ---\n", i+1, filepath.Base(c.Source), c.Locator, c.Score)
		b.WriteString(c.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func synthPrompt(s *State) string {
	docs := documentContext(s.Chunks)
	if strings.TrimSpace(docs) == "" {
		docs = noDocumentsText
	}
	return fmt.Sprintf(`## What I Know About You
%s

## Recent Conversation
%s

## What We've Discussed Before
%s

## Compliance & Security Documents Available
%s

## Your Question
%q

Answer conversationally. Cite the documents you use and mention past conversations when relevant.`,
		s.UserProfile, s.UserContext, s.RelevantMemories, docs, s.Query)
}

const followupSystem = `You write clarifying questions for a compliance assistant.

Produce two or three specific, answerable questions that would let the assistant give a more
complete answer, for example "Will the system be deployed in the EU?" or "What categories of
personal data does it process?". Avoid vague questions such as "Can you tell me more?".

Reply with JSON: {"questions": ["..."]}`

func followupPrompt(s *State) string {
	var gaps []string
	if len(s.MissingContext) > 0 {
		gaps = append(gaps, "Missing context: "+strings.Join(s.MissingContext, ", "))
	}
	if len(s.UnsupportedClaims) > 0 {
		gaps = append(gaps, "Unsupported claims need evidence: "+strings.Join(s.UnsupportedClaims[:min(2, len(s.UnsupportedClaims))], "; "))
	}
	return fmt.Sprintf(`USER QUERY: %q
QUERY TYPE: %s

GAPS IDENTIFIED:
%s

Write two or three follow-up questions that address these gaps.`, s.Query, s.QueryType, strings.Join(gaps, "\n"))
}

func followupListPrompt(s *State) string {
	return fmt.Sprintf(`Write two or three specific follow-up questions for this query: %q

Missing context: %s

Format them as a numbered list:
1. [Question]
2. [Question]
3. [Question]`, s.Query, strings.Join(s.MissingContext, ", "))
}

// parseNumberedList keeps lines that start with a digit and contain a dot,
// returning the text after the first dot.
func parseNumberedList(text string, limit int) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] < '0' || line[0] > '9' {
			continue
		}
		_, q, ok := strings.Cut(line, ".")
		if !ok {
			continue
		}
		out = append(out, strings.TrimSpace(q))
		if len(out) == limit {
			break
		}
	}
	return out
}

const factsSystem = `You extract facts that a user states about themselves.

Categories:
- personal_info with field name, role, company, location or industry
- preference with field response_style, detail_level, tools or methods
- expertise with the domain as field and "level: context" as value, where level is beginner,
  intermediate, advanced or expert

Rules:
- Only extract what the user explicitly says about themselves, never facts about clients,
  patients or general topics.
- "I'm based in X" is personal_info.location, "I work at X" is personal_info.company,
  "I'm a X" is personal_info.role, "brief" or "detailed" is preference.detail_level.
- "What is GDPR?" yields no facts.

Reply with JSON: {"facts": [{"category": "...", "field": "...", "value": "...", "confidence": 0.8}]}
Return an empty list when there is nothing to extract.`

func factsPrompt(s *State) string {
	return fmt.Sprintf(`USER MESSAGE: %q

Extract facts the user stated about themselves in this message.`, s.Query)
}
