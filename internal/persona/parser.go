package persona

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/personaforge/personaforge/pkg/types"
)

// ParseResult is the outcome of parsing a model response. Tier records which
// parsing tier produced the persona; lower tiers mean lower confidence.
type ParseResult struct {
	Persona *types.Persona
	Tier    types.ParseTier
}

// sectionPatterns maps persona list fields to the headers the prompt's
// categories produce in prose responses. Each pattern captures up to the
// next blank line.
var sectionPatterns = []struct {
	header string
	assign func(p *types.Persona, items []string)
}{
	{"Career Goals:", func(p *types.Persona, items []string) { p.Goals = items }},
	{"Qualifications and Education:", func(p *types.Persona, items []string) { p.QualificationsAndEducation = items }},
	{"Skills and Preferences:", func(p *types.Persona, items []string) { p.Skills = items }},
	{"Skills:", func(p *types.Persona, items []string) {
		if p.Skills == nil {
			p.Skills = items
		}
	}},
	{"Key Strengths:", func(p *types.Persona, items []string) { p.Strengths = items }},
	{"Relevant Life Experiences:", func(p *types.Persona, items []string) { p.LifeExperiences = items }},
	{"Unique Value Proposition:", func(p *types.Persona, items []string) { p.ValueProposition = items }},
	{"Professional Development Plans:", func(p *types.Persona, items []string) { p.DevelopmentPlans = items }},
}

// Parse converts a raw model response into a persona record, trying tiers in
// order: strict JSON, then section-header heuristics, then raw passthrough.
// The raw text is preserved on the record in every tier, so a failed parse
// never loses the generation.
func Parse(raw string) ParseResult {
	if p, ok := parseJSON(raw); ok {
		p.RawText = raw
		p.ParseTier = types.ParseTierJSON
		return ParseResult{Persona: p, Tier: types.ParseTierJSON}
	}

	if p, ok := parseSections(raw); ok {
		p.RawText = raw
		p.ParseTier = types.ParseTierSections
		return ParseResult{Persona: p, Tier: types.ParseTierSections}
	}

	return ParseResult{
		Persona: &types.Persona{RawText: raw, ParseTier: types.ParseTierRaw},
		Tier:    types.ParseTierRaw,
	}
}

// parseJSON attempts strict JSON decoding after stripping markdown fences
// and extracting the first balanced object.
func parseJSON(raw string) (*types.Persona, bool) {
	candidate := extractJSON(raw)

	var p types.Persona
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return nil, false
	}
	if p.IsEmpty() {
		return nil, false
	}
	return &p, true
}

// parseSections scans for the prompt's category headers, capturing each
// section up to the next blank line and splitting it into trimmed, non-empty
// items. The first paragraph before any header becomes the professional
// summary.
func parseSections(raw string) (*types.Persona, bool) {
	var p types.Persona
	matched := false

	for _, sec := range sectionPatterns {
		pattern := regexp.MustCompile(`(?s)` + regexp.QuoteMeta(sec.header) + `(.*?)(\n\s*\n|$)`)
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		if items := splitItems(m[1]); len(items) > 0 {
			sec.assign(&p, items)
			matched = true
		}
	}

	// Without at least one recognized header this is arbitrary prose, not a
	// sectioned persona; let the raw tier keep it.
	if !matched {
		return nil, false
	}

	p.ProfessionalSummary = leadingSummary(raw)
	return &p, true
}

// leadingSummary returns the first paragraph of the response when it is not
// itself a section header line.
func leadingSummary(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	para := text
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		para = text[:idx]
	}
	para = strings.TrimSpace(para)

	// An explicit summary header takes precedence over positional detection.
	if idx := strings.Index(para, "Professional Summary:"); idx >= 0 {
		return strings.TrimSpace(para[idx+len("Professional Summary:"):])
	}

	for _, sec := range sectionPatterns {
		if strings.HasPrefix(para, sec.header) {
			return ""
		}
	}
	return para
}

// splitItems splits a captured section body into trimmed non-empty lines,
// stripping common list markers.
func splitItems(body string) []string {
	var items []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

// extractJSON strips markdown code fences and returns the first balanced
// JSON object found in the text. When no complete object exists, the text is
// returned as-is and the caller's decode fails naturally.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text
}
