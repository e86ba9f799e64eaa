// Package persona builds generation prompts and parses model responses into
// structured persona records.
package persona

import (
	"fmt"
	"strings"
)

// promptTemplate declares the output contract. The JSON keys listed here
// match the Persona struct tags exactly, so a compliant response decodes
// directly; the section names match the heuristic parser's headers, so a
// prose response that follows the named categories is still recoverable.
const promptTemplate = `You are a persona generation assistant. Generate a detailed persona based on the instruction and the provided context.

Instruction: %s

%s%s%sRespond with a single JSON object with exactly these keys:
  "name": string — the persona's full name
  "professional_summary": string — one paragraph
  "goals": array of strings — career goals
  "life_experiences": array of strings — relevant life experiences
  "qualifications_and_education": array of strings
  "skills": array of strings — skills and preferences
  "strengths": array of strings — key strengths
  "value_proposition": array of strings — unique value proposition
  "development_plans": array of strings — professional development plans

Return only the JSON object, with no surrounding text or markdown fences.`

// BuildPrompt assembles the generation prompt from the user instruction,
// prior generated outputs (memory), prior exchanges (history), and retrieved
// document excerpts. Empty inputs render as empty sections rather than
// placeholder text.
func BuildPrompt(instruction string, memory, history, docs []string) string {
	return fmt.Sprintf(promptTemplate,
		strings.TrimSpace(instruction),
		renderSection("Previously generated personas for continuity:", memory),
		renderSection("Conversation so far:", history),
		renderSection("Documents content:", docs),
	)
}

// renderSection formats one labelled block of context lines, or nothing when
// there are no entries.
func renderSection(label string, entries []string) string {
	var kept []string
	for _, e := range entries {
		if s := strings.TrimSpace(e); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(label)
	b.WriteString("\n")
	for _, e := range kept {
		b.WriteString(e)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
