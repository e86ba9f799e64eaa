// Package types defines the core data structures shared across the
// PersonaForge system: persona records, source documents, and the chunks
// that flow through the retrieval pipeline.
package types

import "time"

// ParseTier identifies which parsing tier produced a persona record.
// Heuristically-parsed personas are lower confidence than strict-JSON ones,
// so the tier is kept on the record for diagnostics and user feedback.
type ParseTier string

const (
	// ParseTierJSON means the model response was valid JSON matching the
	// declared schema and was decoded directly.
	ParseTierJSON ParseTier = "json"

	// ParseTierSections means JSON parsing failed and the persona was
	// recovered by scanning for the section headers declared in the prompt.
	ParseTierSections ParseTier = "sections"

	// ParseTierRaw means both tiers failed; only RawText is populated.
	ParseTierRaw ParseTier = "raw"
)

// Persona is the structured output of a generation call.
//
// The JSON tags mirror the field names the prompt template declares, so a
// model response that follows instructions round-trips through
// encoding/json without translation.
type Persona struct {
	ID                         string    `json:"id"`
	Name                       string    `json:"name"`
	ProfessionalSummary        string    `json:"professional_summary"`
	Goals                      []string  `json:"goals"`
	LifeExperiences            []string  `json:"life_experiences"`
	QualificationsAndEducation []string  `json:"qualifications_and_education"`
	Skills                     []string  `json:"skills"`
	Strengths                  []string  `json:"strengths"`
	ValueProposition           []string  `json:"value_proposition"`
	DevelopmentPlans           []string  `json:"development_plans"`

	// RawText preserves the full model response. When ParseTier is
	// ParseTierRaw it is the only content the generation produced.
	RawText   string    `json:"raw_text,omitempty"`
	ParseTier ParseTier `json:"parse_tier,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Merge applies a partial update over the receiver: non-zero fields of
// update overwrite the corresponding fields, absent fields are kept.
// The merged record is not revalidated as a whole.
func (p *Persona) Merge(update *Persona) {
	if update == nil {
		return
	}
	if update.Name != "" {
		p.Name = update.Name
	}
	if update.ProfessionalSummary != "" {
		p.ProfessionalSummary = update.ProfessionalSummary
	}
	if update.Goals != nil {
		p.Goals = update.Goals
	}
	if update.LifeExperiences != nil {
		p.LifeExperiences = update.LifeExperiences
	}
	if update.QualificationsAndEducation != nil {
		p.QualificationsAndEducation = update.QualificationsAndEducation
	}
	if update.Skills != nil {
		p.Skills = update.Skills
	}
	if update.Strengths != nil {
		p.Strengths = update.Strengths
	}
	if update.ValueProposition != nil {
		p.ValueProposition = update.ValueProposition
	}
	if update.DevelopmentPlans != nil {
		p.DevelopmentPlans = update.DevelopmentPlans
	}
	if update.RawText != "" {
		p.RawText = update.RawText
	}
	if update.ParseTier != "" {
		p.ParseTier = update.ParseTier
	}
}

// IsEmpty reports whether no structured field was populated.
// A persona that is empty apart from RawText came out of the raw tier.
func (p *Persona) IsEmpty() bool {
	return p.Name == "" &&
		p.ProfessionalSummary == "" &&
		len(p.Goals) == 0 &&
		len(p.LifeExperiences) == 0 &&
		len(p.QualificationsAndEducation) == 0 &&
		len(p.Skills) == 0 &&
		len(p.Strengths) == 0 &&
		len(p.ValueProposition) == 0 &&
		len(p.DevelopmentPlans) == 0
}

// PersonaSummary is the lightweight listing projection returned by
// PersonaStore.List (id, name, and recency only).
type PersonaSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
