package types

import (
	"encoding/json"
	"testing"
)

func TestPersonaMerge_PartialUpdate(t *testing.T) {
	base := &Persona{
		ID:                  "per:1",
		Name:                "Ada",
		ProfessionalSummary: "Engineer",
		Goals:               []string{"ship"},
		Skills:              []string{"go"},
	}

	base.Merge(&Persona{
		Name:   "Ada Lovelace",
		Skills: []string{"go", "sql"},
	})

	if base.Name != "Ada Lovelace" {
		t.Errorf("Merge: Name = %q, want %q", base.Name, "Ada Lovelace")
	}
	if base.ProfessionalSummary != "Engineer" {
		t.Errorf("Merge: ProfessionalSummary should be untouched, got %q", base.ProfessionalSummary)
	}
	if len(base.Skills) != 2 {
		t.Errorf("Merge: Skills = %v, want 2 entries", base.Skills)
	}
	if len(base.Goals) != 1 || base.Goals[0] != "ship" {
		t.Errorf("Merge: Goals should be untouched, got %v", base.Goals)
	}
}

func TestPersonaMerge_NilUpdate(t *testing.T) {
	base := &Persona{Name: "Ada"}
	base.Merge(nil)
	if base.Name != "Ada" {
		t.Errorf("Merge(nil) changed the record: %+v", base)
	}
}

func TestPersonaJSONFieldNames(t *testing.T) {
	p := Persona{
		Name:                       "Ada",
		ProfessionalSummary:        "Engineer",
		QualificationsAndEducation: []string{"PhD"},
		ValueProposition:           []string{"rigor"},
		DevelopmentPlans:           []string{"mentor juniors"},
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, key := range []string{"name", "professional_summary", "qualifications_and_education", "value_proposition", "development_plans"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("marshalled persona is missing field %q", key)
		}
	}
}

func TestPersonaIsEmpty(t *testing.T) {
	empty := &Persona{RawText: "unstructured output", ParseTier: ParseTierRaw}
	if !empty.IsEmpty() {
		t.Error("IsEmpty() = false for a raw-tier persona")
	}

	populated := &Persona{Strengths: []string{"focus"}}
	if populated.IsEmpty() {
		t.Error("IsEmpty() = true for a persona with strengths")
	}

	planned := &Persona{DevelopmentPlans: []string{"learn Rust"}}
	if planned.IsEmpty() {
		t.Error("IsEmpty() = true for a persona with development plans")
	}
}
