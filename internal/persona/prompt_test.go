package persona

import (
	"strings"
	"testing"
)

func TestBuildPromptIncludesAllContext(t *testing.T) {
	prompt := BuildPrompt(
		"Generate a persona for a career changer",
		[]string{"previous persona output"},
		[]string{"User: make them ambitious"},
		[]string{"CV excerpt: led a warehouse team"},
	)

	for _, want := range []string{
		"Generate a persona for a career changer",
		"previous persona output",
		"User: make them ambitious",
		"CV excerpt: led a warehouse team",
		`"professional_summary"`,
		`"qualifications_and_education"`,
		`"value_proposition"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptEmptySections(t *testing.T) {
	prompt := BuildPrompt("instruction only", nil, nil, nil)

	// Empty context renders as absent sections, not placeholder labels.
	for _, label := range []string{
		"Previously generated personas",
		"Conversation so far:",
		"Documents content:",
	} {
		if strings.Contains(prompt, label) {
			t.Errorf("prompt contains label %q for empty section", label)
		}
	}
	if !strings.Contains(prompt, "instruction only") {
		t.Error("prompt missing instruction")
	}
}

func TestBuildPromptSkipsBlankEntries(t *testing.T) {
	prompt := BuildPrompt("x", []string{"  ", ""}, nil, []string{"doc"})

	if strings.Contains(prompt, "Previously generated personas") {
		t.Error("all-blank memory should render as an absent section")
	}
	if !strings.Contains(prompt, "Documents content:") {
		t.Error("documents section missing")
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	a := BuildPrompt("same", []string{"m"}, []string{"h"}, []string{"d"})
	b := BuildPrompt("same", []string{"m"}, []string{"h"}, []string{"d"})
	if a != b {
		t.Error("BuildPrompt is not deterministic for identical inputs")
	}
}
