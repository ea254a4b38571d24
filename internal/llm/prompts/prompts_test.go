package prompts

import (
	"fmt"
	"strings"
	"testing"
)

func TestBuildGeneratePrompt(t *testing.T) {
	got, err := BuildGeneratePrompt("Newtonian mechanics basics.", 3, []string{"What is inertia?"})
	if err != nil {
		t.Fatalf("BuildGeneratePrompt: %v", err)
	}
	if !strings.Contains(got, "Newtonian mechanics basics.") {
		t.Error("context missing from prompt")
	}
	if !strings.Contains(got, "Difficulty (1 easiest .. 5 hardest): 3") {
		t.Error("difficulty missing from prompt")
	}
	if !strings.Contains(got, "- What is inertia?") {
		t.Error("avoid list missing from prompt")
	}
}

func TestBuildGeneratePromptEmptyAvoid(t *testing.T) {
	got, err := BuildGeneratePrompt("ctx", 2, nil)
	if err != nil {
		t.Fatalf("BuildGeneratePrompt: %v", err)
	}
	if !strings.Contains(got, "- (none)") {
		t.Error("empty avoid list has no placeholder")
	}
}

func TestBuildGeneratePromptBoundsAvoidList(t *testing.T) {
	avoid := make([]string, 40)
	for i := range avoid {
		avoid[i] = fmt.Sprintf("question number %d %s", i, strings.Repeat("x", 300))
	}

	got, err := BuildGeneratePrompt("ctx", 2, avoid)
	if err != nil {
		t.Fatalf("BuildGeneratePrompt: %v", err)
	}
	if strings.Contains(got, "question number 0 ") {
		t.Error("oldest questions not dropped from avoid list")
	}
	if !strings.Contains(got, "question number 39 ") {
		t.Error("newest question missing from avoid list")
	}
	for _, line := range strings.Split(got, "\n") {
		if strings.HasPrefix(line, "- question") && len(line) > 2+200 {
			t.Errorf("avoid entry not truncated: %d chars", len(line))
		}
	}
}

func TestBuildGradePrompt(t *testing.T) {
	got, err := BuildGradePrompt(GradeData{
		Context:       "lecture text",
		Question:      "What is inertia?",
		IdealAnswer:   "Resistance to changes in motion.",
		StudentAnswer: "Things keep moving.",
	})
	if err != nil {
		t.Fatalf("BuildGradePrompt: %v", err)
	}
	for _, want := range []string{"lecture text", "What is inertia?", "Resistance to changes in motion.", "Things keep moving."} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
