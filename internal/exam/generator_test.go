package exam

import (
	"strings"
	"testing"

	"github.com/pavelanni/adaptexam/internal/model"
)

func TestBuildContext(t *testing.T) {
	chunks := []model.Chunk{
		{Text: "first chunk"},
		{Text: "second chunk"},
	}

	got := buildContext(chunks, 0)
	if got != "first chunk\n\n---\n\nsecond chunk" {
		t.Errorf("context = %q", got)
	}

	truncated := buildContext(chunks, 10)
	if truncated != "first chun" {
		t.Errorf("truncated context = %q", truncated)
	}
}

func TestHashQuestionTrims(t *testing.T) {
	a := hashQuestion("  What is inertia?  ")
	b := hashQuestion("What is inertia?")
	if a != b {
		t.Error("whitespace changed the question hash")
	}
	if a == hashQuestion("What is entropy?") {
		t.Error("different questions share a hash")
	}
}

func TestSampleDifficultyRange(t *testing.T) {
	policy := model.ExamPolicy{DifficultyMin: 2, DifficultyMax: 4}
	for i := 0; i < 100; i++ {
		d := sampleDifficulty(policy)
		if d < 2 || d > 4 {
			t.Fatalf("difficulty %d out of [2,4]", d)
		}
	}

	// A degenerate range always yields the minimum.
	fixed := model.ExamPolicy{DifficultyMin: 3, DifficultyMax: 3}
	if d := sampleDifficulty(fixed); d != 3 {
		t.Errorf("difficulty = %d, want 3", d)
	}
}

func TestBuildPromptAvoidsEmptyJoin(t *testing.T) {
	got := buildContext(nil, 100)
	if strings.TrimSpace(got) != "" {
		t.Errorf("context for no chunks = %q, want empty", got)
	}
}
