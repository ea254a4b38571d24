// Package llm abstracts question generation and answer grading behind a
// single client interface with remote, offline, and fallback variants.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GeneratedQuestion is the result of a question-generation call.
type GeneratedQuestion struct {
	Question    string `json:"question"`
	IdealAnswer string `json:"ideal_answer"`
}

// GradedAnswer holds the assessment of a student's free-text answer.
type GradedAnswer struct {
	Correctness float64 `json:"correctness"` // 0..1
	IsCorrect   bool    `json:"is_correct"`
	Feedback    string  `json:"feedback"`
}

// GenerateRequest carries the inputs for question generation.
type GenerateRequest struct {
	Context    string
	Difficulty int
	// AvoidQuestions lists previously asked questions the model should
	// not repeat or closely paraphrase.
	AvoidQuestions []string
}

// GradeRequest carries the inputs for answer grading.
type GradeRequest struct {
	Question      string
	IdealAnswer   string
	Context       string
	StudentAnswer string
}

// Client generates exam questions from lecture context and grades
// free-text answers against an ideal answer.
type Client interface {
	GenerateQuestion(ctx context.Context, req GenerateRequest) (GeneratedQuestion, error)
	GradeAnswer(ctx context.Context, req GradeRequest) (GradedAnswer, error)
}

// coerceJSON parses text as a JSON object, tolerating models that wrap
// the object in prose by extracting the first {...} span.
func coerceJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("model did not return JSON")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
