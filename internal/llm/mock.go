package llm

import (
	"context"
	"math/rand"
	"strings"
	"unicode"
)

// MockClient is a deterministic offline generation client. Questions
// are built by picking a sentence from the context; grading scores the
// token overlap between the student's answer and the ideal answer.
type MockClient struct {
	rng *rand.Rand
}

// NewMockClient creates an offline client with a seeded RNG.
func NewMockClient(seed int64) *MockClient {
	return &MockClient{rng: rand.New(rand.NewSource(seed))}
}

// GenerateQuestion picks a pseudo-random sentence from the context and
// phrases it as an "Explain" prompt.
func (c *MockClient) GenerateQuestion(_ context.Context, req GenerateRequest) (GeneratedQuestion, error) {
	sentences := splitSentences(req.Context)
	pick := "the provided lecture context"
	if len(sentences) > 0 {
		pick = sentences[c.rng.Intn(len(sentences))]
	}

	question := pick
	if len(question) > 180 {
		question = question[:180]
	}
	ideal := pick
	if len(ideal) > 300 {
		ideal = ideal[:300]
	}

	return GeneratedQuestion{
		Question:    "Explain: " + question + "?",
		IdealAnswer: ideal,
	}, nil
}

// GradeAnswer scores token overlap between the student's answer and the
// ideal answer (or the raw context if no ideal answer is stored), scaled
// by 1.5 and clamped to [0,1]. Correct iff the scaled overlap >= 0.55.
func (c *MockClient) GradeAnswer(_ context.Context, req GradeRequest) (GradedAnswer, error) {
	reference := req.IdealAnswer
	if reference == "" {
		reference = req.Context
	}

	ideal := wordSet(reference)
	if len(ideal) == 0 {
		return GradedAnswer{Correctness: 0, IsCorrect: false, Feedback: "No reference material."}, nil
	}

	answer := wordSet(req.StudentAnswer)
	overlap := 0
	for w := range answer {
		if ideal[w] {
			overlap++
		}
	}

	correctness := clamp01(float64(overlap) / float64(len(ideal)) * 1.5)
	isCorrect := correctness >= 0.55

	feedback := "Needs improvement."
	if isCorrect {
		feedback = "Good."
	}
	return GradedAnswer{Correctness: correctness, IsCorrect: isCorrect, Feedback: feedback}, nil
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n'
	})
	var sentences []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// wordSet extracts lowercase alphabetic tokens of three or more letters.
func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if len([]rune(tok)) >= 3 {
			set[tok] = true
		}
	}
	return set
}
