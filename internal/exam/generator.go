package exam

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pavelanni/adaptexam/internal/index"
	"github.com/pavelanni/adaptexam/internal/llm"
	"github.com/pavelanni/adaptexam/internal/model"
	"github.com/pavelanni/adaptexam/internal/store"
)

// genericQuery seeds retrieval for the first question of an attempt,
// before any question text exists to follow up on.
const genericQuery = "Important lecture concepts and definitions"

// chunkSeparator visibly delimits chunks inside the concatenated context.
const chunkSeparator = "\n\n---\n\n"

// avoidHistoryLimit bounds how many previously asked questions feed the
// avoid hint and the dedupe set.
const avoidHistoryLimit = 100

// generator builds the next question for an attempt: sample a
// difficulty, retrieve context, ask the generation client, and reject
// duplicates against the student's question history.
type generator struct {
	store  *store.Store
	index  *index.Index
	client llm.Client

	contextChunks   int
	maxContextChars int
	now             func() time.Time
}

// nextQuestion generates and persists the attempt's next question.
// A nil question with nil error means no retrievable content exists;
// the caller finalizes the attempt with reason no_questions.
func (g *generator) nextQuestion(ctx context.Context, attempt model.Attempt, policy model.ExamPolicy, departmentID int64, gradeLevel int) (*model.Question, error) {
	asked, err := g.store.ListQuestions(attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list attempt questions: %w", err)
	}
	avoid, err := g.store.PreviousQuestionTexts(policy.ID, attempt.StudentID, avoidHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list previous questions: %w", err)
	}
	avoidHashes := make(map[string]bool, len(avoid))
	for _, q := range avoid {
		avoidHashes[hashQuestion(q)] = true
	}

	query := genericQuery
	if len(asked) > 0 {
		query = asked[len(asked)-1].Text
	}

	chunks, err := g.index.QuerySimilar(ctx, query, departmentID, gradeLevel, g.contextChunks)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	contextText := buildContext(chunks, g.maxContextChars)
	if strings.TrimSpace(contextText) == "" {
		return nil, nil
	}

	difficulty := sampleDifficulty(policy)
	var gen llm.GeneratedQuestion
	for try := 0; try < 3; try++ {
		gen, err = g.client.GenerateQuestion(ctx, llm.GenerateRequest{
			Context:        contextText,
			Difficulty:     difficulty,
			AvoidQuestions: avoid,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		if !avoidHashes[hashQuestion(gen.Question)] {
			break
		}
		// Best effort: resample difficulty and retry, accepting the
		// last result even if it still collides.
		difficulty = sampleDifficulty(policy)
		slog.Debug("generated duplicate question, resampling", "attempt", attempt.ID, "try", try+1)
	}

	q, err := g.store.CreateQuestion(model.Question{
		AttemptID:   attempt.ID,
		Text:        strings.TrimSpace(gen.Question),
		IdealAnswer: strings.TrimSpace(gen.IdealAnswer),
		ContextText: strings.TrimSpace(contextText),
		ShownAt:     g.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("persist question: %w", err)
	}
	return q, nil
}

// sampleDifficulty draws uniformly from the policy's difficulty range.
func sampleDifficulty(policy model.ExamPolicy) int {
	lo, hi := policy.DifficultyMin, policy.DifficultyMax
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}

// buildContext concatenates chunk texts with a visible delimiter, then
// truncates to the character budget.
func buildContext(chunks []model.Chunk, maxChars int) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	joined := strings.Join(texts, chunkSeparator)
	if maxChars > 0 && len(joined) > maxChars {
		joined = joined[:maxChars]
	}
	return joined
}

// hashQuestion digests trimmed question text for duplicate detection.
func hashQuestion(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
