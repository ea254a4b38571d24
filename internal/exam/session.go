package exam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/adaptexam/internal/index"
	"github.com/pavelanni/adaptexam/internal/llm"
	"github.com/pavelanni/adaptexam/internal/model"
	"github.com/pavelanni/adaptexam/internal/store"
)

// Config holds the engine's tunables.
type Config struct {
	// ContextChunks is how many chunks feed question generation.
	ContextChunks int
	// MaxContextChars bounds the concatenated context length.
	MaxContextChars int
	// Weights combine the three scoring components.
	Weights Weights
}

// Engine drives one attempt at a time per student through the exam
// lifecycle: start, generate, answer, end. All deadline checks are
// lazy; every entry point re-validates the time limit before acting,
// so no background timer exists.
type Engine struct {
	store   *store.Store
	gen     *generator
	client  llm.Client
	weights Weights

	now func() time.Time
}

// New creates an exam engine.
func New(s *store.Store, ix *index.Index, client llm.Client, cfg Config) *Engine {
	e := &Engine{
		store: s,
		gen: &generator{
			store:           s,
			index:           ix,
			client:          client,
			contextChunks:   cfg.ContextChunks,
			maxContextChars: cfg.MaxContextChars,
			now:             time.Now,
		},
		client:  client,
		weights: cfg.Weights,
		now:     time.Now,
	}
	return e
}

// setClock overrides the engine's time source. Used by tests to drive
// the lazy deadline checks deterministically.
func (e *Engine) setClock(now func() time.Time) {
	e.now = now
	e.gen.now = now
}

// State is the attempt view returned to the transport layer. Question
// is nil when no question is pending (the attempt ended, or the last
// question was answered and the next one is not generated yet).
type State struct {
	Attempt        model.Attempt   `json:"attempt"`
	Question       *model.Question `json:"question,omitempty"`
	ElapsedSeconds int             `json:"elapsed_seconds"`
	ScoreSoFar     float64         `json:"score_so_far"`
	RatingSoFar    model.Rating    `json:"rating_so_far"`
}

// Start opens a new attempt for the student and generates its first
// question. It fails with ErrAttemptActive if an open attempt exists,
// or ErrAttemptsExhausted once max attempts are used. If generation
// yields nothing the attempt is finalized with reason no_questions as
// part of the same call.
func (e *Engine) Start(ctx context.Context, student *model.User) (*State, error) {
	policy, err := e.policyFor(student)
	if err != nil {
		return nil, err
	}

	open, err := e.store.GetOpenAttempt(policy.ID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("check open attempt: %w", err)
	}
	if open != nil {
		return nil, ErrAttemptActive
	}

	used, err := e.store.MaxAttemptNumber(policy.ID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if used+1 > policy.MaxAttempts {
		return nil, ErrAttemptsExhausted
	}

	attempt, err := e.store.CreateAttempt(policy.ID, student.ID, e.now())
	if err != nil {
		if store.IsConflict(err) {
			// A concurrent start won the open-attempt index.
			return nil, ErrAttemptActive
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	slog.Info("attempt started", "attempt", attempt.ID, "student", student.ID, "number", attempt.AttemptNumber)

	q, err := e.gen.nextQuestion(ctx, *attempt, *policy, policy.DepartmentID, policy.GradeLevel)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return e.finalize(*attempt, *policy, model.EndNoQuestions)
	}

	return e.stateFor(*attempt, *policy, q)
}

// CurrentState reports the student's open attempt and its pending
// question. The time limit is re-checked first: an overdue attempt is
// finalized with reason time_limit before the state is returned.
func (e *Engine) CurrentState(ctx context.Context, student *model.User) (*State, error) {
	policy, err := e.policyFor(student)
	if err != nil {
		return nil, err
	}
	attempt, err := e.store.GetOpenAttempt(policy.ID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("get open attempt: %w", err)
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}

	if ended, st, err := e.endIfOverdue(*attempt, *policy); err != nil || ended {
		return st, err
	}

	q, err := e.pendingQuestion(attempt.ID)
	if err != nil {
		return nil, err
	}
	return e.stateFor(*attempt, *policy, q)
}

// SubmitAnswer grades the student's answer to a question, applies the
// auto-end policy, and generates the next question if the attempt
// continues. Rejects answers to ended attempts and double submissions.
func (e *Engine) SubmitAnswer(ctx context.Context, student *model.User, questionID int64, text string) (*State, error) {
	q, err := e.store.GetQuestion(questionID)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	if q == nil {
		return nil, ErrQuestionNotFound
	}
	attempt, err := e.store.GetAttempt(q.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt == nil || attempt.StudentID != student.ID {
		return nil, ErrQuestionNotFound
	}
	if !attempt.Open() {
		return nil, ErrAttemptNotActive
	}
	policy, err := e.store.GetPolicy(attempt.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}

	existing, err := e.store.GetAnswer(q.ID)
	if err != nil {
		return nil, fmt.Errorf("check answer: %w", err)
	}
	if existing != nil {
		return nil, ErrQuestionAnswered
	}

	if ended, st, err := e.endIfOverdue(*attempt, *policy); err != nil || ended {
		return st, err
	}

	now := e.now()
	timeTaken := int(now.Sub(q.ShownAt).Seconds())
	if timeTaken < 0 {
		timeTaken = 0
	}

	graded, err := e.client.GradeAnswer(ctx, llm.GradeRequest{
		Question:      q.Text,
		IdealAnswer:   q.IdealAnswer,
		Context:       q.ContextText,
		StudentAnswer: text,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	err = e.store.RecordAnswer(model.Answer{
		QuestionID:       q.ID,
		AnsweredAt:       now,
		TimeTakenSeconds: timeTaken,
		Text:             text,
		Correctness:      graded.Correctness,
		IsCorrect:        graded.IsCorrect,
		Feedback:         graded.Feedback,
	}, *attempt)
	if err != nil {
		if store.IsConflict(err) {
			// A concurrent submit won the one-answer-per-question constraint.
			return nil, ErrQuestionAnswered
		}
		return nil, fmt.Errorf("record answer: %w", err)
	}

	attempt, err = e.store.GetAttempt(attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("reload attempt: %w", err)
	}

	if reason := autoEndReason(*attempt, *policy, timeTaken, attempt.ElapsedAt(e.now())); reason != "" {
		return e.finalize(*attempt, *policy, reason)
	}

	next, err := e.gen.nextQuestion(ctx, *attempt, *policy, policy.DepartmentID, policy.GradeLevel)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return e.finalize(*attempt, *policy, model.EndNoQuestions)
	}
	return e.stateFor(*attempt, *policy, next)
}

// End is the manual stop: the attempt is finalized with reason
// time_limit if it is already overdue, student_end otherwise.
func (e *Engine) End(ctx context.Context, student *model.User) (*State, error) {
	policy, err := e.policyFor(student)
	if err != nil {
		return nil, err
	}
	attempt, err := e.store.GetOpenAttempt(policy.ID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("get open attempt: %w", err)
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}

	reason := model.EndStudentEnd
	if attempt.ElapsedAt(e.now()) >= policy.TimeLimitSeconds() {
		reason = model.EndTimeLimit
	}
	return e.finalize(*attempt, *policy, reason)
}

// Results holds a finished (or ongoing) attempt with its full question
// and answer history.
type Results struct {
	Attempt      model.Attempt          `json:"attempt"`
	Questions    []model.Question       `json:"questions"`
	Answers      map[int64]model.Answer `json:"answers"`
	AttemptsLeft int                    `json:"attempts_left"`
}

// AttemptResults returns the attempt's results for its owning student.
func (e *Engine) AttemptResults(student *model.User, attemptID int64) (*Results, error) {
	attempt, err := e.store.GetAttempt(attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt == nil || attempt.StudentID != student.ID {
		return nil, ErrAttemptNotFound
	}
	policy, err := e.store.GetPolicy(attempt.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}

	questions, err := e.store.ListQuestions(attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers := make(map[int64]model.Answer, len(questions))
	for _, q := range questions {
		a, err := e.store.GetAnswer(q.ID)
		if err != nil {
			return nil, fmt.Errorf("get answer: %w", err)
		}
		if a != nil {
			answers[q.ID] = *a
		}
	}

	used, err := e.store.MaxAttemptNumber(policy.ID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	left := policy.MaxAttempts - used
	if left < 0 {
		left = 0
	}

	return &Results{
		Attempt:      *attempt,
		Questions:    questions,
		Answers:      answers,
		AttemptsLeft: left,
	}, nil
}

// autoEndReason evaluates the auto-end policy after an answer, in fixed
// priority order, and returns the first matching reason or "".
func autoEndReason(attempt model.Attempt, policy model.ExamPolicy, lastTimeTaken, elapsed int) model.EndReason {
	switch {
	case attempt.QuestionsAnswered >= policy.MaxQuestions:
		return model.EndCompleted
	case attempt.ConsecutiveIncorrect >= policy.StopConsecutiveIncorrect:
		return model.EndTooManyIncorrect
	case lastTimeTaken >= policy.StopSlowSeconds:
		return model.EndTooSlow
	case elapsed >= policy.TimeLimitSeconds():
		return model.EndTimeLimit
	}
	return ""
}

// endIfOverdue applies the lazy time-limit check. Returns (true, state)
// when the attempt was finalized with reason time_limit.
func (e *Engine) endIfOverdue(attempt model.Attempt, policy model.ExamPolicy) (bool, *State, error) {
	if attempt.ElapsedAt(e.now()) < policy.TimeLimitSeconds() {
		return false, nil, nil
	}
	st, err := e.finalize(attempt, policy, model.EndTimeLimit)
	return true, st, err
}

// finalize performs the terminal transition: average answer time,
// score, rating, ended_at and reason. The store-level guard makes a
// repeated call a no-op, so the first recorded outcome stands.
func (e *Engine) finalize(attempt model.Attempt, policy model.ExamPolicy, reason model.EndReason) (*State, error) {
	avgTime, err := e.store.AvgAnswerTime(attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("average answer time: %w", err)
	}

	score, rating := Score(attempt, policy, avgTime, e.weights)
	now := e.now()
	elapsed := attempt.ElapsedAt(now)

	applied, err := e.store.FinalizeAttempt(attempt.ID, now, reason, elapsed, score, rating)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if applied {
		slog.Info("attempt ended", "attempt", attempt.ID, "reason", reason,
			"score", score, "rating", rating, "elapsed_seconds", elapsed)
	}

	final, err := e.store.GetAttempt(attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("reload attempt: %w", err)
	}
	return e.stateFor(*final, policy, nil)
}

// pendingQuestion returns the attempt's latest question only while it
// has no answer yet.
func (e *Engine) pendingQuestion(attemptID int64) (*model.Question, error) {
	q, err := e.store.LatestQuestion(attemptID)
	if err != nil {
		return nil, fmt.Errorf("latest question: %w", err)
	}
	if q == nil {
		return nil, nil
	}
	a, err := e.store.GetAnswer(q.ID)
	if err != nil {
		return nil, fmt.Errorf("check answer: %w", err)
	}
	if a != nil {
		return nil, nil
	}
	return q, nil
}

func (e *Engine) policyFor(student *model.User) (*model.ExamPolicy, error) {
	policy, err := e.store.ActivePolicyForScope(student.DepartmentID, student.GradeLevel)
	if err != nil {
		return nil, fmt.Errorf("look up policy: %w", err)
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}
	return policy, nil
}

func (e *Engine) stateFor(attempt model.Attempt, policy model.ExamPolicy, q *model.Question) (*State, error) {
	elapsed := attempt.ElapsedAt(e.now())
	if !attempt.Open() && attempt.ElapsedSeconds != nil {
		elapsed = *attempt.ElapsedSeconds
	}

	var score float64
	var rating model.Rating
	if attempt.Open() {
		avgTime, err := e.store.AvgAnswerTime(attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("average answer time: %w", err)
		}
		score, rating = Score(attempt, policy, avgTime, e.weights)
		if score > 100 {
			score = 100
		}
		if score < 0 {
			score = 0
		}
	} else {
		if attempt.Score != nil {
			score = *attempt.Score
		}
		if attempt.Rating != nil {
			rating = *attempt.Rating
		}
	}

	return &State{
		Attempt:        attempt,
		Question:       q,
		ElapsedSeconds: elapsed,
		ScoreSoFar:     score,
		RatingSoFar:    rating,
	}, nil
}
