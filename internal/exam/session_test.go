package exam

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/adaptexam/internal/embed"
	"github.com/pavelanni/adaptexam/internal/index"
	"github.com/pavelanni/adaptexam/internal/llm"
	"github.com/pavelanni/adaptexam/internal/model"
	"github.com/pavelanni/adaptexam/internal/store"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func defaultTestPolicy() model.ExamPolicy {
	return model.ExamPolicy{
		GradeLevel:               2,
		MaxDurationMinutes:       30,
		MaxAttempts:              3,
		MaxQuestions:             10,
		StopConsecutiveIncorrect: 3,
		StopSlowSeconds:          300,
		DifficultyMin:            2,
		DifficultyMax:            4,
		Active:                   true,
	}
}

// newTestSession wires a full engine against an in-memory store with
// the hash embedding provider and the offline generation client.
func newTestSession(t *testing.T, policy model.ExamPolicy, withMaterial bool) (*Engine, *store.Store, *model.User, *fakeClock) {
	t.Helper()

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	deptID, err := s.CreateDepartment("Physics")
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	policy.DepartmentID = deptID
	policy.CreatedAt = time.Now()
	policy.UpdatedAt = time.Now()
	if _, err := s.CreatePolicy(policy); err != nil {
		t.Fatalf("create policy: %v", err)
	}

	studentID, err := s.CreateUser(model.User{
		Username:     "student1",
		DisplayName:  "Student One",
		PasswordHash: "x",
		Role:         model.UserRoleStudent,
		DepartmentID: deptID,
		GradeLevel:   policy.GradeLevel,
		Active:       true,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	student, err := s.GetUserByID(studentID)
	if err != nil {
		t.Fatalf("get student: %v", err)
	}

	provider := embed.NewHashProvider(64)
	ix := index.New(s, provider, 64)

	if withMaterial {
		text := strings.Repeat(
			"Inertia is the resistance of a body to changes in its motion. "+
				"Force equals mass times acceleration in classical mechanics. "+
				"Energy is conserved in an isolated physical system. ", 3)
		materialID, err := s.CreateMaterial(model.Material{
			DepartmentID: deptID,
			GradeLevel:   policy.GradeLevel,
			Title:        "Mechanics",
			CreatedAt:    time.Now(),
		}, []string{text})
		if err != nil {
			t.Fatalf("create material: %v", err)
		}
		ids, err := s.ChunkIDsForMaterial(materialID)
		if err != nil {
			t.Fatalf("chunk ids: %v", err)
		}
		if err := ix.EnsureEmbeddings(context.Background(), ids, false); err != nil {
			t.Fatalf("embed chunks: %v", err)
		}
	}

	engine := New(s, ix, llm.NewMockClient(1), Config{
		ContextChunks:   5,
		MaxContextChars: 6000,
		Weights:         DefaultWeights,
	})
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	engine.setClock(clock.Now)

	return engine, s, student, clock
}

func TestStartProducesQuestion(t *testing.T) {
	engine, _, student, _ := newTestSession(t, defaultTestPolicy(), true)

	state, err := engine.Start(context.Background(), student)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !state.Attempt.Open() {
		t.Fatalf("attempt not open: %+v", state.Attempt)
	}
	if state.Question == nil || state.Question.Text == "" {
		t.Fatalf("no question generated: %+v", state.Question)
	}
	if state.Question.QuestionNumber != 1 {
		t.Errorf("question number = %d, want 1", state.Question.QuestionNumber)
	}
}

func TestStartWithoutPolicy(t *testing.T) {
	engine, _, student, _ := newTestSession(t, defaultTestPolicy(), true)
	student.GradeLevel = 9

	_, err := engine.Start(context.Background(), student)
	if !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("Start error = %v, want ErrPolicyNotFound", err)
	}
}

func TestStartWhileActive(t *testing.T) {
	engine, _, student, _ := newTestSession(t, defaultTestPolicy(), true)

	if _, err := engine.Start(context.Background(), student); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	_, err := engine.Start(context.Background(), student)
	if !errors.Is(err, ErrAttemptActive) {
		t.Fatalf("second Start error = %v, want ErrAttemptActive", err)
	}
}

func TestAttemptsExhausted(t *testing.T) {
	policy := defaultTestPolicy()
	policy.MaxAttempts = 1
	engine, _, student, _ := newTestSession(t, policy, true)

	if _, err := engine.Start(context.Background(), student); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := engine.End(context.Background(), student); err != nil {
		t.Fatalf("End: %v", err)
	}

	_, err := engine.Start(context.Background(), student)
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("Start error = %v, want ErrAttemptsExhausted", err)
	}
}

func TestEmptyRetrievalFinalizes(t *testing.T) {
	engine, _, student, _ := newTestSession(t, defaultTestPolicy(), false)

	state, err := engine.Start(context.Background(), student)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state.Attempt.Open() {
		t.Fatal("attempt still open, want finalized")
	}
	if state.Attempt.EndedReason == nil || *state.Attempt.EndedReason != model.EndNoQuestions {
		t.Errorf("ended reason = %v, want no_questions", state.Attempt.EndedReason)
	}
}

func TestTimeLimitLazilyEnforced(t *testing.T) {
	policy := defaultTestPolicy()
	policy.MaxDurationMinutes = 1
	engine, _, student, clock := newTestSession(t, policy, true)

	if _, err := engine.Start(context.Background(), student); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.advance(61 * time.Second)

	state, err := engine.CurrentState(context.Background(), student)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if state.Attempt.Open() {
		t.Fatal("attempt still open after deadline")
	}
	if state.Attempt.EndedReason == nil || *state.Attempt.EndedReason != model.EndTimeLimit {
		t.Errorf("ended reason = %v, want time_limit", state.Attempt.EndedReason)
	}
	if state.ElapsedSeconds != 61 {
		t.Errorf("elapsed = %d, want 61", state.ElapsedSeconds)
	}

	// The open attempt is gone, so the state machine has nothing to report.
	_, err = engine.CurrentState(context.Background(), student)
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("CurrentState after finalize = %v, want ErrAttemptNotFound", err)
	}
}

func TestCompletionAfterMaxQuestions(t *testing.T) {
	policy := defaultTestPolicy()
	policy.MaxQuestions = 2
	engine, _, student, clock := newTestSession(t, policy, true)

	state, err := engine.Start(context.Background(), student)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 2; i++ {
		if state.Question == nil {
			t.Fatalf("no pending question on step %d", i)
		}
		clock.advance(20 * time.Second)
		// Echoing the ideal answer guarantees a correct grade from the
		// offline client.
		state, err = engine.SubmitAnswer(context.Background(), student, state.Question.ID, state.Question.IdealAnswer)
		if err != nil {
			t.Fatalf("SubmitAnswer %d: %v", i, err)
		}
	}

	if state.Attempt.Open() {
		t.Fatal("attempt still open after max questions")
	}
	if state.Attempt.EndedReason == nil || *state.Attempt.EndedReason != model.EndCompleted {
		t.Errorf("ended reason = %v, want completed", state.Attempt.EndedReason)
	}
	if state.Attempt.Score == nil || *state.Attempt.Score <= 0 {
		t.Errorf("score = %v, want > 0", state.Attempt.Score)
	}
	if state.Attempt.Rating == nil {
		t.Error("rating not set")
	}
}

func TestConsecutiveIncorrectStops(t *testing.T) {
	policy := defaultTestPolicy()
	policy.StopConsecutiveIncorrect = 2
	engine, _, student, clock := newTestSession(t, policy, true)

	state, err := engine.Start(context.Background(), student)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 2; i++ {
		if state.Question == nil {
			t.Fatalf("no pending question on step %d", i)
		}
		clock.advance(20 * time.Second)
		state, err = engine.SubmitAnswer(context.Background(), student, state.Question.ID, "xyzzy")
		if err != nil {
			t.Fatalf("SubmitAnswer %d: %v", i, err)
		}
	}

	if state.Attempt.Open() {
		t.Fatal("attempt still open after consecutive incorrect answers")
	}
	if state.Attempt.EndedReason == nil || *state.Attempt.EndedReason != model.EndTooManyIncorrect {
		t.Errorf("ended reason = %v, want too_many_incorrect", state.Attempt.EndedReason)
	}
}

func TestSlowAnswerStops(t *testing.T) {
	policy := defaultTestPolicy()
	policy.StopSlowSeconds = 120
	engine, _, student, clock := newTestSession(t, policy, true)

	state, err := engine.Start(context.Background(), student)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.advance(121 * time.Second)
	state, err = engine.SubmitAnswer(context.Background(), student, state.Question.ID, state.Question.IdealAnswer)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	if state.Attempt.Open() {
		t.Fatal("attempt still open after slow answer")
	}
	if state.Attempt.EndedReason == nil || *state.Attempt.EndedReason != model.EndTooSlow {
		t.Errorf("ended reason = %v, want too_slow", state.Attempt.EndedReason)
	}
	// The slow answer itself is still graded and counted.
	if state.Attempt.QuestionsAnswered != 1 {
		t.Errorf("questions answered = %d, want 1", state.Attempt.QuestionsAnswered)
	}
}

func TestManualEnd(t *testing.T) {
	engine, _, student, clock := newTestSession(t, defaultTestPolicy(), true)

	startState, err := engine.Start(context.Background(), student)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.advance(30 * time.Second)

	state, err := engine.End(context.Background(), student)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if state.Attempt.EndedReason == nil || *state.Attempt.EndedReason != model.EndStudentEnd {
		t.Errorf("ended reason = %v, want student_end", state.Attempt.EndedReason)
	}

	// No open attempt remains.
	_, err = engine.End(context.Background(), student)
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("second End error = %v, want ErrAttemptNotFound", err)
	}

	// Answers to the ended attempt's question are rejected.
	_, err = engine.SubmitAnswer(context.Background(), student, startState.Question.ID, "late answer")
	if !errors.Is(err, ErrAttemptNotActive) {
		t.Fatalf("SubmitAnswer error = %v, want ErrAttemptNotActive", err)
	}
}

func TestDoubleAnswerRejected(t *testing.T) {
	engine, _, student, clock := newTestSession(t, defaultTestPolicy(), true)

	state, err := engine.Start(context.Background(), student)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := state.Question

	clock.advance(10 * time.Second)
	if _, err := engine.SubmitAnswer(context.Background(), student, first.ID, first.IdealAnswer); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	_, err = engine.SubmitAnswer(context.Background(), student, first.ID, "again")
	if !errors.Is(err, ErrQuestionAnswered) {
		t.Fatalf("second SubmitAnswer error = %v, want ErrQuestionAnswered", err)
	}
}

func TestForeignQuestionHidden(t *testing.T) {
	engine, s, student, _ := newTestSession(t, defaultTestPolicy(), true)

	state, err := engine.Start(context.Background(), student)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	otherID, err := s.CreateUser(model.User{
		Username:     "student2",
		PasswordHash: "x",
		Role:         model.UserRoleStudent,
		DepartmentID: student.DepartmentID,
		GradeLevel:   student.GradeLevel,
		Active:       true,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create second student: %v", err)
	}
	other, err := s.GetUserByID(otherID)
	if err != nil {
		t.Fatalf("get second student: %v", err)
	}

	_, err = engine.SubmitAnswer(context.Background(), other, state.Question.ID, "not mine")
	if !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("SubmitAnswer error = %v, want ErrQuestionNotFound", err)
	}
}

func TestAttemptResults(t *testing.T) {
	policy := defaultTestPolicy()
	policy.MaxQuestions = 1
	engine, _, student, clock := newTestSession(t, policy, true)

	state, err := engine.Start(context.Background(), student)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.advance(15 * time.Second)
	state, err = engine.SubmitAnswer(context.Background(), student, state.Question.ID, state.Question.IdealAnswer)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	results, err := engine.AttemptResults(student, state.Attempt.ID)
	if err != nil {
		t.Fatalf("AttemptResults: %v", err)
	}
	if len(results.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(results.Questions))
	}
	answer, ok := results.Answers[results.Questions[0].ID]
	if !ok {
		t.Fatal("missing answer for question")
	}
	if !answer.IsCorrect {
		t.Errorf("answer graded incorrect: %+v", answer)
	}
	if results.AttemptsLeft != policy.MaxAttempts-1 {
		t.Errorf("attempts left = %d, want %d", results.AttemptsLeft, policy.MaxAttempts-1)
	}
}
