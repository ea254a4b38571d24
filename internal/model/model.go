package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user. Students carry a department and grade
// level that scope which exam policy and lecture material apply to them.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	DepartmentID int64     `json:"department_id"`
	GradeLevel   int       `json:"grade_level"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Department is an organizational unit that owns lecture material and
// exam policies, one policy per grade level.
type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// EndReason records why an attempt reached its terminal state.
type EndReason string

const (
	EndCompleted        EndReason = "completed"
	EndStudentEnd       EndReason = "student_end"
	EndTimeLimit        EndReason = "time_limit"
	EndTooManyIncorrect EndReason = "too_many_incorrect"
	EndTooSlow          EndReason = "too_slow"
	EndNoQuestions      EndReason = "no_questions"
	EndError            EndReason = "error"
)

// Rating is the qualitative label derived from the numeric score.
type Rating string

const (
	RatingVeryGood         Rating = "very_good"
	RatingGood             Rating = "good"
	RatingNeedsImprovement Rating = "needs_improvement"
	RatingBad              Rating = "bad"
)

// ExamPolicy holds the exam rules for one (department, grade) pair.
type ExamPolicy struct {
	ID           int64 `json:"id"`
	DepartmentID int64 `json:"department_id"`
	GradeLevel   int   `json:"grade_level"`

	MaxDurationMinutes int `json:"max_duration_minutes"`
	MaxAttempts        int `json:"max_attempts"`
	MaxQuestions       int `json:"max_questions"`

	StopConsecutiveIncorrect int `json:"stop_consecutive_incorrect"`
	StopSlowSeconds          int `json:"stop_slow_seconds"`

	DifficultyMin int `json:"difficulty_min"`
	DifficultyMax int `json:"difficulty_max"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TimeLimitSeconds returns the attempt duration limit in seconds.
func (p ExamPolicy) TimeLimitSeconds() int {
	return p.MaxDurationMinutes * 60
}

// PolicyDefaults holds the configured values applied to limit fields
// an administrator leaves unset when creating a policy.
type PolicyDefaults struct {
	MaxDurationMinutes       int `json:"max_duration_minutes"`
	MaxAttempts              int `json:"max_attempts"`
	MaxQuestions             int `json:"max_questions"`
	StopConsecutiveIncorrect int `json:"stop_consecutive_incorrect"`
	StopSlowSeconds          int `json:"stop_slow_seconds"`
	DifficultyMin            int `json:"difficulty_min"`
	DifficultyMax            int `json:"difficulty_max"`
}

// Apply fills zero-valued limit fields of p from the defaults.
// Fields the caller did set are left alone.
func (d PolicyDefaults) Apply(p *ExamPolicy) {
	if p.MaxDurationMinutes == 0 {
		p.MaxDurationMinutes = d.MaxDurationMinutes
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MaxQuestions == 0 {
		p.MaxQuestions = d.MaxQuestions
	}
	if p.StopConsecutiveIncorrect == 0 {
		p.StopConsecutiveIncorrect = d.StopConsecutiveIncorrect
	}
	if p.StopSlowSeconds == 0 {
		p.StopSlowSeconds = d.StopSlowSeconds
	}
	if p.DifficultyMin == 0 {
		p.DifficultyMin = d.DifficultyMin
	}
	if p.DifficultyMax == 0 {
		p.DifficultyMax = d.DifficultyMax
	}
}

// Attempt is one student's run through an exam under a policy.
type Attempt struct {
	ID            int64 `json:"id"`
	PolicyID      int64 `json:"policy_id"`
	StudentID     int64 `json:"student_id"`
	AttemptNumber int   `json:"attempt_number"`

	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndedReason    *EndReason `json:"ended_reason,omitempty"`
	ElapsedSeconds *int       `json:"elapsed_seconds,omitempty"`

	QuestionsAnswered    int     `json:"questions_answered"`
	CorrectnessSum       float64 `json:"correctness_sum"`
	ConsecutiveIncorrect int     `json:"consecutive_incorrect"`
	MaxConsecIncorrect   int     `json:"max_consecutive_incorrect"`

	Score  *float64 `json:"score,omitempty"`
	Rating *Rating  `json:"rating,omitempty"`
}

// Open reports whether the attempt has not reached a terminal state.
func (a Attempt) Open() bool {
	return a.EndedAt == nil
}

// ElapsedAt returns whole seconds since the attempt started, floored at 0.
func (a Attempt) ElapsedAt(now time.Time) int {
	d := int(now.Sub(a.StartedAt).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// Question is one generated prompt within an attempt. Immutable once
// created; ContextText records the exact retrieval context it was
// generated from.
type Question struct {
	ID             int64     `json:"id"`
	AttemptID      int64     `json:"attempt_id"`
	QuestionNumber int       `json:"question_number"`
	Text           string    `json:"text"`
	IdealAnswer    string    `json:"-"`
	ContextText    string    `json:"-"`
	ShownAt        time.Time `json:"shown_at"`
}

// Answer is the student's response to a Question. At most one per question.
type Answer struct {
	ID               int64     `json:"id"`
	QuestionID       int64     `json:"question_id"`
	AnsweredAt       time.Time `json:"answered_at"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	Text             string    `json:"text"`
	Correctness      float64   `json:"correctness"`
	IsCorrect        bool      `json:"is_correct"`
	Feedback         string    `json:"feedback"`
}

// Material is one uploaded piece of lecture content, already reduced to
// plain text by the upload layer.
type Material struct {
	ID           int64     `json:"id"`
	DepartmentID int64     `json:"department_id"`
	GradeLevel   int       `json:"grade_level"`
	UploadedBy   int64     `json:"uploaded_by"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
}

// Chunk is a bounded slice of a material's text, the unit of retrieval.
type Chunk struct {
	ID           int64  `json:"id"`
	MaterialID   int64  `json:"material_id"`
	DepartmentID int64  `json:"department_id"`
	GradeLevel   int    `json:"grade_level"`
	ChunkIndex   int    `json:"chunk_index"`
	Text         string `json:"text"`
}

// ChunkEmbedding is the cached packed vector for a chunk.
type ChunkEmbedding struct {
	ChunkID int64
	Dim     int
	Packed  []byte
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}
