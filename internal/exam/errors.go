package exam

import "errors"

// Typed failures surfaced to the transport layer. Deadline and policy
// threshold breaches are not errors; they are normal terminal
// transitions recorded as an attempt's ended reason.
var (
	// ErrPolicyNotFound means no active policy exists for the student's
	// (department, grade) scope.
	ErrPolicyNotFound = errors.New("no active exam policy for this department and grade")

	// ErrAttemptActive means the student already has an open attempt
	// under this policy.
	ErrAttemptActive = errors.New("an attempt is already active")

	// ErrAttemptsExhausted means the student has used all allowed attempts.
	ErrAttemptsExhausted = errors.New("no attempts left")

	// ErrAttemptNotFound means the attempt does not exist or belongs to
	// another student.
	ErrAttemptNotFound = errors.New("attempt not found")

	// ErrAttemptNotActive means the attempt has already ended.
	ErrAttemptNotActive = errors.New("attempt is not active")

	// ErrQuestionNotFound means the question does not exist or belongs
	// to another student.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrQuestionAnswered means the question already has an answer.
	ErrQuestionAnswered = errors.New("question already answered")

	// ErrGeneration means the generation client failed and no fallback
	// was configured. The attempt stays open; the caller surfaces the
	// error instead of silently finalizing.
	ErrGeneration = errors.New("question generation failed")
)
