package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/adaptexam/internal/model"
)

const attemptColumns = `id, policy_id, student_id, attempt_number, started_at, ended_at, ended_reason,
	elapsed_seconds, questions_answered, correctness_sum, consecutive_incorrect, max_consecutive_incorrect, score, rating`

func scanAttempt(scan func(dest ...any) error) (*model.Attempt, error) {
	var a model.Attempt
	var reason sql.NullString
	var rating sql.NullString
	var elapsed sql.NullInt64
	var score sql.NullFloat64
	var endedAt sql.NullTime
	err := scan(&a.ID, &a.PolicyID, &a.StudentID, &a.AttemptNumber, &a.StartedAt, &endedAt, &reason,
		&elapsed, &a.QuestionsAnswered, &a.CorrectnessSum, &a.ConsecutiveIncorrect, &a.MaxConsecIncorrect,
		&score, &rating)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		a.EndedAt = &t
	}
	if reason.Valid {
		r := model.EndReason(reason.String)
		a.EndedReason = &r
	}
	if elapsed.Valid {
		e := int(elapsed.Int64)
		a.ElapsedSeconds = &e
	}
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	if rating.Valid {
		r := model.Rating(rating.String)
		a.Rating = &r
	}
	return &a, nil
}

// CreateAttempt opens a new attempt numbered one past the student's
// previous maximum for the policy. The partial unique index on open
// attempts makes a concurrent duplicate start fail with a conflict
// instead of producing two open attempts.
func (s *Store) CreateAttempt(policyID, studentID int64, startedAt time.Time) (*model.Attempt, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var prev int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(attempt_number), 0) FROM exam_attempts WHERE policy_id = ? AND student_id = ?`,
		policyID, studentID,
	).Scan(&prev); err != nil {
		return nil, err
	}

	res, err := tx.Exec(
		`INSERT INTO exam_attempts (policy_id, student_id, attempt_number, started_at) VALUES (?, ?, ?, ?)`,
		policyID, studentID, prev+1, startedAt,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &model.Attempt{
		ID:            id,
		PolicyID:      policyID,
		StudentID:     studentID,
		AttemptNumber: prev + 1,
		StartedAt:     startedAt,
	}, nil
}

// GetAttempt returns an attempt by ID, or nil if not found.
func (s *Store) GetAttempt(id int64) (*model.Attempt, error) {
	row := s.db.QueryRow(`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = ?`, id)
	return scanAttempt(row.Scan)
}

// GetOpenAttempt returns the student's open attempt under the policy, if any.
func (s *Store) GetOpenAttempt(policyID, studentID int64) (*model.Attempt, error) {
	row := s.db.QueryRow(
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE policy_id = ? AND student_id = ? AND ended_at IS NULL`,
		policyID, studentID,
	)
	return scanAttempt(row.Scan)
}

// MaxAttemptNumber returns the highest attempt number the student has
// used under the policy, 0 if none.
func (s *Store) MaxAttemptNumber(policyID, studentID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(attempt_number), 0) FROM exam_attempts WHERE policy_id = ? AND student_id = ?`,
		policyID, studentID,
	).Scan(&n)
	return n, err
}

// ListAttempts returns a student's attempts under a policy, newest first.
func (s *Store) ListAttempts(policyID, studentID int64) ([]model.Attempt, error) {
	rows, err := s.db.Query(
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE policy_id = ? AND student_id = ? ORDER BY attempt_number DESC`,
		policyID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// ListAttemptsForPolicy returns every attempt under a policy.
func (s *Store) ListAttemptsForPolicy(policyID int64) ([]model.Attempt, error) {
	rows, err := s.db.Query(
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE policy_id = ? ORDER BY student_id, attempt_number`,
		policyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func collectAttempts(rows *sql.Rows) ([]model.Attempt, error) {
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// FinalizeAttempt stamps the terminal state. The WHERE guard keeps the
// transition idempotent: once ended_at is set, later calls change nothing.
// Returns true if this call performed the transition.
func (s *Store) FinalizeAttempt(id int64, endedAt time.Time, reason model.EndReason, elapsedSeconds int, score float64, rating model.Rating) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE exam_attempts
		 SET ended_at = ?, ended_reason = ?, elapsed_seconds = ?, score = ?, rating = ?
		 WHERE id = ? AND ended_at IS NULL`,
		endedAt, reason, elapsedSeconds, score, rating, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordAnswer inserts the answer and updates the attempt's running
// counters in one transaction. The UNIQUE(question_id) constraint makes
// a concurrent double submit fail with a conflict rather than double
// counting.
func (s *Store) RecordAnswer(a model.Answer, attempt model.Attempt) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO exam_answers (question_id, answered_at, time_taken_seconds, answer_text, correctness, is_correct, feedback)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.QuestionID, a.AnsweredAt, a.TimeTakenSeconds, a.Text, a.Correctness, a.IsCorrect, a.Feedback,
	); err != nil {
		return err
	}

	consecutive := attempt.ConsecutiveIncorrect
	maxConsec := attempt.MaxConsecIncorrect
	if a.IsCorrect {
		consecutive = 0
	} else {
		consecutive++
		if consecutive > maxConsec {
			maxConsec = consecutive
		}
	}

	if _, err := tx.Exec(
		`UPDATE exam_attempts
		 SET questions_answered = questions_answered + 1,
		     correctness_sum = correctness_sum + ?,
		     consecutive_incorrect = ?,
		     max_consecutive_incorrect = ?
		 WHERE id = ?`,
		a.Correctness, consecutive, maxConsec, attempt.ID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// AvgAnswerTime returns the mean time_taken_seconds across the
// attempt's answers, 0 if it has none.
func (s *Store) AvgAnswerTime(attemptID int64) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT AVG(a.time_taken_seconds)
		 FROM exam_answers a
		 JOIN exam_questions q ON q.id = a.question_id
		 WHERE q.attempt_id = ?`,
		attemptID,
	).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}
