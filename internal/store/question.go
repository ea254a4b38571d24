package store

import (
	"database/sql"

	"github.com/pavelanni/adaptexam/internal/model"
)

const questionColumns = `id, attempt_id, question_number, question_text, ideal_answer, context_text, shown_at`

// CreateQuestion persists a question numbered one past the attempt's
// previous maximum. UNIQUE(attempt_id, question_number) rejects a
// concurrent duplicate instead of allowing a gap or double number.
func (s *Store) CreateQuestion(q model.Question) (*model.Question, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var prev int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(question_number), 0) FROM exam_questions WHERE attempt_id = ?`,
		q.AttemptID,
	).Scan(&prev); err != nil {
		return nil, err
	}
	q.QuestionNumber = prev + 1

	res, err := tx.Exec(
		`INSERT INTO exam_questions (attempt_id, question_number, question_text, ideal_answer, context_text, shown_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.AttemptID, q.QuestionNumber, q.Text, q.IdealAnswer, q.ContextText, q.ShownAt,
	)
	if err != nil {
		return nil, err
	}
	q.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &q, nil
}

func scanQuestion(scan func(dest ...any) error) (*model.Question, error) {
	var q model.Question
	err := scan(&q.ID, &q.AttemptID, &q.QuestionNumber, &q.Text, &q.IdealAnswer, &q.ContextText, &q.ShownAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuestion returns a question by ID, or nil if not found.
func (s *Store) GetQuestion(id int64) (*model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionColumns+` FROM exam_questions WHERE id = ?`, id)
	return scanQuestion(row.Scan)
}

// LatestQuestion returns the highest-numbered question of an attempt,
// or nil if the attempt has none.
func (s *Store) LatestQuestion(attemptID int64) (*model.Question, error) {
	row := s.db.QueryRow(
		`SELECT `+questionColumns+` FROM exam_questions
		 WHERE attempt_id = ? ORDER BY question_number DESC LIMIT 1`,
		attemptID,
	)
	return scanQuestion(row.Scan)
}

// ListQuestions returns an attempt's questions in order.
func (s *Store) ListQuestions(attemptID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT `+questionColumns+` FROM exam_questions WHERE attempt_id = ? ORDER BY question_number`,
		attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// PreviousQuestionTexts returns the texts of questions ever asked to the
// student under the policy, newest first, up to limit.
func (s *Store) PreviousQuestionTexts(policyID, studentID int64, limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT q.question_text
		 FROM exam_questions q
		 JOIN exam_attempts a ON a.id = q.attempt_id
		 WHERE a.policy_id = ? AND a.student_id = ?
		 ORDER BY q.id DESC LIMIT ?`,
		policyID, studentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// GetAnswer returns the answer for a question, or nil if not answered.
func (s *Store) GetAnswer(questionID int64) (*model.Answer, error) {
	var a model.Answer
	err := s.db.QueryRow(
		`SELECT id, question_id, answered_at, time_taken_seconds, answer_text, correctness, is_correct, feedback
		 FROM exam_answers WHERE question_id = ?`,
		questionID,
	).Scan(&a.ID, &a.QuestionID, &a.AnsweredAt, &a.TimeTakenSeconds, &a.Text, &a.Correctness, &a.IsCorrect, &a.Feedback)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
