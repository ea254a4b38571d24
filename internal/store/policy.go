package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/adaptexam/internal/model"
)

const policyColumns = `id, department_id, grade_level, max_duration_minutes, max_attempts, max_questions,
	stop_consecutive_incorrect, stop_slow_seconds, difficulty_min, difficulty_max, active, created_at, updated_at`

func scanPolicy(row *sql.Row) (*model.ExamPolicy, error) {
	var p model.ExamPolicy
	err := row.Scan(&p.ID, &p.DepartmentID, &p.GradeLevel, &p.MaxDurationMinutes, &p.MaxAttempts,
		&p.MaxQuestions, &p.StopConsecutiveIncorrect, &p.StopSlowSeconds,
		&p.DifficultyMin, &p.DifficultyMax, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePolicy inserts a policy. At most one policy may exist per
// (department, grade); a second insert fails on the unique constraint.
func (s *Store) CreatePolicy(p model.ExamPolicy) (int64, error) {
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO exam_policies (department_id, grade_level, max_duration_minutes, max_attempts, max_questions,
			stop_consecutive_incorrect, stop_slow_seconds, difficulty_min, difficulty_max, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.DepartmentID, p.GradeLevel, p.MaxDurationMinutes, p.MaxAttempts, p.MaxQuestions,
		p.StopConsecutiveIncorrect, p.StopSlowSeconds, p.DifficultyMin, p.DifficultyMax, p.Active, now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdatePolicy rewrites a policy's rule fields.
func (s *Store) UpdatePolicy(p model.ExamPolicy) error {
	_, err := s.db.Exec(
		`UPDATE exam_policies SET max_duration_minutes = ?, max_attempts = ?, max_questions = ?,
			stop_consecutive_incorrect = ?, stop_slow_seconds = ?, difficulty_min = ?, difficulty_max = ?,
			active = ?, updated_at = ?
		 WHERE id = ?`,
		p.MaxDurationMinutes, p.MaxAttempts, p.MaxQuestions,
		p.StopConsecutiveIncorrect, p.StopSlowSeconds, p.DifficultyMin, p.DifficultyMax,
		p.Active, time.Now(), p.ID,
	)
	return err
}

// GetPolicy returns a policy by ID, or nil if not found.
func (s *Store) GetPolicy(id int64) (*model.ExamPolicy, error) {
	return scanPolicy(s.db.QueryRow(`SELECT `+policyColumns+` FROM exam_policies WHERE id = ?`, id))
}

// ActivePolicyForScope returns the active policy for (department, grade),
// or nil if none exists.
func (s *Store) ActivePolicyForScope(departmentID int64, gradeLevel int) (*model.ExamPolicy, error) {
	return scanPolicy(s.db.QueryRow(
		`SELECT `+policyColumns+` FROM exam_policies
		 WHERE department_id = ? AND grade_level = ? AND active = 1`,
		departmentID, gradeLevel,
	))
}

// ListPolicies returns all policies ordered by department and grade.
func (s *Store) ListPolicies() ([]model.ExamPolicy, error) {
	rows, err := s.db.Query(`SELECT ` + policyColumns + ` FROM exam_policies ORDER BY department_id, grade_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var policies []model.ExamPolicy
	for rows.Next() {
		var p model.ExamPolicy
		if err := rows.Scan(&p.ID, &p.DepartmentID, &p.GradeLevel, &p.MaxDurationMinutes, &p.MaxAttempts,
			&p.MaxQuestions, &p.StopConsecutiveIncorrect, &p.StopSlowSeconds,
			&p.DifficultyMin, &p.DifficultyMax, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}
