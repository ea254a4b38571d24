package store

import (
	"database/sql"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS departments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		department_id INTEGER NOT NULL DEFAULT 0,
		grade_level INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		department_id INTEGER NOT NULL,
		grade_level INTEGER NOT NULL,
		max_duration_minutes INTEGER NOT NULL,
		max_attempts INTEGER NOT NULL,
		max_questions INTEGER NOT NULL,
		stop_consecutive_incorrect INTEGER NOT NULL,
		stop_slow_seconds INTEGER NOT NULL,
		difficulty_min INTEGER NOT NULL DEFAULT 2,
		difficulty_max INTEGER NOT NULL DEFAULT 4,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (department_id, grade_level),
		FOREIGN KEY (department_id) REFERENCES departments(id)
	);

	CREATE TABLE IF NOT EXISTS exam_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		policy_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		attempt_number INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		ended_reason TEXT,
		elapsed_seconds INTEGER,
		questions_answered INTEGER NOT NULL DEFAULT 0,
		correctness_sum REAL NOT NULL DEFAULT 0,
		consecutive_incorrect INTEGER NOT NULL DEFAULT 0,
		max_consecutive_incorrect INTEGER NOT NULL DEFAULT 0,
		score REAL,
		rating TEXT,
		UNIQUE (policy_id, student_id, attempt_number),
		FOREIGN KEY (policy_id) REFERENCES exam_policies(id),
		FOREIGN KEY (student_id) REFERENCES users(id)
	);

	-- One open attempt per (policy, student). Concurrent starts race on
	-- this index instead of on a read-then-write check.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attempt_open
		ON exam_attempts (policy_id, student_id) WHERE ended_at IS NULL;

	CREATE TABLE IF NOT EXISTS exam_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		question_number INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		ideal_answer TEXT NOT NULL DEFAULT '',
		context_text TEXT NOT NULL DEFAULT '',
		shown_at DATETIME NOT NULL,
		UNIQUE (attempt_id, question_number),
		FOREIGN KEY (attempt_id) REFERENCES exam_attempts(id)
	);

	CREATE TABLE IF NOT EXISTS exam_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL UNIQUE,
		answered_at DATETIME NOT NULL,
		time_taken_seconds INTEGER NOT NULL DEFAULT 0,
		answer_text TEXT NOT NULL DEFAULT '',
		correctness REAL NOT NULL DEFAULT 0,
		is_correct INTEGER NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (question_id) REFERENCES exam_questions(id)
	);

	CREATE TABLE IF NOT EXISTS lecture_materials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		department_id INTEGER NOT NULL,
		grade_level INTEGER NOT NULL,
		uploaded_by INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (department_id) REFERENCES departments(id)
	);

	CREATE TABLE IF NOT EXISTS lecture_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		material_id INTEGER NOT NULL,
		department_id INTEGER NOT NULL,
		grade_level INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		UNIQUE (material_id, chunk_index),
		FOREIGN KEY (material_id) REFERENCES lecture_materials(id)
	);

	CREATE TABLE IF NOT EXISTS chunk_embeddings (
		chunk_id INTEGER PRIMARY KEY,
		dim INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		FOREIGN KEY (chunk_id) REFERENCES lecture_chunks(id)
	);

	CREATE TABLE IF NOT EXISTS index_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// IsConflict reports whether err is a sqlite uniqueness violation, i.e.
// another writer already holds the row this statement tried to create.
func IsConflict(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		// SQLITE_CONSTRAINT and its extended codes.
		return se.Code()&0xff == 19
	}
	return false
}
