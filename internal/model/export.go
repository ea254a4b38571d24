package model

import "time"

// ResultsExport is the top-level JSON structure for exam result export.
type ResultsExport struct {
	Department string          `json:"department"`
	GradeLevel int             `json:"grade_level"`
	Date       string          `json:"date"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one student's attempt data for export.
type StudentResult struct {
	Username      string           `json:"username"`
	DisplayName   string           `json:"display_name"`
	AttemptNumber int              `json:"attempt_number"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	EndedReason   *EndReason       `json:"ended_reason,omitempty"`
	Score         *float64         `json:"score,omitempty"`
	Rating        *Rating          `json:"rating,omitempty"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Number      int     `json:"number"`
	Text        string  `json:"text"`
	IdealAnswer string  `json:"ideal_answer"`
	Answer      string  `json:"answer,omitempty"`
	Correctness float64 `json:"correctness"`
	IsCorrect   bool    `json:"is_correct"`
	Feedback    string  `json:"feedback,omitempty"`
	TimeTaken   int     `json:"time_taken_seconds"`
}
