package store

import (
	"fmt"

	"github.com/pavelanni/adaptexam/internal/model"
)

// ExportPolicyResults builds export-ready student results for every
// attempt under a policy.
func (s *Store) ExportPolicyResults(policyID int64) ([]model.StudentResult, error) {
	attempts, err := s.ListAttemptsForPolicy(policyID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	var results []model.StudentResult
	for _, a := range attempts {
		user, err := s.GetUserByID(a.StudentID)
		if err != nil {
			return nil, fmt.Errorf("get user %d: %w", a.StudentID, err)
		}

		var username, displayName string
		if user != nil {
			username = user.Username
			displayName = user.DisplayName
		}

		questions, err := s.ListQuestions(a.ID)
		if err != nil {
			return nil, fmt.Errorf("list questions for attempt %d: %w", a.ID, err)
		}

		var qResults []model.QuestionResult
		for _, q := range questions {
			qr := model.QuestionResult{
				Number:      q.QuestionNumber,
				Text:        q.Text,
				IdealAnswer: q.IdealAnswer,
			}
			ans, err := s.GetAnswer(q.ID)
			if err != nil {
				return nil, fmt.Errorf("get answer for question %d: %w", q.ID, err)
			}
			if ans != nil {
				qr.Answer = ans.Text
				qr.Correctness = ans.Correctness
				qr.IsCorrect = ans.IsCorrect
				qr.Feedback = ans.Feedback
				qr.TimeTaken = ans.TimeTakenSeconds
			}
			qResults = append(qResults, qr)
		}

		results = append(results, model.StudentResult{
			Username:      username,
			DisplayName:   displayName,
			AttemptNumber: a.AttemptNumber,
			StartedAt:     a.StartedAt,
			EndedAt:       a.EndedAt,
			EndedReason:   a.EndedReason,
			Score:         a.Score,
			Rating:        a.Rating,
			Questions:     qResults,
		})
	}

	return results, nil
}
