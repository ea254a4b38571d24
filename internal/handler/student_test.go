package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pavelanni/adaptexam/internal/exam"
	appI18n "github.com/pavelanni/adaptexam/internal/i18n"
	"github.com/pavelanni/adaptexam/internal/model"
)

type displayStrings struct {
	AttemptLabel string `json:"attempt_label"`
	RatingLabel  string `json:"rating_label"`
	EndedMessage string `json:"ended_message"`
}

func TestWriteStateLocalizedStrings(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	h := &Handler{}

	reason := model.EndTooSlow
	state := &exam.State{
		Attempt: model.Attempt{
			AttemptNumber: 2,
			EndedReason:   &reason,
		},
		RatingSoFar: model.RatingGood,
	}

	rec := httptest.NewRecorder()
	h.writeState(rec, httptest.NewRequest(http.MethodGet, "/api/exam", nil), http.StatusOK, state)

	var got displayStrings
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.AttemptLabel != "Attempt #2" {
		t.Errorf("attempt_label = %q, want %q", got.AttemptLabel, "Attempt #2")
	}
	if got.RatingLabel != "Good" {
		t.Errorf("rating_label = %q, want %q", got.RatingLabel, "Good")
	}
	if got.EndedMessage != "The last answer took too long." {
		t.Errorf("ended_message = %q", got.EndedMessage)
	}
}

func TestWriteStateRussian(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	h := &Handler{}

	reason := model.EndCompleted
	state := &exam.State{
		Attempt: model.Attempt{
			AttemptNumber: 1,
			EndedReason:   &reason,
		},
		RatingSoFar: model.RatingVeryGood,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/exam", nil)
	req = req.WithContext(appI18n.WithLocalizer(req.Context(), appI18n.NewLocalizer("ru")))
	rec := httptest.NewRecorder()
	h.writeState(rec, req, http.StatusOK, state)

	var got displayStrings
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.AttemptLabel != "Попытка №1" {
		t.Errorf("attempt_label = %q", got.AttemptLabel)
	}
	if got.RatingLabel != "Отлично" {
		t.Errorf("rating_label = %q", got.RatingLabel)
	}
	if got.EndedMessage != "Экзамен завершён." {
		t.Errorf("ended_message = %q", got.EndedMessage)
	}
}

func TestEndedMessageIDCoversAllReasons(t *testing.T) {
	reasons := []model.EndReason{
		model.EndCompleted,
		model.EndStudentEnd,
		model.EndTimeLimit,
		model.EndTooManyIncorrect,
		model.EndTooSlow,
		model.EndNoQuestions,
		model.EndError,
	}
	for _, reason := range reasons {
		if endedMessageID(reason) == "" {
			t.Errorf("no message ID for reason %q", reason)
		}
	}
}
