package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/adaptexam/internal/exam"
	appI18n "github.com/pavelanni/adaptexam/internal/i18n"
	"github.com/pavelanni/adaptexam/internal/model"
)

// stateResponse augments the engine state with display strings in the
// request's language.
type stateResponse struct {
	*exam.State
	AttemptLabel string `json:"attempt_label"`
	RatingLabel  string `json:"rating_label,omitempty"`
	EndedMessage string `json:"ended_message,omitempty"`
}

type resultsResponse struct {
	*exam.Results
	AttemptLabel string `json:"attempt_label"`
	RatingLabel  string `json:"rating_label,omitempty"`
	EndedMessage string `json:"ended_message,omitempty"`
}

func ratingMessageID(rating model.Rating) string {
	switch rating {
	case model.RatingVeryGood:
		return "RatingVeryGood"
	case model.RatingGood:
		return "RatingGood"
	case model.RatingNeedsImprovement:
		return "RatingNeedsImprovement"
	case model.RatingBad:
		return "RatingBad"
	}
	return ""
}

func endedMessageID(reason model.EndReason) string {
	switch reason {
	case model.EndCompleted:
		return "EndedCompleted"
	case model.EndStudentEnd:
		return "EndedStudentEnd"
	case model.EndTimeLimit:
		return "EndedTimeLimit"
	case model.EndTooManyIncorrect:
		return "EndedTooManyIncorrect"
	case model.EndTooSlow:
		return "EndedTooSlow"
	case model.EndNoQuestions:
		return "NoQuestions"
	case model.EndError:
		return "EndedError"
	}
	return ""
}

func attemptStrings(r *http.Request, attempt model.Attempt, rating model.Rating) (label, ratingLabel, endedMessage string) {
	ctx := r.Context()
	label = appI18n.Td(ctx, "AttemptN", map[string]any{"Number": attempt.AttemptNumber})
	if id := ratingMessageID(rating); id != "" {
		ratingLabel = appI18n.T(ctx, id)
	}
	if attempt.EndedReason != nil {
		if id := endedMessageID(*attempt.EndedReason); id != "" {
			endedMessage = appI18n.T(ctx, id)
		}
	}
	return label, ratingLabel, endedMessage
}

func (h *Handler) writeState(w http.ResponseWriter, r *http.Request, status int, state *exam.State) {
	resp := stateResponse{State: state}
	resp.AttemptLabel, resp.RatingLabel, resp.EndedMessage = attemptStrings(r, state.Attempt, state.RatingSoFar)
	writeJSON(w, status, resp)
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	student := model.UserFromContext(r.Context())
	state, err := h.engine.Start(r.Context(), student)
	if err != nil {
		h.examError(w, r, err)
		return
	}
	h.writeState(w, r, http.StatusCreated, state)
}

func (h *Handler) handleExamState(w http.ResponseWriter, r *http.Request) {
	student := model.UserFromContext(r.Context())
	state, err := h.engine.CurrentState(r.Context(), student)
	if err != nil {
		h.examError(w, r, err)
		return
	}
	h.writeState(w, r, http.StatusOK, state)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	student := model.UserFromContext(r.Context())
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil {
		http.Error(w, "bad question id", http.StatusBadRequest)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	state, err := h.engine.SubmitAnswer(r.Context(), student, questionID, req.Text)
	if err != nil {
		h.examError(w, r, err)
		return
	}
	h.writeState(w, r, http.StatusOK, state)
}

func (h *Handler) handleEndExam(w http.ResponseWriter, r *http.Request) {
	student := model.UserFromContext(r.Context())
	state, err := h.engine.End(r.Context(), student)
	if err != nil {
		h.examError(w, r, err)
		return
	}
	h.writeState(w, r, http.StatusOK, state)
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	student := model.UserFromContext(r.Context())
	policy, err := h.store.ActivePolicyForScope(student.DepartmentID, student.GradeLevel)
	if err != nil {
		h.examError(w, r, err)
		return
	}
	if policy == nil {
		h.writeError(w, r, http.StatusNotFound, "NoPolicy")
		return
	}
	attempts, err := h.store.ListAttempts(policy.ID, student.ID)
	if err != nil {
		h.examError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	student := model.UserFromContext(r.Context())
	attemptID, err := strconv.ParseInt(chi.URLParam(r, "attemptID"), 10, 64)
	if err != nil {
		http.Error(w, "bad attempt id", http.StatusBadRequest)
		return
	}

	results, err := h.engine.AttemptResults(student, attemptID)
	if err != nil {
		h.examError(w, r, err)
		return
	}
	resp := resultsResponse{Results: results}
	var rating model.Rating
	if results.Attempt.Rating != nil {
		rating = *results.Attempt.Rating
	}
	resp.AttemptLabel, resp.RatingLabel, resp.EndedMessage = attemptStrings(r, results.Attempt, rating)
	writeJSON(w, http.StatusOK, resp)
}
