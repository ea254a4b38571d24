// Package handler exposes the exam engine and administration surface
// as a JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/adaptexam/internal/exam"
	appI18n "github.com/pavelanni/adaptexam/internal/i18n"
	"github.com/pavelanni/adaptexam/internal/index"
	"github.com/pavelanni/adaptexam/internal/ingest"
	"github.com/pavelanni/adaptexam/internal/model"
	"github.com/pavelanni/adaptexam/internal/store"
)

// Config holds the server-level handler settings.
type Config struct {
	BasePath      string
	SecureCookies bool

	// EmbedProvider and EmbedModel identify the embedding setup for
	// the reindex fingerprint.
	EmbedProvider string
	EmbedModel    string

	// PolicyDefaults prefill limit fields left unset on policy
	// creation.
	PolicyDefaults model.PolicyDefaults
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	engine   *exam.Engine
	ingester *ingest.Ingester
	index    *index.Index
	config   Config
}

// New creates a new Handler.
func New(s *store.Store, e *exam.Engine, in *ingest.Ingester, ix *index.Index, cfg Config) *Handler {
	return &Handler{store: s, engine: e, ingester: in, index: ix, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/api/me", h.handleMe)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleStudent))
			r.Post("/api/exam/start", h.handleStartExam)
			r.Get("/api/exam", h.handleExamState)
			r.Post("/api/exam/answer/{questionID}", h.handleAnswer)
			r.Post("/api/exam/end", h.handleEndExam)
			r.Get("/api/exam/attempts", h.handleListAttempts)
			r.Get("/api/exam/results/{attemptID}", h.handleResults)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
			r.Get("/departments", h.handleListDepartments)
			r.Post("/departments", h.handleCreateDepartment)
			r.Get("/users", h.handleListUsers)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUser)
			r.Get("/policies", h.handleListPolicies)
			r.Get("/policies/defaults", h.handlePolicyDefaults)
			r.Post("/policies", h.handleCreatePolicy)
			r.Put("/policies/{policyID}", h.handleUpdatePolicy)
			r.Get("/policies/{policyID}/results", h.handleExportResults)
			r.Get("/materials", h.handleListMaterials)
			r.Post("/materials", h.handleUploadMaterial)
			r.Post("/reindex", h.handleReindex)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError sends a machine-readable error code plus its localized
// message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, map[string]string{
		"error":   msgID,
		"message": appI18n.T(r.Context(), msgID),
	})
}

// examError maps engine failures to HTTP statuses. Unknown errors are
// logged and reported as internal.
func (h *Handler) examError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, exam.ErrPolicyNotFound):
		h.writeError(w, r, http.StatusNotFound, "NoPolicy")
	case errors.Is(err, exam.ErrAttemptActive):
		h.writeError(w, r, http.StatusConflict, "AttemptActive")
	case errors.Is(err, exam.ErrAttemptsExhausted):
		h.writeError(w, r, http.StatusForbidden, "AttemptsExhausted")
	case errors.Is(err, exam.ErrAttemptNotFound):
		h.writeError(w, r, http.StatusNotFound, "AttemptNotFound")
	case errors.Is(err, exam.ErrAttemptNotActive):
		h.writeError(w, r, http.StatusConflict, "AttemptNotActive")
	case errors.Is(err, exam.ErrQuestionNotFound):
		h.writeError(w, r, http.StatusNotFound, "QuestionNotFound")
	case errors.Is(err, exam.ErrQuestionAnswered):
		h.writeError(w, r, http.StatusConflict, "QuestionAnswered")
	case errors.Is(err, exam.ErrGeneration):
		slog.Error("generation failed", "error", err)
		h.writeError(w, r, http.StatusBadGateway, "GenerationFailed")
	default:
		slog.Error("exam operation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
