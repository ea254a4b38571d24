package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/adaptexam/internal/model"
)

func (h *Handler) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.store.ListDepartments()
	if err != nil {
		slog.Error("list departments", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, departments)
}

func (h *Handler) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	id, err := h.store.CreateDepartment(req.Name)
	if err != nil {
		slog.Error("create department", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, model.Department{ID: id, Name: req.Name})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("list users", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username     string `json:"username"`
		DisplayName  string `json:"display_name"`
		Password     string `json:"password"`
		Role         string `json:"role"`
		DepartmentID int64  `json:"department_id"`
		GradeLevel   int    `json:"grade_level"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	role := model.UserRole(req.Role)
	switch role {
	case model.UserRoleStudent, model.UserRoleTeacher, model.UserRoleAdmin:
	default:
		http.Error(w, "bad role", http.StatusBadRequest)
		return
	}
	// Only admins may create other teachers and admins.
	actor := model.UserFromContext(r.Context())
	if role != model.UserRoleStudent && actor.Role != model.UserRoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	user := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         role,
		DepartmentID: req.DepartmentID,
		GradeLevel:   req.GradeLevel,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	id, err := h.store.CreateUser(user)
	if err != nil {
		slog.Error("create user", "error", err, "username", req.Username)
		http.Error(w, "could not create user", http.StatusConflict)
		return
	}
	user.ID = id
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("toggle user", "error", err, "user", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.store.ListPolicies()
	if err != nil {
		slog.Error("list policies", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *Handler) handlePolicyDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.PolicyDefaults)
}

func (h *Handler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var p model.ExamPolicy
	if err := decodeJSON(r, &p); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	h.config.PolicyDefaults.Apply(&p)
	if !validPolicy(p) {
		http.Error(w, "invalid policy", http.StatusBadRequest)
		return
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	id, err := h.store.CreatePolicy(p)
	if err != nil {
		slog.Error("create policy", "error", err)
		http.Error(w, "could not create policy", http.StatusConflict)
		return
	}
	p.ID = id
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "policyID"), 10, 64)
	if err != nil {
		http.Error(w, "bad policy id", http.StatusBadRequest)
		return
	}
	var p model.ExamPolicy
	if err := decodeJSON(r, &p); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !validPolicy(p) {
		http.Error(w, "invalid policy", http.StatusBadRequest)
		return
	}
	p.ID = id
	p.UpdatedAt = time.Now()
	if err := h.store.UpdatePolicy(p); err != nil {
		slog.Error("update policy", "error", err, "policy", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func validPolicy(p model.ExamPolicy) bool {
	return p.DepartmentID > 0 &&
		p.GradeLevel > 0 &&
		p.MaxDurationMinutes > 0 &&
		p.MaxAttempts > 0 &&
		p.MaxQuestions > 0 &&
		p.StopConsecutiveIncorrect > 0 &&
		p.StopSlowSeconds > 0 &&
		p.DifficultyMin >= 1 &&
		p.DifficultyMax <= 5 &&
		p.DifficultyMin <= p.DifficultyMax
}

func (h *Handler) handleExportResults(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "policyID"), 10, 64)
	if err != nil {
		http.Error(w, "bad policy id", http.StatusBadRequest)
		return
	}
	policy, err := h.store.GetPolicy(id)
	if err != nil {
		slog.Error("get policy", "error", err, "policy", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if policy == nil {
		http.Error(w, "policy not found", http.StatusNotFound)
		return
	}
	department, err := h.store.GetDepartment(policy.DepartmentID)
	if err != nil {
		slog.Error("get department", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	results, err := h.store.ExportPolicyResults(id)
	if err != nil {
		slog.Error("export results", "error", err, "policy", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, model.ResultsExport{
		Department: department.Name,
		GradeLevel: policy.GradeLevel,
		Date:       time.Now().Format("2006-01-02"),
		Results:    results,
	})
}

func (h *Handler) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	departmentID, err := strconv.ParseInt(r.URL.Query().Get("department_id"), 10, 64)
	if err != nil {
		http.Error(w, "bad department id", http.StatusBadRequest)
		return
	}
	gradeLevel, err := strconv.Atoi(r.URL.Query().Get("grade_level"))
	if err != nil {
		http.Error(w, "bad grade level", http.StatusBadRequest)
		return
	}
	materials, err := h.store.ListMaterials(departmentID, gradeLevel)
	if err != nil {
		slog.Error("list materials", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, materials)
}

func (h *Handler) handleUploadMaterial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DepartmentID int64  `json:"department_id"`
		GradeLevel   int    `json:"grade_level"`
		Title        string `json:"title"`
		Text         string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Title == "" || req.Text == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	actor := model.UserFromContext(r.Context())
	id, chunks, err := h.ingester.IngestMaterial(r.Context(), model.Material{
		DepartmentID: req.DepartmentID,
		GradeLevel:   req.GradeLevel,
		UploadedBy:   actor.ID,
		Title:        req.Title,
	}, req.Text)
	if err != nil {
		slog.Error("ingest material", "error", err, "title", req.Title)
		http.Error(w, "could not ingest material", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     id,
		"chunks": chunks,
	})
}

func (h *Handler) handleReindex(w http.ResponseWriter, r *http.Request) {
	if err := h.index.ReindexAll(r.Context(), h.config.EmbedProvider, h.config.EmbedModel); err != nil {
		slog.Error("reindex", "error", err)
		http.Error(w, "reindex failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
