package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/adaptexam/internal/model"
	"github.com/pavelanni/adaptexam/internal/store"
)

func testPolicyDefaults() model.PolicyDefaults {
	return model.PolicyDefaults{
		MaxDurationMinutes:       30,
		MaxAttempts:              3,
		MaxQuestions:             10,
		StopConsecutiveIncorrect: 3,
		StopSlowSeconds:          300,
		DifficultyMin:            2,
		DifficultyMax:            4,
	}
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, nil, nil, nil, Config{PolicyDefaults: testPolicyDefaults()})
}

func TestCreatePolicyAppliesDefaults(t *testing.T) {
	h := newTestHandler(t)
	deptID, err := h.store.CreateDepartment("Physics")
	if err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}

	// Only scope and one limit are given; the rest come from the
	// configured defaults.
	body := fmt.Sprintf(`{"department_id":%d,"grade_level":2,"max_questions":5}`, deptID)
	rec := httptest.NewRecorder()
	h.handleCreatePolicy(rec, httptest.NewRequest(http.MethodPost, "/api/admin/policies", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var p model.ExamPolicy
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if p.MaxQuestions != 5 {
		t.Errorf("MaxQuestions = %d, want the caller's 5", p.MaxQuestions)
	}
	d := testPolicyDefaults()
	if p.MaxDurationMinutes != d.MaxDurationMinutes {
		t.Errorf("MaxDurationMinutes = %d, want default %d", p.MaxDurationMinutes, d.MaxDurationMinutes)
	}
	if p.MaxAttempts != d.MaxAttempts {
		t.Errorf("MaxAttempts = %d, want default %d", p.MaxAttempts, d.MaxAttempts)
	}
	if p.StopConsecutiveIncorrect != d.StopConsecutiveIncorrect {
		t.Errorf("StopConsecutiveIncorrect = %d, want default %d", p.StopConsecutiveIncorrect, d.StopConsecutiveIncorrect)
	}
	if p.StopSlowSeconds != d.StopSlowSeconds {
		t.Errorf("StopSlowSeconds = %d, want default %d", p.StopSlowSeconds, d.StopSlowSeconds)
	}
	if p.DifficultyMin != d.DifficultyMin || p.DifficultyMax != d.DifficultyMax {
		t.Errorf("difficulty = [%d,%d], want default [%d,%d]",
			p.DifficultyMin, p.DifficultyMax, d.DifficultyMin, d.DifficultyMax)
	}

	stored, err := h.store.GetPolicy(p.ID)
	if err != nil {
		t.Fatalf("GetPolicy: %v", err)
	}
	if stored == nil || stored.MaxDurationMinutes != d.MaxDurationMinutes {
		t.Errorf("stored policy = %+v, want defaults persisted", stored)
	}
}

func TestCreatePolicyRejectsInvalid(t *testing.T) {
	h := newTestHandler(t)
	deptID, err := h.store.CreateDepartment("Physics")
	if err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}

	// An explicit inverted difficulty range is not rescued by the
	// defaults.
	body := fmt.Sprintf(`{"department_id":%d,"grade_level":2,"difficulty_min":5,"difficulty_max":2}`, deptID)
	rec := httptest.NewRecorder()
	h.handleCreatePolicy(rec, httptest.NewRequest(http.MethodPost, "/api/admin/policies", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestPolicyDefaultsEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.handlePolicyDefaults(rec, httptest.NewRequest(http.MethodGet, "/api/admin/policies/defaults", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var d model.PolicyDefaults
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if d != testPolicyDefaults() {
		t.Errorf("defaults = %+v, want %+v", d, testPolicyDefaults())
	}
}
