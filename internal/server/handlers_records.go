package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cardiolab/afdash/internal/analysis"
	"github.com/cardiolab/afdash/internal/storage"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.ListRecordsByUser(r.Context(), UserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []analysis.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.GetRecord(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDashboard returns the aggregated trend and summary view built from
// the user's saved records.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.ListRecordsByUser(r.Context(), UserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, analysis.Aggregate(records))
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	s.handleMe(w, r)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Age      int    `json:"age"`
		Gender   string `json:"gender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if len(strings.TrimSpace(req.Username)) < 2 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username must be at least 2 characters long"})
		return
	}
	if req.Age < 1 || req.Age > 120 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Please enter a valid age"})
		return
	}

	userID := UserID(r.Context())
	err := s.users.UpdateProfile(r.Context(), userID, strings.TrimSpace(req.Username), req.Age, req.Gender)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}
	if err != nil {
		s.log.Error("updating profile", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	user, err := s.users.GetUserByID(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, profileOf(user))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
