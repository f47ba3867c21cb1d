package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"f0oster/adsweep/archive"
)

// RunSource supplies the data behind the read-only API endpoints.
type RunSource interface {
	RecentRuns(ctx context.Context, limit int) ([]archive.Run, error)
	RecentArchives(ctx context.Context, limit int) ([]archive.ArchivedAccount, error)
}

// Response types for JSON serialization

type HealthResponse struct {
	Status  string `json:"status"`
	Archive bool   `json:"archive"`
}

type RunListResponse struct {
	Runs  []archive.Run `json:"runs"`
	Limit int           `json:"limit"`
}

type ArchiveListResponse struct {
	Accounts []archive.ArchivedAccount `json:"accounts"`
	Limit    int                       `json:"limit"`
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseLimit(r *http.Request, fallback int) int {
	limit := fallback
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	return limit
}

// Handlers

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Archive: s.source != nil,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeError(w, http.StatusServiceUnavailable, "No archive store configured")
		return
	}

	limit := parseLimit(r, 20)
	runs, err := s.source.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []archive.Run{}
	}

	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs, Limit: limit})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeError(w, http.StatusServiceUnavailable, "No archive store configured")
		return
	}

	limit := parseLimit(r, 50)
	accounts, err := s.source.RecentArchives(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing archived accounts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list archived accounts")
		return
	}
	if accounts == nil {
		accounts = []archive.ArchivedAccount{}
	}

	writeJSON(w, http.StatusOK, ArchiveListResponse{Accounts: accounts, Limit: limit})
}
