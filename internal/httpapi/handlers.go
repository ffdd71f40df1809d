package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"wp_syncer/internal/domain"
	"wp_syncer/internal/scheduler"
)

const (
	defaultSearchPerPage = 10
	maxSearchPerPage     = 100
)

type sourceInfo struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

type currentRun struct {
	RunID     string     `json:"runId"`
	StartedAt *time.Time `json:"startedAt"`
}

type syncStatusResponse struct {
	SyncInProgress bool                `json:"syncInProgress"`
	LastSyncStatus *domain.SyncSummary `json:"lastSyncStatus"`
	LastSyncTime   *time.Time          `json:"lastSyncTime"`
	CurrentRun     *currentRun         `json:"currentRun,omitempty"`
	Scheduler      scheduler.Status    `json:"scheduler"`
	Source         sourceInfo          `json:"source"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.Status.Snapshot()

	resp := syncStatusResponse{
		SyncInProgress: s.deps.Scheduler.InProgress() || snap.Running,
		LastSyncStatus: snap.LastSummary,
		LastSyncTime:   snap.LastSyncTime,
		Scheduler:      s.deps.Scheduler.Status(),
		Source:         sourceInfo{Name: snap.SourceName, Endpoint: snap.Endpoint},
	}
	if snap.Running {
		resp.CurrentRun = &currentRun{RunID: snap.RunID, StartedAt: snap.RunStartedAt}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	startedAt, err := s.deps.Scheduler.Trigger(r.Context())
	if errors.Is(err, scheduler.ErrSyncInProgress) {
		snap := s.deps.Status.Snapshot()
		writeJSON(w, http.StatusConflict, map[string]any{
			"success":        false,
			"message":        "sync already in progress",
			"lastSyncTime":   snap.LastSyncTime,
			"lastSyncStatus": snap.LastSummary,
		})
		return
	}
	if err != nil {
		s.logger.Error("failed to trigger sync", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start sync")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":       true,
		"message":       "sync started",
		"syncStartTime": startedAt,
	})
}

// handleSyncOne does not take the batch run guard.
func (s *Server) handleSyncOne(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "sourceId")
	sourceID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sourceID <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid source id %q", raw))
		return
	}

	result, err := s.deps.Syncer.SyncOne(r.Context(), sourceID)
	switch {
	case errors.Is(err, domain.ErrPostNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("source post %d not found", sourceID))
		return
	case errors.Is(err, domain.ErrInvalidSourcePost):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("failed to sync post", "source_id", sourceID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to sync post %d: %v", sourceID, err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("post %d %s", sourceID, result.Action),
		"action":  result.Action,
		"post":    result.Post,
	})
}

func (s *Server) handleSearchPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.TrimSpace(q.Get("search"))

	page, err := intParam(q.Get("page"), 1, 1, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	perPage, err := intParam(q.Get("per_page"), defaultSearchPerPage, 1, maxSearchPerPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("per_page must be between 1 and %d", maxSearchPerPage))
		return
	}

	posts, err := s.deps.Syncer.Search(r.Context(), search, page, perPage)
	if err != nil {
		s.logger.Error("failed to search posts", "search", search, "page", page, "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch posts from source")
		return
	}
	if posts == nil {
		posts = []domain.SourcePost{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"posts":   posts,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	count, err := s.deps.Posts.Count(ctx)
	if err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"posts":  count,
	})
}

// intParam parses an optional integer. hi <= 0 means unbounded.
func intParam(raw string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < lo || (hi > 0 && v > hi) {
		return 0, fmt.Errorf("value %d out of range", v)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}
