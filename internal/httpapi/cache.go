package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// handleCacheInfo summarizes the cache contents.
func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	info, err := s.cache.Info(r.Context())
	if err != nil {
		s.logger.Error("Failed to read cache info", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to read cache info")
		return
	}
	s.sendJSON(w, http.StatusOK, info)
}

// handleCacheClear removes cache entries, either all of them or one
// competitor's when ?competitor= is given.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	competitor := strings.TrimSpace(r.URL.Query().Get("competitor"))
	var (
		deleted int
		err     error
		message string
	)
	if competitor != "" {
		deleted, err = s.cache.ClearCompetitor(r.Context(), competitor)
		message = fmt.Sprintf("Cleared %d cache entries for %s", deleted, competitor)
	} else {
		deleted, err = s.cache.ClearAll(r.Context())
		message = fmt.Sprintf("Cleared %d cache entries", deleted)
	}
	if err != nil {
		s.logger.Error("Failed to clear cache", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"message":       message,
		"deleted_count": deleted,
	})
}

// handleCacheCleanup sweeps entries past their own freshness window.
func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	deleted, err := s.cache.CleanupExpired(r.Context(), 0)
	if err != nil {
		s.logger.Error("Failed to clean up cache", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to clean up cache")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"message":       fmt.Sprintf("Cleaned up %d expired cache entries", deleted),
		"deleted_count": deleted,
	})
}
