package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/constants"
	"github.com/tcsintel/intelgraph/internal/metrics"
	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/session"
	"github.com/tcsintel/intelgraph/internal/workflows"
)

// statusMessageLimit caps how many transcript lines the status snapshot
// returns; pollers only display the most recent activity.
const statusMessageLimit = 5

// startRequest is the POST /research/start body.
type startRequest struct {
	Competitors   []string `json:"competitors"`
	ResearchFocus string   `json:"research_focus"`
	MaxAgeDays    int      `json:"max_age_days"`
	MinSources    int      `json:"min_sources_per_competitor"`
}

// handleStart validates the request, creates the session and starts the
// research workflow. Validation failures never create a session.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	research := s.researchCfg()

	// Defaults before validation: an empty competitor list means the full
	// roster, a blank focus means the configured default angle.
	competitors := make([]string, 0, len(req.Competitors))
	for _, c := range req.Competitors {
		if c = strings.TrimSpace(c); c != "" {
			competitors = append(competitors, c)
		}
	}
	if len(competitors) == 0 {
		competitors = append(competitors, research.Roster...)
	}
	focus := strings.TrimSpace(req.ResearchFocus)
	if focus == "" {
		focus = research.DefaultFocus
	}
	maxAge := req.MaxAgeDays
	if maxAge == 0 {
		maxAge = research.DefaultMaxAgeDays
	}
	minSources := req.MinSources
	if minSources == 0 {
		minSources = research.DefaultMinSources
	}

	switch {
	case len(competitors) == 0:
		s.sendError(w, http.StatusBadRequest, "competitors cannot be empty")
		return
	case focus == "":
		s.sendError(w, http.StatusBadRequest, "research_focus cannot be blank")
		return
	case maxAge < 1 || maxAge > 365:
		s.sendError(w, http.StatusBadRequest, "max_age_days must be between 1 and 365")
		return
	case minSources < 1 || minSources > 10:
		s.sendError(w, http.StatusBadRequest, "min_sources_per_competitor must be between 1 and 10")
		return
	}

	sess, err := s.sessions.Create(r.Context(), session.CreateParams{
		Competitors:   competitors,
		ResearchFocus: focus,
		MaxAgeDays:    maxAge,
		MinSources:    minSources,
	})
	if err != nil {
		s.logger.Error("Failed to create session", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	// The session id doubles as the workflow id, so a crashed start can be
	// retried without spawning a second workflow for the same session.
	_, err = s.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        sess.ID,
		TaskQueue: s.temporalCfg.TaskQueue,
	}, constants.ResearchWorkflowName, workflows.ResearchInput{
		SessionID:        sess.ID,
		Competitors:      sess.Competitors,
		ResearchFocus:    sess.ResearchFocus,
		MaxAgeDays:       sess.MaxAgeDays,
		MinSources:       sess.MinSourcesPerCompetitor,
		MaxConcurrency:   research.MaxParallel,
		ResearchTimeout:  research.ResearchTimeout,
		SynthesisTimeout: research.SynthesisTimeout,
		FetchRetry: workflows.RetryPolicy{
			InitialInterval:    s.temporalCfg.RetryPolicy.InitialInterval,
			BackoffCoefficient: s.temporalCfg.RetryPolicy.BackoffCoefficient,
			MaximumInterval:    s.temporalCfg.RetryPolicy.MaximumInterval,
			MaximumAttempts:    s.temporalCfg.RetryPolicy.MaximumAttempts,
		},
	})
	if err != nil {
		s.logger.Error("Failed to start research workflow",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		if derr := s.sessions.Delete(r.Context(), sess.ID); derr != nil {
			s.logger.Warn("Failed to remove orphaned session",
				zap.String("session_id", sess.ID),
				zap.Error(derr),
			)
		}
		s.sendError(w, http.StatusServiceUnavailable, "failed to start research workflow")
		return
	}

	metrics.SessionsStarted.Inc()
	metrics.SessionsActive.Inc()
	s.logger.Info("Research session started",
		zap.String("session_id", sess.ID),
		zap.Int("competitors", len(sess.Competitors)),
		zap.String("research_focus", sess.ResearchFocus),
	)

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":                sess.ID,
		"status":                    sess.Status,
		"message":                   fmt.Sprintf("Research initiated for %d competitors", len(sess.Competitors)),
		"estimated_completion_time": research.EstimatedCompletionMins,
	})
}

// handleSessions lists all live sessions, newest first.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list sessions", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	summaries := make([]map[string]interface{}, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, map[string]interface{}{
			"session_id":     sess.ID,
			"status":         sess.Status,
			"research_focus": sess.ResearchFocus,
			"competitors":    sess.Competitors,
			"created_at":     sess.CreatedAt,
			"completed_at":   sess.CompletedAt,
		})
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": summaries,
		"count":    len(summaries),
	})
}

// handleSessionRoutes dispatches /research/{id}, /research/{id}/status,
// /research/{id}/report and /research/{id}/stream.
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/research/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		s.sendError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 1 {
		if r.Method == http.MethodDelete {
			s.handleDelete(w, r, id)
			return
		}
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch parts[1] {
	case "status":
		s.handleStatus(w, r, id)
	case "report":
		s.handleReport(w, r, id)
	case "stream":
		s.handleStream(w, r, id)
	default:
		s.sendError(w, http.StatusNotFound, "not found")
	}
}

// handleStatus returns the polling snapshot for one session.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.sessionError(w, id, err)
		return
	}

	msgs := sess.Messages
	if len(msgs) > statusMessageLimit {
		msgs = msgs[len(msgs)-statusMessageLimit:]
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":         sess.ID,
		"status":             sess.Status,
		"agents_state":       sess.AgentsState,
		"created_at":         sess.CreatedAt,
		"updated_at":         sess.UpdatedAt,
		"target_competitors": sess.Competitors,
		"messages":           msgs,
		"error_messages":     sess.ErrorMessages,
	})
}

// handleReport returns the assembled report once the session completed.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.sessionError(w, id, err)
		return
	}
	if sess.Status != models.StatusCompleted {
		s.sendError(w, http.StatusBadRequest, "Research not completed yet")
		return
	}
	if sess.Report == nil {
		s.sendError(w, http.StatusNotFound, "report not found")
		return
	}
	s.sendJSON(w, http.StatusOK, sess.Report)
}

// handleDelete cancels a running session's workflow and removes the record.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		s.sessionError(w, id, err)
		return
	}

	if !sess.Status.IsTerminal() {
		cctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.temporal.CancelWorkflow(cctx, id, ""); err != nil {
			// The workflow may have finished between the read and the
			// cancel; deletion proceeds either way.
			s.logger.Warn("Failed to cancel workflow",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}

	if err := s.sessions.Delete(r.Context(), id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		s.logger.Error("Failed to delete session", zap.String("session_id", id), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	s.streams.Drop(id)

	s.logger.Info("Session deleted", zap.String("session_id", id))
	s.sendJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

func (s *Server) sessionError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		s.sendError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.logger.Error("Failed to load session", zap.String("session_id", id), zap.Error(err))
	s.sendError(w, http.StatusInternalServerError, "failed to load session")
}
