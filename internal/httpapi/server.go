// Package httpapi serves the REST surface of the research orchestrator:
// session start/status/report, the roster, cache management and the
// WebSocket progress stream.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/cache"
	"github.com/tcsintel/intelgraph/internal/config"
	"github.com/tcsintel/intelgraph/internal/metrics"
	"github.com/tcsintel/intelgraph/internal/session"
	"github.com/tcsintel/intelgraph/internal/streaming"
)

// WorkflowClient is the slice of the Temporal client the API needs. Tests
// substitute a fake; production passes client.Client.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID, runID string) error
}

// Server holds the API handlers and their dependencies.
type Server struct {
	sessions    *session.Store
	cache       *cache.Store
	streams     *streaming.Manager
	temporal    WorkflowClient
	temporalCfg config.TemporalConfig
	logger      *zap.Logger

	mu       sync.RWMutex
	research config.ResearchConfig
}

// NewServer creates the API server.
func NewServer(
	sessions *session.Store,
	cacheStore *cache.Store,
	streams *streaming.Manager,
	temporal WorkflowClient,
	research config.ResearchConfig,
	temporalCfg config.TemporalConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		sessions:    sessions,
		cache:       cacheStore,
		streams:     streams,
		temporal:    temporal,
		research:    research,
		temporalCfg: temporalCfg,
		logger:      logger,
	}
}

// RegisterRoutes mounts all API endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.instrument("/", s.handleRoot))
	mux.HandleFunc("/competitors", s.instrument("/competitors", s.handleCompetitors))
	mux.HandleFunc("/research/start", s.instrument("/research/start", s.handleStart))
	mux.HandleFunc("/research/sessions", s.instrument("/research/sessions", s.handleSessions))
	mux.HandleFunc("/research/", s.instrument("/research/{id}", s.handleSessionRoutes))
	mux.HandleFunc("/cache/info", s.instrument("/cache/info", s.handleCacheInfo))
	mux.HandleFunc("/cache/clear", s.instrument("/cache/clear", s.handleCacheClear))
	mux.HandleFunc("/cache/cleanup", s.instrument("/cache/cleanup", s.handleCacheCleanup))
}

// instrument wraps a handler with request logging and metrics. The route
// pattern keeps the path label cardinality bounded.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		elapsed := time.Since(start)

		metrics.RecordHTTPRequest(route, r.Method, strconv.Itoa(sw.status), elapsed.Seconds())
		s.logger.Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("elapsed", elapsed),
		)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// handleRoot serves the API info document.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"service": "intelgraph",
		"message": "Competitive intelligence research API",
		"endpoints": map[string]string{
			"competitors":   "GET /competitors",
			"start":         "POST /research/start",
			"status":        "GET /research/{id}/status",
			"report":        "GET /research/{id}/report",
			"stream":        "GET /research/{id}/stream",
			"sessions":      "GET /research/sessions",
			"delete":        "DELETE /research/{id}",
			"cache_info":    "GET /cache/info",
			"cache_clear":   "DELETE /cache/clear",
			"cache_cleanup": "POST /cache/cleanup",
			"health":        "GET /health",
		},
	})
}

// handleCompetitors returns the configured roster.
func (s *Server) handleCompetitors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"competitors": s.researchCfg().Roster,
	})
}

// UpdateResearch swaps the research defaults. Config hot-reload calls this
// so roster edits land without a restart.
func (s *Server) UpdateResearch(cfg config.ResearchConfig) {
	s.mu.Lock()
	s.research = cfg
	s.mu.Unlock()
}

func (s *Server) researchCfg() config.ResearchConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.research
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, msg string) {
	s.sendJSON(w, code, map[string]string{"detail": msg})
}
