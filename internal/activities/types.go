package activities

import (
	"github.com/tcsintel/intelgraph/internal/models"
)

// MarkRunningInput identifies the session to move into progress.
type MarkRunningInput struct {
	SessionID string `json:"session_id"`
}

// MarkRunningResult reports the session status after the transition.
type MarkRunningResult struct {
	Status models.Status `json:"status"`
}

// ProgressInput is one agent state update. Zero-valued fields leave the
// corresponding state untouched; progress below the current value is
// ignored by the store.
type ProgressInput struct {
	SessionID    string        `json:"session_id"`
	Agent        string        `json:"agent"`
	Status       models.Status `json:"status,omitempty"`
	Progress     int           `json:"progress"`
	CurrentTask  string        `json:"current_task,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// ProgressResult reports the effective progress after clamping.
type ProgressResult struct {
	Progress int `json:"progress"`
}

// MessageInput appends to the session record. Content lands in the
// transcript; Error lands in the session's error log. Either may be empty.
type MessageInput struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MessageResult acknowledges the append.
type MessageResult struct {
	Messages int `json:"messages"`
}

// FetchInput asks for one competitor's research. Index and Total drive the
// research stage's progress percentage.
type FetchInput struct {
	SessionID     string `json:"session_id"`
	Competitor    string `json:"competitor"`
	ResearchFocus string `json:"research_focus"`
	MaxAgeDays    int    `json:"max_age_days"`
	MinSources    int    `json:"min_sources"`
	Index         int    `json:"index"`
	Total         int    `json:"total"`
}

// FetchResult carries one competitor's research outcome.
type FetchResult struct {
	Result    models.CompetitorResult `json:"result"`
	FromCache bool                    `json:"from_cache"`
}

// SynthesizeInput carries the aggregated research into the synthesis stage.
type SynthesizeInput struct {
	SessionID     string                    `json:"session_id"`
	ResearchFocus string                    `json:"research_focus"`
	Results       []models.CompetitorResult `json:"results"`
	TimeframeDays int                       `json:"timeframe_days"`
}

// SynthesizeResult summarizes the stored report. The report itself stays on
// the session record; only counts travel back through workflow history.
type SynthesizeResult struct {
	ReportID        string `json:"report_id"`
	Insights        int    `json:"insights"`
	Recommendations int    `json:"recommendations"`
	DataSources     int    `json:"data_sources"`
}

// CompleteInput identifies the session to finalize.
type CompleteInput struct {
	SessionID string `json:"session_id"`
}

// CompleteResult reports the terminal status the session landed on.
type CompleteResult struct {
	Status models.Status `json:"status"`
}

// FailInput marks a session failed. Agent, when set, names the stage that
// caused the failure; Error is appended to the session's error log.
type FailInput struct {
	SessionID string `json:"session_id"`
	Agent     string `json:"agent,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FailResult reports the terminal status after the failure landed.
type FailResult struct {
	Status models.Status `json:"status"`
}

// ArchiveInput identifies the terminal session to archive.
type ArchiveInput struct {
	SessionID string `json:"session_id"`
}

// ArchiveResult reports whether the session was queued for archival.
type ArchiveResult struct {
	Archived bool `json:"archived"`
}
