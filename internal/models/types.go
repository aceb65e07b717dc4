package models

import (
	"time"
)

// Status tracks lifecycle for sessions and individual agents.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Agent keys in Session.AgentsState. The key set is fixed for the whole
// session lifetime.
const (
	AgentDeepResearch = "deep_research"
	AgentSynthesizer  = "synthesizer"
)

// Insight priorities and timelines as they appear on the wire.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"

	TimelineImmediate = "immediate"
	TimelineShortTerm = "short_term"
	TimelineLongTerm  = "long_term"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses for forward-only transitions. Terminal states share a
// rank; once reached they are sticky.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is a forward
// transition. Terminal states accept nothing.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// AgentState is the externally observable state of one pipeline stage.
type AgentState struct {
	Status             Status     `json:"status"`
	ProgressPercentage int        `json:"progress_percentage"`
	CurrentTask        string     `json:"current_task,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	LastUpdated        time.Time  `json:"last_updated"`
}

// Message is one entry in the session's append-only audit trail.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxTranscriptMessages caps the transcript length. Older entries fall off
// the front once the cap is reached.
const MaxTranscriptMessages = 100

// Session is a research session tracked from creation to terminal status.
type Session struct {
	ID                      string                 `json:"id"`
	Status                  Status                 `json:"status"`
	Competitors             []string               `json:"competitors"`
	ResearchFocus           string                 `json:"research_focus"`
	MaxAgeDays              int                    `json:"max_age_days"`
	MinSourcesPerCompetitor int                    `json:"min_sources_per_competitor"`
	AgentsState             map[string]*AgentState `json:"agents_state"`
	Messages                []Message              `json:"messages"`
	ErrorMessages           []string               `json:"error_messages"`
	CreatedAt               time.Time              `json:"created_at"`
	UpdatedAt               time.Time              `json:"updated_at"`
	CompletedAt             *time.Time             `json:"completed_at,omitempty"`
	Report                  *Report                `json:"report,omitempty"`
}

// AppendMessage appends msg to the transcript, dropping the oldest entries
// beyond MaxTranscriptMessages.
func (s *Session) AppendMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
	if len(s.Messages) > MaxTranscriptMessages {
		s.Messages = s.Messages[len(s.Messages)-MaxTranscriptMessages:]
	}
}

// NewAgentsState returns the fixed two-stage agent map every session starts
// with.
func NewAgentsState(now time.Time) map[string]*AgentState {
	return map[string]*AgentState{
		AgentDeepResearch: {Status: StatusPending, LastUpdated: now},
		AgentSynthesizer:  {Status: StatusPending, LastUpdated: now},
	}
}

// Clone returns a deep copy so callers can hand out snapshots that later
// writes cannot mutate.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Competitors = append([]string(nil), s.Competitors...)
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.ErrorMessages = append([]string(nil), s.ErrorMessages...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	cp.AgentsState = make(map[string]*AgentState, len(s.AgentsState))
	for k, v := range s.AgentsState {
		av := *v
		if v.StartedAt != nil {
			t := *v.StartedAt
			av.StartedAt = &t
		}
		if v.CompletedAt != nil {
			t := *v.CompletedAt
			av.CompletedAt = &t
		}
		cp.AgentsState[k] = &av
	}
	cp.Report = s.Report.Clone()
	return &cp
}

// ResearchSource is one reference backing a competitor analysis.
type ResearchSource struct {
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	SourceType       string    `json:"source_type"`
	PublicationDate  time.Time `json:"publication_date"`
	Author           string    `json:"author,omitempty"`
	CredibilityScore float64   `json:"credibility_score"`
}

// CompetitorResult is the per-competitor outcome of the deep-research stage.
type CompetitorResult struct {
	Competitor        string           `json:"competitor"`
	AINarrative       string           `json:"ai_narrative"`
	KeyInitiatives    []string         `json:"key_initiatives"`
	MarketPositioning string           `json:"market_positioning"`
	Sources           []ResearchSource `json:"sources"`
	ConfidenceScore   float64          `json:"confidence_score"`
	ResearchTimestamp time.Time        `json:"research_timestamp"`
	FromCache         bool             `json:"from_cache,omitempty"`
}

// Insight is one executive takeaway in the final report.
type Insight struct {
	InsightType       string `json:"insight_type"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	BusinessImpact    string `json:"business_impact"`
	RecommendedAction string `json:"recommended_action"`
	Priority          string `json:"priority"`
	Timeline          string `json:"timeline"`
}

// SynthesisOutput carries the synthesizer's four sections before assembly.
type SynthesisOutput struct {
	ExecutiveSummary         string    `json:"executive_summary"`
	KeyInsights              []Insight `json:"key_insights"`
	MarketOpportunities      []string  `json:"market_opportunities"`
	StrategicRecommendations []string  `json:"strategic_recommendations"`
}

// Report is the assembled executive document, immutable once built.
type Report struct {
	ReportID                 string             `json:"report_id"`
	GenerationTimestamp      time.Time          `json:"generation_timestamp"`
	ExecutiveSummary         string             `json:"executive_summary"`
	KeyInsights              []Insight          `json:"key_insights"`
	CompetitorAnalysis       []CompetitorResult `json:"competitor_analysis"`
	MarketOpportunities      []string           `json:"market_opportunities"`
	StrategicRecommendations []string           `json:"strategic_recommendations"`
	DataSourcesCount         int                `json:"data_sources_count"`
	ResearchTimeframe        string             `json:"research_timeframe"`
}

func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	cp := *r
	cp.KeyInsights = append([]Insight(nil), r.KeyInsights...)
	cp.MarketOpportunities = append([]string(nil), r.MarketOpportunities...)
	cp.StrategicRecommendations = append([]string(nil), r.StrategicRecommendations...)
	cp.CompetitorAnalysis = make([]CompetitorResult, len(r.CompetitorAnalysis))
	for i, ca := range r.CompetitorAnalysis {
		ca.KeyInitiatives = append([]string(nil), ca.KeyInitiatives...)
		ca.Sources = append([]ResearchSource(nil), ca.Sources...)
		cp.CompetitorAnalysis[i] = ca
	}
	return &cp
}

// TotalSources sums source counts across all results.
func TotalSources(results []CompetitorResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Sources)
	}
	return n
}
