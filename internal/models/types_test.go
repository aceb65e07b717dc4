package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusPending.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusFailed))

	// No backward transitions
	assert.False(t, StatusInProgress.CanTransitionTo(StatusPending))

	// Terminal states are sticky
	assert.False(t, StatusCompleted.CanTransitionTo(StatusFailed))
	assert.False(t, StatusFailed.CanTransitionTo(StatusInProgress))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusInProgress))
}

func TestNewAgentsStateKeys(t *testing.T) {
	now := time.Now()
	st := NewAgentsState(now)

	require.Len(t, st, 2)
	require.Contains(t, st, AgentDeepResearch)
	require.Contains(t, st, AgentSynthesizer)
	assert.Equal(t, StatusPending, st[AgentDeepResearch].Status)
	assert.Equal(t, StatusPending, st[AgentSynthesizer].Status)
	assert.Equal(t, 0, st[AgentDeepResearch].ProgressPercentage)
}

func TestSessionCloneIsDeep(t *testing.T) {
	now := time.Now()
	s := &Session{
		ID:          "s-1",
		Status:      StatusInProgress,
		Competitors: []string{"Accenture", "IBM"},
		AgentsState: NewAgentsState(now),
		Messages:    []Message{{Role: "assistant", Content: "hello", Timestamp: now}},
		Report: &Report{
			ReportID:           "r-1",
			KeyInsights:        []Insight{{Title: "t"}},
			CompetitorAnalysis: []CompetitorResult{{Competitor: "IBM", Sources: []ResearchSource{{URL: "https://a"}}}},
		},
	}

	cp := s.Clone()

	cp.Competitors[0] = "mutated"
	cp.AgentsState[AgentDeepResearch].ProgressPercentage = 50
	cp.Messages[0].Content = "mutated"
	cp.Report.CompetitorAnalysis[0].Sources[0].URL = "https://mutated"

	assert.Equal(t, "Accenture", s.Competitors[0])
	assert.Equal(t, 0, s.AgentsState[AgentDeepResearch].ProgressPercentage)
	assert.Equal(t, "hello", s.Messages[0].Content)
	assert.Equal(t, "https://a", s.Report.CompetitorAnalysis[0].Sources[0].URL)
}

func TestTotalSources(t *testing.T) {
	results := []CompetitorResult{
		{Sources: make([]ResearchSource, 3)},
		{Sources: make([]ResearchSource, 5)},
		{},
	}
	assert.Equal(t, 8, TotalSources(results))
	assert.Equal(t, 0, TotalSources(nil))
}
