package report

import (
	"testing"
	"time"

	"github.com/tcsintel/intelgraph/internal/models"
)

var assembleNow = time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)

func sampleResults() []models.CompetitorResult {
	return []models.CompetitorResult{
		{
			Competitor:      "Accenture",
			AINarrative:     "Accenture is scaling GenAI delivery through its Data & AI practice.",
			KeyInitiatives:  []string{"GenAI studios"},
			Sources:         make([]models.ResearchSource, 3),
			ConfidenceScore: 0.8,
		},
		{
			Competitor:      "Infosys",
			AINarrative:     "Infosys positions Topaz as the umbrella for its AI offerings.",
			KeyInitiatives:  []string{"Topaz expansion"},
			Sources:         make([]models.ResearchSource, 2),
			ConfidenceScore: 0.7,
		},
	}
}

func sampleSynthesis() models.SynthesisOutput {
	return models.SynthesisOutput{
		ExecutiveSummary: "Competitors are consolidating AI offerings under branded platforms.",
		KeyInsights: []models.Insight{
			{Title: "Platform branding accelerates deal flow", Priority: models.PriorityHigh, Timeline: models.TimelineShortTerm},
		},
		MarketOpportunities:      []string{"Mid-market AI advisory"},
		StrategicRecommendations: []string{"Sharpen platform positioning", "Expand alliance coverage"},
	}
}

func TestAssemble(t *testing.T) {
	rep := Assemble("session-1", "AI narrative and strategic initiatives", sampleResults(), sampleSynthesis(), 60, assembleNow)

	if rep.DataSourcesCount != 5 {
		t.Errorf("Expected data_sources_count 5, got %d", rep.DataSourcesCount)
	}
	if len(rep.CompetitorAnalysis) != 2 {
		t.Errorf("Expected 2 competitors in analysis, got %d", len(rep.CompetitorAnalysis))
	}
	if rep.CompetitorAnalysis[0].Competitor != "Accenture" || rep.CompetitorAnalysis[1].Competitor != "Infosys" {
		t.Errorf("Expected input order preserved, got %+v", rep.CompetitorAnalysis)
	}
	if rep.ResearchTimeframe != "Last 60 days" {
		t.Errorf("Expected timeframe %q, got %q", "Last 60 days", rep.ResearchTimeframe)
	}
	if !rep.GenerationTimestamp.Equal(assembleNow) {
		t.Errorf("Expected generation timestamp %v, got %v", assembleNow, rep.GenerationTimestamp)
	}
	if rep.ExecutiveSummary != sampleSynthesis().ExecutiveSummary {
		t.Errorf("Unexpected executive summary %q", rep.ExecutiveSummary)
	}
	if len(rep.KeyInsights) != 1 || len(rep.MarketOpportunities) != 1 || len(rep.StrategicRecommendations) != 2 {
		t.Errorf("Unexpected section counts: %+v", rep)
	}
}

func TestAssembleDeterministicID(t *testing.T) {
	a := Assemble("session-1", "focus", sampleResults(), sampleSynthesis(), 60, assembleNow)
	b := Assemble("session-1", "focus", sampleResults(), sampleSynthesis(), 60, assembleNow)
	c := Assemble("session-2", "focus", sampleResults(), sampleSynthesis(), 60, assembleNow)

	if a.ReportID == "" {
		t.Fatal("Expected a report id")
	}
	if a.ReportID != b.ReportID {
		t.Errorf("Expected identical inputs to produce the same id, got %s vs %s", a.ReportID, b.ReportID)
	}
	if a.ReportID == c.ReportID {
		t.Error("Expected different sessions to produce different ids")
	}
}

func TestAssembleNoResults(t *testing.T) {
	rep := Assemble("session-1", "focus", nil, sampleSynthesis(), 30, assembleNow)

	if rep.DataSourcesCount != 0 {
		t.Errorf("Expected zero data sources, got %d", rep.DataSourcesCount)
	}
	if len(rep.CompetitorAnalysis) != 0 {
		t.Errorf("Expected empty analysis, got %+v", rep.CompetitorAnalysis)
	}
	if rep.ResearchTimeframe != "Last 30 days" {
		t.Errorf("Expected timeframe %q, got %q", "Last 30 days", rep.ResearchTimeframe)
	}
}
