// Package report assembles the final executive report from research results
// and synthesis output.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tcsintel/intelgraph/internal/models"
)

// Assemble builds the executive report for a completed session. It is pure
// and deterministic: the report id is derived from the session and focus, the
// timestamp comes from the caller. Only competitors that produced a usable
// result reach the assembler; data_sources_count is the sum of their source
// counts.
func Assemble(sessionID, focus string, results []models.CompetitorResult, synth models.SynthesisOutput, timeframeDays int, now time.Time) *models.Report {
	analysis := make([]models.CompetitorResult, 0, len(results))
	sources := 0
	for _, r := range results {
		analysis = append(analysis, r)
		sources += len(r.Sources)
	}

	return &models.Report{
		ReportID:                 uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID+"|"+focus)).String(),
		GenerationTimestamp:      now,
		ExecutiveSummary:         synth.ExecutiveSummary,
		KeyInsights:              synth.KeyInsights,
		CompetitorAnalysis:       analysis,
		MarketOpportunities:      synth.MarketOpportunities,
		StrategicRecommendations: synth.StrategicRecommendations,
		DataSourcesCount:         sources,
		ResearchTimeframe:        fmt.Sprintf("Last %d days", timeframeDays),
	}
}
