// Package validation provides the post-research quality gate and the
// advisory data-quality validators for research results and executive
// reports.
package validation

import (
	"fmt"

	"github.com/tcsintel/intelgraph/internal/models"
)

// MinUsableConfidence is the floor below which a competitor result does not
// count toward the synthesis gate.
const MinUsableConfidence = 0.5

// Decision is the outcome of the research gate.
type Decision string

const (
	DecisionProceed Decision = "proceed"
	DecisionRetry   Decision = "retry"
	DecisionFail    Decision = "fail"
)

// GateResult contains the result of evaluating the research gate.
type GateResult struct {
	Decision         Decision
	ValidCompetitors int
	TotalSources     int
	// Message summarizes the gate outcome for the session transcript.
	// Empty when there was nothing to evaluate.
	Message string
	// Reason carries the failure diagnostic when the gate fails outright.
	Reason string
}

// EvaluateResearchGate decides whether synthesis can start from the research
// results gathered so far. A result is usable when its confidence score meets
// MinUsableConfidence; total sources are counted over usable results only.
//
// Thresholds against the number of targeted competitors:
//   - a single-competitor run proceeds with one usable result
//   - >=70% usable proceeds
//   - >=50% usable asks for a retry of the research stage
//   - anything less fails
func EvaluateResearchGate(results []models.CompetitorResult, targetCount int) GateResult {
	if len(results) == 0 {
		return GateResult{
			Decision: DecisionFail,
			Reason:   "No research data found",
		}
	}

	valid := 0
	totalSources := 0
	for _, r := range results {
		if r.ConfidenceScore >= MinUsableConfidence {
			valid++
			totalSources += len(r.Sources)
		}
	}

	res := GateResult{
		ValidCompetitors: valid,
		TotalSources:     totalSources,
		Message:          fmt.Sprintf("Research validation: %d valid competitors with %d sources", valid, totalSources),
	}

	switch {
	case targetCount == 1 && valid >= 1:
		res.Decision = DecisionProceed
	case float64(valid) >= float64(targetCount)*0.7:
		res.Decision = DecisionProceed
	case float64(valid) >= float64(targetCount)*0.5:
		res.Decision = DecisionRetry
	default:
		res.Decision = DecisionFail
		res.Reason = fmt.Sprintf("only %d of %d competitors produced usable research", valid, targetCount)
	}
	return res
}
