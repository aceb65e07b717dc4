package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/util"
)

var (
	validPriorities = []string{models.PriorityHigh, models.PriorityMedium, models.PriorityLow}
	validTimelines  = []string{models.TimelineImmediate, models.TimelineShortTerm, models.TimelineLongTerm}
)

// ReportMetrics aggregates quality counters over an executive report.
type ReportMetrics struct {
	SummaryLength        int     `json:"summary_length"`
	InsightsCount        int     `json:"insights_count"`
	OpportunitiesCount   int     `json:"opportunities_count"`
	RecommendationsCount int     `json:"recommendations_count"`
	CompetitorsAnalyzed  int     `json:"competitors_analyzed"`
	AvgInsightQuality    float64 `json:"avg_insight_quality"`
}

// ValidateReport checks an assembled executive report for completeness and
// insight quality. The checks are advisory: callers log the findings, the
// report is delivered either way. The report is valid when no findings were
// raised and average insight quality reaches 0.7.
func ValidateReport(report *models.Report) (bool, []string, ReportMetrics) {
	if report == nil {
		return false, []string{"Report missing"}, ReportMetrics{}
	}

	var errs []string
	metrics := ReportMetrics{
		SummaryLength:        utf8.RuneCountInString(report.ExecutiveSummary),
		InsightsCount:        len(report.KeyInsights),
		OpportunitiesCount:   len(report.MarketOpportunities),
		RecommendationsCount: len(report.StrategicRecommendations),
		CompetitorsAnalyzed:  len(report.CompetitorAnalysis),
	}

	if trimmedRuneLen(report.ExecutiveSummary) < 100 {
		errs = append(errs, "Executive summary too short or missing")
	}
	if metrics.SummaryLength > 1000 {
		errs = append(errs, "Executive summary too long (should be concise)")
	}

	if len(report.KeyInsights) < 3 {
		errs = append(errs, "Insufficient key insights (minimum 3 required)")
	}
	totalQuality := 0.0
	for _, insight := range report.KeyInsights {
		score := assessInsightQuality(insight)
		totalQuality += score
		if score < 0.6 {
			errs = append(errs, fmt.Sprintf("Low quality insight: %s", insight.Title))
		}
	}
	if len(report.KeyInsights) > 0 {
		metrics.AvgInsightQuality = totalQuality / float64(len(report.KeyInsights))
	}

	if len(report.MarketOpportunities) < 2 {
		errs = append(errs, "Insufficient market opportunities identified")
	}
	if len(report.StrategicRecommendations) < 3 {
		errs = append(errs, "Insufficient strategic recommendations")
	}
	if len(report.CompetitorAnalysis) < 3 {
		errs = append(errs, "Insufficient competitor analysis")
	}
	if report.DataSourcesCount < 5 {
		errs = append(errs, fmt.Sprintf("Insufficient data sources: %d", report.DataSourcesCount))
	}

	valid := len(errs) == 0 && metrics.AvgInsightQuality >= 0.7
	return valid, errs, metrics
}

// assessInsightQuality scores an insight in 0.2 steps for a substantial
// title, description, business impact, recommended action and a valid
// priority/timeline pair.
func assessInsightQuality(insight models.Insight) float64 {
	score := 0.0
	if trimmedRuneLen(insight.Title) >= 10 {
		score += 0.2
	}
	if trimmedRuneLen(insight.Description) >= 30 {
		score += 0.2
	}
	if trimmedRuneLen(insight.BusinessImpact) >= 20 {
		score += 0.2
	}
	if trimmedRuneLen(insight.RecommendedAction) >= 20 {
		score += 0.2
	}
	if util.ContainsString(validPriorities, insight.Priority) && util.ContainsString(validTimelines, insight.Timeline) {
		score += 0.2
	}
	return score
}
