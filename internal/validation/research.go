package validation

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/util"
)

// reputableDomains anchors source URL checks. A source URL passes when its
// host contains one of these domains.
var reputableDomains = []string{
	"mckinsey.com", "gartner.com", "pwc.com", "deloitte.com",
	"accenture.com", "ibm.com", "infosys.com", "cognizant.com",
	"capgemini.com", "wipro.com", "hcltech.com", "tcs.com",
	"reuters.com", "bloomberg.com", "techcrunch.com", "zdnet.com",
	"computerworld.com", "infoworld.com", "cio.com",
}

// validSourceTypes are the source categories research results may carry.
var validSourceTypes = []string{
	"report", "press_release", "earnings_call", "news", "research", "whitepaper",
}

// ResearchMetrics aggregates data-quality counters over a research result set.
type ResearchMetrics struct {
	TotalCompetitors   int     `json:"total_competitors"`
	ValidCompetitors   int     `json:"valid_competitors"`
	TotalSources       int     `json:"total_sources"`
	ValidSources       int     `json:"valid_sources"`
	AvgConfidence      float64 `json:"avg_confidence"`
	DateCompliant      int     `json:"date_compliance"`
	CoveragePercentage float64 `json:"coverage_percentage"`
}

// ResearchValidator checks competitor research results against the configured
// roster, source freshness window and minimum source count. It is advisory:
// callers log the findings, they do not abort sessions on them.
type ResearchValidator struct {
	roster     map[string]bool
	maxAgeDays int
	minSources int
}

// NewResearchValidator builds a validator for the given competitor roster.
func NewResearchValidator(roster []string, maxAgeDays, minSources int) *ResearchValidator {
	set := make(map[string]bool, len(roster))
	for _, name := range roster {
		set[name] = true
	}
	return &ResearchValidator{
		roster:     set,
		maxAgeDays: maxAgeDays,
		minSources: minSources,
	}
}

// Validate checks the complete research result set and returns overall
// validity, the individual findings and aggregate metrics. The set is valid
// when at least 70% of the results are individually valid, average confidence
// reaches 0.6 and at least 80% of the results are date compliant.
func (v *ResearchValidator) Validate(results []models.CompetitorResult, now time.Time) (bool, []string, ResearchMetrics) {
	var errs []string
	metrics := ResearchMetrics{TotalCompetitors: len(results)}

	validCount := 0
	totalConfidence := 0.0
	dateCompliant := 0

	for _, data := range results {
		ok, competitorErrs := v.validateCompetitor(data, now)
		if ok {
			validCount++
		}

		totalConfidence += data.ConfidenceScore
		metrics.TotalSources += len(data.Sources)
		for _, src := range data.Sources {
			if srcOK, _ := v.validateSource(src, now); srcOK {
				metrics.ValidSources++
			}
		}
		if v.dateCompliant(data, now) {
			dateCompliant++
		}

		errs = append(errs, competitorErrs...)
	}

	metrics.ValidCompetitors = validCount
	metrics.DateCompliant = dateCompliant
	if len(results) > 0 {
		metrics.AvgConfidence = totalConfidence / float64(len(results))
	}
	if len(v.roster) > 0 {
		metrics.CoveragePercentage = float64(validCount) / float64(len(v.roster)) * 100
	}

	valid := float64(validCount) >= float64(len(results))*0.7 &&
		metrics.AvgConfidence >= 0.6 &&
		float64(dateCompliant) >= float64(len(results))*0.8

	return valid, errs, metrics
}

// validateCompetitor checks a single competitor result. Source findings are
// prefixed with the competitor name so the combined list stays attributable.
func (v *ResearchValidator) validateCompetitor(data models.CompetitorResult, now time.Time) (bool, []string) {
	var errs []string

	if data.Competitor == "" || !v.roster[data.Competitor] {
		errs = append(errs, fmt.Sprintf("Invalid competitor: %s", data.Competitor))
	}
	if trimmedRuneLen(data.AINarrative) < 50 {
		errs = append(errs, fmt.Sprintf("AI narrative too short for %s", data.Competitor))
	}
	if len(data.KeyInitiatives) == 0 {
		errs = append(errs, fmt.Sprintf("No key initiatives found for %s", data.Competitor))
	}
	if len(data.Sources) < v.minSources {
		errs = append(errs, fmt.Sprintf("Insufficient sources for %s: %d < %d", data.Competitor, len(data.Sources), v.minSources))
	}
	if data.ConfidenceScore < MinUsableConfidence {
		errs = append(errs, fmt.Sprintf("Low confidence score for %s: %g", data.Competitor, data.ConfidenceScore))
	}

	validSources := 0
	for _, src := range data.Sources {
		ok, srcErrs := v.validateSource(src, now)
		if ok {
			validSources++
			continue
		}
		for _, e := range srcErrs {
			errs = append(errs, fmt.Sprintf("%s - %s", data.Competitor, e))
		}
	}
	if float64(validSources) < float64(len(data.Sources))*0.7 {
		errs = append(errs, fmt.Sprintf("Too many invalid sources for %s", data.Competitor))
	}

	return len(errs) == 0, errs
}

// validateSource checks a single research source.
func (v *ResearchValidator) validateSource(src models.ResearchSource, now time.Time) (bool, []string) {
	var errs []string

	if !v.isReputableURL(src.URL) {
		errs = append(errs, fmt.Sprintf("Invalid URL: %s", src.URL))
	}
	if trimmedRuneLen(src.Title) < 10 {
		errs = append(errs, "Source title too short or missing")
	}
	if !v.isRecent(src.PublicationDate, now) {
		errs = append(errs, fmt.Sprintf("Source too old: %s", src.PublicationDate.Format("2006-01-02")))
	}
	if src.CredibilityScore < 0.3 {
		errs = append(errs, fmt.Sprintf("Low credibility score: %g", src.CredibilityScore))
	}
	if !util.ContainsString(validSourceTypes, src.SourceType) {
		errs = append(errs, fmt.Sprintf("Invalid source type: %s", src.SourceType))
	}

	return len(errs) == 0, errs
}

// isReputableURL reports whether the URL parses and its host matches one of
// the reputable domains.
func (v *ResearchValidator) isReputableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, dom := range reputableDomains {
		if strings.Contains(host, dom) {
			return true
		}
	}
	return false
}

// isRecent reports whether t falls within the configured freshness window.
func (v *ResearchValidator) isRecent(t time.Time, now time.Time) bool {
	cutoff := now.AddDate(0, 0, -v.maxAgeDays)
	return !t.Before(cutoff)
}

// dateCompliant requires a recent research timestamp and at least 80% of the
// result's sources to be recent.
func (v *ResearchValidator) dateCompliant(data models.CompetitorResult, now time.Time) bool {
	if !v.isRecent(data.ResearchTimestamp, now) {
		return false
	}
	recent := 0
	for _, src := range data.Sources {
		if v.isRecent(src.PublicationDate, now) {
			recent++
		}
	}
	return float64(recent) >= float64(len(data.Sources))*0.8
}

func trimmedRuneLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
