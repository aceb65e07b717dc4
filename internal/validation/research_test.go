package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/tcsintel/intelgraph/internal/models"
)

var (
	validationNow = time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)
	testRoster    = []string{"Accenture", "Infosys", "Cognizant", "Wipro"}
)

func validSource() models.ResearchSource {
	return models.ResearchSource{
		URL:              "https://www.mckinsey.com/industries/technology/ai-strategy-review",
		Title:            "AI strategy review for IT services",
		SourceType:       "report",
		PublicationDate:  validationNow.AddDate(0, 0, -10),
		CredibilityScore: 0.8,
	}
}

func validResult(competitor string) models.CompetitorResult {
	return models.CompetitorResult{
		Competitor:        competitor,
		AINarrative:       "The company is scaling generative AI delivery across consulting and managed services engagements worldwide.",
		KeyInitiatives:    []string{"GenAI platform expansion", "Industry cloud alliances"},
		MarketPositioning: "Positioned as a full-stack AI transformation partner",
		Sources:           []models.ResearchSource{validSource(), validSource(), validSource()},
		ConfidenceScore:   0.8,
		ResearchTimestamp: validationNow.AddDate(0, 0, -1),
	}
}

func containsFinding(t *testing.T, errs []string, fragment string) {
	t.Helper()
	for _, e := range errs {
		if strings.Contains(e, fragment) {
			return
		}
	}
	t.Errorf("Expected a finding containing %q, got %v", fragment, errs)
}

func TestResearchValidator_ValidSet(t *testing.T) {
	v := NewResearchValidator(testRoster, 60, 3)

	valid, errs, metrics := v.Validate([]models.CompetitorResult{
		validResult("Accenture"),
		validResult("Infosys"),
	}, validationNow)

	if !valid {
		t.Errorf("Expected valid result set, got findings: %v", errs)
	}
	if len(errs) != 0 {
		t.Errorf("Expected no findings, got %v", errs)
	}
	if metrics.TotalCompetitors != 2 || metrics.ValidCompetitors != 2 {
		t.Errorf("Expected 2/2 valid competitors, got %d/%d", metrics.ValidCompetitors, metrics.TotalCompetitors)
	}
	if metrics.TotalSources != 6 || metrics.ValidSources != 6 {
		t.Errorf("Expected 6/6 valid sources, got %d/%d", metrics.ValidSources, metrics.TotalSources)
	}
	if metrics.DateCompliant != 2 {
		t.Errorf("Expected 2 date-compliant results, got %d", metrics.DateCompliant)
	}
	if !almostEqual(metrics.AvgConfidence, 0.8) {
		t.Errorf("Expected average confidence 0.8, got %g", metrics.AvgConfidence)
	}
	// 2 valid of a 4-name roster
	if !almostEqual(metrics.CoveragePercentage, 50) {
		t.Errorf("Expected 50%% coverage, got %g", metrics.CoveragePercentage)
	}
}

func TestResearchValidator_FlagsCompetitorDefects(t *testing.T) {
	v := NewResearchValidator(testRoster, 60, 3)

	bad := models.CompetitorResult{
		Competitor:  "Unknown Corp",
		AINarrative: "Too short",
		Sources: []models.ResearchSource{{
			URL:              "https://blogspam.example.com/post",
			Title:            "hot take",
			SourceType:       "blog",
			PublicationDate:  validationNow.AddDate(0, 0, -200),
			CredibilityScore: 0.1,
		}},
		ConfidenceScore:   0.3,
		ResearchTimestamp: validationNow,
	}

	valid, errs, metrics := v.Validate([]models.CompetitorResult{bad}, validationNow)

	if valid {
		t.Error("Expected invalid result set")
	}
	if metrics.ValidCompetitors != 0 {
		t.Errorf("Expected 0 valid competitors, got %d", metrics.ValidCompetitors)
	}
	if metrics.ValidSources != 0 {
		t.Errorf("Expected 0 valid sources, got %d", metrics.ValidSources)
	}

	containsFinding(t, errs, "Invalid competitor: Unknown Corp")
	containsFinding(t, errs, "AI narrative too short for Unknown Corp")
	containsFinding(t, errs, "No key initiatives found for Unknown Corp")
	containsFinding(t, errs, "Insufficient sources for Unknown Corp: 1 < 3")
	containsFinding(t, errs, "Low confidence score for Unknown Corp: 0.3")
	containsFinding(t, errs, "Unknown Corp - Invalid URL: https://blogspam.example.com/post")
	containsFinding(t, errs, "Unknown Corp - Source title too short or missing")
	containsFinding(t, errs, "Unknown Corp - Source too old:")
	containsFinding(t, errs, "Unknown Corp - Low credibility score: 0.1")
	containsFinding(t, errs, "Unknown Corp - Invalid source type: blog")
	containsFinding(t, errs, "Too many invalid sources for Unknown Corp")
}

func TestResearchValidator_SeventyPercentRule(t *testing.T) {
	v := NewResearchValidator(testRoster, 60, 3)

	short := validResult("Cognizant")
	short.AINarrative = "Brief."

	// 2 of 3 individually valid misses the 70% bar
	valid, errs, metrics := v.Validate([]models.CompetitorResult{
		validResult("Accenture"),
		validResult("Infosys"),
		short,
	}, validationNow)

	if valid {
		t.Error("Expected overall invalid below the 70% bar")
	}
	if metrics.ValidCompetitors != 2 {
		t.Errorf("Expected 2 valid competitors, got %d", metrics.ValidCompetitors)
	}
	containsFinding(t, errs, "AI narrative too short for Cognizant")
}

func TestResearchValidator_StaleTimestampBreaksCompliance(t *testing.T) {
	v := NewResearchValidator(testRoster, 60, 3)

	stale := validResult("Accenture")
	stale.ResearchTimestamp = validationNow.AddDate(0, 0, -90)

	valid, errs, metrics := v.Validate([]models.CompetitorResult{stale}, validationNow)

	// Stale research timestamps lower compliance without raising a finding.
	if valid {
		t.Error("Expected invalid result set when date compliance fails")
	}
	if len(errs) != 0 {
		t.Errorf("Expected no findings, got %v", errs)
	}
	if metrics.DateCompliant != 0 {
		t.Errorf("Expected 0 date-compliant results, got %d", metrics.DateCompliant)
	}
	if metrics.ValidCompetitors != 1 {
		t.Errorf("Expected competitor to stay individually valid, got %d", metrics.ValidCompetitors)
	}
}

func TestResearchValidator_ReputableURL(t *testing.T) {
	v := NewResearchValidator(testRoster, 60, 3)

	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.mckinsey.com/insights", true},
		{"https://research.gartner.com/report/123", true},
		{"http://reuters.com/article/tcs-ai", true},
		{"https://randomblog.example.com/ai", false},
		{"www.bloomberg.com/news", false}, // scheme required
		{"not a url", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := v.isReputableURL(tc.url); got != tc.want {
			t.Errorf("isReputableURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestResearchValidator_EmptyInput(t *testing.T) {
	v := NewResearchValidator(testRoster, 60, 3)

	valid, errs, metrics := v.Validate(nil, validationNow)

	if valid {
		t.Error("Expected empty input to be invalid")
	}
	if len(errs) != 0 {
		t.Errorf("Expected no findings, got %v", errs)
	}
	if metrics.TotalCompetitors != 0 || metrics.AvgConfidence != 0 {
		t.Errorf("Expected zeroed metrics, got %+v", metrics)
	}
}
