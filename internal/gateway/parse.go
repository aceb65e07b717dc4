package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/tcsintel/intelgraph/internal/models"
)

// parseResearch extracts structured data from free-form model output. The
// scanner is keyword driven: a line mentioning a section heading switches
// the active section, then the same line is consumed under whatever
// section is now active.
func parseResearch(competitor, content string, now time.Time) models.CompetitorResult {
	if strings.TrimSpace(content) == "" {
		// Nothing to scan. Lowest confidence so validation can weed it out.
		return models.CompetitorResult{
			Competitor:        competitor,
			AINarrative:       fmt.Sprintf("Research data for %s AI initiatives", competitor),
			KeyInitiatives:    []string{fmt.Sprintf("%s AI strategy", competitor)},
			MarketPositioning: fmt.Sprintf("%s market position", competitor),
			ResearchTimestamp: now,
			ConfidenceScore:   0.5,
		}
	}

	var (
		narrative   strings.Builder
		initiatives []string
		sources     []models.ResearchSource
	)

	section := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "ai strategy") || strings.Contains(lower, "narrative"):
			section = "narrative"
		case strings.Contains(lower, "initiative") || strings.Contains(lower, "product"):
			section = "initiatives"
		case strings.Contains(lower, "source") || strings.Contains(lower, "http"):
			section = "sources"
		}

		switch {
		case section == "narrative" && len(line) > 50:
			narrative.WriteString(line)
			narrative.WriteByte(' ')
		case section == "initiatives" && strings.HasPrefix(line, "-"):
			initiatives = append(initiatives, strings.TrimSpace(line[1:]))
		case section == "sources" && (strings.Contains(line, "http") || strings.Contains(line, "www")):
			if src, ok := extractSource(line, now); ok {
				sources = append(sources, src)
			}
		}
	}

	result := models.CompetitorResult{
		Competitor:        competitor,
		AINarrative:       strings.TrimSpace(narrative.String()),
		KeyInitiatives:    initiatives,
		MarketPositioning: fmt.Sprintf("%s positioning in AI services market", competitor),
		Sources:           sources,
		ResearchTimestamp: now,
		ConfidenceScore:   0.6,
	}
	if len(sources) > 0 {
		result.ConfidenceScore = 0.8
	}
	if result.AINarrative == "" {
		result.AINarrative = fmt.Sprintf("%s AI strategy analysis", competitor)
	}
	if len(result.KeyInitiatives) == 0 {
		result.KeyInitiatives = []string{fmt.Sprintf("%s AI initiatives", competitor)}
	}
	return result
}

// extractSource pulls (url, title) out of a line mentioning http. The URL
// runs to the next space; the title is whatever text precedes it.
func extractSource(line string, now time.Time) (models.ResearchSource, bool) {
	idx := strings.Index(line, "http")
	if idx < 0 {
		return models.ResearchSource{}, false
	}

	rest := line[idx:]
	url := rest
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		url = rest[:sp]
	}
	title := strings.TrimSpace(line[:idx])
	if title == "" {
		title = "Research Source"
	}

	return models.ResearchSource{
		URL:              url,
		Title:            title,
		SourceType:       "report",
		PublicationDate:  now.AddDate(0, 0, -30),
		CredibilityScore: 0.8,
	}, true
}

// parseInsights scans labeled lines (Title:, Description:, Priority:)
// into insights. A new title starts a new insight; fields the model never
// labeled keep their defaults. Unparseable output yields the single
// review-required insight rather than nothing.
func parseInsights(content string) []models.Insight {
	var insights []models.Insight
	fields := map[string]string{}

	flush := func() {
		if len(fields) > 0 {
			insights = append(insights, insightFromFields(fields))
			fields = map[string]string{}
		}
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "title") && strings.Contains(line, ":"):
			flush()
			fields["title"] = labelValue(line)
		case strings.Contains(lower, "description") && strings.Contains(line, ":"):
			fields["description"] = labelValue(line)
		case strings.Contains(lower, "priority") && strings.Contains(line, ":"):
			fields["priority"] = labelValue(line)
		}
	}
	flush()

	if len(insights) == 0 {
		return []models.Insight{defaultInsight()}
	}
	return insights
}

// labelValue returns the text after the first colon, trimmed of spaces
// and surrounding quotes.
func labelValue(line string) string {
	_, after, _ := strings.Cut(line, ":")
	return strings.Trim(strings.TrimSpace(after), `"`)
}

func insightFromFields(fields map[string]string) models.Insight {
	get := func(key, fallback string) string {
		if v := fields[key]; v != "" {
			return v
		}
		return fallback
	}
	return models.Insight{
		InsightType:       get("type", "opportunity"),
		Title:             capRunes(get("title", "Strategic Insight"), 50),
		Description:       capRunes(get("description", "Analysis of competitive landscape"), 200),
		BusinessImpact:    capRunes(get("business_impact", "Potential market impact for TCS"), 150),
		RecommendedAction: capRunes(get("recommended_action", "Evaluate strategic response"), 200),
		Priority:          get("priority", models.PriorityMedium),
		Timeline:          get("timeline", models.TimelineShortTerm),
	}
}

func defaultInsight() models.Insight {
	return models.Insight{
		InsightType:       "opportunity",
		Title:             "Competitive Analysis Required",
		Description:       "Manual review of competitive intelligence data needed",
		BusinessImpact:    "Strategic positioning may be affected",
		RecommendedAction: "Conduct detailed analysis of competitor AI strategies",
		Priority:          models.PriorityHigh,
		Timeline:          models.TimelineImmediate,
	}
}

// parseNumberedList extracts items from a numbered or dashed list. Items
// of ten characters or fewer are formatting noise and are dropped.
func parseNumberedList(content string) []string {
	var items []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !isDigit(line[0]) && !strings.HasPrefix(line, "-") {
			continue
		}

		clean := line
		if _, after, ok := strings.Cut(line, ". "); ok {
			clean = after
		} else if _, after, ok := strings.Cut(line, "- "); ok {
			clean = after
		}
		if len(clean) > 10 {
			items = append(items, strings.TrimSpace(clean))
		}
	}

	if len(items) == 0 {
		return []string{"Analysis completed - detailed review recommended"}
	}
	return items
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// capRunes hard-cuts s at n runes.
func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
