package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/util"
)

// buildResearchQuery renders the deep-research prompt for one competitor.
// The cutoff date bounds the search window to the freshness the request
// asked for.
func buildResearchQuery(competitor, focus string, maxAgeDays int, now time.Time) string {
	cutoff := now.AddDate(0, 0, -maxAgeDays).Format("2006-01-02")

	var b strings.Builder
	fmt.Fprintf(&b, "Research %s's AI strategy and initiatives in IT services from the last %d days.\n", competitor, maxAgeDays)
	if focus != "" {
		fmt.Fprintf(&b, "\nResearch focus: %s\n", focus)
	}
	fmt.Fprintf(&b, `
Find recent information about:
1. %[1]s AI strategy and narrative announcements
2. New AI product launches and service offerings by %[1]s
3. %[1]s AI partnerships, acquisitions, and investments
4. %[1]s market positioning in AI and IT services
5. Leadership statements from %[1]s executives about AI direction
6. Recent client wins and case studies for %[1]s AI services
7. %[1]s competitive advantages and differentiators in AI

Search for:
- Official %[1]s press releases and earnings calls since %[2]s
- Industry analyst reports mentioning %[1]s AI capabilities
- Technology news articles about %[1]s AI initiatives
- Executive interviews and conference presentations by %[1]s leaders

Provide:
- Specific AI initiatives and their business impact
- Key quotes from %[1]s executives
- Market positioning insights
- Competitive analysis data
- Recent financial performance related to AI services
- Source URLs and publication dates

Focus on actionable competitive intelligence for TCS executives to understand %[1]s's AI strategy and market positioning.
`, competitor, cutoff)
	return b.String()
}

// buildResearchContext condenses per-competitor results into prompt
// context. Long fields are truncated so one verbose competitor cannot
// crowd out the rest.
func buildResearchContext(results []models.CompetitorResult, focus string) string {
	parts := make([]string, 0, len(results)+1)
	if focus != "" {
		parts = append(parts, "Research Focus: "+focus)
	}
	for _, r := range results {
		initiatives := r.KeyInitiatives
		if len(initiatives) > 3 {
			initiatives = initiatives[:3]
		}
		parts = append(parts, fmt.Sprintf(`Competitor: %s
AI Narrative: %s
Key Initiatives: %s
Market Position: %s
Source Count: %d
Confidence: %.2f`,
			r.Competitor,
			util.TruncateString(r.AINarrative, 500, false),
			strings.Join(initiatives, ", "),
			util.TruncateString(r.MarketPositioning, 200, false),
			len(r.Sources),
			r.ConfidenceScore))
	}
	return strings.Join(parts, "\n\n")
}

func buildSummaryPrompt(researchContext string) string {
	return fmt.Sprintf(`Based on the following competitive intelligence data about TCS competitors' AI strategies,
generate a concise executive summary for TCS senior leadership.

Research Data:
%s

Guidelines:
- Maximum 150 words
- Focus on key competitive threats and opportunities
- Business-impact oriented language
- Actionable insights for TCS executives
- No technical jargon

Executive Summary:`, researchContext)
}

func buildInsightsPrompt(researchContext string) string {
	return fmt.Sprintf(`Analyze the following competitive intelligence data and extract key insights for TCS executives.

Research Data:
%s

Extract insights in these categories:
1. Competitive Threats (immediate risks from competitor moves)
2. Market Opportunities (gaps TCS can exploit)
3. Strategic Trends (industry directions TCS should follow)
4. Action Items (specific steps TCS should take)

For each insight, provide:
- Title (10 words max)
- Description (50 words max)
- Business Impact (30 words max)
- Recommended Action (40 words max)
- Priority (high/medium/low)
- Timeline (immediate/short_term/long_term)

Format as JSON array with objects containing: insight_type, title, description, business_impact, recommended_action, priority, timeline

Insights:`, researchContext)
}

func buildOpportunitiesPrompt(researchContext string) string {
	return fmt.Sprintf(`Based on the competitive intelligence data below, identify market opportunities for TCS.

Research Data:
%s

Focus on:
- Underserved market segments
- Technology gaps competitors haven't addressed
- Geographic opportunities
- Service delivery innovations
- Partnership opportunities
- Emerging AI use cases

Provide 5-7 specific opportunities, each in 20-30 words.
Format as a numbered list.

Market Opportunities:`, researchContext)
}

func buildRecommendationsPrompt(researchContext string) string {
	return fmt.Sprintf(`Based on the competitive intelligence analysis, provide strategic recommendations for TCS leadership.

Research Data:
%s

Focus on:
- AI capability investments
- Market positioning strategies
- Partnership and acquisition targets
- Service portfolio adjustments
- Client engagement approaches
- Competitive differentiation

Provide 5-7 actionable recommendations with clear business rationale.
Each recommendation should be 25-35 words.
Format as a numbered list.

Strategic Recommendations:`, researchContext)
}
