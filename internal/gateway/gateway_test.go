package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tcsintel/intelgraph/internal/config"
	"github.com/tcsintel/intelgraph/internal/models"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func decodeChatRequest(t *testing.T, r *http.Request) chatRequest {
	t.Helper()
	var req chatRequest
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func writeChatResponse(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index": 0,
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
			"finish_reason": "stop",
		}},
	}
	assert.NoError(t, json.NewEncoder(w).Encode(resp))
}

func writeChatError(t *testing.T, w http.ResponseWriter, status int, msg string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "test_error",
		},
	}))
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) *OpenAIGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	g, err := NewOpenAIGateway(config.OpenAIConfig{
		APIKey:        "test-key",
		BaseURL:       srv.URL,
		Model:         "gpt-4o",
		FallbackModel: "gpt-4o-mini",
		Timeout:       5 * time.Second,
		MaxTokens:     4000,
	}, NewLimiterWithLimits(600000, 60000000, logger), logger)
	require.NoError(t, err)
	return g
}

func TestFetchResearchParsesCompletion(t *testing.T) {
	var gotReq chatRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotReq = decodeChatRequest(t, r)
		writeChatResponse(t, w, researchFixture)
	})

	result, err := g.FetchResearch(context.Background(), "Accenture", "AI narrative", 60)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Contains(t, gotReq.Messages[0].Content, "Research Accenture's AI strategy")
	assert.Contains(t, gotReq.Messages[0].Content, "Research focus: AI narrative")

	assert.Equal(t, "Accenture", result.Competitor)
	assert.Len(t, result.Sources, 2)
	assert.InDelta(t, 0.8, result.ConfidenceScore, 1e-9)
	assert.False(t, result.FromCache)
}

func TestFetchResearchFallsBackToSecondaryModel(t *testing.T) {
	var (
		mu     sync.Mutex
		called []string
	)
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeChatRequest(t, r)
		mu.Lock()
		called = append(called, req.Model)
		mu.Unlock()

		if req.Model == "gpt-4o" {
			writeChatError(t, w, http.StatusInternalServerError, "primary down")
			return
		}
		writeChatResponse(t, w, researchFixture)
	})

	result, err := g.FetchResearch(context.Background(), "Accenture", "", 30)
	require.NoError(t, err)
	assert.Len(t, result.Sources, 2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, called)
}

func TestFetchResearchErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantPermanent bool
	}{
		{name: "unauthorized is permanent", status: http.StatusUnauthorized, wantPermanent: true},
		{name: "bad request is permanent", status: http.StatusBadRequest, wantPermanent: true},
		{name: "rate limited is transient", status: http.StatusTooManyRequests, wantPermanent: false},
		{name: "server error is transient", status: http.StatusInternalServerError, wantPermanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				writeChatError(t, w, tt.status, "nope")
			})

			_, err := g.FetchResearch(context.Background(), "IBM", "", 30)
			require.Error(t, err)
			assert.Equal(t, tt.wantPermanent, IsPermanent(err))
		})
	}
}

func TestFetchResearchEmptyCompletion(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeChatResponse(t, w, "")
	})

	result, err := g.FetchResearch(context.Background(), "Cognizant", "", 30)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.ConfidenceScore, 1e-9)
	assert.Empty(t, result.Sources)
}

func TestSynthesizeRunsFourStepsWithProgress(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			writeChatResponse(t, w, "  TCS faces intensifying GenAI competition across every major account. ")
		case 2:
			writeChatResponse(t, w, insightsFixture)
		case 3:
			writeChatResponse(t, w, listFixture)
		default:
			writeChatResponse(t, w, "1. Accelerate sovereign AI investments in Europe to counter Accenture's delivery scale advantage")
		}
	})

	type checkpoint struct {
		percent int
		task    string
	}
	var seen []checkpoint

	results := []models.CompetitorResult{
		{Competitor: "Accenture", AINarrative: "GenAI at scale", ConfidenceScore: 0.8},
		{Competitor: "IBM", AINarrative: "watsonx", ConfidenceScore: 0.6},
	}
	out, err := g.Synthesize(context.Background(), SynthesisRequest{
		Results: results,
		Focus:   "AI narrative",
		OnProgress: func(percent int, task string) {
			seen = append(seen, checkpoint{percent, task})
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []checkpoint{
		{20, "Generating executive summary"},
		{40, "Extracting key insights"},
		{60, "Identifying market opportunities"},
		{80, "Generating strategic recommendations"},
	}, seen)

	assert.Equal(t, "TCS faces intensifying GenAI competition across every major account.", out.ExecutiveSummary)
	assert.Len(t, out.KeyInsights, 2)
	assert.Len(t, out.MarketOpportunities, 3)
	require.Len(t, out.StrategicRecommendations, 1)
	assert.Contains(t, out.StrategicRecommendations[0], "sovereign AI investments")
}

func TestSynthesizeEmptyResultsFails(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeChatResponse(t, w, "unused")
	})

	_, err := g.Synthesize(context.Background(), SynthesisRequest{})
	require.ErrorContains(t, err, "no research data available for synthesis")
	assert.Equal(t, int32(0), calls.Load())
}

func TestSynthesizeStepFailureAborts(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeChatResponse(t, w, "A solid executive summary of the landscape.")
			return
		}
		writeChatError(t, w, http.StatusInternalServerError, "insights backend down")
	})

	var percents []int
	_, err := g.Synthesize(context.Background(), SynthesisRequest{
		Results:    []models.CompetitorResult{{Competitor: "Accenture"}},
		OnProgress: func(percent int, _ string) { percents = append(percents, percent) },
	})

	require.ErrorContains(t, err, "key insights")
	// Summary succeeded (1 call), insights failed on primary and fallback (2 more).
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{20, 40}, percents)
}
