package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/config"
	"github.com/tcsintel/intelgraph/internal/metrics"
	"github.com/tcsintel/intelgraph/internal/models"
)

var tracer = otel.Tracer("intelgraph/gateway")

// Synthesis sub-step checkpoints. The caller owns the final compilation
// step and the terminal checkpoint.
const (
	taskSummary         = "Generating executive summary"
	taskInsights        = "Extracting key insights"
	taskOpportunities   = "Identifying market opportunities"
	taskRecommendations = "Generating strategic recommendations"
)

// ProgressFunc receives synthesis sub-step checkpoints so the caller can
// surface progress while the call is in flight.
type ProgressFunc func(percent int, task string)

// SynthesisRequest carries everything one synthesis pass needs.
type SynthesisRequest struct {
	Results    []models.CompetitorResult
	Focus      string
	OnProgress ProgressFunc
}

func (r SynthesisRequest) progress(percent int, task string) {
	if r.OnProgress != nil {
		r.OnProgress(percent, task)
	}
}

// AgentGateway is the boundary to the research agents. Both operations
// are slow, I/O bound and fallible; errors come back classified so the
// caller's retry policy can tell transient from permanent.
type AgentGateway interface {
	FetchResearch(ctx context.Context, competitor, focus string, maxAgeDays int) (*models.CompetitorResult, error)
	Synthesize(ctx context.Context, req SynthesisRequest) (*models.SynthesisOutput, error)
}

// OpenAIGateway implements AgentGateway over the OpenAI chat completions
// API.
type OpenAIGateway struct {
	client        *openai.Client
	model         string
	fallbackModel string
	maxTokens     int
	limiter       *Limiter
	logger        *zap.Logger
}

var _ AgentGateway = (*OpenAIGateway)(nil)

// NewOpenAIGateway builds the gateway from config. The API key may come
// from config or the OPENAI_API_KEY environment variable.
func NewOpenAIGateway(cfg config.OpenAIConfig, limiter *Limiter, logger *zap.Logger) (*OpenAIGateway, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not provided in config or OPENAI_API_KEY environment variable")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	if limiter == nil {
		limiter = NewLimiter(cfg.RateLimitFile, "openai", logger)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{
			Timeout: timeout,
		}),
		// Retries are owned by the activity retry policy; SDK retries on
		// top of it would multiply the wait.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIGateway{
		client:        &client,
		model:         model,
		fallbackModel: cfg.FallbackModel,
		maxTokens:     maxTokens,
		limiter:       limiter,
		logger:        logger,
	}, nil
}

// FetchResearch runs the deep-research pass for one competitor and parses
// the output into a structured result. A result with zero sources is
// returned as-is; the caller decides whether that is acceptable.
func (g *OpenAIGateway) FetchResearch(ctx context.Context, competitor, focus string, maxAgeDays int) (*models.CompetitorResult, error) {
	ctx, span := tracer.Start(ctx, "gateway.fetch_research",
		trace.WithAttributes(attribute.String("competitor", competitor)))
	defer span.End()

	prompt := buildResearchQuery(competitor, focus, maxAgeDays, time.Now())

	start := time.Now()
	content, err := g.completeWithFallback(ctx, prompt)
	metrics.RecordExternalCall(models.AgentDeepResearch, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "research call failed")
		return nil, fmt.Errorf("research %s: %w", competitor, err)
	}

	result := parseResearch(competitor, content, time.Now())
	g.logger.Info("Competitor research completed",
		zap.String("competitor", competitor),
		zap.Int("sources", len(result.Sources)),
		zap.Float64("confidence", result.ConfidenceScore))
	return &result, nil
}

// Synthesize runs the four synthesis passes over the aggregated results.
// Any pass failing fails the whole call; there is no degraded output.
func (g *OpenAIGateway) Synthesize(ctx context.Context, req SynthesisRequest) (*models.SynthesisOutput, error) {
	if len(req.Results) == 0 {
		return nil, errors.New("no research data available for synthesis")
	}

	ctx, span := tracer.Start(ctx, "gateway.synthesize",
		trace.WithAttributes(attribute.Int("competitors", len(req.Results))))
	defer span.End()

	researchContext := buildResearchContext(req.Results, req.Focus)
	out := &models.SynthesisOutput{}

	req.progress(20, taskSummary)
	summary, err := g.synthesisStep(ctx, "executive_summary", buildSummaryPrompt(researchContext))
	if err != nil {
		return nil, fmt.Errorf("executive summary: %w", err)
	}
	out.ExecutiveSummary = strings.TrimSpace(summary)
	if out.ExecutiveSummary == "" {
		return nil, errors.New("executive summary: model returned an empty completion")
	}

	req.progress(40, taskInsights)
	insightsText, err := g.synthesisStep(ctx, "key_insights", buildInsightsPrompt(researchContext))
	if err != nil {
		return nil, fmt.Errorf("key insights: %w", err)
	}
	out.KeyInsights = parseInsights(insightsText)

	req.progress(60, taskOpportunities)
	oppText, err := g.synthesisStep(ctx, "market_opportunities", buildOpportunitiesPrompt(researchContext))
	if err != nil {
		return nil, fmt.Errorf("market opportunities: %w", err)
	}
	out.MarketOpportunities = parseNumberedList(oppText)

	req.progress(80, taskRecommendations)
	recText, err := g.synthesisStep(ctx, "strategic_recommendations", buildRecommendationsPrompt(researchContext))
	if err != nil {
		return nil, fmt.Errorf("strategic recommendations: %w", err)
	}
	out.StrategicRecommendations = parseNumberedList(recText)

	g.logger.Info("Synthesis completed",
		zap.Int("insights", len(out.KeyInsights)),
		zap.Int("opportunities", len(out.MarketOpportunities)),
		zap.Int("recommendations", len(out.StrategicRecommendations)))
	return out, nil
}

func (g *OpenAIGateway) synthesisStep(ctx context.Context, step, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "gateway.synthesis_step",
		trace.WithAttributes(attribute.String("step", step)))
	defer span.End()

	start := time.Now()
	content, err := g.completeWithFallback(ctx, prompt)
	metrics.RecordExternalCall(models.AgentSynthesizer, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis step failed")
	}
	return content, err
}

// completeWithFallback tries the primary model, then the fallback model.
// The fallback covers model-availability failures as well as transient
// ones; only a dead context short-circuits it.
func (g *OpenAIGateway) completeWithFallback(ctx context.Context, prompt string) (string, error) {
	content, err := g.complete(ctx, g.model, prompt)
	if err == nil {
		return content, nil
	}
	if ctx.Err() != nil || g.fallbackModel == "" || g.fallbackModel == g.model {
		return "", err
	}

	g.logger.Warn("Primary model failed, trying fallback",
		zap.String("model", g.model),
		zap.String("fallback_model", g.fallbackModel),
		zap.Error(err))
	return g.complete(ctx, g.fallbackModel, prompt)
}

func (g *OpenAIGateway) complete(ctx context.Context, model, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx, g.maxTokens); err != nil {
		return "", err
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(int64(g.maxTokens)),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", model)
	}
	return completion.Choices[0].Message.Content, nil
}
