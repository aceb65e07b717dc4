package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/cache"
	"github.com/tcsintel/intelgraph/internal/gateway"
	"github.com/tcsintel/intelgraph/internal/metrics"
	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/validation"
)

// ErrNoSources marks a fresh fetch that produced no sources. Such a result
// is a failed contribution: it is never cached and never counts toward the
// research validation gate.
var ErrNoSources = errors.New("no sources found")

// Application error types research failures are tagged with. The workflow
// uses them to word the failure without parsing messages.
const (
	ErrTypeNoResearchData  = "NoResearchData"
	ErrTypeResearchFailed  = "ResearchFailed"
	ErrTypeSynthesisFailed = "SynthesisFailed"
)

// FetchCompetitorResearch resolves one competitor's research through the
// cache: an acceptable cached entry is reused as-is, otherwise the research
// gateway runs a fresh pass and the result is cached for the next session.
func (a *Activities) FetchCompetitorResearch(ctx context.Context, input FetchInput) (FetchResult, error) {
	log := a.logger.With(
		zap.String("session_id", input.SessionID),
		zap.String("competitor", input.Competitor),
	)
	log.Info("Fetching competitor research",
		zap.Int("max_age_days", input.MaxAgeDays),
		zap.Int("min_sources", input.MinSources),
	)

	progress := 0
	if input.Total > 0 {
		progress = int(float64(input.Index) / float64(input.Total) * 80)
	}
	note := func(task string) {
		a.noteProgress(ctx, ProgressInput{
			SessionID:   input.SessionID,
			Agent:       models.AgentDeepResearch,
			Progress:    progress,
			CurrentTask: task,
		})
	}

	note(fmt.Sprintf("Researching %s", input.Competitor))
	note(fmt.Sprintf("Checking cache for %s...", input.Competitor))
	activity.RecordHeartbeat(ctx, "cache_check")

	key := cache.Key{Competitor: input.Competitor, ResearchFocus: input.ResearchFocus}
	entry, fromCache, err := a.cache.GetOrFetch(ctx, key, input.MaxAgeDays, input.MinSources, func(fctx context.Context) (*cache.Entry, error) {
		note(fmt.Sprintf("Searching web sources for %s...", input.Competitor))
		activity.RecordHeartbeat(fctx, "fetching")

		fresh, err := a.gateway.FetchResearch(fctx, input.Competitor, input.ResearchFocus, input.MaxAgeDays)
		if err != nil {
			return nil, err
		}
		if len(fresh.Sources) == 0 {
			return nil, ErrNoSources
		}
		return cache.NewEntry(*fresh, cache.NormalizeFocus(input.ResearchFocus), input.MaxAgeDays, time.Now().UTC()), nil
	})
	if err != nil {
		metrics.RecordFetchOutcome("failed")
		if errors.Is(err, ErrNoSources) {
			note(fmt.Sprintf("No data found for %s", input.Competitor))
			log.Warn("Research produced no sources")
			return FetchResult{}, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("no sources found for %s", input.Competitor), ErrTypeNoResearchData, err)
		}
		log.Error("Competitor research failed", zap.Error(err))
		if gateway.IsPermanent(err) {
			return FetchResult{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeResearchFailed, err)
		}
		return FetchResult{}, err
	}

	result := entry.Result(fromCache)
	if fromCache {
		note(fmt.Sprintf("Used cached data for %s - %d sources", input.Competitor, len(result.Sources)))
		metrics.RecordFetchOutcome("cache_hit")
		log.Info("Using cached research",
			zap.Int("sources", len(result.Sources)),
			zap.Int("age_days", entry.AgeDays(time.Now())),
		)
	} else {
		note(fmt.Sprintf("Completed fresh research for %s - found %d sources", input.Competitor, len(result.Sources)))
		metrics.RecordFetchOutcome("fresh")
		log.Info("Fresh research completed",
			zap.Int("sources", len(result.Sources)),
			zap.Float64("confidence", result.ConfidenceScore),
		)

		validator := validation.NewResearchValidator([]string{input.Competitor}, input.MaxAgeDays, input.MinSources)
		if ok, findings, _ := validator.Validate([]models.CompetitorResult{result}, time.Now().UTC()); !ok {
			// Advisory only; weak data still feeds the validation gate.
			log.Warn("Research quality check flagged findings", zap.Strings("findings", findings))
		}
	}
	return FetchResult{Result: result, FromCache: fromCache}, nil
}
