package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/gateway"
	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/report"
	"github.com/tcsintel/intelgraph/internal/validation"
)

// SynthesizeReport runs the synthesis stage over the aggregated research,
// assembles the executive report and stores it on the session. Only counts
// travel back; the report is read from the session record.
func (a *Activities) SynthesizeReport(ctx context.Context, input SynthesizeInput) (SynthesizeResult, error) {
	log := a.logger.With(zap.String("session_id", input.SessionID))
	log.Info("Starting synthesis", zap.Int("competitors", len(input.Results)))

	if len(input.Results) == 0 {
		return SynthesizeResult{}, temporal.NewNonRetryableApplicationError(
			"No research data available for synthesis", ErrTypeSynthesisFailed, nil)
	}

	a.noteProgress(ctx, ProgressInput{
		SessionID:   input.SessionID,
		Agent:       models.AgentSynthesizer,
		Status:      models.StatusInProgress,
		Progress:    0,
		CurrentTask: "Analyzing research data",
	})

	synth, err := a.gateway.Synthesize(ctx, gateway.SynthesisRequest{
		Results: input.Results,
		Focus:   input.ResearchFocus,
		OnProgress: func(percent int, task string) {
			a.noteProgress(ctx, ProgressInput{
				SessionID:   input.SessionID,
				Agent:       models.AgentSynthesizer,
				Progress:    percent,
				CurrentTask: task,
			})
			activity.RecordHeartbeat(ctx, task)
		},
	})
	if err != nil {
		log.Error("Synthesis failed", zap.Error(err))
		if gateway.IsPermanent(err) {
			return SynthesizeResult{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeSynthesisFailed, err)
		}
		return SynthesizeResult{}, err
	}

	a.noteProgress(ctx, ProgressInput{
		SessionID:   input.SessionID,
		Agent:       models.AgentSynthesizer,
		Progress:    90,
		CurrentTask: "Compiling final report",
	})

	rep := report.Assemble(input.SessionID, input.ResearchFocus, input.Results, *synth, input.TimeframeDays, time.Now().UTC())
	if ok, findings, reportMetrics := validation.ValidateReport(rep); !ok {
		// Quality findings are advisory; a thin report still completes the
		// session.
		log.Warn("Report quality check flagged findings",
			zap.Strings("findings", findings),
			zap.Float64("avg_insight_quality", reportMetrics.AvgInsightQuality),
		)
	}

	updated, err := a.sessions.Update(ctx, input.SessionID, func(sess *models.Session) error {
		sess.Report = rep
		state, ok := sess.AgentsState[models.AgentSynthesizer]
		if !ok || state == nil {
			return fmt.Errorf("unknown agent %q", models.AgentSynthesizer)
		}
		now := time.Now().UTC()
		if state.Status.CanTransitionTo(models.StatusCompleted) {
			state.Status = models.StatusCompleted
			t := now
			state.CompletedAt = &t
		}
		state.ProgressPercentage = 100
		state.CurrentTask = "Synthesis completed"
		state.LastUpdated = now
		return nil
	})
	if err != nil {
		return SynthesizeResult{}, fmt.Errorf("failed to store report: %w", err)
	}

	a.streams.Publish(input.SessionID, streamingAgentEvent(models.AgentSynthesizer, updated.AgentsState[models.AgentSynthesizer]))
	log.Info("Report stored",
		zap.String("report_id", rep.ReportID),
		zap.Int("insights", len(rep.KeyInsights)),
		zap.Int("recommendations", len(rep.StrategicRecommendations)),
		zap.Int("data_sources", rep.DataSourcesCount),
	)

	return SynthesizeResult{
		ReportID:        rep.ReportID,
		Insights:        len(rep.KeyInsights),
		Recommendations: len(rep.StrategicRecommendations),
		DataSources:     rep.DataSourcesCount,
	}, nil
}
