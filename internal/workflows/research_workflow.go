// Package workflows contains the Temporal workflow driving a research
// session: a deep-research stage fanning out per-competitor fetches, a
// validation gate over the gathered results, a synthesis stage producing the
// executive report, and finalization. Stages run in a fixed order through the
// Stage interface; all session mutation happens in activities so the workflow
// stays deterministic.
package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/tcsintel/intelgraph/internal/activities"
	"github.com/tcsintel/intelgraph/internal/constants"
	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/validation"
)

// DefaultMaxConcurrency bounds parallel competitor fetches when the input
// does not set a limit.
const DefaultMaxConcurrency = 3

// maxResearchRetries is how many times the validation gate may send the
// research stage back for competitors that produced no usable result.
const maxResearchRetries = 1

// ResearchInput starts one research session workflow. The session record must
// already exist; SessionID doubles as the workflow ID so duplicate starts for
// the same session collapse.
type ResearchInput struct {
	SessionID      string   `json:"session_id"`
	Competitors    []string `json:"competitors"`
	ResearchFocus  string   `json:"research_focus"`
	MaxAgeDays     int      `json:"max_age_days"`
	MinSources     int      `json:"min_sources"`
	MaxConcurrency int      `json:"max_concurrency,omitempty"`

	// Operator tuning for the long-running activities. Zero values fall
	// back to the built-in defaults, so histories started before a knob
	// existed replay unchanged.
	ResearchTimeout  time.Duration `json:"research_timeout,omitempty"`
	SynthesisTimeout time.Duration `json:"synthesis_timeout,omitempty"`
	FetchRetry       RetryPolicy   `json:"fetch_retry,omitempty"`
}

// RetryPolicy carries the configurable retry knobs for the per-competitor
// fetch activity. Zero fields keep the built-in defaults.
type RetryPolicy struct {
	InitialInterval    time.Duration `json:"initial_interval,omitempty"`
	BackoffCoefficient float64       `json:"backoff_coefficient,omitempty"`
	MaximumInterval    time.Duration `json:"maximum_interval,omitempty"`
	MaximumAttempts    int32         `json:"maximum_attempts,omitempty"`
}

// ResearchOutput summarizes the run. The full report lives on the session
// record; only counts travel through workflow history.
type ResearchOutput struct {
	SessionID        string        `json:"session_id"`
	Status           models.Status `json:"status"`
	ValidCompetitors int           `json:"valid_competitors"`
	TotalSources     int           `json:"total_sources"`
	ReportID         string        `json:"report_id,omitempty"`
	Insights         int           `json:"insights"`
	Recommendations  int           `json:"recommendations"`
}

// State is the working state threaded through the stages of one run.
type State struct {
	Input      ResearchInput
	Results    []models.CompetitorResult
	Gate       validation.GateResult
	RetryCount int
	Synthesis  activities.SynthesizeResult
	Status     models.Status

	// errorRecorded tracks competitors whose failure already produced an
	// error-log entry. A competitor fails at most one entry per session,
	// no matter how many gate retries it goes through.
	errorRecorded map[string]bool
}

// ResearchWorkflow runs the two-agent research pipeline for one session.
// Business failures (no usable research data, synthesis failure) mark the
// session failed and complete the workflow cleanly; only infrastructure
// errors and cancellation fail the workflow itself.
func ResearchWorkflow(ctx workflow.Context, input ResearchInput) (*ResearchOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting research workflow",
		"session_id", input.SessionID,
		"competitors", len(input.Competitors),
		"research_focus", input.ResearchFocus,
	)

	if input.SessionID == "" || len(input.Competitors) == 0 {
		return nil, fmt.Errorf("research workflow requires a session id and at least one competitor")
	}
	if input.MaxConcurrency <= 0 {
		input.MaxConcurrency = DefaultMaxConcurrency
	}

	ctx = workflow.WithActivityOptions(ctx, sessionActivityOptions())

	st := &State{Input: input}
	for _, stage := range pipeline() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := stage.Execute(ctx, st); err != nil {
			var serr *stageError
			if !errors.As(err, &serr) {
				return nil, err
			}
			logger.Error("Stage failed",
				"session_id", input.SessionID,
				"stage", stage.Name(),
				"error", serr.msg,
			)
			if ferr := failSession(ctx, st, serr); ferr != nil {
				return nil, ferr
			}
			archiveSession(ctx, input.SessionID)
			return output(st), nil
		}
	}

	logger.Info("Research workflow finished",
		"session_id", input.SessionID,
		"status", st.Status,
		"valid_competitors", st.Gate.ValidCompetitors,
	)
	return output(st), nil
}

func output(st *State) *ResearchOutput {
	return &ResearchOutput{
		SessionID:        st.Input.SessionID,
		Status:           st.Status,
		ValidCompetitors: st.Gate.ValidCompetitors,
		TotalSources:     st.Gate.TotalSources,
		ReportID:         st.Synthesis.ReportID,
		Insights:         st.Synthesis.Insights,
		Recommendations:  st.Synthesis.Recommendations,
	}
}

// failSession records a stage failure on the session: the failing agent flips
// to failed, the cause lands in the error log, the session goes terminal.
func failSession(ctx workflow.Context, st *State, serr *stageError) error {
	var res activities.FailResult
	err := workflow.ExecuteActivity(ctx, constants.FailSessionActivity, activities.FailInput{
		SessionID: st.Input.SessionID,
		Agent:     serr.agent,
		Error:     serr.msg,
	}).Get(ctx, &res)
	if err != nil {
		return err
	}
	st.Status = res.Status
	return nil
}

// sessionActivityOptions covers the quick session-record updates. These hit
// Redis only and retry aggressively.
func sessionActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	}
}

// fetchActivityOptions covers one competitor research call: cache check plus
// at most one gateway round trip per attempt. The activity heartbeats around
// the external call. Timeout and retry knobs come from the input.
func fetchActivityOptions(in ResearchInput) workflow.ActivityOptions {
	timeout := in.ResearchTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	rp := &temporal.RetryPolicy{
		InitialInterval:    2 * time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    3,
	}
	if in.FetchRetry.InitialInterval > 0 {
		rp.InitialInterval = in.FetchRetry.InitialInterval
	}
	if in.FetchRetry.BackoffCoefficient > 0 {
		rp.BackoffCoefficient = in.FetchRetry.BackoffCoefficient
	}
	if in.FetchRetry.MaximumInterval > 0 {
		rp.MaximumInterval = in.FetchRetry.MaximumInterval
	}
	if in.FetchRetry.MaximumAttempts > 0 {
		rp.MaximumAttempts = in.FetchRetry.MaximumAttempts
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    3 * time.Minute,
		RetryPolicy:         rp,
	}
}

// synthesisActivityOptions covers the four-step synthesis pass. Synthesis is
// expensive, so only one retry. The input timeout covers one attempt.
func synthesisActivityOptions(in ResearchInput) workflow.ActivityOptions {
	timeout := in.SynthesisTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    3 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    2,
		},
	}
}
