package workflows

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/tcsintel/intelgraph/internal/activities"
	"github.com/tcsintel/intelgraph/internal/constants"
	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/validation"
)

// Stage is one step of the research pipeline. Stages run in registry order;
// a stageError marks the session failed while any other error fails the
// workflow itself.
type Stage interface {
	Name() string
	Execute(ctx workflow.Context, st *State) error
}

func pipeline() []Stage {
	return []Stage{
		researchStage{},
		validateStage{},
		synthesisStage{},
		finalizeStage{},
	}
}

// stageError is a business failure attributable to one agent. The workflow
// records it on the session and completes cleanly.
type stageError struct {
	agent string
	msg   string
	cause error
}

func (e *stageError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.agent, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.agent, e.msg)
}

func (e *stageError) Unwrap() error { return e.cause }

// researchStage marks the session running and fans out one fetch activity per
// competitor. Individual failures are absorbed; the stage itself only fails
// on infrastructure errors or cancellation. The deep-research agent is left
// at 90% here: the validation gate owns its completion.
type researchStage struct{}

func (researchStage) Name() string { return "deep_research" }

func (researchStage) Execute(ctx workflow.Context, st *State) error {
	var marked activities.MarkRunningResult
	err := workflow.ExecuteActivity(ctx, constants.MarkSessionRunningActivity, activities.MarkRunningInput{
		SessionID: st.Input.SessionID,
	}).Get(ctx, &marked)
	if err != nil {
		return err
	}

	results, err := fetchCompetitors(ctx, st, st.Input.Competitors)
	if err != nil {
		return err
	}
	st.Results = results

	if err := updateAgent(ctx, activities.ProgressInput{
		SessionID:   st.Input.SessionID,
		Agent:       models.AgentDeepResearch,
		Progress:    90,
		CurrentTask: "Processing research results",
	}); err != nil {
		return err
	}
	appendMessage(ctx, st.Input.SessionID, researchDoneMessage(st.Results))
	return nil
}

// validateStage gates synthesis on the quality of the gathered results. A
// retry decision refetches the competitors without a usable result once;
// a fail decision fails the deep-research agent at the barrier.
type validateStage struct{}

func (validateStage) Name() string { return "validate" }

func (validateStage) Execute(ctx workflow.Context, st *State) error {
	logger := workflow.GetLogger(ctx)
	for {
		gate := validation.EvaluateResearchGate(st.Results, len(st.Input.Competitors))
		st.Gate = gate
		if gate.Message != "" {
			appendMessage(ctx, st.Input.SessionID, gate.Message)
		}

		switch gate.Decision {
		case validation.DecisionProceed:
			return completeResearch(ctx, st)

		case validation.DecisionRetry:
			targets := retryTargets(st)
			if st.RetryCount >= maxResearchRetries || len(targets) == 0 {
				appendMessage(ctx, st.Input.SessionID, "Maximum retries reached, proceeding with available data")
				return completeResearch(ctx, st)
			}
			st.RetryCount++
			logger.Info("Retrying research for competitors without usable results",
				"session_id", st.Input.SessionID,
				"retry", st.RetryCount,
				"competitors", len(targets),
			)
			fresh, err := fetchCompetitors(ctx, st, targets)
			if err != nil {
				return err
			}
			st.Results = mergeResults(st.Results, fresh)
			appendMessage(ctx, st.Input.SessionID, researchDoneMessage(st.Results))

		case validation.DecisionFail:
			return &stageError{agent: models.AgentDeepResearch, msg: gate.Reason}
		}
	}
}

// completeResearch flips the deep-research agent to completed once the gate
// has let the results through.
func completeResearch(ctx workflow.Context, st *State) error {
	return updateAgent(ctx, activities.ProgressInput{
		SessionID:   st.Input.SessionID,
		Agent:       models.AgentDeepResearch,
		Status:      models.StatusCompleted,
		Progress:    100,
		CurrentTask: "Research completed",
	})
}

// synthesisStage turns the gathered research into the executive report. Any
// synthesis failure is fatal for the session.
type synthesisStage struct{}

func (synthesisStage) Name() string { return "synthesizer" }

func (synthesisStage) Execute(ctx workflow.Context, st *State) error {
	sctx := workflow.WithActivityOptions(ctx, synthesisActivityOptions(st.Input))
	var res activities.SynthesizeResult
	err := workflow.ExecuteActivity(sctx, constants.SynthesizeReportActivity, activities.SynthesizeInput{
		SessionID:     st.Input.SessionID,
		ResearchFocus: st.Input.ResearchFocus,
		Results:       st.Results,
		TimeframeDays: st.Input.MaxAgeDays,
	}).Get(sctx, &res)
	if err != nil {
		msg, _ := failureMessage(err)
		return &stageError{
			agent: models.AgentSynthesizer,
			msg:   "Synthesizer agent failed: " + msg,
			cause: err,
		}
	}
	st.Synthesis = res

	appendMessage(ctx, st.Input.SessionID, fmt.Sprintf(
		"Executive report generated with %d insights and %d recommendations",
		res.Insights, res.Recommendations,
	))
	return nil
}

// finalizeStage lands the terminal status and hands the record to the
// archive queue.
type finalizeStage struct{}

func (finalizeStage) Name() string { return "finalize" }

func (finalizeStage) Execute(ctx workflow.Context, st *State) error {
	var res activities.CompleteResult
	err := workflow.ExecuteActivity(ctx, constants.CompleteSessionActivity, activities.CompleteInput{
		SessionID: st.Input.SessionID,
	}).Get(ctx, &res)
	if err != nil {
		return err
	}
	st.Status = res.Status
	archiveSession(ctx, st.Input.SessionID)
	return nil
}

type fetchOutcome struct {
	Index      int
	Competitor string
	Result     models.CompetitorResult
	FromCache  bool
	Err        error
}

// fetchCompetitors runs the research activity for each competitor with
// bounded parallelism. Individual failures are recorded on the session and
// absorbed; the returned slice holds the usable results in roster order.
// The error return is reserved for cancellation.
func fetchCompetitors(ctx workflow.Context, st *State, competitors []string) ([]models.CompetitorResult, error) {
	logger := workflow.GetLogger(ctx)
	total := len(st.Input.Competitors)
	sem := workflow.NewSemaphore(ctx, int64(st.Input.MaxConcurrency))
	outcomes := workflow.NewChannel(ctx)

	fctx := workflow.WithActivityOptions(ctx, fetchActivityOptions(st.Input))
	for i, competitor := range competitors {
		i := i
		competitor := competitor
		workflow.Go(fctx, func(gctx workflow.Context) {
			if err := sem.Acquire(gctx, 1); err != nil {
				outcomes.Send(gctx, fetchOutcome{Index: i, Competitor: competitor, Err: err})
				return
			}
			if gctx.Err() != nil {
				sem.Release(1)
				outcomes.Send(gctx, fetchOutcome{Index: i, Competitor: competitor, Err: gctx.Err()})
				return
			}
			var res activities.FetchResult
			err := workflow.ExecuteActivity(gctx, constants.FetchCompetitorResearchActivity, activities.FetchInput{
				SessionID:     st.Input.SessionID,
				Competitor:    competitor,
				ResearchFocus: st.Input.ResearchFocus,
				MaxAgeDays:    st.Input.MaxAgeDays,
				MinSources:    st.Input.MinSources,
				Index:         i,
				Total:         total,
			}).Get(gctx, &res)
			sem.Release(1)
			outcomes.Send(gctx, fetchOutcome{
				Index:      i,
				Competitor: competitor,
				Result:     res.Result,
				FromCache:  res.FromCache,
				Err:        err,
			})
		})
	}

	// The synthesis barrier: every competitor must reach a terminal outcome
	// before this loop exits.
	slots := make([]*models.CompetitorResult, len(competitors))
	offset := total - len(competitors)
	for done := 1; done <= len(competitors); done++ {
		var out fetchOutcome
		outcomes.Receive(ctx, &out)
		if out.Err != nil {
			if ctx.Err() != nil {
				continue
			}
			msg, errType := failureMessage(out.Err)
			logger.Warn("Competitor research failed",
				"session_id", st.Input.SessionID,
				"competitor", out.Competitor,
				"error", msg,
			)
			task := fmt.Sprintf("Research failed for %s", out.Competitor)
			if errType == activities.ErrTypeNoResearchData {
				// The activity already set the no-data task for this one.
				task = ""
			}
			updateAgent(ctx, activities.ProgressInput{
				SessionID:   st.Input.SessionID,
				Agent:       models.AgentDeepResearch,
				Progress:    fetchProgress(offset+done, total),
				CurrentTask: task,
			})
			if st.errorRecorded == nil {
				st.errorRecorded = make(map[string]bool)
			}
			if !st.errorRecorded[out.Competitor] {
				st.errorRecorded[out.Competitor] = true
				appendError(ctx, st.Input.SessionID, fmt.Sprintf("Research failed for %s: %s", out.Competitor, msg))
			}
			continue
		}
		slots[out.Index] = &out.Result
		updateAgent(ctx, activities.ProgressInput{
			SessionID: st.Input.SessionID,
			Agent:     models.AgentDeepResearch,
			Progress:  fetchProgress(offset+done, total),
		})
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	results := make([]models.CompetitorResult, 0, len(competitors))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

func fetchProgress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(done) / float64(total) * 80)
}

// retryTargets lists the competitors that still lack a usable result, in
// roster order.
func retryTargets(st *State) []string {
	usable := make(map[string]bool, len(st.Results))
	for _, r := range st.Results {
		if r.ConfidenceScore >= validation.MinUsableConfidence {
			usable[r.Competitor] = true
		}
	}
	var targets []string
	for _, c := range st.Input.Competitors {
		if !usable[c] {
			targets = append(targets, c)
		}
	}
	return targets
}

// mergeResults folds retry results into the existing set, replacing stale
// entries for the same competitor.
func mergeResults(existing, fresh []models.CompetitorResult) []models.CompetitorResult {
	for _, f := range fresh {
		replaced := false
		for i := range existing {
			if existing[i].Competitor == f.Competitor {
				existing[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, f)
		}
	}
	return existing
}

func researchDoneMessage(results []models.CompetitorResult) string {
	return fmt.Sprintf("Deep research completed for %d competitors with %d total sources",
		len(results), models.TotalSources(results))
}

// failureMessage unwraps an activity error into its application message and
// error type.
func failureMessage(err error) (string, string) {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message(), appErr.Type()
	}
	return err.Error(), ""
}

// updateAgent pushes one agent-state update. Failures are logged and
// returned; callers on the hot path ignore them.
func updateAgent(ctx workflow.Context, in activities.ProgressInput) error {
	var res activities.ProgressResult
	err := workflow.ExecuteActivity(ctx, constants.UpdateAgentProgressActivity, in).Get(ctx, &res)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Agent progress update failed",
			"session_id", in.SessionID,
			"agent", in.Agent,
			"error", err,
		)
	}
	return err
}

// appendMessage adds a transcript line, best effort.
func appendMessage(ctx workflow.Context, sessionID, content string) {
	var res activities.MessageResult
	err := workflow.ExecuteActivity(ctx, constants.AppendSessionMessageActivity, activities.MessageInput{
		SessionID: sessionID,
		Content:   content,
	}).Get(ctx, &res)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Failed to append session message",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// appendError adds an entry to the session's error log, best effort.
func appendError(ctx workflow.Context, sessionID, errMsg string) {
	var res activities.MessageResult
	err := workflow.ExecuteActivity(ctx, constants.AppendSessionMessageActivity, activities.MessageInput{
		SessionID: sessionID,
		Error:     errMsg,
	}).Get(ctx, &res)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Failed to append session error",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// archiveSession queues the terminal session for archival, best effort.
func archiveSession(ctx workflow.Context, sessionID string) {
	var res activities.ArchiveResult
	err := workflow.ExecuteActivity(ctx, constants.ArchiveSessionActivity, activities.ArchiveInput{
		SessionID: sessionID,
	}).Get(ctx, &res)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Session archive failed",
			"session_id", sessionID,
			"error", err,
		)
	}
}
