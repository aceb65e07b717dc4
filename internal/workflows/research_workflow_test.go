package workflows

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/tcsintel/intelgraph/internal/activities"
	"github.com/tcsintel/intelgraph/internal/constants"
	"github.com/tcsintel/intelgraph/internal/models"
)

// wfMocks stands in for the activity layer: every named activity the
// workflow executes is backed by one of these recorders.
type wfMocks struct {
	mu sync.Mutex

	fetch func(in activities.FetchInput) (activities.FetchResult, error)
	synth func(in activities.SynthesizeInput) (activities.SynthesizeResult, error)

	fetchCalls  map[string]int
	synthInputs []activities.SynthesizeInput
	progress    []activities.ProgressInput
	messages    []activities.MessageInput
	failInputs  []activities.FailInput
	completed   int
	archived    int
}

func newWFMocks() *wfMocks {
	return &wfMocks{fetchCalls: make(map[string]int)}
}

func (m *wfMocks) register(env *testsuite.TestWorkflowEnvironment) {
	reg := func(name string, fn interface{}) {
		env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}

	reg(constants.MarkSessionRunningActivity, func(ctx context.Context, in activities.MarkRunningInput) (activities.MarkRunningResult, error) {
		return activities.MarkRunningResult{Status: models.StatusInProgress}, nil
	})
	reg(constants.UpdateAgentProgressActivity, func(ctx context.Context, in activities.ProgressInput) (activities.ProgressResult, error) {
		m.mu.Lock()
		m.progress = append(m.progress, in)
		m.mu.Unlock()
		return activities.ProgressResult{Progress: in.Progress}, nil
	})
	reg(constants.AppendSessionMessageActivity, func(ctx context.Context, in activities.MessageInput) (activities.MessageResult, error) {
		m.mu.Lock()
		m.messages = append(m.messages, in)
		m.mu.Unlock()
		return activities.MessageResult{}, nil
	})
	reg(constants.FetchCompetitorResearchActivity, func(ctx context.Context, in activities.FetchInput) (activities.FetchResult, error) {
		m.mu.Lock()
		m.fetchCalls[in.Competitor]++
		m.mu.Unlock()
		return m.fetch(in)
	})
	reg(constants.SynthesizeReportActivity, func(ctx context.Context, in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
		m.mu.Lock()
		m.synthInputs = append(m.synthInputs, in)
		m.mu.Unlock()
		return m.synth(in)
	})
	reg(constants.CompleteSessionActivity, func(ctx context.Context, in activities.CompleteInput) (activities.CompleteResult, error) {
		m.mu.Lock()
		m.completed++
		m.mu.Unlock()
		return activities.CompleteResult{Status: models.StatusCompleted}, nil
	})
	reg(constants.FailSessionActivity, func(ctx context.Context, in activities.FailInput) (activities.FailResult, error) {
		m.mu.Lock()
		m.failInputs = append(m.failInputs, in)
		m.mu.Unlock()
		return activities.FailResult{Status: models.StatusFailed}, nil
	})
	reg(constants.ArchiveSessionActivity, func(ctx context.Context, in activities.ArchiveInput) (activities.ArchiveResult, error) {
		m.mu.Lock()
		m.archived++
		m.mu.Unlock()
		return activities.ArchiveResult{Archived: true}, nil
	})
}

func (m *wfMocks) totalFetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.fetchCalls {
		n += c
	}
	return n
}

func (m *wfMocks) errorEntries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.messages {
		if msg.Error != "" {
			out = append(out, msg.Error)
		}
	}
	return out
}

func fetchedResult(competitor string, sources int) activities.FetchResult {
	srcs := make([]models.ResearchSource, sources)
	for i := range srcs {
		srcs[i] = models.ResearchSource{
			URL:   fmt.Sprintf("https://example.com/%s/%d", competitor, i),
			Title: "coverage",
		}
	}
	return activities.FetchResult{
		Result: models.CompetitorResult{
			Competitor:        competitor,
			AINarrative:       competitor + " narrative",
			Sources:           srcs,
			ConfidenceScore:   0.8,
			ResearchTimestamp: time.Now().UTC(),
		},
	}
}

func runWorkflow(t *testing.T, m *wfMocks, input ResearchInput) (*ResearchOutput, error) {
	t.Helper()
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(ResearchWorkflow, workflow.RegisterOptions{Name: constants.ResearchWorkflowName})
	m.register(env)

	env.ExecuteWorkflow(constants.ResearchWorkflowName, input)
	require.True(t, env.IsWorkflowCompleted())
	if err := env.GetWorkflowError(); err != nil {
		return nil, err
	}
	var out ResearchOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	return &out, nil
}

func baseInput(competitors ...string) ResearchInput {
	return ResearchInput{
		SessionID:     "sess-1",
		Competitors:   competitors,
		ResearchFocus: "AI narrative and strategic initiatives",
		MaxAgeDays:    60,
		MinSources:    3,
	}
}

func TestWorkflowCompletesWithFreshResearch(t *testing.T) {
	m := newWFMocks()
	m.fetch = func(in activities.FetchInput) (activities.FetchResult, error) {
		if in.Competitor == "Accenture" {
			return fetchedResult("Accenture", 3), nil
		}
		return fetchedResult("IBM", 4), nil
	}
	m.synth = func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
		return activities.SynthesizeResult{
			ReportID:        "report-1",
			Insights:        5,
			Recommendations: 6,
			DataSources:     models.TotalSources(in.Results),
		}, nil
	}

	out, err := runWorkflow(t, m, baseInput("Accenture", "IBM"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, out.Status)
	assert.Equal(t, 2, out.ValidCompetitors)
	assert.Equal(t, 7, out.TotalSources)
	assert.Equal(t, "report-1", out.ReportID)

	assert.Equal(t, 2, m.totalFetches())
	require.Len(t, m.synthInputs, 1)
	assert.Len(t, m.synthInputs[0].Results, 2)
	assert.Equal(t, 7, models.TotalSources(m.synthInputs[0].Results))
	assert.Equal(t, 1, m.completed)
	assert.Equal(t, 1, m.archived)
	assert.Empty(t, m.failInputs)
	assert.Empty(t, m.errorEntries())
}

func TestWorkflowAbsorbsSingleCompetitorFailure(t *testing.T) {
	m := newWFMocks()
	m.fetch = func(in activities.FetchInput) (activities.FetchResult, error) {
		if in.Competitor == "IBM" {
			return activities.FetchResult{}, temporal.NewNonRetryableApplicationError(
				"research call failed", activities.ErrTypeResearchFailed, nil)
		}
		return fetchedResult("Accenture", 5), nil
	}
	m.synth = func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
		return activities.SynthesizeResult{ReportID: "report-1", DataSources: models.TotalSources(in.Results)}, nil
	}

	out, err := runWorkflow(t, m, baseInput("Accenture", "IBM"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, out.Status)
	assert.Equal(t, 1, out.ValidCompetitors)

	// One valid of two sits in the retry band: IBM is refetched once, then
	// the run proceeds with available data.
	m.mu.Lock()
	assert.Equal(t, 1, m.fetchCalls["Accenture"])
	assert.Equal(t, 2, m.fetchCalls["IBM"])
	m.mu.Unlock()

	require.Len(t, m.synthInputs, 1)
	assert.Len(t, m.synthInputs[0].Results, 1, "failed competitor is excluded, not zero-filled")
	assert.Equal(t, "Accenture", m.synthInputs[0].Results[0].Competitor)

	errs := m.errorEntries()
	require.Len(t, errs, 1, "a competitor fails at most one error entry per session")
	assert.Contains(t, errs[0], "IBM")
	assert.Equal(t, 1, m.completed)
}

func TestWorkflowFailsWhenSynthesisFails(t *testing.T) {
	m := newWFMocks()
	m.fetch = func(in activities.FetchInput) (activities.FetchResult, error) {
		return fetchedResult(in.Competitor, 3), nil
	}
	m.synth = func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
		return activities.SynthesizeResult{}, temporal.NewNonRetryableApplicationError(
			"model rejected the request", activities.ErrTypeSynthesisFailed, nil)
	}

	out, err := runWorkflow(t, m, baseInput("Accenture", "IBM"))
	require.NoError(t, err, "a synthesis failure marks the session failed, not the workflow")

	assert.Equal(t, models.StatusFailed, out.Status)
	require.Len(t, m.failInputs, 1)
	assert.Equal(t, models.AgentSynthesizer, m.failInputs[0].Agent)
	assert.Contains(t, m.failInputs[0].Error, "Synthesizer agent failed")
	assert.Zero(t, m.completed, "a failed session is never completed")
	assert.Equal(t, 1, m.archived)
}

func TestWorkflowFailsAtBarrierWithoutUsableData(t *testing.T) {
	m := newWFMocks()
	m.fetch = func(in activities.FetchInput) (activities.FetchResult, error) {
		return activities.FetchResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("no sources found for %s", in.Competitor), activities.ErrTypeNoResearchData, nil)
	}
	m.synth = func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
		return activities.SynthesizeResult{}, fmt.Errorf("synthesis must not run without usable research data")
	}

	out, err := runWorkflow(t, m, baseInput("Accenture", "IBM"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Zero(t, out.ValidCompetitors)
	require.Len(t, m.failInputs, 1)
	assert.Equal(t, models.AgentDeepResearch, m.failInputs[0].Agent)
	assert.Contains(t, m.failInputs[0].Error, "No research data found")
	assert.Empty(t, m.synthInputs)

	errs := m.errorEntries()
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.True(t, strings.HasPrefix(e, "Research failed for "), e)
	}
}

func TestWorkflowRejectsEmptyInput(t *testing.T) {
	m := newWFMocks()
	m.fetch = func(in activities.FetchInput) (activities.FetchResult, error) {
		return fetchedResult(in.Competitor, 3), nil
	}
	m.synth = func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
		return activities.SynthesizeResult{}, nil
	}

	_, err := runWorkflow(t, m, ResearchInput{SessionID: "sess-1"})
	require.Error(t, err)
	assert.Zero(t, m.totalFetches())
}

func TestWorkflowProgressReachesCompletion(t *testing.T) {
	m := newWFMocks()
	m.fetch = func(in activities.FetchInput) (activities.FetchResult, error) {
		return fetchedResult(in.Competitor, 3), nil
	}
	m.synth = func(in activities.SynthesizeInput) (activities.SynthesizeResult, error) {
		return activities.SynthesizeResult{ReportID: "report-1"}, nil
	}

	_, err := runWorkflow(t, m, baseInput("Accenture", "IBM", "Infosys"))
	require.NoError(t, err)

	var sawWrapUp, sawDone bool
	for _, p := range m.progress {
		if p.Agent != models.AgentDeepResearch {
			continue
		}
		if p.Progress == 90 {
			sawWrapUp = true
		}
		if p.Progress == 100 && p.Status == models.StatusCompleted {
			sawDone = true
		}
	}
	assert.True(t, sawWrapUp, "research stage reports the 90%% wrap-up step")
	assert.True(t, sawDone, "validation gate completes the research agent at 100%%")
}

func TestActivityOptionsFollowInputTuning(t *testing.T) {
	in := ResearchInput{
		ResearchTimeout:  10 * time.Minute,
		SynthesisTimeout: 8 * time.Minute,
		FetchRetry: RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 1.5,
			MaximumInterval:    45 * time.Second,
			MaximumAttempts:    4,
		},
	}

	fo := fetchActivityOptions(in)
	assert.Equal(t, 10*time.Minute, fo.StartToCloseTimeout)
	assert.Equal(t, time.Second, fo.RetryPolicy.InitialInterval)
	assert.Equal(t, 1.5, fo.RetryPolicy.BackoffCoefficient)
	assert.Equal(t, 45*time.Second, fo.RetryPolicy.MaximumInterval)
	assert.Equal(t, int32(4), fo.RetryPolicy.MaximumAttempts)

	so := synthesisActivityOptions(in)
	assert.Equal(t, 8*time.Minute, so.StartToCloseTimeout)
}

func TestActivityOptionsDefaultWhenUnset(t *testing.T) {
	fo := fetchActivityOptions(ResearchInput{})
	assert.Equal(t, 5*time.Minute, fo.StartToCloseTimeout)
	assert.Equal(t, 2*time.Second, fo.RetryPolicy.InitialInterval)
	assert.Equal(t, 2.0, fo.RetryPolicy.BackoffCoefficient)
	assert.Equal(t, 30*time.Second, fo.RetryPolicy.MaximumInterval)
	assert.Equal(t, int32(3), fo.RetryPolicy.MaximumAttempts)

	so := synthesisActivityOptions(ResearchInput{})
	assert.Equal(t, 15*time.Minute, so.StartToCloseTimeout)
	assert.Equal(t, int32(2), so.RetryPolicy.MaximumAttempts)
}
