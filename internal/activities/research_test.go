package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/tcsintel/intelgraph/internal/cache"
	"github.com/tcsintel/intelgraph/internal/gateway"
	"github.com/tcsintel/intelgraph/internal/models"
)

// runFetch executes FetchCompetitorResearch inside an activity test
// environment so heartbeats have a real activity context.
func runFetch(t *testing.T, acts *Activities, input FetchInput) (FetchResult, error) {
	t.Helper()
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts.FetchCompetitorResearch)

	val, err := env.ExecuteActivity(acts.FetchCompetitorResearch, input)
	if err != nil {
		return FetchResult{}, err
	}
	var out FetchResult
	require.NoError(t, val.Get(&out))
	return out, nil
}

func fetchInput(sess *models.Session, competitor string, index int) FetchInput {
	return FetchInput{
		SessionID:     sess.ID,
		Competitor:    competitor,
		ResearchFocus: sess.ResearchFocus,
		MaxAgeDays:    sess.MaxAgeDays,
		MinSources:    sess.MinSourcesPerCompetitor,
		Index:         index,
		Total:         len(sess.Competitors),
	}
}

func TestFetchCompetitorResearchFresh(t *testing.T) {
	env := newTestEnv(t)
	sess := env.newSession(t)
	env.gateway.fetch = func(competitor string) (*models.CompetitorResult, error) {
		return researchResult(competitor, 3), nil
	}

	out, err := runFetch(t, env.acts, fetchInput(sess, "Accenture", 1))
	require.NoError(t, err)
	assert.False(t, out.FromCache)
	assert.Equal(t, "Accenture", out.Result.Competitor)
	assert.Len(t, out.Result.Sources, 3)

	fetches, _ := env.gateway.calls()
	assert.Equal(t, 1, fetches)

	got, err := env.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	state := got.AgentsState[models.AgentDeepResearch]
	assert.Equal(t, "Completed fresh research for Accenture - found 3 sources", state.CurrentTask)
	assert.Equal(t, 40, state.ProgressPercentage)

	// The fresh result is cached for the next session
	entry, err := env.cache.Get(context.Background(), cache.Key{Competitor: "Accenture", ResearchFocus: sess.ResearchFocus})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Len(t, entry.Sources, 3)
}

func TestFetchCompetitorResearchCached(t *testing.T) {
	env := newTestEnv(t)
	sess := env.newSession(t)
	env.gateway.fetch = func(competitor string) (*models.CompetitorResult, error) {
		return researchResult(competitor, 4), nil
	}

	first, err := runFetch(t, env.acts, fetchInput(sess, "Infosys", 0))
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := runFetch(t, env.acts, fetchInput(sess, "Infosys", 0))
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.True(t, second.Result.FromCache)
	assert.Len(t, second.Result.Sources, 4)

	fetches, _ := env.gateway.calls()
	assert.Equal(t, 1, fetches)

	got, err := env.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Used cached data for Infosys - 4 sources", got.AgentsState[models.AgentDeepResearch].CurrentTask)
}

func TestFetchCompetitorResearchNoSources(t *testing.T) {
	env := newTestEnv(t)
	sess := env.newSession(t)
	env.gateway.fetch = func(competitor string) (*models.CompetitorResult, error) {
		return researchResult(competitor, 0), nil
	}

	_, err := runFetch(t, env.acts, fetchInput(sess, "Accenture", 0))
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, ErrTypeNoResearchData, appErr.Type())

	got, err := env.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "No data found for Accenture", got.AgentsState[models.AgentDeepResearch].CurrentTask)

	// Nothing was cached: the next attempt hits the gateway again
	entry, err := env.cache.Get(context.Background(), cache.Key{Competitor: "Accenture", ResearchFocus: sess.ResearchFocus})
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = runFetch(t, env.acts, fetchInput(sess, "Accenture", 0))
	require.Error(t, err)
	fetches, _ := env.gateway.calls()
	assert.Equal(t, 2, fetches)
}

func TestFetchCompetitorResearchPermanentError(t *testing.T) {
	env := newTestEnv(t)
	sess := env.newSession(t)
	env.gateway.fetch = func(competitor string) (*models.CompetitorResult, error) {
		return nil, &gateway.PermanentError{Err: errors.New("research Accenture: status 401")}
	}

	_, err := runFetch(t, env.acts, fetchInput(sess, "Accenture", 0))
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, ErrTypeResearchFailed, appErr.Type())
	assert.Contains(t, appErr.Error(), "status 401")
}

func TestFetchCompetitorResearchTransientError(t *testing.T) {
	env := newTestEnv(t)
	sess := env.newSession(t)
	env.gateway.fetch = func(competitor string) (*models.CompetitorResult, error) {
		return nil, errors.New("research Accenture: status 503")
	}

	_, err := runFetch(t, env.acts, fetchInput(sess, "Accenture", 0))
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.False(t, appErr.NonRetryable())
}
