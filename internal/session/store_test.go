package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tcsintel/intelgraph/internal/circuitbreaker"
	"github.com/tcsintel/intelgraph/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	wrapper := circuitbreaker.NewRedisWrapper(client, "sessions", zaptest.NewLogger(t))
	return NewStore(wrapper, 24*time.Hour, 1024, zaptest.NewLogger(t))
}

func testParams() CreateParams {
	return CreateParams{
		Competitors:   []string{"Accenture", "IBM"},
		ResearchFocus: "AI narrative and strategic initiatives",
		MaxAgeDays:    60,
		MinSources:    3,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, testParams())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, []string{"Accenture", "IBM"}, created.Competitors)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	// Both pipeline agents exist from the start
	require.Contains(t, got.AgentsState, models.AgentDeepResearch)
	require.Contains(t, got.AgentsState, models.AgentSynthesizer)
	assert.Equal(t, models.StatusPending, got.AgentsState[models.AgentDeepResearch].Status)
}

func TestGetUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, testParams())
	require.NoError(t, err)

	first, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	first.Status = models.StatusFailed
	first.AgentsState[models.AgentDeepResearch].ProgressPercentage = 99

	second, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, second.Status)
	assert.Equal(t, 0, second.AgentsState[models.AgentDeepResearch].ProgressPercentage)
}

func TestUpdateAppliesAndPersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, testParams())
	require.NoError(t, err)

	updated, err := store.Update(ctx, created.ID, func(s *models.Session) error {
		s.Status = models.StatusInProgress
		s.AgentsState[models.AgentDeepResearch].Status = models.StatusInProgress
		s.AgentsState[models.AgentDeepResearch].ProgressPercentage = 40
		s.AgentsState[models.AgentDeepResearch].CurrentTask = "Researching Accenture"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, 40, updated.AgentsState[models.AgentDeepResearch].ProgressPercentage)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, "Researching Accenture", got.AgentsState[models.AgentDeepResearch].CurrentTask)
}

func TestUpdateUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Update(context.Background(), "no-such-id", func(s *models.Session) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProgressNeverMovesBackwards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, testParams())
	require.NoError(t, err)

	_, err = store.Update(ctx, created.ID, func(s *models.Session) error {
		s.AgentsState[models.AgentDeepResearch].ProgressPercentage = 50
		return nil
	})
	require.NoError(t, err)

	// A stale writer reporting lower progress is clamped to the high-water mark
	updated, err := store.Update(ctx, created.ID, func(s *models.Session) error {
		s.AgentsState[models.AgentDeepResearch].ProgressPercentage = 30
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 50, updated.AgentsState[models.AgentDeepResearch].ProgressPercentage)
}

func TestProgressClampedToRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, testParams())
	require.NoError(t, err)

	updated, err := store.Update(ctx, created.ID, func(s *models.Session) error {
		s.AgentsState[models.AgentDeepResearch].ProgressPercentage = 150
		s.AgentsState[models.AgentSynthesizer].ProgressPercentage = -10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.AgentsState[models.AgentDeepResearch].ProgressPercentage)
	assert.Equal(t, 0, updated.AgentsState[models.AgentSynthesizer].ProgressPercentage)
}

func TestAppendMessageCapsHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, testParams())
	require.NoError(t, err)

	for i := 0; i < models.MaxTranscriptMessages+5; i++ {
		err := store.AppendMessage(ctx, created.ID, models.Message{
			Role:      "system",
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, models.MaxTranscriptMessages)
	assert.Equal(t, fmt.Sprintf("message %d", models.MaxTranscriptMessages+4), got.Messages[len(got.Messages)-1].Content)
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, testParams())
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := store.Create(ctx, testParams())
	require.NoError(t, err)

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, first.ID, sessions[1].ID)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, testParams())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, created.ID))

	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, store.Delete(ctx, created.ID), ErrSessionNotFound)
}

func TestConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, testParams())
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(ctx, created.ID, func(s *models.Session) error {
				s.ErrorMessages = append(s.ErrorMessages, fmt.Sprintf("error %d", i))
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, got.ErrorMessages, writers)
}

func TestRedisOutageReadsMirrorWritesFail(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	wrapper := circuitbreaker.NewRedisWrapper(client, "sessions", zaptest.NewLogger(t))
	store := NewStore(wrapper, 24*time.Hour, 1024, zaptest.NewLogger(t))
	ctx := context.Background()

	sess, err := store.Create(ctx, testParams())
	require.NoError(t, err)

	mr.SetError("redis is down")

	// Reads keep serving the mirrored snapshot.
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	// Writes fail fast: the record never diverges from Redis.
	_, err = store.Update(ctx, sess.ID, func(s *models.Session) error {
		s.Status = models.StatusInProgress
		return nil
	})
	require.Error(t, err)

	mr.SetError("")
	after, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, after.Status, "failed update must not land")
}
