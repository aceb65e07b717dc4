// Package activities implements the Temporal activities behind the research
// workflow. Activities own all session, cache and gateway I/O; the workflow
// only sequences them.
package activities

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/cache"
	"github.com/tcsintel/intelgraph/internal/gateway"
	"github.com/tcsintel/intelgraph/internal/models"
	"github.com/tcsintel/intelgraph/internal/session"
	"github.com/tcsintel/intelgraph/internal/streaming"
)

// Archiver receives terminal sessions for durable archival. Enqueue must not
// block; a false return means the record was dropped.
type Archiver interface {
	Enqueue(sess *models.Session) bool
}

// Activities holds the dependencies shared by all workflow activities.
type Activities struct {
	sessions *session.Store
	cache    *cache.Store
	gateway  gateway.AgentGateway
	streams  *streaming.Manager
	archiver Archiver
	logger   *zap.Logger
}

// NewActivities creates an activities instance with its dependencies.
// archiver may be nil when archival is disabled.
func NewActivities(
	sessions *session.Store,
	cacheStore *cache.Store,
	gw gateway.AgentGateway,
	streams *streaming.Manager,
	archiver Archiver,
	logger *zap.Logger,
) *Activities {
	return &Activities{
		sessions: sessions,
		cache:    cacheStore,
		gateway:  gw,
		streams:  streams,
		archiver: archiver,
		logger:   logger,
	}
}

// applyAgentUpdate mutates one agent's state and publishes the streaming
// event once the write lands. Status transitions that would move backwards
// are dropped; terminal agent states are sticky. Progress never decreases,
// so task-only updates may pass zero.
func (a *Activities) applyAgentUpdate(ctx context.Context, in ProgressInput) (*models.Session, error) {
	updated, err := a.sessions.Update(ctx, in.SessionID, func(sess *models.Session) error {
		state, ok := sess.AgentsState[in.Agent]
		if !ok || state == nil {
			return fmt.Errorf("unknown agent %q", in.Agent)
		}
		now := time.Now().UTC()
		if in.Status != "" && in.Status != state.Status && state.Status.CanTransitionTo(in.Status) {
			state.Status = in.Status
			switch in.Status {
			case models.StatusInProgress:
				if state.StartedAt == nil {
					t := now
					state.StartedAt = &t
				}
			case models.StatusCompleted, models.StatusFailed:
				t := now
				state.CompletedAt = &t
			}
		}
		state.ProgressPercentage = in.Progress
		if in.CurrentTask != "" {
			state.CurrentTask = in.CurrentTask
		}
		if in.ErrorMessage != "" {
			state.ErrorMessage = in.ErrorMessage
		}
		state.LastUpdated = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.streams.Publish(in.SessionID, streamingAgentEvent(in.Agent, updated.AgentsState[in.Agent]))
	return updated, nil
}

// streamingAgentEvent renders an agent state as a stream event.
func streamingAgentEvent(agent string, state *models.AgentState) streaming.Event {
	return streaming.Event{
		Type:     streaming.EventAgentUpdate,
		Agent:    agent,
		Status:   string(state.Status),
		Progress: state.ProgressPercentage,
		Message:  state.CurrentTask,
	}
}

// noteProgress applies a best-effort agent state update. A progress write
// must never fail the stage doing the real work.
func (a *Activities) noteProgress(ctx context.Context, in ProgressInput) {
	if _, err := a.applyAgentUpdate(ctx, in); err != nil {
		a.logger.Warn("Failed to record agent progress",
			zap.String("session_id", in.SessionID),
			zap.String("agent", in.Agent),
			zap.Error(err),
		)
	}
}

// publishMessage mirrors a transcript line onto the session stream.
func (a *Activities) publishMessage(sessionID, content string) {
	a.streams.Publish(sessionID, streaming.Event{
		Type:    streaming.EventMessage,
		Message: content,
	})
}

// publishStatus mirrors a session status change onto the session stream.
func (a *Activities) publishStatus(sessionID string, status models.Status) {
	a.streams.Publish(sessionID, streaming.Event{
		Type:   streaming.EventSessionStatus,
		Status: string(status),
	})
}
