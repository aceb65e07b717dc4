package activities

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tcsintel/intelgraph/internal/metrics"
	"github.com/tcsintel/intelgraph/internal/models"
)

// MarkSessionRunning moves a pending session into progress and primes the
// deep-research stage. Safe to retry: a session already in progress is left
// as it stands.
func (a *Activities) MarkSessionRunning(ctx context.Context, input MarkRunningInput) (MarkRunningResult, error) {
	a.logger.Info("Marking session running", zap.String("session_id", input.SessionID))

	updated, err := a.sessions.Update(ctx, input.SessionID, func(sess *models.Session) error {
		if sess.Status.IsTerminal() {
			return fmt.Errorf("session %s is already %s", sess.ID, sess.Status)
		}
		now := time.Now().UTC()
		if sess.Status.CanTransitionTo(models.StatusInProgress) {
			sess.Status = models.StatusInProgress
		}
		state := sess.AgentsState[models.AgentDeepResearch]
		if state == nil {
			return fmt.Errorf("session %s has no %s agent state", sess.ID, models.AgentDeepResearch)
		}
		if state.Status.CanTransitionTo(models.StatusInProgress) {
			state.Status = models.StatusInProgress
			t := now
			state.StartedAt = &t
		}
		state.ProgressPercentage = 0
		state.CurrentTask = "Initializing research"
		state.LastUpdated = now
		return nil
	})
	if err != nil {
		return MarkRunningResult{}, err
	}

	a.publishStatus(input.SessionID, updated.Status)
	state := updated.AgentsState[models.AgentDeepResearch]
	a.streams.Publish(input.SessionID, streamingAgentEvent(models.AgentDeepResearch, state))
	return MarkRunningResult{Status: updated.Status}, nil
}

// UpdateAgentProgress applies one agent state update and reports the
// effective progress after clamping.
func (a *Activities) UpdateAgentProgress(ctx context.Context, input ProgressInput) (ProgressResult, error) {
	updated, err := a.applyAgentUpdate(ctx, input)
	if err != nil {
		a.logger.Error("Failed to update agent progress",
			zap.String("session_id", input.SessionID),
			zap.String("agent", input.Agent),
			zap.Error(err),
		)
		return ProgressResult{}, err
	}
	state := updated.AgentsState[input.Agent]
	a.logger.Debug("Agent progress updated",
		zap.String("session_id", input.SessionID),
		zap.String("agent", input.Agent),
		zap.Int("progress", state.ProgressPercentage),
		zap.String("current_task", state.CurrentTask),
	)
	return ProgressResult{Progress: state.ProgressPercentage}, nil
}

// AppendSessionMessage records a transcript line, an error entry, or both.
func (a *Activities) AppendSessionMessage(ctx context.Context, input MessageInput) (MessageResult, error) {
	if input.Content == "" && input.Error == "" {
		return MessageResult{}, nil
	}

	role := input.Role
	if role == "" {
		role = "assistant"
	}

	updated, err := a.sessions.Update(ctx, input.SessionID, func(sess *models.Session) error {
		now := time.Now().UTC()
		if input.Content != "" {
			sess.AppendMessage(models.Message{Role: role, Content: input.Content, Timestamp: now})
		}
		if input.Error != "" {
			sess.ErrorMessages = append(sess.ErrorMessages, input.Error)
		}
		return nil
	})
	if err != nil {
		a.logger.Error("Failed to append session message",
			zap.String("session_id", input.SessionID),
			zap.Error(err),
		)
		return MessageResult{}, err
	}

	if input.Content != "" {
		a.publishMessage(input.SessionID, input.Content)
	}
	return MessageResult{Messages: len(updated.Messages)}, nil
}

// CompleteSession finalizes a session: completed when a report was stored,
// failed otherwise. Retrying a session that is already terminal changes
// nothing.
func (a *Activities) CompleteSession(ctx context.Context, input CompleteInput) (CompleteResult, error) {
	a.logger.Info("Completing session", zap.String("session_id", input.SessionID))

	var (
		alreadyTerminal bool
		finalMessage    string
		duration        float64
	)
	updated, err := a.sessions.Update(ctx, input.SessionID, func(sess *models.Session) error {
		if sess.Status.IsTerminal() {
			alreadyTerminal = true
			return nil
		}
		now := time.Now().UTC()
		if sess.Report != nil {
			sess.Status = models.StatusCompleted
			finalMessage = "Competitive intelligence workflow completed successfully"
		} else {
			sess.Status = models.StatusFailed
			finalMessage = fmt.Sprintf("Workflow completed with status: %s", models.StatusFailed)
		}
		t := now
		sess.CompletedAt = &t
		sess.AppendMessage(models.Message{Role: "assistant", Content: finalMessage, Timestamp: now})
		duration = now.Sub(sess.CreatedAt).Seconds()
		return nil
	})
	if err != nil {
		return CompleteResult{}, err
	}

	if !alreadyTerminal {
		metrics.RecordSessionOutcome(string(updated.Status), duration)
		metrics.SessionsActive.Dec()
		a.publishStatus(input.SessionID, updated.Status)
		a.publishMessage(input.SessionID, finalMessage)
		a.logger.Info("Session completed",
			zap.String("session_id", input.SessionID),
			zap.String("status", string(updated.Status)),
		)
	}
	return CompleteResult{Status: updated.Status}, nil
}

// FailSession marks a session failed, recording the error and the failing
// stage. Terminal sessions are left as they stand; the error entry is still
// informative on retries, so it is only written on the first pass.
func (a *Activities) FailSession(ctx context.Context, input FailInput) (FailResult, error) {
	a.logger.Error("Failing session",
		zap.String("session_id", input.SessionID),
		zap.String("agent", input.Agent),
		zap.String("error", input.Error),
	)

	var (
		alreadyTerminal bool
		duration        float64
	)
	updated, err := a.sessions.Update(ctx, input.SessionID, func(sess *models.Session) error {
		if sess.Status.IsTerminal() {
			alreadyTerminal = true
			return nil
		}
		now := time.Now().UTC()
		if input.Error != "" {
			sess.ErrorMessages = append(sess.ErrorMessages, input.Error)
		}
		if input.Agent != "" {
			if state := sess.AgentsState[input.Agent]; state != nil && !state.Status.IsTerminal() {
				state.Status = models.StatusFailed
				if input.Error != "" {
					state.ErrorMessage = input.Error
				}
				t := now
				state.CompletedAt = &t
				state.LastUpdated = now
			}
		}
		sess.Status = models.StatusFailed
		t := now
		sess.CompletedAt = &t
		sess.AppendMessage(models.Message{
			Role:      "assistant",
			Content:   fmt.Sprintf("Workflow completed with status: %s", models.StatusFailed),
			Timestamp: now,
		})
		duration = now.Sub(sess.CreatedAt).Seconds()
		return nil
	})
	if err != nil {
		return FailResult{}, err
	}

	if !alreadyTerminal {
		metrics.RecordSessionOutcome(string(models.StatusFailed), duration)
		metrics.SessionsActive.Dec()
		if input.Agent != "" {
			if state := updated.AgentsState[input.Agent]; state != nil {
				a.streams.Publish(input.SessionID, streamingAgentEvent(input.Agent, state))
			}
		}
		a.publishStatus(input.SessionID, updated.Status)
	}
	return FailResult{Status: updated.Status}, nil
}
