package engine

import (
	"context"
	"fmt"

	"botsync/internal/domain"
)

// StartConversation performs the one-time handshake that allocates a
// conversation identifier, then triggers the first poll. A call while a
// start is already in flight is a no-op: the guard is an idempotent
// re-entry check, not a queue.
func (e *Engine) StartConversation(ctx context.Context) error {
	ok, err := e.acquireFlow(ctx, domain.FlowStart)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Debug("conversation start already in flight")
		return nil
	}

	attempts := 0
	var conversationID string
	for {
		id, startErr := e.api.Start(ctx, e.cfg.TreatmentGroup)
		if startErr == nil {
			conversationID = id
			break
		}
		attempts++
		e.logger.Warn("start request failed, retrying", "error", startErr, "attempt", attempts)
		if e.cfg.Retry.exhausted(attempts) {
			return fmt.Errorf("start conversation: %w", startErr)
		}
		if waitErr := e.cfg.Retry.wait(ctx); waitErr != nil {
			return waitErr
		}
	}

	if err := e.releaseFlow(ctx, domain.FlowStart); err != nil {
		return err
	}

	e.mu.Lock()
	snapshot, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	snapshot.ConversationID = conversationID
	if err := e.store.SaveSnapshot(ctx, snapshot); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.logger.Info("conversation started", "conversation_id", conversationID)
	return e.PollActivities(ctx)
}
