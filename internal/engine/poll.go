package engine

import (
	"context"
	"fmt"

	"botsync/internal/botapi"
	"botsync/internal/domain"
)

// PollActivities fetches the activities newer than the current
// watermark and routes them to the reconciler, or buffers them when the
// interface has not been opened yet. A call while a poll is already in
// flight is a silent no-op: the request is not queued and the caller
// must not assume it happened.
//
// The poll flow is cleared by the reconciler, not here, so a batch left
// buffered keeps the flow in flight until the interface opens.
func (e *Engine) PollActivities(ctx context.Context) error {
	ok, err := e.acquireFlow(ctx, domain.FlowPoll)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Debug("poll already in flight")
		return nil
	}

	snapshot, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	attempts := 0
	var set *botapi.ActivitySet
	for {
		s, pollErr := e.api.Poll(ctx, snapshot.ConversationID, snapshot.Watermark, e.cfg.TreatmentGroup)
		if pollErr == nil {
			set = s
			break
		}
		attempts++
		e.logger.Warn("poll request failed, retrying", "error", pollErr, "attempt", attempts)
		if e.cfg.Retry.exhausted(attempts) {
			return fmt.Errorf("poll activities: %w", pollErr)
		}
		if waitErr := e.cfg.Retry.wait(ctx); waitErr != nil {
			return waitErr
		}
	}

	// An empty batch goes straight to the reconciler: clearing the poll
	// flow must not depend on the activities array being non-empty.
	if len(set.Activities) == 0 {
		return e.Reconcile(ctx, set)
	}

	opened, err := e.store.GetFlag(ctx, domain.FlagInterfaceOpened)
	if err != nil {
		return err
	}
	if !opened {
		e.mu.Lock()
		e.buffered = set
		e.mu.Unlock()
		e.logger.Debug("interface not opened yet, buffering activities", "count", len(set.Activities))
		return nil
	}
	return e.Reconcile(ctx, set)
}

// OpenInterface consumes the "interface opened" signal. It marks the
// interface as opened and flushes the buffered welcome batch, if any:
// the entry typing indicator appears after a short delay, and after a
// further delay the batch is merged. The welcome message is fetched
// eagerly at startup but must not surface before the user opens the
// interface.
func (e *Engine) OpenInterface(ctx context.Context) error {
	if err := e.store.SetFlag(ctx, domain.FlagInterfaceOpened, true); err != nil {
		return err
	}

	e.mu.Lock()
	set := e.buffered
	e.buffered = nil
	e.mu.Unlock()
	if set == nil {
		return nil
	}

	if err := sleepCtx(ctx, e.cfg.EntryTypingDelay); err != nil {
		return err
	}
	e.display.SetTyping(true)
	if err := sleepCtx(ctx, e.cfg.InitialFlushDelay); err != nil {
		return err
	}
	return e.Reconcile(ctx, set)
}
