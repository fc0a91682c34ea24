package engine

import (
	"context"

	"botsync/internal/botapi"
	"botsync/internal/domain"
)

// Reconcile merges one poll response into the persisted snapshot:
// deduplicates by activity id, links user echoes to their pending
// outbound message, detects the terminal state, clears the poll flow,
// and advances the watermark. Re-merging a batch whose ids are all
// already processed leaves messages and watermark unchanged, which
// makes overlapping re-fetches safe.
func (e *Engine) Reconcile(ctx context.Context, set *botapi.ActivitySet) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	e.display.SetTyping(false)

	var staged []domain.Message
	for _, act := range set.Activities {
		if !act.IsMessage() || snapshot.Processed(act.ID) {
			continue
		}

		if act.FromBot() {
			e.display.DisplayMessage(act.Text, domain.FromBot)
			staged = append(staged, domain.Message{
				Text:       act.Text,
				From:       domain.FromBot,
				ActivityID: act.ID,
			})
			snapshot.MarkProcessed(act.ID)
		} else {
			// Server echo of our own message. The link step mutates
			// storage independently, so persist the staged state first
			// and reload afterwards.
			pending, err := e.store.PendingClientMsgID(ctx)
			if err != nil {
				return err
			}
			snapshot.Messages = append(snapshot.Messages, staged...)
			staged = nil
			if err := e.store.SaveSnapshot(ctx, snapshot); err != nil {
				return err
			}
			if err := e.linkLocked(ctx, act.ID, pending); err != nil {
				return err
			}
			snapshot, err = e.store.LoadSnapshot(ctx)
			if err != nil {
				return err
			}
		}

		if act.Terminal() {
			already, err := e.store.GetFlag(ctx, domain.FlagTerminalReached)
			if err != nil {
				return err
			}
			if err := e.store.SetFlag(ctx, domain.FlagTerminalReached, true); err != nil {
				return err
			}
			// Fire the finished signal only on the first transition so
			// re-merges and repeat terminal activities stay silent.
			if !already {
				e.logger.Info("conversation finished", "activity_id", act.ID)
				if e.cfg.OnFinished != nil {
					e.cfg.OnFinished()
				}
			}
		}
	}

	if err := e.releaseFlow(ctx, domain.FlowPoll); err != nil {
		return err
	}

	snapshot.AdvanceWatermark(set.Watermark)
	snapshot.Messages = append(snapshot.Messages, staged...)
	if err := e.store.SaveSnapshot(ctx, snapshot); err != nil {
		return err
	}
	return nil
}

// LinkUserMessage attaches a server-assigned activity id to the user
// message carrying the matching client message id and records the id as
// processed. Silent no-op when no message matches; that is the expected
// outcome when resumption cannot locate a pending message.
func (e *Engine) LinkUserMessage(ctx context.Context, activityID, clientMsgID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.linkLocked(ctx, activityID, clientMsgID)
}

func (e *Engine) linkLocked(ctx context.Context, activityID, clientMsgID string) error {
	snapshot, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	msg := snapshot.FindByClientMsgID(clientMsgID)
	if msg == nil {
		e.logger.Debug("no message matches pending client msg id",
			"activity_id", activityID,
			"client_msg_id", clientMsgID,
		)
		return nil
	}
	msg.ActivityID = activityID
	snapshot.MarkProcessed(activityID)
	return e.store.SaveSnapshot(ctx, snapshot)
}
