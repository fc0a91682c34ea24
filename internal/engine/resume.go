package engine

import (
	"context"

	"botsync/internal/domain"
)

// Resume inspects the persisted flow states and restarts at most one
// interrupted flow. It runs once at startup, before any user action.
//
// Priority is fixed: start, then poll, then send. An in-flight poll
// outranks an in-flight send because the poll response may itself
// resolve the send (the agent may already have processed the message);
// retrying both would risk a duplicate transmission.
func (e *Engine) Resume(ctx context.Context) error {
	startState, err := e.store.FlowState(ctx, domain.FlowStart)
	if err != nil {
		return err
	}
	if startState == domain.FlowInFlight {
		if err := e.releaseFlow(ctx, domain.FlowStart); err != nil {
			return err
		}
		e.logger.Info("resuming interrupted conversation start")
		return e.StartConversation(ctx)
	}

	pollState, err := e.store.FlowState(ctx, domain.FlowPoll)
	if err != nil {
		return err
	}
	if pollState == domain.FlowInFlight {
		if err := e.releaseFlow(ctx, domain.FlowPoll); err != nil {
			return err
		}
		// When a send was interrupted too, the send is abandoned rather
		// than retried. The pending id stays put: the poll response may
		// carry the echo, and the reconciler uses the id to link it.
		sendState, err := e.store.FlowState(ctx, domain.FlowSend)
		if err != nil {
			return err
		}
		if sendState == domain.FlowInFlight {
			e.logger.Info("interrupted send superseded by interrupted poll")
			if err := e.releaseFlow(ctx, domain.FlowSend); err != nil {
				return err
			}
		}
		e.display.SetTyping(true)
		e.logger.Info("resuming interrupted poll")
		return e.PollActivities(ctx)
	}

	sendState, err := e.store.FlowState(ctx, domain.FlowSend)
	if err != nil {
		return err
	}
	if sendState == domain.FlowInFlight {
		pending, err := e.store.PendingClientMsgID(ctx)
		if err != nil {
			return err
		}
		snapshot, err := e.store.LoadSnapshot(ctx)
		if err != nil {
			return err
		}
		if err := e.releaseFlow(ctx, domain.FlowSend); err != nil {
			return err
		}
		msg := snapshot.FindByClientMsgID(pending)
		if msg == nil || msg.ActivityID != "" {
			// Already acknowledged, or nothing matches the persisted
			// id: clear the flow and do not retry.
			e.logger.Info("interrupted send needs no retry", "client_msg_id", pending)
			return nil
		}
		e.logger.Info("resuming interrupted send", "client_msg_id", pending)
		return e.SendUserMessage(ctx, msg.Text, pending)
	}

	return nil
}
