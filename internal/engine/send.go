package engine

import (
	"context"
	"errors"
	"fmt"

	"botsync/internal/botapi"
	"botsync/internal/domain"

	"github.com/google/uuid"
)

// ComposeUserMessage appends a user message to the local history,
// displays it, and returns its freshly generated client message id.
// This happens before any network activity: the message stays visible
// even when the subsequent send is dropped.
func (e *Engine) ComposeUserMessage(ctx context.Context, text string) (string, error) {
	clientMsgID := uuid.New().String()

	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return "", err
	}
	snapshot.Messages = append(snapshot.Messages, domain.Message{
		Text:        text,
		From:        domain.FromUser,
		ClientMsgID: clientMsgID,
	})
	if err := e.store.SaveSnapshot(ctx, snapshot); err != nil {
		return "", err
	}
	e.display.DisplayMessage(text, domain.FromUser)
	return clientMsgID, nil
}

// SendUserMessage delivers one outbound user message and retries until
// the server assigns it an activity id. A call while a send or a poll
// is in flight returns without transmitting anything: the message stays
// visible locally but is deliberately dropped, not queued. An ambiguous
// transport failure also stops the attempt, accepting possible loss
// over a possible duplicate.
func (e *Engine) SendUserMessage(ctx context.Context, text, clientMsgID string) error {
	// Optimistic: the indicator goes up before any network attempt.
	e.display.SetTyping(true)

	terminal, err := e.store.GetFlag(ctx, domain.FlagTerminalReached)
	if err != nil {
		return err
	}
	if terminal {
		e.logger.Info("conversation finished, dropping outbound message", "client_msg_id", clientMsgID)
		e.display.SetTyping(false)
		return nil
	}

	pollState, err := e.store.FlowState(ctx, domain.FlowPoll)
	if err != nil {
		return err
	}
	if pollState == domain.FlowInFlight {
		e.logger.Debug("poll in flight, dropping outbound message", "client_msg_id", clientMsgID)
		return nil
	}
	ok, err := e.acquireFlow(ctx, domain.FlowSend)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Debug("send already in flight, dropping outbound message", "client_msg_id", clientMsgID)
		return nil
	}
	if err := e.store.SetPendingClientMsgID(ctx, clientMsgID); err != nil {
		return err
	}

	snapshot, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	attempts := 0
	var assignedID string
	for {
		resp, sendErr := e.api.Send(ctx, snapshot.ConversationID, text, e.cfg.TreatmentGroup, clientMsgID)
		if sendErr != nil {
			if errors.Is(sendErr, botapi.ErrAmbiguousDelivery) {
				// The server may already have the message; a retry
				// could deliver it twice.
				e.logger.Warn("send outcome ambiguous, giving up without retry",
					"error", sendErr,
					"client_msg_id", clientMsgID,
				)
				e.display.SetTyping(false)
				if err := e.store.SetPendingClientMsgID(ctx, ""); err != nil {
					return err
				}
				return e.releaseFlow(ctx, domain.FlowSend)
			}
			attempts++
			e.logger.Warn("send request failed, retrying", "error", sendErr, "attempt", attempts)
			if e.cfg.Retry.exhausted(attempts) {
				return fmt.Errorf("send message: %w", sendErr)
			}
			if waitErr := e.cfg.Retry.wait(ctx); waitErr != nil {
				return waitErr
			}
			continue
		}
		if resp.InProgress() {
			// Not a failed call: the agent is still working, so poll
			// the same request again after the interval.
			if waitErr := e.cfg.Retry.wait(ctx); waitErr != nil {
				return waitErr
			}
			continue
		}
		assignedID = resp.ID
		break
	}

	if err := e.LinkUserMessage(ctx, assignedID, clientMsgID); err != nil {
		return err
	}
	if err := e.store.SetPendingClientMsgID(ctx, ""); err != nil {
		return err
	}
	if err := e.releaseFlow(ctx, domain.FlowSend); err != nil {
		return err
	}
	return e.PollActivities(ctx)
}
