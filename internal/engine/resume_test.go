package engine

import (
	"context"
	"fmt"
	"testing"

	"botsync/internal/botapi"
	"botsync/internal/domain"
)

func TestResumeWithNothingInFlightIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, &fakeAPI{})

	if err := env.eng.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if env.api.startCalls+env.api.pollCalls+env.api.sendCalls != 0 {
		t.Fatalf("idle resume issued network calls: %+v", env.api)
	}
}

// An interrupted start is re-run from scratch: the conversation id was
// never persisted, so a fresh one is requested.
func TestResumeRestartsInterruptedStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api := &fakeAPI{
		pollFn: func(_, _ string) (*botapi.ActivitySet, error) {
			return welcomeSet(), nil
		},
	}
	env := newTestEnv(t, api)
	if err := env.store.SetFlowState(ctx, domain.FlowStart, domain.FlowInFlight); err != nil {
		t.Fatalf("SetFlowState failed: %v", err)
	}

	if err := env.eng.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if api.startCalls != 1 {
		t.Fatalf("expected 1 start attempt, got %d", api.startCalls)
	}
	if env.snapshot(t).ConversationID != "C1" {
		t.Fatalf("conversation id not persisted: %q", env.snapshot(t).ConversationID)
	}
}

// With both a poll and a send interrupted, only the poll path runs. The
// poll response may already carry the send's echo, so retrying the send
// as well would risk a duplicate; its flag is cleared instead, while the
// pending id survives so the echo can still be linked.
func TestResumePollOutranksSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api := &fakeAPI{
		pollFn: func(_, _ string) (*botapi.ActivitySet, error) {
			return &botapi.ActivitySet{
				Activities: []botapi.Activity{{
					ID:   "A1",
					Type: botapi.ActivityTypeMessage,
					From: botapi.Sender{ID: "user"},
					Text: "hi",
				}},
				Watermark: "2",
			}, nil
		},
	}
	env := newTestEnv(t, api)

	snapshot := env.snapshot(t)
	snapshot.Messages = append(snapshot.Messages, domain.Message{
		Text: "hi", From: domain.FromUser, ClientMsgID: "m1",
	})
	if err := env.store.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := env.store.SetFlowState(ctx, domain.FlowPoll, domain.FlowInFlight); err != nil {
		t.Fatalf("SetFlowState failed: %v", err)
	}
	if err := env.store.SetFlowState(ctx, domain.FlowSend, domain.FlowInFlight); err != nil {
		t.Fatalf("SetFlowState failed: %v", err)
	}
	if err := env.store.SetPendingClientMsgID(ctx, "m1"); err != nil {
		t.Fatalf("SetPendingClientMsgID failed: %v", err)
	}

	if err := env.eng.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if api.pollCalls != 1 {
		t.Fatalf("expected 1 poll, got %d", api.pollCalls)
	}
	if api.sendCalls != 0 {
		t.Fatalf("sender must not run, got %d calls", api.sendCalls)
	}
	if env.flowState(t, domain.FlowSend) != domain.FlowIdle {
		t.Fatal("send flow must be cleared without retrying")
	}
	if msg := env.snapshot(t).FindByClientMsgID("m1"); msg == nil || msg.ActivityID != "A1" {
		t.Fatalf("echo in the resumed poll must link the message, got %+v", msg)
	}
}

// Restart with the send flag set but no matching local message: the
// flag is cleared and nothing goes out.
func TestResumeSendWithUnknownPendingID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, &fakeAPI{})

	if err := env.store.SetFlowState(ctx, domain.FlowSend, domain.FlowInFlight); err != nil {
		t.Fatalf("SetFlowState failed: %v", err)
	}
	if err := env.store.SetPendingClientMsgID(ctx, "m-gone"); err != nil {
		t.Fatalf("SetPendingClientMsgID failed: %v", err)
	}

	if err := env.eng.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if env.api.startCalls+env.api.pollCalls+env.api.sendCalls != 0 {
		t.Fatalf("no network calls expected, got %+v", env.api)
	}
	if env.flowState(t, domain.FlowSend) != domain.FlowIdle {
		t.Fatal("send flow must be cleared")
	}
}

// A send interrupted before the activity id came back is retried with
// the same client message id, so the server can dedupe.
func TestResumeRetriesUnacknowledgedSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	api := &fakeAPI{
		sendFn: func(_, text, clientMsgID string) (*botapi.SendResponse, error) {
			if text != "hi" || clientMsgID != "m1" {
				return nil, fmt.Errorf("unexpected retry payload: %q/%q", text, clientMsgID)
			}
			return &botapi.SendResponse{ID: "A1"}, nil
		},
		pollFn: func(_, _ string) (*botapi.ActivitySet, error) {
			return &botapi.ActivitySet{}, nil
		},
	}
	env := newTestEnv(t, api)

	snapshot := env.snapshot(t)
	snapshot.ConversationID = "C1"
	snapshot.Messages = append(snapshot.Messages, domain.Message{
		Text: "hi", From: domain.FromUser, ClientMsgID: "m1",
	})
	if err := env.store.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := env.store.SetFlowState(ctx, domain.FlowSend, domain.FlowInFlight); err != nil {
		t.Fatalf("SetFlowState failed: %v", err)
	}
	if err := env.store.SetPendingClientMsgID(ctx, "m1"); err != nil {
		t.Fatalf("SetPendingClientMsgID failed: %v", err)
	}

	if err := env.eng.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if api.sendCalls != 1 {
		t.Fatalf("expected 1 send retry, got %d", api.sendCalls)
	}
	if msg := env.snapshot(t).FindByClientMsgID("m1"); msg == nil || msg.ActivityID != "A1" {
		t.Fatalf("retried message not linked: %+v", msg)
	}
}

// A send that was already acknowledged before the interruption is left
// alone.
func TestResumeAcknowledgedSendNeedsNoRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t, &fakeAPI{})

	snapshot := env.snapshot(t)
	snapshot.Messages = append(snapshot.Messages, domain.Message{
		Text: "hi", From: domain.FromUser, ClientMsgID: "m1", ActivityID: "A1",
	})
	if err := env.store.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := env.store.SetFlowState(ctx, domain.FlowSend, domain.FlowInFlight); err != nil {
		t.Fatalf("SetFlowState failed: %v", err)
	}
	if err := env.store.SetPendingClientMsgID(ctx, "m1"); err != nil {
		t.Fatalf("SetPendingClientMsgID failed: %v", err)
	}

	if err := env.eng.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if env.api.sendCalls != 0 {
		t.Fatalf("acknowledged send must not be retried, got %d calls", env.api.sendCalls)
	}
	if env.flowState(t, domain.FlowSend) != domain.FlowIdle {
		t.Fatal("send flow must be cleared")
	}
}

// Two poll failures followed by a success produce exactly one merge and
// no duplicate display.
func TestPollRetriesWithoutDuplicateMerge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	calls := 0
	api := &fakeAPI{
		pollFn: func(_, _ string) (*botapi.ActivitySet, error) {
			calls++
			if calls < 3 {
				return nil, fmt.Errorf("status 503")
			}
			return welcomeSet(), nil
		},
	}
	env := newTestEnv(t, api)

	if err := env.eng.PollActivities(ctx); err != nil {
		t.Fatalf("PollActivities failed: %v", err)
	}
	if api.pollCalls != 3 {
		t.Fatalf("expected 3 poll attempts, got %d", api.pollCalls)
	}
	if got := env.display.shown(); len(got) != 1 {
		t.Fatalf("expected a single displayed message, got %v", got)
	}
	if snapshot := env.snapshot(t); len(snapshot.Messages) != 1 {
		t.Fatalf("expected a single merge, got %+v", snapshot.Messages)
	}
}
