package store

import (
	"context"
	"path/filepath"
	"testing"

	"botsync/internal/domain"
)

// storeUnderTest runs the same assertions against both backends.
func storeUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "botsync.db"), "sess-1")
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func TestLoadSnapshotEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range storeUnderTest(t) {
		snapshot, err := st.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("%s: LoadSnapshot failed: %v", name, err)
		}
		if snapshot.ConversationID != "" || len(snapshot.Messages) != 0 {
			t.Fatalf("%s: expected fresh empty snapshot, got %+v", name, snapshot)
		}
		if snapshot.ProcessedActivityIDs == nil {
			t.Fatalf("%s: expected initialized processed set", name)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range storeUnderTest(t) {
		snapshot := domain.NewSnapshot()
		snapshot.ConversationID = "C1"
		snapshot.Watermark = "7"
		snapshot.Messages = []domain.Message{
			{Text: "hello", From: domain.FromBot, ActivityID: "A0"},
			{Text: "hi", From: domain.FromUser, ClientMsgID: "m1", ActivityID: "A1"},
		}
		snapshot.MarkProcessed("A0")
		snapshot.MarkProcessed("A1")

		if err := st.SaveSnapshot(ctx, snapshot); err != nil {
			t.Fatalf("%s: SaveSnapshot failed: %v", name, err)
		}

		got, err := st.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("%s: LoadSnapshot failed: %v", name, err)
		}
		if got.ConversationID != "C1" || got.Watermark != "7" {
			t.Fatalf("%s: unexpected snapshot: %+v", name, got)
		}
		if len(got.Messages) != 2 || got.Messages[1].ClientMsgID != "m1" {
			t.Fatalf("%s: unexpected messages: %+v", name, got.Messages)
		}
		if !got.Processed("A0") || !got.Processed("A1") {
			t.Fatalf("%s: processed ids lost: %+v", name, got.ProcessedActivityIDs)
		}
	}
}

func TestSaveSnapshotLastWriterWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range storeUnderTest(t) {
		// Two writers load the same state, then save in sequence. The
		// whole-value replace means the second save fully overwrites
		// the first: no merge happens. The engine's flow guards are
		// what prevents this interleaving in practice.
		first, _ := st.LoadSnapshot(ctx)
		second, _ := st.LoadSnapshot(ctx)

		first.Messages = append(first.Messages, domain.Message{Text: "from first", From: domain.FromBot, ActivityID: "A1"})
		second.Messages = append(second.Messages, domain.Message{Text: "from second", From: domain.FromBot, ActivityID: "A2"})

		if err := st.SaveSnapshot(ctx, first); err != nil {
			t.Fatalf("%s: first save failed: %v", name, err)
		}
		if err := st.SaveSnapshot(ctx, second); err != nil {
			t.Fatalf("%s: second save failed: %v", name, err)
		}

		got, err := st.LoadSnapshot(ctx)
		if err != nil {
			t.Fatalf("%s: LoadSnapshot failed: %v", name, err)
		}
		if len(got.Messages) != 1 || got.Messages[0].Text != "from second" {
			t.Fatalf("%s: expected last writer to win, got %+v", name, got.Messages)
		}
	}
}

func TestFlowStateRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range storeUnderTest(t) {
		state, err := st.FlowState(ctx, domain.FlowPoll)
		if err != nil {
			t.Fatalf("%s: FlowState failed: %v", name, err)
		}
		if state != domain.FlowIdle {
			t.Fatalf("%s: unset flow should be idle, got %q", name, state)
		}

		if err := st.SetFlowState(ctx, domain.FlowPoll, domain.FlowInFlight); err != nil {
			t.Fatalf("%s: SetFlowState failed: %v", name, err)
		}
		state, _ = st.FlowState(ctx, domain.FlowPoll)
		if state != domain.FlowInFlight {
			t.Fatalf("%s: expected in_flight, got %q", name, state)
		}

		// Other flows are unaffected.
		state, _ = st.FlowState(ctx, domain.FlowSend)
		if state != domain.FlowIdle {
			t.Fatalf("%s: send flow should still be idle, got %q", name, state)
		}
	}
}

func TestFlagsAndPendingMsgID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range storeUnderTest(t) {
		v, err := st.GetFlag(ctx, domain.FlagTerminalReached)
		if err != nil {
			t.Fatalf("%s: GetFlag failed: %v", name, err)
		}
		if v {
			t.Fatalf("%s: unset flag should be false", name)
		}

		if err := st.SetFlag(ctx, domain.FlagTerminalReached, true); err != nil {
			t.Fatalf("%s: SetFlag failed: %v", name, err)
		}
		if v, _ = st.GetFlag(ctx, domain.FlagTerminalReached); !v {
			t.Fatalf("%s: expected flag true", name)
		}
		if err := st.SetFlag(ctx, domain.FlagTerminalReached, false); err != nil {
			t.Fatalf("%s: SetFlag(false) failed: %v", name, err)
		}
		if v, _ = st.GetFlag(ctx, domain.FlagTerminalReached); v {
			t.Fatalf("%s: expected flag false after reset", name)
		}

		if err := st.SetPendingClientMsgID(ctx, "m1"); err != nil {
			t.Fatalf("%s: SetPendingClientMsgID failed: %v", name, err)
		}
		id, err := st.PendingClientMsgID(ctx)
		if err != nil {
			t.Fatalf("%s: PendingClientMsgID failed: %v", name, err)
		}
		if id != "m1" {
			t.Fatalf("%s: expected m1, got %q", name, id)
		}
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "botsync.db")

	st, err := NewSQLite(dbPath, "sess-1")
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}

	snapshot := domain.NewSnapshot()
	snapshot.ConversationID = "C1"
	if err := st.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := st.SetFlowState(ctx, domain.FlowSend, domain.FlowInFlight); err != nil {
		t.Fatalf("SetFlowState failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Simulates the page-reload path: a new process opens the same file.
	st2, err := NewSQLite(dbPath, "sess-1")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = st2.Close() }()

	got, err := st2.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot after reopen failed: %v", err)
	}
	if got.ConversationID != "C1" {
		t.Fatalf("expected conversation C1 after reopen, got %q", got.ConversationID)
	}
	state, err := st2.FlowState(ctx, domain.FlowSend)
	if err != nil {
		t.Fatalf("FlowState after reopen failed: %v", err)
	}
	if state != domain.FlowInFlight {
		t.Fatalf("expected in-flight send to survive reopen, got %q", state)
	}
}

func TestSQLiteSessionsAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "botsync.db")

	a, err := NewSQLite(dbPath, "sess-a")
	if err != nil {
		t.Fatalf("NewSQLite sess-a failed: %v", err)
	}
	defer func() { _ = a.Close() }()

	b, err := NewSQLite(dbPath, "sess-b")
	if err != nil {
		t.Fatalf("NewSQLite sess-b failed: %v", err)
	}
	defer func() { _ = b.Close() }()

	snapshot := domain.NewSnapshot()
	snapshot.ConversationID = "C-a"
	if err := a.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := b.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if got.ConversationID != "" {
		t.Fatalf("sessions must not share state, got %q", got.ConversationID)
	}
}
