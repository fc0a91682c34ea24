// Package engine implements the conversation-state machine: the three
// network flows (start, poll, send), the reconciler that merges
// server-reported activities into persisted state, and the resumption
// coordinator that restarts an interrupted flow after a process
// restart.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"botsync/internal/botapi"
	"botsync/internal/domain"
	"botsync/internal/store"
)

// Display is the narrow interface the engine exposes to the rendering
// collaborator. Rendering itself is out of scope here.
type Display interface {
	// DisplayMessage renders one message. from is domain.FromUser or
	// domain.FromBot.
	DisplayMessage(text, from string)

	// SetTyping toggles the busy indicator.
	SetTyping(visible bool)
}

// API is the slice of the chatbot API the engine depends on.
// *botapi.Client satisfies it; tests substitute fakes.
type API interface {
	Start(ctx context.Context, treatmentGroup string) (string, error)
	Poll(ctx context.Context, conversationID, watermark, treatmentGroup string) (*botapi.ActivitySet, error)
	Send(ctx context.Context, conversationID, text, treatmentGroup, clientMsgID string) (*botapi.SendResponse, error)
}

// Config holds engine configuration.
type Config struct {
	TreatmentGroup string
	Retry          Policy

	// EntryTypingDelay is the pause before the entry typing indicator
	// when the buffered welcome batch is flushed. Distinct from the
	// steady-state indicator, which is shown immediately.
	EntryTypingDelay time.Duration

	// InitialFlushDelay is the further pause before the buffered
	// welcome batch is merged.
	InitialFlushDelay time.Duration

	// OnFinished is called when a terminal state is first observed,
	// once per conversation. It runs on the reconciler's goroutine and
	// must not call back into the engine.
	OnFinished func()
}

// DefaultConfig returns the production engine configuration.
func DefaultConfig() Config {
	return Config{
		Retry:             DefaultPolicy(),
		EntryTypingDelay:  500 * time.Millisecond,
		InitialFlushDelay: 1500 * time.Millisecond,
	}
}

// Engine drives one conversation with the remote agent.
//
// All methods are safe for use from a single caller goroutine. The
// persisted flow states are the real mutual-exclusion mechanism: each
// flow transitions idle -> in_flight before any network activity, and a
// second entry into a flow observes in_flight and refuses. The mutex
// only makes the check-then-set transition atomic.
type Engine struct {
	store   store.Store
	api     API
	display Display
	cfg     Config
	logger  *slog.Logger

	mu       sync.Mutex
	buffered *botapi.ActivitySet // welcome batch held until the interface opens
}

// New creates an engine. logger may be nil.
func New(st store.Store, api API, display Display, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   st,
		api:     api,
		display: display,
		cfg:     cfg,
		logger:  logger,
	}
}

// Init consumes the "data ready" signal. It resumes whatever flow was
// interrupted, then starts a conversation when none exists yet, or
// fetches anything new when one does.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.Resume(ctx); err != nil {
		return err
	}
	snapshot, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if snapshot.ConversationID == "" {
		return e.StartConversation(ctx)
	}
	return e.PollActivities(ctx)
}

// acquireFlow transitions a flow idle -> in_flight and persists the
// discriminant. Returns false when the flow is already in flight.
func (e *Engine) acquireFlow(ctx context.Context, flow domain.Flow) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.store.FlowState(ctx, flow)
	if err != nil {
		return false, err
	}
	if state == domain.FlowInFlight {
		return false, nil
	}
	if err := e.store.SetFlowState(ctx, flow, domain.FlowInFlight); err != nil {
		return false, err
	}
	return true, nil
}

// releaseFlow transitions a flow back to idle.
func (e *Engine) releaseFlow(ctx context.Context, flow domain.Flow) error {
	return e.store.SetFlowState(ctx, flow, domain.FlowIdle)
}
