// Package store provides persistence for conversation state.
package store

import (
	"context"

	"botsync/internal/domain"
)

// Store defines the interface for persisting the conversation snapshot,
// the per-flow state machine discriminants, and the condition flags.
//
// SaveSnapshot replaces the snapshot wholesale with last-writer-wins
// semantics. The engine's flow guards serialize writers, so the store
// performs no merging and no optimistic concurrency.
type Store interface {
	// LoadSnapshot returns the persisted snapshot, or a fresh empty
	// snapshot when none has been saved yet.
	LoadSnapshot(ctx context.Context) (*domain.ConversationSnapshot, error)

	// SaveSnapshot replaces the persisted snapshot wholesale.
	SaveSnapshot(ctx context.Context, snapshot *domain.ConversationSnapshot) error

	// FlowState returns the persisted state of a flow, FlowIdle when unset.
	FlowState(ctx context.Context, flow domain.Flow) (domain.FlowState, error)

	// SetFlowState persists the state of a flow.
	SetFlowState(ctx context.Context, flow domain.Flow, state domain.FlowState) error

	// GetFlag returns a persisted condition flag, false when unset.
	GetFlag(ctx context.Context, name string) (bool, error)

	// SetFlag persists a condition flag.
	SetFlag(ctx context.Context, name string, value bool) error

	// PendingClientMsgID returns the client message id of the send that
	// was left in flight, empty when none.
	PendingClientMsgID(ctx context.Context) (string, error)

	// SetPendingClientMsgID persists the pending client message id.
	SetPendingClientMsgID(ctx context.Context, id string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
