package store

import (
	"context"
	"sync"

	"botsync/internal/domain"
)

// MemoryStore implements Store in memory. Used by tests and ephemeral
// runs where persistence across restarts is not needed.
type MemoryStore struct {
	mu         sync.Mutex
	snapshot   *domain.ConversationSnapshot
	flows      map[domain.Flow]domain.FlowState
	flags      map[string]bool
	pendingMsg string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		flows: make(map[domain.Flow]domain.FlowState),
		flags: make(map[string]bool),
	}
}

// LoadSnapshot returns a copy of the stored snapshot, or a fresh empty
// snapshot when nothing has been saved.
func (m *MemoryStore) LoadSnapshot(_ context.Context) (*domain.ConversationSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return domain.NewSnapshot(), nil
	}
	return copySnapshot(m.snapshot), nil
}

// SaveSnapshot replaces the stored snapshot wholesale.
func (m *MemoryStore) SaveSnapshot(_ context.Context, snapshot *domain.ConversationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = copySnapshot(snapshot)
	return nil
}

// FlowState returns the state of a flow, FlowIdle when unset.
func (m *MemoryStore) FlowState(_ context.Context, flow domain.Flow) (domain.FlowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.flows[flow]; ok {
		return state, nil
	}
	return domain.FlowIdle, nil
}

// SetFlowState records the state of a flow.
func (m *MemoryStore) SetFlowState(_ context.Context, flow domain.Flow, state domain.FlowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[flow] = state
	return nil
}

// GetFlag returns a condition flag, false when unset.
func (m *MemoryStore) GetFlag(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags[name], nil
}

// SetFlag records a condition flag.
func (m *MemoryStore) SetFlag(_ context.Context, name string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = value
	return nil
}

// PendingClientMsgID returns the stored pending client message id.
func (m *MemoryStore) PendingClientMsgID(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingMsg, nil
}

// SetPendingClientMsgID records the pending client message id.
func (m *MemoryStore) SetPendingClientMsgID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingMsg = id
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

func copySnapshot(s *domain.ConversationSnapshot) *domain.ConversationSnapshot {
	out := &domain.ConversationSnapshot{
		ConversationID:       s.ConversationID,
		Watermark:            s.Watermark,
		Messages:             make([]domain.Message, len(s.Messages)),
		ProcessedActivityIDs: make(map[string]bool, len(s.ProcessedActivityIDs)),
	}
	copy(out.Messages, s.Messages)
	for id, v := range s.ProcessedActivityIDs {
		out.ProcessedActivityIDs[id] = v
	}
	return out
}
