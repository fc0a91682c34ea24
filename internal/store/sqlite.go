package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"botsync/internal/domain"
	"botsync/internal/shared"

	_ "modernc.org/sqlite"
)

const pendingMsgIDKey = "pending_client_msg_id"

// SQLiteStore implements Store using SQLite, scoped to one session id.
type SQLiteStore struct {
	db        *sql.DB
	sessionID string
	mu        sync.Mutex // Serializes writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed store for the given session.
func NewSQLite(dbPath, sessionID string) (*SQLiteStore, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, sessionID: sessionID}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		session_id TEXT PRIMARY KEY,
		snapshot_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS flow_states (
		session_id TEXT NOT NULL,
		flow TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, flow)
	);
	CREATE TABLE IF NOT EXISTS session_values (
		session_id TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, name)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadSnapshot retrieves the persisted snapshot for this session,
// returning a fresh empty snapshot when none exists.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*domain.ConversationSnapshot, error) {
	query := `SELECT snapshot_json FROM conversations WHERE session_id = ?`
	row := s.db.QueryRowContext(ctx, query, s.sessionID)

	var snapshotJSON string
	err := row.Scan(&snapshotJSON)
	if err == sql.ErrNoRows {
		return domain.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot row: %w", err)
	}

	var snapshot domain.ConversationSnapshot
	if err := json.Unmarshal([]byte(snapshotJSON), &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.ProcessedActivityIDs == nil {
		snapshot.ProcessedActivityIDs = make(map[string]bool)
	}
	return &snapshot, nil
}

// SaveSnapshot replaces the persisted snapshot wholesale.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snapshot *domain.ConversationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	now := time.Now().Unix()
	query := `
	INSERT INTO conversations (session_id, snapshot_json, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		snapshot_json = excluded.snapshot_json,
		updated_at = excluded.updated_at`

	if err := s.execWithRetry(ctx, query, s.sessionID, string(data), now, now); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// FlowState returns the persisted state of a flow, FlowIdle when unset.
func (s *SQLiteStore) FlowState(ctx context.Context, flow domain.Flow) (domain.FlowState, error) {
	query := `SELECT state FROM flow_states WHERE session_id = ? AND flow = ?`
	row := s.db.QueryRowContext(ctx, query, s.sessionID, string(flow))

	var state string
	err := row.Scan(&state)
	if err == sql.ErrNoRows {
		return domain.FlowIdle, nil
	}
	if err != nil {
		return domain.FlowIdle, fmt.Errorf("scan flow state: %w", err)
	}
	return domain.FlowState(state), nil
}

// SetFlowState persists the state of a flow.
func (s *SQLiteStore) SetFlowState(ctx context.Context, flow domain.Flow, state domain.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO flow_states (session_id, flow, state, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id, flow) DO UPDATE SET
		state = excluded.state,
		updated_at = excluded.updated_at`

	if err := s.execWithRetry(ctx, query, s.sessionID, string(flow), string(state), time.Now().Unix()); err != nil {
		return fmt.Errorf("set flow state %s: %w", flow, err)
	}
	return nil
}

// GetFlag returns a persisted condition flag, false when unset.
func (s *SQLiteStore) GetFlag(ctx context.Context, name string) (bool, error) {
	value, err := s.getValue(ctx, name)
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// SetFlag persists a condition flag.
func (s *SQLiteStore) SetFlag(ctx context.Context, name string, value bool) error {
	v := "0"
	if value {
		v = "1"
	}
	return s.setValue(ctx, name, v)
}

// PendingClientMsgID returns the persisted pending client message id.
func (s *SQLiteStore) PendingClientMsgID(ctx context.Context) (string, error) {
	return s.getValue(ctx, pendingMsgIDKey)
}

// SetPendingClientMsgID persists the pending client message id.
func (s *SQLiteStore) SetPendingClientMsgID(ctx context.Context, id string) error {
	return s.setValue(ctx, pendingMsgIDKey, id)
}

func (s *SQLiteStore) getValue(ctx context.Context, name string) (string, error) {
	query := `SELECT value FROM session_values WHERE session_id = ? AND name = ?`
	row := s.db.QueryRowContext(ctx, query, s.sessionID, name)

	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan session value %s: %w", name, err)
	}
	return value, nil
}

func (s *SQLiteStore) setValue(ctx context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO session_values (session_id, name, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id, name) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	if err := s.execWithRetry(ctx, query, s.sessionID, name, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("set session value %s: %w", name, err)
	}
	return nil
}

// execWithRetry retries writes that fail with a SQLite concurrency
// error. The busy timeout handles most contention; this covers the
// window where WAL checkpointing still surfaces SQLITE_BUSY.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...interface{}) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
