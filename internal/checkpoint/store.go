// Package checkpoint persists step-level task state so a crash between a
// decision and its execution is recoverable. Checkpoints are written before
// each risky action and reclaimed by an age-based sweep.
package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperos-labs/agent-core/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Checkpoint is a durable snapshot of task progress. Read-only once written.
type Checkpoint struct {
	ID          string              `json:"id"`
	TaskID      string              `json:"task_id"`
	Step        int                 `json:"step"`
	Description string              `json:"description"`
	History     []domain.StepRecord `json:"history"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Store manages checkpoints. Implementations must deep-copy history at save
// time; the live history keeps mutating afterwards.
type Store interface {
	Save(ctx context.Context, taskID string, step int, description string, history []domain.StepRecord, metadata map[string]any) (string, error)
	Restore(ctx context.Context, id string) (*Checkpoint, error)
	Latest(ctx context.Context, taskID string) (*Checkpoint, error)
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
	Close() error
}

type sqliteStore struct {
	db *sql.DB

	// writeMu serializes saves so the id scheme (task, step, save time)
	// stays collision-free. Reads go through the pool concurrently.
	writeMu sync.Mutex
	now     func() time.Time
}

// NewStore opens (creating if needed) the SQLite database at dbPath and
// initializes the schema. Pass ":memory:" for tests.
func NewStore(dbPath string) (Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint schema: %w", err)
	}

	return &sqliteStore{db: db, now: time.Now}, nil
}

// Save persists a checkpoint and returns its derived identifier. The history
// is deep-copied through its JSON encoding, so later mutation of the live
// slice cannot touch the stored snapshot.
func (s *sqliteStore) Save(ctx context.Context, taskID string, step int, description string, history []domain.StepRecord, metadata map[string]any) (string, error) {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	createdAt := s.now().UTC()
	id := fmt.Sprintf("%s_%d_%d", taskID, step, createdAt.UnixNano())

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, task_id, step, description, history, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, taskID, step, description, string(historyJSON), string(metaJSON), createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert checkpoint %s: %w", id, err)
	}
	return id, nil
}

// Restore loads a checkpoint by its identifier.
func (s *sqliteStore) Restore(ctx context.Context, id string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, step, description, history, metadata, created_at
		 FROM checkpoints WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.CheckpointNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("restore checkpoint %s: %w", id, err)
	}
	return cp, nil
}

// Latest returns the most recently persisted checkpoint for a task.
func (s *sqliteStore) Latest(ctx context.Context, taskID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, step, description, history, metadata, created_at
		 FROM checkpoints WHERE task_id = ?
		 ORDER BY created_at DESC LIMIT 1`, taskID)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.CheckpointNotFoundError{ID: taskID}
		}
		return nil, fmt.Errorf("latest checkpoint for %s: %w", taskID, err)
	}
	return cp, nil
}

// Sweep deletes checkpoints older than maxAge and returns how many were
// removed.
func (s *sqliteStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-maxAge)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return int(n), nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	var cp Checkpoint
	var historyJSON, metaJSON string
	if err := row.Scan(&cp.ID, &cp.TaskID, &cp.Step, &cp.Description, &historyJSON, &metaJSON, &cp.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(historyJSON), &cp.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &cp.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &cp, nil
}
