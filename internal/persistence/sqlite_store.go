package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteCheckpointStore is a CheckpointStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteCheckpointStore struct {
	db *sql.DB
}

// Ensure SQLiteCheckpointStore implements CheckpointStore.
var _ CheckpointStore = (*SQLiteCheckpointStore)(nil)

// NewSQLiteCheckpointStore initializes the required schema in the given
// database and returns a new SQLiteCheckpointStore.
func NewSQLiteCheckpointStore(db *sql.DB) (*SQLiteCheckpointStore, error) {
	s := &SQLiteCheckpointStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCheckpointStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			state BLOB,
			progress BLOB,
			step INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteCheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	state, err := EncodeState(cp.State)
	if err != nil {
		return err
	}
	progress, err := EncodeProgress(cp.Progress)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, state, progress, step, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			state = excluded.state,
			progress = excluded.progress,
			step = excluded.step,
			updated_at = excluded.updated_at`,
		cp.ThreadID,
		state,
		progress,
		cp.Step,
		time.Now().UnixNano(),
	)
	return err
}

func (s *SQLiteCheckpointStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, state, progress, step
		FROM checkpoints
		WHERE thread_id = ?`,
		threadID,
	)

	var cp Checkpoint
	var state, progress []byte

	if err := row.Scan(&cp.ThreadID, &state, &progress, &cp.Step); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Checkpoint{}, ErrCheckpointNotFound
		}
		return Checkpoint{}, err
	}

	st, err := DecodeState(state)
	if err != nil {
		return Checkpoint{}, err
	}
	cp.State = st

	prog, err := DecodeProgress(progress)
	if err != nil {
		return Checkpoint{}, err
	}
	cp.Progress = prog

	return cp, nil
}

func (s *SQLiteCheckpointStore) Delete(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	return err
}
