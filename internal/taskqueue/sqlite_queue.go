package taskqueue

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Payloads travel through gob as interface values, so the common carrier
// types must be registered up front.
func init() {
	gob.Register(map[string]any{})
}

// SQLiteQueue is a persistent Queue backed by SQLite. Visibility is tracked
// with lease columns on each row: a dequeue claims a row by stamping the
// worker id and a lease deadline, and an unacknowledged row becomes claimable
// again once the deadline passes.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

var _ Queue = (*SQLiteQueue)(nil)

// NewSQLiteQueue initializes the tasks table in the given DB and returns a
// new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			graph_name TEXT,
			thread_id TEXT,
			payload BLOB,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			leased_by TEXT NOT NULL DEFAULT '',
			lease_until INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	payloadBytes, err := encodePayload(t.Payload)
	if err != nil {
		return err
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	now := time.Now()
	enqueuedAt := now.UnixNano()

	var notBefore int64
	if t.NotBefore.IsZero() {
		notBefore = enqueuedAt
	} else {
		notBefore = t.NotBefore.UnixNano()
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, graph_name, thread_id, payload, enqueued_at, not_before, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Type),
		t.GraphName,
		t.ThreadID,
		payloadBytes,
		enqueuedAt,
		notBefore,
		t.Attempts,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context, workerID string, lease time.Duration) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task, err := q.claimOne(ctx, workerID, lease)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		// Nothing visible: sleep a bit and retry.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *SQLiteQueue) claimOne(ctx context.Context, workerID string, lease time.Duration) (*Task, error) {
	now := time.Now().UnixNano()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	var (
		id          string
		typeStr     string
		graphName   sql.NullString
		threadID    sql.NullString
		payload     []byte
		enqueuedInt int64
		notBefore   int64
		attempts    int
	)

	row := tx.QueryRowContext(ctx, `
		SELECT id, type, graph_name, thread_id, payload, enqueued_at, not_before, attempts
		FROM tasks
		WHERE not_before <= ? AND lease_until <= ?
		ORDER BY not_before, seq
		LIMIT 1`, now, now)
	err = row.Scan(&id, &typeStr, &graphName, &threadID, &payload, &enqueuedInt, &notBefore, &attempts)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	// Stamp the lease on the row we just picked.
	leaseUntil := time.Now().Add(lease).UnixNano()
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET leased_by = ?, lease_until = ?, attempts = attempts + 1
		WHERE id = ?`, workerID, leaseUntil, id); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	decoded, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}

	return &Task{
		ID:         id,
		Type:       TaskType(typeStr),
		GraphName:  graphName.String,
		ThreadID:   threadID.String,
		Payload:    decoded,
		EnqueuedAt: time.Unix(0, enqueuedInt),
		NotBefore:  time.Unix(0, notBefore),
		Attempts:   attempts + 1,
	}, nil
}

func (q *SQLiteQueue) Ack(ctx context.Context, taskID, workerID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND leased_by = ?`, taskID, workerID)
	return err
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// encodePayload serializes arbitrary Go values using encoding/gob. Callers
// must ensure that concrete payload types have been registered with
// gob.Register.
func encodePayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	iv := v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodePayload deserializes gob-encoded data back into an `any`.
func decodePayload(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := gob.NewDecoder(bytes.NewReader(data))
	var iv any
	if err := dec.Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
