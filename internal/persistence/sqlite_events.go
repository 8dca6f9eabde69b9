package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jtolonen/weft/pkg/api"
)

// SQLiteEventStore stores run events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

// Ensure SQLiteEventStore implements the interface.
var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			graph TEXT NOT NULL DEFAULT '',
			node TEXT NOT NULL DEFAULT '',
			step INTEGER NOT NULL DEFAULT -1,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_thread_id ON run_events(thread_id, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (thread_id, run_id, at, type, graph, node, step, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ThreadID,
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		ev.Graph,
		string(ev.Node),
		ev.Step,
		ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, threadID string) ([]api.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, run_id, at, type, graph, node, step, detail
		FROM run_events
		WHERE thread_id = ?
		ORDER BY id ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.RunEvent
	for rows.Next() {
		var (
			threadID string
			runID    string
			atN      int64
			typ      string
			graph    string
			node     string
			step     int
			detail   string
		)
		if err := rows.Scan(&threadID, &runID, &atN, &typ, &graph, &node, &step, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.RunEvent{
			ThreadID: threadID,
			RunID:    runID,
			At:       time.Unix(0, atN),
			Type:     api.EventType(typ),
			Graph:    graph,
			Node:     api.NodeID(node),
			Step:     step,
			Detail:   detail,
		})
	}
	return out, rows.Err()
}
