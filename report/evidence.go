package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DocumentArchive stores per-thread reference documents in SQLite and
// serves them back as interview evidence. It is the documents-mode
// EvidenceSource: a fetch returns every document stored for the thread.
type DocumentArchive struct {
	db *sql.DB
}

var _ EvidenceSource = (*DocumentArchive)(nil)

// NewDocumentArchive initializes the archive schema in the given database.
func NewDocumentArchive(db *sql.DB) (*DocumentArchive, error) {
	a := &DocumentArchive{db: db}
	if err := a.initSchema(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *DocumentArchive) initSchema() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			name TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_thread_id ON documents(thread_id, id);
	`)
	return err
}

// Put stores one document for a thread.
func (a *DocumentArchive) Put(ctx context.Context, threadID, name, text string) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO documents (thread_id, name, text, created_at)
		VALUES (?, ?, ?, ?)`,
		threadID, name, text, time.Now().UnixNano(),
	)
	return err
}

// Fetch returns every document stored for the query's thread, in insertion
// order.
func (a *DocumentArchive) Fetch(ctx context.Context, q Query) ([]Fragment, error) {
	if q.ThreadID == "" {
		return nil, fmt.Errorf("document archive: query has no thread id")
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT name, text
		FROM documents
		WHERE thread_id = ?
		ORDER BY id ASC`, q.ThreadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fragment
	for rows.Next() {
		var f Fragment
		if err := rows.Scan(&f.Ref, &f.Text); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
