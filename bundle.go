package weft

import (
	"database/sql"

	"github.com/jtolonen/weft/internal/taskqueue"
	"github.com/jtolonen/weft/pkg/worker"
	"github.com/jtolonen/weft/report"
)

// SQLiteBundle wires together a durable Runtime, a durable task queue, a
// Worker consuming that queue, and a document archive, all sharing one
// SQLite database. Checkpoints, run events, queued tasks, and archived
// documents survive a process restart together.
type SQLiteBundle struct {
	Runtime Runtime
	Worker  *worker.Worker
	Archive *report.DocumentArchive

	// queue is kept unexported; the public API focuses on Runtime and
	// Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs the bundle over the provided *sql.DB.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:weft.db?_journal=WAL")
//	bundle, err := weft.NewSQLiteBundle(db)
//	// register graphs on bundle.Runtime
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB, opts ...worker.Option) (*SQLiteBundle, error) {
	rt, err := NewSQLiteRuntime(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	archive, err := report.NewDocumentArchive(db)
	if err != nil {
		return nil, err
	}

	return &SQLiteBundle{
		Runtime: rt,
		Worker:  worker.New(rt, q, opts...),
		Archive: archive,
		queue:   q,
	}, nil
}
