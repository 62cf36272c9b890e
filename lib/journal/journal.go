// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal keeps an on-disk audit trail of session lifecycle,
// focus, and topology changes so that an operator can ask shiftctl
// what happened to a session after it is gone.
//
// Producers call Record, which never blocks: the server's actors must
// not stall on disk. A single Run goroutine batches queued records into
// one IMMEDIATE transaction per wakeup. When the queue is full, records
// are dropped and counted rather than applying backpressure.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/shift-foundation/shift/lib/clock"
	"github.com/shift-foundation/shift/lib/codec"
	"github.com/shift-foundation/shift/lib/sqlitepool"
)

// Kind classifies a record.
type Kind string

const (
	KindSessionState   Kind = "session_state"
	KindFocus          Kind = "focus"
	KindMonitorAdded   Kind = "monitor_added"
	KindMonitorUpdated Kind = "monitor_updated"
	KindMonitorRemoved Kind = "monitor_removed"
	KindOutputLinked   Kind = "output_linked"
	KindOutputDropped  Kind = "output_dropped"
)

// Record is one journal entry. Detail is stored as a CBOR blob.
type Record struct {
	Sequence  int64             `cbor:"sequence"`
	At        time.Time         `cbor:"at"`
	Kind      Kind              `cbor:"kind"`
	SessionID string            `cbor:"session_id,omitempty"`
	MonitorID string            `cbor:"monitor_id,omitempty"`
	Detail    map[string]string `cbor:"detail,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS journal (
	sequence   INTEGER PRIMARY KEY AUTOINCREMENT,
	at         INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	monitor_id TEXT NOT NULL DEFAULT '',
	detail     BLOB
);
CREATE INDEX IF NOT EXISTS journal_session ON journal (session_id, sequence);
`

// DefaultQueueSize bounds records waiting for the writer.
const DefaultQueueSize = 1024

// Config configures a Journal.
type Config struct {
	Path      string
	Clock     clock.Clock
	Logger    *slog.Logger
	QueueSize int
}

// Journal is the lifecycle audit trail.
type Journal struct {
	pool    *sqlitepool.Pool
	clock   clock.Clock
	logger  *slog.Logger
	queue   chan Record
	dropped atomic.Uint64
}

// Open creates or opens the journal database.
func Open(config Config) (*Journal, error) {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   config.Path,
		Logger: config.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{
		pool:   pool,
		clock:  config.Clock,
		logger: config.Logger,
		queue:  make(chan Record, config.QueueSize),
	}, nil
}

// Record queues an entry for the writer. It never blocks.
func (j *Journal) Record(record Record) {
	if record.At.IsZero() {
		record.At = j.clock.Now()
	}
	select {
	case j.queue <- record:
	default:
		if j.dropped.Add(1) == 1 {
			j.logger.Warn("journal queue full, dropping records")
		}
	}
}

// Dropped returns how many records were discarded because the queue
// was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Run writes queued records until ctx ends, then flushes what is left.
func (j *Journal) Run(ctx context.Context) error {
	// Writes already dequeued complete even if ctx ends mid-batch.
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			j.flush(writeCtx)
			return nil
		case first := <-j.queue:
			batch := []Record{first}
		collect:
			for {
				select {
				case next := <-j.queue:
					batch = append(batch, next)
				default:
					break collect
				}
			}
			if err := j.Append(writeCtx, batch...); err != nil {
				j.logger.Error("writing journal batch", "records", len(batch), "error", err)
			}
		}
	}
}

func (j *Journal) flush(ctx context.Context) {
	var batch []Record
	for {
		select {
		case next := <-j.queue:
			batch = append(batch, next)
		default:
			if len(batch) > 0 {
				if err := j.Append(ctx, batch...); err != nil {
					j.logger.Error("flushing journal", "records", len(batch), "error", err)
				}
			}
			return
		}
	}
}

// Append writes records synchronously in one transaction.
func (j *Journal) Append(ctx context.Context, records ...Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	defer j.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("journal append: begin: %w", err)
	}
	defer endTransaction(&err)

	for _, record := range records {
		var detail any
		if len(record.Detail) > 0 {
			encoded, marshalErr := codec.Marshal(record.Detail)
			if marshalErr != nil {
				return fmt.Errorf("journal append: encoding detail: %w", marshalErr)
			}
			detail = encoded
		}
		if record.At.IsZero() {
			record.At = j.clock.Now()
		}
		err = sqlitex.Execute(conn,
			`INSERT INTO journal (at, kind, session_id, monitor_id, detail) VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				record.At.UnixNano(), string(record.Kind), record.SessionID, record.MonitorID, detail,
			}})
		if err != nil {
			return fmt.Errorf("journal append: %w", err)
		}
	}
	return nil
}

// Query selects records. Zero fields do not filter.
type Query struct {
	SessionID string
	Kind      Kind
	// Limit defaults to 100.
	Limit int
}

// Recent returns matching records, newest first.
func (j *Journal) Recent(ctx context.Context, query Query) ([]Record, error) {
	if query.Limit <= 0 {
		query.Limit = 100
	}
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer j.pool.Put(conn)

	var records []Record
	var decodeErr error
	err = sqlitex.Execute(conn,
		`SELECT sequence, at, kind, session_id, monitor_id, detail FROM journal
		 WHERE (? = '' OR session_id = ?) AND (? = '' OR kind = ?)
		 ORDER BY sequence DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{query.SessionID, query.SessionID, string(query.Kind), string(query.Kind), query.Limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record := Record{
					Sequence:  stmt.ColumnInt64(0),
					At:        time.Unix(0, stmt.ColumnInt64(1)).UTC(),
					Kind:      Kind(stmt.ColumnText(2)),
					SessionID: stmt.ColumnText(3),
					MonitorID: stmt.ColumnText(4),
				}
				if !stmt.ColumnIsNull(5) {
					blob := make([]byte, stmt.ColumnLen(5))
					stmt.ColumnBytes(5, blob)
					if err := codec.Unmarshal(blob, &record.Detail); err != nil && decodeErr == nil {
						decodeErr = fmt.Errorf("decoding detail of record %d: %w", record.Sequence, err)
					}
				}
				records = append(records, record)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	return records, decodeErr
}

// Close closes the database. Run must have returned.
func (j *Journal) Close() error {
	return j.pool.Close()
}
