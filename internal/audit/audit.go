// Package audit keeps a durable trail of the writes made through the client
// and of the events the platform pushes to us.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Kind classifies an audit event.
type Kind string

const (
	KindMutation Kind = "mutation"
	KindDelete   Kind = "delete"
	KindWebhook  Kind = "webhook"
	KindInstall  Kind = "install"
)

// Event is one audit entry. Payloads are never stored, only identifiers.
type Event struct {
	ID          int64          `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Shop        string         `json:"shop"`
	Kind        Kind           `json:"kind"`
	Resource    string         `json:"resource,omitempty"`
	Action      string         `json:"action,omitempty"`
	Protocol    string         `json:"protocol,omitempty"`
	OperationID string         `json:"op_id,omitempty"`
	ResourceID  string         `json:"resource_id,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
	StatusCode  int            `json:"status_code,omitempty"`
	Success     bool           `json:"success"`
	ErrorMsg    string         `json:"error_msg,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	shop TEXT NOT NULL,
	kind TEXT NOT NULL,
	resource TEXT,
	action TEXT,
	protocol TEXT,
	op_id TEXT,
	resource_id TEXT,
	duration_ms INTEGER,
	status_code INTEGER,
	success BOOLEAN NOT NULL,
	error_msg TEXT,
	detail TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_shop ON audit_events(shop);
CREATE INDEX IF NOT EXISTS idx_audit_kind ON audit_events(kind);
CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_events(resource);
`

// Recorder buffers events and writes them to SQLite in batches. A nil
// Recorder discards everything.
type Recorder struct {
	db        *sql.DB
	mu        sync.Mutex
	batchSize int

	bufferMu sync.Mutex
	buffer   []Event

	flushTicker *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
	nowFunc     func() time.Time
}

// Open creates or opens the trail at path.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	r := &Recorder{
		db:          db,
		batchSize:   100,
		buffer:      make([]Event, 0, 100),
		flushTicker: time.NewTicker(5 * time.Second),
		done:        make(chan struct{}),
		nowFunc:     time.Now,
	}
	go r.backgroundFlush()
	return r, nil
}

// Record queues ev. A zero Timestamp is set to now.
func (r *Recorder) Record(ev Event) {
	if r == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.nowFunc()
	}
	ev.Timestamp = ev.Timestamp.UTC()

	r.bufferMu.Lock()
	r.buffer = append(r.buffer, ev)
	full := len(r.buffer) >= r.batchSize
	r.bufferMu.Unlock()

	if full {
		go r.Flush()
	}
}

// Flush writes all buffered events in one transaction.
func (r *Recorder) Flush() error {
	if r == nil {
		return nil
	}
	r.bufferMu.Lock()
	if len(r.buffer) == 0 {
		r.bufferMu.Unlock()
		return nil
	}
	events := make([]Event, len(r.buffer))
	copy(events, r.buffer)
	r.buffer = r.buffer[:0]
	r.bufferMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO audit_events (
			timestamp, shop, kind, resource, action, protocol, op_id,
			resource_id, duration_ms, status_code, success, error_msg, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		var detail []byte
		if ev.Detail != nil {
			detail, _ = json.Marshal(ev.Detail)
		}
		_, err := stmt.Exec(
			ev.Timestamp,
			ev.Shop,
			string(ev.Kind),
			ev.Resource,
			ev.Action,
			ev.Protocol,
			ev.OperationID,
			ev.ResourceID,
			ev.DurationMs,
			ev.StatusCode,
			ev.Success,
			ev.ErrorMsg,
			string(detail),
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

func (r *Recorder) backgroundFlush() {
	for {
		select {
		case <-r.flushTicker.C:
			_ = r.Flush()
		case <-r.done:
			return
		}
	}
}

// QueryOptions filters Query. Zero values match everything.
type QueryOptions struct {
	Shop      string
	Kind      Kind
	Resource  string
	StartTime time.Time
	EndTime   time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// Query returns matching events, newest first. Buffered events are flushed
// first so callers see their own writes.
func (r *Recorder) Query(opts QueryOptions) ([]Event, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		SELECT id, timestamp, shop, kind, resource, action, protocol, op_id,
		       resource_id, duration_ms, status_code, success, error_msg, detail
		FROM audit_events
		WHERE 1=1
	`
	args := make([]any, 0)
	if opts.Shop != "" {
		query += " AND shop = ?"
		args = append(args, opts.Shop)
	}
	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(opts.Kind))
	}
	if opts.Resource != "" {
		query += " AND resource = ?"
		args = append(args, opts.Resource)
	}
	if !opts.StartTime.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, opts.StartTime.UTC())
	}
	if !opts.EndTime.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, opts.EndTime.UTC())
	}
	if opts.Success != nil {
		query += " AND success = ?"
		args = append(args, *opts.Success)
	}

	limit := 100
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC, id DESC LIMIT %d OFFSET %d", limit, max(opts.Offset, 0))

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev                                                   Event
			kind                                                 string
			resource, action, protocol, opID, resourceID, errMsg sql.NullString
			detail                                               sql.NullString
			duration                                             sql.NullInt64
			status                                               sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Shop, &kind, &resource, &action, &protocol, &opID,
			&resourceID, &duration, &status, &ev.Success, &errMsg, &detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		ev.Resource = resource.String
		ev.Action = action.String
		ev.Protocol = protocol.String
		ev.OperationID = opID.String
		ev.ResourceID = resourceID.String
		ev.DurationMs = duration.Int64
		ev.StatusCode = int(status.Int64)
		ev.ErrorMsg = errMsg.String
		if detail.Valid && detail.String != "" {
			_ = json.Unmarshal([]byte(detail.String), &ev.Detail)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Stats aggregates the writes made through the client.
type Stats struct {
	TotalWrites   int64   `json:"total_writes"`
	FailedWrites  int64   `json:"failed_writes"`
	ErrorRate     float64 `json:"error_rate"`
	AvgDurationMs int64   `json:"avg_duration_ms"`
	MaxDurationMs int64   `json:"max_duration_ms"`
}

// GetStats summarizes mutations and deletes for shop since the given time.
func (r *Recorder) GetStats(shop string, since time.Time) (*Stats, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN duration_ms > 0 THEN duration_ms ELSE NULL END),
			COALESCE(MAX(duration_ms), 0)
		FROM audit_events
		WHERE kind IN ('mutation', 'delete')
	`
	args := make([]any, 0)
	if shop != "" {
		query += " AND shop = ?"
		args = append(args, shop)
	}
	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since.UTC())
	}

	var (
		stats Stats
		avg   sql.NullFloat64
	)
	if err := r.db.QueryRow(query, args...).Scan(&stats.TotalWrites, &stats.FailedWrites, &avg, &stats.MaxDurationMs); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMs = int64(avg.Float64)
	}
	if stats.TotalWrites > 0 {
		stats.ErrorRate = float64(stats.FailedWrites) / float64(stats.TotalWrites) * 100
	}
	return &stats, nil
}

// Close flushes remaining events and closes the database.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		r.flushTicker.Stop()
		close(r.done)
	})
	if err := r.Flush(); err != nil {
		r.db.Close()
		return err
	}
	return r.db.Close()
}
