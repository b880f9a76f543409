package vision

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Exchange is one logged model call: enough to diagnose latency and failure
// patterns without storing prompts or frames.
type Exchange struct {
	Timestamp time.Time
	Provider  string
	Op        string
	LatencyMS int64
	Status    int
	ErrorKind string
}

// ExchangeLog is an append-only diagnostics log of model calls, backed by a
// small SQLite database. Logging failures are absorbed: diagnostics must
// never fail a capture tick.
type ExchangeLog struct {
	db *sql.DB
	mu sync.Mutex
}

func OpenExchangeLog(dbPath string) (*ExchangeLog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	l := &ExchangeLog{db: db}
	if err := l.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *ExchangeLog) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := l.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (l *ExchangeLog) initSchema() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		provider TEXT NOT NULL,
		op TEXT NOT NULL,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	_, err = l.db.Exec(`CREATE INDEX IF NOT EXISTS idx_exchanges_ts ON exchanges(ts)`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (l *ExchangeLog) Record(e Exchange) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(
		`INSERT INTO exchanges (ts, provider, op, latency_ms, status, error_kind) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Timestamp.Format(time.RFC3339), e.Provider, e.Op, e.LatencyMS, e.Status, e.ErrorKind,
	)
	if err != nil {
		log.Printf("[vision] exchange log write failed: %v", err)
	}
}

// Recent returns the most recent n exchanges, newest first.
func (l *ExchangeLog) Recent(n int) ([]Exchange, error) {
	rows, err := l.db.Query(
		`SELECT ts, provider, op, latency_ms, status, error_kind FROM exchanges ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		var ts string
		if err := rows.Scan(&ts, &e.Provider, &e.Op, &e.LatencyMS, &e.Status, &e.ErrorKind); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *ExchangeLog) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
