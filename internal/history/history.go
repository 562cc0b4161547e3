// Package history keeps a local sqlite log of alert transitions. It is an
// optional audit trail; the bus remains the authoritative alert channel.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"outage-agent/internal/alerting"
)

// Open opens (and creates, if needed) the history database at path.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the transition table.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			asset TEXT NOT NULL,
			rule TEXT NOT NULL,
			state TEXT NOT NULL,
			severity TEXT NOT NULL,
			description TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_asset_ts ON alert_transitions(asset, ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// Transition is one recorded state change.
type Transition struct {
	TS          time.Time
	Asset       string
	Rule        string
	State       string
	Severity    string
	Description string
}

// Recorder appends every published alert to the transition table. It
// satisfies the tracker's publisher contract, so it fans in next to the bus
// publisher.
type Recorder struct {
	db *sql.DB
}

// NewRecorder wraps an opened, migrated database.
func NewRecorder(db *sql.DB) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("history: nil db")
	}
	return &Recorder{db: db}, nil
}

// PublishAlert records one transition.
func (r *Recorder) PublishAlert(ctx context.Context, alert alerting.Alert) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO alert_transitions
		(ts,asset,rule,state,severity,description) VALUES (?,?,?,?,?,?)`,
		time.Unix(int64(alert.TimeSec), 0).UTC(), alert.Asset, alert.Rule,
		alert.State, alert.Severity, alert.Description)
	if err != nil {
		return fmt.Errorf("history: insert transition: %w", err)
	}
	return nil
}

// Recent returns the newest transitions for an asset, most recent first.
// An empty asset selects across all assets.
func (r *Recorder) Recent(ctx context.Context, asset string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ts,asset,rule,state,severity,description FROM alert_transitions`
	args := []any{}
	if asset != "" {
		query += ` WHERE asset = ?`
		args = append(args, asset)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.TS, &t.Asset, &t.Rule, &t.State, &t.Severity, &t.Description); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
