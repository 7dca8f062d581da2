package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// AuditEntry is one dispatched conversation turn.
type AuditEntry struct {
	Timestamp  time.Time
	ChatID     string
	ProjectID  string
	UserID     string
	Agent      string
	Duration   time.Duration
	Success    bool
	ErrorClass string
}

// AuditStats aggregates dispatch outcomes over a window.
type AuditStats struct {
	TotalDispatches int
	Successful      int
	ErrorRate       float64
	AverageDuration time.Duration
}

// SQLiteAuditLog records every dispatch to a local SQLite database.
type SQLiteAuditLog struct {
	db *sql.DB
}

// NewSQLiteAuditLog opens (or creates) the audit database.
func NewSQLiteAuditLog(dbPath string) (*SQLiteAuditLog, error) {
	dbPath = expandPath(dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	log := &SQLiteAuditLog{db: db}
	if err := log.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return log, nil
}

func (a *SQLiteAuditLog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dispatch_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		chat_id TEXT NOT NULL,
		project_id TEXT,
		user_id TEXT,
		agent TEXT NOT NULL,
		duration_ms INTEGER,
		success BOOLEAN,
		error_class TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_dispatch_timestamp ON dispatch_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_dispatch_chat ON dispatch_log(chat_id);
	CREATE INDEX IF NOT EXISTS idx_dispatch_user ON dispatch_log(user_id);
	`

	_, err := a.db.Exec(schema)
	return err
}

// Record writes one dispatch entry.
func (a *SQLiteAuditLog) Record(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO dispatch_log (
			timestamp, chat_id, project_id, user_id, agent, duration_ms, success, error_class
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := a.db.ExecContext(ctx, query,
		entry.Timestamp,
		entry.ChatID,
		entry.ProjectID,
		entry.UserID,
		entry.Agent,
		entry.Duration.Milliseconds(),
		entry.Success,
		entry.ErrorClass,
	)
	return err
}

// Recent returns the latest entries for a chat, newest first.
func (a *SQLiteAuditLog) Recent(ctx context.Context, chatID string, limit int) ([]*AuditEntry, error) {
	query := `
		SELECT timestamp, chat_id, project_id, user_id, agent, duration_ms, success, error_class
		FROM dispatch_log WHERE chat_id = ? ORDER BY timestamp DESC LIMIT ?
	`

	rows, err := a.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var durationMs int64
		if err := rows.Scan(
			&entry.Timestamp,
			&entry.ChatID,
			&entry.ProjectID,
			&entry.UserID,
			&entry.Agent,
			&durationMs,
			&entry.Success,
			&entry.ErrorClass,
		); err != nil {
			return nil, err
		}
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// Stats aggregates outcomes since a point in time.
func (a *SQLiteAuditLog) Stats(ctx context.Context, since time.Time) (*AuditStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) as successful,
			AVG(duration_ms) as avg_duration_ms
		FROM dispatch_log
		WHERE timestamp >= ?
	`

	var stats AuditStats
	var successful sql.NullInt64
	var avgDuration sql.NullFloat64

	err := a.db.QueryRowContext(ctx, query, since).Scan(
		&stats.TotalDispatches,
		&successful,
		&avgDuration,
	)
	if err != nil {
		return nil, err
	}

	stats.Successful = int(successful.Int64)
	if avgDuration.Valid {
		stats.AverageDuration = time.Duration(avgDuration.Float64) * time.Millisecond
	}
	if stats.TotalDispatches > 0 {
		stats.ErrorRate = float64(stats.TotalDispatches-stats.Successful) / float64(stats.TotalDispatches)
	}

	return &stats, nil
}

// Close closes the database connection.
func (a *SQLiteAuditLog) Close() error {
	return a.db.Close()
}
