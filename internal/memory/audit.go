// Package memory provides the SQLite-backed audit store. Conversation
// history itself is kept in memory by the orchestrator and is intentionally
// not persisted here.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"alfred/internal/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// AuditStore persists audit entries in a local SQLite database.
type AuditStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAuditStore(dbPath string, logger *slog.Logger) (*AuditStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &AuditStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *AuditStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id          TEXT PRIMARY KEY,
		action      TEXT NOT NULL,
		tool_name   TEXT,
		args        TEXT,
		result      TEXT,
		details     TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_log(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *AuditStore) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, tool_name, args, result, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, entry.Action, entry.ToolName, entry.Args, entry.Result, entry.Details, time.Now(),
	)
	return err
}

// RecentEntries returns the latest audit entries, newest first.
func (s *AuditStore) RecentEntries(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, tool_name, args, result, details
		 FROM audit_log ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var toolName, args, result, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &toolName, &args, &result, &details); err != nil {
			return nil, err
		}
		e.ToolName = toolName.String
		e.Args = args.String
		e.Result = result.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}
