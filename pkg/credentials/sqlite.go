package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	// Path is the database file. Its directory is created if missing.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// Store persists account records in SQLite, one row per
// (user_name, group_id).
type Store struct {
	db        *sql.DB
	path      string
	closeOnce sync.Once
	closed    chan struct{}

	upsertStmt *sql.Stmt
	listStmt   *sql.Stmt
}

// OpenStore opens (creating when needed) the store at cfg.Path.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "synchronous(NORMAL)")

	db, err := sql.Open("sqlite", cfg.Path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: cfg.Path, closed: make(chan struct{})}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS accounts (
		user_name     TEXT NOT NULL,
		group_id      TEXT NOT NULL,
		token         TEXT NOT NULL,
		device_id     TEXT NOT NULL DEFAULT '',
		agent         TEXT NOT NULL DEFAULT '',
		at_account_no TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL,
		PRIMARY KEY (user_name, group_id)
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_updated ON accounts(updated_at);
	`)
	return err
}

func (s *Store) prepareStatements() error {
	var err error

	s.upsertStmt, err = s.db.Prepare(`
		INSERT INTO accounts (user_name, group_id, token, device_id, agent, at_account_no, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_name, group_id) DO UPDATE SET
			token = excluded.token,
			device_id = excluded.device_id,
			agent = excluded.agent,
			at_account_no = excluded.at_account_no,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT user_name, group_id, token, device_id, agent, at_account_no, created_at, updated_at
		FROM accounts
		ORDER BY updated_at DESC, user_name, group_id
		LIMIT ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}
	return nil
}

// Save implements Sink as an upsert keyed by (user_name, group_id). The
// first CreatedAt of a key is kept.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.UserName == "" {
		return fmt.Errorf("user name cannot be empty")
	}
	if rec.GroupID == "" {
		return fmt.Errorf("group id cannot be empty")
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	_, err := s.upsertStmt.ExecContext(ctx,
		rec.UserName, rec.GroupID, rec.Token, rec.DeviceID, rec.Agent, rec.AtAccountNo,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// List returns up to limit records, most recently updated first. A
// non-positive limit returns every record.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.listStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                  Record
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&rec.UserName, &rec.GroupID, &rec.Token, &rec.DeviceID,
			&rec.Agent, &rec.AtAccountNo, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		rec.UpdatedAt = time.UnixMilli(updatedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the database. It is idempotent.
func (s *Store) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.upsertStmt != nil {
			s.upsertStmt.Close()
		}
		if s.listStmt != nil {
			s.listStmt.Close()
		}
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})
	return closeErr
}
