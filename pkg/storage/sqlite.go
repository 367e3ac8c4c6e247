package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single-table SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	stmtSave *sql.Stmt
	stmtLoad *sql.Stmt
	mu       sync.RWMutex
	closed   bool
}

// NewSQLiteStore opens (or creates) the database at path and applies migrations.
func NewSQLiteStore(path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, ErrInvalidConfig
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if pingErr := db.Ping(); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, pingErr)
	}

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, pragmaErr := db.Exec(pragma); pragmaErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", pragmaErr)
		}
	}

	if migrationErr := runMigrations(db); migrationErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", migrationErr)
	}

	stmtSave, err := db.Prepare(`
		INSERT INTO device_ips (device, ip, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device) DO UPDATE SET ip = excluded.ip, updated_at = excluded.updated_at
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare save statement: %w", err)
	}

	stmtLoad, err := db.Prepare(`SELECT ip, updated_at FROM device_ips WHERE device = ?`)
	if err != nil {
		_ = stmtSave.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare load statement: %w", err)
	}

	return &SQLiteStore{db: db, stmtSave: stmtSave, stmtLoad: stmtLoad}, nil
}

// Load returns the persisted entry for key
func (s *SQLiteStore) Load(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var rawIP, rawTime string
	err := s.stmtLoad.QueryRowContext(ctx, key).Scan(&rawIP, &rawTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	ip, err := netip.ParseAddr(rawIP)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	updated, _ := time.Parse(time.RFC3339Nano, rawTime)

	return &Entry{Key: key, IP: ip, UpdatedAt: updated}, nil
}

// Save upserts the entry for key
func (s *SQLiteStore) Save(ctx context.Context, key string, ip netip.Addr) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.stmtSave.ExecContext(ctx, key, ip.String(), now); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Ping checks if the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes prepared statements and the database. Safe to call twice.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.stmtSave.Close()
	_ = s.stmtLoad.Close()
	return s.db.Close()
}
