// Package ledger provides persistent storage for the bridge daemon using
// SQLite: program account bytes, the token balance book, and the outbox of
// withdrawal transactions handed to the messenger.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/psy-protocol/doge-bridge/pkg/logging"
)

// Config holds ledger configuration.
type Config struct {
	DataDir string
}

// Store is the daemon's persistence layer.
type Store struct {
	db     *sql.DB
	dbPath string
	log    *logging.Logger
	mu     sync.RWMutex
}

// Open opens (or creates) the ledger database under the data directory.
func Open(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "psybridge.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
		log:    logging.GetDefault().Component("ledger"),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// initSchema creates all database tables.
func (s *Store) initSchema() error {
	schema := `
	-- Program accounts (bridge state, buffer accounts) as raw bytes
	CREATE TABLE IF NOT EXISTS accounts (
		key TEXT PRIMARY KEY,          -- hex pubkey
		owner TEXT NOT NULL,           -- hex pubkey of owning program
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner);

	-- Wrapped-DOGE balance book
	CREATE TABLE IF NOT EXISTS balances (
		holder TEXT PRIMARY KEY,       -- hex pubkey
		amount INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	-- Outbox of signed Dogecoin transactions awaiting gossip delivery
	CREATE TABLE IF NOT EXISTS tx_outbox (
		id TEXT PRIMARY KEY,           -- UUID
		nonce INTEGER NOT NULL,        -- processed-withdrawals cursor at post time
		sighash TEXT NOT NULL,         -- hex double-sha256 of tx bytes
		payload BLOB NOT NULL,         -- raw tx bytes
		created_at INTEGER NOT NULL,
		published_at INTEGER,          -- NULL until published on gossip
		publish_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_pending ON tx_outbox(published_at)
		WHERE published_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_outbox_sighash ON tx_outbox(sighash);

	-- Journal of executed bridge instructions (audit trail)
	CREATE TABLE IF NOT EXISTS instruction_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		op TEXT NOT NULL,
		ok INTEGER NOT NULL,
		detail TEXT,
		executed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_instruction_log_op ON instruction_log(op);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordInstruction appends an entry to the instruction audit journal.
func (s *Store) RecordInstruction(op string, execErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := 1
	detail := ""
	if execErr != nil {
		ok = 0
		detail = execErr.Error()
	}

	_, err := s.db.Exec(`
		INSERT INTO instruction_log (op, ok, detail, executed_at)
		VALUES (?, ?, ?, ?)
	`, op, ok, detail, time.Now().Unix())
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
