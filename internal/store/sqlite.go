package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshot_record (
	key        TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshot_record_user ON snapshot_record(user_id);
`

// SQLiteStore keeps snapshots in a single SQLite table, one row per record.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dsn.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	// Pragmas must be prefixed with `_pragma=` for the modernc.org/sqlite driver.
	db, err := sql.Open("sqlite", dsn+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}
	// One connection: also keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return newSQLiteStore(ctx, db)
}

// NewSQLiteStoreFromDB wraps an already opened database.
func NewSQLiteStoreFromDB(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	return newSQLiteStore(ctx, db)
}

func newSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping sqlite")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate snapshot schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the snapshot of userID.
func (s *SQLiteStore) Load(ctx context.Context, userID string) (Record, error) {
	threads, ok, err := s.get(ctx, ThreadsKey(userID))
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	active, _, err := s.get(ctx, ActiveKey(userID))
	if err != nil {
		return Record{}, err
	}
	return Record{Threads: threads, ActiveThreadID: active}, nil
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM snapshot_record WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read record %s", key)
	}
	return value, true, nil
}

// Save overwrites both records of userID in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, userID string, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	stmt := `
		INSERT INTO snapshot_record (key, user_id, value, updated_ts) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts
	`
	if _, err := tx.ExecContext(ctx, stmt, ThreadsKey(userID), userID, rec.Threads, now); err != nil {
		return errors.Wrap(err, "failed to write threads record")
	}
	if _, err := tx.ExecContext(ctx, stmt, ActiveKey(userID), userID, rec.ActiveThreadID, now); err != nil {
		return errors.Wrap(err, "failed to write active thread record")
	}
	return errors.Wrap(tx.Commit(), "failed to commit snapshot")
}

// Delete drops both records of userID.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshot_record WHERE user_id = ?`, userID)
	return errors.Wrap(err, "failed to delete snapshot")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
