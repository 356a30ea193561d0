package session

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLStore keeps the session keys in a client_session table. The statements
// are valid for both Postgres and SQLite.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens the database for driver and prepares the schema.
func OpenSQLStore(driver, dsn string) (*SQLStore, *sql.DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, nil, fmt.Errorf("unsupported session driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open session database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping session database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and serialises writers.
		db.SetMaxOpenConns(1)
	}
	store, err := NewSQLStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &SQLStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS client_session (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure client_session schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(key string) (string, error) {
	var v string
	const q = `SELECT value FROM client_session WHERE name = $1`
	if err := s.db.QueryRow(q, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("query session key: %w", err)
	}
	return v, nil
}

func (s *SQLStore) SetMany(entries map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
INSERT INTO client_session (name, value)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE
SET value = EXCLUDED.value`
	for _, k := range sortedKeys(entries) {
		if _, err := tx.Exec(q, k, entries[k]); err != nil {
			return fmt.Errorf("upsert session key %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session tx: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = k
	}
	q := `DELETE FROM client_session WHERE name IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := s.db.Exec(q, args...); err != nil {
		return fmt.Errorf("delete session keys: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
