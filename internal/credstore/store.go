// Package credstore persists the single bearer token for this installation.
// The in-memory value is authoritative for the process lifetime; SQLite makes
// it survive restarts. Persistence failures are logged, never fatal.
package credstore

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// tokenKey is the fixed storage key for the bearer token row.
const tokenKey = "authToken"

const installKey = "installID"

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	name       TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

// Store holds at most one live bearer token.
type Store struct {
	db  *sqlx.DB
	key [32]byte

	mu        sync.Mutex
	token     string
	hasToken  bool
	installID string
}

// Open prepares the store under dir, creating the directory, the cipher key
// file and the database as needed, and loads any persisted token.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	key, err := loadOrCreateKey(filepath.Join(dir, "credstore.key"))
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite3", filepath.Join(dir, "credstore.db"))
	if err != nil {
		return nil, fmt.Errorf("open credstore db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply credstore schema: %w", err)
	}

	s := &Store{db: db, key: key}
	s.loadToken()
	if err := s.ensureInstallID(); err != nil {
		logErr("ensure install id", err)
	}
	return s, nil
}

// Close closes the backing database.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the current token, if one is present.
func (s *Store) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.hasToken
}

// Token implements the request client's token source.
func (s *Store) Token() (string, bool) { return s.Get() }

// Set overwrites the stored token. The new value is visible to Get
// immediately; a persistence failure only costs restart survival.
func (s *Store) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.hasToken = true
	s.mu.Unlock()

	sealed, err := s.seal([]byte(token))
	if err != nil {
		logErr("seal token", err)
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO credentials(name, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		tokenKey, sealed, time.Now().UTC().Format(time.RFC3339),
	)
	logErr("persist token", err)
}

// Clear deletes the stored token.
func (s *Store) Clear() {
	s.mu.Lock()
	s.token = ""
	s.hasToken = false
	s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM credentials WHERE name = ?`, tokenKey)
	logErr("clear token", err)
}

// InstallID returns the stable per-installation identifier.
func (s *Store) InstallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installID
}

func (s *Store) loadToken() {
	var sealed []byte
	err := s.db.Get(&sealed, `SELECT value FROM credentials WHERE name = ?`, tokenKey)
	if errors.Is(err, sql.ErrNoRows) {
		return
	}
	if err != nil {
		logErr("load token", err)
		return
	}
	plain, err := s.open(sealed)
	if err != nil {
		// Unreadable row is treated as absent; the user signs in again.
		logErr("decrypt token", err)
		return
	}
	s.mu.Lock()
	s.token = string(plain)
	s.hasToken = true
	s.mu.Unlock()
}

func (s *Store) ensureInstallID() error {
	var sealed []byte
	err := s.db.Get(&sealed, `SELECT value FROM credentials WHERE name = ?`, installKey)
	switch {
	case err == nil:
		plain, derr := s.open(sealed)
		if derr == nil {
			s.mu.Lock()
			s.installID = string(plain)
			s.mu.Unlock()
			return nil
		}
		// fall through and mint a fresh one
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	id := uuid.NewString()
	sealed, err = s.seal([]byte(id))
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(
		`INSERT INTO credentials(name, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		installKey, sealed, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	s.mu.Lock()
	s.installID = id
	s.mu.Unlock()
	return nil
}

func loadOrCreateKey(path string) ([32]byte, error) {
	var key [32]byte
	b, err := os.ReadFile(path)
	if err == nil && len(b) == len(key) {
		copy(key[:], b)
		return key, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return key, fmt.Errorf("read key file: %w", err)
	}
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("generate key: %w", err)
	}
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		return key, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

func logErr(prefix string, err error) {
	if err != nil {
		log.Printf("credstore: %s: %v", prefix, err)
	}
}
