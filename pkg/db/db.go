package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DriverName is the database/sql driver registered by this package. It is the
// stock go-sqlite3 driver with the glossary collation and search function
// installed on every connection.
const DriverName = "sqlite3_glossary"

const (
	collationName    = "GLOSSARY_NOCASE"
	containsFuncName = "glossary_contains"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS glossary (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term TEXT UNIQUE NOT NULL,
	definition TEXT,
	source TEXT
);
`

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterCollation(collationName, CompareTerms); err != nil {
				return fmt.Errorf("register collation: %w", err)
			}
			if err := conn.RegisterFunc(containsFuncName, ContainsFold, true); err != nil {
				return fmt.Errorf("register %s: %w", containsFuncName, err)
			}
			return nil
		},
	})
}

// InitDB creates the glossary table on the given connection if it is missing.
// Existing tables are left as they are.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(schemaSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger used for debug output on mutations.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens an existing glossary database. A missing file, a file that is
// not a SQLite database, or one without a glossary table all fail with
// ErrStoreUnavailable.
func Open(path string, opts ...Option) (*Store, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}
	if fi.IsDir() {
		return nil, &StoreError{Op: "open", Path: path, Err: errors.New("path is a directory")}
	}

	conn, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}
	// One connection keeps every operation on the same view of the file.
	conn.SetMaxOpenConns(1)

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM glossary`).Scan(&n); err != nil {
		conn.Close()
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}
	return newStore(conn, path, opts), nil
}

// Create opens path, creating the file and the glossary table if needed.
func Create(path string, opts ...Option) (*Store, error) {
	conn, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, &StoreError{Op: "create", Path: path, Err: err}
	}
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, &StoreError{Op: "create", Path: path, Err: err}
	}
	return newStore(conn, path, opts), nil
}

// OpenMemory returns a store backed by a private in-memory database.
func OpenMemory(opts ...Option) (*Store, error) {
	conn, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		return nil, err
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return newStore(conn, ":memory:", opts), nil
}

func newStore(conn *sql.DB, path string, opts []Option) *Store {
	s := &Store{conn: conn, path: path, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}
