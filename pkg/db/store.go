package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DBExecutor is an interface that allows functions to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// maxParams keeps IN (...) lists under SQLite's host parameter limit.
const maxParams = 500

const selectEntry = `SELECT id, term, IFNULL(definition, ''), IFNULL(source, '') FROM glossary`

// isUniqueConstraintErr returns true when the error is a UNIQUE constraint violation.
func isUniqueConstraintErr(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			(se.Code == sqlite3.ErrConstraint && strings.Contains(strings.ToLower(se.Error()), "unique"))
	}
	return false
}

// TermExists reports whether an entry with exactly this term is stored.
func TermExists(db DBExecutor, term string) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM glossary WHERE term = ?`, term).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertEntry adds a new entry and returns it with its assigned id.
func InsertEntry(db DBExecutor, term, definition, source string) (Entry, error) {
	if strings.TrimSpace(term) == "" {
		return Entry{}, ErrEmptyTerm
	}

	exists, err := TermExists(db, term)
	if err != nil {
		return Entry{}, fmt.Errorf("probe term: %w", err)
	}
	if exists {
		return Entry{}, fmt.Errorf("%w: %q", ErrDuplicateTerm, term)
	}

	res, err := db.Exec(
		`INSERT INTO glossary (term, definition, source) VALUES (?, ?, ?)`,
		term, definition, source,
	)
	if err != nil {
		// A writer outside this process may have won the race after the probe.
		if isUniqueConstraintErr(err) {
			return Entry{}, fmt.Errorf("%w: %q", ErrDuplicateTerm, term)
		}
		return Entry{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, err
	}
	return Entry{ID: id, Term: term, Definition: definition, Source: source}, nil
}

// GetEntry returns the entry with exactly this term.
func GetEntry(db DBExecutor, term string) (Entry, error) {
	var e Entry
	err := db.QueryRow(selectEntry+` WHERE term = ?`, term).
		Scan(&e.ID, &e.Term, &e.Definition, &e.Source)
	if err == sql.ErrNoRows {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, term)
	}
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// SetEntryField writes value into the named field of the entry with id.
// Each field has its own fixed statement; no SQL is built from input.
func SetEntryField(db DBExecutor, id int64, field Field, value string) error {
	var query string
	switch field {
	case FieldDefinition:
		query = `UPDATE glossary SET definition = ? WHERE id = ?`
	case FieldSource:
		query = `UPDATE glossary SET source = ? WHERE id = ?`
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	_, err := db.Exec(query, value, id)
	return err
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Term, &e.Definition, &e.Source); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Store is the sole gateway to the glossary table. Every call reads from
// the database; nothing is cached. It assumes a single writer.
type Store struct {
	conn *sql.DB
	path string
	log  zerolog.Logger
}

// DB exposes the underlying connection for bulk writers.
func (s *Store) DB() *sql.DB { return s.conn }

// Path returns the database location the store was opened with.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) fail(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// ListAll returns every entry ordered by id.
func (s *Store) ListAll() ([]Entry, error) {
	rows, err := s.conn.Query(selectEntry + ` ORDER BY id`)
	if err != nil {
		return nil, s.fail("list", err)
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, s.fail("list", err)
	}
	return out, nil
}

// ListSorted returns every entry ordered case-insensitively by term.
func (s *Store) ListSorted() ([]Entry, error) {
	rows, err := s.conn.Query(selectEntry + ` ORDER BY term COLLATE ` + collationName + `, id`)
	if err != nil {
		return nil, s.fail("list", err)
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, s.fail("list", err)
	}
	return out, nil
}

// Search returns entries whose term or definition contains query, ignoring
// case. An empty query returns every entry.
func (s *Store) Search(query string) ([]Entry, error) {
	if query == "" {
		return s.ListAll()
	}
	rows, err := s.conn.Query(
		selectEntry+` WHERE `+containsFuncName+`(term, ?1) OR `+containsFuncName+`(IFNULL(definition, ''), ?1) ORDER BY id`,
		query,
	)
	if err != nil {
		return nil, s.fail("search", err)
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, s.fail("search", err)
	}
	return out, nil
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM glossary`).Scan(&n); err != nil {
		return 0, s.fail("count", err)
	}
	return n, nil
}

// Get returns the entry with exactly this term.
func (s *Store) Get(term string) (Entry, error) {
	e, err := GetEntry(s.conn, term)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Entry{}, s.fail("get", err)
	}
	return e, err
}

// Add creates a new entry. Strings are stored verbatim.
func (s *Store) Add(term, definition, source string) (Entry, error) {
	e, err := InsertEntry(s.conn, term, definition, source)
	if err != nil {
		if errors.Is(err, ErrEmptyTerm) || errors.Is(err, ErrDuplicateTerm) {
			return Entry{}, err
		}
		return Entry{}, s.fail("add", err)
	}
	s.log.Debug().Int64("id", e.ID).Str("term", e.Term).Msg("entry added")
	return e, nil
}

// UpdateField replaces one editable field of the entry with this term and
// returns the updated entry.
func (s *Store) UpdateField(term string, field Field, value string) (Entry, error) {
	if field != FieldDefinition && field != FieldSource {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return Entry{}, s.fail("update", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	e, err := GetEntry(tx, term)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Entry{}, err
		}
		return Entry{}, s.fail("update", err)
	}
	if err := SetEntryField(tx, e.ID, field, value); err != nil {
		return Entry{}, s.fail("update", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, s.fail("update", err)
	}

	switch field {
	case FieldDefinition:
		e.Definition = value
	case FieldSource:
		e.Source = value
	}
	s.log.Debug().Int64("id", e.ID).Str("term", e.Term).Stringer("field", field).Msg("entry updated")
	return e, nil
}

// Remove deletes every entry whose term is in terms. Unknown terms are
// ignored. Either all matching rows are deleted or none are.
func (s *Store) Remove(terms []string) (int, error) {
	return s.RemoveEntries(terms, nil)
}

// RemoveIDs deletes every entry whose id is in ids, with the same
// all-or-nothing behaviour as Remove.
func (s *Store) RemoveIDs(ids []int64) (int, error) {
	return s.RemoveEntries(nil, ids)
}

// RemoveEntries deletes the entries named by terms and the entries with the
// given ids in a single transaction. An entry matched by both counts once.
func (s *Store) RemoveEntries(terms []string, ids []int64) (int, error) {
	termArgs := make([]interface{}, 0, len(terms))
	seenTerms := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if _, ok := seenTerms[t]; ok {
			continue
		}
		seenTerms[t] = struct{}{}
		termArgs = append(termArgs, t)
	}
	idArgs := make([]interface{}, 0, len(ids))
	seenIDs := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seenIDs[id]; ok {
			continue
		}
		seenIDs[id] = struct{}{}
		idArgs = append(idArgs, id)
	}
	if len(termArgs) == 0 && len(idArgs) == 0 {
		return 0, nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return 0, s.fail("remove", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	byTerm, err := deleteIn(tx, "term", termArgs)
	if err != nil {
		return 0, s.fail("remove", err)
	}
	byID, err := deleteIn(tx, "id", idArgs)
	if err != nil {
		return 0, s.fail("remove", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, s.fail("remove", err)
	}

	n := byTerm + byID
	s.log.Debug().Int("terms", len(termArgs)).Int("ids", len(idArgs)).Int("removed", n).Msg("entries removed")
	return n, nil
}

// deleteIn runs chunked DELETE ... WHERE column IN (...) on db.
// column is always a literal supplied by this package.
func deleteIn(db DBExecutor, column string, args []interface{}) (int, error) {
	var total int64
	for start := 0; start < len(args); start += maxParams {
		end := min(start+maxParams, len(args))
		chunk := args[start:end]
		res, err := db.Exec(
			`DELETE FROM glossary WHERE `+column+` IN (`+placeholders(len(chunk))+`)`,
			chunk...,
		)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return int(total), nil
}

// ExportSubset returns the rows for the given terms ordered
// case-insensitively by term. Entries whose terms fold to the same string
// keep insertion order. Unknown terms are skipped.
func (s *Store) ExportSubset(terms []string) ([]ExportRow, error) {
	args := make([]interface{}, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		args = append(args, t)
	}

	var found []Entry
	for start := 0; start < len(args); start += maxParams {
		end := min(start+maxParams, len(args))
		chunk := args[start:end]
		rows, err := s.conn.Query(
			selectEntry+` WHERE term IN (`+placeholders(len(chunk))+`) ORDER BY term COLLATE `+collationName+`, id`,
			chunk...,
		)
		if err != nil {
			return nil, s.fail("export", err)
		}
		part, err := scanEntries(rows)
		if err != nil {
			return nil, s.fail("export", err)
		}
		found = append(found, part...)
	}

	// Chunks are each ordered; merge them under the same rule.
	sort.SliceStable(found, func(i, j int) bool {
		if c := CompareTerms(found[i].Term, found[j].Term); c != 0 {
			return c < 0
		}
		return found[i].ID < found[j].ID
	})

	out := make([]ExportRow, 0, len(found))
	for _, e := range found {
		out = append(out, ExportRow{Term: e.Term, Definition: e.Definition, Source: e.Source})
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
