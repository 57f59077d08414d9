// Package datastore provides named, cache-backed structured-data stores: a
// thin wrapper around embedded SQLite with named query registration, deferred
// index creation, explicit transactions, and per-table freshness tracking
// used to decide when externally sourced data must be re-fetched.
package datastore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/paladinbio/paladin-plugins/internal/log"
)

// ErrTransactionOpen is returned by Begin when a transaction is already open.
var ErrTransactionOpen = errors.New("transaction already open")

// ErrNoTransaction is returned by End when no transaction is open.
var ErrNoTransaction = errors.New("no transaction open")

// Manager holds every named store opened during a run. It replaces a
// process-global registry so tests can build isolated instances.
type Manager struct {
	stores map[string]*Store
}

// NewManager creates an empty store manager.
func NewManager() *Manager {
	return &Manager{stores: make(map[string]*Store)}
}

// Open opens (creating if absent) the database at path and registers it
// under name. The first registration for a name wins; subsequent calls
// return the existing store untouched.
func (m *Manager) Open(name, path string) (*Store, error) {
	if s, ok := m.stores[name]; ok {
		return s, nil
	}

	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache store %q: %w", name, err)
	}

	s := &Store{
		name:    name,
		db:      db,
		queries: make(map[string]string),
		indices: make(map[string]indexDef),
	}
	m.stores[name] = s
	log.Debug(log.CatDB, "Opened cache store", "name", name, "path", path)
	return s, nil
}

// Get returns the store registered under name, or nil.
func (m *Manager) Get(name string) *Store {
	return m.stores[name]
}

// CloseAll closes every open store connection.
func (m *Manager) CloseAll() error {
	var firstErr error
	for name, s := range m.stores {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing cache store %q: %w", name, err)
		}
	}
	return firstErr
}

// Column describes one table column as (name, type, modifier).
type Column struct {
	Name     string
	Type     string
	Modifier string
}

type indexDef struct {
	table   string
	columns []string
	unique  bool
}

// Store is one named cache store backed by an embedded SQLite database.
// Writes auto-commit unless an explicit transaction is open.
type Store struct {
	name    string
	db      *sql.DB
	queries map[string]string
	indices map[string]indexDef
	tx      *sql.Tx
}

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// conn routes statements through the open transaction when one exists.
func (s *Store) conn() dbtx {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// CreateTable creates a table (if absent) from a list of column definitions.
func (s *Store) CreateTable(table string, columns []Column) error {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, strings.TrimSpace(fmt.Sprintf("%s %s %s", c.Name, c.Type, c.Modifier)))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	if _, err := s.conn().Exec(ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	return nil
}

// DefineIndex records an index definition without creating it. Creation is
// deferred so callers can drop indexes before a bulk load and rebuild them
// afterward.
func (s *Store) DefineIndex(name, table string, columns []string, unique bool) {
	s.indices[name] = indexDef{table: table, columns: columns, unique: unique}
}

// CreateIndex creates a previously defined index. Undefined names are a
// no-op, mirroring the soft-failure contract of Query.
func (s *Store) CreateIndex(name string) error {
	def, ok := s.indices[name]
	if !ok {
		return nil
	}

	unique := ""
	if def.unique {
		unique = "UNIQUE "
	}
	ddl := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s(%s)",
		unique, name, def.table, strings.Join(def.columns, ", "))
	if _, err := s.conn().Exec(ddl); err != nil {
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	return nil
}

// DropIndex drops a previously defined index. Undefined names are a no-op.
func (s *Store) DropIndex(name string) error {
	if _, ok := s.indices[name]; !ok {
		return nil
	}
	if _, err := s.conn().Exec(fmt.Sprintf("DROP INDEX IF EXISTS %s", name)); err != nil {
		return fmt.Errorf("dropping index %s: %w", name, err)
	}
	return nil
}

// DefineQuery registers a named parameterized query.
func (s *Store) DefineQuery(name, query string) {
	s.queries[name] = query
}

// InsertRows bulk-inserts rows. Duplicate-key rows are silently ignored:
// the first write wins.
func (s *Store) InsertRows(table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(rows[0])), ",")
	stmt := fmt.Sprintf("INSERT OR IGNORE INTO %s VALUES (%s)", table, placeholders)
	for _, row := range rows {
		if _, err := s.conn().Exec(stmt, row...); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	return nil
}

// DeleteRows deletes rows, optionally constrained by a WHERE clause body.
func (s *Store) DeleteRows(table, where string) error {
	stmt := "DELETE FROM " + table
	if where != "" {
		stmt += " WHERE " + where
	}
	if _, err := s.conn().Exec(stmt); err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return nil
}

// Query executes a previously defined named query. An undefined name yields
// an empty result, not an error: optional-feature plugins probe for queries
// registered by their dependencies.
func (s *Store) Query(name string, args ...any) (*Result, error) {
	query, ok := s.queries[name]
	if !ok {
		log.Debug(log.CatDB, "Undefined query", "store", s.name, "query", name)
		return &Result{}, nil
	}

	rows, err := s.conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query %s: %w", name, err)
	}
	return &Result{rows: rows}, nil
}

// Begin opens an explicit transaction. While open, DDL/DML calls do not
// auto-commit. Transactions never nest: a second Begin fails fast.
func (s *Store) Begin() error {
	if s.tx != nil {
		return ErrTransactionOpen
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// End commits the open transaction.
func (s *Store) End() error {
	if s.tx == nil {
		return ErrNoTransaction
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// InTransaction reports whether an explicit transaction is open.
func (s *Store) InTransaction() bool { return s.tx != nil }

// MarkFresh stamps table with the current timestamp in the freshness table.
func (s *Store) MarkFresh(table string) error {
	c := s.conn()
	if _, err := c.Exec("INSERT OR IGNORE INTO age VALUES (?, 0)", table); err != nil {
		return fmt.Errorf("marking %s fresh: %w", table, err)
	}
	if _, err := c.Exec("UPDATE age SET modified = CURRENT_TIMESTAMP WHERE name = ?", table); err != nil {
		return fmt.Errorf("marking %s fresh: %w", table, err)
	}
	return nil
}

// Expired reports whether table's freshness record is older than days.
// A table with no freshness record is expired.
func (s *Store) Expired(table string, days float64) (bool, error) {
	var age sql.NullFloat64
	err := s.conn().QueryRow(
		"SELECT julianday(CURRENT_TIMESTAMP) - julianday(modified) FROM age WHERE name = ?",
		table,
	).Scan(&age)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking freshness of %s: %w", table, err)
	}
	if !age.Valid {
		return true, nil
	}
	return age.Float64 > days, nil
}

func (s *Store) close() error {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

// Result is a cursor over a named query's rows. The zero value is an empty
// result, used for undefined query names.
type Result struct {
	rows *sql.Rows
}

// Next advances to the next row, returning false when exhausted or empty.
func (r *Result) Next() bool {
	if r.rows == nil {
		return false
	}
	return r.rows.Next()
}

// Scan copies the current row's columns into dest.
func (r *Result) Scan(dest ...any) error {
	if r.rows == nil {
		return errors.New("scan on empty result")
	}
	return r.rows.Scan(dest...)
}

// Err returns any error encountered during iteration.
func (r *Result) Err() error {
	if r.rows == nil {
		return nil
	}
	return r.rows.Err()
}

// Close releases the underlying cursor. Safe on empty results.
func (r *Result) Close() error {
	if r.rows == nil {
		return nil
	}
	return r.rows.Close()
}
