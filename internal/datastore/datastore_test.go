package datastore

import (
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	m := NewManager()
	t.Cleanup(func() { _ = m.CloseAll() })

	s, err := m.Open("test", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return s
}

func kvStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t)
	require.NoError(t, s.CreateTable("t", []Column{
		{Name: "k", Type: "integer", Modifier: "PRIMARY KEY"},
		{Name: "v", Type: "text"},
	}))
	return s
}

func TestManagerOpenFirstWins(t *testing.T) {
	m := NewManager()
	t.Cleanup(func() { _ = m.CloseAll() })
	dir := t.TempDir()

	first, err := m.Open("shared", filepath.Join(dir, "first.db"))
	require.NoError(t, err)

	// A second open under the same name ignores the new path.
	second, err := m.Open("shared", filepath.Join(dir, "second.db"))
	require.NoError(t, err)
	require.Same(t, first, second)

	require.Same(t, first, m.Get("shared"))
	require.Nil(t, m.Get("other"))
}

func TestOpenRunsMigrations(t *testing.T) {
	s := newTestStore(t)
	s.DefineQuery("tables", "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")

	result, err := s.Query("tables")
	require.NoError(t, err)
	defer func() { _ = result.Close() }()

	var names []string
	for result.Next() {
		var name string
		require.NoError(t, result.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, result.Err())

	require.Contains(t, names, "age")
	require.Contains(t, names, "schema_migrations")
}

func TestOpenExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")

	m1 := NewManager()
	s1, err := m1.Open("store", path)
	require.NoError(t, err)
	require.NoError(t, s1.MarkFresh("lineage"))
	require.NoError(t, m1.CloseAll())

	// Reopening applies no further migrations and keeps the data intact.
	m2 := NewManager()
	t.Cleanup(func() { _ = m2.CloseAll() })
	s2, err := m2.Open("store", path)
	require.NoError(t, err)

	expired, err := s2.Expired("lineage", 30)
	require.NoError(t, err)
	require.False(t, expired)
}

func TestMigrationDriverVersioning(t *testing.T) {
	db, err := openDB(filepath.Join(t.TempDir(), "versions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d, err := newMigrationDriver(db)
	require.NoError(t, err)

	// openDB already ran the single bootstrap migration.
	version, dirty, err := d.Version()
	require.NoError(t, err)
	require.Equal(t, 1, version)
	require.False(t, dirty)

	require.NoError(t, d.SetVersion(7, true))
	version, dirty, err = d.Version()
	require.NoError(t, err)
	require.Equal(t, 7, version)
	require.True(t, dirty)

	require.NoError(t, d.SetVersion(database.NilVersion, false))
	version, _, err = d.Version()
	require.NoError(t, err)
	require.Equal(t, database.NilVersion, version)
}

func TestCreateTableIdempotent(t *testing.T) {
	s := newTestStore(t)
	cols := []Column{{Name: "k", Type: "text", Modifier: "PRIMARY KEY"}}
	require.NoError(t, s.CreateTable("t", cols))
	require.NoError(t, s.CreateTable("t", cols))
}

func TestInsertRowsIgnoresDuplicates(t *testing.T) {
	s := kvStore(t)
	require.NoError(t, s.InsertRows("t", [][]any{
		{1, "first"},
		{1, "duplicate"},
		{2, "second"},
	}))

	s.DefineQuery("all", "SELECT k, v FROM t ORDER BY k")
	result, err := s.Query("all")
	require.NoError(t, err)
	defer func() { _ = result.Close() }()

	var rows []string
	for result.Next() {
		var k int
		var v string
		require.NoError(t, result.Scan(&k, &v))
		rows = append(rows, v)
	}
	require.NoError(t, result.Err())

	// The first write for a key wins.
	require.Equal(t, []string{"first", "second"}, rows)
}

func TestQueryNamed(t *testing.T) {
	s := kvStore(t)
	require.NoError(t, s.InsertRows("t", [][]any{{5, "x"}}))
	s.DefineQuery("q1", "SELECT v FROM t WHERE k = ?")

	result, err := s.Query("q1", 5)
	require.NoError(t, err)
	defer func() { _ = result.Close() }()

	require.True(t, result.Next())
	var v string
	require.NoError(t, result.Scan(&v))
	require.Equal(t, "x", v)
	require.False(t, result.Next())
}

func TestQueryUndefinedIsEmptyNotError(t *testing.T) {
	s := newTestStore(t)
	result, err := s.Query("never-defined", 1)
	require.NoError(t, err)
	require.False(t, result.Next())
	require.NoError(t, result.Err())
	require.NoError(t, result.Close())
}

func TestDeleteRows(t *testing.T) {
	s := kvStore(t)
	require.NoError(t, s.InsertRows("t", [][]any{{1, "a"}, {2, "b"}, {3, "b"}}))
	s.DefineQuery("count", "SELECT COUNT(*) FROM t")

	require.NoError(t, s.DeleteRows("t", "v = 'b'"))
	result, err := s.Query("count")
	require.NoError(t, err)
	require.True(t, result.Next())
	var n int
	require.NoError(t, result.Scan(&n))
	require.NoError(t, result.Close())
	require.Equal(t, 1, n)

	require.NoError(t, s.DeleteRows("t", ""))
	result, err = s.Query("count")
	require.NoError(t, err)
	require.True(t, result.Next())
	require.NoError(t, result.Scan(&n))
	require.NoError(t, result.Close())
	require.Equal(t, 0, n)
}

func TestIndexLifecycle(t *testing.T) {
	s := kvStore(t)
	s.DefineIndex("t_v", "t", []string{"v"}, false)

	require.NoError(t, s.CreateIndex("t_v"))
	require.NoError(t, s.DropIndex("t_v"))
	require.NoError(t, s.CreateIndex("t_v"))

	// Undefined names are soft no-ops.
	require.NoError(t, s.CreateIndex("undefined"))
	require.NoError(t, s.DropIndex("undefined"))
}

func TestTransactionLifecycle(t *testing.T) {
	s := kvStore(t)

	require.False(t, s.InTransaction())
	require.NoError(t, s.Begin())
	require.True(t, s.InTransaction())

	// Transactions never nest.
	require.ErrorIs(t, s.Begin(), ErrTransactionOpen)

	require.NoError(t, s.InsertRows("t", [][]any{{1, "a"}}))
	require.NoError(t, s.End())
	require.False(t, s.InTransaction())

	require.ErrorIs(t, s.End(), ErrNoTransaction)

	s.DefineQuery("q1", "SELECT v FROM t WHERE k = ?")
	result, err := s.Query("q1", 1)
	require.NoError(t, err)
	require.True(t, result.Next())
	require.NoError(t, result.Close())
}

func TestFreshness(t *testing.T) {
	s := newTestStore(t)

	// No freshness record yet: expired.
	expired, err := s.Expired("lineage", 30)
	require.NoError(t, err)
	require.True(t, expired)

	require.NoError(t, s.MarkFresh("lineage"))
	expired, err = s.Expired("lineage", 30)
	require.NoError(t, err)
	require.False(t, expired)

	// A zero-day threshold expires immediately relative to julianday math.
	expired, err = s.Expired("lineage", -1)
	require.NoError(t, err)
	require.True(t, expired)
}

func TestMarkFreshUpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.MarkFresh("lineage"))
	require.NoError(t, s.MarkFresh("lineage"))

	expired, err := s.Expired("lineage", 30)
	require.NoError(t, err)
	require.False(t, expired)
}
