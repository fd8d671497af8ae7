package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/store/storetest"
)

// createTestStore creates a store in a fresh temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return createTestStore(t)
	})
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	tables := []string{"entities", "entity_settings", "entity_entries", "config_objects", "object_fields", "sync_properties"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "2"))
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestPersist_StoresUIDAsBlob(t *testing.T) {
	s := createTestStore(t)
	defer s.Close()
	ctx := context.Background()

	uid := uuid.MustParse("6f1c3a52-0b1e-4c3e-9a53-1f0f6e7b8a10")
	e := storetest.Datalist("colors", uid)
	require.NoError(t, s.Persist(ctx, e))

	var raw []byte
	require.NoError(t, s.db.QueryRow("SELECT uid FROM entities WHERE id = ?", e.ID).Scan(&raw))
	assert.Len(t, raw, 16)
	assert.Equal(t, uid[:], raw)

	legacy := storetest.Datalist("legacy", uuid.Nil)
	require.NoError(t, s.Persist(ctx, legacy))
	var isNull bool
	require.NoError(t, s.db.QueryRow("SELECT uid IS NULL FROM entities WHERE id = ?", legacy.ID).Scan(&isNull))
	assert.True(t, isNull)
}

func TestDelete_CascadesAttachments(t *testing.T) {
	s := createTestStore(t)
	defer s.Close()
	ctx := context.Background()

	e := storetest.Datalist("colors", uuid.Nil, "a", "b")
	require.NoError(t, s.Persist(ctx, e))
	require.NoError(t, s.Delete(ctx, e))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM entity_entries WHERE entity_id = ?", e.ID).Scan(&n))
	assert.Zero(t, n)
}

func TestPersist_PropertiesAreCanonical(t *testing.T) {
	s := createTestStore(t)
	defer s.Close()
	ctx := context.Background()

	e := storetest.Datafield("color", uuid.Nil, 0)
	require.NoError(t, s.Persist(ctx, e))

	var props string
	require.NoError(t, s.db.QueryRow("SELECT properties FROM entities WHERE id = ?", e.ID).Scan(&props))
	assert.Equal(t,
		`{"caption":"color","datatype":"Icinga\\Module\\Director\\DataType\\DataTypeString","description":null,"format":null,"varname":"color"}`,
		props)

	got, err := s.FindByID(ctx, model.KindDatafield, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "color", got.NaturalKey())
}

func TestOpen_MigratesSettingFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE entity_settings (
			entity_id     INTEGER NOT NULL,
			setting_name  TEXT NOT NULL,
			setting_value TEXT NOT NULL,
			position      INTEGER NOT NULL,
			PRIMARY KEY (entity_id, setting_name)
		);
		INSERT INTO entity_settings VALUES (1, 'behavior', 'strict', 0);
		PRAGMA user_version = 1;
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var format string
	require.NoError(t, s.db.QueryRow(
		"SELECT setting_format FROM entity_settings WHERE setting_name = 'behavior'",
	).Scan(&format))
	assert.Equal(t, "string", format)
	require.NoError(t, s.verifyPragma("user_version", "2"))

	got, err := s.LoadSettings(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, settings.FormatString, got.FormatOf("behavior"))
}
