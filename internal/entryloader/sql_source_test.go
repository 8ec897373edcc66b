package entryloader

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"cms-graphql/internal/dbexec"
	"cms-graphql/internal/entry"
	"cms-graphql/internal/sqlutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSource(t *testing.T, dialect sqlutil.Dialect) (*SQLSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	source, err := NewSQLSource(dbexec.NewStandardExecutor(db, 0), dialect, "")
	require.NoError(t, err)
	return source, mock
}

func entryRows() *sqlmock.Rows {
	return sqlmock.NewRows(entryColumns)
}

func TestSQLSource_EntriesByContentType_Postgres(t *testing.T) {
	source, mock := newMockSource(t, sqlutil.Postgres)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, sys_type, content_type_id, created_at, updated_at, fields FROM "entries" WHERE content_type_id = $1 AND sys_type = $2 ORDER BY created_at, id`,
	)).
		WithArgs("post", entry.TypeEntry).
		WillReturnRows(entryRows().
			AddRow("p1", "Entry", "post", "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", []byte(`{"title":"First","author":{"sys":{"id":"a1"}}}`)).
			AddRow("p2", "Entry", "post", "2024-01-03T00:00:00Z", "2024-01-03T00:00:00Z", []byte(`{}`)))

	entries, err := source.EntriesByContentType(context.Background(), "post")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, entry.Sys{
		ID: "p1", Type: "Entry", ContentTypeID: "post",
		CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-02T00:00:00Z",
	}, entries[0].Sys)
	assert.Equal(t, "First", entries[0].Fields["title"])
	id, ok := entry.LinkID(entries[0].Fields["author"])
	assert.True(t, ok)
	assert.Equal(t, "a1", id)
	assert.Empty(t, entries[1].Fields)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSource_Assets_MySQL(t *testing.T) {
	source, mock := newMockSource(t, sqlutil.MySQL)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, sys_type, content_type_id, created_at, updated_at, fields FROM `entries` WHERE sys_type = ? ORDER BY created_at, id",
	)).
		WithArgs(entry.TypeAsset).
		WillReturnRows(entryRows().
			AddRow("img", "Asset", nil, "2024-01-01", "2024-01-01", []byte(`{"title":"Logo"}`)))

	assets, err := source.Assets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "", assets[0].Sys.ContentTypeID)
	assert.Equal(t, "Logo", assets[0].Fields["title"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSource_EntryByID(t *testing.T) {
	source, mock := newMockSource(t, sqlutil.SQLite)

	query := regexp.QuoteMeta(`SELECT id, sys_type, content_type_id, created_at, updated_at, fields FROM "entries" WHERE id = ? LIMIT 1`)
	mock.ExpectQuery(query).
		WithArgs("a1").
		WillReturnRows(entryRows().AddRow("a1", "Entry", "author", "t", "t", []byte(`{"name":"Ada"}`)))
	mock.ExpectQuery(query).
		WithArgs("missing").
		WillReturnRows(entryRows())

	e, err := source.EntryByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", e.Fields["name"])

	_, err = source.EntryByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSource_Errors(t *testing.T) {
	source, mock := newMockSource(t, sqlutil.Postgres)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))
	_, err := source.EntriesByContentType(context.Background(), "post")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	mock.ExpectQuery("SELECT").WillReturnRows(entryRows().AddRow("p1", "Entry", "post", "t", "t", []byte(`{not json`)))
	_, err = source.EntriesByContentType(context.Background(), "post")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fields document")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLSource_Validation(t *testing.T) {
	_, err := NewSQLSource(nil, sqlutil.MySQL, "entries")
	require.Error(t, err)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, err = NewSQLSource(dbexec.NewStandardExecutor(db, 0), "oracle", "entries")
	require.Error(t, err)
}

func TestSQLSource_EnsureSchemaAndUpsert(t *testing.T) {
	source, mock := newMockSource(t, sqlutil.SQLite)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "entries"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS "entries_content_type_idx"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO "entries" (id,sys_type,content_type_id,created_at,updated_at,fields) VALUES (?,?,?,?,?,?) ON CONFLICT (id) DO UPDATE SET`,
	)).
		WithArgs("p1", "Entry", "post", "t1", "t2", `{"title":"Hi"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctx := context.Background()
	require.NoError(t, source.EnsureSchema(ctx))
	require.NoError(t, source.Upsert(ctx, entry.Entry{
		Sys:    entry.Sys{ID: "p1", ContentTypeID: "post", CreatedAt: "t1", UpdatedAt: "t2"},
		Fields: map[string]any{"title": "Hi"},
	}))
	require.Error(t, source.Upsert(ctx, entry.Entry{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSource_UpsertBatchIsAtomic(t *testing.T) {
	source, mock := newMockSource(t, sqlutil.MySQL)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `entries`")).
		WithArgs("A1", "Entry", "author", "", "", `{"name":"Ada"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `entries`")).
		WithArgs("A2", "Entry", "author", "", "", `{}`).
		WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	err := source.Upsert(context.Background(),
		entry.Entry{Sys: entry.Sys{ID: "A1", ContentTypeID: "author"}, Fields: map[string]any{"name": "Ada"}},
		entry.Entry{Sys: entry.Sys{ID: "A2", ContentTypeID: "author"}},
	)
	require.ErrorContains(t, err, "entry A2: upsert failed")
	require.NoError(t, mock.ExpectationsWereMet())
}
