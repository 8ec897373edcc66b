package entryloader

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"cms-graphql/internal/dbexec"
	"cms-graphql/internal/entry"
	"cms-graphql/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// DefaultTable is the entry table name used when none is configured.
const DefaultTable = "entries"

var entryColumns = []string{"id", "sys_type", "content_type_id", "created_at", "updated_at", "fields"}

// SQLSource reads entries from a single table:
//
//	entries(id, sys_type, content_type_id, created_at, updated_at, fields)
//
// where fields holds the entry's field map as a JSON document.
type SQLSource struct {
	executor    dbexec.QueryExecutor
	dialect     sqlutil.Dialect
	table       string
	placeholder sq.PlaceholderFormat
}

// NewSQLSource creates a source over table using the dialect's placeholder style.
func NewSQLSource(executor dbexec.QueryExecutor, dialect sqlutil.Dialect, table string) (*SQLSource, error) {
	if executor == nil {
		return nil, fmt.Errorf("sql source requires an executor")
	}
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	var placeholder sq.PlaceholderFormat
	switch dialect {
	case sqlutil.MySQL, sqlutil.SQLite:
		placeholder = sq.Question
	case sqlutil.Postgres:
		placeholder = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	return &SQLSource{
		executor:    executor,
		dialect:     dialect,
		table:       table,
		placeholder: placeholder,
	}, nil
}

func (s *SQLSource) quotedTable() string {
	return sqlutil.QuoteIdentifier(s.dialect, s.table)
}

func (s *SQLSource) selectEntries() sq.SelectBuilder {
	return sq.Select(entryColumns...).
		From(s.quotedTable()).
		OrderBy("created_at", "id").
		PlaceholderFormat(s.placeholder)
}

func (s *SQLSource) EntriesByContentType(ctx context.Context, contentTypeID string) ([]entry.Entry, error) {
	query, args, err := s.selectEntries().
		Where(sq.Eq{"sys_type": entry.TypeEntry, "content_type_id": contentTypeID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build entries query: %w", err)
	}
	return s.query(ctx, query, args)
}

func (s *SQLSource) Assets(ctx context.Context) ([]entry.Entry, error) {
	query, args, err := s.selectEntries().
		Where(sq.Eq{"sys_type": entry.TypeAsset}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build assets query: %w", err)
	}
	return s.query(ctx, query, args)
}

func (s *SQLSource) EntryByID(ctx context.Context, id string) (entry.Entry, error) {
	query, args, err := sq.Select(entryColumns...).
		From(s.quotedTable()).
		Where(sq.Eq{"id": id}).
		Limit(1).
		PlaceholderFormat(s.placeholder).
		ToSql()
	if err != nil {
		return entry.Entry{}, fmt.Errorf("failed to build entry query: %w", err)
	}
	entries, err := s.query(ctx, query, args)
	if err != nil {
		return entry.Entry{}, err
	}
	if len(entries) == 0 {
		return entry.Entry{}, ErrNotFound
	}
	return entries[0], nil
}

func (s *SQLSource) query(ctx context.Context, query string, args []any) ([]entry.Entry, error) {
	rows, err := s.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entry query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]entry.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("entry rows failed: %w", err)
	}
	return entries, nil
}

func scanEntry(rows dbexec.Rows) (entry.Entry, error) {
	var (
		id, sysType          string
		contentTypeID        sql.NullString
		createdAt, updatedAt sql.NullString
		rawFields            []byte
	)
	if err := rows.Scan(&id, &sysType, &contentTypeID, &createdAt, &updatedAt, &rawFields); err != nil {
		return entry.Entry{}, fmt.Errorf("failed to scan entry row: %w", err)
	}
	fields := map[string]any{}
	if len(rawFields) > 0 {
		if err := json.Unmarshal(rawFields, &fields); err != nil {
			return entry.Entry{}, fmt.Errorf("entry %s: invalid fields document: %w", id, err)
		}
	}
	return entry.Entry{
		Sys: entry.Sys{
			ID:            id,
			Type:          sysType,
			ContentTypeID: contentTypeID.String,
			CreatedAt:     createdAt.String,
			UpdatedAt:     updatedAt.String,
		},
		Fields: fields,
	}, nil
}

// EnsureSchema creates the entry table and its content type index when missing.
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.schemaStatements() {
		if _, err := s.executor.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create entry table: %w", err)
		}
	}
	return nil
}

func (s *SQLSource) schemaStatements() []string {
	table := s.quotedTable()
	index := sqlutil.QuoteIdentifier(s.dialect, s.table+"_content_type_idx")
	switch s.dialect {
	case sqlutil.MySQL:
		return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  sys_type VARCHAR(16) NOT NULL,
  content_type_id VARCHAR(64) NULL,
  created_at VARCHAR(40) NOT NULL,
  updated_at VARCHAR(40) NOT NULL,
  fields JSON NOT NULL,
  INDEX %s (sys_type, content_type_id, created_at)
)`, table, index)}
	case sqlutil.Postgres:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id VARCHAR(64) PRIMARY KEY,
  sys_type VARCHAR(16) NOT NULL,
  content_type_id VARCHAR(64),
  created_at VARCHAR(40) NOT NULL,
  updated_at VARCHAR(40) NOT NULL,
  fields JSONB NOT NULL
)`, table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (sys_type, content_type_id, created_at)", index, table),
		}
	default:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  sys_type TEXT NOT NULL,
  content_type_id TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  fields TEXT NOT NULL
)`, table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (sys_type, content_type_id, created_at)", index, table),
		}
	}
}

// Upsert writes entries, replacing rows with the same id. When the executor
// supports transactions the batch is written atomically.
func (s *SQLSource) Upsert(ctx context.Context, entries ...entry.Entry) error {
	if tx, ok := s.executor.(dbexec.Transactor); ok && len(entries) > 1 {
		return tx.InTx(ctx, func(q dbexec.QueryExecutor) error {
			return s.upsert(ctx, q, entries)
		})
	}
	return s.upsert(ctx, s.executor, entries)
}

func (s *SQLSource) upsert(ctx context.Context, q dbexec.QueryExecutor, entries []entry.Entry) error {
	for _, e := range entries {
		if e.Sys.ID == "" {
			return fmt.Errorf("cannot store entry without sys.id")
		}
		sysType := e.Sys.Type
		if sysType == "" {
			sysType = entry.TypeEntry
		}
		fields := e.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		doc, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("entry %s: failed to encode fields: %w", e.Sys.ID, err)
		}

		query, args, err := sq.Insert(s.quotedTable()).
			Columns(entryColumns...).
			Values(e.Sys.ID, sysType, nullable(e.Sys.ContentTypeID), e.Sys.CreatedAt, e.Sys.UpdatedAt, string(doc)).
			Suffix(s.upsertSuffix()).
			PlaceholderFormat(s.placeholder).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build upsert: %w", err)
		}
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("entry %s: upsert failed: %w", e.Sys.ID, err)
		}
	}
	return nil
}

func (s *SQLSource) upsertSuffix() string {
	updates := make([]string, 0, len(entryColumns)-1)
	if s.dialect == sqlutil.MySQL {
		for _, col := range entryColumns[1:] {
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", col, col))
		}
		return "ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	}
	for _, col := range entryColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	return "ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", ")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
