// Package sqlutil provides SQL utility functions.
package sqlutil

import "strings"

// Dialect names the SQL flavor of an entry store.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// for the dialect and escapes any embedded quote characters.
// MySQL uses backticks; Postgres and SQLite use double quotes.
func QuoteIdentifier(dialect Dialect, name string) string {
	if dialect == MySQL {
		escaped := strings.ReplaceAll(name, "`", "``")
		return "`" + escaped + "`"
	}
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}
