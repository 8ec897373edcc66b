package entryloader

import (
	"database/sql"
	"fmt"
	"time"

	"cms-graphql/internal/sqlutil"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"
)

// OpenOptions controls how an entry store database is opened.
type OpenOptions struct {
	Dialect       sqlutil.Dialect
	DSN           string
	Instrument    bool
	TraceSQL      bool
	RegisterStats bool
	MaxOpen       int
	MaxIdle       int
	MaxLifetime   time.Duration
}

// DB is an opened entry store database plus its stats registration.
type DB struct {
	*sql.DB
	statsReg interface{ Unregister() error }
}

// Close unregisters DB stats metrics and closes the pool.
func (d *DB) Close() error {
	if d.statsReg != nil {
		_ = d.statsReg.Unregister()
	}
	return d.DB.Close()
}

// DriverName maps a dialect to its database/sql driver name.
func DriverName(dialect sqlutil.Dialect) (string, error) {
	switch dialect {
	case sqlutil.MySQL:
		return "mysql", nil
	case sqlutil.Postgres:
		return "postgres", nil
	case sqlutil.SQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
}

func dbSystem(dialect sqlutil.Dialect) attribute.KeyValue {
	switch dialect {
	case sqlutil.Postgres:
		return semconv.DBSystemPostgreSQL
	case sqlutil.SQLite:
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemMySQL
	}
}

// Open opens the entry store database, wrapping the driver with otelsql when
// instrumentation is requested.
func Open(opts OpenOptions) (*DB, error) {
	driver, err := DriverName(opts.Dialect)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	var statsReg interface{ Unregister() error }
	if opts.Instrument {
		otelOpts := []otelsql.Option{
			otelsql.WithAttributes(dbSystem(opts.Dialect)),
		}
		if opts.TraceSQL {
			otelOpts = append(otelOpts, otelsql.WithSpanOptions(otelsql.SpanOptions{
				DisableErrSkip: true,
			}))
		}
		db, err = otelsql.Open(driver, opts.DSN, otelOpts...)
		if err != nil {
			return nil, err
		}
		if opts.RegisterStats {
			statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(dbSystem(opts.Dialect)))
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to register DB stats metrics: %w", err)
			}
		}
	} else {
		db, err = sql.Open(driver, opts.DSN)
		if err != nil {
			return nil, err
		}
	}

	if opts.MaxOpen > 0 {
		db.SetMaxOpenConns(opts.MaxOpen)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}
	if opts.MaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.MaxLifetime)
	}
	if opts.Dialect == sqlutil.SQLite {
		// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return &DB{DB: db, statsReg: statsReg}, nil
}
