package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"cms-graphql/internal/sqlutil"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// tlsConfigName is the name used to register custom TLS configs with the MySQL driver.
const tlsConfigName = "cms-graphql-entry-store"

// Dialect maps the configured driver to its SQL dialect.
func (e *EntryStoreConfig) Dialect() sqlutil.Dialect {
	switch e.Driver {
	case DriverPostgres:
		return sqlutil.Postgres
	case DriverSQLite:
		return sqlutil.SQLite
	default:
		return sqlutil.MySQL
	}
}

// ResolvedDSN returns the driver DSN with the configured password and driver
// options applied.
func (e *EntryStoreConfig) ResolvedDSN() (string, error) {
	dsn := strings.TrimSpace(e.DSN)
	switch e.Driver {
	case DriverMySQL:
		return e.mysqlDSN(dsn)
	case DriverPostgres:
		return e.postgresDSN(dsn)
	case DriverSQLite:
		if dsn == "" {
			return "", fmt.Errorf("entry_store.dsn is required for the sqlite driver")
		}
		return dsn, nil
	default:
		return "", fmt.Errorf("entry store driver %q has no DSN", e.Driver)
	}
}

func (e *EntryStoreConfig) mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("entry_store.dsn is invalid: %w", err)
	}
	if cfg.Passwd == "" && e.Password != "" {
		cfg.Passwd = e.Password
	}
	cfg.ParseTime = true
	if cfg.Loc == nil || cfg.Loc == time.Local {
		cfg.Loc = time.UTC
	}
	if param := e.effectiveTLSParam(); param != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = param
	}
	return cfg.FormatDSN(), nil
}

func (e *EntryStoreConfig) postgresDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("entry_store.dsn is invalid: %w", err)
		}
		if e.Password != "" && u.User != nil {
			if _, set := u.User.Password(); !set {
				u.User = url.UserPassword(u.User.Username(), e.Password)
			}
		}
		if _, err := pq.ParseURL(u.String()); err != nil {
			return "", fmt.Errorf("entry_store.dsn is invalid: %w", err)
		}
		return u.String(), nil
	}
	if e.Password != "" && !strings.Contains(dsn, "password=") {
		quoted := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(e.Password)
		dsn = strings.TrimSpace(dsn + " password='" + quoted + "'")
	}
	return dsn, nil
}

// effectiveTLSParam returns the MySQL tls parameter for the configured mode.
func (e *EntryStoreConfig) effectiveTLSParam() string {
	switch e.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return e.TLS.Mode
	}
}

// RegisterTLS registers the custom TLS configuration with the MySQL driver.
// It is a no-op unless the driver is mysql with verify-ca or verify-full.
func (e *EntryStoreConfig) RegisterTLS() error {
	if e.Driver != DriverMySQL {
		return nil
	}
	mode := e.TLS.Mode
	if mode != "verify-ca" && mode != "verify-full" {
		return nil
	}

	tlsCfg, err := e.TLS.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (t *EntryStoreTLSConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	caFile := resolveEnvPath(t.CAFileEnv, t.CAFile)
	certFile := resolveEnvPath(t.CertFileEnv, t.CertFile)
	keyFile := resolveEnvPath(t.KeyFileEnv, t.KeyFile)

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", caFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
		}
		tlsCfg.RootCAs = pool
	}

	switch {
	case certFile != "" && keyFile != "":
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	case certFile != "" || keyFile != "":
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if t.Mode == "verify-full" && t.ServerName != "" {
		tlsCfg.ServerName = t.ServerName
	}
	return tlsCfg, nil
}

// resolveEnvPath prefers the path named by envName when that variable is set.
func resolveEnvPath(envName, fallback string) string {
	if envName != "" {
		if p := os.Getenv(envName); p != "" {
			return p
		}
	}
	return fallback
}
