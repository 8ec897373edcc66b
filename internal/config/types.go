package config

import (
	"time"

	"cms-graphql/internal/gqlrequest"
	"cms-graphql/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	ContentModel  ContentModelConfig  `mapstructure:"content_model"`
	EntryStore    EntryStoreConfig    `mapstructure:"entry_store"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ContentModelConfig locates the content model file and controls how often it
// is checked for changes.
type ContentModelConfig struct {
	Path string `mapstructure:"path"`
	// RefreshInterval is the initial poll interval. Zero disables polling.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	// RefreshMaxInterval caps the backoff applied while the file is unchanged.
	RefreshMaxInterval time.Duration `mapstructure:"refresh_max_interval"`
}

// Entry store drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverFile     = "file"
)

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// EntryStoreTLSConfig holds TLS settings for MySQL entry stores.
type EntryStoreTLSConfig struct {
	// Mode is one of off, skip-verify, verify-ca, verify-full.
	Mode string `mapstructure:"mode"`

	CAFile string `mapstructure:"ca_file"`
	// CAFileEnv names an environment variable holding the CA file path.
	CAFileEnv string `mapstructure:"ca_file_env"`

	CertFile    string `mapstructure:"cert_file"`
	CertFileEnv string `mapstructure:"cert_file_env"`
	KeyFile     string `mapstructure:"key_file"`
	KeyFileEnv  string `mapstructure:"key_file_env"`

	ServerName string `mapstructure:"server_name"`
}

// EntryStoreConfig selects and connects the store that holds entries and assets.
type EntryStoreConfig struct {
	// Driver is one of mysql, postgres, sqlite, file.
	Driver string `mapstructure:"driver"`

	// DSN is a driver-native data source name. For sqlite it is the database
	// file path or a file: URI.
	DSN string `mapstructure:"dsn"`
	// DSNFile is a path to a file containing the DSN. "@-" reads stdin.
	DSNFile string `mapstructure:"dsn_file"`

	// Password is merged into the DSN when the DSN carries none.
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`

	// Table holds one row per entry or asset.
	Table string `mapstructure:"table"`
	// EnsureSchema creates Table on startup when it does not exist.
	EnsureSchema bool `mapstructure:"ensure_schema"`

	// FilePath is the JSON entries file used by the file driver.
	FilePath string `mapstructure:"file_path"`

	TLS  EntryStoreTLSConfig `mapstructure:"tls"`
	Pool PoolConfig          `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the store on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
	// QueryTimeout bounds each store query. Zero means no timeout.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// IsSQL reports whether the driver is backed by database/sql.
func (e *EntryStoreConfig) IsSQL() bool {
	switch e.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
		return true
	}
	return false
}

// SchemaConfig shapes the generated GraphQL schema.
type SchemaConfig struct {
	// BackrefsFieldName names the wrapper field that holds backrefs on every
	// content type.
	BackrefsFieldName string            `mapstructure:"backrefs_field_name"`
	DefaultLimit      int               `mapstructure:"default_limit"`
	MaxLimit          int               `mapstructure:"max_limit"`
	Naming            naming.Config     `mapstructure:"naming"`
	Limits            gqlrequest.Limits `mapstructure:"limits"`
}

// AdminConfig controls administrative endpoint exposure and authentication.
type AdminConfig struct {
	SchemaReloadEnabled bool   `mapstructure:"schema_reload_enabled"`
	AuthToken           string `mapstructure:"auth_token"`
	AuthTokenFile       string `mapstructure:"auth_token_file"`
	HeaderName          string `mapstructure:"header_name"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	GraphiQLEnabled    bool          `mapstructure:"graphiql_enabled"`
	Admin              AdminConfig   `mapstructure:"admin"`
	RateLimitEnabled   bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	RateLimitPerClient bool          `mapstructure:"rate_limit_per_client"`
	CORSEnabled        bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders []string      `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders  []string      `mapstructure:"cors_expose_headers"`
	CORSAllowCreds     bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge         int           `mapstructure:"cors_max_age"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`

	TLSMode        string `mapstructure:"tls_mode"` // off, auto, file
	TLSCertFile    string `mapstructure:"tls_cert_file"`
	TLSKeyFile     string `mapstructure:"tls_key_file"`
	TLSAutoCertDir string `mapstructure:"tls_auto_cert_dir"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName       string        `mapstructure:"service_name"`
	ServiceVersion    string        `mapstructure:"service_version"`
	Environment       string        `mapstructure:"environment"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	TracingEnabled    bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio  float64       `mapstructure:"trace_sample_ratio"`
	SQLTracingEnabled bool          `mapstructure:"sql_tracing_enabled"`
	Logging           LoggingConfig `mapstructure:"logging"`

	// OTLP holds defaults for every signal.
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Per-signal overrides.
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// GetTracesConfig returns the effective OTLP config for traces
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// GetLogsConfig returns the effective OTLP config for logs
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLPConfigs lays non-zero override values over base. Insecure always
// comes from the override since false cannot be told apart from unset.
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base

	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	result.Insecure = override.Insecure

	if override.TLSCertFile != "" {
		result.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		result.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		result.TLSClientKeyFile = override.TLSClientKeyFile
	}

	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}

	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	if override.RetryMaxAttempts != 0 {
		result.RetryEnabled = override.RetryEnabled
		result.RetryMaxAttempts = override.RetryMaxAttempts
	}

	return result
}
