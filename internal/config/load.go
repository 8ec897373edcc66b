// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"cms-graphql/internal/gqlrequest"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "CMSGQL"

var defineFlagsOnce sync.Once

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) for secrets read from files or the terminal
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}
	return load(pflag.CommandLine)
}

func load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := flags.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("cms-graphql")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/cms-graphql/")
		v.AddConfigPath("$HOME/.cms-graphql")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Env vars: CMSGQL_ENTRY_STORE_DSN
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v, flags)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	if v.GetString("entry_store.dsn") == "" && v.GetString("entry_store.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("entry_store.dsn_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read entry store DSN file: %w", err)
		}
		v.Set("entry_store.dsn", dsn)
	}

	if v.GetString("entry_store.password") == "" && v.GetString("entry_store.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("entry_store.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read entry store password file: %w", err)
		}
		v.Set("entry_store.password", pwd)
	}
	if v.GetString("entry_store.password") == "" && v.GetBool("entry_store.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("entry_store.password", pwd)
	}

	if v.GetString("server.admin.auth_token") == "" && v.GetString("server.admin.auth_token_file") != "" {
		tokenPath := v.GetString("server.admin.auth_token_file")
		token, err := readSecretFile(tokenPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read admin auth token file: %w", err)
		}
		if token == "" {
			return nil, fmt.Errorf("admin auth token file %q is empty", tokenPath)
		}
		v.Set("server.admin.auth_token", token)
	}

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := flags.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := flags.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := flags.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := flags.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := flags.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := flags.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		registerFlags(pflag.CommandLine)
	})
}

func registerFlags(fs *pflag.FlagSet) {
	// Content model
	fs.String("content_model.path", "", "Path to the content model file (YAML or JSON)")
	fs.Duration("content_model.refresh_interval", 0, "Initial interval between content model change checks (0 disables polling)")
	fs.Duration("content_model.refresh_max_interval", 0, "Maximum interval between content model change checks")

	// Entry store
	fs.String("entry_store.driver", "", "Entry store driver (mysql, postgres, sqlite, file)")
	fs.String("entry_store.dsn", "", "Entry store data source name")
	fs.String("entry_store.dsn_file", "", "Path to file containing the entry store DSN (use @- for stdin)")
	fs.String("entry_store.password", "", "Entry store password, merged into the DSN")
	fs.String("entry_store.password_file", "", "Path to file containing the entry store password (use @- for stdin)")
	fs.Bool("entry_store.password_prompt", false, "Prompt for the entry store password securely")
	fs.String("entry_store.table", "", "Table holding entries and assets")
	fs.Bool("entry_store.ensure_schema", false, "Create the entries table on startup if missing")
	fs.String("entry_store.file_path", "", "JSON entries file for the file driver")
	fs.String("entry_store.tls.mode", "", "MySQL TLS mode (off, skip-verify, verify-ca, verify-full)")
	fs.String("entry_store.tls.ca_file", "", "Path to CA certificate for server verification")
	fs.String("entry_store.tls.cert_file", "", "Path to client certificate for mTLS")
	fs.String("entry_store.tls.key_file", "", "Path to client private key for mTLS")
	fs.String("entry_store.tls.server_name", "", "Override TLS server name for verification")
	fs.Int("entry_store.pool.max_open", 0, "Maximum open entry store connections")
	fs.Int("entry_store.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("entry_store.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")
	fs.Duration("entry_store.connection_timeout", 0, "Max time to wait for the entry store on startup (0 = fail immediately)")
	fs.Duration("entry_store.connection_retry_interval", 0, "Initial interval between connection retries")
	fs.Duration("entry_store.query_timeout", 0, "Timeout applied to each entry store query")

	// Schema
	fs.String("schema.backrefs_field_name", "", "Name of the field that wraps backrefs on every content type")
	fs.Int("schema.default_limit", 0, "Default page size for collection fields")
	fs.Int("schema.max_limit", 0, "Maximum page size for collection fields")
	fs.Int("schema.limits.max_depth", 0, "Maximum GraphQL selection depth (0 = unlimited)")
	fs.Int("schema.limits.max_fields", 0, "Maximum GraphQL field selections (0 = unlimited)")
	fs.Int("schema.limits.max_backrefs", 0, "Maximum backref selections per request (0 = unlimited)")

	// Server
	fs.Int("server.port", 0, "HTTP server port")
	fs.Bool("server.graphiql_enabled", false, "Enable GraphiQL UI for /graphql (dev only)")
	fs.Bool("server.admin.schema_reload_enabled", false, "Enable /admin/reload-schema endpoint")
	fs.String("server.admin.auth_token", "", "Shared secret required by admin endpoints")
	fs.String("server.admin.auth_token_file", "", "Path to file containing admin auth token (use @- for stdin)")
	fs.String("server.admin.header_name", "", "Header carrying the admin auth token")
	fs.Bool("server.rate_limit_enabled", false, "Enable rate limiting for /graphql")
	fs.Float64("server.rate_limit_rps", 0, "Rate limit requests per second")
	fs.Int("server.rate_limit_burst", 0, "Rate limit burst size")
	fs.Bool("server.rate_limit_per_client", false, "Apply the rate limit per client IP")
	fs.Bool("server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
	fs.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
	fs.StringSlice("server.cors_allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
	fs.StringSlice("server.cors_allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
	fs.StringSlice("server.cors_expose_headers", nil, "CORS headers to expose to browser (comma-separated or repeated)")
	fs.Bool("server.cors_allow_credentials", false, "Allow credentials in CORS requests")
	fs.Int("server.cors_max_age", 0, "CORS preflight cache duration (seconds)")
	fs.Duration("server.read_timeout", 0, "HTTP server read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP server write timeout")
	fs.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
	fs.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
	fs.Duration("server.health_check_timeout", 0, "Health check timeout")
	fs.String("server.tls_mode", "", "TLS mode: off, auto (self-signed), file (default: off)")
	fs.String("server.tls_cert_file", "", "Path to TLS certificate file (for file mode)")
	fs.String("server.tls_key_file", "", "Path to TLS private key file (for file mode)")
	fs.String("server.tls_auto_cert_dir", "", "Directory for auto-generated certificates (default: .tls)")

	// Observability
	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.service_version", "", "Service version for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.Bool("observability.sql_tracing_enabled", false, "Record a span per entry store SQL statement")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	fs.String("observability.otlp.tls_cert_file", "", "Path to TLS certificate file for server verification")
	fs.String("observability.otlp.tls_client_cert_file", "", "Path to client certificate file for mTLS")
	fs.String("observability.otlp.tls_client_key_file", "", "Path to client key file for mTLS")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	fs.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
	fs.Bool("observability.otlp.retry_enabled", false, "Enable retry on transient errors")
	fs.Int("observability.otlp.retry_max_attempts", 0, "Maximum retry attempts")
	fs.String("observability.traces.endpoint", "", "OTLP endpoint for traces only")
	fs.String("observability.traces.protocol", "", "OTLP protocol for traces (grpc, http/protobuf)")
	fs.Bool("observability.traces.insecure", false, "Use insecure connection for traces")
	fs.String("observability.logs.endpoint", "", "OTLP endpoint for logs only")
	fs.String("observability.logs.protocol", "", "OTLP protocol for logs (grpc, http/protobuf)")
	fs.Bool("observability.logs.insecure", false, "Use insecure connection for logs")

	fs.StringP("config", "c", "", "Config file path")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("content_model.path", "content-model.yaml")
	v.SetDefault("content_model.refresh_interval", 30*time.Second)
	v.SetDefault("content_model.refresh_max_interval", 5*time.Minute)

	v.SetDefault("entry_store.driver", DriverSQLite)
	v.SetDefault("entry_store.dsn", "")
	v.SetDefault("entry_store.dsn_file", "")
	v.SetDefault("entry_store.password", "")
	v.SetDefault("entry_store.password_file", "")
	v.SetDefault("entry_store.password_prompt", false)
	v.SetDefault("entry_store.table", "entries")
	v.SetDefault("entry_store.ensure_schema", false)
	v.SetDefault("entry_store.file_path", "")
	v.SetDefault("entry_store.tls.mode", "")
	v.SetDefault("entry_store.tls.ca_file", "")
	v.SetDefault("entry_store.tls.ca_file_env", "")
	v.SetDefault("entry_store.tls.cert_file", "")
	v.SetDefault("entry_store.tls.cert_file_env", "")
	v.SetDefault("entry_store.tls.key_file", "")
	v.SetDefault("entry_store.tls.key_file_env", "")
	v.SetDefault("entry_store.tls.server_name", "")
	v.SetDefault("entry_store.pool.max_open", 25)
	v.SetDefault("entry_store.pool.max_idle", 5)
	v.SetDefault("entry_store.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("entry_store.connection_timeout", 60*time.Second)
	v.SetDefault("entry_store.connection_retry_interval", 2*time.Second)
	v.SetDefault("entry_store.query_timeout", 10*time.Second)

	v.SetDefault("schema.backrefs_field_name", gqlrequest.DefaultBackrefsFieldName)
	v.SetDefault("schema.default_limit", 100)
	v.SetDefault("schema.max_limit", 1000)
	v.SetDefault("schema.naming.plural_overrides", map[string]string{})
	v.SetDefault("schema.naming.type_overrides", map[string]string{})
	v.SetDefault("schema.limits.max_depth", 12)
	v.SetDefault("schema.limits.max_fields", 0)
	v.SetDefault("schema.limits.max_backrefs", 0)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.graphiql_enabled", false)
	v.SetDefault("server.admin.schema_reload_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")
	v.SetDefault("server.admin.header_name", "X-Admin-Token")
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.rate_limit_per_client", false)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "X-Request-ID"})
	v.SetDefault("server.cors_expose_headers", []string{})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)
	v.SetDefault("server.tls_mode", "off")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.tls_auto_cert_dir", ".tls")

	v.SetDefault("observability.service_name", "cms-graphql")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.sql_tracing_enabled", false)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter entry store password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

var stdin io.Reader = os.Stdin

// readSecretFile reads a trimmed secret from path, or from stdin for "@-".
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"entry_store.dsn_file",
		"entry_store.password_file",
		"server.admin.auth_token_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
