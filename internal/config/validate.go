package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"cms-graphql/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.ContentModel.validate(result)
	c.EntryStore.validate(result)
	c.Schema.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)

	return result
}

func (m *ContentModelConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(m.Path) == "" {
		result.addError("content_model.path", "content model path is required", "")
	}
	if m.RefreshInterval < 0 {
		result.addError("content_model.refresh_interval", "refresh_interval cannot be negative", "set 0 to disable polling")
	}
	if m.RefreshInterval > 0 && m.RefreshMaxInterval > 0 && m.RefreshMaxInterval < m.RefreshInterval {
		result.addWarning("content_model.refresh_max_interval", "refresh_max_interval is less than refresh_interval",
			"the model will be checked every refresh_interval")
	}
}

func (e *EntryStoreConfig) validate(result *ValidationResult) {
	switch e.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
		if strings.TrimSpace(e.DSN) == "" {
			result.addError("entry_store.dsn", fmt.Sprintf("dsn is required for the %s driver", e.Driver),
				"set entry_store.dsn or entry_store.dsn_file")
		} else if _, err := e.ResolvedDSN(); err != nil {
			result.addError("entry_store.dsn", err.Error(), "")
		}
		if !validIdentifier.MatchString(e.Table) {
			result.addError("entry_store.table", fmt.Sprintf("invalid table name %q", e.Table),
				"use letters, digits, and underscores")
		}
	case DriverFile:
		if strings.TrimSpace(e.FilePath) == "" {
			result.addError("entry_store.file_path", "file_path is required for the file driver", "")
		}
	default:
		result.addError("entry_store.driver", fmt.Sprintf("invalid entry store driver %q", e.Driver),
			"valid values are: mysql, postgres, sqlite, file")
		return
	}

	if e.Driver == DriverMySQL {
		e.TLS.validate(result)
	} else if e.TLS.Mode != "" {
		result.addWarning("entry_store.tls.mode", "TLS settings only apply to the mysql driver",
			"configure TLS in the DSN for other drivers")
	}

	if e.EnsureSchema && !e.IsSQL() {
		result.addWarning("entry_store.ensure_schema", "ensure_schema has no effect for the file driver", "")
	}

	if e.Pool.MaxOpen < 0 {
		result.addError("entry_store.pool.max_open", "max_open cannot be negative", "")
	}
	if e.Pool.MaxIdle < 0 {
		result.addError("entry_store.pool.max_idle", "max_idle cannot be negative", "")
	}
	if e.Pool.MaxIdle > e.Pool.MaxOpen && e.Pool.MaxOpen > 0 {
		result.addWarning("entry_store.pool.max_idle", "max_idle is greater than max_open",
			"idle connections will be limited to max_open")
	}

	if e.ConnectionTimeout < 0 {
		result.addError("entry_store.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if e.ConnectionRetryInterval < 0 {
		result.addError("entry_store.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if e.ConnectionTimeout > 0 && e.ConnectionRetryInterval == 0 {
		result.addError("entry_store.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if e.ConnectionTimeout > 0 && e.ConnectionRetryInterval > e.ConnectionTimeout {
		result.addWarning("entry_store.connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
	if e.QueryTimeout < 0 {
		result.addError("entry_store.query_timeout", "query_timeout cannot be negative", "")
	}
}

var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (t *EntryStoreTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.addError("entry_store.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode),
			"valid values are: off, skip-verify, verify-ca, verify-full")
	}

	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && resolveEnvPath(t.CAFileEnv, t.CAFile) == "" {
		result.addError("entry_store.tls.ca_file", "CA file is required for verify-ca and verify-full modes",
			"set ca_file or ca_file_env to specify the CA certificate")
	}

	certFile := resolveEnvPath(t.CertFileEnv, t.CertFile)
	keyFile := resolveEnvPath(t.KeyFileEnv, t.KeyFile)
	if (certFile == "") != (keyFile == "") {
		result.addError("entry_store.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}

	if t.Mode == "skip-verify" {
		result.addWarning("entry_store.tls.mode", "skip-verify mode does not verify server certificates",
			"use verify-ca or verify-full in production")
	}
}

var graphQLNamePattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)
var pascalCaseTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

func (s *SchemaConfig) validate(result *ValidationResult) {
	name := strings.TrimSpace(s.BackrefsFieldName)
	switch {
	case name == "":
		result.addError("schema.backrefs_field_name", "backrefs_field_name cannot be empty", "")
	case !graphQLNamePattern.MatchString(name):
		result.addError("schema.backrefs_field_name", fmt.Sprintf("%q is not a valid GraphQL field name", name), "")
	case strings.HasPrefix(name, "__"):
		result.addError("schema.backrefs_field_name", fmt.Sprintf("%q uses the reserved __ prefix", name), "")
	case name == "sys" || name == "url" || name == "urlFolder":
		result.addError("schema.backrefs_field_name", fmt.Sprintf("%q collides with a built-in field", name), "")
	}

	if s.DefaultLimit <= 0 {
		result.addError("schema.default_limit", "default_limit must be greater than 0", "")
	}
	if s.MaxLimit <= 0 {
		result.addError("schema.max_limit", "max_limit must be greater than 0", "")
	}
	if s.DefaultLimit > 0 && s.MaxLimit > 0 && s.DefaultLimit > s.MaxLimit {
		result.addError("schema.default_limit", "default_limit cannot exceed max_limit", "")
	}

	if s.Limits.MaxDepth < 0 {
		result.addError("schema.limits.max_depth", "max_depth cannot be negative", "")
	}
	if s.Limits.MaxFields < 0 {
		result.addError("schema.limits.max_fields", "max_fields cannot be negative", "")
	}
	if s.Limits.MaxBackrefs < 0 {
		result.addError("schema.limits.max_backrefs", "max_backrefs cannot be negative", "")
	}

	validateNamingConfig(result, s.Naming)
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for contentTypeID, typeName := range cfg.TypeOverrides {
		contentTypeID = strings.TrimSpace(contentTypeID)
		typeName = strings.TrimSpace(typeName)
		switch {
		case contentTypeID == "":
			result.addError("schema.naming.type_overrides", "content type id cannot be empty", "")
		case typeName == "":
			result.addError("schema.naming.type_overrides",
				fmt.Sprintf("type override for content type %q cannot be empty", contentTypeID), "")
		case !pascalCaseTypePattern.MatchString(typeName):
			result.addError("schema.naming.type_overrides",
				fmt.Sprintf("type override %q for content type %q must be PascalCase", typeName, contentTypeID), "")
		case naming.IsReservedTypeName(typeName):
			result.addError("schema.naming.type_overrides",
				fmt.Sprintf("type override %q for content type %q is reserved", typeName, contentTypeID), "")
		}
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 {
		result.addWarning("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if s.Admin.SchemaReloadEnabled && strings.TrimSpace(s.Admin.AuthToken) == "" {
		result.addError("server.admin.auth_token", "auth_token is required when schema_reload_enabled is true",
			"set server.admin.auth_token or server.admin.auth_token_file")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.addError("server.cors_allowed_origins", "CORS enabled but no allowed origins configured",
				"set cors_allowed_origins or disable CORS")
		}
		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORSAllowCreds {
			result.addError("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.addWarning("server.cors_allowed_origins", "CORS wildcard origin enabled",
				"use specific origins in production for better security")
		}
	}

	validTLSModes := map[string]bool{"": true, "off": true, "auto": true, "file": true}
	if !validTLSModes[s.TLSMode] {
		result.addError("server.tls_mode", fmt.Sprintf("invalid TLS mode %q", s.TLSMode), "valid values are: off, auto, file")
	}
	if s.TLSMode == "file" {
		if s.TLSCertFile == "" {
			result.addError("server.tls_cert_file", "TLS cert file required when tls_mode is 'file'", "")
		}
		if s.TLSKeyFile == "" {
			result.addError("server.tls_key_file", "TLS key file required when tls_mode is 'file'", "")
		}
	}
	if s.GraphiQLEnabled {
		result.addWarning("server.graphiql_enabled", "GraphiQL is enabled", "disable GraphiQL in production")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio",
			fmt.Sprintf("trace_sample_ratio %v is out of range (0.0-1.0)", o.TraceSampleRatio), "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}

	if o.RetryMaxAttempts < 0 {
		result.addError(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
