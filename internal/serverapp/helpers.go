package serverapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cms-graphql/internal/config"
	"cms-graphql/internal/dbexec"
	"cms-graphql/internal/entryloader"
	"cms-graphql/internal/gqlrequest"
	"cms-graphql/internal/logging"
	"cms-graphql/internal/middleware"
	"cms-graphql/internal/observability"
	"cms-graphql/internal/schema"
	"cms-graphql/internal/schemarefresh"
	"cms-graphql/internal/tlscert"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// schemaReloadTimeout bounds a manual schema reload.
const schemaReloadTimeout = 15 * time.Second

func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
	)

	loggerProvider, err := observability.InitLoggerProvider(observabilityConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized")

	return logger, loggerProvider, nil
}

// observabilityConfig maps one signal's OTLP settings onto the exporter config.
func observabilityConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *appMetrics, error) {
	metrics := &appMetrics{}
	if !cfg.Observability.MetricsEnabled {
		return nil, metrics, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, err
	}

	if metrics.graphql, err = observability.NewGraphQLMetrics(); err != nil {
		return nil, nil, err
	}
	if metrics.schemaRefresh, err = observability.NewSchemaRefreshMetrics(); err != nil {
		return nil, nil, err
	}
	if metrics.entryLoader, err = observability.NewEntryLoaderMetrics(); err != nil {
		return nil, nil, err
	}
	if metrics.admin, err = observability.NewAdminMetrics(); err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized")
	return meterProvider, metrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(observabilityConfig(cfg, tracesConfig))
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized")
	return tracerProvider, nil
}

// openEntryStore opens the configured entry source. SQL drivers are pinged
// until reachable and optionally get their table created.
func openEntryStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*entryStore, error) {
	storeCfg := &cfg.EntryStore
	if !storeCfg.IsSQL() {
		source, err := entryloader.LoadFile(storeCfg.FilePath)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded entries file",
			slog.String("path", storeCfg.FilePath),
			slog.Int("entries", len(source.All())),
		)
		return &entryStore{source: source}, nil
	}

	if err := storeCfg.RegisterTLS(); err != nil {
		return nil, fmt.Errorf("failed to register entry store TLS config: %w", err)
	}
	dsn, err := storeCfg.ResolvedDSN()
	if err != nil {
		return nil, err
	}

	instrument := cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled
	db, err := entryloader.Open(entryloader.OpenOptions{
		Dialect:       storeCfg.Dialect(),
		DSN:           dsn,
		Instrument:    instrument,
		TraceSQL:      cfg.Observability.TracingEnabled && cfg.Observability.SQLTracingEnabled,
		RegisterStats: cfg.Observability.MetricsEnabled,
		MaxOpen:       storeCfg.Pool.MaxOpen,
		MaxIdle:       storeCfg.Pool.MaxIdle,
		MaxLifetime:   storeCfg.Pool.MaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if instrument {
		logger.Info("entry store instrumentation enabled",
			slog.Bool("metrics", cfg.Observability.MetricsEnabled),
			slog.Bool("sql_tracing", cfg.Observability.TracingEnabled && cfg.Observability.SQLTracingEnabled),
		)
	}

	store, err := connectSQLStore(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func connectSQLStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *entryloader.DB) (*entryStore, error) {
	storeCfg := &cfg.EntryStore
	if err := waitForStore(ctx, storeCfg, logger, db); err != nil {
		return nil, err
	}

	executor := dbexec.NewStandardExecutor(db.DB, storeCfg.QueryTimeout)
	source, err := entryloader.NewSQLSource(executor, storeCfg.Dialect(), storeCfg.Table)
	if err != nil {
		return nil, err
	}
	if storeCfg.EnsureSchema {
		if err := source.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to create entry table: %w", err)
		}
		logger.Info("entry table ensured", slog.String("table", storeCfg.Table))
	}

	logger.Info("connected to entry store",
		slog.String("driver", storeCfg.Driver),
		slog.String("table", storeCfg.Table),
		slog.Int("pool_max_open", storeCfg.Pool.MaxOpen),
		slog.Int("pool_max_idle", storeCfg.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", storeCfg.Pool.MaxLifetime),
	)
	return &entryStore{source: source, db: db}, nil
}

// waitForStore pings the store until it answers or ConnectionTimeout
// elapses. A zero timeout pings once.
func waitForStore(ctx context.Context, storeCfg *config.EntryStoreConfig, logger *logging.Logger, db *entryloader.DB) error {
	timeout := storeCfg.ConnectionTimeout
	interval := storeCfg.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("entry store connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("entry store not available after %v: %w", timeout, err)
		}

		logger.Warn("entry store not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		interval = min(interval*2, 30*time.Second)
	}
}

func startSchemaManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, source entryloader.Source, metrics *appMetrics) (*schemarefresh.Manager, context.CancelFunc, error) {
	manager, err := schemarefresh.NewManager(ctx, schemarefresh.Config{
		ModelPath: cfg.ContentModel.Path,
		Build: schemarefresh.BuildConfig{
			Naming: cfg.Schema.Naming,
			Schema: schema.Options{
				BackrefsFieldName: cfg.Schema.BackrefsFieldName,
				DefaultLimit:      cfg.Schema.DefaultLimit,
				MaxLimit:          cfg.Schema.MaxLimit,
			},
			Source:   source,
			Metrics:  metrics.entryLoader,
			GraphiQL: cfg.Server.GraphiQLEnabled,
			Wrap:     graphqlExecutionMiddleware(cfg, logger, metrics.graphql),
		},
		Logger:      logger,
		Metrics:     metrics.schemaRefresh,
		MinInterval: cfg.ContentModel.RefreshInterval,
		MaxInterval: cfg.ContentModel.RefreshMaxInterval,
	})
	if err != nil {
		return nil, nil, err
	}

	schemaCtx, schemaCancel := context.WithCancel(context.Background())
	manager.Start(schemaCtx)

	return manager, schemaCancel, nil
}

// graphqlExecutionMiddleware wraps the GraphQL handler inside the
// per-request entry loader so tracing can read loader stats:
//
//	request -> logging -> analysis/limits -> entry loader -> tracing -> metrics -> graphql
func graphqlExecutionMiddleware(cfg *config.Config, logger *logging.Logger, graphqlMetrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	metricsEnabled := cfg.Observability.MetricsEnabled && graphqlMetrics != nil
	if metricsEnabled {
		logger.Info("GraphQL metrics middleware enabled")
	}
	return func(next http.Handler) http.Handler {
		if metricsEnabled {
			next = middleware.GraphQLMetricsMiddleware(graphqlMetrics)(next)
		}
		return middleware.GraphQLTracingMiddleware()(next)
	}
}

func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, manager *schemarefresh.Manager) http.Handler {
	limits := cfg.Schema.Limits
	if limits.Enabled() {
		logger.Info("GraphQL request limits enabled",
			slog.Int("max_depth", limits.MaxDepth),
			slog.Int("max_fields", limits.MaxFields),
			slog.Int("max_backrefs", limits.MaxBackrefs),
		)
	}

	analysis := middleware.GraphQLRequestAnalysisMiddleware(middleware.GraphQLRequestAnalysisConfig{
		Analyzer:         gqlrequest.Analyzer{BackrefsFieldName: cfg.Schema.BackrefsFieldName},
		Limits:           limits,
		ModelFingerprint: manager.ModelFingerprint,
	})
	return middleware.LoggingMiddleware(logger)(analysis(manager.Handler()))
}

// schemaReloader is the part of the schema manager the admin endpoint drives.
type schemaReloader interface {
	RefreshNowContext(ctx context.Context) error
	ModelFingerprint() string
}

func buildAdminHandler(cfg *config.Config, logger *logging.Logger, reloader schemaReloader, adminMetrics *observability.AdminMetrics) (http.Handler, error) {
	var adminHandler http.Handler = schemaReloadHandler(reloader)
	if strings.TrimSpace(cfg.Server.Admin.AuthToken) != "" {
		authMiddleware, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
			Token:      cfg.Server.Admin.AuthToken,
			HeaderName: cfg.Server.Admin.HeaderName,
			Metrics:    adminMetrics,
		})
		if err != nil {
			return nil, err
		}
		adminHandler = authMiddleware(adminHandler)
		logger.Info("admin endpoints require a shared token")
	} else if cfg.Server.Admin.SchemaReloadEnabled {
		logger.Warn("admin endpoints are not authenticated - set server.admin.auth_token")
	}
	return middleware.LoggingMiddleware(logger)(adminHandler), nil
}

// healthChecks are the dependencies /health reports on. A nil store means
// entries are served from a file.
type healthChecks struct {
	store  *entryloader.DB
	schema interface{ ModelFingerprint() string }
}

func buildRouter(cfg *config.Config, logger *logging.Logger, checks healthChecks, graphqlHandler http.Handler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/health", healthHandler(checks, cfg.Server.HealthCheckTimeout))
	if cfg.Server.Admin.SchemaReloadEnabled {
		mux.Handle("/admin/reload-schema", adminHandler)
		logger.Info("schema reload endpoint enabled", slog.String("path", "/admin/reload-schema"))
	}

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", meterProvider.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCreds,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled:   cfg.Server.RateLimitEnabled,
			RPS:       cfg.Server.RateLimitRPS,
			Burst:     cfg.Server.RateLimitBurst,
			PerClient: cfg.Server.RateLimitPerClient,
		})(handler)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/graphql", "/health", "/metrics", "/admin/reload-schema":
		return rawPath
	default:
		return "/*"
	}
}

func tlsEnabled(cfg *config.Config) bool {
	return cfg.Server.TLSMode != "" && cfg.Server.TLSMode != "off"
}

func buildServer(cfg *config.Config, logger *logging.Logger, handler http.Handler, serverAddr string) (*http.Server, tlscert.Manager, error) {
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if !tlsEnabled(cfg) {
		return srv, nil, nil
	}

	certMode := tlscert.CertMode(cfg.Server.TLSMode)
	if cfg.Server.TLSMode == "auto" {
		certMode = tlscert.CertModeSelfSigned
	}

	tlsManager, err := tlscert.NewManager(tlscert.Config{
		Mode:              certMode,
		CertFile:          cfg.Server.TLSCertFile,
		KeyFile:           cfg.Server.TLSKeyFile,
		SelfSignedCertDir: cfg.Server.TLSAutoCertDir,
		SelfSignedHosts:   []string{"localhost", "127.0.0.1", "::1"},
	}, logger.Logger)
	if err != nil {
		return nil, nil, err
	}

	srv.TLSConfig, err = tlsManager.TLSConfig()
	if err != nil {
		return nil, nil, err
	}

	logger.Info("TLS enabled",
		slog.String("mode", cfg.Server.TLSMode),
		slog.String("cert_source", tlsManager.Description()))
	return srv, tlsManager, nil
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	useTLS := tlsEnabled(cfg)
	go func() {
		protocol := "http"
		if useTLS {
			protocol = "https"
		}

		logAttrs := []any{
			slog.String("protocol", protocol),
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/health"),
			slog.String("content_model", cfg.ContentModel.Path),
			slog.String("entry_store", cfg.EntryStore.Driver),
			slog.Int("graphql_max_depth", cfg.Schema.Limits.MaxDepth),
			slog.String("log_level", cfg.Observability.Logging.Level),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
				slog.Bool("rate_limit_per_client", cfg.Server.RateLimitPerClient),
			)
		}
		logAttrs = append(logAttrs, slog.Bool("tls_enabled", useTLS))

		logger.Info("server starting", logAttrs...)

		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

type healthStatus struct {
	Status      string `json:"status"`
	EntryStore  string `json:"entry_store"`
	Fingerprint string `json:"model_fingerprint,omitempty"`
}

// healthHandler reports the entry store and schema snapshot state.
func healthHandler(checks healthChecks, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		status := healthStatus{Status: "healthy", EntryStore: "file"}
		code := http.StatusOK

		if checks.schema != nil {
			status.Fingerprint = checks.schema.ModelFingerprint()
		}

		if checks.store != nil {
			ctx := r.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			status.EntryStore = "ok"
			if err := checks.store.PingContext(ctx); err != nil {
				reqLogger.Error("health check failed",
					slog.String("error", err.Error()),
					slog.String("check", "entry_store"),
				)
				status.Status = "unhealthy"
				status.EntryStore = "failed"
				code = http.StatusServiceUnavailable
			}
		}

		if code == http.StatusOK {
			reqLogger.Debug("health check passed")
		}
		writeJSON(w, code, status)
	}
}

func schemaReloadHandler(reloader schemaReloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		reqLogger.Info("admin endpoint accessed",
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
		)

		refreshCtx, refreshCancel := context.WithTimeout(r.Context(), schemaReloadTimeout)
		defer refreshCancel()

		if err := reloader.RefreshNowContext(refreshCtx); err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			// The error stays in the log; clients get a generic message.
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "schema reload failed"})
			return
		}

		fingerprint := reloader.ModelFingerprint()
		reqLogger.Info("schema reloaded", slog.String("fingerprint", fingerprint))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "model_fingerprint": fingerprint})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
