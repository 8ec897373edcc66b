package serverapp

import (
	"context"
	"fmt"
	"net/http"

	"cms-graphql/internal/observability"
	"cms-graphql/internal/schemarefresh"
	"cms-graphql/internal/tlscert"
)

// bootstrap accumulates what Init builds. Each step registers cleanups for
// what it acquired so a failed Init releases exactly those.
type bootstrap struct {
	app     *App
	cleanup cleanupStack

	meterProvider  *observability.MeterProvider
	metrics        *appMetrics
	tracerProvider *observability.TracerProvider
	store          *entryStore
	manager        *schemarefresh.Manager
	schemaCancel   context.CancelFunc
	graphqlHandler http.Handler
	adminHandler   http.Handler
	mux            *http.ServeMux
	handler        http.Handler
	serverAddr     string
	srv            *http.Server
	tlsManager     tlscert.Manager
}

// Init acquires every runtime resource. It is a no-op once it has succeeded.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	b := &bootstrap{app: a}
	if a.loggerProvider != nil {
		b.cleanup.push("logger provider", func(ctx context.Context) error {
			return a.loggerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"telemetry", b.telemetry},
		{"entry store", b.entryStore},
		{"schema refresh manager", b.schemaManager},
		{"HTTP handlers", b.handlers},
		{"server", b.server},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			_ = b.cleanup.run(context.Background(), a.logger)
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.meterProvider = b.meterProvider
	a.metrics = b.metrics
	a.tracerProvider = b.tracerProvider
	a.store = b.store
	a.manager = b.manager
	a.schemaCancel = b.schemaCancel
	a.graphqlHandler = b.graphqlHandler
	a.adminHandler = b.adminHandler
	a.mux = b.mux
	a.handler = b.handler
	a.serverAddr = b.serverAddr
	a.srv = b.srv
	a.tlsManager = b.tlsManager
	a.cleanup = b.cleanup
	a.initialized = true
	return nil
}

func (b *bootstrap) telemetry(context.Context) error {
	cfg, logger := b.app.cfg, b.app.logger

	meterProvider, metrics, err := initMetrics(cfg, logger)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	b.meterProvider, b.metrics = meterProvider, metrics
	if meterProvider != nil {
		b.cleanup.push("meter provider", func(ctx context.Context) error {
			return meterProvider.Shutdown(ctx, logger.Logger)
		})
	}

	tracerProvider, err := initTracing(cfg, logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	b.tracerProvider = tracerProvider
	if tracerProvider != nil {
		b.cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, logger.Logger)
		})
	}
	return nil
}

func (b *bootstrap) entryStore(ctx context.Context) error {
	store, err := openEntryStore(ctx, b.app.cfg, b.app.logger)
	if err != nil {
		return err
	}
	b.store = store
	if store.db != nil {
		b.cleanup.push("entry store", func(context.Context) error {
			return store.db.Close()
		})
	}
	return nil
}

func (b *bootstrap) schemaManager(ctx context.Context) error {
	manager, cancel, err := startSchemaManager(ctx, b.app.cfg, b.app.logger, b.store.source, b.metrics)
	if err != nil {
		return err
	}
	b.manager, b.schemaCancel = manager, cancel
	b.cleanup.push("schema manager", func(ctx context.Context) error {
		cancel()
		return manager.Wait(ctx)
	})
	return nil
}

func (b *bootstrap) handlers(context.Context) error {
	cfg, logger := b.app.cfg, b.app.logger

	b.graphqlHandler = buildGraphQLHandler(cfg, logger, b.manager)
	adminHandler, err := buildAdminHandler(cfg, logger, b.manager, b.metrics.admin)
	if err != nil {
		return err
	}
	b.adminHandler = adminHandler

	checks := healthChecks{store: b.store.db, schema: b.manager}
	b.mux = buildRouter(cfg, logger, checks, b.graphqlHandler, b.adminHandler, b.meterProvider)
	b.handler = wrapHTTPHandler(cfg, logger, b.mux)
	return nil
}

func (b *bootstrap) server(context.Context) error {
	b.serverAddr = fmt.Sprintf(":%d", b.app.cfg.Server.Port)
	srv, tlsManager, err := buildServer(b.app.cfg, b.app.logger, b.handler, b.serverAddr)
	if err != nil {
		return err
	}
	b.srv, b.tlsManager = srv, tlsManager
	b.cleanup.push("HTTP server", srv.Shutdown)
	if tlsManager != nil {
		b.cleanup.push("TLS manager", func(context.Context) error {
			return tlsManager.Shutdown()
		})
	}
	return nil
}
