// Package serverapp wires configuration, the entry store, schema refresh and
// the HTTP server into one lifecycle.
package serverapp

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"cms-graphql/internal/config"
	"cms-graphql/internal/entryloader"
	"cms-graphql/internal/logging"
	"cms-graphql/internal/observability"
	"cms-graphql/internal/schemarefresh"
	"cms-graphql/internal/tlscert"
)

// App owns runtime resources for the cms-graphql server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider  *observability.MeterProvider
	metrics        *appMetrics
	tracerProvider *observability.TracerProvider

	store *entryStore

	manager      *schemarefresh.Manager
	schemaCancel context.CancelFunc

	graphqlHandler http.Handler
	adminHandler   http.Handler
	mux            *http.ServeMux
	handler        http.Handler

	serverAddr string
	srv        *http.Server
	tlsManager tlscert.Manager

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// appMetrics groups the instruments created when metrics are enabled.
// Every field is nil when metrics are off.
type appMetrics struct {
	graphql       *observability.GraphQLMetrics
	schemaRefresh *observability.SchemaRefreshMetrics
	entryLoader   *observability.EntryLoaderMetrics
	admin         *observability.AdminMetrics
}

// entryStore is the opened entry source and, for SQL drivers, its pool.
type entryStore struct {
	source entryloader.Source
	db     *entryloader.DB
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
