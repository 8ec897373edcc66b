// Package schemarefresh builds schema snapshots from the content model file
// and swaps them in when the file changes.
package schemarefresh

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"cms-graphql/internal/backref"
	"cms-graphql/internal/contentmodel"
	"cms-graphql/internal/entryloader"
	"cms-graphql/internal/logging"
	"cms-graphql/internal/observability"
	"cms-graphql/internal/schema"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Snapshot contains an immutable view of the current schema state.
type Snapshot struct {
	Result      *schema.Result
	Handler     http.Handler
	Loaders     entryloader.Factory
	BuiltAt     time.Time
	Fingerprint string
}

// Config controls schema refresh behavior.
type Config struct {
	// ModelPath is the content model file watched for changes.
	ModelPath string
	// ReadModel overrides how the model document is read. Defaults to
	// reading ModelPath.
	ReadModel   func(ctx context.Context) ([]byte, error)
	Build       BuildConfig
	Logger      *logging.Logger
	Metrics     *observability.SchemaRefreshMetrics
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Manager maintains and refreshes schema snapshots.
type Manager struct {
	readModel   func(ctx context.Context) ([]byte, error)
	build       BuildConfig
	logger      *logging.Logger
	metrics     *observability.SchemaRefreshMetrics
	minInterval time.Duration
	maxInterval time.Duration
	modelPath   string

	active atomic.Pointer[Snapshot]
	// buildMu serializes rebuilds between the poll loop and manual reloads.
	buildMu sync.Mutex
	wg      sync.WaitGroup
}

// NewManager builds the initial schema snapshot and returns a manager.
// A zero MinInterval disables polling.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.ModelPath == "" && cfg.ReadModel == nil {
		return nil, fmt.Errorf("schema refresh manager requires a content model path")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	minInterval := cfg.MinInterval
	maxInterval := cfg.MaxInterval
	if minInterval > 0 && maxInterval < minInterval {
		maxInterval = minInterval
	}

	readModel := cfg.ReadModel
	if readModel == nil {
		path := cfg.ModelPath
		readModel = func(context.Context) ([]byte, error) {
			return os.ReadFile(path)
		}
	}

	componentLogger := cfg.Logger.WithFields(slog.String("component", "schema_refresh"))
	build := cfg.Build
	if build.Logger == nil {
		build.Logger = componentLogger.Logger
	}

	manager := &Manager{
		readModel:   readModel,
		build:       build,
		logger:      componentLogger,
		metrics:     cfg.Metrics,
		minInterval: minInterval,
		maxInterval: maxInterval,
		modelPath:   cfg.ModelPath,
	}

	start := time.Now()
	data, fingerprint, err := manager.readFingerprint(ctx)
	if err == nil {
		err = manager.rebuild(data, fingerprint)
	}
	manager.recordRefresh(ctx, time.Since(start), err == nil, "startup")
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// Start begins the background refresh loop.
func (m *Manager) Start(ctx context.Context) {
	if m.minInterval <= 0 {
		m.logger.Info("schema refresh disabled")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// Handler returns an HTTP handler serving each request from the snapshot
// current at the time the request arrives.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := m.CurrentSnapshot()
		if snapshot == nil || snapshot.Handler == nil {
			http.Error(w, "schema not ready", http.StatusServiceUnavailable)
			return
		}
		snapshot.Handler.ServeHTTP(w, r)
	})
}

// CurrentSnapshot returns the active schema snapshot.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// ModelFingerprint returns the fingerprint of the active content model.
func (m *Manager) ModelFingerprint() string {
	if snapshot := m.CurrentSnapshot(); snapshot != nil {
		return snapshot.Fingerprint
	}
	return ""
}

// RefreshNow forces a schema rebuild and swap.
func (m *Manager) RefreshNow() error {
	return m.RefreshNowContext(context.Background())
}

// RefreshNowContext forces a schema rebuild and swap with context support.
// The active snapshot is kept when the rebuild fails.
func (m *Manager) RefreshNowContext(ctx context.Context) error {
	start := time.Now()
	data, fingerprint, err := m.readFingerprint(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = m.rebuild(data, fingerprint)
	}
	m.recordRefresh(ctx, time.Since(start), err == nil, "manual")
	return err
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			m.refreshOnce(ctx, &interval)
			timer.Reset(interval)
		}
	}
}

func (m *Manager) refreshOnce(ctx context.Context, interval *time.Duration) {
	start := time.Now()
	data, fingerprint, err := m.readFingerprint(ctx)
	if err != nil {
		m.logger.Warn("content model fingerprint check failed", slog.String("error", err.Error()))
		m.recordRefresh(ctx, time.Since(start), false, "poll")
		*interval = m.minInterval
		return
	}

	if current := m.CurrentSnapshot(); current != nil && current.Fingerprint == fingerprint {
		m.recordRefresh(ctx, time.Since(start), true, "poll_no_change")
		*interval = nextInterval(*interval, m.minInterval, m.maxInterval)
		return
	}

	m.logger.Info("content model change detected, rebuilding",
		slog.String("fingerprint", fingerprint),
		slog.String("previous_fingerprint", m.ModelFingerprint()),
	)
	if err := m.rebuild(data, fingerprint); err != nil {
		m.logger.Error("failed to rebuild schema", slog.String("error", err.Error()))
		m.recordRefresh(ctx, time.Since(start), false, "poll")
		*interval = m.minInterval
		return
	}

	*interval = m.minInterval
	m.recordRefresh(ctx, time.Since(start), true, "poll")
	m.logger.Info("schema refresh complete", slog.String("fingerprint", fingerprint))
}

func (m *Manager) readFingerprint(ctx context.Context) ([]byte, string, error) {
	tracer := otel.Tracer("cms-graphql/schemarefresh")
	ctx, span := tracer.Start(ctx, "content_model.fingerprint")
	defer span.End()
	if m.modelPath != "" {
		span.SetAttributes(attribute.String("cms.model.path", m.modelPath))
	}

	data, err := m.readModel(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, "", fmt.Errorf("failed to read content model: %w", err)
	}
	fingerprint := contentmodel.FingerprintBytes(data)
	span.SetAttributes(attribute.String("cms.model.fingerprint", fingerprint))
	return data, fingerprint, nil
}

func (m *Manager) rebuild(data []byte, fingerprint string) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	start := time.Now()
	snapshot, err := BuildSnapshot(data, m.build)
	if err != nil {
		return err
	}
	if snapshot.Fingerprint == "" {
		snapshot.Fingerprint = fingerprint
	}

	m.logSnapshot(snapshot)
	m.active.Store(snapshot)
	m.logger.Info("schema snapshot built",
		slog.String("fingerprint", snapshot.Fingerprint),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (m *Manager) logSnapshot(snapshot *Snapshot) {
	result := snapshot.Result
	if result == nil || result.Model == nil {
		return
	}
	m.logger.Info("content types loaded",
		slog.Int("count", len(result.Registry)),
		slog.Int("page_types", len(snapshot.Loaders.PageTypes)),
	)
	for _, ct := range result.Model.ContentTypes {
		resolutions := result.Backrefs[ct.ID]
		skipped := 0
		for _, res := range resolutions {
			if res.Kind == backref.KindSkipped {
				skipped++
			}
		}
		m.logger.Debug("content type registered",
			slog.String("content_type", ct.ID),
			slog.String("type", ct.Names.Type),
			slog.Int("fields", len(ct.Fields)),
			slog.Int("backrefs", len(resolutions)-skipped),
			slog.Int("backrefs_skipped", skipped),
		)
	}
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if maxInterval > 0 && next > maxInterval {
		return maxInterval
	}
	return next
}

func (m *Manager) recordRefresh(ctx context.Context, duration time.Duration, success bool, trigger string) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordRefresh(context.WithoutCancel(ctx), duration, success, trigger)
}
