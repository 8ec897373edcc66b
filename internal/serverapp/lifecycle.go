package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cms-graphql/internal/logging"
)

// Stop reasons returned by WaitForStop.
const (
	stopSignal      = "signal"
	stopServerError = "server_error"
)

// Start serves HTTP in the background. The returned channel yields the
// server's terminal error. Calling Start again returns the same channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	switch {
	case !a.initialized:
		return nil, errors.New("app is not initialized")
	case a.started:
		return a.serverErrors, nil
	}
	a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop blocks until a signal arrives on stop or the server fails.
// A nil serverErrors falls back to the channel returned by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (string, error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", errors.New("nothing to wait for: no signal or server error channel")
	}

	// A nil channel never becomes ready, so one select covers every case.
	select {
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return stopSignal, nil
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		} else {
			err = fmt.Errorf("server failed: %w", err)
		}
		return stopServerError, err
	}
}

// Shutdown releases everything Init acquired, newest first. Only the first
// call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		if err := cleanup.run(ctx, a.logger); err != nil && a.logger != nil {
			a.logger.Warn("shutdown finished with errors", slog.String("error", err.Error()))
		}
	})
	return nil
}

type cleanupItem struct {
	name string
	fn   func(context.Context) error
}

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack struct {
	items []cleanupItem
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.items = append(s.items, cleanupItem{name: name, fn: fn})
}

// run calls every cleanup even when earlier ones fail and returns the
// failures joined.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		start := time.Now()
		err := item.fn(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
		}
		if logger == nil {
			continue
		}
		if err != nil {
			logger.Warn("cleanup failed", slog.String("component", item.name), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("released", slog.String("component", item.name), slog.Duration("took", time.Since(start)))
	}
	return errors.Join(errs...)
}
