// Package server runs the relay's long-lived components: the event feed
// worker, the session registry and the HTTP listener. They start in the order
// they were added and stop in reverse on SIGINT, SIGTERM or the first failure.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a component managed by a Lifecycle. Start blocks until Stop is
// called or the component fails.
type Service interface {
	Start() error
	Stop()
}

// FuncService wraps a pair of functions, for components such as the session
// registry that only need a stop hook.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

func (f *FuncService) Start() error { return f.StartFn() }

func (f *FuncService) Stop() { f.StopFn() }

// HTTPService runs an http.Server as a Service.
type HTTPService struct {
	Server          *http.Server
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Start serves /ws, /health and /stats until Stop. A clean shutdown returns nil.
func (h *HTTPService) Start() error {
	if err := h.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops accepting connections and waits for in-flight requests up to
// ShutdownTimeout. Hijacked WebSocket connections are not tracked here.
func (h *HTTPService) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), h.ShutdownTimeout)
	defer cancel()
	if err := h.Server.Shutdown(ctx); err != nil {
		h.Logger.Warn("http shutdown", zap.Error(err))
	}
}

// Lifecycle owns the relay's components for the life of the process.
type Lifecycle struct {
	logger   *zap.Logger
	services []namedService
	mu       sync.Mutex
}

type namedService struct {
	name    string
	service Service
}

// NewLifecycle creates an empty Lifecycle.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		logger: logger,
	}
}

// Add appends svc. Components added later stop earlier.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every component and blocks until a signal arrives, ctx is
// cancelled or a component fails. Every component has been stopped when Run
// returns; the first failure is returned.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	errCh := make(chan error, len(services))
	for _, ns := range services {
		go func() {
			l.logger.Info("starting component", zap.String("component", ns.name))
			if err := ns.service.Start(); err != nil {
				l.logger.Error("component failed",
					zap.String("component", ns.name),
					zap.Error(err),
				)
				errCh <- fmt.Errorf("%s: %w", ns.name, err)
			}
		}()
	}

	l.logger.Info("relay running", zap.Int("components", len(services)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("signal received, stopping relay", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		l.logger.Error("stopping relay after component failure", zap.Error(runErr))
	case <-ctx.Done():
		l.logger.Info("context cancelled, stopping relay")
	}

	l.shutdown(services)

	l.logger.Info("relay stopped", zap.Duration("uptime", time.Since(start)))
	return runErr
}

func (l *Lifecycle) shutdown(services []namedService) {
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		began := time.Now()
		ns.service.Stop()
		l.logger.Info("component stopped",
			zap.String("component", ns.name),
			zap.Duration("elapsed", time.Since(began)),
		)
	}
}
