// Package runtime provides the process skeleton every binary wires
// itself into: connect the shared bus and database, register bus
// subscriptions and background components, serve health/metrics, and
// tear everything down within the configured grace period on SIGINT or
// SIGTERM (§2, §4.1, §5).
//
// It generalizes cmd/tarsy/main.go's wiring order (connect dependencies,
// construct services, serve, shut down) into a reusable type, and
// mirrors pkg/queue/pool.go's Start/Stop symmetry for the components a
// service registers (worker pools, periodic sweeps, bus subscriptions)
// so storymemory, analyzer, and orchestrator shut down identically.
package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
	"github.com/bodybroker/core/pkg/database"
	"github.com/bodybroker/core/pkg/metrics"
)

// Component is a background unit a Service owns for its lifetime: a
// worker pool, a periodic sweep, anything with an explicit stop. Stop
// must block until the component has finished in-flight work.
type Component struct {
	Name string
	Stop func()
}

// Service composes the resources and lifecycle every binary shares:
// one bus connection, one database pool, one metrics/health server,
// and a set of registered components and bus subscriptions that are
// torn down together on shutdown (§5: "single pool per service",
// "shared resources").
type Service struct {
	Name        string
	Logger      *zap.Logger
	Bus         bus.Bus
	DB          *database.Client
	Metrics     *metrics.Metrics
	MetricsAddr string
	GracePeriod time.Duration

	mu         sync.Mutex
	subs       []bus.Subscription
	components []Component
}

// New builds a Service from already-connected dependencies. Connecting
// the bus and database is left to the caller's main() so each binary's
// config load and connection errors surface before anything starts.
func New(name string, logger *zap.Logger, b bus.Bus, db *database.Client, m *metrics.Metrics, metricsAddr string, gracePeriod time.Duration) *Service {
	return &Service{
		Name:        name,
		Logger:      logger,
		Bus:         b,
		DB:          db,
		Metrics:     m,
		MetricsAddr: metricsAddr,
		GracePeriod: gracePeriod,
	}
}

// Subscribe registers a bus subscription that is unsubscribed on
// shutdown. Callers use this instead of calling s.Bus.Subscribe
// directly so the subscription is tracked for teardown.
func (s *Service) Subscribe(subject, group string, handler bus.Handler) error {
	sub, err := s.Bus.Subscribe(subject, group, handler)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return nil
}

// SubscribeReply registers a request/reply responder that is
// unsubscribed on shutdown, the reply-side counterpart to Subscribe.
func (s *Service) SubscribeReply(subject string, handler bus.ReplyHandler) error {
	sub, err := s.Bus.SubscribeReply(subject, handler)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return nil
}

// Register adds a Component whose Stop is called on shutdown, in the
// order registered. Worker pools and other long-running loops that
// already take their own ctx should still be started by the caller
// (runtime doesn't own goroutine startup, only the stop side, since
// each component's Start signature differs).
func (s *Service) Register(name string, stop func()) {
	s.mu.Lock()
	s.components = append(s.components, Component{Name: name, Stop: stop})
	s.mu.Unlock()
}

// RunPeriodic starts fn on a ticker until ctx is cancelled. The
// goroutine is not tracked as a Component: callers that need fn to
// finish draining before shutdown returns should pass a ctx derived
// from this Service's Run context and register an explicit Component
// stop that waits on a sync.WaitGroup.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// ErrShutdownTimedOut is returned by Run when not every registered
// component and subscription finished draining within GracePeriod
// (§4.1: "return error if drain timed out").
var ErrShutdownTimedOut = fmt.Errorf("runtime: shutdown exceeded grace period")

// Run blocks until SIGINT/SIGTERM (or the metrics server dies
// unexpectedly), then stops every registered component and
// subscription within GracePeriod before closing the bus and database
// (§5's graceful-shutdown contract). It returns ErrShutdownTimedOut if
// the drain did not finish in time, so callers can reflect an
// incomplete shutdown in their exit code.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsErrCh := make(chan error, 1)
	if s.Metrics != nil && s.MetricsAddr != "" {
		go func() { metricsErrCh <- s.Metrics.Serve(ctx, s.MetricsAddr) }()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.Logger.Info("shutdown signal received", zap.String("service", s.Name), zap.String("signal", sig.String()))
	case err := <-metricsErrCh:
		if err != nil {
			s.Logger.Error("metrics server exited unexpectedly", zap.String("service", s.Name), zap.Error(err))
		}
	case <-ctx.Done():
	}

	cancel()
	err := s.shutdown()
	return err
}

// shutdown stops every registered component and subscription, waiting
// up to GracePeriod for them to finish draining. It returns
// ErrShutdownTimedOut if the grace period elapsed first; components
// that are still draining in the background at that point are not
// interrupted, only no longer waited on.
func (s *Service) shutdown() error {
	s.mu.Lock()
	components := append([]Component(nil), s.components...)
	subs := append([]bus.Subscription(nil), s.subs...)
	s.mu.Unlock()

	grace, graceCancel := context.WithTimeout(context.Background(), s.GracePeriod)
	defer graceCancel()

	done := make(chan struct{})
	go func() {
		for _, c := range components {
			s.Logger.Info("stopping component", zap.String("service", s.Name), zap.String("component", c.Name))
			c.Stop()
		}
		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				s.Logger.Warn("unsubscribe failed during shutdown", zap.String("service", s.Name), zap.Error(err))
			}
		}
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
		s.Logger.Info("all components stopped cleanly", zap.String("service", s.Name))
	case <-grace.Done():
		s.Logger.Warn("grace period exceeded, proceeding with shutdown", zap.String("service", s.Name), zap.Duration("grace_period", s.GracePeriod))
		drainErr = ErrShutdownTimedOut
	}

	if s.DB != nil {
		s.DB.Close()
	}
	if s.Bus != nil {
		if err := s.Bus.Close(); err != nil {
			s.Logger.Warn("bus close failed", zap.String("service", s.Name), zap.Error(err))
		}
	}

	return drainErr
}
