// Package server is the composition root: it selects backends from
// configuration, wires the pipeline and runs it alongside the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/api"
	"github.com/JakeFAU/geo-ingest/internal/clock/system"
	"github.com/JakeFAU/geo-ingest/internal/config"
	"github.com/JakeFAU/geo-ingest/internal/id/uuid"
	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/metrics"
	"github.com/JakeFAU/geo-ingest/internal/pool"
	"github.com/JakeFAU/geo-ingest/internal/progress"
	pubsubqueue "github.com/JakeFAU/geo-ingest/internal/queue/pubsub"
	"github.com/JakeFAU/geo-ingest/internal/status"
	"github.com/JakeFAU/geo-ingest/internal/storage/postgis"
	"github.com/JakeFAU/geo-ingest/internal/telemetry"
	"github.com/JakeFAU/geo-ingest/internal/worker"
)

const (
	readHeaderTimeout      = 5 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	apiServer   *api.Server
	pool        *pool.Pool
	ledger      status.Ledger
	progressHub *progress.Hub
	postgis     *postgis.FeatureStore
	pubsubQueue *pubsubqueue.Queue
	checks      map[string]api.ReadinessCheck
	closers     []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// onClose registers fn to run during Close, in reverse registration order.
func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Build creates the application's dependencies. On error every resource
// opened so far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{
		cfg:    cfg,
		logger: logger,
		checks: map[string]api.ReadinessCheck{},
	}
	if err := app.build(ctx); err != nil {
		_ = app.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	a.logger.Info("building application dependencies",
		zap.String("broker", cfg.Broker.Backend),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("status", cfg.Status.Backend),
		zap.Int("concurrency", cfg.Worker.Concurrency),
	)
	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			return fmt.Errorf("tracer init failed: %w", err)
		}
		a.onClose("tracer", tp.Shutdown)
	}
	clock := system.New()
	ids := uuid.New()

	resolver, hosted, err := setupStorage(ctx, a)
	if err != nil {
		return err
	}
	features, err := setupFeatureStore(ctx, a)
	if err != nil {
		return err
	}
	dispatcher, err := NewDispatcher(Inspectors{
		Config:   InspectConfig(cfg),
		Opener:   resolver,
		Hosted:   hosted,
		Features: features,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	a.ledger, err = setupLedger(a, clock)
	if err != nil {
		return err
	}
	broker, err := setupBroker(ctx, a)
	if err != nil {
		return err
	}
	statusPublisher := status.NewGuard(broker.status, a.ledger, logger.Named("status"))

	emitter, err := setupProgress(ctx, a)
	if err != nil {
		return err
	}

	w, err := worker.New(
		dispatcher,
		statusPublisher,
		ids,
		clock,
		emitter,
		worker.Config{StatusTimeout: cfg.Worker.StatusTimeout},
		logger.Named("worker"),
	)
	if err != nil {
		return fmt.Errorf("worker init failed: %w", err)
	}
	a.pool, err = pool.New(broker.jobs, w, pool.Config{
		Concurrency:  cfg.Worker.Concurrency,
		DrainTimeout: cfg.Worker.DrainTimeout,
	}, logger.Named("pool"))
	if err != nil {
		return fmt.Errorf("pool init failed: %w", err)
	}

	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	a.apiServer = api.NewServer(
		broker.submit,
		a.ledger,
		ids,
		a.checks,
		api.Config{APIKey: apiKey, RequestTimeout: cfg.Server.RequestTimeout},
		logger.Named("api"),
	)
	return nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Ledger exposes the status ledger.
func (a *App) Ledger() status.Ledger {
	return a.ledger
}

// Run starts the pool and the HTTP server and blocks until ctx is cancelled
// or a termination signal arrives, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.serve(ctx, stop, ln)
}

func (a *App) serve(ctx context.Context, stop context.CancelFunc, ln net.Listener) error {
	if a.pubsubQueue != nil {
		a.pubsubQueue.Start(ctx)
	}

	poolDone := make(chan error, 1)
	go func() {
		a.logger.Info("worker pool started", zap.Int("concurrency", a.cfg.Worker.Concurrency))
		err := a.pool.Run(ctx)
		if err != nil {
			a.logger.Error("worker pool stopped", zap.Error(err))
			stop()
		}
		poolDone <- err
	}()

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	poolErr := <-poolDone

	closeCtx, cancelClose := context.WithTimeout(context.Background(), timeout)
	defer cancelClose()
	return errors.Join(poolErr, a.Close(closeCtx))
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// brokerSet groups the transports selected by broker.backend.
type brokerSet struct {
	jobs   ingest.Queue
	status ingest.Publisher
	submit ingest.Publisher
}
