package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/appid"
	"github.com/ghostpni/ghostpni/internal/config"
	"github.com/ghostpni/ghostpni/internal/core/engine"
	"github.com/ghostpni/ghostpni/internal/core/rpc"
	"github.com/ghostpni/ghostpni/internal/core/store"
	errwrap "github.com/ghostpni/ghostpni/internal/errors"
	"github.com/ghostpni/ghostpni/internal/metrics"
	"github.com/ghostpni/ghostpni/internal/observability"
	"github.com/ghostpni/ghostpni/internal/server"
	"github.com/ghostpni/ghostpni/internal/server/handlers"
)

const uptimeInterval = 15 * time.Second

var (
	serverPort int
	serverHost string
	serveNet   string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

// journalHealthChecker pings the journal database.
type journalHealthChecker struct {
	db *store.Store
}

func (j journalHealthChecker) CheckHealth(ctx context.Context) error {
	if j.db == nil || j.db.DB == nil {
		return errwrap.NewServiceUnavailableError("journal store not open")
	}
	return j.db.DB.PingContext(ctx)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mimicry engine and its HTTP API",
	Long: `Run the mimicry engine against the selected network and serve the
transaction, status and JSON-RPC proxy API.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-validate configuration (restart to apply changes)

On shutdown the HTTP server stops first, then pending transactions are
resolved as cancelled, the journal is closed and logs are flushed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (overrides server.port)")
	serveCmd.Flags().StringVarP(&serveNet, "network", "n", "", "network profile (overrides network)")
}

func serveOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	serverOverrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		serverOverrides["host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		serverOverrides["port"] = serverPort
	}
	if len(serverOverrides) > 0 {
		overrides["server"] = serverOverrides
	}
	if cmd.Flags().Changed("network") {
		overrides["network"] = serveNet
	}
	return overrides
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	identity := GetAppIdentity()
	namespace := appid.Namespace(identity)

	cfg, err := config.Load(ctx, serveOverrides(cmd))
	if err != nil {
		ExitWithCode(observability.CLILogger, ExitCodeFor(err), "Failed to load configuration", err)
		return err
	}

	observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}

	network, err := cfg.ResolveNetwork()
	if err != nil {
		ExitWithCode(logger, foundry.ExitConfigInvalid, "Failed to resolve network", err)
		return err
	}

	var db *store.Store
	if cfg.Journal.Enabled {
		db, err = openJournal(ctx, cfg)
		if err != nil {
			logger.Warn("Dispatch journal unavailable; continuing without it", zap.Error(err))
			db = nil
		}
	}

	deps := engineDeps{
		Transport: rpc.NewHTTPTransport(cfg.Dispatch.HTTPTimeout, cfg.Dispatch.UserAgent),
		Logger:    logger,
	}
	if db != nil {
		deps.Journal = db
	}
	controller, err := buildEngine(cfg, network, deps)
	if err != nil {
		ExitWithCode(logger, foundry.ExitConfigInvalid, "Failed to build engine", err)
		return err
	}

	logger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("network", network.Name),
		zap.Int("endpoints", len(network.Endpoints)),
		zap.Int("private_endpoints", len(cfg.Dispatch.PrivateEndpoints)),
		zap.Int("cover_target", controller.CoverTarget()),
		zap.Bool("decoys_enabled", cfg.Mimicry.DecoysEnabled),
		zap.Bool("journal", db != nil),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("metrics_port", observability.GetMetricsPort()))

	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("endpoint_pool", handlers.PoolChecker(controller))
	hm.RegisterChecker("app_identity", identityHealthChecker{
		binaryName: identity.BinaryName,
		envPrefix:  identity.EnvPrefix,
		configName: identity.ConfigName,
	})
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	if db != nil {
		hm.RegisterChecker("journal", journalHealthChecker{db: db})
	}

	handlers.SetAppIdentity(identity)
	handlers.SetEngineInfo(handlers.EngineInfo{
		Network:       network.Name,
		CoverTarget:   controller.CoverTarget(),
		DecoysEnabled: cfg.Mimicry.DecoysEnabled,
		PrivateRoute:  len(cfg.Dispatch.PrivateEndpoints) > 0,
	})

	opts := server.OptionsFromConfig(cfg)
	opts.Engine = controller
	if db != nil {
		opts.Journal = db
	}
	srv := server.New(opts)

	engineCtx, stopEngine := context.WithCancel(context.Background())
	run := startEngine(engineCtx, controller)
	go trackUptime(engineCtx, time.Now())

	registerShutdown(cfg, srv, stopEngine, run, db)

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: re-validating configuration")
		if _, err := config.Load(ctx, serveOverrides(cmd)); err != nil {
			logger.Error("Configuration is invalid", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		logger.Info("Configuration is valid; restart to apply engine changes")
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		stopEngine()
		return errwrap.WrapInternal(ctx, err, "server error")
	case <-run.done:
		if err := run.err; err != nil && !errors.Is(err, context.Canceled) {
			return errwrap.WrapInternal(ctx, err, "engine stopped")
		}
		return nil
	}
}

// engineRun tracks a controller running in the background.
type engineRun struct {
	done chan struct{}
	err  error
}

func startEngine(ctx context.Context, controller *engine.Controller) *engineRun {
	run := &engineRun{done: make(chan struct{})}
	go func() {
		defer close(run.done)
		run.err = controller.Run(ctx)
	}()
	return run
}

// Wait blocks until the controller returns or ctx is done.
func (r *engineRun) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		if r.err != nil && !errors.Is(r.err, context.Canceled) {
			return r.err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openJournal opens the journal store and prunes rows past retention.
func openJournal(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := openJournalStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if cfg.Journal.Retention > 0 {
		pruned, err := db.PruneDispatches(ctx, time.Now().Add(-cfg.Journal.Retention))
		if err != nil {
			observability.ServerLogger.Warn("Journal retention prune failed", zap.Error(err))
		} else {
			metrics.SetJournalPruned(pruned)
			observability.ServerLogger.Debug("Journal retention applied",
				zap.Duration("retention", cfg.Journal.Retention),
				zap.Int64("pruned", pruned))
		}
	}
	return db, nil
}

// registerShutdown installs shutdown hooks. Hooks run LIFO, so the HTTP
// server stops first and the logger is flushed last.
func registerShutdown(cfg *config.Config, srv *server.Server, stopEngine context.CancelFunc, run *engineRun, db *store.Store) {
	logger := observability.ServerLogger
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			// Sync errors are often benign (stdout/stderr already closed)
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	if observability.PrometheusExporter != nil {
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Metrics exporter stop returned error", zap.Error(err))
			}
			return nil
		})
	}

	if db != nil {
		signals.OnShutdown(func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				return errwrap.WrapDatabaseError(ctx, err, "journal close failed")
			}
			return nil
		})
	}

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Stopping mimicry engine...")
		stopEngine()
		waitCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := run.Wait(waitCtx); err != nil {
			if waitCtx.Err() != nil {
				return errwrap.WrapInternal(ctx, err, "engine did not stop in time")
			}
			logger.Warn("Engine stopped with error", zap.Error(err))
		}
		logger.Info("Mimicry engine stopped")
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})
}

func trackUptime(ctx context.Context, started time.Time) {
	metrics.SetServerStartTime(started.Unix())
	ticker := time.NewTicker(uptimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			metrics.SetServerUptime(int64(now.Sub(started).Seconds()))
		}
	}
}
