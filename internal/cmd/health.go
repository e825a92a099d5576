package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/config"
	"github.com/ghostpni/ghostpni/internal/core/engine"
	errwrap "github.com/ghostpni/ghostpni/internal/errors"
	"github.com/ghostpni/ghostpni/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the agent could start: version info, configuration, the selected network and the dispatch journal.",
	Run: func(cmd *cobra.Command, args []string) {
		// Check 1: Logger initialized
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger := observability.CLILogger
		logger.Info("Running health check...")

		// Check 2: Version info available
		if versionInfo.Version == "" {
			logger.Error("❌ FAIL: Version information missing")
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		// Check 3: Configuration loads and validates
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			logger.Error("❌ FAIL: Configuration invalid")
			ExitWithCode(logger, ExitCodeFor(err), "Configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration valid")

		// Check 4: Network resolves to a usable pool
		network, err := cfg.ResolveNetwork()
		if err == nil {
			_, err = engine.NewPool(network.Endpoints, engine.PoolOptions{})
		}
		if err != nil {
			logger.Error("❌ FAIL: Network profile unusable")
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Network profile unusable", err)
			return
		}
		logger.Info("✅ Network profile ready",
			zap.String("network", network.Name),
			zap.Int("endpoints", len(network.Endpoints)))

		// Check 5: Journal opens
		if cfg.Journal.Enabled {
			db, err := openJournalStore(cmd.Context(), cfg.Store)
			if err != nil {
				logger.Error("❌ FAIL: Dispatch journal unavailable")
				ExitWithCode(logger, foundry.ExitFailure, "Dispatch journal unavailable", err)
				return
			}
			_ = db.Close()
			logger.Info("✅ Dispatch journal available")
		} else {
			logger.Info("Dispatch journal disabled")
		}

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
