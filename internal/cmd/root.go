package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/appid"
	"github.com/ghostpni/ghostpni/internal/config"
	"github.com/ghostpni/ghostpni/internal/observability"
)

var (
	cfgFile string
	verbose bool

	appIdentity *appidentity.Identity

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo records build metadata injected by main.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity resolved by initConfig.
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "Traffic mimicry agent for blockchain RPC clients",
	Long: `ghostpni hides real transactions inside a stream of decoy RPC traffic.

Use the subcommands to run the agent, submit transactions and inspect its state.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve installs the
	// real telemetry system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	// Help text is rendered before cobra runs initializers.
	if identity, err := appid.Get(context.Background()); err == nil && identity != nil {
		appIdentity = identity
		describeRoot(identity)
	}

	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is the app identity config path)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
}

func describeRoot(identity *appidentity.Identity) {
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description == "" {
		return
	}
	rootCmd.Short = identity.Description
	rootCmd.Long = fmt.Sprintf("%s - %s\n\nUse the subcommands to run the agent, submit transactions and inspect its state.",
		identity.BinaryName, identity.Description)
}

// initConfig resolves the identity, starts the CLI logger and points the
// global viper instance at the config file. Typed configuration is built by
// config.Load on its own instance.
func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity", err)
		return
	}
	appIdentity = identity
	describeRoot(identity)
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}

	observability.InitCLILogger(identity.BinaryName, verbose)
	logger := observability.CLILogger

	switch {
	case cfgFile != "":
		if _, err := os.Stat(cfgFile); err != nil {
			ExitWithCode(logger, foundry.ExitFileNotFound, "Config file not readable", err)
			return
		}
		config.SetConfigFile(cfgFile)
		viper.SetConfigFile(cfgFile)
	default:
		if dir := gfconfig.GetAppConfigDir(identity.ConfigName); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix(identity.EnvPrefix)
	viper.AutomaticEnv()
	config.ApplyDefaults(viper.GetViper())

	err = viper.ReadInConfig()
	switch {
	case err == nil:
		logger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	case !verbose:
	case isConfigNotFound(err):
		logger.Debug("No config file found, using defaults and environment variables")
	default:
		logger.Warn("Error reading config file", zap.Error(err))
	}
}

func isConfigNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}
