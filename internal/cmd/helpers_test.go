package cmd

import (
	"context"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/config"
)

// isolateConfig keeps a developer's config, .env and journal out of a test.
func isolateConfig(t *testing.T) {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(config.EnvName("ADMIN_TOKEN"), "")

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	config.SetConfigFile("")
	t.Cleanup(func() { config.SetConfigFile("") })
}

func loadTestConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	isolateConfig(t)
	cfg, err := config.Load(context.Background(), overrides)
	require.NoError(t, err)
	return cfg
}

// newFlagCommand returns a bare command carrying the agent flags.
func newFlagCommand(args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	addAgentFlags(cmd)
	addOutputFlags(cmd, "table|json|markdown")
	_ = cmd.Flags().Parse(args)
	cmd.SetContext(context.Background())
	return cmd
}
