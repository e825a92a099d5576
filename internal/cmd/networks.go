package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ghostpni/ghostpni/internal/config"
	"github.com/ghostpni/ghostpni/internal/output"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List network profiles",
	Long:  "List built-in network profiles and those declared in configuration or networks_file. The selected network is marked.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		networks, err := cfg.AllNetworks()
		if err != nil {
			return err
		}
		selected, err := cfg.ResolveNetwork()
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatNetworks(networks, selected.Name)
		if err != nil {
			return err
		}
		return writeRendered(cmd, rendered)
	},
}

func init() {
	rootCmd.AddCommand(networksCmd)
	addOutputFlags(networksCmd, "table|json|markdown")
}
