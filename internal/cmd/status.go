package cmd

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running agent",
	Long:  "Fetch the dashboard snapshot of a running agent: decoy counters, storm state, pending transactions and endpoint health.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		client, err := newAgentClient(cmd)
		if err != nil {
			return err
		}

		var snapshot core.Snapshot
		if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/status", nil, &snapshot); err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatSnapshot(&snapshot)
		if err != nil {
			return err
		}
		return writeRendered(cmd, rendered)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addOutputFlags(statusCmd, "table|json|markdown")
	addAgentFlags(statusCmd)
}
