package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var (
	extended    bool
	versionJSON bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including Crucible and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), GetAppIdentity().BinaryName, extended, versionJSON)
	},
}

func writeVersion(w io.Writer, binary string, extended, asJSON bool) error {
	if asJSON {
		payload := map[string]string{
			"binary":  binary,
			"version": versionInfo.Version,
		}
		if extended {
			stack := crucible.GetVersion()
			payload["commit"] = versionInfo.Commit
			payload["build_date"] = versionInfo.BuildDate
			payload["go"] = runtime.Version()
			payload["gofulmen"] = stack.Gofulmen
			payload["crucible"] = stack.Crucible
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if _, err := fmt.Fprintf(w, "%s %s\n", binary, versionInfo.Version); err != nil {
		return err
	}
	if !extended {
		return nil
	}

	stack := crucible.GetVersion()
	_, err := fmt.Fprintf(w, "Commit: %s\nBuilt: %s\nGo: %s\n\nGofulmen: %s\nCrucible: %s\n",
		versionInfo.Commit, versionInfo.BuildDate, runtime.Version(), stack.Gofulmen, stack.Crucible)
	return err
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print version information as JSON")
}
