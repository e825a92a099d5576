package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghostpni/ghostpni/internal/core/store"
	"github.com/ghostpni/ghostpni/internal/metrics"
	"github.com/ghostpni/ghostpni/internal/output"
)

var (
	journalPruneBefore time.Duration
	journalPruneYes    bool
	journalPruneDryRun bool
)

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journal rows older than a cutoff",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}
		if journalPruneBefore <= 0 {
			return errors.New("--before must be a positive duration")
		}
		if !journalPruneYes && !journalPruneDryRun {
			return errors.New("prune requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		cutoff := time.Now().Add(-journalPruneBefore)
		matched, err := db.CountDispatches(cmd.Context(), store.JournalQuery{Before: cutoff})
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if journalPruneDryRun {
			return writeJournalPruneResult(format, sink.writer, cutoff, matched, 0, true)
		}

		deleted, err := db.PruneDispatches(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		metrics.SetJournalPruned(deleted)

		return writeJournalPruneResult(format, sink.writer, cutoff, matched, deleted, false)
	},
}

func writeJournalPruneResult(format output.Format, w io.Writer, cutoff time.Time, matched, deleted int64, dryRun bool) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(map[string]any{
			"before":  cutoff.UTC().Format(time.RFC3339),
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d journal row(s) before %s\n", matched, cutoff.Local().Format(time.RFC3339))
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d journal row(s) before %s\n", deleted, matched, cutoff.Local().Format(time.RFC3339))
	return err
}

func init() {
	journalPruneCmd.Flags().DurationVar(&journalPruneBefore, "before", 0, "Delete rows older than this duration (e.g. 720h)")
	journalPruneCmd.Flags().BoolVar(&journalPruneYes, "yes", false, "Confirm deletion")
	journalPruneCmd.Flags().BoolVar(&journalPruneDryRun, "dry-run", false, "Show what would be deleted")
	addOutputFlags(journalPruneCmd, "table|json")
}
