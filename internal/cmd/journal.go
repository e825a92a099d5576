package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghostpni/ghostpni/internal/core/store"
	"github.com/ghostpni/ghostpni/internal/output"
	"github.com/ghostpni/ghostpni/internal/server/handlers"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect and prune the dispatch journal",
	Long: `The dispatch journal records one row per finished dispatch: kind, source,
endpoint, attempts, result and duration. Payloads and responses are never
stored.`,
}

var (
	journalKind   string
	journalSource string
	journalResult string
	journalSince  string
	journalLimit  int
)

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent dispatches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		query, err := journalQueryFromFlags(time.Now())
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		records, err := db.ListDispatches(cmd.Context(), query)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatJournal(records)
		if err != nil {
			return err
		}
		return writeRendered(cmd, rendered)
	},
}

var journalStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize dispatches by kind and result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		query, err := journalQueryFromFlags(time.Now())
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		summary, err := db.SummarizeDispatches(cmd.Context(), query)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatJournalSummary(summary)
		if err != nil {
			return err
		}
		return writeRendered(cmd, rendered)
	},
}

func journalQueryFromFlags(now time.Time) (store.JournalQuery, error) {
	query := store.JournalQuery{
		Kind:   strings.TrimSpace(journalKind),
		Source: strings.TrimSpace(journalSource),
		Result: strings.TrimSpace(journalResult),
		Limit:  journalLimit,
	}
	if raw := strings.TrimSpace(journalSince); raw != "" {
		since, err := handlers.ParseSince(raw, now)
		if err != nil {
			return query, err
		}
		query.Since = since
	}
	return query, query.Validate()
}

func addJournalFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&journalKind, "kind", "", "Filter by kind: decoy|real|passthrough")
	cmd.Flags().StringVar(&journalSource, "source", "", "Filter by source: heartbeat|storm|real|proxy")
	cmd.Flags().StringVar(&journalResult, "result", "", "Filter by result (success or a failure kind)")
	cmd.Flags().StringVar(&journalSince, "since", "", "Only rows newer than a duration (90m) or RFC 3339 time")
}

func init() {
	addJournalFilterFlags(journalListCmd)
	journalListCmd.Flags().IntVar(&journalLimit, "limit", 50, "Maximum rows to show")
	addOutputFlags(journalListCmd, "table|json|markdown")

	addJournalFilterFlags(journalStatsCmd)
	addOutputFlags(journalStatsCmd, "table|json|markdown")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalStatsCmd)
	journalCmd.AddCommand(journalPruneCmd)
	rootCmd.AddCommand(journalCmd)
}
