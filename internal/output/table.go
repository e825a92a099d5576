package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/store"
)

// TableFormatter renders views as ASCII tables.
type TableFormatter struct{}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// FormatSnapshot renders engine counters followed by endpoint health.
func (f *TableFormatter) FormatSnapshot(snapshot *core.Snapshot) (string, error) {
	if snapshot == nil {
		return "", nil
	}

	summary := newTable()
	summary.SetTitle(fmt.Sprintf("ghostpni on %s", snapshot.Network))
	summary.AppendRows([]table.Row{
		{"State", stateLabel(snapshot)},
		{"Storm", stormLabel(snapshot)},
		{"Decoys", fmt.Sprintf("%d emitted, %d completed, %d dropped", snapshot.DecoysEmitted, snapshot.DecoysCompleted, snapshot.DecoysDropped)},
		{"Transactions", fmt.Sprintf("%d submitted, %d released, %d failed", snapshot.RealsSubmitted, snapshot.RealsReleased, snapshot.RealsFailed)},
		{"Pending", fmt.Sprintf("%d (cover target %d)", snapshot.PendingReals, snapshot.CoverTarget)},
		{"In flight", fmt.Sprintf("%d/%d (peak %d)", snapshot.InFlight, snapshot.MaxConcurrent, snapshot.PeakInFlight)},
		{"Uptime", fmt.Sprintf("%ds", snapshot.UptimeSeconds)},
	})

	rendered := summary.Render()
	rendered += "\n" + endpointTable("Endpoints", snapshot.Endpoints, snapshot)
	if len(snapshot.PrivateEndpoints) > 0 {
		rendered += "\n" + endpointTable("Private endpoints", snapshot.PrivateEndpoints, snapshot)
	}
	rendered += renderSections(snapshotSections(snapshot), false)
	return rendered, nil
}

func stormLabel(snapshot *core.Snapshot) string {
	if !snapshot.StormActive {
		return fmt.Sprintf("inactive (%d started)", snapshot.StormsStarted)
	}
	return fmt.Sprintf("active (%d started)", snapshot.StormsStarted)
}

func endpointTable(title string, endpoints []core.EndpointHealth, snapshot *core.Snapshot) string {
	now := snapshotNow(snapshot)

	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Endpoint", "Status", "Failures", "OK", "Failed", "Notes"})
	for _, endpoint := range endpoints {
		t.AppendRow(table.Row{
			endpoint.URL,
			endpointStatus(endpoint, now),
			endpoint.ConsecutiveFailures,
			endpoint.TotalSuccesses,
			endpoint.TotalFailures,
			endpointNotes(endpoint, now),
		})
	}
	return t.Render()
}

// FormatNetworks lists network profiles, marking the selected one.
func (f *TableFormatter) FormatNetworks(networks []core.Network, selected string) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"", "Network", "Chain", "Endpoints", "Source"})
	for _, network := range networks {
		marker := ""
		if strings.EqualFold(network.Name, selected) {
			marker = "*"
		}
		source := "config"
		if network.BuiltIn {
			source = "built-in"
		}
		chain := ""
		if network.ChainID > 0 {
			chain = fmt.Sprintf("%d", network.ChainID)
		}
		t.AppendRow(table.Row{marker, network.Name, chain, strings.Join(network.Endpoints, "\n"), source})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d network(s)", len(networks)), ""})
	return t.Render(), nil
}

// FormatJournal renders journal rows, newest first as returned by the store.
func (f *TableFormatter) FormatJournal(records []core.DispatchRecord) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Time", "Kind", "Source", "Result", "Attempts", "Duration", "Endpoint"})
	for _, record := range records {
		t.AppendRow(table.Row{
			record.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			string(record.Kind),
			string(record.Source),
			record.Result,
			record.Attempts,
			formatMillis(record.Duration),
			record.Endpoint,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%d record(s)", len(records))})
	return t.Render(), nil
}

// FormatJournalSummary renders per kind/result aggregates.
func (f *TableFormatter) FormatJournalSummary(summary *store.JournalSummary) (string, error) {
	if summary == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"Kind", "Result", "Count", "Avg attempts", "Avg duration"})
	for _, bucket := range summary.Buckets {
		t.AppendRow(table.Row{
			string(bucket.Kind),
			bucket.Result,
			bucket.Count,
			fmt.Sprintf("%.2f", bucket.AvgAttempts),
			formatAverageMillis(bucket.AvgDurationMS),
		})
	}
	t.AppendFooter(table.Row{"", "Total", summary.Total, "", ""})

	rendered := t.Render()
	if summary.Oldest != nil && summary.Newest != nil {
		rendered += fmt.Sprintf("\nSpan: %s to %s",
			summary.Oldest.Local().Format("2006-01-02 15:04:05"),
			summary.Newest.Local().Format("2006-01-02 15:04:05"))
	}
	return rendered, nil
}

// FormatSimulation renders the final snapshot of a simulation run and the
// fate of each simulated transaction.
func (f *TableFormatter) FormatSimulation(report *SimulationReport) (string, error) {
	if report == nil {
		return "", nil
	}

	rendered, err := f.FormatSnapshot(&report.Snapshot)
	if err != nil {
		return "", err
	}
	header := fmt.Sprintf("Simulated %s on %s\n", report.Duration, report.Network)
	return header + rendered + renderSections(simulationSections(report), false), nil
}
