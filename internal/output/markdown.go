package output

import (
	"fmt"
	"strings"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/store"
)

// MarkdownFormatter renders views as markdown tables.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) FormatSnapshot(snapshot *core.Snapshot) (string, error) {
	if snapshot == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## ghostpni on %s\n\n", escapeMarkdownCell(snapshot.Network)))
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	rows := [][2]string{
		{"State", stateLabel(snapshot)},
		{"Storm", stormLabel(snapshot)},
		{"Decoys emitted", fmt.Sprintf("%d", snapshot.DecoysEmitted)},
		{"Decoys dropped", fmt.Sprintf("%d", snapshot.DecoysDropped)},
		{"Transactions released", fmt.Sprintf("%d/%d", snapshot.RealsReleased, snapshot.RealsSubmitted)},
		{"Pending", fmt.Sprintf("%d", snapshot.PendingReals)},
		{"Cover target", fmt.Sprintf("%d", snapshot.CoverTarget)},
	}
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", row[0], escapeMarkdownCell(row[1])))
	}

	now := snapshotNow(snapshot)
	sb.WriteString("\n| Endpoint | Status | Failures | Notes |\n")
	sb.WriteString("|----------|--------|----------|-------|\n")
	for _, endpoint := range append(append([]core.EndpointHealth(nil), snapshot.Endpoints...), snapshot.PrivateEndpoints...) {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n",
			escapeMarkdownCell(endpoint.URL),
			endpointStatus(endpoint, now),
			endpoint.ConsecutiveFailures,
			escapeMarkdownCell(endpointNotes(endpoint, now)),
		))
	}

	sb.WriteString(renderSections(snapshotSections(snapshot), true))
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatNetworks(networks []core.Network, selected string) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Network | Chain | Endpoints | Selected |\n")
	sb.WriteString("|---------|-------|-----------|----------|\n")
	for _, network := range networks {
		mark := ""
		if strings.EqualFold(network.Name, selected) {
			mark = "yes"
		}
		chain := ""
		if network.ChainID > 0 {
			chain = fmt.Sprintf("%d", network.ChainID)
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(network.Name),
			chain,
			escapeMarkdownCell(strings.Join(network.Endpoints, "<br>")),
			mark,
		))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatJournal(records []core.DispatchRecord) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Time | Kind | Source | Result | Attempts | Duration |\n")
	sb.WriteString("|------|------|--------|--------|----------|----------|\n")
	for _, record := range records {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %s |\n",
			record.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			record.Kind,
			record.Source,
			escapeMarkdownCell(record.Result),
			record.Attempts,
			formatMillis(record.Duration),
		))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatJournalSummary(summary *store.JournalSummary) (string, error) {
	if summary == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("| Kind | Result | Count | Avg attempts | Avg duration |\n")
	sb.WriteString("|------|--------|-------|--------------|--------------|\n")
	for _, bucket := range summary.Buckets {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.2f | %s |\n",
			bucket.Kind,
			escapeMarkdownCell(bucket.Result),
			bucket.Count,
			bucket.AvgAttempts,
			formatAverageMillis(bucket.AvgDurationMS),
		))
	}
	sb.WriteString(fmt.Sprintf("\n**Total**: %d\n", summary.Total))
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatSimulation(report *SimulationReport) (string, error) {
	if report == nil {
		return "", nil
	}

	rendered, err := f.FormatSnapshot(&report.Snapshot)
	if err != nil {
		return "", err
	}
	return rendered + renderSections(simulationSections(report), true), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
