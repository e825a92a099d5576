package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
)

type section struct {
	Title string
	Lines []string
}

func snapshotSections(snapshot *core.Snapshot) []section {
	if snapshot == nil {
		return nil
	}

	sections := make([]section, 0, 2)
	if snapshot.StormActive && snapshot.Storm != nil {
		storm := snapshot.Storm
		sections = append(sections, section{
			Title: "Storm",
			Lines: []string{
				fmt.Sprintf("Intensity: %d decoys over %s", storm.Intensity, storm.Duration),
				fmt.Sprintf("Progress: %d emitted, %d remaining", storm.Emitted, storm.Remaining),
				fmt.Sprintf("Ends: %s", storm.EndsAt.Format("15:04:05")),
			},
		})
	}

	if len(snapshot.RecentActivity) > 0 {
		lines := make([]string, 0, len(snapshot.RecentActivity))
		for _, entry := range snapshot.RecentActivity {
			line := fmt.Sprintf("%s %s/%s %s", entry.At.Format("15:04:05"), entry.Kind, entry.Source, entry.Result)
			if entry.Endpoint != "" {
				line += " via " + entry.Endpoint
			}
			if entry.Attempts > 1 {
				line += fmt.Sprintf(" (%d attempts)", entry.Attempts)
			}
			lines = append(lines, line)
		}
		sections = append(sections, section{Title: "Recent Activity", Lines: lines})
	}

	return sections
}

func simulationSections(report *SimulationReport) []section {
	if report == nil || len(report.Reals) == 0 {
		return nil
	}

	lines := make([]string, 0, len(report.Reals))
	for _, tx := range report.Reals {
		line := fmt.Sprintf("%s %s cover=%s", shortID(tx.ID), tx.State, coverLabel(tx))
		if tx.Failure != core.FailureNone {
			line += " failure=" + failureLabel(tx.Failure)
		}
		if tx.ReleasedAt != nil {
			line += " waited=" + tx.ReleasedAt.Sub(tx.SubmittedAt).Round(time.Millisecond).String()
		}
		lines = append(lines, line)
	}
	return []section{{Title: "Transactions", Lines: lines}}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderSections(sections []section, markdown bool) string {
	if len(sections) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, sec := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		if markdown {
			sb.WriteString(fmt.Sprintf("\n\n### %s\n", sec.Title))
			for _, line := range sec.Lines {
				sb.WriteString(fmt.Sprintf("- %s\n", line))
			}
		} else {
			sb.WriteString(fmt.Sprintf("\n\n%s:\n", sec.Title))
			for _, line := range sec.Lines {
				sb.WriteString(fmt.Sprintf("  %s\n", line))
			}
		}
	}
	return sb.String()
}
