package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/store"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// SimulationReport summarizes an in-process simulation run.
type SimulationReport struct {
	Network  string            `json:"network"`
	Duration time.Duration     `json:"duration"`
	Snapshot core.Snapshot     `json:"snapshot"`
	Reals    []core.RealStatus `json:"reals"`
}

// Formatter renders engine and journal views.
type Formatter interface {
	FormatSnapshot(snapshot *core.Snapshot) (string, error)
	FormatNetworks(networks []core.Network, selected string) (string, error)
	FormatJournal(records []core.DispatchRecord) (string, error)
	FormatJournalSummary(summary *store.JournalSummary) (string, error)
	FormatSimulation(report *SimulationReport) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}
