package output

import (
	"encoding/json"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/store"
)

// JSONFormatter renders views as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatSnapshot(snapshot *core.Snapshot) (string, error) {
	if snapshot == nil {
		return "", nil
	}
	return f.marshal(snapshot)
}

func (f *JSONFormatter) FormatNetworks(networks []core.Network, _ string) (string, error) {
	if networks == nil {
		networks = []core.Network{}
	}
	return f.marshal(networks)
}

func (f *JSONFormatter) FormatJournal(records []core.DispatchRecord) (string, error) {
	if records == nil {
		records = []core.DispatchRecord{}
	}
	return f.marshal(records)
}

func (f *JSONFormatter) FormatJournalSummary(summary *store.JournalSummary) (string, error) {
	if summary == nil {
		return "", nil
	}
	return f.marshal(summary)
}

func (f *JSONFormatter) FormatSimulation(report *SimulationReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
