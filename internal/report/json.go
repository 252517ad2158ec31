package report

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pooow/syschange/pkg/models"
)

// JSONReport is the structure of report.json
type JSONReport struct {
	Version   string                       `json:"version"`
	Session   string                       `json:"session"`
	Generated string                       `json:"generated"`
	Changes   map[string]string            `json:"changes"`
	Status    map[string]models.DiffStatus `json:"status"`
	Missing   []string                     `json:"missing"`
}

// NewJSONReport converts a change report. Unchanged and missing sections
// have empty change text; status tells them apart.
func NewJSONReport(report *models.ChangeReport) *JSONReport {
	out := &JSONReport{
		Version:   report.Version,
		Session:   report.Session,
		Generated: report.Generated.Format(time.RFC3339),
		Changes:   make(map[string]string, len(report.Sections)),
		Status:    make(map[string]models.DiffStatus, len(report.Sections)),
		Missing:   []string{},
	}
	for _, s := range report.Sections {
		out.Changes[s.Name] = s.Text
		out.Status[s.Name] = s.Status
		if s.Status == models.StatusMissing {
			out.Missing = append(out.Missing, s.Name)
		}
	}
	return out
}

// generateJSON generates report.json
func (g *Generator) generateJSON(report *models.ChangeReport, outputFile string) error {
	data, err := json.MarshalIndent(NewJSONReport(report), "", "    ")
	if err != nil {
		return err
	}

	// Write to file
	return os.WriteFile(outputFile, data, 0644)
}
