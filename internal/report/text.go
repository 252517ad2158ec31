package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/pooow/syschange/pkg/models"
)

// generateText generates full_report.txt
func (g *Generator) generateText(report *models.ChangeReport, outputFile string) error {
	return os.WriteFile(outputFile, []byte(RenderText(report)), 0644)
}

// RenderText renders the plain text report: a header followed by one
// "=== <SECTION> CHANGES ===" block per section
func RenderText(report *models.ChangeReport) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("=== System Snapshot Report v%s ===\n", report.Version))
	sb.WriteString(fmt.Sprintf("Session: %s\n", report.Session))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", report.Generated.Format("2006-01-02 15:04:05")))

	for _, s := range report.Sections {
		sb.WriteString(fmt.Sprintf("=== %s CHANGES ===\n", strings.ToUpper(s.Name)))
		text := s.Display()
		sb.WriteString(strings.TrimRight(text, "\n"))
		sb.WriteString("\n\n")
	}

	return sb.String()
}
