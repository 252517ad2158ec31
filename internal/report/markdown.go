package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/pooow/syschange/pkg/models"
)

// generateMarkdown generates report.md
func (g *Generator) generateMarkdown(report *models.ChangeReport, outputFile string) error {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# System Snapshot Report v%s\n\n", report.Version))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Session | `%s` |\n", report.Session))
	sb.WriteString(fmt.Sprintf("| Generated | %s |\n", report.Generated.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("| **Sections Changed** | **%d** |\n", report.Changed()))
	sb.WriteString("\n")

	sb.WriteString("## Sections\n\n")
	sb.WriteString("| Section | Status |\n")
	sb.WriteString("|---------|--------|\n")
	for _, s := range report.Sections {
		sb.WriteString(fmt.Sprintf("| %s | %s %s |\n", s.Name, getStatusEmoji(s.Status), s.Status))
	}
	sb.WriteString("\n")

	if report.Changed() == 0 {
		sb.WriteString("> ✅ **No changes detected**\n\n")
		return os.WriteFile(outputFile, []byte(sb.String()), 0644)
	}

	// Detailed diffs
	sb.WriteString("## Changes\n\n")
	for _, s := range report.Sections {
		if s.Status != models.StatusChanged {
			continue
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", s.Name))
		sb.WriteString("```diff\n")
		sb.WriteString(strings.TrimRight(s.Text, "\n"))
		sb.WriteString("\n```\n\n")
	}

	// Footer
	sb.WriteString("---\n\n")
	sb.WriteString("*Generated by syschange*\n")

	return os.WriteFile(outputFile, []byte(sb.String()), 0644)
}

// getStatusEmoji returns emoji for a section status
func getStatusEmoji(status models.DiffStatus) string {
	switch status {
	case models.StatusChanged:
		return "🔴"
	case models.StatusUnchanged:
		return "🟢"
	default:
		return "⚪"
	}
}
