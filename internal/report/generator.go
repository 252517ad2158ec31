package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pooow/syschange/internal/config"
	"github.com/pooow/syschange/pkg/models"
	"go.uber.org/zap"
)

// Report file names inside a session directory
const (
	TextFile     = "full_report.txt"
	JSONFile     = "report.json"
	MarkdownFile = "report.md"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorOrange = "\033[38;5;208m"
	colorGray   = "\033[38;5;245m"
)

// FormatDuration formats duration to a human-readable string with max 2 decimal places
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		// Milliseconds
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	} else if d < time.Minute {
		// Seconds
		return fmt.Sprintf("%.2fs", d.Seconds())
	} else if d < time.Hour {
		// Minutes and seconds
		mins := int(d.Minutes())
		secs := d.Seconds() - float64(mins*60)
		return fmt.Sprintf("%dm%.2fs", mins, secs)
	}
	// Hours, minutes and seconds
	hours := int(d.Hours())
	mins := int(d.Minutes()) - hours*60
	secs := d.Seconds() - float64(hours*3600) - float64(mins*60)
	return fmt.Sprintf("%dh%dm%.2fs", hours, mins, secs)
}

// FormatSize formats a byte count with a binary unit
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Generator writes change reports in the configured formats
type Generator struct {
	formats []string
	color   bool
	logger  *zap.Logger
}

// NewGenerator creates a new report generator
func NewGenerator(cfg *config.Config, logger *zap.Logger) (*Generator, error) {
	formats := cfg.Report.Formats
	if len(formats) == 0 {
		formats = []string{"text", "json"}
	}
	for _, f := range formats {
		if _, err := fileFor(f); err != nil {
			return nil, err
		}
	}
	return &Generator{
		formats: formats,
		color:   cfg.Logging.UseColors,
		logger:  logger,
	}, nil
}

func fileFor(format string) (string, error) {
	switch format {
	case "txt", "text":
		return TextFile, nil
	case "json":
		return JSONFile, nil
	case "md", "markdown":
		return MarkdownFile, nil
	default:
		return "", fmt.Errorf("%w: unknown report format: %s", models.ErrConfiguration, format)
	}
}

// Generate writes every configured report into dir and returns their paths
func (g *Generator) Generate(dir string, report *models.ChangeReport) ([]string, error) {
	var paths []string
	for _, format := range g.formats {
		name, err := fileFor(format)
		if err != nil {
			return paths, err
		}
		outputFile := filepath.Join(dir, name)

		g.logger.Info("Generating report",
			zap.String("format", format),
			zap.String("output", outputFile))

		switch name {
		case TextFile:
			err = g.generateText(report, outputFile)
		case JSONFile:
			err = g.generateJSON(report, outputFile)
		case MarkdownFile:
			err = g.generateMarkdown(report, outputFile)
		}
		if err != nil {
			return paths, fmt.Errorf("failed to generate %s report: %w", format, err)
		}
		paths = append(paths, outputFile)
	}
	return paths, nil
}

func (g *Generator) paint(s, color string) string {
	if !g.color {
		return s
	}
	return color + s + colorReset
}

// PrintScanSummary prints scan statistics to w
func (g *Generator) PrintScanSummary(w io.Writer, snap *models.Snapshot) {
	st := snap.Stats

	fmt.Fprintln(w)
	fmt.Fprintln(w, g.paint(fmt.Sprintf("SNAPSHOT %s COMPLETE", strings.ToUpper(snap.Suffix)), colorBold+colorOrange))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s     %s\n", g.paint("Roots:", colorGray), strings.Join(snap.Roots, ", "))
	fmt.Fprintf(w, "  %s   %d dirs, %d files, %d other\n", g.paint("Entries:", colorGray), st.TotalDirs, st.TotalFiles, st.OtherFiles)
	fmt.Fprintf(w, "  %s      %s\n", g.paint("Size:", colorGray), FormatSize(st.TotalSize))
	fmt.Fprintf(w, "  %s      %d (%d inline, %d pooled, %d workers)\n", g.paint("Text:", colorGray),
		st.TextFiles, st.HashedInline, st.HashedPooled, st.WorkersUsed)
	fmt.Fprintf(w, "  %s  %s\n", g.paint("Duration:", colorGray), FormatDuration(st.Duration))

	if st.AccessErrors > 0 || st.HashErrors > 0 {
		fmt.Fprintf(w, "  %s\n", g.paint(fmt.Sprintf("⚠ %d access errors, %d hash errors", st.AccessErrors, st.HashErrors), colorYellow))
	}
	if len(st.SkippedRoots) > 0 {
		fmt.Fprintf(w, "  %s\n", g.paint("⚠ skipped roots: "+strings.Join(st.SkippedRoots, ", "), colorYellow))
	}
	fmt.Fprintln(w)
}

// PrintSummary prints the per-section status of a change report to w
func (g *Generator) PrintSummary(w io.Writer, report *models.ChangeReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, g.paint("CHANGE REPORT", colorBold+colorOrange))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s  %s\n", g.paint("Session:", colorGray), report.Session)
	fmt.Fprintln(w)

	for _, s := range report.Sections {
		var mark string
		switch s.Status {
		case models.StatusChanged:
			mark = g.paint("changed", colorBold+colorRed)
		case models.StatusUnchanged:
			mark = g.paint("unchanged", colorGreen)
		default:
			mark = g.paint("not collected", colorGray)
		}
		fmt.Fprintf(w, "  %-10s %s\n", s.Name, mark)
	}
	fmt.Fprintln(w)

	if n := report.Changed(); n == 0 {
		fmt.Fprintf(w, "  %s\n", g.paint("✓ No changes detected", colorBold+colorGreen))
	} else {
		fmt.Fprintf(w, "  %s\n", g.paint(fmt.Sprintf("⚠ SECTIONS CHANGED: %d", n), colorBold+colorRed))
	}
	fmt.Fprintln(w)
}
