// Package collector captures system state (packages, processes, services,
// ports, accounts, cron, logs) as one text file per section.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pooow/syschange/internal/filesystem"
	"github.com/pooow/syschange/pkg/models"
	"go.uber.org/zap"
)

// Fallback contents written when a source has nothing to report
const (
	NoCrontab      = "No crontab"
	NoSystemLog    = "System log not found"
	DefaultTimeout = 60 * time.Second
)

// DefaultLogFiles are tried in order for the logs section
var DefaultLogFiles = []string{"/var/log/syslog", "/var/log/messages"}

// Runner executes external commands
type Runner interface {
	// LookPath reports whether a command is installed
	LookPath(name string) (string, error)
	// Run returns the command's stdout. A non-zero exit is returned as an
	// *exec.ExitError together with whatever was written to stdout.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner implements Runner with os/exec
type ExecRunner struct{}

// LookPath searches PATH for name
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes name with args and captures stdout
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

// Command is one external invocation
type Command struct {
	Name string
	Args []string
}

// String renders the command line. Arguments are kept verbatim, including
// trailing newlines in format strings.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// probe describes how one section is collected. The first installed
// candidate is used.
type probe struct {
	section    string
	candidates []Command
	// onFailure replaces the output when the command exits non-zero
	onFailure string
	sortLines bool
}

var probes = []probe{
	{section: models.SectionPackages, sortLines: true, candidates: []Command{
		{"rpm", []string{"-qa", "--queryformat", "%{NAME}\n"}},
		{"dpkg-query", []string{"-W", "-f=${binary:Package}\n"}},
	}},
	{section: models.SectionProcesses, candidates: []Command{{"ps", []string{"aux"}}}},
	{section: models.SectionServices, candidates: []Command{{"systemctl", []string{"list-units", "--all"}}}},
	{section: models.SectionPorts, candidates: []Command{{"ss", []string{"-tulpn"}}}},
	{section: models.SectionPasswd, candidates: []Command{{"getent", []string{"passwd"}}}},
	{section: models.SectionGroup, candidates: []Command{{"getent", []string{"group"}}}},
	{section: models.SectionCron, onFailure: NoCrontab, candidates: []Command{{"crontab", []string{"-l"}}}},
}

// Sections lists the sections produced by Collect
func Sections() []string {
	out := make([]string, 0, len(probes)+1)
	for _, p := range probes {
		out = append(out, p.section)
	}
	return append(out, models.SectionLogs)
}

// Result describes the outcome for one section
type Result struct {
	Section string
	Path    string // written file, empty when the section is absent
	Source  string // command or file the content came from
	Err     error
}

// Collector writes <section>_<suffix>.txt files into a session directory
type Collector struct {
	runner   Runner
	timeout  time.Duration
	logFiles []string
	logger   *zap.Logger
}

// New creates a collector. A zero timeout uses DefaultTimeout.
func New(runner Runner, timeout time.Duration, logger *zap.Logger) *Collector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Collector{
		runner:   runner,
		timeout:  timeout,
		logFiles: DefaultLogFiles,
		logger:   logger,
	}
}

// SetLogFiles overrides the candidate system log files
func (c *Collector) SetLogFiles(files []string) {
	c.logFiles = files
}

// Collect captures every requested section. Unavailable tools leave their
// section absent and are reported in the results; only context cancellation
// aborts the collection.
func (c *Collector) Collect(ctx context.Context, dir, suffix string, sections []string) ([]*Result, error) {
	wanted := make(map[string]bool, len(sections))
	for _, s := range sections {
		wanted[s] = true
	}

	var results []*Result
	for _, p := range probes {
		if !wanted[p.section] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, c.runProbe(ctx, dir, suffix, p))
	}

	if wanted[models.SectionLogs] {
		results = append(results, c.copyLog(dir, suffix))
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			c.logger.Warn("Section not collected",
				zap.String("section", r.Section),
				zap.Error(r.Err))
		}
	}
	c.logger.Info("System state collected",
		zap.String("suffix", suffix),
		zap.Int("sections", len(results)-failed),
		zap.Int("failed", failed))

	return results, nil
}

func (c *Collector) runProbe(ctx context.Context, dir, suffix string, p probe) *Result {
	res := &Result{Section: p.section}

	cmd, ok := c.pick(p.candidates)
	if !ok {
		names := make([]string, len(p.candidates))
		for i, cand := range p.candidates {
			names[i] = cand.Name
		}
		res.Err = fmt.Errorf("%w: %s not found", models.ErrExternalTool, strings.Join(names, " or "))
		return res
	}
	res.Source = cmd.String()

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("Running command", zap.String("section", p.section), zap.String("command", res.Source))
	out, err := c.runner.Run(runCtx, cmd.Name, cmd.Args...)
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr) && p.onFailure != "":
			out = []byte(p.onFailure)
		case errors.As(err, &exitErr):
			// Non-zero exits still produce usable output
			c.logger.Debug("Command exited with error",
				zap.String("command", res.Source),
				zap.Int("exit_code", exitErr.ExitCode()))
		default:
			res.Err = fmt.Errorf("%w: %s: %v", models.ErrExternalTool, res.Source, err)
			return res
		}
	}

	if p.sortLines {
		out = sortedLines(out)
	}

	res.Path = filepath.Join(dir, sectionFile(p.section, suffix))
	if err := os.WriteFile(res.Path, out, 0o644); err != nil {
		res.Err = fmt.Errorf("failed to write %s: %w", res.Path, err)
		res.Path = ""
	}
	return res
}

func (c *Collector) pick(candidates []Command) (Command, bool) {
	for _, cand := range candidates {
		if _, err := c.runner.LookPath(cand.Name); err == nil {
			return cand, true
		}
	}
	return Command{}, false
}

// copyLog copies the first existing system log, or writes a marker
func (c *Collector) copyLog(dir, suffix string) *Result {
	res := &Result{Section: models.SectionLogs, Path: filepath.Join(dir, sectionFile(models.SectionLogs, suffix))}

	for _, src := range c.logFiles {
		if _, err := os.Stat(src); err != nil {
			continue
		}
		res.Source = src
		if err := filesystem.CopyFile(src, res.Path); err != nil {
			res.Err = fmt.Errorf("failed to copy %s: %w", src, err)
			res.Path = ""
		}
		return res
	}

	res.Source = "none"
	if err := os.WriteFile(res.Path, []byte(NoSystemLog), 0o644); err != nil {
		res.Err = fmt.Errorf("failed to write %s: %w", res.Path, err)
		res.Path = ""
	}
	return res
}

func sectionFile(section, suffix string) string {
	return section + "_" + suffix + ".txt"
}

// sortedLines orders command output so unordered listings diff cleanly
func sortedLines(out []byte) []byte {
	s := strings.TrimRight(string(out), "\n")
	if s == "" {
		return out
	}
	lines := strings.Split(s, "\n")
	sort.Strings(lines)
	return []byte(strings.Join(lines, "\n") + "\n")
}
