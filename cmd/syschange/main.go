package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pooow/syschange/internal/collector"
	"github.com/pooow/syschange/internal/config"
	"github.com/pooow/syschange/internal/core"
	"github.com/pooow/syschange/internal/diff"
	"github.com/pooow/syschange/internal/filesystem"
	"github.com/pooow/syschange/internal/history"
	"github.com/pooow/syschange/internal/report"
	"github.com/pooow/syschange/internal/snapshot"
	"github.com/pooow/syschange/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorRed    = "\033[31m"
	colorOrange = "\033[38;5;208m"
	colorYellow = "\033[38;5;220m"
	colorGray   = "\033[38;5;245m"
)

// logFileName is the session log written next to the snapshot files
const logFileName = "snapshot.log"

var (
	version    = models.Version
	configPath string
	verbose    bool
)

func main() {
	ctx, stop := signalContext(context.Background())

	rootCmd := &cobra.Command{
		Use:   "syschange",
		Short: "syschange - filesystem and system state change tracker",
		Long: `Capture a "before" snapshot of the filesystem and system state, capture an
"after" snapshot later, and report what changed in between.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default: XDG config dir, then ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Add commands
	rootCmd.AddCommand(beforeCmd())
	rootCmd.AddCommand(afterCmd())
	rootCmd.AddCommand(diffCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n  %s✗ Error:%s %v\n\n", colorRed, colorReset, err)
		os.Exit(exitCode(err))
	}
}

// signalContext is cancelled by the first SIGINT or SIGTERM. Default signal
// handling is restored at that point, so a second signal terminates at once.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	context.AfterFunc(ctx, stop)
	return ctx, stop
}

// exitCode maps error kinds to process exit codes
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, models.ErrConfiguration):
		return 2
	case errors.Is(err, models.ErrCorruptSnapshot):
		return 3
	default:
		return 1
	}
}

// beforeCmd creates the before command
func beforeCmd() *cobra.Command {
	var exclude []string

	cmd := &cobra.Command{
		Use:   "before <session>",
		Short: "Capture the baseline snapshot of a session",
		Long: `Collect system state, scan the configured directories and archive text files.
Running before again replaces the baseline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(args[0])
			if err != nil {
				return err
			}
			defer a.close()

			snap, _, err := a.capture(cmd.Context(), models.SuffixBefore, exclude)
			if err != nil {
				return err
			}

			if err := a.session.MarkBaseline(snap.Roots, snap.StartTime); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}

			fmt.Printf("  %sSession:%s   %s\n", colorGray, colorReset, a.dir)
			fmt.Printf("  %sNext:%s      syschange after %s\n\n", colorGray, colorReset, args[0])
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Additional paths or glob patterns to exclude (repeatable)")

	return cmd
}

// afterCmd creates the after command
func afterCmd() *cobra.Command {
	var exclude []string

	cmd := &cobra.Command{
		Use:   "after <session> [sections]",
		Short: "Capture the second snapshot and report changes",
		Long: `Collect system state, scan again and compare against the baseline.
sections is a comma-separated list of section names or "all".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(args[0])
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.session.RequireBaseline(a.store); err != nil {
				return err
			}

			sections, err := a.sections(args[1:])
			if err != nil {
				return err
			}

			_, hist, err := a.capture(cmd.Context(), models.SuffixAfter, exclude)
			if err != nil {
				return err
			}

			if err := a.compare(cmd.Context(), hist, sections); err != nil {
				return err
			}

			if err := a.session.MarkCompared(time.Now()); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Additional paths or glob patterns to exclude (repeatable)")

	return cmd
}

// diffCmd creates the diff command
func diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <session> [sections]",
		Short: "Regenerate reports from the files of a compared session",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(args[0])
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.session.RequireBaseline(a.store); err != nil {
				return err
			}
			if !a.store.Exists(models.SuffixAfter) {
				return fmt.Errorf("%w: %s missing in %s, run 'after %s' first",
					models.ErrCorruptSnapshot, snapshot.MetadataFile(models.SuffixAfter), a.dir, args[0])
			}

			sections, err := a.sections(args[1:])
			if err != nil {
				return err
			}

			var hist *history.Store
			if a.cfg.Git.Enabled {
				hist, err = a.openHistory(cmd.Context())
				if err != nil {
					return err
				}
			}

			return a.compare(cmd.Context(), hist, sections)
		},
	}
}

// classifyCmd creates the classify command
func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <path>...",
		Short: "Show how files would be classified (text or binary)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier, err := loadClassifier()
			if err != nil {
				return err
			}

			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					fmt.Printf("%s  %s✗ %v%s\n", path, colorRed, err, colorReset)
					continue
				}
				if !info.Mode().IsRegular() {
					fmt.Printf("%s  %snot a regular file%s\n", path, colorGray, colorReset)
					continue
				}

				verdict := classifier.ClassifyFile(path, info.Size())
				kind := "binary"
				if verdict.IsText {
					kind = "text"
				}

				mime := "-"
				if sample, err := filesystem.ReadSample(path, classifier.SampleSize()); err == nil {
					mime = filesystem.Sniff(sample)
				}

				fmt.Printf("%s  %s%-6s%s %s%-22s%s %s\n",
					path, colorBold, kind, colorReset, colorGray, verdict.Reason, colorReset, mime)
			}
			return nil
		},
	}
}

// versionCmd creates the version command
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("syschange v%s\n", version)
		},
	}
}

// loadClassifier builds a classifier from the configuration, falling back to
// the built-in defaults when no config file exists
func loadClassifier() (*filesystem.Classifier, error) {
	if configPath == "" {
		if _, err := config.FindConfigFile(); err != nil {
			maxSize, _ := config.ParseSize("1M")
			return filesystem.NewClassifier(config.DefaultBinaryExtensions, config.DefaultTextExtensions,
				maxSize, filesystem.DefaultSampleSize), nil
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return filesystem.NewClassifier(cfg.BinaryExtensions, cfg.TextExtensions, cfg.MaxTextSize(), cfg.Scan.SampleSize), nil
}

// app holds everything one session command needs
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	closeFn func()
	dir     string
	session *snapshot.Session
	store   *snapshot.Store
	reports *report.Generator
}

func newApp(name string) (*app, error) {
	if err := validateSessionName(name); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	dir := cfg.SessionDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	logger, closeFn, err := newLogger(cfg, filepath.Join(dir, logFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, closeFn: closeFn, dir: dir}

	a.session, err = snapshot.OpenSession(dir, name)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = snapshot.NewStore(dir, logger)

	a.reports, err = report.NewGenerator(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	logger.Info("Session opened",
		zap.String("session", name),
		zap.String("dir", dir),
		zap.String("state", string(a.session.State)))

	return a, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
	a.closeFn()
}

// sections resolves the optional comma-separated section argument
func (a *app) sections(args []string) ([]string, error) {
	names := a.cfg.Report.Sections
	if len(args) > 0 {
		names = strings.Split(args[0], ",")
	}
	return config.SelectSections(names)
}

// capture collects system state, scans, saves the snapshot and archives text
// files. The returned history store is nil when history is disabled or failed.
func (a *app) capture(ctx context.Context, suffix string, exclude []string) (*models.Snapshot, *history.Store, error) {
	printBanner(a.session.Name, suffix)

	if a.cfg.Collect.Enabled {
		c := collector.New(collector.ExecRunner{}, a.cfg.Collect.Timeout, a.logger)
		results, err := c.Collect(ctx, a.dir, suffix, collector.Sections())
		if err != nil {
			return nil, nil, err
		}
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("  %s⚠ %s not collected:%s %v\n", colorYellow, r.Section, colorReset, r.Err)
			}
		}
	}

	scanner, err := core.NewScanner(a.cfg, a.logger, exclude...)
	if err != nil {
		return nil, nil, err
	}
	scanner.SetProgressCallback(func(phase string, current, total int, message string) {
		switch phase {
		case "scanning":
			if total == 0 {
				fmt.Printf("\r\033[K  %sScanned:%s   %d entries", colorGray, colorReset, current)
			}
		case "hashing":
			fmt.Printf("\r\033[K  %sHashing...%s", colorGray, colorReset)
		}
	})

	snap, err := scanner.Scan(ctx, suffix)
	fmt.Print("\r\033[K")
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if _, err := a.store.Save(snap); err != nil {
		return nil, nil, err
	}

	var hist *history.Store
	if a.cfg.Git.Enabled {
		hist, err = a.openHistory(ctx)
		if err != nil {
			return nil, nil, err
		}
		if hist != nil {
			if _, err := hist.Archive(ctx, snap.TextRecords(), suffix); err != nil {
				if err := a.historyFailed(err); err != nil {
					return nil, nil, err
				}
				hist = nil
			}
		}
	}

	a.reports.PrintScanSummary(os.Stdout, snap)
	return snap, hist, nil
}

// openHistory opens the session history store. A failure is returned only
// when history is mandatory; otherwise the store is nil.
func (a *app) openHistory(ctx context.Context) (*history.Store, error) {
	sig := history.Signature{Name: a.cfg.Git.UserName, Email: a.cfg.Git.UserEmail}
	hist, err := history.Open(ctx, filepath.Join(a.dir, history.DirName), sig, a.logger)
	if err != nil {
		return nil, a.historyFailed(err)
	}
	return hist, nil
}

func (a *app) historyFailed(err error) error {
	if a.cfg.Git.Mandatory || errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Warn("History unavailable, content diff will not be collected", zap.Error(err))
	fmt.Printf("  %s⚠ History unavailable:%s %v\n", colorYellow, colorReset, err)
	return nil
}

// compare diffs the sections, writes the reports and prints the summary
func (a *app) compare(ctx context.Context, hist *history.Store, sections []string) error {
	var src diff.HistorySource
	if hist != nil {
		src = hist
	}

	engine := diff.NewEngine(a.dir, src, a.logger)
	rep, err := engine.Report(ctx, a.session.Name, sections)
	if err != nil {
		return err
	}

	paths, err := a.reports.Generate(a.dir, rep)
	if err != nil {
		return err
	}

	a.reports.PrintSummary(os.Stdout, rep)
	for _, p := range paths {
		fmt.Printf("  %sReport:%s    %s%s%s\n", colorGray, colorReset, colorOrange, p, colorReset)
	}
	fmt.Println()
	return nil
}

// validateSessionName rejects names that would escape the snapshot base directory
func validateSessionName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid session name %q", models.ErrConfiguration, name)
	}
	return nil
}

// newLogger builds a logger writing the configured level to logFile and
// warnings to stderr. With --verbose both outputs log at debug level.
func newLogger(cfg *config.Config, logFile string) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	consoleLevel := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
		consoleLevel = zapcore.DebugLevel
	}

	sink, closeFn, err := zap.Open(logFile)
	if err != nil {
		return nil, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var fileEnc zapcore.Encoder
	if cfg.Logging.Format == "json" {
		fileEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		fileEnc = zapcore.NewConsoleEncoder(encCfg)
	}

	tee := zapcore.NewTee(
		zapcore.NewCore(fileEnc, sink, level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.Lock(os.Stderr), consoleLevel),
	)
	return zap.New(tee), closeFn, nil
}

// printBanner prints the run header
func printBanner(session, suffix string) {
	fmt.Println()
	fmt.Printf("%s%sSYSCHANGE%s %sv%s%s\n", colorBold, colorOrange, colorReset, colorGray, version, colorReset)
	fmt.Println()
	fmt.Printf("  %sSession:%s   %s\n", colorGray, colorReset, session)
	fmt.Printf("  %sSnapshot:%s  %s\n", colorGray, colorReset, suffix)
	fmt.Println()
}
