package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pooow/syschange/pkg/models"
	"github.com/spf13/viper"
)

// Config represents the snapshot tool configuration
type Config struct {
	Logging          LoggingConfig `mapstructure:"logging"`
	Scan             ScanConfig    `mapstructure:"scan"`
	Excludes         []string      `mapstructure:"excludes"`          // literal prefixes or glob patterns
	BinaryExtensions []string      `mapstructure:"binary_extensions"` // e.g. ".png"
	TextExtensions   []string      `mapstructure:"text_extensions"`   // filename suffixes, e.g. ".conf"
	Git              GitConfig     `mapstructure:"git"`
	Collect          CollectConfig `mapstructure:"collect"`
	Report           ReportConfig  `mapstructure:"report"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level     string `mapstructure:"level"`      // debug, info, warn, error
	Format    string `mapstructure:"format"`     // console, json
	UseColors bool   `mapstructure:"use_colors"` // colored console summary
}

// ScanConfig holds traversal and hashing settings
type ScanConfig struct {
	SnapshotBaseDir string   `mapstructure:"snapshot_base_dir"`  // where sessions live
	MaxWorkers      int      `mapstructure:"max_workers"`        // hash worker pool size
	DirsToScan      []string `mapstructure:"dirs_to_scan"`       // scan roots
	MaxTextFileSize string   `mapstructure:"max_text_file_size"` // e.g. "1M"
	MinParallelSize string   `mapstructure:"min_parallel_size"`  // files above go to the pool
	SampleSize      int      `mapstructure:"sample_size"`        // bytes read for content checks
	CollectHashes   bool     `mapstructure:"collect_hashes"`     // hash text files
}

// GitConfig configures the history store
type GitConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Mandatory bool   `mapstructure:"mandatory"` // history failures abort the run
	UserName  string `mapstructure:"user_name"`
	UserEmail string `mapstructure:"user_email"`
}

// CollectConfig configures system state collection
type CollectConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"` // per command
}

// ReportConfig configures report generation
type ReportConfig struct {
	Formats  []string `mapstructure:"formats"`  // text, json, md
	Sections []string `mapstructure:"sections"` // section names or "all"
}

// requiredParams must be present in the configuration file
var requiredParams = []string{
	"scan.snapshot_base_dir",
	"scan.max_workers",
	"scan.dirs_to_scan",
}

// DefaultExcludes are applied when the configuration does not list excludes
var DefaultExcludes = []string{
	"/tmp",
	"/proc",
	"/sys",
	"/dev",
	"/run",
	"/var/lib/rpm/__db.*",
	"/home/*/.cache",
	"/var/log/journal",
	"/var/lib/samba/msg.lock/*",
	"/var/lib/samba/private/msg.sock",
}

// DefaultBinaryExtensions are never classified as text
var DefaultBinaryExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".tiff",
	".so", ".o", ".a", ".ko", ".pyc", ".pyo",
	".db", ".sqlite", ".sqlite3", ".bak", ".swp", ".swo",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".tar", ".gz", ".bz2", ".xz", ".7z", ".rar",
	".mp3", ".mp4", ".avi", ".mkv", ".wav", ".ogg",
}

// DefaultTextExtensions are always classified as text
var DefaultTextExtensions = []string{
	".txt", ".conf", ".cfg", ".ini", ".sh", ".bash", ".log",
	".py", ".json", ".yaml", ".yml", ".xml", ".md",
}

// DefaultConfigName is searched in XDG config directories
const DefaultConfigName = "syschange/config.yaml"

// LoadConfig loads configuration from a YAML file, environment variables and defaults.
// An empty path resolves the default location.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		resolved, err := FindConfigFile()
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", models.ErrConfiguration, path, err)
	}

	// Read environment variables, e.g. SYSCHANGE_SCAN_MAX_WORKERS
	v.SetEnvPrefix("SYSCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var missing []string
	for _, key := range requiredParams {
		if !v.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required parameters in %s: %s",
			models.ErrConfiguration, path, strings.Join(missing, ", "))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// FindConfigFile returns the first existing config file among the XDG
// config directories and the working directory.
func FindConfigFile() (string, error) {
	if p, err := xdg.SearchConfigFile(DefaultConfigName); err == nil {
		return p, nil
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return filepath.Abs("config.yaml")
	}
	return "", fmt.Errorf("%w: config.yaml not found in XDG config dirs or working directory; use --config",
		models.ErrConfiguration)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.use_colors", true)

	v.SetDefault("scan.max_text_file_size", "1M")
	v.SetDefault("scan.min_parallel_size", "1M")
	v.SetDefault("scan.sample_size", 512)
	v.SetDefault("scan.collect_hashes", true)

	v.SetDefault("excludes", DefaultExcludes)
	v.SetDefault("binary_extensions", DefaultBinaryExtensions)
	v.SetDefault("text_extensions", DefaultTextExtensions)

	v.SetDefault("git.enabled", true)
	v.SetDefault("git.mandatory", false)
	v.SetDefault("git.user_name", "Snapshot Script")
	v.SetDefault("git.user_email", "snapshot@local")

	v.SetDefault("collect.enabled", true)
	v.SetDefault("collect.timeout", "60s")

	v.SetDefault("report.formats", []string{"text", "json"})
	v.SetDefault("report.sections", []string{"all"})
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Scan.SnapshotBaseDir == "" {
		return fmt.Errorf("%w: scan.snapshot_base_dir is empty", models.ErrConfiguration)
	}
	if !filepath.IsAbs(c.Scan.SnapshotBaseDir) {
		return fmt.Errorf("%w: scan.snapshot_base_dir must be an absolute path: %s",
			models.ErrConfiguration, c.Scan.SnapshotBaseDir)
	}
	if len(c.Scan.DirsToScan) == 0 {
		return fmt.Errorf("%w: scan.dirs_to_scan is empty", models.ErrConfiguration)
	}
	if c.Scan.MaxWorkers < 0 {
		return fmt.Errorf("%w: scan.max_workers cannot be negative", models.ErrConfiguration)
	}
	for _, key := range []string{c.Scan.MaxTextFileSize, c.Scan.MinParallelSize} {
		if _, err := ParseSize(key); err != nil {
			return err
		}
	}
	for _, f := range c.Report.Formats {
		switch f {
		case "text", "txt", "json", "md", "markdown":
		default:
			return fmt.Errorf("%w: unknown report format %q", models.ErrConfiguration, f)
		}
	}
	if _, err := SelectSections(c.Report.Sections); err != nil {
		return err
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown logging.level %q", models.ErrConfiguration, c.Logging.Level)
	}
	if c.Git.Enabled && (c.Git.UserName == "" || c.Git.UserEmail == "") {
		return fmt.Errorf("%w: git.user_name and git.user_email are required when git is enabled",
			models.ErrConfiguration)
	}
	return nil
}

// Workers returns the hash pool size
func (c *Config) Workers() int {
	if c.Scan.MaxWorkers > 0 {
		return c.Scan.MaxWorkers
	}
	return min(32, runtime.NumCPU()+4)
}

// MaxTextSize returns scan.max_text_file_size in bytes
func (c *Config) MaxTextSize() int64 {
	n, _ := ParseSize(c.Scan.MaxTextFileSize)
	return n
}

// ParallelThreshold returns scan.min_parallel_size in bytes
func (c *Config) ParallelThreshold() int64 {
	n, _ := ParseSize(c.Scan.MinParallelSize)
	return n
}

// SessionDir returns the directory holding one session's outputs
func (c *Config) SessionDir(session string) string {
	return filepath.Join(c.Scan.SnapshotBaseDir, session)
}

// ExclusionPatterns returns the configured excludes plus extra ones, with the
// snapshot base directory always appended so outputs are never scanned.
func (c *Config) ExclusionPatterns(extra ...string) []string {
	patterns := make([]string, 0, len(c.Excludes)+len(extra)+1)
	patterns = append(patterns, c.Excludes...)
	patterns = append(patterns, extra...)
	if c.Scan.SnapshotBaseDir != "" {
		patterns = append(patterns, c.Scan.SnapshotBaseDir)
	}
	return patterns
}

// SelectSections expands a section list ("all" or names) into known section names
func SelectSections(names []string) ([]string, error) {
	if len(names) == 0 {
		return models.AllSections, nil
	}
	wanted := make(map[string]bool)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if n == "all" {
			return models.AllSections, nil
		}
		if !models.IsSection(n) {
			return nil, fmt.Errorf("%w: unknown section %q (valid: all, %s)",
				models.ErrConfiguration, n, strings.Join(models.AllSections, ", "))
		}
		wanted[n] = true
	}
	var out []string
	for _, s := range models.AllSections {
		if wanted[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// ParseSize parses size string (e.g., "650K", "1M") to bytes
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if len(sizeStr) == 0 {
		return 0, fmt.Errorf("%w: empty size", models.ErrConfiguration)
	}

	// Get last character (unit)
	num := sizeStr
	var multiplier int64 = 1

	switch sizeStr[len(sizeStr)-1] {
	case 'K', 'k':
		multiplier = 1024
		num = sizeStr[:len(sizeStr)-1]
	case 'M', 'm':
		multiplier = 1024 * 1024
		num = sizeStr[:len(sizeStr)-1]
	case 'G', 'g':
		multiplier = 1024 * 1024 * 1024
		num = sizeStr[:len(sizeStr)-1]
	}

	// The whole remainder must be a non-negative integer
	size, err := strconv.ParseInt(num, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: invalid size %q (want a whole number with optional K, M or G)",
			models.ErrConfiguration, sizeStr)
	}
	if size > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("%w: size %q overflows", models.ErrConfiguration, sizeStr)
	}

	return size * multiplier, nil
}
