package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/pooow/syschange/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
scan:
  snapshot_base_dir: /var/lib/syschange
  max_workers: 4
  dirs_to_scan:
    - /etc
    - /usr/local
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Scan.SnapshotBaseDir != "/var/lib/syschange" {
		t.Errorf("SnapshotBaseDir = %q", cfg.Scan.SnapshotBaseDir)
	}
	if !reflect.DeepEqual(cfg.Scan.DirsToScan, []string{"/etc", "/usr/local"}) {
		t.Errorf("DirsToScan = %v", cfg.Scan.DirsToScan)
	}
	if cfg.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", cfg.Workers())
	}

	// Defaults
	if cfg.MaxTextSize() != 1024*1024 {
		t.Errorf("MaxTextSize() = %d", cfg.MaxTextSize())
	}
	if cfg.Scan.SampleSize != 512 {
		t.Errorf("SampleSize = %d", cfg.Scan.SampleSize)
	}
	if !cfg.Scan.CollectHashes || !cfg.Git.Enabled || !cfg.Collect.Enabled {
		t.Error("Expected hashes, git and collection enabled by default")
	}
	if cfg.Collect.Timeout != 60*time.Second {
		t.Errorf("Collect.Timeout = %v", cfg.Collect.Timeout)
	}
	if !reflect.DeepEqual(cfg.Excludes, DefaultExcludes) {
		t.Errorf("Excludes = %v", cfg.Excludes)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
excludes:
  - /srv/cache
git:
  enabled: false
report:
  formats: [md]
  sections: [packages, fs]
`))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if !reflect.DeepEqual(cfg.Excludes, []string{"/srv/cache"}) {
		t.Errorf("Excludes = %v", cfg.Excludes)
	}
	if cfg.Git.Enabled {
		t.Error("git.enabled should be false")
	}
	if !reflect.DeepEqual(cfg.Report.Formats, []string{"md"}) {
		t.Errorf("Formats = %v", cfg.Report.Formats)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SYSCHANGE_SCAN_MAX_WORKERS", "9")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Scan.MaxWorkers != 9 {
		t.Errorf("MaxWorkers = %d, want 9", cfg.Scan.MaxWorkers)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Missing base dir", "scan:\n  max_workers: 1\n  dirs_to_scan: [/etc]\n"},
		{"Missing workers", "scan:\n  snapshot_base_dir: /snap\n  dirs_to_scan: [/etc]\n"},
		{"Missing dirs", "scan:\n  snapshot_base_dir: /snap\n  max_workers: 1\n"},
		{"Relative base dir", "scan:\n  snapshot_base_dir: snap\n  max_workers: 1\n  dirs_to_scan: [/etc]\n"},
		{"Negative workers", "scan:\n  snapshot_base_dir: /snap\n  max_workers: -1\n  dirs_to_scan: [/etc]\n"},
		{"Bad size", minimalConfig + "  max_text_file_size: lots\n"},
		{"Size with trailing unit", minimalConfig + "  min_parallel_size: 1MB\n"},
		{"Unknown section", minimalConfig + "report:\n  sections: [kernel]\n"},
		{"Unknown format", minimalConfig + "report:\n  formats: [pdf]\n"},
		{"Unknown level", minimalConfig + "logging:\n  level: loud\n"},
		{"Git without author", minimalConfig + "git:\n  user_name: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("LoadConfig() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("LoadConfig() error = %v, want ErrConfiguration", err)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"512", 512, false},
		{"650K", 650 * 1024, false},
		{"1m", 1024 * 1024, false},
		{"2G", 2 * 1024 * 1024 * 1024, false},
		{" 10K ", 10 * 1024, false},
		{"", 0, true},
		{"K", 0, true},
		{"abc", 0, true},
		{"-5", 0, true},
		{"1MB", 0, true},
		{"1.5M", 0, true},
		{"10KiB", 0, true},
		{"12abc", 0, true},
		{"9999999999G", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("ParseSize(%q) error = %v, want ErrConfiguration", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestSelectSections(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []string
		wantErr bool
	}{
		{"Empty means all", nil, models.AllSections, false},
		{"All keyword", []string{"cron", "all"}, models.AllSections, false},
		{"Report order", []string{"fs_diff", "packages"}, []string{"packages", "fs_diff"}, false},
		{"Duplicates", []string{"cron", " cron "}, []string{"cron"}, false},
		{"Unknown", []string{"packages", "kernel"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectSections(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SelectSections() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, models.ErrConfiguration) {
					t.Errorf("error = %v, want ErrConfiguration", err)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SelectSections() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExclusionPatterns(t *testing.T) {
	cfg := &Config{
		Scan:     ScanConfig{SnapshotBaseDir: "/var/lib/syschange"},
		Excludes: []string{"/proc", "*.swp"},
	}

	got := cfg.ExclusionPatterns("/srv")
	want := []string{"/proc", "*.swp", "/srv", "/var/lib/syschange"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExclusionPatterns() = %v, want %v", got, want)
	}
	if len(cfg.Excludes) != 2 {
		t.Error("ExclusionPatterns() modified the configured excludes")
	}
}

func TestWorkers_Default(t *testing.T) {
	cfg := &Config{}
	want := min(32, runtime.NumCPU()+4)
	if got := cfg.Workers(); got != want {
		t.Errorf("Workers() = %d, want %d", got, want)
	}
}

func TestSessionDir(t *testing.T) {
	cfg := &Config{Scan: ScanConfig{SnapshotBaseDir: "/snap"}}
	if got := cfg.SessionDir("upgrade"); got != "/snap/upgrade" {
		t.Errorf("SessionDir() = %q", got)
	}
}
