package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anatolykoptev/go-imagemerge/internal/config"
)

// isolate runs the test in an empty directory with HOME pointed at it, so no
// real config or .env.local leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, config.EnvPrefix) {
			t.Setenv(name, "")
		}
	}
	return dir
}

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, path, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Errorf("exists = true for %s", path)
	}
	if cfg.Merge.Threshold != 10 || cfg.Merge.Method != "dhash" {
		t.Errorf("merge = %+v", cfg.Merge)
	}
	if len(cfg.Merge.ExcludeDirs) != 1 || cfg.Merge.ExcludeDirs[0] != cfg.Fetch.StagingDir {
		t.Errorf("ExcludeDirs = %v, want [%s]", cfg.Merge.ExcludeDirs, cfg.Fetch.StagingDir)
	}
	if cfg.Catalog.Enabled {
		t.Error("catalog enabled by default")
	}
}

func TestLoadTOML(t *testing.T) {
	dir := isolate(t)
	write(t, filepath.Join(dir, "imagemerge.toml"), `
[fetch]
pages = ["https://example.com/gallery"]
workers = 2

[merge]
dest_dir = "~/archive/new"
archive_roots = ["a", "b"]
threshold = 4
method = "PHash"

[logging]
level = "DEBUG"
format = "json"
`)

	cfg, path, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || filepath.Base(path) != "imagemerge.toml" {
		t.Errorf("path = %s exists = %v", path, exists)
	}
	if cfg.Fetch.Workers != 2 || len(cfg.Fetch.Pages) != 1 {
		t.Errorf("fetch = %+v", cfg.Fetch)
	}
	if cfg.Merge.Method != "phash" || cfg.Merge.Threshold != 4 {
		t.Errorf("merge = %+v", cfg.Merge)
	}
	if want := filepath.Join(dir, "archive", "new"); cfg.Merge.DestDir != want {
		t.Errorf("DestDir = %s, want %s", cfg.Merge.DestDir, want)
	}
	if strings.Join(cfg.Merge.ArchiveRoots, ",") != "a,b" {
		t.Errorf("ArchiveRoots = %v", cfg.Merge.ArchiveRoots)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %s", cfg.Logging.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Fetch.Retries != 3 {
		t.Errorf("Retries = %d", cfg.Fetch.Retries)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	write(t, path, `
merge:
  threshold: 0
  method: ahash
catalog:
  enabled: true
  key: extra
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Merge.Threshold != 0 || cfg.Merge.Method != "ahash" {
		t.Errorf("merge = %+v", cfg.Merge)
	}
	if !cfg.Catalog.Enabled || cfg.Catalog.Key != "extra" || cfg.Catalog.Path != "article.json" {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
}

func TestLoadExplicitMissing(t *testing.T) {
	dir := isolate(t)
	if _, _, _, err := config.Load(filepath.Join(dir, "nope.toml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := isolate(t)
	write(t, filepath.Join(dir, "imagemerge.toml"), "[merge]\nthreshold = 4\n")
	t.Setenv("IMAGEMERGE_THRESHOLD", "12")
	t.Setenv("IMAGEMERGE_ARCHIVE_ROOTS", "x"+string(filepath.ListSeparator)+" y ")
	t.Setenv("IMAGEMERGE_METHOD", "ahash")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Merge.Threshold != 12 || cfg.Merge.Method != "ahash" {
		t.Errorf("merge = %+v", cfg.Merge)
	}
	if strings.Join(cfg.Merge.ArchiveRoots, ",") != "x,y" {
		t.Errorf("ArchiveRoots = %v", cfg.Merge.ArchiveRoots)
	}
}

func TestLoadEnvLocal(t *testing.T) {
	dir := isolate(t)
	sub := filepath.Join(dir, "work")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	write(t, filepath.Join(dir, ".env.local"), "IMAGEMERGE_CATALOG_KEY=from-dotenv\n")
	t.Chdir(sub)
	// Registers a restore, then clears so godotenv may set it.
	t.Setenv("IMAGEMERGE_CATALOG_KEY", "")
	os.Unsetenv("IMAGEMERGE_CATALOG_KEY")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Catalog.Key != "from-dotenv" {
		t.Errorf("Key = %q", cfg.Catalog.Key)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
		env  map[string]string
		want string
	}{
		{name: "threshold", toml: "[merge]\nthreshold = 65\n", want: "merge.threshold"},
		{name: "negative threshold", toml: "[merge]\nthreshold = -1\n", want: "merge.threshold"},
		{name: "method", toml: "[merge]\nmethod = \"whash\"\n", want: "merge.method"},
		{name: "workers", toml: "[fetch]\nworkers = 0\n", want: "fetch.workers"},
		{name: "catalog", toml: "[catalog]\nenabled = true\nkey = \"\"\n", want: "catalog"},
		{name: "log format", toml: "[logging]\nformat = \"xml\"\n", want: "logging.format"},
		{name: "env int", env: map[string]string{"IMAGEMERGE_WORKERS": "many"}, want: "IMAGEMERGE_WORKERS"},
		{name: "syntax", toml: "[merge\n", want: "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			if tt.toml != "" {
				write(t, filepath.Join(dir, "imagemerge.toml"), tt.toml)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, _, _, err := config.Load("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSampleConfigLoads(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatal(err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil || !exists {
		t.Fatalf("Load sample: exists=%v err=%v", exists, err)
	}
	if cfg.Merge.Threshold != 10 {
		t.Errorf("Threshold = %d", cfg.Merge.Threshold)
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	dir := isolate(t)
	cfg := config.Default()
	cfg.Merge.Threshold = 7
	out, err := cfg.TOML()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "round.toml")
	write(t, path, out)
	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v\n%s", err, out)
	}
	if loaded.Merge.Threshold != 7 {
		t.Errorf("Threshold = %d", loaded.Merge.Threshold)
	}
}
