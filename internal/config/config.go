package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.toml
var sampleConfig string

// Fetch configures candidate collection and downloading.
type Fetch struct {
	Pages          []string `toml:"pages" yaml:"pages"`
	StagingDir     string   `toml:"staging_dir" yaml:"staging_dir"`
	ManifestPath   string   `toml:"manifest_path" yaml:"manifest_path"`
	Workers        int      `toml:"workers" yaml:"workers"`
	TimeoutSeconds int      `toml:"timeout_seconds" yaml:"timeout_seconds"`
	MaxCount       int      `toml:"max_count" yaml:"max_count"`
	MaxMB          int      `toml:"max_mb" yaml:"max_mb"`
	Retries        int      `toml:"retries" yaml:"retries"`
	BackoffMS      int      `toml:"backoff_ms" yaml:"backoff_ms"`
	UserAgent      string   `toml:"user_agent" yaml:"user_agent"`
	Selectors      []string `toml:"selectors" yaml:"selectors"`
	SkipDecorative bool     `toml:"skip_decorative" yaml:"skip_decorative"`
}

// Merge configures archive indexing, matching, and merging.
type Merge struct {
	DestDir      string   `toml:"dest_dir" yaml:"dest_dir"`
	ArchiveRoots []string `toml:"archive_roots" yaml:"archive_roots"`
	ExcludeDirs  []string `toml:"exclude_dirs" yaml:"exclude_dirs"`
	Threshold    int      `toml:"threshold" yaml:"threshold"`
	Method       string   `toml:"method" yaml:"method"`
	Workers      int      `toml:"workers" yaml:"workers"`
	ReportPath   string   `toml:"report_path" yaml:"report_path"`
	HashCache    string   `toml:"hash_cache" yaml:"hash_cache"`
}

// Catalog configures the optional article.json update.
type Catalog struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	Path        string `toml:"path" yaml:"path"`
	Key         string `toml:"key" yaml:"key"`
	TitlePrefix string `toml:"title_prefix" yaml:"title_prefix"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Config encapsulates every setting the CLI needs.
type Config struct {
	Fetch   Fetch   `toml:"fetch" yaml:"fetch"`
	Merge   Merge   `toml:"merge" yaml:"merge"`
	Catalog Catalog `toml:"catalog" yaml:"catalog"`
	Logging Logging `toml:"logging" yaml:"logging"`
}

// DefaultConfigPath returns the user-level configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/imagemerge/config.toml")
}

// Load locates, parses, and validates a configuration file. An empty path
// searches imagemerge.toml, imagemerge.yaml, then the user config path; none
// existing is not an error. It returns the resolved path and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config file %s not found", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	for _, name := range []string{"imagemerge.toml", "imagemerge.yaml", "imagemerge.yml"} {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(name)
			if err != nil {
				return "", false, err
			}
			return abs, true, nil
		}
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	home, _ := os.UserHomeDir()
	home = filepath.Clean(home)

	for dir := filepath.Clean(cwd); ; {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		parent := filepath.Dir(dir)
		if dir == home || parent == dir {
			return ""
		}
		dir = parent
	}
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// TOML renders cfg in the config file format.
func (c *Config) TOML() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	return filepath.Clean(pathValue), nil
}

// ExpandPath exposes the path expansion rules for other packages. Relative
// paths stay relative to the working directory.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
