package config

import (
	"errors"
	"fmt"

	"github.com/anatolykoptev/go-imagemerge"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateFetch() error {
	switch {
	case c.Fetch.StagingDir == "":
		return errors.New("fetch.staging_dir must be set")
	case c.Fetch.ManifestPath == "":
		return errors.New("fetch.manifest_path must be set")
	case c.Fetch.Workers <= 0:
		return errors.New("fetch.workers must be positive")
	case c.Fetch.TimeoutSeconds <= 0:
		return errors.New("fetch.timeout_seconds must be positive")
	case c.Fetch.MaxCount < 0:
		return errors.New("fetch.max_count must be zero (unlimited) or positive")
	case c.Fetch.MaxMB <= 0:
		return errors.New("fetch.max_mb must be positive")
	case c.Fetch.Retries < 0:
		return errors.New("fetch.retries must not be negative")
	case c.Fetch.BackoffMS < 0:
		return errors.New("fetch.backoff_ms must not be negative")
	}
	return nil
}

func (c *Config) validateMerge() error {
	if c.Merge.DestDir == "" {
		return errors.New("merge.dest_dir must be set")
	}
	if c.Merge.Threshold < 0 || c.Merge.Threshold > imagemerge.MaxDistance {
		return fmt.Errorf("merge.threshold must be between 0 and %d", imagemerge.MaxDistance)
	}
	if c.Merge.Workers <= 0 {
		return errors.New("merge.workers must be positive")
	}
	if _, err := imagemerge.ParseMethod(c.Merge.Method); err != nil {
		return fmt.Errorf("merge.method: %w", err)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if !c.Catalog.Enabled {
		return nil
	}
	if c.Catalog.Path == "" || c.Catalog.Key == "" {
		return errors.New("catalog.path and catalog.key must be set when the catalog is enabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
