package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.Merge.Method = strings.ToLower(strings.TrimSpace(c.Merge.Method))
	if c.Merge.Method == "" {
		c.Merge.Method = defaultMethod
	}
	if len(c.Merge.ArchiveRoots) == 0 {
		c.Merge.ArchiveRoots = []string{defaultArchiveRoot}
	}
	if len(c.Merge.ExcludeDirs) == 0 && c.Fetch.StagingDir != "" {
		c.Merge.ExcludeDirs = []string{c.Fetch.StagingDir}
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	single := []struct {
		name string
		ptr  *string
	}{
		{"fetch.staging_dir", &c.Fetch.StagingDir},
		{"fetch.manifest_path", &c.Fetch.ManifestPath},
		{"merge.dest_dir", &c.Merge.DestDir},
		{"merge.report_path", &c.Merge.ReportPath},
		{"merge.hash_cache", &c.Merge.HashCache},
		{"catalog.path", &c.Catalog.Path},
	}
	for _, p := range single {
		v, err := expandPath(strings.TrimSpace(*p.ptr))
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		*p.ptr = v
	}

	lists := []struct {
		name string
		ptr  *[]string
	}{
		{"merge.archive_roots", &c.Merge.ArchiveRoots},
		{"merge.exclude_dirs", &c.Merge.ExcludeDirs},
	}
	for _, l := range lists {
		out := (*l.ptr)[:0]
		for _, raw := range *l.ptr {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			v, err := expandPath(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", l.name, err)
			}
			out = append(out, v)
		}
		*l.ptr = out
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
