package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IMAGEMERGE_"

// applyEnv overrides file values with IMAGEMERGE_* variables. List values
// use the OS path list separator.
func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok {
			*dst = splitList(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %q is not an integer", EnvPrefix, name, v)
		}
		*dst = n
		return nil
	}

	list("PAGES", &c.Fetch.Pages)
	str("STAGING_DIR", &c.Fetch.StagingDir)
	str("MANIFEST", &c.Fetch.ManifestPath)
	str("USER_AGENT", &c.Fetch.UserAgent)
	str("DEST_DIR", &c.Merge.DestDir)
	list("ARCHIVE_ROOTS", &c.Merge.ArchiveRoots)
	list("EXCLUDE_DIRS", &c.Merge.ExcludeDirs)
	str("METHOD", &c.Merge.Method)
	str("REPORT", &c.Merge.ReportPath)
	str("HASH_CACHE", &c.Merge.HashCache)
	str("CATALOG", &c.Catalog.Path)
	str("CATALOG_KEY", &c.Catalog.Key)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	for name, dst := range map[string]*int{
		"WORKERS":       &c.Fetch.Workers,
		"TIMEOUT":       &c.Fetch.TimeoutSeconds,
		"MAX_COUNT":     &c.Fetch.MaxCount,
		"RETRIES":       &c.Fetch.Retries,
		"MERGE_WORKERS": &c.Merge.Workers,
		"THRESHOLD":     &c.Merge.Threshold,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, string(filepath.ListSeparator)) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
