package config

import "path/filepath"

const (
	defaultStagingDir     = "images/_temp_jimdo"
	defaultManifestPath   = "Crawler/jimdo_fetched.json"
	defaultReportPath     = "Crawler/jimdo_new_report.json"
	defaultArchiveRoot    = "images"
	defaultDestDir        = "images/追加分3"
	defaultWorkers        = 8
	defaultTimeoutSeconds = 30
	defaultMaxMB          = 50
	defaultRetries        = 3
	defaultBackoffMS      = 500
	defaultThreshold      = 10
	defaultMethod         = "dhash"
	defaultCatalogPath    = "article.json"
	defaultCatalogKey     = "追加分3"
	defaultTitlePrefix    = "Jimdo"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Fetch: Fetch{
			StagingDir:     filepath.FromSlash(defaultStagingDir),
			ManifestPath:   filepath.FromSlash(defaultManifestPath),
			Workers:        defaultWorkers,
			TimeoutSeconds: defaultTimeoutSeconds,
			MaxMB:          defaultMaxMB,
			Retries:        defaultRetries,
			BackoffMS:      defaultBackoffMS,
			SkipDecorative: true,
		},
		Merge: Merge{
			DestDir:      filepath.FromSlash(defaultDestDir),
			ArchiveRoots: []string{defaultArchiveRoot},
			Threshold:    defaultThreshold,
			Method:       defaultMethod,
			Workers:      defaultWorkers,
			ReportPath:   filepath.FromSlash(defaultReportPath),
		},
		Catalog: Catalog{
			Path:        defaultCatalogPath,
			Key:         defaultCatalogKey,
			TitlePrefix: defaultTitlePrefix,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
