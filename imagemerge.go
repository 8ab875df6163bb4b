package imagemerge

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Setup failures. These abort a run before any per-item processing.
var (
	ErrManifestNotFound = errors.New("imagemerge: manifest not found")
	ErrArchiveRoot      = errors.New("imagemerge: archive root inaccessible")
	ErrDestination      = errors.New("imagemerge: destination unusable")
	ErrLocked           = errors.New("imagemerge: destination locked by another run")
	ErrNoCandidates     = errors.New("imagemerge: no candidate images found")
)

const (
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultAcceptLanguage = "ja,en;q=0.9,zh;q=0.8"
	defaultWorkers        = 8
)

// RetryPolicy bounds how transient fetch failures are retried.
type RetryPolicy struct {
	Retries  int           // retries after the first attempt (default: 3, negative disables)
	Backoff  time.Duration // base delay, doubled per retry (default: 500ms)
	Statuses []int         // HTTP statuses treated as transient (default: 500, 502, 503, 504)
}

// Config holds the dependencies of one run. Construct it once and pass it to
// every stage; nothing in this package keeps process-wide state.
type Config struct {
	HTTPClient     *http.Client // optional: default http client (nil = http.DefaultClient)
	StealthClient  *http.Client // optional: tried first for downloads, and for pages answering 403/503
	UserAgent      string       // default: desktop Chrome UA
	AcceptLanguage string       // default: "ja,en;q=0.9,zh;q=0.8"
	Retry          RetryPolicy
	Logger         *slog.Logger // nil = slog.Default()

	// Optional callbacks for progress reporting.
	OnFetched    func(item CandidateItem, ok bool)
	OnIndexStart func(total int)
	OnIndexed    func(path string, ok bool)
	OnMerged     func(asset MergedAsset)
	OnPanic      func(tag string, r any)
}

// defaults fills zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = defaultAcceptLanguage
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Retry.Retries == 0 {
		c.Retry.Retries = 3
	}
	if c.Retry.Backoff <= 0 {
		c.Retry.Backoff = 500 * time.Millisecond
	}
	if len(c.Retry.Statuses) == 0 {
		c.Retry.Statuses = []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// recoverItem converts a panic in a per-item worker into a dropped item.
func (c *Config) recoverItem(tag string) {
	if r := recover(); r != nil {
		c.logger().Error("imagemerge: worker panic", "tag", tag, "panic", r)
		if c.OnPanic != nil {
			c.OnPanic(tag, r)
		}
	}
}

func workerCount(n int) int {
	if n <= 0 {
		return defaultWorkers
	}
	return n
}
