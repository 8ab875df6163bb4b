package imagemerge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DownloadOpts configures an image download.
type DownloadOpts struct {
	MaxBytes  int64         // max response body size (default: 50MB)
	Timeout   time.Duration // per-attempt timeout (default: 30s)
	UserAgent string        // override config user agent
}

const (
	defaultMaxBytes = 50 << 20
	defaultTimeout  = 30 * time.Second
	defaultExt      = ".jpg"
)

// DownloadResult holds downloaded and validated image data.
type DownloadResult struct {
	Data     []byte
	MIMEType string
	Ext      string // recognized image extension, e.g. ".png"
	Width    int
	Height   int
	Attempts int
}

// FetchError describes a failed download. Transient failures are retried.
type FetchError struct {
	URL       string
	Status    int // 0 when no response was received
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Download fetches an image from rawURL, retrying transient failures with
// exponential backoff. Tries cfg.StealthClient first (if set) on each attempt,
// falling back to cfg.HTTPClient.
func (cfg *Config) Download(ctx context.Context, rawURL string, opts DownloadOpts) (*DownloadResult, error) {
	cfg.defaults()

	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = cfg.UserAgent
	}

	retries := max(cfg.Retry.Retries, 0)
	for attempt := 0; ; attempt++ {
		res, err := cfg.downloadOnce(ctx, rawURL, opts)
		if err == nil {
			res.Attempts = attempt + 1
			return res, nil
		}

		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Transient || attempt >= retries || ctx.Err() != nil {
			return nil, err
		}

		delay := cfg.Retry.Backoff << attempt
		cfg.logger().Debug("imagemerge: retrying download", "url", rawURL, "attempt", attempt+1, "delay", delay, "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (cfg *Config) downloadOnce(ctx context.Context, rawURL string, opts DownloadOpts) (*DownloadResult, error) {
	if cfg.StealthClient != nil {
		if r, err := cfg.fetchImageData(ctx, cfg.StealthClient, rawURL, opts); err == nil {
			return r, nil
		}
	}
	return cfg.fetchImageData(ctx, cfg.HTTPClient, rawURL, opts)
}

func (cfg *Config) fetchImageData(ctx context.Context, client *http.Client, imageURL string, opts DownloadOpts) (*DownloadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: imageURL, Err: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept-Language", cfg.AcceptLanguage)

	resp, err := client.Do(req) //nolint:gosec // URL comes from the caller's candidate list
	if err != nil {
		// Connection errors and timeouts are worth another attempt.
		return nil, &FetchError{URL: imageURL, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			URL:       imageURL,
			Status:    resp.StatusCode,
			Transient: slices.Contains(cfg.Retry.Statuses, resp.StatusCode),
		}
	}

	ct := resp.Header.Get("Content-Type")
	// Strip MIME parameters: "image/jpeg; charset=utf-8" → "image/jpeg"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if strings.HasPrefix(ct, "text/") {
		return nil, &FetchError{URL: imageURL, Err: fmt.Errorf("not an image: %s", ct)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: imageURL, Transient: true, Err: err}
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, &FetchError{URL: imageURL, Err: fmt.Errorf("body exceeds %d bytes", opts.MaxBytes)}
	}

	info, err := validateImageData(data)
	if err != nil {
		return nil, &FetchError{URL: imageURL, Err: err}
	}

	return &DownloadResult{
		Data:     data,
		MIMEType: ct,
		Ext:      chooseExt(info.Format, ct, imageURL),
		Width:    info.Width,
		Height:   info.Height,
	}, nil
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

var formatExts = map[string]string{
	"jpeg":       ".jpg",
	"image/jpeg": ".jpg",
	"png":        ".png",
	"image/png":  ".png",
	"gif":        ".gif",
	"image/gif":  ".gif",
	"webp":       ".webp",
	"image/webp": ".webp",
}

// IsImageFile reports whether name carries a recognized image extension.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// NormalizeExt lowercases ext and replaces an unrecognized one with ".jpg".
func NormalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !imageExts[ext] {
		return defaultExt
	}
	return ext
}

// chooseExt prefers the decoded format, then the Content-Type, then the URL path.
func chooseExt(format, contentType, rawURL string) string {
	if ext, ok := formatExts[format]; ok {
		return ext
	}
	if ext, ok := formatExts[contentType]; ok {
		return ext
	}
	if u, err := url.Parse(rawURL); err == nil {
		return NormalizeExt(path.Ext(u.Path))
	}
	return defaultExt
}
