package imagemerge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultGallerySelectors are tried in order; the first one that matches any
// element decides which images a page contributes.
var DefaultGallerySelectors = []string{
	"main img",
	"article img",
	".cc-m-gallery img",
	".gallery img",
	"img",
}

const (
	maxPageBytes    = 10 << 20
	defaultIconSize = 32
	acceptHTML      = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
)

// ExtractOpts tunes the gallery extractor.
type ExtractOpts struct {
	Selectors      []string      // default: DefaultGallerySelectors
	IconSize       int           // skip <img> whose width and height are both in (0, IconSize]; default 32
	SkipDecorative bool          // drop site furniture, see IsPageChrome
	Timeout        time.Duration // per-request page timeout (default: 30s)
}

type galleryExtractor struct {
	cfg  *Config
	opts ExtractOpts
}

// GalleryExtractor returns the default HTML Extractor. It reads <img> elements
// in document order and picks the best full-size URL for each.
func (cfg *Config) GalleryExtractor(opts ExtractOpts) Extractor {
	cfg.defaults()
	if len(opts.Selectors) == 0 {
		opts.Selectors = DefaultGallerySelectors
	}
	if opts.IconSize <= 0 {
		opts.IconSize = defaultIconSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &galleryExtractor{cfg: cfg, opts: opts}
}

func (g *galleryExtractor) Extract(ctx context.Context, page string) ([]ExtractedImage, error) {
	base, err := url.Parse(page)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	body, err := g.cfg.fetchPage(ctx, page, g.opts.Timeout)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page, err)
	}

	found := extractImages(doc, base, g.opts)
	if len(found) == 0 {
		if cover := coverImageURL(doc); cover != "" {
			if u, err := base.Parse(cover); err == nil {
				found = append(found, ExtractedImage{URL: u.String(), Group: pageTitle(doc)})
			}
		}
	}
	return found, nil
}

func extractImages(doc *goquery.Document, base *url.URL, opts ExtractOpts) []ExtractedImage {
	var imgs *goquery.Selection
	for _, sel := range opts.Selectors {
		imgs = doc.Find(sel)
		if imgs.Length() > 0 {
			break
		}
	}
	if imgs == nil {
		return nil
	}

	group := pageTitle(doc)
	seen := make(map[string]bool)
	var out []ExtractedImage
	imgs.Each(func(_ int, img *goquery.Selection) {
		if isIcon(img, opts.IconSize) {
			return
		}
		u := bestImageURL(img, base)
		if u == "" || seen[u] {
			return
		}
		if opts.SkipDecorative && IsPageChrome(u) {
			return
		}
		seen[u] = true
		out = append(out, ExtractedImage{URL: u, Title: imageTitle(img), Group: group})
	})
	return out
}

// bestImageURL prefers a linked full-size image, then the widest srcset
// entry, then the lazy-load and plain src attributes.
func bestImageURL(img *goquery.Selection, base *url.URL) string {
	if parent := img.Parent(); goquery.NodeName(parent) == "a" {
		for _, attr := range []string{"data-href", "href"} {
			if v, ok := parent.Attr(attr); ok && isImageURL(v) {
				return resolveURL(base, v)
			}
		}
	}
	for _, attr := range []string{"srcset", "data-srcset"} {
		if v, ok := img.Attr(attr); ok {
			if u := parseSrcset(v); u != "" {
				return resolveURL(base, u)
			}
		}
	}
	for _, attr := range []string{"data-src", "data-original", "src"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return resolveURL(base, v)
		}
	}
	return ""
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	return u.String()
}

func isIcon(img *goquery.Selection, size int) bool {
	w, _ := strconv.Atoi(img.AttrOr("width", "0"))
	h, _ := strconv.Atoi(img.AttrOr("height", "0"))
	return w > 0 && w <= size && h > 0 && h <= size
}

func imageTitle(img *goquery.Selection) string {
	for _, attr := range []string{"alt", "title"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

func pageTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// fetchPage GETs a gallery page. A 403 or 503 is retried once through the
// stealth client when one is configured.
func (cfg *Config) fetchPage(ctx context.Context, page string, timeout time.Duration) ([]byte, error) {
	body, status, err := cfg.getPage(ctx, cfg.HTTPClient, page, timeout)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return body, nil
	}
	cfg.logger().Warn("imagemerge: page fetch failed", "page", page, "status", status)

	if (status == http.StatusForbidden || status == http.StatusServiceUnavailable) && cfg.StealthClient != nil {
		body, status, err = cfg.getPage(ctx, cfg.StealthClient, page, timeout)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK {
			return body, nil
		}
	}
	return nil, &FetchError{URL: page, Status: status}
}

func (cfg *Config) getPage(ctx context.Context, client *http.Client, page string, timeout time.Duration) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Accept-Language", cfg.AcceptLanguage)
	req.Header.Set("Accept", acceptHTML)
	if req.URL.Host != "" {
		req.Header.Set("Referer", req.URL.Scheme+"://"+req.URL.Host+"/")
	}

	resp, err := client.Do(req) //nolint:gosec // page URLs are operator-supplied
	if err != nil {
		return nil, 0, &FetchError{URL: page, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, 0, &FetchError{URL: page, Transient: true, Err: err}
	}
	return body, resp.StatusCode, nil
}
