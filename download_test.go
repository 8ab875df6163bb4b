package imagemerge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fastRetry keeps retry tests quick.
var fastRetry = RetryPolicy{Retries: 2, Backoff: time.Millisecond}

func TestDownload_Success(t *testing.T) {
	body := makeJPEG(32, 24)
	srv := newImageServer(t, "image/jpeg", body)

	cfg := &Config{HTTPClient: srv.Client()}
	res, err := cfg.Download(context.Background(), srv.URL+"/image.jpg", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", res.MIMEType)
	}
	if res.Ext != ".jpg" {
		t.Errorf("Ext = %q, want .jpg", res.Ext)
	}
	if res.Width != 32 || res.Height != 24 {
		t.Errorf("dims = %dx%d, want 32x24", res.Width, res.Height)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
}

func TestDownload_ExtFromDecodedFormat(t *testing.T) {
	// The server lies about the type and the URL has no extension.
	srv := newImageServer(t, "application/octet-stream", encodePNG(gradientImage(16, 8, true)))

	cfg := &Config{HTTPClient: srv.Client()}
	res, err := cfg.Download(context.Background(), srv.URL+"/image?id=7", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Ext != ".png" {
		t.Errorf("Ext = %q, want .png", res.Ext)
	}
}

func TestDownload_PermanentFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		opts       DownloadOpts
		wantStatus int
	}{
		{
			name:       "404",
			handler:    func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
			wantStatus: http.StatusNotFound,
		},
		{
			name: "text content type",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "image/jpeg")
				_, _ = w.Write([]byte("FAKEIMAGEDATA"))
			},
		},
		{
			name: "body over MaxBytes",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write([]byte(strings.Repeat("X", 100)))
			},
			opts: DownloadOpts{MaxBytes: 10},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				tc.handler(w, r)
			}))
			defer srv.Close()

			cfg := &Config{HTTPClient: srv.Client(), Retry: fastRetry}
			res, err := cfg.Download(context.Background(), srv.URL+"/x.jpg", tc.opts)
			if res != nil {
				t.Fatalf("expected nil result, got %+v", res)
			}
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *FetchError", err)
			}
			if fe.Transient {
				t.Error("permanent failure marked transient")
			}
			if fe.Status != tc.wantStatus {
				t.Errorf("Status = %d, want %d", fe.Status, tc.wantStatus)
			}
			if n := hits.Load(); n != 1 {
				t.Errorf("server hit %d times, want 1 (no retry)", n)
			}
		})
	}
}

func TestDownload_RetriesTransientStatus(t *testing.T) {
	body := makeJPEG(8, 8)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cfg := &Config{HTTPClient: srv.Client(), Retry: fastRetry}
	res, err := cfg.Download(context.Background(), srv.URL+"/a.jpg", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
}

func TestDownload_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := &Config{HTTPClient: srv.Client(), Retry: fastRetry}
	_, err := cfg.Download(context.Background(), srv.URL+"/a.jpg", DownloadOpts{})

	var fe *FetchError
	if !errors.As(err, &fe) || !fe.Transient || fe.Status != http.StatusBadGateway {
		t.Fatalf("err = %v, want transient 502 FetchError", err)
	}
	if n := hits.Load(); n != int32(fastRetry.Retries+1) {
		t.Errorf("server hit %d times, want %d", n, fastRetry.Retries+1)
	}
}

func TestDownload_NegativeRetriesDisables(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := &Config{HTTPClient: srv.Client(), Retry: RetryPolicy{Retries: -1}}
	if _, err := cfg.Download(context.Background(), srv.URL+"/a.jpg", DownloadOpts{}); err == nil {
		t.Fatal("expected error")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestDownload_StealthClientFallback(t *testing.T) {
	srv := newImageServer(t, "image/jpeg", makeJPEG(8, 8))

	// stealthSrv always returns 403 to simulate a failed stealth attempt.
	stealthSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer stealthSrv.Close()

	stealthClient := stealthSrv.Client()
	stealthClient.Transport = redirectTransport(stealthSrv.URL)

	regularClient := srv.Client()
	regularClient.Transport = redirectTransport(srv.URL)

	cfg := &Config{
		StealthClient: stealthClient,
		HTTPClient:    regularClient,
	}

	// The URL itself doesn't matter; transports redirect to their respective test servers.
	res, err := cfg.Download(context.Background(), "http://example.com/image.jpg", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", res.MIMEType)
	}
}

// redirectTransport returns a RoundTripper that rewrites all requests to target.
type redirectTransport string

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = "http"
	req2.URL.Host = strings.TrimPrefix(string(rt), "http://")
	return http.DefaultTransport.RoundTrip(req2)
}

func TestDownload_MIMEParameterStripping(t *testing.T) {
	srv := newImageServer(t, "image/jpeg; charset=utf-8", makeJPEG(8, 8))

	cfg := &Config{HTTPClient: srv.Client()}
	res, err := cfg.Download(context.Background(), srv.URL+"/photo.jpg", DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q after stripping, want image/jpeg", res.MIMEType)
	}
}

func TestNormalizeExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{".JPG", ".jpg"},
		{".jpeg", ".jpeg"},
		{".webp", ".webp"},
		{".bmp", ".jpg"},
		{"", ".jpg"},
	}
	for _, tc := range tests {
		if got := NormalizeExt(tc.in); got != tc.want {
			t.Errorf("NormalizeExt(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"a/b/0001.JPG", true},
		{"photo.webp", true},
		{"anim.gif", true},
		{"notes.txt", false},
		{"jpg", false},
	}
	for _, tc := range tests {
		if got := IsImageFile(tc.name); got != tc.want {
			t.Errorf("IsImageFile(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
