package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anatolykoptev/go-imagemerge"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	archiveDir string
	destDir    string
	stagingDir string
	manifest   string
	report     string
	galleryURL string
}

func gradientPNG(t *testing.T, rising bool) []byte {
	t.Helper()
	const w, h = 64, 64
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := x * 255 / (w - 1)
			if !rising {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// setupCLITestEnv serves a two-image gallery whose first image is already in
// the archive.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Chdir(base)
	t.Setenv("HOME", base)

	rising := gradientPNG(t, true)
	falling := gradientPNG(t, false)

	mux := http.NewServeMux()
	mux.HandleFunc("/gallery", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Gallery</title></head><body><main>
<img src="/img/rising.png" alt="Rising">
<img src="/img/falling.png" alt="Falling">
</main></body></html>`)
	})
	serve := func(body []byte) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(body)
		}
	}
	mux.HandleFunc("/img/rising.png", serve(rising))
	mux.HandleFunc("/img/falling.png", serve(falling))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "imagemerge.toml"),
		archiveDir: filepath.Join(base, "images"),
		destDir:    filepath.Join(base, "images", "new"),
		stagingDir: filepath.Join(base, "staging"),
		manifest:   filepath.Join(base, "fetched.json"),
		report:     filepath.Join(base, "report.json"),
		galleryURL: srv.URL + "/gallery",
	}

	if err := os.MkdirAll(filepath.Join(env.archiveDir, "old"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.archiveDir, "old", "0001.png"), rising, 0o644); err != nil {
		t.Fatal(err)
	}

	content := fmt.Sprintf(`[fetch]
staging_dir = %q
manifest_path = %q
retries = 0
backoff_ms = 1

[merge]
dest_dir = %q
archive_roots = [%q]
report_path = %q

[logging]
level = "error"
`, env.stagingDir, env.manifest, env.destDir, env.archiveDir, env.report)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func destFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	var names []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestRunMergesOnlyNewImages(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run", "--page", env.galleryURL}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Fetched 2 of 2 images")
	requireContains(t, out, "Report: "+env.report)

	if got := destFiles(t, env.destDir); len(got) != 1 || got[0] != "0001.png" {
		t.Fatalf("dest files = %v, want [0001.png]", got)
	}

	r, err := imagemerge.LoadReport(env.report)
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}
	c := r.Counts()
	if c.Total != 2 || c.New != 1 || c.Duplicate != 1 || c.Saved != 1 {
		t.Fatalf("counts = %+v", c)
	}
	if r.Items[0].IsNew == nil || *r.Items[0].IsNew {
		t.Errorf("item 1 should be a duplicate: %+v", r.Items[0])
	}

	// A second merge finds the merged image in the destination.
	if _, _, err := runCLI(t, []string{"merge"}, env.configPath); err != nil {
		t.Fatalf("merge rerun: %v", err)
	}
	if got := destFiles(t, env.destDir); len(got) != 1 {
		t.Fatalf("rerun copied again: %v", got)
	}
	r, err = imagemerge.LoadReport(env.report)
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}
	if c := r.Counts(); c.New != 0 || c.Saved != 0 {
		t.Fatalf("rerun counts = %+v", c)
	}
}

func TestMergeDryRun(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"fetch", "--page", env.galleryURL}, env.configPath); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	out, _, err := runCLI(t, []string{"merge", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("merge --dry-run: %v", err)
	}
	requireContains(t, out, "Dry run: nothing was copied")
	if _, err := os.Stat(env.destDir); !os.IsNotExist(err) {
		t.Fatalf("dry run created %s (err=%v)", env.destDir, err)
	}

	out, _, err = runCLI(t, []string{"report", "--new-only"}, env.configPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, "falling.png")
	if strings.Contains(out, "rising.png") {
		t.Errorf("--new-only listed the duplicate:\n%s", out)
	}
}

func TestMergeMissingManifest(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"merge", "--manifest", filepath.Join(env.baseDir, "absent.json")}, env.configPath)
	if !errors.Is(err, imagemerge.ErrManifestNotFound) {
		t.Fatalf("err = %v, want ErrManifestNotFound", err)
	}
}

func TestFetchRequiresPages(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"fetch"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no gallery pages") {
		t.Fatalf("err = %v", err)
	}
}

func TestInvalidThresholdFlag(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"merge", "--threshold", "65"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "merge.threshold") {
		t.Fatalf("err = %v", err)
	}
}

func TestConfigInitShowValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "dest_dir")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when the file exists")
	}
}
