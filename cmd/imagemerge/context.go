package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-imagemerge"
	"github.com/anatolykoptev/go-imagemerge/internal/config"
	"github.com/anatolykoptev/go-imagemerge/internal/logging"
)

type commandContext struct {
	configFlag    *string
	logLevelFlag  *string
	logFormatFlag *string
	quietFlag     *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	log    *slog.Logger
	panics atomic.Int64
}

func newCommandContext(configFlag, logLevelFlag, logFormatFlag *string, quietFlag *bool) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		logLevelFlag:  logLevelFlag,
		logFormatFlag: logFormatFlag,
		quietFlag:     quietFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if v := flagValue(c.logLevelFlag); v != "" {
			cfg.Logging.Level = v
		}
		if v := flagValue(c.logFormatFlag); v != "" {
			cfg.Logging.Format = v
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// setupLogger builds the run logger and installs it as the slog default.
func (c *commandContext) setupLogger(w io.Writer) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: w,
	})
	if err != nil {
		return err
	}
	c.log = log
	slog.SetDefault(log)
	return nil
}

func (c *commandContext) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return slog.Default()
}

func (c *commandContext) quiet() bool {
	return c.quietFlag != nil && *c.quietFlag
}

// libConfig translates the file configuration into a per-run library Config.
func (c *commandContext) libConfig(cfg *config.Config) *imagemerge.Config {
	retries := cfg.Fetch.Retries
	if retries == 0 {
		retries = -1
	}
	return &imagemerge.Config{
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second},
		UserAgent:  cfg.Fetch.UserAgent,
		Retry: imagemerge.RetryPolicy{
			Retries: retries,
			Backoff: time.Duration(cfg.Fetch.BackoffMS) * time.Millisecond,
		},
		Logger: c.logger(),
		// The library already logs each panic; only count them here.
		OnPanic: func(string, any) { c.panics.Add(1) },
	}
}

// printPanics reports items dropped because a worker panicked.
func (c *commandContext) printPanics(out io.Writer) {
	if n := c.panics.Load(); n > 0 {
		fmt.Fprintf(out, "%d item(s) dropped after an internal error; see the log\n", n)
	}
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
