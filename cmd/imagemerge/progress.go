package main

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/anatolykoptev/go-imagemerge/internal/logging"
)

// progress draws bars on stderr only when it is an interactive terminal.
type progress struct {
	out     io.Writer
	enabled bool
}

func newProgress(out io.Writer, quiet bool) *progress {
	return &progress{out: out, enabled: !quiet && logging.IsTerminal(out)}
}

type progressBar struct {
	bar *progressbar.ProgressBar
}

func (p *progress) start(total int, description string) *progressBar {
	if p == nil || !p.enabled || total <= 0 {
		return &progressBar{}
	}
	return &progressBar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)}
}

// add is safe for concurrent use.
func (b *progressBar) add() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Add(1)
}

func (b *progressBar) finish() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}
