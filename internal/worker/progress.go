package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Progress renders a single-line progress bar for a pool run on stderr.
type Progress struct {
	out     io.Writer
	unit    string
	enabled bool
	now     func() time.Time

	mu    sync.Mutex
	start time.Time
	state counts
}

type counts struct {
	completed, total, failed int
}

// NewProgress creates a tracker for total tasks. unit names what is
// counted ("tiles", "categories"); it defaults to "tasks". A disabled
// tracker only keeps counts for Summary.
func NewProgress(total int, unit string, enabled bool) *Progress {
	if unit == "" {
		unit = "tasks"
	}
	return &Progress{
		out:     os.Stderr,
		unit:    unit,
		enabled: enabled,
		now:     time.Now,
		start:   time.Now(),
		state:   counts{total: total},
	}
}

// Update records pool progress and redraws the bar.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.state = counts{completed: completed, total: total, failed: failed}
	p.mu.Unlock()

	if p.enabled {
		fmt.Fprint(p.out, "\r"+p.line())
	}
}

// Callback adapts the tracker to Config.OnProgress.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// Done draws the final state and ends the line.
func (p *Progress) Done() {
	if p.enabled {
		fmt.Fprintln(p.out, "\r"+p.line())
	}
}

func (p *Progress) snapshot() (counts, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.now().Sub(p.start)
}

func (p *Progress) line() string {
	c, elapsed := p.snapshot()

	filled := barWidth
	if c.total > 0 {
		filled = c.completed * barWidth / c.total
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s%s] %d/%d %s", strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled), c.completed, c.total, p.unit)
	if c.failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", c.failed)
	}

	rate := perSecond(c.completed, elapsed)
	fmt.Fprintf(&b, " - %.1f %s/sec", rate, p.unit)

	switch {
	case c.completed >= c.total:
		fmt.Fprintf(&b, " - Done in %s", formatDuration(elapsed))
	case rate > 0:
		eta := time.Duration(float64(c.total-c.completed)/rate) * time.Second
		fmt.Fprintf(&b, " - ETA: %s", formatDuration(eta))
	}

	// Overwrites leftovers of a longer previous line.
	b.WriteString("          ")
	return b.String()
}

// Summary describes the finished run; the first count is successes.
func (p *Progress) Summary() string {
	c, elapsed := p.snapshot()
	return fmt.Sprintf("Processed %d/%d %s (%d failed) in %s (%.1f %s/sec)",
		c.completed-c.failed, c.total, p.unit, c.failed, formatDuration(elapsed), perSecond(c.completed, elapsed), p.unit)
}

func perSecond(n int, d time.Duration) float64 {
	if n == 0 || d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
