package cli

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// A terminal bar for the search collection window.
// Shows: [=========>..........]  45% | 3 files | 2s left

const barWidth = 30 // Characters for the progress bar

type progressBar struct {
	out     io.Writer
	started time.Time
	window  time.Duration
}

func newProgressBar(out io.Writer, window time.Duration) *progressBar {
	return &progressBar{
		out:     out,
		started: time.Now(),
		window:  window,
	}
}

// render draws the bar for the current time and hit count.
func (p *progressBar) render(now time.Time, files int) {
	pct := 100.0
	if p.window > 0 {
		pct = float64(now.Sub(p.started)) / float64(p.window) * 100
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	clearLine(p.out)
	fmt.Fprintf(p.out, "  %s %3.0f%% | %s | %s",
		renderBar(pct), pct, plural(files, "file"), p.remaining(now))
}

// done finishes the line.
func (p *progressBar) done() {
	clearLine(p.out)
}

func (p *progressBar) remaining(now time.Time) string {
	left := p.window - now.Sub(p.started)
	if left <= 0 {
		return "done"
	}
	return fmt.Sprintf("%ds left", int(left.Round(time.Second)/time.Second))
}

// renderBar builds [=======>............] for pct in [0, 100].
func renderBar(pct float64) string {
	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	var bar string
	if filled == barWidth {
		bar = strings.Repeat("=", filled)
	} else if filled > 0 {
		bar = strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	} else {
		bar = strings.Repeat(".", barWidth)
	}
	return "[" + bar + "]"
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func clearLine(w io.Writer) {
	fmt.Fprintf(w, "\r\033[K")
}
