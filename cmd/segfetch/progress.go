package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"segfetch/internal/progress"
)

// progressRenderer prints a single overwritten status line summarizing the
// whole run's aggregate counters, smoothing throughput over a short
// trailing window the same way the teacher's per-file bar does, but over
// completed files and total bytes known across every job instead of one.
type progressRenderer struct {
	out io.Writer

	win           []sample
	lastNonZero   float64
	lastNonZeroAt time.Time
}

type sample struct {
	t time.Time
	b uint64
}

func newProgressRenderer(out io.Writer) *progressRenderer {
	return &progressRenderer{out: out}
}

func (r *progressRenderer) render(snap progress.Snapshot) {
	now := time.Now()
	r.win = append(r.win, sample{t: now, b: snap.BytesDownloaded})
	cut := now.Add(-5 * time.Second)
	for len(r.win) > 1 && r.win[0].t.Before(cut) {
		r.win = r.win[1:]
	}

	var rate float64
	if len(r.win) >= 2 {
		span := r.win[len(r.win)-1].t.Sub(r.win[0].t).Seconds()
		bytes := int64(r.win[len(r.win)-1].b) - int64(r.win[0].b)
		if span > 0 && bytes > 0 {
			rate = float64(bytes) / span
		}
	}
	if rate > 0 {
		r.lastNonZero = rate
		r.lastNonZeroAt = now
	}
	if rate <= 0 && time.Since(r.lastNonZeroAt) < 2*time.Second {
		rate = r.lastNonZero
	}

	eta := "-"
	if rate > 0 && snap.BytesKnown > snap.BytesDownloaded {
		rem := float64(snap.BytesKnown-snap.BytesDownloaded) / rate
		eta = fmt.Sprintf("%ds", int(rem+0.5))
	}

	den := snap.BytesKnown
	if snap.BytesDownloaded > den {
		den = snap.BytesDownloaded
	}
	bar := renderBar(snap.BytesDownloaded, den, 30)
	fmt.Fprintf(r.out, "\r%s %6.2f%%  %8s/s  ETA %s  %s/%s  files %d",
		bar,
		percent(snap.BytesDownloaded, den),
		rateString(rate),
		eta,
		humanize.Bytes(snap.BytesDownloaded),
		humanize.Bytes(den),
		snap.CompletedFiles,
	)
}

func (r *progressRenderer) finish(snap progress.Snapshot) {
	r.render(snap)
	fmt.Fprintln(r.out)
}

func renderBar(completed, total uint64, width int) string {
	if total == 0 {
		total = 1
	}
	ratio := float64(completed) / float64(total)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	if filled > width {
		filled = width
	}
	b := make([]byte, 0, width+2)
	b = append(b, '[')
	for i := 0; i < width; i++ {
		switch {
		case i < filled:
			b = append(b, '=')
		case i == filled:
			b = append(b, '>')
		default:
			b = append(b, ' ')
		}
	}
	b = append(b, ']')
	return string(b)
}

func percent(a, b uint64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) * 100 / float64(b)
}

func rateString(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(bytesPerSec))
}
