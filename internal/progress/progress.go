// Package progress renders download progress for a terminal and converts
// between byte counts and their human-readable form.
//
// # Output Format
//
//	[houdl] houdini-21.0.440-linux_x86_64_gcc11.2.tar.gz
//	[houdl] 45.2% | 1.13 GB / 2.50 GB | 85.3 MB/s | ETA: 16s
//	[houdl] done | 2.50 GB in 29s | 86.1 MB/s
package progress

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adamwoolhether/houdl/download"
)

// Renderer draws a single, continuously rewritten progress line.
// Observe is safe to pass to [download.WithProgress].
type Renderer struct {
	out  io.Writer
	name string

	mu      sync.Mutex
	started bool
	last    download.Progress
}

// NewRenderer returns a Renderer writing to out.
func NewRenderer(out io.Writer, name string) *Renderer {
	return &Renderer{out: out, name: name}
}

// Observe redraws the line for p.
func (r *Renderer) Observe(p download.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		r.started = true
		fmt.Fprintf(r.out, "[houdl] %s\n", r.name)
	}
	r.last = p

	fmt.Fprintf(r.out, "\r[houdl] %s    ", Line(p))
}

// Finish terminates the progress line with a summary.
func (r *Renderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}

	fmt.Fprintf(r.out, "\r[houdl] done | %s in %s | %s/s    \n",
		FormatBytes(r.last.BytesReceived),
		FormatDuration(r.last.Elapsed),
		FormatBytes(rate(r.last)),
	)
}

// Line formats p without the prefix or carriage return.
func Line(p download.Progress) string {
	speed := rate(p)

	if p.Fraction() < 0 {
		return fmt.Sprintf("%s | %s/s", FormatBytes(p.BytesReceived), FormatBytes(speed))
	}

	eta := "calculating..."
	if speed > 0 {
		remaining := float64(p.TotalBytes-p.BytesReceived) / float64(speed)
		eta = FormatDuration(time.Duration(remaining * float64(time.Second)))
	}

	return fmt.Sprintf("%.1f%% | %s / %s | %s/s | ETA: %s",
		p.Fraction()*100,
		FormatBytes(p.BytesReceived),
		FormatBytes(p.TotalBytes),
		FormatBytes(speed),
		eta,
	)
}

func rate(p download.Progress) int64 {
	secs := p.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}

	return int64(float64(p.BytesReceived) / secs)
}

// FormatBytes formats b using decimal units.
func FormatBytes(b int64) string {
	const (
		KB = 1000
		MB = KB * 1000
		GB = MB * 1000
		TB = GB * 1000
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/TB)
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/GB)
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/MB)
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/KB)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// FormatDuration formats d as 42s, 3m 5s or 1h 2m 3s.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}

	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

var units = []struct {
	suffix string
	mult   int64
}{
	// Longest suffixes first so KiB is not read as B.
	{"TiB", 1 << 40},
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"TB", 1000 * 1000 * 1000 * 1000},
	{"GB", 1000 * 1000 * 1000},
	{"MB", 1000 * 1000},
	{"KB", 1000},
	{"B", 1},
}

// ParseBytes parses sizes such as 256KiB, 1.5MB or 4096.
func ParseBytes(s string) (int64, error) {
	raw := strings.TrimSpace(s)
	num, mult := raw, int64(1)

	for _, u := range units {
		if strings.HasSuffix(strings.ToUpper(raw), strings.ToUpper(u.suffix)) {
			num, mult = strings.TrimSpace(raw[:len(raw)-len(u.suffix)]), u.mult
			break
		}
	}

	value, err := strconv.ParseFloat(num, 64)
	if err != nil || value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid byte string: %q", s)
	}

	size := value * float64(mult)
	if size >= math.MaxInt64 {
		return 0, fmt.Errorf("byte string out of range: %q", s)
	}

	return int64(size), nil
}
