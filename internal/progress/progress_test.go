package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/adamwoolhether/houdl/download"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.00 KB"},
		{1536000, "1.54 MB"},
		{2_500_000_000, "2.50 GB"},
		{3_000_000_000_000, "3.00 TB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.input); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"4096", 4096},
		{"100B", 100},
		{"1KiB", 1024},
		{"1.5KiB", 1536},
		{"256kib", 256 * 1024},
		{"256MiB", 256 * 1024 * 1024},
		{"1GiB", 1 << 30},
		{"1KB", 1000},
		{" 2 MB ", 2_000_000},
		{"1GB", 1_000_000_000},
	}

	for _, tt := range tests {
		got, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}

func TestParseBytes_Invalid(t *testing.T) {
	for _, input := range []string{"", "invalid", "MB", "-1KB", "1XB", "NaN", "nanKB", "Inf", "+InfMiB", "-Inf", "9e18GiB"} {
		if _, err := ParseBytes(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		42 * time.Second:                          "42s",
		3*time.Minute + 5*time.Second:             "3m 5s",
		time.Hour + 2*time.Minute + 3*time.Second: "1h 2m 3s",
	}

	for d, exp := range tests {
		if got := FormatDuration(d); got != exp {
			t.Errorf("FormatDuration(%v) = %q, want %q", d, got, exp)
		}
	}
}

func TestLine(t *testing.T) {
	known := download.Progress{BytesReceived: 500_000, TotalBytes: 1_000_000, Elapsed: time.Second}
	if got, exp := Line(known), "50.0% | 500.00 KB / 1.00 MB | 500.00 KB/s | ETA: 1s"; got != exp {
		t.Errorf("Line = %q, want %q", got, exp)
	}

	unknown := download.Progress{BytesReceived: 2000, TotalBytes: -1, Elapsed: 2 * time.Second}
	if got, exp := Line(unknown), "2.00 KB | 1.00 KB/s"; got != exp {
		t.Errorf("Line = %q, want %q", got, exp)
	}

	stalled := download.Progress{BytesReceived: 0, TotalBytes: 10}
	if got := Line(stalled); !strings.HasSuffix(got, "ETA: calculating...") {
		t.Errorf("expected pending ETA, got %q", got)
	}
}

func TestRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, "houdini.tar.gz")

	r.Finish()
	if buf.Len() != 0 {
		t.Fatalf("Finish before any update must not write, got %q", buf.String())
	}

	r.Observe(download.Progress{BytesReceived: 0, TotalBytes: 2000})
	r.Observe(download.Progress{BytesReceived: 2000, TotalBytes: 2000, Elapsed: time.Second})
	r.Finish()

	out := buf.String()
	if strings.Count(out, "[houdl] houdini.tar.gz\n") != 1 {
		t.Errorf("expected a single header, got %q", out)
	}
	if !strings.Contains(out, "100.0% | 2.00 KB / 2.00 KB") {
		t.Errorf("expected final percentage, got %q", out)
	}
	if !strings.HasSuffix(out, "[houdl] done | 2.00 KB in 1s | 2.00 KB/s    \n") {
		t.Errorf("unexpected summary in %q", out)
	}
}
