package download

import (
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// DefaultChunkSize bounds the memory a stream holds at once.
const DefaultChunkSize = 256 << 10

// Option configures a [Downloader] built by [New].
type Option func(*Downloader) error

// WithChunkSize sets the read buffer size used while streaming.
func WithChunkSize(n int) Option {
	return func(d *Downloader) error {
		if n <= 0 {
			return errors.New("chunk size must be greater than zero")
		}

		d.chunkSize = n
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Downloader].
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}

		d.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used for stream spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Downloader) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}

		d.tracer = tracer
		return nil
	}
}

// StreamOption configures a single [Downloader.Stream].
//
// WithProgress registers an observer called from its own goroutine with
// the latest [Progress]. Updates arriving faster than the observer
// returns are coalesced; the final update is always delivered before
// Stream returns.
//
// WithProgressLog logs progress through the Downloader's logger at
// most once per second.
type StreamOption func(*streamOpts)

type streamOpts struct {
	observer func(Progress)
	logged   bool
}

func WithProgress(fn func(Progress)) StreamOption {
	return func(o *streamOpts) {
		o.observer = fn
	}
}

func WithProgressLog() StreamOption {
	return func(o *streamOpts) {
		o.logged = true
	}
}
