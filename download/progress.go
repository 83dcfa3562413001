package download

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// progressWriter is an io.Writer, logging download progress at
// most once per second.
type progressWriter struct {
	w           io.Writer
	logger      *slog.Logger
	name        string
	transferred int64
	total       int64
	startTime   time.Time
	lastLog     time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.transferred += int64(n)

	if time.Since(pw.lastLog) >= time.Second {
		pw.lastLog = time.Now()
		pw.log("downloading")
	}

	if pw.total >= 0 && pw.transferred == pw.total {
		pw.log("download complete")
	}

	return n, err
}

func (pw *progressWriter) log(msg string) {
	elapsed := time.Since(pw.startTime)

	attrs := []any{
		"file", pw.name,
		"elapsed", elapsed.Round(time.Millisecond),
		"transferred", pw.transferred,
		"total", pw.total,
	}
	if pw.total > 0 {
		attrs = append(attrs, "progress", fmt.Sprintf("%.1f%%", float64(pw.transferred)/float64(pw.total)*100))
	}
	if secs := elapsed.Seconds(); secs > 0 {
		attrs = append(attrs, "mbps", fmt.Sprintf("%.2f", float64(pw.transferred)/secs/(1024*1024)))
	}

	pw.logger.Info(msg, attrs...)
}

// progressFeed hands the latest Progress to an observer running on its
// own goroutine. The pull loop never waits on the observer: publishing
// overwrites the pending snapshot and signals through a one-slot channel.
type progressFeed struct {
	fn     func(Progress)
	signal chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	latest Progress
}

func startFeed(fn func(Progress)) *progressFeed {
	f := &progressFeed{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(f.done)

		for range f.signal {
			f.mu.Lock()
			p := f.latest
			f.mu.Unlock()

			f.fn(p)
		}
	}()

	return f
}

func (f *progressFeed) publish(p Progress) {
	f.mu.Lock()
	f.latest = p
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// stop delivers any pending snapshot and waits for the observer to return.
func (f *progressFeed) stop() {
	close(f.signal)
	<-f.done
}
