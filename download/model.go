package download

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adamwoolhether/houdl/validate"
)

var (
	// ErrDownloadCancelled wraps the context error when a stream is cancelled.
	ErrDownloadCancelled = errors.New("download cancelled")
	// ErrDescriptorUsed is returned when a Descriptor is streamed a second time.
	ErrDescriptorUsed = errors.New("descriptor already used")
	// ErrInvalidDescriptor is returned for descriptors not built by
	// [Downloader.Resolve] or [NewDescriptor].
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	// ErrContentLengthMismatch reports a body shorter or longer than announced.
	ErrContentLengthMismatch = errors.New("content length mismatch")
)

// Descriptor is a resolved artifact: where to fetch it, what to call it
// and the MD5 it must hash to. ExpectedMD5 is the only reference used for
// verification. A Descriptor, and every copy of it, can be streamed once.
type Descriptor struct {
	URL         string `json:"download_url" validate:"required,url"`
	Filename    string `json:"filename" validate:"required"`
	ExpectedMD5 string `json:"hash" validate:"required,len=32,hexadecimal"`
	Size        int64  `json:"size" validate:"gte=0"`

	used *atomic.Bool
}

// NewDescriptor validates and returns a Descriptor for an artifact
// obtained elsewhere.
func NewDescriptor(rawURL, filename, expectedMD5 string, size int64) (Descriptor, error) {
	d := Descriptor{URL: rawURL, Filename: filename, ExpectedMD5: expectedMD5, Size: size}
	if err := validate.Check(d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	d.used = new(atomic.Bool)

	return d, nil
}

// Used reports whether the descriptor has been streamed.
func (d Descriptor) Used() bool {
	return d.used != nil && d.used.Load()
}

func (d Descriptor) empty() bool {
	return d.URL == "" && d.Filename == "" && d.ExpectedMD5 == "" && d.Size == 0
}

// Progress is a snapshot of a running stream.
type Progress struct {
	BytesReceived int64
	// TotalBytes is the Content-Length, else the descriptor size, else -1.
	TotalBytes int64
	Elapsed    time.Duration
}

// Fraction returns the completed share in [0, 1], or -1 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return -1
	}

	return float64(p.BytesReceived) / float64(p.TotalBytes)
}

// Result is the outcome of a completed stream.
type Result struct {
	// Digest is the lowercase hex MD5 of every byte written to the sink.
	Digest  string
	Bytes   int64
	Elapsed time.Duration
}

// LengthError details an [ErrContentLengthMismatch].
type LengthError struct {
	Expected int64
	Received int64
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%v: expected %d bytes, got %d", ErrContentLengthMismatch, e.Expected, e.Received)
}

func (e *LengthError) Unwrap() error {
	return ErrContentLengthMismatch
}
