// Package sink provides destinations for downloaded artifacts.
//
// A [Sink] is written to, then either committed, making the artifact
// visible under its final name, or aborted. Two kinds are available:
//
//   - a local directory, written through a .part file that Commit renames
//     into place and Abort leaves behind for inspection;
//   - a gocloud blob bucket (file://, mem://, s3://, gs:// ...), written
//     through a blob writer that Abort cancels so no object is created.
//
// Providers other than file:// and mem:// are registered by importing
// their gocloud driver, e.g. gocloud.dev/blob/s3blob.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// PartSuffix is appended to local files while they are being written.
const PartSuffix = ".part"

var (
	// ErrExists is returned when the destination already holds name and
	// [WithOverwrite] was not given.
	ErrExists = errors.New("destination already exists")
	// ErrFinished is returned by Write, Commit and Abort once the sink
	// has been committed or aborted.
	ErrFinished = errors.New("sink already finished")
)

// Sink receives an artifact.
type Sink interface {
	io.Writer
	// Commit makes the written data visible under the final name.
	Commit() error
	// Abort stops writing. Local partial files are kept.
	Abort() error
	// Location describes where the artifact ends up.
	Location() string
}

// Option configures [Open] and [NewBlob].
type Option func(*options)

type options struct {
	overwrite bool
	metadata  map[string]string
	logger    *slog.Logger
}

// WithOverwrite replaces an existing artifact of the same name.
func WithOverwrite() Option {
	return func(o *options) {
		o.overwrite = true
	}
}

// WithMetadata attaches metadata to blob objects. Local files ignore it.
func WithMetadata(md map[string]string) Option {
	return func(o *options) {
		o.metadata = md
	}
}

// WithLogger injects a custom [slog.Logger].
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// IsURL reports whether dest names a bucket rather than a local directory.
func IsURL(dest string) bool {
	u, err := url.Parse(dest)
	return err == nil && len(u.Scheme) > 1 && strings.Contains(dest, "://")
}

// Open returns a Sink writing name into dest, which is either a local
// directory (created if missing; empty means the working directory) or a
// gocloud bucket URL.
func Open(ctx context.Context, dest, name string, opts ...Option) (Sink, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	settings := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&settings)
	}

	if !IsURL(dest) {
		return openFile(dest, name, settings)
	}

	bucket, err := blob.OpenBucket(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", dest, err)
	}

	s, err := newBlob(ctx, bucket, name, locationOf(dest, name), settings)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	s.ownsBucket = true

	return s, nil
}

// Exists reports whether dest already holds name, along with the location
// [Open] would write it to. Nothing is created, not even the directory.
func Exists(ctx context.Context, dest, name string) (string, bool, error) {
	if err := checkName(name); err != nil {
		return "", false, err
	}

	if !IsURL(dest) {
		if dest == "" {
			dest = "."
		}

		final := filepath.Join(dest, name)
		_, err := os.Stat(final)
		switch {
		case err == nil:
			return final, true, nil
		case errors.Is(err, fs.ErrNotExist):
			return final, false, nil
		default:
			return final, false, fmt.Errorf("checking destination: %w", err)
		}
	}

	bucket, err := blob.OpenBucket(ctx, dest)
	if err != nil {
		return "", false, fmt.Errorf("opening bucket %s: %w", dest, err)
	}
	defer bucket.Close()

	location := locationOf(dest, name)

	exists, err := bucket.Exists(ctx, name)
	if err != nil {
		return location, false, fmt.Errorf("checking destination: %w", err)
	}

	return location, exists, nil
}

// NewBlob returns a Sink writing key into an already open bucket.
// The bucket is not closed by the Sink.
func NewBlob(ctx context.Context, bucket *blob.Bucket, key string, opts ...Option) (Sink, error) {
	if bucket == nil {
		return nil, errors.New("bucket must not be nil")
	}
	if err := checkName(key); err != nil {
		return nil, err
	}

	settings := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&settings)
	}

	return newBlob(ctx, bucket, key, key, settings)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || path.Base(name) != name || strings.ContainsRune(name, '\\') {
		return fmt.Errorf("invalid artifact name %q", name)
	}

	return nil
}

// locationOf renders the object URL without query parameters.
func locationOf(dest, key string) string {
	u, err := url.Parse(dest)
	if err != nil {
		return dest + "/" + key
	}

	u.RawQuery = ""
	u.Path = "/" + strings.TrimPrefix(path.Join(u.Path, key), "/")

	return u.String()
}
