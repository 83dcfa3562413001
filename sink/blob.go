package sink

import (
	"context"
	"fmt"
	"log/slog"

	"gocloud.dev/blob"
)

type blobSink struct {
	bucket     *blob.Bucket
	w          *blob.Writer
	cancel     context.CancelFunc
	key        string
	location   string
	ownsBucket bool
	logger     *slog.Logger
	done       bool
}

func newBlob(ctx context.Context, bucket *blob.Bucket, key, location string, settings options) (*blobSink, error) {
	if !settings.overwrite {
		exists, err := bucket.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("checking destination: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrExists, location)
		}
	}

	// Cancelling the writer context before Close discards the upload.
	wctx, cancel := context.WithCancel(ctx)

	w, err := bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: "application/octet-stream",
		Metadata:    settings.metadata,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening blob writer: %w", err)
	}

	return &blobSink{
		bucket:   bucket,
		w:        w,
		cancel:   cancel,
		key:      key,
		location: location,
		logger:   settings.logger,
	}, nil
}

func (s *blobSink) Write(p []byte) (int, error) {
	if s.done {
		return 0, ErrFinished
	}

	return s.w.Write(p)
}

func (s *blobSink) Commit() error {
	if s.done {
		return ErrFinished
	}
	s.done = true
	defer s.release()

	if err := s.w.Close(); err != nil {
		return fmt.Errorf("committing blob %s: %w", s.key, err)
	}

	s.logger.Debug("artifact committed", "location", s.location)

	return nil
}

func (s *blobSink) Abort() error {
	if s.done {
		return ErrFinished
	}
	s.done = true
	defer s.release()

	s.cancel()
	// The writer reports the cancellation; the object is not created.
	_ = s.w.Close()

	s.logger.Info("upload aborted", "location", s.location)

	return nil
}

func (s *blobSink) release() {
	s.cancel()
	if s.ownsBucket {
		if err := s.bucket.Close(); err != nil {
			s.logger.Error("closing bucket", "error", err)
		}
	}
}

func (s *blobSink) Location() string {
	return s.location
}
