package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

type fileSink struct {
	f      *os.File
	final  string
	part   string
	logger *slog.Logger
	done   bool
}

func openFile(dir, name string, settings options) (*fileSink, error) {
	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination directory: %w", err)
	}

	final := filepath.Join(dir, name)
	if !settings.overwrite {
		if _, err := os.Stat(final); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrExists, final)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checking destination: %w", err)
		}
	}

	part := final + PartSuffix
	f, err := os.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating partial file: %w", err)
	}

	return &fileSink{f: f, final: final, part: part, logger: settings.logger}, nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	if s.done {
		return 0, ErrFinished
	}

	return s.f.Write(p)
}

func (s *fileSink) Commit() error {
	if s.done {
		return ErrFinished
	}
	s.done = true

	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("syncing partial file: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("closing partial file: %w", err)
	}
	if err := os.Rename(s.part, s.final); err != nil {
		return fmt.Errorf("renaming partial file: %w", err)
	}

	s.logger.Debug("artifact committed", "path", s.final)

	return nil
}

// Abort closes the partial file and leaves it on disk.
func (s *fileSink) Abort() error {
	if s.done {
		return ErrFinished
	}
	s.done = true

	if err := s.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("closing partial file: %w", err)
	}

	s.logger.Info("partial download kept", "path", s.part)

	return nil
}

func (s *fileSink) Location() string {
	return s.final
}

// PartPath returns where data is written until Commit.
func (s *fileSink) PartPath() string {
	return s.part
}
