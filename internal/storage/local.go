package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

const objectSuffix = ".zst"

// Local stores objects as zstd compressed files below a root directory.
type Local struct {
	root string
}

var _ Storage = (*Local)(nil)

// NewLocal creates a Local storage rooted at dir, creating the directory if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Local{root: dir}, nil
}

func (l *Local) objectPath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(key)) + objectSuffix, nil
}

// Put compresses r into a temporary file and renames it into place once fully written.
func (l *Local) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	objPath, err := l.objectPath(key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(objPath), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to create encoder: %w", err)
	}

	written, err := io.Copy(enc, contextReader{ctx: ctx, r: r})
	if err != nil {
		if closeErr := enc.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close encoder during error cleanup")
		}
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to compress object: %w", err)
	}

	if err := enc.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close encoder: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close object: %w", err)
	}

	if err := os.Rename(tmpPath, objPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move object into place: %w", err)
	}

	log.Debug().
		Str("key", key).
		Str("content_type", contentType).
		Int64("bytes", written).
		Msg("Stored object")

	return written, nil
}

// Get returns a reader that decompresses the object on the fly.
func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objPath, err := l.objectPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(objPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &objectReader{dec: dec, f: f}, nil
}

// Delete removes the object file.
func (l *Local) Delete(ctx context.Context, key string) error {
	objPath, err := l.objectPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(objPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

type objectReader struct {
	dec *zstd.Decoder
	f   *os.File
}

func (o *objectReader) Read(p []byte) (int, error) {
	return o.dec.Read(p)
}

func (o *objectReader) Close() error {
	o.dec.Close()
	return o.f.Close()
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
