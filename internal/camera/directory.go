package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Directory is a camera fed by image files dropped into a folder, for
// example by a tethered camera or a phone sync client. The newest file
// is the current frame.
type Directory struct {
	path string
}

// NewDirectory creates a Directory camera reading from path
func NewDirectory(path string) *Directory {
	return &Directory{path: path}
}

// Open checks that the folder is readable and returns a stream over it
func (d *Directory) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnavailable, d.path)
	}
	return &directoryStream{path: d.path}, nil
}

type directoryStream struct {
	path string

	mu     sync.Mutex
	closed bool
}

// Frame decodes the most recently modified supported file
func (s *directoryStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	latest, err := s.latest()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	img, err := decodeFrame(data, mimeTypeForPath(latest))
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", filepath.Base(latest), err)
	}
	return img, nil
}

func (s *directoryStream) latest() (string, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var (
		newest   string
		newestAt time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || mimeTypeForPath(entry.Name()) == "" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestAt) {
			newest = entry.Name()
			newestAt = info.ModTime()
		}
	}
	if newest == "" {
		return "", ErrNoFrame
	}
	return filepath.Join(s.path, newest), nil
}

// Close marks the stream closed
func (s *directoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
