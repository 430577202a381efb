package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"
)

// maxSnapshotSize bounds a single snapshot response
const maxSnapshotSize = 32 << 20

// Snapshot is a network camera that serves its current frame over HTTP
type Snapshot struct {
	url    string
	client *http.Client
}

// NewSnapshot creates a Snapshot camera polling url
func NewSnapshot(url string) *Snapshot {
	return &Snapshot{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Open checks the camera once so a missing device surfaces at acquisition
func (c *Snapshot) Open(ctx context.Context) (Stream, error) {
	s := &snapshotStream{camera: c}
	if _, err := s.fetch(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s, nil
}

type snapshotStream struct {
	camera *Snapshot

	mu     sync.Mutex
	closed bool
}

// Frame fetches and decodes the current snapshot
func (s *snapshotStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return s.fetch(ctx)
}

func (s *snapshotStream) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.camera.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.camera.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, ErrNoFrame
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("snapshot error (status %d)", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}
	return decodeFrame(data, resp.Header.Get("Content-Type"))
}

// Close marks the stream closed
func (s *snapshotStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
