package camera

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrUnavailable is returned when no camera can be opened (missing device, no permission)
	ErrUnavailable = errors.New("camera unavailable")
	// ErrNoFrame is returned when an open camera has not produced a frame yet
	ErrNoFrame = errors.New("camera has not produced a frame yet")
	// ErrClosed is returned when a stream is used after Close
	ErrClosed = errors.New("camera stream closed")
)

// Stream is an open camera producing live frames
type Stream interface {
	// Frame returns the most recent frame
	Frame(ctx context.Context) (image.Image, error)
	// Close releases the underlying device; calling it more than once is safe
	Close() error
}

// Camera opens streams. At most one stream should be open per session.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}
