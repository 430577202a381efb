package decoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/zombor/photodesk/internal/camera"
)

// ErrTimeout is returned when no QR code was found before the deadline
var ErrTimeout = errors.New("no QR code found before timeout")

// Polling defaults used when NewQR is given non-positive values
const (
	DefaultInterval = 200 * time.Millisecond
	DefaultTimeout  = 60 * time.Second
)

// QR reads a single QR payload from a live stream
type QR struct {
	interval time.Duration
	timeout  time.Duration
	hints    map[gozxing.DecodeHintType]interface{}
}

// NewQR creates a QR decoder polling every interval until timeout
func NewQR(interval, timeout time.Duration) *QR {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &QR{
		interval: interval,
		timeout:  timeout,
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// DecodeOnce polls frames until one carries a non-empty QR payload, the
// timeout elapses, ctx is cancelled, or the camera becomes unavailable.
// Frames that cannot be read or decoded are skipped.
func (q *QR) DecodeOnce(ctx context.Context, src camera.Stream) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	reader := qrcode.NewQRCodeReader()
	for {
		text, err := q.attempt(ctx, reader, src)
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// attempt returns ("", nil) when the frame simply holds no readable code
func (q *QR) attempt(ctx context.Context, reader gozxing.Reader, src camera.Stream) (string, error) {
	img, err := src.Frame(ctx)
	switch {
	case err == nil:
	case errors.Is(err, camera.ErrUnavailable), errors.Is(err, camera.ErrClosed):
		return "", fmt.Errorf("reading frame: %w", err)
	default:
		// unreadable frames are retried on the next tick
		if !errors.Is(err, camera.ErrNoFrame) && ctx.Err() == nil {
			slog.Debug("Skipping unreadable frame", "error", err)
		}
		return "", nil
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		slog.Debug("Skipping frame", "error", err)
		return "", nil
	}
	result, err := reader.Decode(bmp, q.hints)
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(result.GetText()), nil
}
