package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const (
	// DefaultMaxDimension bounds the longer side of an encoded capture
	DefaultMaxDimension = 1280
	// DefaultQuality is the JPEG quality used for captures
	DefaultQuality = 85

	// ContentType is the MIME type of every encoded artifact
	ContentType = "image/jpeg"
)

// ErrCaptureUnavailable is returned when the camera has not produced a usable frame yet
var ErrCaptureUnavailable = errors.New("capture unavailable: camera is not producing frames")

// Artifact is an encoded capture ready for preview and upload
type Artifact struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
}

// Size returns the encoded payload size in bytes
func (a *Artifact) Size() int {
	return len(a.Data)
}

// Encoder turns live frames into bounded JPEG artifacts
type Encoder struct {
	MaxDimension int
	Quality      int
}

// NewEncoder creates an Encoder, falling back to defaults for non-positive values
func NewEncoder(maxDimension, quality int) *Encoder {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Encoder{MaxDimension: maxDimension, Quality: quality}
}

// FitWithin scales (w, h) down so the longer side equals bound, preserving
// aspect ratio. Dimensions already within bound are returned unchanged.
func FitWithin(w, h, bound int) (int, int) {
	if w <= bound && h <= bound {
		return w, h
	}
	if w >= h {
		nh := (h*bound + w/2) / w
		return bound, max(nh, 1)
	}
	nw := (w*bound + h/2) / h
	return max(nw, 1), bound
}

// Encode resizes the full frame to fit the bound and encodes it as JPEG
func (e *Encoder) Encode(img image.Image) (*Artifact, error) {
	if img == nil {
		return nil, ErrCaptureUnavailable
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrCaptureUnavailable
	}

	w, h := FitWithin(b.Dx(), b.Dy(), e.MaxDimension)
	src := img
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Artifact{
		Data:        buf.Bytes(),
		Width:       w,
		Height:      h,
		ContentType: ContentType,
	}, nil
}
