package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const (
	// UploadPath is the backend endpoint receiving one image per request
	UploadPath = "/api/upload-image"

	// MaxFileSize is the largest payload the backend accepts
	MaxFileSize = 5 * 1024 * 1024
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/bmp":  true,
}

var (
	// ErrTooLarge is returned for payloads over MaxFileSize; no request is sent
	ErrTooLarge = errors.New("image is too large (max 5 MB)")
	// ErrUnsupportedType is returned for payloads that are not JPEG, PNG or BMP
	ErrUnsupportedType = errors.New("unsupported image type, use JPEG/PNG/BMP")
)

// StatusError is returned when the backend answers with a non-success status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload failed (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("upload failed (status %d): %s", e.StatusCode, e.Body)
}

// Item is one capture queued for upload
type Item struct {
	Index       int
	Data        []byte
	ContentType string
	IsDocument  bool
}

// Sender delivers a single item to the backend
type Sender interface {
	Send(ctx context.Context, credential, subjectID string, item Item) error
}

// Client posts images to the backend upload endpoint
type Client struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewClient creates a Client for the backend at baseURL
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     time.Now,
	}
}

// Send uploads one image as multipart form data. The bearer header is sent
// even when credential is empty; the backend decides whether to reject it.
func (c *Client) Send(ctx context.Context, credential, subjectID string, item Item) error {
	contentType := item.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if len(item.Data) > MaxFileSize {
		return ErrTooLarge
	}
	if !allowedTypes[contentType] {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("client_id", subjectID); err != nil {
		return fmt.Errorf("writing client_id: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, c.filename()))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("creating image part: %w", err)
	}
	if _, err := part.Write(item.Data); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}

	isPassport := "0"
	if item.IsDocument {
		isPassport = "1"
	}
	if err := writer.WriteField("is_passport", isPassport); err != nil {
		return fmt.Errorf("writing is_passport: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UploadPath, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling upload API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// filename builds photo_<unix ms>_<9 base36 chars>.jpg
func (c *Client) filename() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return "photo_" + strconv.FormatInt(c.now().UnixMilli(), 10) + "_" + string(suffix) + ".jpg"
}
