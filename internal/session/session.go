package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/photodesk/internal/camera"
	"github.com/zombor/photodesk/internal/classify"
	"github.com/zombor/photodesk/internal/frame"
	"github.com/zombor/photodesk/internal/notify"
	"github.com/zombor/photodesk/internal/preview"
	"github.com/zombor/photodesk/internal/upload"
)

// State is the lifecycle position of a session
type State string

const (
	Idle       State = "idle"
	Scanning   State = "scanning"
	Identified State = "identified"
	Uploading  State = "uploading"
	Completed  State = "completed"
)

// Decoder reads a single subject identifier from a live stream
type Decoder interface {
	DecodeOnce(ctx context.Context, src camera.Stream) (string, error)
}

// FrameEncoder turns a frame into an encoded artifact
type FrameEncoder interface {
	Encode(img image.Image) (*frame.Artifact, error)
}

// Previews issues and revokes display handles
type Previews interface {
	Register(data []byte, contentType string) (preview.Handle, error)
	Release(h preview.Handle) error
}

// Uploader sends a batch and reports the aggregate outcome
type Uploader interface {
	Run(ctx context.Context, credential, subjectID string, items []upload.Item, onProgress func(upload.Progress)) *upload.Result
}

// Authenticator supplies the bearer credential and performs logout
type Authenticator interface {
	Credential() string
	Logout(ctx context.Context)
}

// Classifier optionally suggests whether a capture is an identity document
type Classifier interface {
	Classify(ctx context.Context, imageData []byte, contentType string) (*classify.Verdict, error)
}

// IDGenerator generates capture IDs
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Deps are the collaborators of a Session. Classifier and IDs are optional.
type Deps struct {
	Camera     camera.Camera
	Decoder    Decoder
	Encoder    FrameEncoder
	Previews   Previews
	Uploader   Uploader
	Auth       Authenticator
	Notifier   notify.Notifier
	Classifier Classifier
	IDs        IDGenerator
}

// View is a point-in-time copy of the session for the API layer
type View struct {
	State     State           `json:"state"`
	SubjectID string          `json:"subject_id,omitempty"`
	Captures  []CaptureView   `json:"captures"`
	Progress  upload.Progress `json:"progress"`
}

// Session is the capture-and-upload state machine. One Session exists per
// client; all methods are safe for concurrent use and no lock is held
// across camera, decode or network I/O.
type Session struct {
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	subjectID  string
	images     []*Capture
	progress   upload.Progress
	epoch      uint64
	stream     camera.Stream
	cancelScan context.CancelFunc
}

// New creates an Idle session
func New(deps Deps) *Session {
	if deps.IDs == nil {
		deps.IDs = &uuidGenerator{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		state:  Idle,
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of held captures
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// Snapshot returns a copy of the session
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		State:     s.state,
		SubjectID: s.subjectID,
		Captures:  make([]CaptureView, len(s.images)),
		Progress:  s.progress,
	}
	for i, c := range s.images {
		v.Captures[i] = c.view()
	}
	return v
}

// Start acquires the camera and begins decoding. Calling Start while
// scanning is a no-op; calling it with a subject attached returns
// ErrSessionActive.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Scanning:
		s.mu.Unlock()
		return nil
	case Idle:
	default:
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.epoch++
	epoch := s.epoch
	s.state = Scanning
	s.mu.Unlock()

	stream, err := s.deps.Camera.Open(ctx)
	if err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.state = Idle
		}
		s.mu.Unlock()
		slog.Error("Failed to open camera", "error", err)
		s.deps.Notifier.Notify(notify.KindCameraError, "Camera unavailable: "+err.Error())
		return fmt.Errorf("opening camera: %w", err)
	}

	scanCtx, cancelScan := context.WithCancel(s.ctx)
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		cancelScan()
		stream.Close()
		return ErrReset
	}
	s.stream = stream
	s.cancelScan = cancelScan
	s.wg.Add(1)
	s.mu.Unlock()

	slog.Info("Scanning started")
	go s.scan(scanCtx, epoch, stream)
	return nil
}

func (s *Session) scan(ctx context.Context, epoch uint64, stream camera.Stream) {
	defer s.wg.Done()

	text, err := s.deps.Decoder.DecodeOnce(ctx, stream)
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if s.epoch != epoch || s.state != Scanning {
		s.mu.Unlock()
		slog.Debug("Discarding stale scan result", "epoch", epoch)
		return
	}
	if err != nil || text == "" {
		s.releaseCameraLocked()
		s.state = Idle
		s.mu.Unlock()

		if err == nil {
			err = errors.New("empty QR payload")
		}
		slog.Warn("Scan failed", "error", err)
		if errors.Is(err, camera.ErrUnavailable) || errors.Is(err, camera.ErrClosed) {
			s.deps.Notifier.Notify(notify.KindCameraError, "Camera error: "+err.Error())
		} else {
			s.deps.Notifier.Notify(notify.KindDecodeError, "Could not read QR code: "+err.Error())
		}
		return
	}

	s.subjectID = text
	s.state = Identified
	if s.cancelScan != nil {
		s.cancelScan()
		s.cancelScan = nil
	}
	s.mu.Unlock()

	slog.Info("Subject identified", "subject_id", text)
	s.deps.Notifier.Notify(notify.KindSuccess, "QR code scanned successfully")
}

// Capture grabs the current frame and appends it as a pending capture
func (s *Session) Capture(ctx context.Context) (CaptureView, error) {
	s.mu.Lock()
	if err := s.captureAllowedLocked(); err != nil {
		s.mu.Unlock()
		return CaptureView{}, err
	}
	stream, epoch := s.stream, s.epoch
	s.mu.Unlock()

	if stream == nil {
		return CaptureView{}, s.captureUnavailable(frame.ErrCaptureUnavailable)
	}
	img, err := stream.Frame(ctx)
	if err != nil {
		return CaptureView{}, s.captureUnavailable(fmt.Errorf("%w: %v", frame.ErrCaptureUnavailable, err))
	}
	artifact, err := s.deps.Encoder.Encode(img)
	if err != nil {
		return CaptureView{}, s.captureUnavailable(err)
	}
	handle, err := s.deps.Previews.Register(artifact.Data, artifact.ContentType)
	if err != nil {
		return CaptureView{}, s.captureUnavailable(err)
	}

	c := &Capture{
		ID:       s.deps.IDs.Generate(),
		Artifact: artifact,
		Preview:  handle,
		Outcome:  Outcome{Status: OutcomePending},
	}

	s.mu.Lock()
	err = s.captureAllowedLocked()
	if err == nil && s.epoch != epoch {
		err = ErrReset
	}
	if err != nil {
		s.mu.Unlock()
		s.deps.Previews.Release(handle)
		return CaptureView{}, err
	}
	s.images = append(s.images, c)
	s.state = Identified
	view := c.view()
	if s.deps.Classifier != nil {
		s.wg.Add(1)
		go s.suggest(epoch, c.ID, artifact)
	}
	s.mu.Unlock()

	slog.Info("Captured photo", "capture_id", c.ID, "width", artifact.Width, "height", artifact.Height, "size", artifact.Size())
	return view, nil
}

func (s *Session) captureAllowedLocked() error {
	switch s.state {
	case Identified, Completed:
		return nil
	case Uploading:
		return ErrUploadInProgress
	}
	return ErrNotIdentified
}

func (s *Session) captureUnavailable(err error) error {
	slog.Warn("Capture unavailable", "error", err)
	s.deps.Notifier.Notify(notify.KindCaptureUnavailable, "Camera is not ready, try again")
	return err
}

func (s *Session) suggest(epoch uint64, id string, artifact *frame.Artifact) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	verdict, err := s.deps.Classifier.Classify(ctx, artifact.Data, artifact.ContentType)
	if err != nil {
		slog.Warn("Failed to classify capture", "capture_id", id, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	for _, c := range s.images {
		if c.ID == id {
			c.Suggestion = verdict
			return
		}
	}
}

// Toggle flips the document flag of the capture at index i. An index
// outside [0, Len()) is a programming error and panics.
func (s *Session) Toggle(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editAllowedLocked(); err != nil {
		return err
	}
	s.mustIndexLocked(i)
	s.images[i].IsDocument = !s.images[i].IsDocument
	return nil
}

// Delete removes the capture at index i and releases its preview. Later
// captures shift down by one. An out-of-range index panics.
func (s *Session) Delete(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editAllowedLocked(); err != nil {
		return err
	}
	s.mustIndexLocked(i)
	s.releaseCaptureLocked(s.images[i])
	s.images = slices.Delete(s.images, i, i+1)
	return nil
}

func (s *Session) editAllowedLocked() error {
	switch s.state {
	case Identified:
		return nil
	case Uploading:
		return ErrUploadInProgress
	}
	return ErrNotIdentified
}

func (s *Session) mustIndexLocked(i int) {
	if i < 0 || i >= len(s.images) {
		panic(fmt.Sprintf("session: capture index %d out of range [0:%d]", i, len(s.images)))
	}
}

// Upload sends every held capture and waits for all of them. It is
// rejected without side effects unless the session is Identified with at
// least one capture. Once every item has resolved the session is
// Completed and all captures are released; per-item failures are reported
// through the result and notifications.
func (s *Session) Upload(ctx context.Context) (*upload.Result, error) {
	s.mu.Lock()
	switch {
	case s.state == Uploading:
		s.mu.Unlock()
		return nil, ErrUploadInProgress
	case s.state != Identified:
		s.mu.Unlock()
		return nil, ErrNotIdentified
	case len(s.images) == 0:
		s.mu.Unlock()
		return nil, ErrNoCaptures
	}
	s.state = Uploading
	epoch, subjectID := s.epoch, s.subjectID
	batch := slices.Clone(s.images)
	items := make([]upload.Item, len(batch))
	for i, c := range batch {
		items[i] = upload.Item{
			Index:       i,
			Data:        c.Artifact.Data,
			ContentType: c.Artifact.ContentType,
			IsDocument:  c.IsDocument,
		}
	}
	s.progress = upload.Progress{Total: len(items)}
	s.mu.Unlock()

	slog.Info("Uploading captures", "subject_id", subjectID, "count", len(items))
	result := s.deps.Uploader.Run(ctx, s.deps.Auth.Credential(), subjectID, items, func(p upload.Progress) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch == epoch {
			s.progress = p
		}
	})

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return result, ErrReset
	}
	failed := make(map[int]error, len(result.Failed))
	for _, f := range result.Failed {
		failed[f.Index] = f.Err
	}
	for i, c := range batch {
		if err, ok := failed[i]; ok {
			c.Outcome = Outcome{Status: OutcomeFailed, Reason: err.Error()}
		} else {
			c.Outcome = Outcome{Status: OutcomeSucceeded}
		}
		s.releaseCaptureLocked(c)
	}
	s.images = nil
	s.state = Completed
	s.mu.Unlock()

	for _, f := range result.Failed {
		s.deps.Notifier.Notify(notify.KindUploadItemError, fmt.Sprintf("Photo %d failed to upload: %v", f.Index+1, f.Err))
	}
	if err := result.Err(); err != nil {
		slog.Warn("Upload finished with failures", "subject_id", subjectID, "error", err)
		s.deps.Notifier.Notify(notify.KindUploadItemError, "Upload finished: "+err.Error())
	} else {
		slog.Info("Upload finished", "subject_id", subjectID, "count", result.Total)
		s.deps.Notifier.Notify(notify.KindSuccess, "All photos uploaded successfully")
	}
	return result, nil
}

// Reset returns the session to Idle from any state, releasing the camera
// and every preview. In-flight scans, captures and uploads are discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	slog.Info("Session reset")
}

func (s *Session) resetLocked() {
	s.epoch++
	s.releaseCameraLocked()
	for _, c := range s.images {
		s.releaseCaptureLocked(c)
	}
	s.images = nil
	s.subjectID = ""
	s.progress = upload.Progress{}
	s.state = Idle
}

// Logout resets the session and signs the operator out
func (s *Session) Logout(ctx context.Context) {
	s.Reset()
	s.deps.Auth.Logout(ctx)
}

// Close resets the session and waits for background work to finish
func (s *Session) Close() {
	s.Reset()
	s.cancel()
	s.wg.Wait()
}

func (s *Session) releaseCameraLocked() {
	if s.cancelScan != nil {
		s.cancelScan()
		s.cancelScan = nil
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			slog.Warn("Failed to close camera", "error", err)
		}
		s.stream = nil
	}
}

func (s *Session) releaseCaptureLocked(c *Capture) {
	if c.released {
		return
	}
	c.released = true
	if err := s.deps.Previews.Release(c.Preview); err != nil {
		slog.Warn("Failed to release preview", "capture_id", c.ID, "error", err)
	}
}
