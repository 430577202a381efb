package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	. "github.com/onsi/gomega"

	"github.com/zombor/photodesk/internal/camera"
	"github.com/zombor/photodesk/internal/classify"
	"github.com/zombor/photodesk/internal/notify"
	"github.com/zombor/photodesk/internal/preview"
	"github.com/zombor/photodesk/internal/upload"
)

// mockStream serves a fixed frame
type mockStream struct {
	mu       sync.Mutex
	frame    image.Image
	frameErr error
	closes   int
}

func (m *mockStream) Frame(ctx context.Context) (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frameErr != nil {
		return nil, m.frameErr
	}
	return m.frame, nil
}

func (m *mockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockStream) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// mockCamera hands out one mockStream per Open
type mockCamera struct {
	mu      sync.Mutex
	openErr error
	frame   image.Image
	streams []*mockStream
}

func (m *mockCamera) Open(ctx context.Context) (camera.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	s := &mockStream{frame: m.frame}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *mockCamera) opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func (m *mockCamera) last() *mockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[len(m.streams)-1]
}

type decodeResult struct {
	text string
	err  error
}

// mockDecoder blocks each DecodeOnce call until the test delivers a result
type mockDecoder struct {
	mu           sync.Mutex
	calls        []chan decodeResult
	ignoreCancel bool
}

func (m *mockDecoder) DecodeOnce(ctx context.Context, src camera.Stream) (string, error) {
	ch := make(chan decodeResult, 1)
	m.mu.Lock()
	m.calls = append(m.calls, ch)
	m.mu.Unlock()

	if m.ignoreCancel {
		r := <-ch
		return r.text, r.err
	}
	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *mockDecoder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockDecoder) deliver(i int, text string, err error) {
	Eventually(m.count).Should(BeNumerically(">", i))
	m.mu.Lock()
	ch := m.calls[i]
	m.mu.Unlock()
	ch <- decodeResult{text: text, err: err}
}

// drain unblocks every call still waiting
func (m *mockDecoder) drain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.calls {
		select {
		case ch <- decodeResult{err: context.Canceled}:
		default:
		}
	}
}

// countingPreviews wraps a Registry and counts double releases
type countingPreviews struct {
	*preview.Registry

	mu             sync.Mutex
	releases       int
	doubleReleases int
}

func (c *countingPreviews) Release(h preview.Handle) error {
	err := c.Registry.Release(h)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	if errors.Is(err, preview.ErrReleased) {
		c.doubleReleases++
	}
	return err
}

// mockSender records items and fails the configured indices
type mockSender struct {
	mu       sync.Mutex
	failures map[int]error
	block    chan struct{}
	sent     []upload.Item
	creds    []string
	subjects []string
}

func (m *mockSender) Send(ctx context.Context, credential, subjectID string, item upload.Item) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, item)
	m.creds = append(m.creds, credential)
	m.subjects = append(m.subjects, subjectID)
	return m.failures[item.Index]
}

func (m *mockSender) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockAuth struct {
	mu         sync.Mutex
	credential string
	logouts    int
}

func (m *mockAuth) Credential() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential
}

func (m *mockAuth) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
	m.credential = ""
}

// recordingNotifier keeps every notification kind in order
type recordingNotifier struct {
	mu       sync.Mutex
	kinds    []notify.Kind
	messages []string
}

func (r *recordingNotifier) Notify(kind notify.Kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.messages = append(r.messages, message)
}

func (r *recordingNotifier) Kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Kind(nil), r.kinds...)
}

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("cap-%d", g.n)
}

type mockClassifier struct {
	verdict *classify.Verdict
	err     error
}

func (m *mockClassifier) Classify(ctx context.Context, imageData []byte, contentType string) (*classify.Verdict, error) {
	return m.verdict, m.err
}
