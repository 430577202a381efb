package preview

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for handles the registry never issued
	ErrNotFound = errors.New("preview handle not found")
	// ErrReleased is returned when a handle is used or released after release
	ErrReleased = errors.New("preview handle already released")
)

// Handle is a revocable reference to a locally held image
type Handle string

// String returns the handle token
func (h Handle) String() string {
	return string(h)
}

type entry struct {
	path        string
	contentType string
}

// MaxRemembered bounds how many released handles the registry keeps for
// ErrReleased reporting; older ones report ErrNotFound
const MaxRemembered = 256

// Registry issues display handles and guarantees each is released exactly once
type Registry struct {
	storage Storage

	mu           sync.Mutex
	live         map[Handle]entry
	released     map[Handle]struct{}
	releaseOrder []Handle
}

// NewRegistry creates a Registry backed by storage
func NewRegistry(storage Storage) *Registry {
	return &Registry{
		storage:  storage,
		live:     make(map[Handle]entry),
		released: make(map[Handle]struct{}),
	}
}

// Register stores data and returns a new handle for it
func (r *Registry) Register(data []byte, contentType string) (Handle, error) {
	h := Handle(uuid.NewString())
	path, err := r.storage.Save(h.String()+".jpg", data)
	if err != nil {
		return "", fmt.Errorf("saving preview: %w", err)
	}

	r.mu.Lock()
	r.live[h] = entry{path: path, contentType: contentType}
	r.mu.Unlock()
	return h, nil
}

// Open returns the data behind a live handle
func (r *Registry) Open(h Handle) ([]byte, string, error) {
	r.mu.Lock()
	e, ok := r.live[h]
	_, gone := r.released[h]
	r.mu.Unlock()

	switch {
	case gone:
		return nil, "", ErrReleased
	case !ok:
		return nil, "", ErrNotFound
	}

	data, err := r.storage.Get(e.path)
	if err != nil {
		return nil, "", fmt.Errorf("getting preview: %w", err)
	}
	return data, e.contentType, nil
}

// Release revokes a handle and frees its storage
func (r *Registry) Release(h Handle) error {
	r.mu.Lock()
	if _, gone := r.released[h]; gone {
		r.mu.Unlock()
		return ErrReleased
	}
	e, ok := r.live[h]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.live, h)
	r.rememberLocked(h)
	r.mu.Unlock()

	if err := r.storage.Delete(e.path); err != nil {
		// the handle is revoked either way
		slog.Warn("Failed to delete preview", "handle", h, "error", err)
	}
	return nil
}

func (r *Registry) rememberLocked(h Handle) {
	if len(r.releaseOrder) >= MaxRemembered {
		delete(r.released, r.releaseOrder[0])
		r.releaseOrder = r.releaseOrder[1:]
	}
	r.released[h] = struct{}{}
	r.releaseOrder = append(r.releaseOrder, h)
}

// Remembered returns how many released handles are tracked
func (r *Registry) Remembered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.released)
}

// Outstanding returns how many handles are still live
func (r *Registry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
