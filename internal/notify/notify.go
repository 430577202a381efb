package notify

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Kind classifies a notification by the failure (or success) it reports
type Kind string

const (
	KindInfo               Kind = "info"
	KindSuccess            Kind = "success"
	KindAuthError          Kind = "auth_error"
	KindCameraError        Kind = "camera_error"
	KindDecodeError        Kind = "decode_error"
	KindCaptureUnavailable Kind = "capture_unavailable"
	KindUploadItemError    Kind = "upload_item_error"
)

// DefaultTTL matches how long a toast stays on screen before it dismisses itself
const DefaultTTL = 3 * time.Second

// IsError reports whether the kind represents a failure
func (k Kind) IsError() bool {
	switch k {
	case KindInfo, KindSuccess:
		return false
	}
	return true
}

// Notification is a transient, user-visible message
type Notification struct {
	ID        uint64    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier receives notifications from the session and its collaborators
type Notifier interface {
	Notify(kind Kind, message string)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Feed keeps notifications until they expire or are dismissed
type Feed struct {
	mu         sync.Mutex
	items      map[uint64]Notification
	nextID     uint64
	ttl        time.Duration
	timeSource TimeSource
}

// NewFeed creates a Feed using the wall clock
func NewFeed(ttl time.Duration) *Feed {
	return NewFeedWithDeps(ttl, &defaultTimeSource{})
}

// NewFeedWithDeps creates a Feed with a custom time source for testing
func NewFeedWithDeps(ttl time.Duration, timeSrc TimeSource) *Feed {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Feed{
		items:      make(map[uint64]Notification),
		ttl:        ttl,
		timeSource: timeSrc,
	}
}

// Notify records a notification and logs it
func (f *Feed) Notify(kind Kind, message string) {
	now := f.timeSource.Now()

	f.mu.Lock()
	f.nextID++
	n := Notification{
		ID:        f.nextID,
		Kind:      kind,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(f.ttl),
	}
	f.items[n.ID] = n
	f.pruneLocked(now)
	f.mu.Unlock()

	if kind.IsError() {
		slog.Warn("Notification", "kind", kind, "message", message)
	} else {
		slog.Info("Notification", "kind", kind, "message", message)
	}
}

// Active returns the notifications that have not expired, oldest first
func (f *Feed) Active() []Notification {
	now := f.timeSource.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneLocked(now)

	active := make([]Notification, 0, len(f.items))
	for _, n := range f.items {
		active = append(active, n)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active
}

// Dismiss removes a notification before it expires
func (f *Feed) Dismiss(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return false
	}
	delete(f.items, id)
	return true
}

func (f *Feed) pruneLocked(now time.Time) {
	for id, n := range f.items {
		if !now.Before(n.ExpiresAt) {
			delete(f.items, id)
		}
	}
}
