package web

import (
	"context"
	"sync"

	"github.com/zombor/photodesk/internal/auth"
	"github.com/zombor/photodesk/internal/session"
	"github.com/zombor/photodesk/internal/upload"
)

// mockSession records calls and returns canned results
type mockSession struct {
	mu sync.Mutex

	view       session.View
	startErr   error
	capture    session.CaptureView
	captureErr error
	editErr    error
	result     *upload.Result
	uploadErr  error

	starts   int
	resets   int
	logouts  int
	toggled  []int
	deleted  []int
	uploadCt context.Context
}

func (m *mockSession) Snapshot() session.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

func (m *mockSession) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.view.Captures)
}

func (m *mockSession) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr == nil {
		m.view.State = session.Scanning
	}
	return m.startErr
}

func (m *mockSession) Capture(ctx context.Context) (session.CaptureView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.captureErr != nil {
		return session.CaptureView{}, m.captureErr
	}
	m.view.Captures = append(m.view.Captures, m.capture)
	return m.capture, nil
}

func (m *mockSession) Toggle(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toggled = append(m.toggled, i)
	return m.editErr
}

func (m *mockSession) Delete(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, i)
	return m.editErr
}

func (m *mockSession) Upload(ctx context.Context) (*upload.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadCt = ctx
	return m.result, m.uploadErr
}

func (m *mockSession) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.view = session.View{State: session.Idle}
}

func (m *mockSession) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
	m.view = session.View{State: session.Idle}
}

// mockAuth logs in when the password matches
type mockAuth struct {
	mu         sync.Mutex
	password   string
	loginErr   error
	credential string
	name       string
}

func (m *mockAuth) Login(ctx context.Context, email, password string) (*auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	if password != m.password {
		return nil, auth.ErrInvalidCredentials
	}
	m.credential = "tok-" + email
	return &auth.Identity{Token: m.credential, DisplayName: m.name}, nil
}

func (m *mockAuth) Credential() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credential
}

func (m *mockAuth) DisplayName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}
