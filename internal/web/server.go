package web

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zombor/photodesk/internal/auth"
	"github.com/zombor/photodesk/internal/notify"
	"github.com/zombor/photodesk/internal/preview"
	"github.com/zombor/photodesk/internal/session"
	"github.com/zombor/photodesk/internal/upload"
)

// Session is the capture session driven by the API
type Session interface {
	Snapshot() session.View
	Len() int
	Start(ctx context.Context) error
	Capture(ctx context.Context) (session.CaptureView, error)
	Toggle(i int) error
	Delete(i int) error
	Upload(ctx context.Context) (*upload.Result, error)
	Reset()
	Logout(ctx context.Context)
}

// Authenticator logs the operator in and exposes the stored identity
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.Identity, error)
	Credential() string
	DisplayName() string
}

// PreviewSource opens preview bytes by handle
type PreviewSource interface {
	Open(h preview.Handle) ([]byte, string, error)
}

// Notifications is the transient notification feed
type Notifications interface {
	notify.Notifier
	Active() []notify.Notification
	Dismiss(id uint64) bool
}

// Server handles HTTP requests for the capture session
type Server struct {
	session       Session
	auth          Authenticator
	previews      PreviewSource
	notifications Notifications
	basicAuth     BasicAuth
	mux           *http.ServeMux

	// actionMu serializes index-addressed edits with their bounds check
	actionMu sync.Mutex
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(sess Session, authn Authenticator, previews PreviewSource, notifications Notifications, basicAuth BasicAuth) *Server {
	return NewServerWithMux(sess, authn, previews, notifications, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(sess Session, authn Authenticator, previews PreviewSource, notifications Notifications, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		session:       sess,
		auth:          authn,
		previews:      previews,
		notifications: notifications,
		basicAuth:     basicAuth,
		mux:           mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth guards a route with the optional basic auth
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="photodesk"`)
			corsError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// requireLogin rejects session routes until an operator has logged in
func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if s.auth.Credential() == "" {
			jsonError(w, "Not logged in", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Auth
	s.mux.HandleFunc("POST /api/auth/login", s.requireAuth(s.handleLogin))
	s.mux.HandleFunc("POST /api/auth/logout", s.requireAuth(s.handleLogout))
	s.mux.HandleFunc("GET /api/auth/me", s.requireAuth(s.handleMe))

	// Session
	s.mux.HandleFunc("GET /api/session", s.requireLogin(s.handleGetSession))
	s.mux.HandleFunc("POST /api/session/start", s.requireLogin(s.handleStart))
	s.mux.HandleFunc("POST /api/session/reset", s.requireLogin(s.handleReset))
	s.mux.HandleFunc("POST /api/session/captures/{index}/toggle", s.requireLogin(s.handleToggle))
	s.mux.HandleFunc("DELETE /api/session/captures/{index}", s.requireLogin(s.handleDelete))
	s.mux.HandleFunc("POST /api/session/captures", s.requireLogin(s.handleCapture))
	s.mux.HandleFunc("POST /api/session/upload", s.requireLogin(s.handleUpload))

	// Notifications
	s.mux.HandleFunc("DELETE /api/notifications/{id}", s.requireAuth(s.handleDismissNotification))
	s.mux.HandleFunc("GET /api/notifications", s.requireAuth(s.handleListNotifications))

	// Previews
	s.mux.HandleFunc("GET /previews/{handle}", s.requireLogin(s.handlePreview))
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
