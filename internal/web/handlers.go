package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/zombor/photodesk/internal/auth"
	"github.com/zombor/photodesk/internal/camera"
	"github.com/zombor/photodesk/internal/frame"
	"github.com/zombor/photodesk/internal/notify"
	"github.com/zombor/photodesk/internal/preview"
	"github.com/zombor/photodesk/internal/session"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON {"error": message} response with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// statusFor maps session and collaborator errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrUploadInProgress),
		errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNotIdentified),
		errors.Is(err, session.ErrReset):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoCaptures):
		return http.StatusBadRequest
	case errors.Is(err, frame.ErrCaptureUnavailable),
		errors.Is(err, camera.ErrUnavailable),
		errors.Is(err, camera.ErrNoFrame):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	LoggedIn bool   `json:"logged_in"`
	Name     string `json:"name,omitempty"`
}

// handleLogin exchanges operator credentials for a backend token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		jsonError(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	identity, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Warn("Login failed", "email", req.Email, "error", err)
		s.notifications.Notify(notify.KindAuthError, "Login failed: "+err.Error())
		if errors.Is(err, auth.ErrInvalidCredentials) {
			jsonError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		jsonError(w, "Login failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{LoggedIn: true, Name: identity.DisplayName})
}

// handleLogout resets the session and wipes the stored credential
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.session.Logout(context.WithoutCancel(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleMe reports whether an operator is logged in
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if s.auth.Credential() == "" {
		writeJSON(w, http.StatusOK, meResponse{})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{LoggedIn: true, Name: s.auth.DisplayName()})
}

// handleGetSession returns a snapshot of the session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleStart begins scanning for a subject QR code
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(r.Context()); err != nil {
		slog.Error("Error starting session", "error", err)
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, s.session.Snapshot())
}

// handleReset returns the session to idle
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.session.Reset()
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleCapture grabs the current frame into the session
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	capture, err := s.session.Capture(r.Context())
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, capture)
}

// handleToggle flips the document flag of a capture
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.withIndex(w, r, s.session.Toggle)
}

// handleDelete removes a capture
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.withIndex(w, r, s.session.Delete)
}

// withIndex validates the {index} path value against the live session
// and applies fn while holding the action lock
func (s *Server) withIndex(w http.ResponseWriter, r *http.Request, fn func(int) error) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		jsonError(w, "Invalid capture index", http.StatusBadRequest)
		return
	}

	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if index < 0 || index >= s.session.Len() {
		jsonError(w, "Capture not found", http.StatusNotFound)
		return
	}
	if err := fn(index); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type uploadResponse struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    []int        `json:"failed"`
	Error     string       `json:"error,omitempty"`
	Session   session.View `json:"session"`
}

// handleUpload sends every capture and reports the aggregate outcome.
// The batch is detached from request cancellation.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	result, err := s.session.Upload(context.WithoutCancel(r.Context()))
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	resp := uploadResponse{
		Total:     result.Total,
		Succeeded: result.Succeeded(),
		Failed:    result.FailedIndices(),
		Session:   s.session.Snapshot(),
	}
	if err := result.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListNotifications returns the active notifications
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	active := s.notifications.Active()
	if active == nil {
		active = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, active)
}

// handleDismissNotification removes a notification before it expires
func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		corsError(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}
	if !s.notifications.Dismiss(id) {
		corsError(w, "Notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreview serves the encoded bytes behind a live preview handle
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.previews.Open(preview.Handle(r.PathValue("handle")))
	if err != nil {
		if !errors.Is(err, preview.ErrNotFound) && !errors.Is(err, preview.ErrReleased) {
			slog.Error("Error opening preview", "handle", r.PathValue("handle"), "error", err)
		}
		corsError(w, "Preview not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}
