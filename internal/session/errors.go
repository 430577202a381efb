package session

import "errors"

var (
	// ErrSessionActive is returned by Start while a subject is attached; Reset first
	ErrSessionActive = errors.New("a subject is already identified, reset the session first")
	// ErrNotIdentified is returned for capture and edit actions before a subject is scanned
	ErrNotIdentified = errors.New("no subject identified")
	// ErrNoCaptures is returned by Upload when there is nothing to send
	ErrNoCaptures = errors.New("no captures to upload")
	// ErrUploadInProgress is returned while a batch is being uploaded
	ErrUploadInProgress = errors.New("upload already in progress")
	// ErrReset is returned when the session was reset while an operation was in flight
	ErrReset = errors.New("session was reset")
)
