package session

import (
	"github.com/zombor/photodesk/internal/classify"
	"github.com/zombor/photodesk/internal/frame"
	"github.com/zombor/photodesk/internal/preview"
)

// OutcomeStatus is the upload state of a single capture
type OutcomeStatus string

const (
	OutcomePending   OutcomeStatus = "pending"
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the upload result of a capture. Reason is set only on failure.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// Capture is one photograph held by the session
type Capture struct {
	ID         string
	Artifact   *frame.Artifact
	Preview    preview.Handle
	IsDocument bool
	Suggestion *classify.Verdict
	Outcome    Outcome

	released bool
}

// CaptureView is a read-only copy of a Capture for callers outside the session
type CaptureView struct {
	ID         string            `json:"id"`
	Preview    string            `json:"preview"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Size       int               `json:"size"`
	IsDocument bool              `json:"is_document"`
	Suggestion *classify.Verdict `json:"suggestion,omitempty"`
	Outcome    Outcome           `json:"outcome"`
}

func (c *Capture) view() CaptureView {
	v := CaptureView{
		ID:         c.ID,
		Preview:    c.Preview.String(),
		IsDocument: c.IsDocument,
		Outcome:    c.Outcome,
	}
	if c.Artifact != nil {
		v.Width = c.Artifact.Width
		v.Height = c.Artifact.Height
		v.Size = c.Artifact.Size()
	}
	if c.Suggestion != nil {
		s := *c.Suggestion
		v.Suggestion = &s
	}
	return v
}
