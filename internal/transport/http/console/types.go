package consolehttp

import (
	"context"

	"querydeck/internal/controller"
	"querydeck/internal/query"
)

// Submitter is implemented by *controller.Controller.
type Submitter interface {
	Submit(ctx context.Context, rawInput string) (*controller.Submission, error)
	Status() controller.Status
}

// ModelSource is implemented by *catalog.Loader.
type ModelSource interface {
	Models() []query.Model
}

type submitRequest struct {
	Prompt string `json:"prompt"`
}

type submitResponse struct {
	SubmissionID string `json:"submission_id"`
	Generation   uint64 `json:"generation"`
}

type slotView struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	State   string `json:"state"`
	Text    string `json:"text"`
	Message string `json:"message"`
	Display string `json:"display"`
}

type slotsResponse struct {
	SubmissionID  string     `json:"submission_id"`
	Generation    uint64     `json:"generation"`
	SubmitEnabled bool       `json:"submit_enabled"`
	Done          bool       `json:"done"`
	Slots         []slotView `json:"slots"`
}

type modelView struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Label    string `json:"label,omitempty"`
}
