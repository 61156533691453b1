// Package render runs render jobs one at a time, in submission order, and
// tracks their lifecycle.
package render

import (
	"encoding/json"
	"strings"
	"time"

	"renderhub/internal/artifact"
	"renderhub/internal/pkg/validate"
)

// DefaultTitleText is used when a job is submitted without a title.
const DefaultTitleText = "Hello, world!"

// JobData is the immutable input of a render job.
type JobData struct {
	TitleText     string `json:"titleText"`
	CompositionID string `json:"compositionId"`
	ServeURL      string `json:"serveUrl"`
}

// Normalize applies defaults and validates d.
func (d JobData) Normalize() (JobData, error) {
	d.CompositionID = strings.TrimSpace(d.CompositionID)
	d.ServeURL = strings.TrimSpace(d.ServeURL)
	if strings.TrimSpace(d.TitleText) == "" {
		d.TitleText = DefaultTitleText
	}
	if err := validate.Required("compositionId", d.CompositionID); err != nil {
		return JobData{}, err
	}
	if err := validate.URL("serveUrl", d.ServeURL); err != nil {
		return JobData{}, err
	}
	return d, nil
}

// StatusName is the wire name of a status variant.
type StatusName string

const (
	StatusQueued     StatusName = "queued"
	StatusInProgress StatusName = "in-progress"
	StatusCompleted  StatusName = "completed"
	StatusFailed     StatusName = "failed"
	StatusCancelled  StatusName = "cancelled"
)

// ParseStatusName accepts the wire names, case-insensitively.
func ParseStatusName(s string) (StatusName, bool) {
	switch n := StatusName(strings.ToLower(strings.TrimSpace(s))); n {
	case StatusQueued, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return n, true
	}
	return "", false
}

// Status is one of Queued, InProgress, Completed, Failed or Cancelled.
type Status interface {
	Name() StatusName
	// Terminal reports whether the job can no longer change.
	Terminal() bool
	status()
}

type Queued struct{}

type InProgress struct {
	Progress float64
}

type Completed struct {
	VideoURL string
	Upload   *artifact.Result
}

type Failed struct {
	Error string
}

// Cancelled is only recorded when cancelled queued jobs are retained.
type Cancelled struct{}

func (Queued) Name() StatusName     { return StatusQueued }
func (InProgress) Name() StatusName { return StatusInProgress }
func (Completed) Name() StatusName  { return StatusCompleted }
func (Failed) Name() StatusName     { return StatusFailed }
func (Cancelled) Name() StatusName  { return StatusCancelled }

func (Queued) Terminal() bool     { return false }
func (InProgress) Terminal() bool { return false }
func (Completed) Terminal() bool  { return true }
func (Failed) Terminal() bool     { return true }
func (Cancelled) Terminal() bool  { return true }

func (Queued) status()     {}
func (InProgress) status() {}
func (Completed) status()  {}
func (Failed) status()     {}
func (Cancelled) status()  {}

// Job is a point-in-time copy of a job record.
type Job struct {
	ID         string
	Data       JobData
	Status     Status
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

type jobJSON struct {
	ID           string           `json:"id"`
	Status       StatusName       `json:"status"`
	Data         JobData          `json:"data"`
	Progress     *float64         `json:"progress,omitempty"`
	VideoURL     string           `json:"videoUrl,omitempty"`
	UploadResult *artifact.Result `json:"uploadResult,omitempty"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	FinishedAt   *time.Time       `json:"finishedAt,omitempty"`
}

// MarshalJSON flattens the status variant into the job object.
func (j Job) MarshalJSON() ([]byte, error) {
	out := jobJSON{
		ID:         j.ID,
		Status:     j.Status.Name(),
		Data:       j.Data,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
	switch s := j.Status.(type) {
	case InProgress:
		p := s.Progress
		out.Progress = &p
	case Completed:
		out.VideoURL = s.VideoURL
		out.UploadResult = s.Upload
	case Failed:
		out.Error = s.Error
	}
	return json.Marshal(out)
}
