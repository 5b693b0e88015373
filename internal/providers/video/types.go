// Package video defines the asynchronous video generation provider contract:
// submit a job, poll until terminal, download the output.
package video

import (
	"context"
	"errors"
)

// JobStatus represents the provider-side status of a generation job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ErrCancelUnsupported is returned by providers that cannot cancel a
// submitted job. Callers abandon the job instead of treating this as a
// failure.
var ErrCancelUnsupported = errors.New("video: provider does not support cancellation")

// GenerateRequest carries everything needed to submit a video job.
type GenerateRequest struct {
	Prompt          string
	SourceImageURL  string
	DurationSeconds int
	Resolution      string
	WithAudio       bool
	RequestID       string
}

// PollResult is one observation of a submitted job.
type PollResult struct {
	Status   JobStatus
	VideoURL string
	Data     []byte
	Error    string
}

// Generator is implemented by asynchronous video providers.
type Generator interface {
	// Submit sends the generation job and returns the provider job id.
	Submit(ctx context.Context, req GenerateRequest) (string, error)

	// Poll checks the job's current status.
	Poll(ctx context.Context, jobID string) (PollResult, error)

	// Cancel best-effort cancels the job upstream. Providers without a
	// cancel endpoint return ErrCancelUnsupported.
	Cancel(ctx context.Context, jobID string) error

	// Download fetches the produced video when the poll result carries a
	// URL instead of inline data.
	Download(ctx context.Context, outputURL string) ([]byte, error)
}
