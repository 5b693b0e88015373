package domain

import "time"

// Variant enumerates the supported pipeline shapes.
type Variant string

const (
	VariantComplete       Variant = "complete"
	VariantImageOnly      Variant = "image_only"
	VariantVideoFromImage Variant = "video_from_image"
)

// Valid reports whether v is one of the known pipeline variants.
func (v Variant) Valid() bool {
	switch v {
	case VariantComplete, VariantImageOnly, VariantVideoFromImage:
		return true
	default:
		return false
	}
}

// RunStatus enumerates run lifecycle states. Transitions are monotonic:
// queued -> running -> {completed | failed | cancelled}.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// ImageConfig carries the image-generation knobs of a run.
type ImageConfig struct {
	Style   string `json:"style,omitempty"`
	Quality string `json:"quality,omitempty"`
	Size    string `json:"size,omitempty"`
}

// VideoConfig carries the video-generation knobs of a run.
type VideoConfig struct {
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	WithAudio       bool   `json:"with_audio,omitempty"`
}

// Run is one execution of the generation pipeline. It is mutated exclusively
// by the workflow coordinator and retained after completion for history;
// terminal runs are never hard-deleted.
type Run struct {
	ID            string
	UserID        string
	Variant       Variant
	ImagePrompt   string
	VideoPrompt   string
	SourceImageID string
	ImageConfig   ImageConfig
	VideoConfig   VideoConfig
	Status        RunStatus
	TotalCost     int
	ErrorMessage  string
	ProjectID     string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}
