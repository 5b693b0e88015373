package progress

import (
	"time"

	"mediaforge/internal/domain"
)

// EventType enumerates the event union published for a run.
type EventType string

const (
	EventStatus     EventType = "status"
	EventStepUpdate EventType = "step-update"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
	EventHeartbeat  EventType = "heartbeat"
)

// StepView is the externally visible snapshot of one step.
type StepView struct {
	Key         domain.StepKey    `json:"key"`
	Name        string            `json:"name"`
	Status      domain.StepStatus `json:"status"`
	Progress    int               `json:"progress"`
	Cost        int               `json:"cost,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Event is one update published for a run. Seq is assigned by the hub and is
// strictly increasing per run, so observers can detect the ordering
// guarantee: a complete event never precedes an earlier step-update.
type Event struct {
	Type      EventType        `json:"type"`
	RunID     string           `json:"run_id"`
	Seq       uint64           `json:"seq"`
	Status    domain.RunStatus `json:"status,omitempty"`
	Step      *StepView        `json:"step,omitempty"`
	Steps     []StepView       `json:"steps,omitempty"`
	TotalCost int              `json:"total_cost,omitempty"`
	Refunded  int              `json:"refunded,omitempty"`
	Error     string           `json:"error,omitempty"`
	At        time.Time        `json:"at"`
}

// StepViewOf converts a domain step into its published form.
func StepViewOf(s domain.Step) StepView {
	return StepView{
		Key:         s.Key,
		Name:        s.Name,
		Status:      s.Status,
		Progress:    s.Progress,
		Cost:        s.Cost,
		Error:       s.ErrorReason,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
}

// StepViewsOf converts a full step list.
func StepViewsOf(steps []domain.Step) []StepView {
	views := make([]StepView, 0, len(steps))
	for _, s := range steps {
		views = append(views, StepViewOf(s))
	}
	return views
}
