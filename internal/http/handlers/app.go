package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
	"mediaforge/internal/progress"
	"mediaforge/internal/workflow"
)

// RunService is the coordinator surface the HTTP layer depends on.
type RunService interface {
	Start(ctx context.Context, req workflow.StartRequest) (*workflow.StartResult, error)
	Cancel(ctx context.Context, runID, userID string) (int, error)
	Status(ctx context.Context, runID, userID string) (*workflow.Snapshot, error)
	Assets(ctx context.Context, runID, userID string) ([]domain.Asset, error)
}

// App bundles handler dependencies.
type App struct {
	Runs      RunService
	Hub       *progress.Hub
	Logger    infra.Logger
	Validate  *validator.Validate
	Heartbeat time.Duration
}

// NewApp constructs the handler container.
func NewApp(runs RunService, hub *progress.Hub, logger infra.Logger, heartbeat time.Duration) *App {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &App{
		Runs:      runs,
		Hub:       hub,
		Logger:    logger,
		Validate:  validator.New(validator.WithRequiredStructEnabled()),
		Heartbeat: heartbeat,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
