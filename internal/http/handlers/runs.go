package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediaforge/internal/domain"
	"mediaforge/internal/middleware"
	"mediaforge/internal/workflow"
)

type imageConfigPayload struct {
	Style   string `json:"style" validate:"max=64"`
	Quality string `json:"quality" validate:"omitempty,oneof=standard hd"`
	Size    string `json:"size" validate:"omitempty,oneof=512x512 1024x1024"`
}

type videoConfigPayload struct {
	DurationSeconds int    `json:"duration_seconds" validate:"omitempty,min=1,max=60"`
	Resolution      string `json:"resolution" validate:"omitempty,oneof=720p 1080p"`
	WithAudio       bool   `json:"with_audio"`
}

type startRunRequest struct {
	Variant       string             `json:"variant" validate:"required,oneof=complete image_only video_from_image"`
	ImagePrompt   string             `json:"image_prompt" validate:"max=2000"`
	VideoPrompt   string             `json:"video_prompt" validate:"max=2000"`
	SourceImageID string             `json:"source_image_id" validate:"omitempty,uuid"`
	ProjectID     string             `json:"project_id" validate:"max=128"`
	ImageConfig   imageConfigPayload `json:"image_config"`
	VideoConfig   videoConfigPayload `json:"video_config"`
}

type startRunResponse struct {
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	EstimatedCost int    `json:"estimated_cost"`
}

// StartRun accepts a run request, validates it and begins asynchronous
// execution.
func (a *App) StartRun(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	applyConfigDefaults(&req)

	result, err := a.Runs.Start(r.Context(), workflow.StartRequest{
		UserID:        userID,
		Variant:       domain.Variant(req.Variant),
		ImagePrompt:   req.ImagePrompt,
		VideoPrompt:   req.VideoPrompt,
		SourceImageID: req.SourceImageID,
		ProjectID:     req.ProjectID,
		ImageConfig: domain.ImageConfig{
			Style:   req.ImageConfig.Style,
			Quality: req.ImageConfig.Quality,
			Size:    req.ImageConfig.Size,
		},
		VideoConfig: domain.VideoConfig{
			DurationSeconds: req.VideoConfig.DurationSeconds,
			Resolution:      req.VideoConfig.Resolution,
			WithAudio:       req.VideoConfig.WithAudio,
		},
	})
	if err != nil {
		a.startError(w, err)
		return
	}

	a.json(w, http.StatusAccepted, startRunResponse{
		RunID:         result.RunID,
		Status:        string(result.Status),
		EstimatedCost: result.EstimatedCost,
	})
}

func (a *App) startError(w http.ResponseWriter, err error) {
	var short *domain.InsufficientCreditsError
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration):
		a.error(w, http.StatusBadRequest, "invalid_configuration", err.Error())
	case errors.As(err, &short):
		a.json(w, http.StatusPaymentRequired, map[string]any{
			"error":    "insufficient_credits",
			"message":  short.Error(),
			"shortage": short.Shortage(),
		})
	case errors.Is(err, domain.ErrTooManyActiveRuns):
		a.error(w, http.StatusTooManyRequests, "too_many_active_runs", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: start run failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start run")
	}
}

type cancelRunResponse struct {
	RunID    string `json:"run_id"`
	Status   string `json:"status"`
	Refunded int    `json:"refunded"`
}

// CancelRun requests cooperative cancellation and reports the refunded
// amount.
func (a *App) CancelRun(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	runID := chi.URLParam(r, "run_id")

	refunded, err := a.Runs.Cancel(r.Context(), runID, userID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "run not found")
		case errors.Is(err, domain.ErrRunTerminal):
			a.error(w, http.StatusConflict, "run_terminal", "run already finished")
		default:
			a.Logger.Error().Err(err).Str("run_id", runID).Msg("handlers: cancel run failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to cancel run")
		}
		return
	}

	a.json(w, http.StatusOK, cancelRunResponse{RunID: runID, Status: string(domain.RunStatusCancelled), Refunded: refunded})
}

type stepResponse struct {
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Cost        int        `json:"cost,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type runResponse struct {
	ID          string         `json:"id"`
	Variant     string         `json:"variant"`
	Status      string         `json:"status"`
	TotalCost   int            `json:"total_cost"`
	Error       string         `json:"error,omitempty"`
	ProjectID   string         `json:"project_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Steps       []stepResponse `json:"steps"`
}

// GetRun serves the run and step snapshot as polling fallback for clients
// without a streaming connection.
func (a *App) GetRun(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	runID := chi.URLParam(r, "run_id")

	snapshot, err := a.Runs.Status(r.Context(), runID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		a.Logger.Error().Err(err).Str("run_id", runID).Msg("handlers: get run failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load run")
		return
	}

	a.json(w, http.StatusOK, runView(snapshot))
}

// RunAssets lists the assets a run has produced so far.
func (a *App) RunAssets(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	runID := chi.URLParam(r, "run_id")

	assets, err := a.Runs.Assets(r.Context(), runID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		a.Logger.Error().Err(err).Str("run_id", runID).Msg("handlers: list assets failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list assets")
		return
	}

	items := make([]map[string]any, 0, len(assets))
	for _, asset := range assets {
		item := map[string]any{
			"id":          asset.ID,
			"kind":        asset.Kind,
			"status":      asset.Status,
			"storage_key": asset.StorageKey,
			"provider":    asset.Provider,
			"created_at":  asset.CreatedAt,
		}
		if asset.Kind == domain.AssetKindImage {
			item["width"] = asset.Width
			item["height"] = asset.Height
		} else {
			item["duration_seconds"] = asset.DurationSeconds
			if asset.SourceAssetID != "" {
				item["source_asset_id"] = asset.SourceAssetID
			}
		}
		items = append(items, item)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func runView(s *workflow.Snapshot) runResponse {
	steps := make([]stepResponse, 0, len(s.Steps))
	for _, st := range s.Steps {
		view := stepResponse{
			Key:         string(st.Key),
			Name:        st.Name,
			Status:      string(st.Status),
			Progress:    st.Progress,
			Cost:        st.Cost,
			Error:       st.ErrorReason,
			StartedAt:   st.StartedAt,
			CompletedAt: st.CompletedAt,
		}
		if len(st.ResultJSON) > 0 {
			view.Result = json.RawMessage(st.ResultJSON)
		}
		steps = append(steps, view)
	}
	return runResponse{
		ID:          s.Run.ID,
		Variant:     string(s.Run.Variant),
		Status:      string(s.Run.Status),
		TotalCost:   s.Run.TotalCost,
		Error:       s.Run.ErrorMessage,
		ProjectID:   s.Run.ProjectID,
		CreatedAt:   s.Run.CreatedAt,
		StartedAt:   s.Run.StartedAt,
		CompletedAt: s.Run.CompletedAt,
		Steps:       steps,
	}
}

func applyConfigDefaults(req *startRunRequest) {
	if req.ImageConfig.Quality == "" {
		req.ImageConfig.Quality = "standard"
	}
	if req.ImageConfig.Size == "" {
		req.ImageConfig.Size = "1024x1024"
	}
	if req.VideoConfig.DurationSeconds == 0 {
		req.VideoConfig.DurationSeconds = 8
	}
	if req.VideoConfig.Resolution == "" {
		req.VideoConfig.Resolution = "720p"
	}
}
