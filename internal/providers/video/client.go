package video

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediaforge/internal/infra"
)

// Options configures the HTTP video provider client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *infra.Logger

	// SupportsCancel is false for providers without a cancel endpoint.
	SupportsCancel bool
}

// HTTPGenerator calls a remote submit/poll style video generation API.
type HTTPGenerator struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	logger         *infra.Logger
	supportsCancel bool
}

// NewHTTPGenerator builds a client for the provider at opts.BaseURL.
func NewHTTPGenerator(opts Options) (*HTTPGenerator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("video: base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPGenerator{
		baseURL:        baseURL,
		apiKey:         opts.APIKey,
		httpClient:     client,
		logger:         opts.Logger,
		supportsCancel: opts.SupportsCancel,
	}, nil
}

type submitBody struct {
	Prompt          string `json:"prompt"`
	SourceImageURL  string `json:"source_image_url,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	Resolution      string `json:"resolution"`
	WithAudio       bool   `json:"with_audio"`
	RequestID       string `json:"request_id,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

type pollResponse struct {
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Data     string `json:"b64_data"`
	Error    string `json:"error"`
}

// Submit sends the generation job and returns the provider job id.
func (g *HTTPGenerator) Submit(ctx context.Context, req GenerateRequest) (string, error) {
	var decoded submitResponse
	err := g.call(ctx, http.MethodPost, "/v1/videos/generations", submitBody{
		Prompt:          req.Prompt,
		SourceImageURL:  req.SourceImageURL,
		DurationSeconds: req.DurationSeconds,
		Resolution:      req.Resolution,
		WithAudio:       req.WithAudio,
		RequestID:       req.RequestID,
	}, &decoded)
	if err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("video: provider error: %s", decoded.Error)
	}
	if decoded.JobID == "" {
		return "", fmt.Errorf("video: provider returned empty job id")
	}
	if g.logger != nil {
		g.logger.Debug().Str("job_id", decoded.JobID).Str("request_id", req.RequestID).Msg("video: job submitted")
	}
	return decoded.JobID, nil
}

// Poll checks the job's current status.
func (g *HTTPGenerator) Poll(ctx context.Context, jobID string) (PollResult, error) {
	var decoded pollResponse
	if err := g.call(ctx, http.MethodGet, "/v1/videos/generations/"+jobID, nil, &decoded); err != nil {
		return PollResult{}, err
	}

	result := PollResult{
		Status:   normalizeStatus(decoded.Status),
		VideoURL: decoded.VideoURL,
		Error:    decoded.Error,
	}
	if decoded.Data != "" {
		raw, err := base64.StdEncoding.DecodeString(decoded.Data)
		if err != nil {
			return PollResult{}, fmt.Errorf("video: decode asset data: %w", err)
		}
		result.Data = raw
	}
	return result, nil
}

// Cancel best-effort cancels the job upstream.
func (g *HTTPGenerator) Cancel(ctx context.Context, jobID string) error {
	if !g.supportsCancel {
		return ErrCancelUnsupported
	}
	return g.call(ctx, http.MethodPost, "/v1/videos/generations/"+jobID+"/cancel", nil, &struct{}{})
}

// Download fetches the produced video from its output URL.
func (g *HTTPGenerator) Download(ctx context.Context, outputURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return nil, fmt.Errorf("video: build download request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video: download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 512<<20))
	if err != nil {
		return nil, fmt.Errorf("video: read download: %w", err)
	}
	return data, nil
}

func (g *HTTPGenerator) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("video: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("video: provider call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("video: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("video: provider returned status %d: %s", resp.StatusCode, truncate(raw, 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("video: decode response: %w", err)
	}
	return nil
}

func normalizeStatus(s string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "submitted":
		return StatusPending
	case "queued", "in_queue":
		return StatusQueued
	case "running", "processing", "in_progress":
		return StatusRunning
	case "completed", "succeeded", "success":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusRunning
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Generator = (*HTTPGenerator)(nil)
