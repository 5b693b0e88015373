package image

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

// Options configures the HTTP image provider client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// HTTPGenerator calls a remote image generation API.
type HTTPGenerator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewHTTPGenerator builds a client for the provider at opts.BaseURL.
func NewHTTPGenerator(opts Options) (*HTTPGenerator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("image: base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPGenerator{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		httpClient: client,
		logger:     opts.Logger,
	}, nil
}

type generateBody struct {
	Prompt    string `json:"prompt"`
	Style     string `json:"style,omitempty"`
	Quality   string `json:"quality,omitempty"`
	Size      string `json:"size,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type generateResponse struct {
	URL    string `json:"url"`
	Data   string `json:"b64_data"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Error  string `json:"error"`
}

// Generate performs one synchronous generation call.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (*GeneratedImage, error) {
	payload, err := json.Marshal(generateBody{
		Prompt:    req.Prompt,
		Style:     req.Style,
		Quality:   req.Quality,
		Size:      req.Size,
		RequestID: req.RequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("image: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("image: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image: provider call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("image: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image: provider returned status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("image: decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("image: provider error: %s", decoded.Error)
	}

	result := &GeneratedImage{
		URL:    decoded.URL,
		Format: decoded.Format,
		Width:  decoded.Width,
		Height: decoded.Height,
	}
	if decoded.Data != "" {
		raw, err := base64.StdEncoding.DecodeString(decoded.Data)
		if err != nil {
			return nil, fmt.Errorf("image: decode asset data: %w", err)
		}
		result.Data = raw
	}
	if len(result.Data) == 0 && result.URL == "" {
		return nil, fmt.Errorf("image: provider returned neither data nor url")
	}
	if g.logger != nil {
		g.logger.Debug().Str("request_id", req.RequestID).Int("bytes", len(result.Data)).Msg("image: generated")
	}
	return result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ Generator = (*HTTPGenerator)(nil)
