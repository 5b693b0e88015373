// Package moderation wraps the external content moderation service; only its
// allow/deny verdict is consumed.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Verdict is the moderation decision for one prompt.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Gate is implemented by moderation backends.
type Gate interface {
	Check(ctx context.Context, prompt string) (Verdict, error)
}

// HTTPGate calls a remote moderation endpoint.
type HTTPGate struct {
	url        string
	httpClient *http.Client
}

// NewHTTPGate builds a gate posting prompts to the given URL.
func NewHTTPGate(url string, client *http.Client) (*HTTPGate, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("moderation: url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPGate{url: url, httpClient: client}, nil
}

type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Check submits the prompt and returns the service's verdict.
func (g *HTTPGate) Check(ctx context.Context, prompt string) (Verdict, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("moderation: service returned status %d", resp.StatusCode)
	}
	var decoded checkResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Verdict{}, fmt.Errorf("moderation: decode response: %w", err)
	}
	return Verdict{Allowed: decoded.Allowed, Reason: decoded.Reason}, nil
}

// AllowAll is the gate used when no moderation service is configured.
type AllowAll struct{}

// Check approves every prompt.
func (AllowAll) Check(ctx context.Context, prompt string) (Verdict, error) {
	return Verdict{Allowed: true}, nil
}

var (
	_ Gate = (*HTTPGate)(nil)
	_ Gate = AllowAll{}
)
