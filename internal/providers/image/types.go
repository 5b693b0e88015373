// Package image defines the synchronous image generation provider contract.
package image

import "context"

// GenerateRequest carries everything an image provider needs for one call.
type GenerateRequest struct {
	Prompt    string
	Style     string
	Quality   string
	Size      string
	RequestID string
}

// GeneratedImage is the normalized provider result prior to persistence.
type GeneratedImage struct {
	Data   []byte
	URL    string
	Format string
	Width  int
	Height int
}

// Generator is implemented by synchronous image providers: one request, one
// response, bounded by the caller's context deadline.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GeneratedImage, error)
}
