package domain

import "time"

// AssetKind enumerates asset types.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// AssetStatus enumerates asset readiness.
type AssetStatus string

const (
	AssetStatusReady  AssetStatus = "ready"
	AssetStatusFailed AssetStatus = "failed"
)

// Asset represents a generated artifact produced by a run. A video asset may
// reference the image asset that seeded it via SourceAssetID.
type Asset struct {
	ID              string
	UserID          string
	RunID           string
	Kind            AssetKind
	Status          AssetStatus
	StorageKey      string
	Provider        string
	Prompt          string
	Width           int
	Height          int
	DurationSeconds int
	SourceAssetID   string
	CreatedAt       time.Time
}
