package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"mediaforge/internal/domain"
)

func TestDefaultCostTablePricing(t *testing.T) {
	table := DefaultCostTable()

	imageCases := []struct {
		cfg  domain.ImageConfig
		want int
	}{
		{domain.ImageConfig{Quality: "standard", Size: "512x512"}, 5},
		{domain.ImageConfig{Quality: "standard", Size: "1024x1024"}, 10},
		{domain.ImageConfig{Quality: "hd", Size: "1024x1024"}, 16},
		{domain.ImageConfig{Quality: "ultra", Size: "4096x4096"}, 10}, // unknown falls back to default
	}
	for _, tc := range imageCases {
		if got := table.ImageCost(tc.cfg); got != tc.want {
			t.Errorf("ImageCost(%+v) = %d, want %d", tc.cfg, got, tc.want)
		}
	}

	videoCases := []struct {
		cfg  domain.VideoConfig
		want int
	}{
		{domain.VideoConfig{DurationSeconds: 8, Resolution: "720p"}, 16},
		{domain.VideoConfig{DurationSeconds: 4, Resolution: "1080p"}, 12},
		{domain.VideoConfig{DurationSeconds: 8, Resolution: "720p", WithAudio: true}, 21},
		{domain.VideoConfig{DurationSeconds: 10, Resolution: "4k"}, 20}, // unknown resolution uses default rate
	}
	for _, tc := range videoCases {
		if got := table.VideoCost(tc.cfg); got != tc.want {
			t.Errorf("VideoCost(%+v) = %d, want %d", tc.cfg, got, tc.want)
		}
	}
}

func TestEstimatedRunCostPerVariant(t *testing.T) {
	table := DefaultCostTable()
	base := domain.Run{
		ImageConfig: domain.ImageConfig{Quality: "standard", Size: "1024x1024"},
		VideoConfig: domain.VideoConfig{DurationSeconds: 8, Resolution: "720p"},
	}

	cases := []struct {
		variant domain.Variant
		want    int
	}{
		{domain.VariantComplete, 26},
		{domain.VariantImageOnly, 10},
		{domain.VariantVideoFromImage, 16},
	}
	for _, tc := range cases {
		run := base
		run.Variant = tc.variant
		if got := table.EstimatedRunCost(&run); got != tc.want {
			t.Errorf("EstimatedRunCost(%s) = %d, want %d", tc.variant, got, tc.want)
		}
	}
}

func TestStepCostOnlyChargesPaidSteps(t *testing.T) {
	table := DefaultCostTable()
	run := &domain.Run{
		ImageConfig: domain.ImageConfig{Quality: "hd", Size: "512x512"},
		VideoConfig: domain.VideoConfig{DurationSeconds: 5, Resolution: "1080p"},
	}

	if got := table.StepCost(domain.StepImageGeneration, run); got != 8 {
		t.Errorf("image step cost = %d, want 8", got)
	}
	if got := table.StepCost(domain.StepVideoGeneration, run); got != 15 {
		t.Errorf("video step cost = %d, want 15", got)
	}
	for _, key := range []domain.StepKey{domain.StepValidation, domain.StepImageUpload, domain.StepVideoUpload, domain.StepFinalization} {
		if got := table.StepCost(key, run); got != 0 {
			t.Errorf("step %s cost = %d, want 0", key, got)
		}
	}
}

func TestLoadCostTableOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.yaml")
	raw := `
image:
  quality:
    standard:
      "512x512": 3
  default: 7
video:
  per_second:
    "720p": 1
  default_per_second: 4
  audio_surcharge: 2
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write cost file: %v", err)
	}

	table, err := LoadCostTable(path)
	if err != nil {
		t.Fatalf("LoadCostTable: %v", err)
	}
	if got := table.ImageCost(domain.ImageConfig{Quality: "standard", Size: "512x512"}); got != 3 {
		t.Errorf("overridden image cost = %d, want 3", got)
	}
	if got := table.ImageCost(domain.ImageConfig{Quality: "ultra", Size: "1024x1024"}); got != 7 {
		t.Errorf("fallback image cost = %d, want 7", got)
	}
	if got := table.VideoCost(domain.VideoConfig{DurationSeconds: 3, Resolution: "720p", WithAudio: true}); got != 5 {
		t.Errorf("overridden video cost = %d, want 5", got)
	}
}

func TestLoadCostTableMissingFile(t *testing.T) {
	if _, err := LoadCostTable(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadCostTableEmptyPathUsesDefaults(t *testing.T) {
	table, err := LoadCostTable("")
	if err != nil {
		t.Fatalf("LoadCostTable: %v", err)
	}
	if got := table.ImageCost(domain.ImageConfig{Quality: "standard", Size: "1024x1024"}); got != 10 {
		t.Errorf("default image cost = %d, want 10", got)
	}
}
