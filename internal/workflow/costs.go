package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mediaforge/internal/domain"
)

// CostTable maps (step kind, configuration) to an integer credit cost. It is
// external configuration: loaded from YAML when a path is given, otherwise
// the compiled-in defaults apply.
type CostTable struct {
	Image ImageCosts `yaml:"image"`
	Video VideoCosts `yaml:"video"`
}

// ImageCosts prices image generation by quality and size.
type ImageCosts struct {
	// Quality maps quality -> size -> credits.
	Quality map[string]map[string]int `yaml:"quality"`
	Default int                       `yaml:"default"`
}

// VideoCosts prices video generation by duration and resolution, with a flat
// surcharge when audio is requested.
type VideoCosts struct {
	// PerSecond maps resolution -> credits per second.
	PerSecond        map[string]int `yaml:"per_second"`
	DefaultPerSecond int            `yaml:"default_per_second"`
	AudioSurcharge   int            `yaml:"audio_surcharge"`
}

// DefaultCostTable returns the built-in pricing.
func DefaultCostTable() *CostTable {
	return &CostTable{
		Image: ImageCosts{
			Quality: map[string]map[string]int{
				"standard": {"512x512": 5, "1024x1024": 10},
				"hd":       {"512x512": 8, "1024x1024": 16},
			},
			Default: 10,
		},
		Video: VideoCosts{
			PerSecond:        map[string]int{"720p": 2, "1080p": 3},
			DefaultPerSecond: 2,
			AudioSurcharge:   5,
		},
	}
}

// LoadCostTable reads the pricing file at path. An empty path yields the
// defaults.
func LoadCostTable(path string) (*CostTable, error) {
	if path == "" {
		return DefaultCostTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cost table: %w", err)
	}
	table := DefaultCostTable()
	if err := yaml.Unmarshal(raw, table); err != nil {
		return nil, fmt.Errorf("parse cost table: %w", err)
	}
	if table.Image.Default <= 0 || table.Video.DefaultPerSecond <= 0 {
		return nil, fmt.Errorf("cost table: defaults must be positive")
	}
	return table, nil
}

// ImageCost prices one image generation.
func (t *CostTable) ImageCost(cfg domain.ImageConfig) int {
	if sizes, ok := t.Image.Quality[cfg.Quality]; ok {
		if cost, ok := sizes[cfg.Size]; ok {
			return cost
		}
	}
	return t.Image.Default
}

// VideoCost prices one video generation.
func (t *CostTable) VideoCost(cfg domain.VideoConfig) int {
	perSecond, ok := t.Video.PerSecond[cfg.Resolution]
	if !ok {
		perSecond = t.Video.DefaultPerSecond
	}
	cost := perSecond * cfg.DurationSeconds
	if cfg.WithAudio {
		cost += t.Video.AudioSurcharge
	}
	return cost
}

// StepCost returns the credit cost of a step for the given run. Unpaid steps
// cost zero.
func (t *CostTable) StepCost(key domain.StepKey, run *domain.Run) int {
	switch key {
	case domain.StepImageGeneration:
		return t.ImageCost(run.ImageConfig)
	case domain.StepVideoGeneration:
		return t.VideoCost(run.VideoConfig)
	default:
		return 0
	}
}

// EstimatedRunCost is the pre-flight sum of all paid steps of the run.
func (t *CostTable) EstimatedRunCost(run *domain.Run) int {
	total := 0
	for _, step := range domain.StepsForVariant(run.Variant) {
		total += t.StepCost(step.Key, run)
	}
	return total
}
