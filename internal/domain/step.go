package domain

import "time"

// StepKey is the stable identifier of a pipeline stage within a run.
type StepKey string

const (
	StepValidation      StepKey = "validation"
	StepImageGeneration StepKey = "image_generation"
	StepImageUpload     StepKey = "image_upload"
	StepVideoGeneration StepKey = "video_generation"
	StepVideoUpload     StepKey = "video_upload"
	StepFinalization    StepKey = "finalization"
)

// StepStatus enumerates step lifecycle states.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusProcessing StepStatus = "processing"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// Step is one stage of a run's pipeline. Progress is monotonically
// non-decreasing while processing; a step reaches completed only via
// processing. At most one step per run is processing at a time.
type Step struct {
	Key         StepKey
	Name        string
	Status      StepStatus
	Progress    int
	Cost        int
	ResultJSON  []byte
	ErrorReason string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// StepsForVariant returns the ordered pending step list for a new run.
func StepsForVariant(v Variant) []Step {
	switch v {
	case VariantComplete:
		return newSteps(
			StepValidation, StepImageGeneration, StepImageUpload,
			StepVideoGeneration, StepVideoUpload, StepFinalization,
		)
	case VariantImageOnly:
		return newSteps(StepValidation, StepImageGeneration, StepImageUpload)
	case VariantVideoFromImage:
		return newSteps(StepValidation, StepVideoGeneration, StepVideoUpload, StepFinalization)
	default:
		return nil
	}
}

func newSteps(keys ...StepKey) []Step {
	steps := make([]Step, 0, len(keys))
	for _, key := range keys {
		steps = append(steps, Step{
			Key:    key,
			Name:   stepDisplayNames[key],
			Status: StepStatusPending,
		})
	}
	return steps
}

var stepDisplayNames = map[StepKey]string{
	StepValidation:      "Validating prompt",
	StepImageGeneration: "Generating image",
	StepImageUpload:     "Uploading image",
	StepVideoGeneration: "Generating video",
	StepVideoUpload:     "Uploading video",
	StepFinalization:    "Finalizing",
}
