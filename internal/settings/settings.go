// Package settings holds the generation configuration the request builder
// reads when an exchange triggers image generation: LoRA selection, step
// count, output dimensions, and reference-image conditioning.
//
// A single Settings value is owned by the session controller and mutated only
// synchronously from settings-panel controls, so no locking is needed.
package settings

import "errors"

const (
	// DefaultSteps is the default number of inference steps.
	DefaultSteps = 4
	// DefaultWidth is the default output width in pixels.
	DefaultWidth = 1024
	// DefaultHeight is the default output height in pixels.
	DefaultHeight = 1024
	// DefaultIPAdapterScale is the default reference-image conditioning strength.
	DefaultIPAdapterScale = 0.5

	// Validation constraints, matching what the backend enforces.
	MinSteps        = 1
	MaxSteps        = 100
	MinDimension    = 64
	MaxDimension    = 2048
	DimensionStep   = 64
	MinAdapterScale = 0.0
	MaxAdapterScale = 1.0
)

var (
	// ErrInvalidSteps is returned when the step count is out of range.
	ErrInvalidSteps = errors.New("steps must be between 1 and 100")
	// ErrInvalidWidth is returned when the width is invalid.
	ErrInvalidWidth = errors.New("width must be between 64 and 2048 and a multiple of 64")
	// ErrInvalidHeight is returned when the height is invalid.
	ErrInvalidHeight = errors.New("height must be between 64 and 2048 and a multiple of 64")
	// ErrInvalidScale is returned when the conditioning strength is out of range.
	ErrInvalidScale = errors.New("ip-adapter scale must be between 0.0 and 1.0")
	// ErrLoRANotSelected is returned when LoRA is enabled without a filename.
	ErrLoRANotSelected = errors.New("lora enabled but no lora file selected")
	// ErrNoReferenceImage is returned when conditioning is enabled without a
	// reference image.
	ErrNoReferenceImage = errors.New("reference conditioning enabled but no reference image set")
)

// Settings is the generation configuration for the active process.
type Settings struct {
	// UseLoRA enables fine-tuned generation with the selected LoRA file.
	UseLoRA bool
	// LoRAFilename is the selected LoRA. Non-empty only when UseLoRA is set;
	// Normalize enforces the invariant.
	LoRAFilename string

	// Steps is the inference step count.
	Steps int
	// Width and Height are the output dimensions in pixels.
	Width  int
	Height int

	// UseIPAdapter enables reference-image conditioning.
	UseIPAdapter bool
	// IPAdapterScale is the conditioning strength in [0, 1].
	IPAdapterScale float64
	// ReferenceImage is the conditioning payload (a data URI). Non-empty only
	// when UseIPAdapter is set; Normalize enforces the invariant.
	ReferenceImage string
}

// Default returns the settings a fresh session starts with.
func Default() Settings {
	return Settings{
		Steps:          DefaultSteps,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		IPAdapterScale: DefaultIPAdapterScale,
	}
}

// Validate checks that all values are in range and that dependent fields are
// consistent with their toggles. Returns the first violation found.
func (s Settings) Validate() error {
	if s.Steps < MinSteps || s.Steps > MaxSteps {
		return ErrInvalidSteps
	}
	if !validDimension(s.Width) {
		return ErrInvalidWidth
	}
	if !validDimension(s.Height) {
		return ErrInvalidHeight
	}
	if s.IPAdapterScale < MinAdapterScale || s.IPAdapterScale > MaxAdapterScale {
		return ErrInvalidScale
	}
	if s.UseLoRA && s.LoRAFilename == "" {
		return ErrLoRANotSelected
	}
	if s.UseIPAdapter && s.ReferenceImage == "" {
		return ErrNoReferenceImage
	}
	return nil
}

// Normalize clears dependent fields whose toggles are off, so a LoRA name
// never rides along with LoRA disabled and a reference payload never rides
// along with conditioning disabled.
func (s *Settings) Normalize() {
	if !s.UseLoRA {
		s.LoRAFilename = ""
	}
	if !s.UseIPAdapter {
		s.ReferenceImage = ""
	}
}

// ClampSteps forces v into the valid step range.
func ClampSteps(v int) int {
	if v < MinSteps {
		return MinSteps
	}
	if v > MaxSteps {
		return MaxSteps
	}
	return v
}

// ClampDimension forces v into the valid dimension range, rounding down to
// the nearest multiple of DimensionStep.
func ClampDimension(v int) int {
	if v < MinDimension {
		return MinDimension
	}
	if v > MaxDimension {
		return MaxDimension
	}
	return v - v%DimensionStep
}

func validDimension(v int) bool {
	return v >= MinDimension && v <= MaxDimension && v%DimensionStep == 0
}
