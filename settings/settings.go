// Package settings holds the per-item tool configuration and turns it into
// concrete transform parameters.
package settings

import (
	"fmt"
	"math"

	"github.com/nguyennamkkb/Simpleverse-home/config"
	"github.com/nguyennamkkb/Simpleverse-home/core"
)

// Kind selects which transform an item runs and which settings block is
// authoritative.
type Kind string

const (
	KindResize   Kind = "resize"
	KindCrop     Kind = "crop"
	KindCompress Kind = "compress"
	KindConvert  Kind = "convert"
)

func (k Kind) Valid() bool {
	switch k {
	case KindResize, KindCrop, KindCompress, KindConvert:
		return true
	}
	return false
}

// Purpose is the past-tense label used in download names ("resized", ...).
func (k Kind) Purpose() string {
	switch k {
	case KindResize:
		return "resized"
	case KindCrop:
		return "cropped"
	case KindCompress:
		return "compressed"
	case KindConvert:
		return "converted"
	}
	return "processed"
}

// ResizeMode selects which resize fields are authoritative.
type ResizeMode string

const (
	ResizePercentage ResizeMode = "percentage"
	ResizePixels     ResizeMode = "pixels"
	ResizePreset     ResizeMode = "preset"
)

// Preset is a quick resize shortcut.
type Preset string

const (
	PresetThumbnail Preset = "thumbnail"
	PresetHalf      Preset = "half"
	PresetOriginal  Preset = "original"
	PresetDouble    Preset = "double"
)

// Percentage returns the scale the preset stands for.
func (p Preset) Percentage() (int, bool) {
	switch p {
	case PresetThumbnail:
		return 25, true
	case PresetHalf:
		return 50, true
	case PresetOriginal:
		return 100, true
	case PresetDouble:
		return 200, true
	}
	return 0, false
}

// CompressionMode picks a quality/scale preset, or custom values.
type CompressionMode string

const (
	CompressAuto       CompressionMode = "auto"
	CompressLossless   CompressionMode = "lossless"
	CompressBalanced   CompressionMode = "balanced"
	CompressAggressive CompressionMode = "aggressive"
	CompressCustom     CompressionMode = "custom"
)

func (m CompressionMode) Valid() bool {
	switch m {
	case CompressAuto, CompressLossless, CompressBalanced, CompressAggressive, CompressCustom:
		return true
	}
	return false
}

// Value ranges.
const (
	MinPercentage = 10
	MaxPercentage = 200
	MinScalar     = 0.1
	MaxScalar     = 1.0
	MinCropExtent = 5.0 // percent, enforced by handle drags
)

// Resize configures the resize tool.
type Resize struct {
	Mode                ResizeMode `json:"mode"`
	Percentage          int        `json:"percentage"`
	Width               int        `json:"width,omitempty"`  // 0 = unset
	Height              int        `json:"height,omitempty"` // 0 = unset
	MaintainAspectRatio bool       `json:"maintain_aspect_ratio"`
	Preset              Preset     `json:"preset,omitempty"`
	Quality             float64    `json:"quality"`
}

// Crop configures the crop tool.  Rect is in percentage space.
type Crop struct {
	AspectRatio AspectRatio `json:"aspect_ratio"`
	Rect        Rect        `json:"rect"`
	Quality     float64     `json:"quality"`
}

// Compress configures the compressor.  Quality and ResizeScale are only
// read in custom mode.
type Compress struct {
	Mode          CompressionMode `json:"mode"`
	Quality       float64         `json:"quality"`
	ResizeScale   float64         `json:"resize_scale"`
	StripMetadata bool            `json:"strip_metadata"`
}

// Convert configures the format converter.
type Convert struct {
	Format  core.Format `json:"format"`
	Quality float64     `json:"quality"`
}

// Settings is a tagged variant: Kind says which block applies.  The other
// blocks are kept so a merged tool can switch kinds without losing values.
type Settings struct {
	Kind     Kind     `json:"kind"`
	Resize   Resize   `json:"resize"`
	Crop     Crop     `json:"crop"`
	Compress Compress `json:"compress"`
	Convert  Convert  `json:"convert"`
}

// Defaults returns the starting settings for a tool of the given kind.
func Defaults(kind Kind, q config.QualityConfig) Settings {
	return Settings{
		Kind: kind,
		Resize: Resize{
			Mode:                ResizePercentage,
			Percentage:          50,
			MaintainAspectRatio: true,
			Preset:              PresetHalf,
			Quality:             q.Resize,
		},
		Crop: Crop{
			AspectRatio: Ratio16x9,
			Rect:        FullRect,
			Quality:     q.Crop,
		},
		Compress: Compress{
			Mode:          CompressBalanced,
			Quality:       0.8,
			ResizeScale:   1.0,
			StripMetadata: true,
		},
		Convert: Convert{
			Format:  core.FormatPNG,
			Quality: q.Convert,
		},
	}
}

// ── Patch ─────────────────────────────────────────────────────────────────────

// Patch is a partial settings update.  Nil fields are left untouched.
type Patch struct {
	Kind *Kind `json:"kind,omitempty"`

	ResizeMode          *ResizeMode `json:"resize_mode,omitempty"`
	Percentage          *int        `json:"percentage,omitempty"`
	Width               *int        `json:"width,omitempty"`
	Height              *int        `json:"height,omitempty"`
	MaintainAspectRatio *bool       `json:"maintain_aspect_ratio,omitempty"`
	Preset              *Preset     `json:"preset,omitempty"`

	AspectRatio *AspectRatio `json:"aspect_ratio,omitempty"`
	Rect        *Rect        `json:"rect,omitempty"`

	CompressionMode *CompressionMode `json:"compression_mode,omitempty"`
	Quality         *float64         `json:"quality,omitempty"`
	ResizeScale     *float64         `json:"resize_scale,omitempty"`
	StripMetadata   *bool            `json:"strip_metadata,omitempty"`

	Format         *core.Format `json:"format,omitempty"`
	ConvertQuality *float64     `json:"convert_quality,omitempty"`
}

// Ptr returns a pointer to v, for building patches inline.
func Ptr[T any](v T) *T { return &v }

// Validate rejects enum values the resolver does not understand.  Numeric
// fields are clamped by Apply rather than rejected.
func (p Patch) Validate() error {
	if p.Kind != nil && !p.Kind.Valid() {
		return fmt.Errorf("settings: unknown kind %q", *p.Kind)
	}
	if p.ResizeMode != nil {
		switch *p.ResizeMode {
		case ResizePercentage, ResizePixels, ResizePreset:
		default:
			return fmt.Errorf("settings: unknown resize mode %q", *p.ResizeMode)
		}
	}
	if p.Preset != nil {
		if _, ok := p.Preset.Percentage(); !ok {
			return fmt.Errorf("settings: unknown preset %q", *p.Preset)
		}
	}
	if p.AspectRatio != nil && !p.AspectRatio.Valid() {
		return fmt.Errorf("settings: unknown aspect ratio %q", *p.AspectRatio)
	}
	if p.CompressionMode != nil && !p.CompressionMode.Valid() {
		return fmt.Errorf("settings: unknown compression mode %q", *p.CompressionMode)
	}
	if p.Format != nil && !p.Format.Valid() {
		return fmt.Errorf("settings: unknown format %q", *p.Format)
	}
	return nil
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool { return p == Patch{} }

// Apply merges p into s.  imgW and imgH are the item's pixel dimensions;
// selecting an aspect ratio recomputes a centered crop rectangle for them
// unless the patch also carries an explicit Rect.  Callers run Validate
// first; Apply itself only clamps.
func Apply(s Settings, p Patch, imgW, imgH int) Settings {
	if p.Kind != nil {
		s.Kind = *p.Kind
	}

	if p.ResizeMode != nil {
		s.Resize.Mode = *p.ResizeMode
	}
	if p.Percentage != nil {
		s.Resize.Percentage = clampInt(*p.Percentage, MinPercentage, MaxPercentage)
	}
	if p.Width != nil {
		s.Resize.Width = max(*p.Width, 0)
	}
	if p.Height != nil {
		s.Resize.Height = max(*p.Height, 0)
	}
	if p.MaintainAspectRatio != nil {
		s.Resize.MaintainAspectRatio = *p.MaintainAspectRatio
	}
	if p.Preset != nil {
		s.Resize.Preset = *p.Preset
	}

	if p.AspectRatio != nil {
		s.Crop.AspectRatio = *p.AspectRatio
		if p.Rect == nil {
			s.Crop.Rect = InitialRect(imgW, imgH, *p.AspectRatio)
		}
	}
	if p.Rect != nil {
		s.Crop.Rect = ClampRect(*p.Rect)
	}

	if p.CompressionMode != nil {
		s.Compress.Mode = *p.CompressionMode
	}
	if p.Quality != nil {
		s.Compress.Quality = clampScalar(*p.Quality)
	}
	if p.ResizeScale != nil {
		s.Compress.ResizeScale = clampScalar(*p.ResizeScale)
	}
	if p.StripMetadata != nil {
		s.Compress.StripMetadata = *p.StripMetadata
	}

	if p.Format != nil {
		s.Convert.Format = *p.Format
	}
	if p.ConvertQuality != nil {
		s.Convert.Quality = clampScalar(*p.ConvertQuality)
	}
	return s
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampScalar(v float64) float64 {
	if math.IsNaN(v) {
		return MinScalar
	}
	return math.Min(math.Max(v, MinScalar), MaxScalar)
}
