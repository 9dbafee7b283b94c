package settings

import (
	"fmt"
	"image"
	"math"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
	"github.com/nguyennamkkb/Simpleverse-home/utils"
)

// Source describes the decoded input a resolution is computed against.
type Source struct {
	Width  int
	Height int
	Size   int64 // encoded byte size, drives the auto compression preset
	Format core.Format
}

// Params are the concrete values one transform invocation runs with.
type Params struct {
	// Region of the source drawn into the destination, in source pixels.
	Region image.Rectangle
	// Destination size.
	Width  int
	Height int

	Format        core.Format
	Quality       float64
	StripMetadata bool
}

// Resolve turns s into transform parameters for src.
func Resolve(s Settings, src Source) (Params, error) {
	if src.Width <= 0 || src.Height <= 0 {
		return Params{}, apperrors.New(apperrors.CategoryPipeline, "settings.resolve",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, src.Width, src.Height))
	}

	p := Params{
		Region: image.Rect(0, 0, src.Width, src.Height),
		Width:  src.Width,
		Height: src.Height,
		Format: src.Format,
	}

	switch s.Kind {
	case KindResize:
		p.Width, p.Height = ResizeTarget(s.Resize, src.Width, src.Height)
		p.Quality = s.Resize.Quality
	case KindCrop:
		p.Region = ToPixels(s.Crop.Rect, src.Width, src.Height)
		p.Width, p.Height = p.Region.Dx(), p.Region.Dy()
		p.Quality = s.Crop.Quality
	case KindCompress:
		quality, scale := CompressionValues(s.Compress, src.Size)
		p.Width = scaled(src.Width, scale)
		p.Height = scaled(src.Height, scale)
		p.Quality = quality
		p.StripMetadata = s.Compress.StripMetadata
	case KindConvert:
		p.Format = s.Convert.Format
		p.Quality = s.Convert.Quality
		p.Width, p.Height = FitEdge(src.Width, src.Height, p.Format.MaxEdge())
	default:
		return Params{}, apperrors.New(apperrors.CategoryPipeline, "settings.resolve",
			fmt.Errorf("unknown kind %q", s.Kind))
	}

	p.Width, p.Height = max(p.Width, 1), max(p.Height, 1)
	return p, nil
}

// ResizeTarget returns the destination size of a w×h image under r.
func ResizeTarget(r Resize, w, h int) (int, int) {
	switch r.Mode {
	case ResizePercentage:
		pct := float64(r.Percentage) / 100
		return scaled(w, pct), scaled(h, pct)
	case ResizePreset:
		if pct, ok := r.Preset.Percentage(); ok {
			return scaled(w, float64(pct)/100), scaled(h, float64(pct)/100)
		}
	case ResizePixels:
		switch {
		case r.Width > 0 && r.Height > 0:
			return r.Width, r.Height
		case r.Width > 0 && r.MaintainAspectRatio:
			return utils.ScaleDimensions(w, h, r.Width, 0)
		case r.Width > 0:
			return r.Width, h
		case r.Height > 0 && r.MaintainAspectRatio:
			return utils.ScaleDimensions(w, h, 0, r.Height)
		case r.Height > 0:
			return w, r.Height
		}
	}
	return w, h
}

// CompressionValues returns the quality and resize scale for c.  Presets
// ignore the explicit values; auto picks by encoded size.
func CompressionValues(c Compress, size int64) (quality, scale float64) {
	const mib = 1024 * 1024
	switch c.Mode {
	case CompressLossless:
		return 1.0, 1.0
	case CompressBalanced:
		return 0.8, 0.8
	case CompressAggressive:
		return 0.6, 0.6
	case CompressAuto:
		switch {
		case size > 5*mib:
			return 0.7, 0.7
		case size > 1*mib:
			return 0.8, 0.9
		}
		return 0.9, 1.0
	}
	return c.Quality, c.ResizeScale
}

// FitEdge scales w×h down so its longest edge is at most edge, keeping the
// aspect ratio.  edge <= 0 means unbounded.
func FitEdge(w, h, edge int) (int, int) {
	long := max(w, h)
	if edge <= 0 || long <= edge {
		return w, h
	}
	f := float64(edge) / float64(long)
	return max(scaled(w, f), 1), max(scaled(h, f), 1)
}

func scaled(v int, f float64) int {
	return int(math.Round(float64(v) * f))
}
