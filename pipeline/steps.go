// Package pipeline provides the steps an item transform is built from and
// the Transformer that runs them.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
	"github.com/nguyennamkkb/Simpleverse-home/utils"
)

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes raw bytes in img.Data into a pixel surface.  An unknown
// format is sniffed from the leading bytes first.
type DecodeStep struct {
	Registry core.Registry
}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image != nil {
		return img, nil // already decoded
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrEmptyInput)
	}

	format := img.Format
	if format == "" || format == core.FormatUnknown {
		format = core.Format(utils.DetectFormat(img.Data))
	}
	dec, ok := s.Registry.DecoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}

	decoded, err := dec.Decode(ctx, bytes.NewReader(img.Data))
	if err != nil {
		return nil, err
	}

	// Preserve the raw data bytes alongside the decoded representation.
	decoded.Data = img.Data
	decoded.OriginalSize = img.OriginalSize
	decoded.Meta.SizeBytes = int64(len(img.Data))
	if decoded.Format == core.FormatUnknown || decoded.Format == "" {
		decoded.Format = format
	}
	return decoded, nil
}

// ── Render ────────────────────────────────────────────────────────────────────

// RenderStep draws Region of the source into a Width×Height destination.
// Cropping and scaling happen in the same draw.
type RenderStep struct {
	Region        image.Rectangle // relative to the source origin
	Width, Height int
	// Resampler controls quality vs speed.  Defaults to draw.CatmullRom.
	Resampler xdraw.Interpolator
}

func (s *RenderStep) Name() string { return "render" }

func (s *RenderStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	if s.Width <= 0 || s.Height <= 0 || s.Region.Empty() {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrInvalidDimensions)
	}

	out := *img
	switch src := img.Image.(type) {
	case image.Image:
		dst, err := s.render(src)
		if err != nil {
			return nil, err
		}
		out.Image = dst
		out.Meta.Width, out.Meta.Height = s.Width, s.Height
	case core.Surface:
		dst, err := src.Render(s.Region, s.Width, s.Height)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
		}
		out.Image = dst
		out.Meta.Width, out.Meta.Height = dst.Width(), dst.Height()
	default:
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}
	return &out, nil
}

func (s *RenderStep) render(src image.Image) (image.Image, error) {
	bounds := src.Bounds()
	region := s.Region.Add(bounds.Min)
	if !region.In(bounds) {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(),
			fmt.Errorf("region %v exceeds image bounds %v", s.Region, bounds))
	}

	if region.Dx() == s.Width && region.Dy() == s.Height {
		if region == bounds {
			return src, nil // nothing to do
		}
		return imaging.Crop(src, region), nil
	}

	sampler := s.Resampler
	if sampler == nil {
		sampler = xdraw.CatmullRom
	}
	dst := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	sampler.Scale(dst, dst.Bounds(), src, region, xdraw.Src, nil)
	return dst, nil
}

// ── Format conversion ─────────────────────────────────────────────────────────

// FormatStep sets the output format for the subsequent encode step.
type FormatStep struct {
	Format core.Format
}

func (s *FormatStep) Name() string { return "format" }

func (s *FormatStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if s.Format == "" || s.Format == core.FormatUnknown {
		return img, nil
	}
	out := *img
	out.Format = s.Format
	out.Meta.Format = s.Format
	return &out, nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the decoded surface into img.Format using the
// registry.
type EncodeStep struct {
	Registry core.Registry
	Options  core.EncodeOptions
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	enc, ok := s.Registry.EncoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}

	data, err := enc.Encode(ctx, img, s.Options)
	if err != nil {
		return nil, err
	}

	out := *img
	out.Data = data
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}

// ── Post-process ──────────────────────────────────────────────────────────────

// PostProcessStep rewrites the encoded bytes, keeping their media type.  The
// quality handed to the post-processor is always core.QualityNoRecompress.
type PostProcessStep struct {
	Post      core.PostProcessor
	StripEXIF bool
}

func (s *PostProcessStep) Name() string { return "postprocess" }

func (s *PostProcessStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if s.Post == nil || len(img.Data) == 0 {
		return img, nil
	}
	data, err := s.Post.PostProcess(ctx, img.Data, img.Format, core.EncodeOptions{
		Quality:   core.QualityNoRecompress,
		StripEXIF: s.StripEXIF,
	})
	if err != nil {
		return nil, err
	}

	out := *img
	out.Data = data
	out.Meta.SizeBytes = int64(len(data))
	if s.StripEXIF {
		out.Meta.EXIF = nil
		out.Meta.HasEXIF = false
	}
	return &out, nil
}

var (
	_ core.Step = (*DecodeStep)(nil)
	_ core.Step = (*RenderStep)(nil)
	_ core.Step = (*FormatStep)(nil)
	_ core.Step = (*EncodeStep)(nil)
	_ core.Step = (*PostProcessStep)(nil)
)
