// Package decoder provides format-specific image decoders.
package decoder

import (
	"context"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

// JPEG decodes JPEG images and applies the EXIF orientation tag so the
// decoded surface is upright.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG || format == core.FormatUnknown
}

func (j *JPEG) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}

	return decoded(img, core.FormatJPEG), nil
}

// decoded wraps a std image.Image into an ImageData with its metadata.
func decoded(img image.Image, f core.Format) *core.ImageData {
	bounds := img.Bounds()
	return &core.ImageData{
		Image:  img,
		Format: f,
		Meta: core.Metadata{
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
			Format:     f,
			ColorSpace: colorSpace(img),
			HasAlpha:   hasAlpha(img),
		},
	}
}

// colorSpace returns the colour space of an image.Image.
func colorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	case *image.CMYK:
		return core.ColorSpaceCMYK
	}
	return core.ColorSpaceRGB
}

func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64, *image.Paletted:
		return true
	}
	return false
}
