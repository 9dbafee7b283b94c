package encoder

import (
	"bytes"
	"context"
	"image/png"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

// PNG encodes images to PNG format.  PNG is lossless, so quality only picks
// the deflate effort: full quality spends the most effort on size.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}

	src, err := pixels(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}

	enc := &png.Encoder{CompressionLevel: png.DefaultCompression}
	if opts.Quality >= 1 {
		enc.CompressionLevel = png.BestCompression
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, src); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}
	return buf.Bytes(), nil
}
