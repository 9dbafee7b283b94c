package encoder

import (
	"bytes"
	"context"
	"image/gif"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

// GIF encodes a single frame, quantised to at most 256 colours.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) CanEncode(format core.Format) bool { return format == core.FormatGIF }

func (g *GIF) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "gif.encode", err)
	}

	src, err := pixels(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "gif.encode", err)
	}

	var buf bytes.Buffer
	if err := gif.Encode(&buf, src, &gif.Options{NumColors: 256}); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "gif.encode", err)
	}
	return buf.Bytes(), nil
}
