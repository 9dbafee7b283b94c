package decoder

import (
	"context"
	"image/gif"
	"io"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

// GIF decodes the first frame of a GIF.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) CanDecode(format core.Format) bool { return format == core.FormatGIF }

func (g *GIF) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
	}

	img, err := gif.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
	}
	return decoded(img, core.FormatGIF), nil
}
