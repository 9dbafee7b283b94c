package encoder

import (
	"bytes"
	"context"

	"golang.org/x/image/bmp"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

// BMP encodes uncompressed bitmaps; quality is ignored.
type BMP struct{}

func NewBMP() *BMP { return &BMP{} }

func (b *BMP) CanEncode(format core.Format) bool { return format == core.FormatBMP }

func (b *BMP) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "bmp.encode", err)
	}

	src, err := pixels(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "bmp.encode", err)
	}

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, src); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "bmp.encode", err)
	}
	return buf.Bytes(), nil
}
