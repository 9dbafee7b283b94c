package encoder

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/imaging"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

const tinyPNGAttempts = 10

// TinyPNG encodes size-bounded PNGs.  The image is re-encoded at a smaller
// scale until it fits MaxBytes; after tinyPNGAttempts the smallest result
// is returned as is.
type TinyPNG struct {
	MaxBytes int
}

func NewTinyPNG(maxBytes int) *TinyPNG {
	if maxBytes <= 0 {
		maxBytes = core.TinyPNGMaxBytes
	}
	return &TinyPNG{MaxBytes: maxBytes}
}

func (t *TinyPNG) CanEncode(format core.Format) bool { return format == core.FormatTinyPNG }

func (t *TinyPNG) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	src, err := pixels(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "tinypng.encode", err)
	}
	if edge := core.TinyPNGMaxEdge; max(src.Bounds().Dx(), src.Bounds().Dy()) > edge {
		src = imaging.Fit(src, edge, edge, imaging.Lanczos)
	}

	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	var data []byte
	for attempt := 0; attempt < tinyPNGAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "tinypng.encode", err)
		}
		var buf bytes.Buffer
		if err := enc.Encode(&buf, src); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "tinypng.encode", err)
		}
		data = buf.Bytes()
		if len(data) <= t.MaxBytes {
			break
		}
		next, ok := shrink(src, float64(t.MaxBytes)/float64(len(data)))
		if !ok {
			break
		}
		src = next
	}
	return data, nil
}

// shrink scales src by the square root of ratio (byte size tracks area),
// never by less than 10%.  It reports false once src is down to one pixel.
func shrink(src image.Image, ratio float64) (image.Image, bool) {
	f := min(math.Sqrt(ratio)*0.95, 0.9)
	b := src.Bounds()
	w, h := max(int(float64(b.Dx())*f), 1), max(int(float64(b.Dy())*f), 1)
	if w == b.Dx() && h == b.Dy() {
		return src, false
	}
	return imaging.Resize(src, w, h, imaging.Lanczos), true
}
