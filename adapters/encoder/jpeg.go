package encoder

import (
	"bytes"
	"context"
	"image/jpeg"
	"math"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

// JPEG encodes images to JPEG format.
type JPEG struct {
	DefaultQuality float64 // used when EncodeOptions.Quality == 0
}

func NewJPEG(defaultQuality float64) *JPEG {
	if defaultQuality <= 0 {
		defaultQuality = 0.92
	}
	return &JPEG{DefaultQuality: defaultQuality}
}

func (j *JPEG) CanEncode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}

	src, err := pixels(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = j.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: Percent(quality)}); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	return buf.Bytes(), nil
}

// Percent maps a 0.1-1.0 quality scalar onto the 1-100 scale codecs use.
func Percent(q float64) int {
	p := int(math.Round(q * 100))
	if p < 1 {
		return 1
	}
	if p > 100 {
		return 100
	}
	return p
}
