package decoder

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

// Probe reads only the image header of data and reports its dimensions and
// format without decoding pixels.  JPEG dimensions are those of the upright
// image, matching what the JPEG decoder produces.
func Probe(data []byte) (core.Metadata, error) {
	if len(data) == 0 {
		return core.Metadata{}, apperrors.New(apperrors.CategoryDecode, "probe", apperrors.ErrEmptyInput)
	}
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return core.Metadata{}, apperrors.Wrap(apperrors.CategoryDecode, "probe", err)
	}
	f := core.ParseFormat(name)
	meta := core.Metadata{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      f,
		SizeBytes:   int64(len(data)),
		Orientation: 1,
	}
	if f == core.FormatJPEG {
		meta.Orientation = Orientation(data)
		if swapsAxes(meta.Orientation) {
			meta.Width, meta.Height = meta.Height, meta.Width
		}
	}
	return meta, nil
}
