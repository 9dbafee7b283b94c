// Package encoder provides std-library backed image encoders.
package encoder

import (
	"fmt"
	"image"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

// pixels returns the decoded surface of img as a Go image, copying it out of
// a backend surface when needed.
func pixels(img *core.ImageData) (image.Image, error) {
	switch src := img.Image.(type) {
	case image.Image:
		if src == nil {
			return nil, apperrors.ErrEmptyInput
		}
		return src, nil
	case core.Surface:
		return src.ToImage()
	case nil:
		return nil, apperrors.ErrEmptyInput
	}
	return nil, fmt.Errorf("unsupported surface %T", img.Image)
}
