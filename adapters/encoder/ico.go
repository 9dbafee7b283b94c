package encoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

const (
	icoHeaderSize = 6
	icoEntrySize  = 16
)

// ICO wraps one PNG image in an icon container.  Images larger than
// core.ICOMaxEdge are fitted into it first.
type ICO struct{}

func NewICO() *ICO { return &ICO{} }

func (i *ICO) CanEncode(format core.Format) bool { return format == core.FormatICO }

func (i *ICO) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "ico.encode", err)
	}

	src, err := pixels(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "ico.encode", err)
	}
	edge := core.ICOMaxEdge
	if b := src.Bounds(); b.Dx() > edge || b.Dy() > edge {
		src = imaging.Fit(src, edge, edge, imaging.Lanczos)
	}

	var payload bytes.Buffer
	if err := png.Encode(&payload, src); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "ico.encode", err)
	}

	b := src.Bounds()
	out := make([]byte, icoHeaderSize+icoEntrySize, icoHeaderSize+icoEntrySize+payload.Len())
	binary.LittleEndian.PutUint16(out[2:], 1) // type: icon
	binary.LittleEndian.PutUint16(out[4:], 1) // image count

	entry := out[icoHeaderSize:]
	entry[0] = icoDimension(b.Dx())
	entry[1] = icoDimension(b.Dy())
	binary.LittleEndian.PutUint16(entry[4:], 1)  // colour planes
	binary.LittleEndian.PutUint16(entry[6:], 32) // bits per pixel
	binary.LittleEndian.PutUint32(entry[8:], uint32(payload.Len()))
	binary.LittleEndian.PutUint32(entry[12:], icoHeaderSize+icoEntrySize)

	return append(out, payload.Bytes()...), nil
}

// icoDimension encodes a side length; 0 stands for 256.
func icoDimension(n int) byte {
	if n >= 256 {
		return 0
	}
	return byte(n)
}
