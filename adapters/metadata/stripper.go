// Package metadata removes EXIF, XMP, IPTC and text metadata from encoded
// images by dropping container segments, so pixels are never recompressed.
package metadata

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
)

var (
	errTruncated = errors.New("truncated image container")
	pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
)

// Stripper is a core.PostProcessor.  Formats without metadata containers
// (BMP, GIF, WebP from the std encoders) pass through untouched.
type Stripper struct{}

func NewStripper() *Stripper { return &Stripper{} }

func (s *Stripper) PostProcess(ctx context.Context, data []byte, format core.Format, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPostProcess, "metadata.strip", err)
	}
	if !opts.StripEXIF {
		return data, nil
	}

	var (
		out []byte
		err error
	)
	switch format {
	case core.FormatJPEG:
		out, err = StripJPEG(data)
	case core.FormatPNG:
		out, err = StripPNG(data)
	default:
		return data, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPostProcess, "metadata.strip."+string(format), err)
	}
	return out, nil
}

// StripJPEG drops APP1 (EXIF/XMP), APP3-APP13 (incl. IPTC), APP15 and COM
// segments.  APP0 (JFIF), APP2 (ICC profile) and APP14 (Adobe) are kept
// because decoders need them to render colours correctly.
func StripJPEG(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, apperrors.ErrUnsupportedFormat
	}

	out := bytes.NewBuffer(make([]byte, 0, len(data)))
	out.Write(data[:2])
	i := 2
	for i < len(data) {
		if data[i] != 0xFF {
			return nil, errTruncated
		}
		// Skip fill bytes.
		for i+1 < len(data) && data[i+1] == 0xFF {
			i++
		}
		if i+1 >= len(data) {
			return nil, errTruncated
		}
		marker := data[i+1]

		switch {
		case marker == 0xDA: // start of scan: entropy-coded data follows
			out.Write(data[i:])
			return out.Bytes(), nil
		case marker == 0xD9: // end of image
			out.Write(data[i : i+2])
			return out.Bytes(), nil
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			out.Write(data[i : i+2])
			i += 2
			continue
		}

		if i+4 > len(data) {
			return nil, errTruncated
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		end := i + 2 + segLen
		if segLen < 2 || end > len(data) {
			return nil, errTruncated
		}
		if !dropJPEGMarker(marker) {
			out.Write(data[i:end])
		}
		i = end
	}
	return nil, errTruncated
}

func dropJPEGMarker(m byte) bool {
	switch {
	case m == 0xE1, m == 0xEF, m == 0xFE:
		return true
	case m >= 0xE3 && m <= 0xED:
		return true
	}
	return false
}

// StripPNG drops textual, EXIF and timestamp chunks.
func StripPNG(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, apperrors.ErrUnsupportedFormat
	}

	out := bytes.NewBuffer(make([]byte, 0, len(data)))
	out.Write(pngSignature)
	i := len(pngSignature)
	for i < len(data) {
		if i+8 > len(data) {
			return nil, errTruncated
		}
		n := int(binary.BigEndian.Uint32(data[i : i+4]))
		typ := string(data[i+4 : i+8])
		end := i + 12 + n
		if n < 0 || end > len(data) {
			return nil, errTruncated
		}
		switch typ {
		case "tEXt", "zTXt", "iTXt", "eXIf", "tIME":
		default:
			out.Write(data[i:end])
		}
		i = end
		if typ == "IEND" {
			return out.Bytes(), nil
		}
	}
	return nil, errTruncated
}

var _ core.PostProcessor = (*Stripper)(nil)
