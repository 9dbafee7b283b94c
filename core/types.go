package core

import (
	"context"
	"io"
	"strings"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatGIF     Format = "gif"
	FormatUnknown Format = "unknown"

	// FormatTinyPNG is a PNG bounded by TinyPNGMaxBytes and TinyPNGMaxEdge.
	FormatTinyPNG Format = "tinypng"
	// FormatICO is an icon container holding one PNG image.
	FormatICO Format = "ico"
)

// Output bounds of the size-limited targets.
const (
	TinyPNGMaxBytes = 1 << 20
	TinyPNGMaxEdge  = 1920
	ICOMaxEdge      = 256
)

// Formats lists every codec the toolkit knows about, in menu order.
var Formats = []Format{FormatPNG, FormatJPEG, FormatWebP, FormatBMP, FormatTinyPNG, FormatICO, FormatGIF}

// MediaType returns the MIME type for f.
func (f Format) MediaType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG, FormatTinyPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatBMP:
		return "image/bmp"
	case FormatGIF:
		return "image/gif"
	case FormatICO:
		return "image/x-icon"
	}
	return "application/octet-stream"
}

// Extension returns the canonical file extension for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatTinyPNG:
		return "png"
	case FormatUnknown, "":
		return "bin"
	}
	return string(f)
}

// OutputOnly reports whether f is a conversion target no decoder reads.
func (f Format) OutputOnly() bool { return f == FormatTinyPNG || f == FormatICO }

// MaxEdge is the longest output edge f allows, or 0 when unbounded.
func (f Format) MaxEdge() int {
	switch f {
	case FormatTinyPNG:
		return TinyPNGMaxEdge
	case FormatICO:
		return ICOMaxEdge
	}
	return 0
}

// Valid reports whether f is one of Formats.
func (f Format) Valid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// FormatFromContentType maps MIME types to Format values.
func FormatFromContentType(ct string) Format {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	case "image/bmp", "image/x-bmp", "image/x-ms-bmp":
		return FormatBMP
	case "image/gif":
		return FormatGIF
	}
	return FormatUnknown
}

// ParseFormat maps a user supplied name ("jpg", "PNG", ...) to a Format.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "jpeg", "jpg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	case "bmp":
		return FormatBMP
	case "gif":
		return FormatGIF
	case "tinypng":
		return FormatTinyPNG
	case "ico":
		return FormatICO
	}
	return FormatUnknown
}

// QualityNoRecompress is the quality sentinel handed to post-processors that
// must not lower the quality of already encoded bytes any further.
const QualityNoRecompress = 1.0

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// Metadata holds extracted image information without loading pixel data.
type Metadata struct {
	Width       int
	Height      int
	Format      Format
	ColorSpace  ColorSpace
	HasAlpha    bool
	SizeBytes   int64
	EXIF        map[string]string // nil when stripped or absent
	HasEXIF     bool
	Orientation int // EXIF orientation tag (1-8)
}

// ImageData is the in-memory representation passed through a pipeline.
// Data holds encoded bytes; Image holds the decoded pixel buffer when needed.
type ImageData struct {
	// Encoded bytes: the raw input until an encode step replaces them.
	Data   []byte
	Format Format

	// Decoded pixel surface.  image.Image for the std codecs, *vips.Image for
	// the libvips backend.
	Image interface{}

	Meta Metadata

	// Size of the original raw input.
	OriginalSize int64
}

// ProcessingResult is returned to the caller after the full pipeline completes.
type ProcessingResult struct {
	Primary *ImageData

	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// Source abstracts where raw bytes come from (upload, file, watched folder).
type Source struct {
	Reader      io.Reader
	ContentType string // optional hint
	Name        string // original filename
	Size        int64  // -1 if unknown
}

// Step is the fundamental pipeline building block.  Each Step transforms an
// *ImageData value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}
