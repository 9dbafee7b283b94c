package core

import (
	"context"
	"image"
	"io"
)

// Decoder converts raw bytes / a reader into an in-memory ImageData.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	// Decode reads from r and returns a decoded ImageData.
	Decode(ctx context.Context, r io.Reader) (*ImageData, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises an ImageData to bytes in a target format.
// Implementations live in adapters/encoder/ and adapters/vips/.
type Encoder interface {
	Encode(ctx context.Context, img *ImageData, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// Surface is a decoded pixel buffer owned by a non-Go codec backend (libvips).
// Std decoders store a plain image.Image instead.
type Surface interface {
	Width() int
	Height() int
	// Render returns a new surface holding region scaled to w×h.
	Render(region image.Rectangle, w, h int) (Surface, error)
	// ToImage copies the pixels into a Go image for the std encoders.
	ToImage() (image.Image, error)
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality   float64 // 0.1-1.0; 0 = use encoder default
	StripEXIF bool
}

// PostProcessor rewrites already encoded bytes without changing their media
// type, e.g. to drop metadata segments.
type PostProcessor interface {
	PostProcess(ctx context.Context, data []byte, format Format, opts EncodeOptions) ([]byte, error)
}

// ArchiveWriter accumulates named blobs and produces one combined blob.
type ArchiveWriter interface {
	Put(name string, data []byte) error
	Build() ([]byte, error)
}

// Delivery hands a finished artifact to whoever saves or downloads it.
type Delivery interface {
	Deliver(ctx context.Context, name string, data []byte) error
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordError(stepName string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}
