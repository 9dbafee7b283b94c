// Package vips is an optional libvips codec backend.  It decodes and encodes
// JPEG, PNG and WebP (the only WebP encoder in the module) and renders
// surfaces without a round trip through Go images.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/nguyennamkkb/Simpleverse-home/adapters/encoder"
	"github.com/nguyennamkkb/Simpleverse-home/config"
	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
	"github.com/nguyennamkkb/Simpleverse-home/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality float64 // 0.1-1.0
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// ConfigFrom maps the module configuration onto a BackendConfig.
func ConfigFrom(cfg config.Config) BackendConfig {
	return BackendConfig{
		DefaultQuality: cfg.Quality.Convert,
		MaxCacheSize:   cfg.Vips.MaxCacheSize,
		MaxWorkers:     cfg.Vips.MaxWorkers,
		ReportLeaks:    cfg.Vips.ReportLeaks,
	}
}

// Backend is a unified libvips-powered Decoder and Encoder.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 0.92
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatUnknown:
		return true
	}
	return false
}

func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })

	// Match the std JPEG decoder, which applies EXIF orientation.
	if err := ref.AutoRotate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.rotate", err)
	}

	format := vipsFormatToCore(ref.Format())
	meta := core.Metadata{
		Width:      ref.Width(),
		Height:     ref.Height(),
		Format:     format,
		ColorSpace: vipsInterpretationToColorSpace(ref.Interpretation()),
		HasAlpha:   ref.HasAlpha(),
		SizeBytes:  int64(len(raw)),
	}
	fields := ref.GetFields()
	if len(fields) > 0 {
		exif := make(map[string]string, len(fields))
		for _, field := range fields {
			exif[field] = ref.GetString(field)
		}
		meta.EXIF = exif
		meta.HasEXIF = true
	}

	return &core.ImageData{
		Data:         raw,
		Format:       format,
		Image:        &VipsImage{ref: ref},
		Meta:         meta,
		OriginalSize: int64(len(raw)),
	}, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP:
		return true
	}
	return false
}

func (b *Backend) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode", err)
	}

	ref, err := b.refFor(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode", err)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}

	switch img.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = encoder.Percent(quality)
		ep.StripMetadata = opts.StripEXIF
		buf, _, err := ref.ExportJpeg(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.jpeg", err)
		}
		return buf, nil

	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.StripMetadata = opts.StripEXIF
		buf, _, err := ref.ExportPng(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.png", err)
		}
		return buf, nil

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = encoder.Percent(quality)
		ep.Lossless = quality >= core.QualityNoRecompress
		ep.StripMetadata = opts.StripEXIF
		buf, _, err := ref.ExportWebp(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.webp", err)
		}
		return buf, nil
	}
	return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode",
		fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
}

// refFor returns a vips reference for img, importing Go images decoded by
// the std codecs (BMP, GIF) through a lossless PNG buffer.
func (b *Backend) refFor(img *core.ImageData) (*govips.ImageRef, error) {
	switch src := img.Image.(type) {
	case *VipsImage:
		if src == nil {
			return nil, apperrors.ErrEmptyInput
		}
		return src.ref, nil
	case image.Image:
		var buf bytes.Buffer
		if err := png.Encode(&buf, src); err != nil {
			return nil, err
		}
		ref, err := govips.NewImageFromBuffer(buf.Bytes())
		if err != nil {
			return nil, err
		}
		runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })
		return ref, nil
	}
	return nil, apperrors.ErrEmptyInput
}

// ─── VipsImage ────────────────────────────────────────────────────────────────

// VipsImage wraps a *govips.ImageRef for storage in core.ImageData.Image.
type VipsImage struct {
	ref *govips.ImageRef
}

func (v *VipsImage) Width() int            { return v.ref.Width() }
func (v *VipsImage) Height() int           { return v.ref.Height() }
func (v *VipsImage) Ref() *govips.ImageRef { return v.ref }
func (v *VipsImage) Close()                { v.ref.Close() }

// Render extracts region from a copy of the image and scales it to w×h with
// the Lanczos3 kernel.  The receiver is left untouched.
func (v *VipsImage) Render(region image.Rectangle, w, h int) (core.Surface, error) {
	ref, err := v.ref.Copy()
	if err != nil {
		return nil, err
	}
	runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })

	full := image.Rect(0, 0, ref.Width(), ref.Height())
	if region != full {
		if err := ref.ExtractArea(region.Min.X, region.Min.Y, region.Dx(), region.Dy()); err != nil {
			return nil, err
		}
	}
	if w != region.Dx() || h != region.Dy() {
		hScale := float64(w) / float64(region.Dx())
		vScale := float64(h) / float64(region.Dy())
		if err := ref.ResizeWithVScale(hScale, vScale, govips.KernelLanczos3); err != nil {
			return nil, err
		}
	}
	return &VipsImage{ref: ref}, nil
}

// ToImage copies the pixels into a Go image.
func (v *VipsImage) ToImage() (image.Image, error) {
	return v.ref.ToImage(nil)
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend replaces the std codecs with libvips for JPEG and PNG
// and adds WebP encoding.  BMP and GIF stay on the std codecs.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP} {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, b)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	case govips.ImageTypeGIF:
		return core.FormatGIF
	case govips.ImageTypeBMP:
		return core.FormatBMP
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationSRGB, govips.InterpretationRGB16:
		return core.ColorSpaceRGB
	case govips.InterpretationBW:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

// compile-time interface checks
var (
	_ core.Decoder = (*Backend)(nil)
	_ core.Encoder = (*Backend)(nil)
	_ core.Surface = (*VipsImage)(nil)
)
