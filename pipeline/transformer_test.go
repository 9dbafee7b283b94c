package pipeline_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/nguyennamkkb/Simpleverse-home/adapters/decoder"
	"github.com/nguyennamkkb/Simpleverse-home/adapters/encoder"
	"github.com/nguyennamkkb/Simpleverse-home/adapters/metadata"
	"github.com/nguyennamkkb/Simpleverse-home/config"
	"github.com/nguyennamkkb/Simpleverse-home/core"
	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
	"github.com/nguyennamkkb/Simpleverse-home/pipeline"
	"github.com/nguyennamkkb/Simpleverse-home/settings"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 100, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// recordingHook remembers step names in call order.
type recordingHook struct {
	mu    sync.Mutex
	steps []string
}

func (h *recordingHook) BeforeStep(context.Context, string, *core.ImageData) {}

func (h *recordingHook) AfterStep(_ context.Context, name string, _ *core.ImageData, _ time.Duration, _ error) {
	h.mu.Lock()
	h.steps = append(h.steps, name)
	h.mu.Unlock()
}

func newTransformer(t *testing.T) (*pipeline.Transformer, *recordingHook) {
	t.Helper()
	cfg := config.Default()
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatBMP, decoder.NewBMP())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(cfg.Quality.Convert))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatBMP, encoder.NewBMP())
	reg.RegisterEncoder(core.FormatTinyPNG, encoder.NewTinyPNG(core.TinyPNGMaxBytes))
	reg.RegisterEncoder(core.FormatICO, encoder.NewICO())

	proc := core.New(cfg, reg)
	hook := &recordingHook{}
	proc.AddHook(hook)
	return pipeline.NewTransformer(proc, metadata.NewStripper()), hook
}

func withPatch(kind settings.Kind, p settings.Patch, w, h int) settings.Settings {
	return settings.Apply(settings.Defaults(kind, config.Default().Quality), p, w, h)
}

func TestTransform_ResizePercentage(t *testing.T) {
	tr, hook := newTransformer(t)
	in := pipeline.Input{
		Data:     encodePNG(t, 2000, 1000),
		Format:   core.FormatPNG,
		Settings: withPatch(settings.KindResize, settings.Patch{Percentage: settings.Ptr(50)}, 2000, 1000),
	}

	out, err := tr.Transform(context.Background(), in)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Width != 1000 || out.Height != 500 {
		t.Errorf("dims: got %dx%d, want 1000x500", out.Width, out.Height)
	}
	if out.Format != core.FormatPNG {
		t.Errorf("format: got %s", out.Format)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not png: %v", err)
	}
	if cfg.Width != 1000 || cfg.Height != 500 {
		t.Errorf("encoded dims: got %dx%d", cfg.Width, cfg.Height)
	}

	want := []string{"decode", "render", "format", "encode", "postprocess"}
	if len(hook.steps) != len(want) {
		t.Fatalf("steps: got %v, want %v", hook.steps, want)
	}
	for i := range want {
		if hook.steps[i] != want[i] {
			t.Errorf("step %d: got %q, want %q", i, hook.steps[i], want[i])
		}
	}
}

func TestTransform_HundredPercentKeepsDimensions(t *testing.T) {
	tr, _ := newTransformer(t)
	out, err := tr.Transform(context.Background(), pipeline.Input{
		Data:     encodeJPEG(t, 321, 123),
		Format:   core.FormatJPEG,
		Settings: withPatch(settings.KindResize, settings.Patch{Percentage: settings.Ptr(100)}, 321, 123),
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Width != 321 || out.Height != 123 {
		t.Errorf("got %dx%d, want 321x123", out.Width, out.Height)
	}
}

func TestTransform_CropSquare(t *testing.T) {
	tr, _ := newTransformer(t)
	s := withPatch(settings.KindCrop, settings.Patch{AspectRatio: settings.Ptr(settings.Ratio1x1)}, 160, 90)

	out, err := tr.Transform(context.Background(), pipeline.Input{
		Data: encodePNG(t, 160, 90), Format: core.FormatPNG, Settings: s,
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Width != 90 || out.Height != 90 {
		t.Errorf("got %dx%d, want 90x90", out.Width, out.Height)
	}
	if out.Params.Region != image.Rect(35, 0, 125, 90) {
		t.Errorf("region: got %v", out.Params.Region)
	}
}

func TestTransform_Convert(t *testing.T) {
	tr, _ := newTransformer(t)
	s := withPatch(settings.KindConvert, settings.Patch{Format: settings.Ptr(core.FormatJPEG)}, 0, 0)

	out, err := tr.Transform(context.Background(), pipeline.Input{
		Data: encodePNG(t, 40, 30), Format: core.FormatPNG, Settings: s,
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Format != core.FormatJPEG {
		t.Errorf("format: got %s", out.Format)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out.Data)); err != nil {
		t.Errorf("output is not jpeg: %v", err)
	}
	if out.Width != 40 || out.Height != 30 {
		t.Errorf("dims: got %dx%d", out.Width, out.Height)
	}
}

func TestTransform_ConvertTinyPNG(t *testing.T) {
	tr, _ := newTransformer(t)
	s := withPatch(settings.KindConvert, settings.Patch{Format: settings.Ptr(core.FormatTinyPNG)}, 0, 0)

	out, err := tr.Transform(context.Background(), pipeline.Input{
		Data: encodePNG(t, 3840, 960), Format: core.FormatPNG, Settings: s,
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Format.MediaType() != "image/png" || out.Format.Extension() != "png" {
		t.Errorf("format: %s %s", out.Format.MediaType(), out.Format.Extension())
	}
	if out.Width != 1920 || out.Height != 480 {
		t.Errorf("dims: got %dx%d, want 1920x480", out.Width, out.Height)
	}
	if len(out.Data) > core.TinyPNGMaxBytes {
		t.Errorf("size: %d exceeds %d", len(out.Data), core.TinyPNGMaxBytes)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not png: %v", err)
	}
	if cfg.Width != out.Width || cfg.Height != out.Height {
		t.Errorf("encoded %dx%d, reported %dx%d", cfg.Width, cfg.Height, out.Width, out.Height)
	}
}

func TestTransform_ConvertICO(t *testing.T) {
	tr, _ := newTransformer(t)
	s := withPatch(settings.KindConvert, settings.Patch{Format: settings.Ptr(core.FormatICO)}, 0, 0)

	out, err := tr.Transform(context.Background(), pipeline.Input{
		Data: encodePNG(t, 512, 256), Format: core.FormatPNG, Settings: s,
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Width != 256 || out.Height != 128 {
		t.Errorf("dims: got %dx%d, want 256x128", out.Width, out.Height)
	}
	if out.Format.MediaType() != "image/x-icon" || out.Format.Extension() != "ico" {
		t.Errorf("format: %s %s", out.Format.MediaType(), out.Format.Extension())
	}

	data := out.Data
	if len(data) < 22 || binary.LittleEndian.Uint16(data[2:]) != 1 || binary.LittleEndian.Uint16(data[4:]) != 1 {
		t.Fatalf("bad icon header: % x", data[:min(len(data), 22)])
	}
	if data[6] != 0 || data[7] != 128 {
		t.Errorf("entry dims: %d %d, want 0 (256) and 128", data[6], data[7])
	}
	size := binary.LittleEndian.Uint32(data[14:])
	offset := binary.LittleEndian.Uint32(data[18:])
	if int(offset+size) != len(data) {
		t.Fatalf("entry covers %d+%d of %d bytes", offset, size, len(data))
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data[offset:]))
	if err != nil {
		t.Fatalf("payload is not png: %v", err)
	}
	if cfg.Width != 256 || cfg.Height != 128 {
		t.Errorf("payload: %dx%d", cfg.Width, cfg.Height)
	}
}

func TestTransform_CompressAuto(t *testing.T) {
	tr, _ := newTransformer(t)
	s := withPatch(settings.KindCompress, settings.Patch{CompressionMode: settings.Ptr(settings.CompressAggressive)}, 0, 0)

	in := encodeJPEG(t, 200, 100)
	out, err := tr.Transform(context.Background(), pipeline.Input{Data: in, Format: core.FormatJPEG, Settings: s})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Width != 120 || out.Height != 60 {
		t.Errorf("dims: got %dx%d, want 120x60", out.Width, out.Height)
	}
	if out.Params.Quality != 0.6 || !out.Params.StripMetadata {
		t.Errorf("params: %+v", out.Params)
	}
	if len(out.Data) >= len(in) {
		t.Errorf("output not smaller: %d >= %d", len(out.Data), len(in))
	}
}

func TestTransform_SniffsUnknownFormat(t *testing.T) {
	tr, _ := newTransformer(t)
	out, err := tr.Transform(context.Background(), pipeline.Input{
		Data:     encodePNG(t, 10, 10),
		Format:   core.FormatUnknown,
		Settings: settings.Defaults(settings.KindResize, config.Default().Quality),
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Format != core.FormatPNG || out.Width != 5 {
		t.Errorf("got %s %dx%d", out.Format, out.Width, out.Height)
	}
}

func TestTransform_DecodeFailure(t *testing.T) {
	tr, _ := newTransformer(t)
	_, err := tr.Transform(context.Background(), pipeline.Input{
		Data:     []byte("definitely not an image"),
		Format:   core.FormatPNG,
		Settings: settings.Defaults(settings.KindResize, config.Default().Quality),
	})
	if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
		t.Errorf("got %v, want decode error", err)
	}
}

func TestTransform_UnsupportedTarget(t *testing.T) {
	tr, _ := newTransformer(t)
	s := withPatch(settings.KindConvert, settings.Patch{Format: settings.Ptr(core.FormatWebP)}, 0, 0)
	_, err := tr.Transform(context.Background(), pipeline.Input{
		Data: encodePNG(t, 8, 8), Format: core.FormatPNG, Settings: s,
	})
	if !apperrors.IsCategory(err, apperrors.CategoryEncode) {
		t.Errorf("got %v, want encode error", err)
	}
}

func TestTransform_Canceled(t *testing.T) {
	tr, _ := newTransformer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Transform(ctx, pipeline.Input{
		Data:     encodePNG(t, 8, 8),
		Format:   core.FormatPNG,
		Settings: settings.Defaults(settings.KindResize, config.Default().Quality),
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRenderStep_RejectsOutOfBounds(t *testing.T) {
	step := &pipeline.RenderStep{Region: image.Rect(0, 0, 50, 50), Width: 10, Height: 10}
	_, err := step.Execute(context.Background(), &core.ImageData{Image: gradient(20, 20)})
	if !apperrors.IsCategory(err, apperrors.CategoryPipeline) {
		t.Errorf("got %v, want pipeline error", err)
	}
}
