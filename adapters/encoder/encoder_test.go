package encoder_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/nguyennamkkb/Simpleverse-home/adapters/encoder"
	"github.com/nguyennamkkb/Simpleverse-home/core"
)

// noise does not compress, so its PNG size tracks its area.
func noise(w, h int) *image.NRGBA {
	r := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(r.Intn(256)), G: uint8(r.Intn(256)), B: uint8(r.Intn(256)), A: 255})
		}
	}
	return img
}

func TestTinyPNG_FitsByteBound(t *testing.T) {
	const limit = 20_000
	enc := encoder.NewTinyPNG(limit)
	data, err := enc.Encode(context.Background(), &core.ImageData{Image: noise(200, 100)}, core.EncodeOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) > limit {
		t.Errorf("size: %d exceeds %d", len(data), limit)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not png: %v", err)
	}
	if cfg.Width >= 200 || cfg.Height >= 100 {
		t.Errorf("dims: got %dx%d, want smaller than 200x100", cfg.Width, cfg.Height)
	}
	if ratio := float64(cfg.Width) / float64(cfg.Height); ratio < 1.8 || ratio > 2.2 {
		t.Errorf("aspect drifted: %dx%d", cfg.Width, cfg.Height)
	}
}

func TestTinyPNG_SmallImageUntouched(t *testing.T) {
	enc := encoder.NewTinyPNG(0)
	data, err := enc.Encode(context.Background(), &core.ImageData{Image: noise(40, 30)}, core.EncodeOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not png: %v", err)
	}
	if cfg.Width != 40 || cfg.Height != 30 {
		t.Errorf("dims: got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestICO_FitsLargeImages(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
		entryW       byte
	}{
		{16, 16, 16, 16, 16},
		{300, 600, 128, 256, 128},
		{256, 256, 256, 256, 0},
	}
	for _, tc := range tests {
		data, err := encoder.NewICO().Encode(context.Background(),
			&core.ImageData{Image: noise(tc.w, tc.h)}, core.EncodeOptions{})
		if err != nil {
			t.Fatalf("%dx%d: %v", tc.w, tc.h, err)
		}
		if data[6] != tc.entryW {
			t.Errorf("%dx%d: entry width byte %d, want %d", tc.w, tc.h, data[6], tc.entryW)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(data[22:]))
		if err != nil {
			t.Fatalf("%dx%d: payload: %v", tc.w, tc.h, err)
		}
		if cfg.Width != tc.wantW || cfg.Height != tc.wantH {
			t.Errorf("%dx%d: payload %dx%d, want %dx%d", tc.w, tc.h, cfg.Width, cfg.Height, tc.wantW, tc.wantH)
		}
	}
}

func TestICO_EmptyInput(t *testing.T) {
	if _, err := encoder.NewICO().Encode(context.Background(), &core.ImageData{}, core.EncodeOptions{}); err == nil {
		t.Error("expected error for missing pixels")
	}
}
