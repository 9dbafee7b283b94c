package utils_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/nguyennamkkb/Simpleverse-home/errors"
	"github.com/nguyennamkkb/Simpleverse-home/utils"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, "jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n'}, "png"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"gif", []byte("GIF89a......"), "gif"},
		{"bmp", []byte("BM\x00\x00\x00\x00"), "bmp"},
		{"short", []byte{0xFF}, "unknown"},
		{"text", []byte("hello world"), "unknown"},
	}
	for _, tc := range tests {
		if got := utils.DetectFormat(tc.data); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestScaleDimensions(t *testing.T) {
	tests := []struct {
		srcW, srcH, targetW, targetH int
		wantW, wantH                 int
	}{
		{800, 600, 400, 0, 400, 300},
		{800, 600, 0, 300, 400, 300},
		{800, 600, 200, 200, 200, 200},
		{800, 600, 0, 0, 800, 600},
		{1000, 333, 500, 0, 500, 167},
	}
	for _, tc := range tests {
		gotW, gotH := utils.ScaleDimensions(tc.srcW, tc.srcH, tc.targetW, tc.targetH)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Errorf("ScaleDimensions(%d,%d,%d,%d) = %d,%d; want %d,%d",
				tc.srcW, tc.srcH, tc.targetW, tc.targetH, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"photo.png":              "photo.png",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\cat.jpg`:    "cat.jpg",
		"what?.gif":              "what_.gif",
		"tab\tname.bmp":          "tabname.bmp",
		"":                       "image",
		"..":                     "image",
		"  spaced name .webp  ":  "spaced name .webp",
	}
	for in, want := range tests {
		if got := utils.SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitExt(t *testing.T) {
	base, ext := utils.SplitExt("holiday.photo.JPG")
	if base != "holiday.photo" || ext != ".JPG" {
		t.Errorf("got %q %q", base, ext)
	}
	base, ext = utils.SplitExt("README")
	if base != "README" || ext != "" {
		t.Errorf("got %q %q", base, ext)
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1536:            "1.50 KB",
		2 * 1024 * 1024: "2.00 MB",
	}
	for in, want := range tests {
		if got := utils.FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestDrainReader_Limit(t *testing.T) {
	payload := strings.Repeat("x", 100)

	buf, err := utils.DrainReader(context.Background(),
		&utils.LimitedReader{R: strings.NewReader(payload), Max: 100}, 16)
	if err != nil {
		t.Fatalf("exact limit: %v", err)
	}
	if buf.Len() != 100 {
		t.Errorf("len: got %d, want 100", buf.Len())
	}
	utils.ReleaseBuffer(buf)

	_, err = utils.DrainReader(context.Background(),
		&utils.LimitedReader{R: strings.NewReader(payload), Max: 99}, 16)
	if !errors.Is(err, apperrors.ErrInputTooLarge) {
		t.Errorf("over limit: got %v, want ErrInputTooLarge", err)
	}
}

func TestDrainReader_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := utils.DrainReader(ctx, bytes.NewReader([]byte("abc")), 0); err == nil {
		t.Error("expected cancellation error")
	}
}
