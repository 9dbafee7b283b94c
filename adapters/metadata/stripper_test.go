package metadata_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/nguyennamkkb/Simpleverse-home/adapters/metadata"
	"github.com/nguyennamkkb/Simpleverse-home/core"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	return img
}

// jpegWithEXIF encodes a JPEG and splices an APP1 "Exif" segment and a COM
// segment directly after SOI.
func jpegWithEXIF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(16, 16), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	payload := append([]byte("Exif\x00\x00"), bytes.Repeat([]byte{0x42}, 32)...)
	app1 := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(app1[2:], uint16(len(payload)+2))
	app1 = append(app1, payload...)

	comment := []byte("secret location")
	com := []byte{0xFF, 0xFE, 0, 0}
	binary.BigEndian.PutUint16(com[2:], uint16(len(comment)+2))
	com = append(com, comment...)

	out := append([]byte{}, raw[:2]...)
	out = append(out, app1...)
	out = append(out, com...)
	return append(out, raw[2:]...)
}

func pngWithText(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(8, 8)); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	data := []byte("Author\x00someone")
	chunk := make([]byte, 4, 12+len(data))
	binary.BigEndian.PutUint32(chunk, uint32(len(data)))
	chunk = append(chunk, "tEXt"...)
	chunk = append(chunk, data...)
	crc := crc32.ChecksumIEEE(chunk[4:])
	chunk = binary.BigEndian.AppendUint32(chunk, crc)

	// Insert before IEND (last 12 bytes).
	iend := len(raw) - 12
	out := append([]byte{}, raw[:iend]...)
	out = append(out, chunk...)
	return append(out, raw[iend:]...)
}

func TestStripJPEG(t *testing.T) {
	in := jpegWithEXIF(t)
	out, err := metadata.NewStripper().PostProcess(context.Background(), in, core.FormatJPEG,
		core.EncodeOptions{Quality: core.QualityNoRecompress, StripEXIF: true})
	if err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if bytes.Contains(out, []byte("Exif")) {
		t.Error("EXIF segment survived")
	}
	if bytes.Contains(out, []byte("secret location")) {
		t.Error("COM segment survived")
	}
	if len(out) >= len(in) {
		t.Errorf("output not smaller: %d >= %d", len(out), len(in))
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("stripped jpeg does not decode: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("width: got %d, want 16", img.Bounds().Dx())
	}
}

func TestStripPNG(t *testing.T) {
	in := pngWithText(t)
	if !bytes.Contains(in, []byte("tEXt")) {
		t.Fatal("fixture missing tEXt chunk")
	}
	out, err := metadata.StripPNG(in)
	if err != nil {
		t.Fatalf("StripPNG: %v", err)
	}
	if bytes.Contains(out, []byte("tEXt")) {
		t.Error("tEXt chunk survived")
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("stripped png does not decode: %v", err)
	}
}

func TestStrip_PassThrough(t *testing.T) {
	s := metadata.NewStripper()
	in := jpegWithEXIF(t)

	out, err := s.PostProcess(context.Background(), in, core.FormatJPEG, core.EncodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Error("StripEXIF=false must not modify bytes")
	}

	gifish := []byte("GIF89a-not-really")
	out, err = s.PostProcess(context.Background(), gifish, core.FormatGIF, core.EncodeOptions{StripEXIF: true})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, gifish) {
		t.Error("gif should pass through")
	}
}

func TestStrip_Truncated(t *testing.T) {
	in := jpegWithEXIF(t)
	if _, err := metadata.StripJPEG(in[:10]); err == nil {
		t.Error("expected error for truncated jpeg")
	}
	if _, err := metadata.StripPNG([]byte("not a png")); err == nil {
		t.Error("expected error for non-png input")
	}
}
