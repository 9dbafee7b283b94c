package decoder_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/nguyennamkkb/Simpleverse-home/adapters/decoder"
	"github.com/nguyennamkkb/Simpleverse-home/core"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// withOrientation inserts an APP1 segment carrying EXIF orientation o right
// after the SOI marker.  order selects the TIFF byte order.
func withOrientation(data []byte, o uint16, order binary.ByteOrder) []byte {
	tiff := make([]byte, 26)
	if order == binary.LittleEndian {
		copy(tiff, "II")
	} else {
		copy(tiff, "MM")
	}
	order.PutUint16(tiff[2:], 42)
	order.PutUint32(tiff[4:], 8)       // IFD0 offset
	order.PutUint16(tiff[8:], 1)       // one entry
	order.PutUint16(tiff[10:], 0x0112) // orientation
	order.PutUint16(tiff[12:], 3)      // SHORT
	order.PutUint32(tiff[14:], 1)      // count
	order.PutUint16(tiff[18:], o)

	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	seg = append(seg, payload...)

	out := append([]byte{}, data[:2]...)
	out = append(out, seg...)
	return append(out, data[2:]...)
}

func TestOrientation(t *testing.T) {
	base := encodeJPEG(t, 8, 4)
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"no exif", base, 1},
		{"big endian 6", withOrientation(base, 6, binary.BigEndian), 6},
		{"little endian 8", withOrientation(base, 8, binary.LittleEndian), 8},
		{"mirrored 2", withOrientation(base, 2, binary.BigEndian), 2},
		{"out of range", withOrientation(base, 9, binary.BigEndian), 1},
		{"not a jpeg", []byte("GIF89a...."), 1},
		{"truncated", base[:3], 1},
	}
	for _, tc := range tests {
		if got := decoder.Orientation(tc.data); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestUprightDimensions(t *testing.T) {
	base := encodeJPEG(t, 400, 200)
	tests := []struct {
		orientation uint16
		w, h        int
	}{
		{1, 400, 200},
		{3, 400, 200},
		{5, 200, 400},
		{6, 200, 400},
		{8, 200, 400},
	}
	for _, tc := range tests {
		meta, err := decoder.Probe(withOrientation(base, tc.orientation, binary.BigEndian))
		if err != nil {
			t.Fatalf("orientation %d: %v", tc.orientation, err)
		}
		if meta.Width != tc.w || meta.Height != tc.h {
			t.Errorf("orientation %d: got %dx%d, want %dx%d",
				tc.orientation, meta.Width, meta.Height, tc.w, tc.h)
		}
		if meta.Orientation != int(tc.orientation) {
			t.Errorf("orientation %d: meta reports %d", tc.orientation, meta.Orientation)
		}
	}
}

// Header dimensions and Decode must agree on the frame, or crop rectangles
// computed at upload land on the wrong axes.
func TestHeaderMatchesDecode(t *testing.T) {
	data := withOrientation(encodeJPEG(t, 400, 200), 6, binary.BigEndian)
	meta, err := decoder.Probe(data)
	if err != nil {
		t.Fatal(err)
	}
	img, err := decoder.NewJPEG().Decode(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if meta.Width != img.Meta.Width || meta.Height != img.Meta.Height {
		t.Errorf("header %dx%d, decode %dx%d", meta.Width, meta.Height, img.Meta.Width, img.Meta.Height)
	}
}

func TestPNGIgnoresOrientation(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 30, 10))); err != nil {
		t.Fatal(err)
	}
	meta, err := decoder.Probe(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if meta.Format != core.FormatPNG || meta.Width != 30 || meta.Height != 10 {
		t.Errorf("got %+v", meta)
	}
}
