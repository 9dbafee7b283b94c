package decoder

import (
	"bytes"
	"encoding/binary"
)

const orientationTag = 0x0112

var exifHeader = []byte("Exif\x00\x00")

// Orientation returns the EXIF orientation (1-8) of a JPEG, or 1 when the
// data carries none.  Only the segments before the first scan are read.
func Orientation(data []byte) int {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return 1
	}
	for pos := 2; pos+4 <= len(data); {
		if data[pos] != 0xFF {
			return 1
		}
		marker := data[pos+1]
		switch {
		case marker == 0xFF: // fill byte
			pos++
			continue
		case marker == 0xD8 || (marker >= 0xD0 && marker <= 0xD7) || marker == 0x01:
			pos += 2
			continue
		case marker == 0xDA || marker == 0xD9: // start of scan, end of image
			return 1
		}
		length := int(binary.BigEndian.Uint16(data[pos+2:]))
		if length < 2 || pos+2+length > len(data) {
			return 1
		}
		payload := data[pos+4 : pos+2+length]
		if marker == 0xE1 && bytes.HasPrefix(payload, exifHeader) {
			if o := tiffOrientation(payload[len(exifHeader):]); o != 0 {
				return o
			}
		}
		pos += 2 + length
	}
	return 1
}

// tiffOrientation reads the orientation tag from IFD0 of a TIFF block, or
// returns 0.
func tiffOrientation(tiff []byte) int {
	if len(tiff) < 8 {
		return 0
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0
	}
	ifd := int(order.Uint32(tiff[4:]))
	if ifd < 8 || ifd+2 > len(tiff) {
		return 0
	}
	n := int(order.Uint16(tiff[ifd:]))
	for i := 0; i < n; i++ {
		entry := ifd + 2 + i*12
		if entry+12 > len(tiff) {
			return 0
		}
		if order.Uint16(tiff[entry:]) != orientationTag {
			continue
		}
		// SHORT, count 1: the value sits in the first two bytes of the
		// value field.
		v := int(order.Uint16(tiff[entry+8:]))
		if v < 1 || v > 8 {
			return 0
		}
		return v
	}
	return 0
}

// swapsAxes reports whether orientation o turns the stored frame by 90°.
func swapsAxes(o int) bool { return o >= 5 && o <= 8 }
