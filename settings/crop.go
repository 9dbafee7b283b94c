package settings

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// AspectRatio is a named crop ratio class.
type AspectRatio string

const (
	RatioFree AspectRatio = "free"
	Ratio1x1  AspectRatio = "1:1"
	Ratio4x3  AspectRatio = "4:3"
	Ratio16x9 AspectRatio = "16:9"
	Ratio3x2  AspectRatio = "3:2"
	Ratio9x16 AspectRatio = "9:16"
	Ratio2x3  AspectRatio = "2:3"
)

var ratioValues = map[AspectRatio]float64{
	Ratio1x1:  1,
	Ratio4x3:  4.0 / 3,
	Ratio16x9: 16.0 / 9,
	Ratio3x2:  3.0 / 2,
	Ratio9x16: 9.0 / 16,
	Ratio2x3:  2.0 / 3,
}

func (a AspectRatio) Valid() bool {
	if a == RatioFree {
		return true
	}
	_, ok := ratioValues[a]
	return ok
}

// Value returns width/height for a locked ratio; ok is false for free.
func (a AspectRatio) Value() (ratio float64, ok bool) {
	ratio, ok = ratioValues[a]
	return ratio, ok
}

// Rect is a crop rectangle in percentage space: every field is in [0,100]
// and X+Width, Y+Height never exceed 100.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FullRect selects the entire image.
var FullRect = Rect{X: 0, Y: 0, Width: 100, Height: 100}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f,%.2f %.2fx%.2f)", r.X, r.Y, r.Width, r.Height)
}

// ClampRect forces r into the frame, shrinking extents before moving
// offsets.
func ClampRect(r Rect) Rect {
	r.Width = clampPct(r.Width, 0, 100)
	r.Height = clampPct(r.Height, 0, 100)
	r.X = clampPct(r.X, 0, 100-r.Width)
	r.Y = clampPct(r.Y, 0, 100-r.Height)
	return r
}

func clampPct(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// InitialRect returns the centered rectangle with the given ratio that uses
// as much of a w×h image as possible.  The wider axis is constrained; the
// other spans the full extent.  Free, or unknown dimensions, select the
// whole image.
func InitialRect(w, h int, ratio AspectRatio) Rect {
	target, ok := ratio.Value()
	if !ok || w <= 0 || h <= 0 {
		return FullRect
	}

	current := float64(w) / float64(h)
	r := FullRect
	if current > target {
		r.Width = float64(h) * target / float64(w) * 100
		r.X = (100 - r.Width) / 2
	} else {
		r.Height = float64(w) / target / float64(h) * 100
		r.Y = (100 - r.Height) / 2
	}
	return ClampRect(r)
}

// ToPixels converts r to a pixel rectangle inside a w×h image.  Values are
// rounded to the nearest pixel and the result is at least 1×1.
func ToPixels(r Rect, w, h int) image.Rectangle {
	r = ClampRect(r)
	x := int(math.Round(r.X / 100 * float64(w)))
	y := int(math.Round(r.Y / 100 * float64(h)))
	cw := int(math.Round(r.Width / 100 * float64(w)))
	ch := int(math.Round(r.Height / 100 * float64(h)))

	cw = min(max(cw, 1), w)
	ch = min(max(ch, 1), h)
	x = min(max(x, 0), w-cw)
	y = min(max(y, 0), h-ch)
	return image.Rect(x, y, x+cw, y+ch)
}

// ── Interactive editing ───────────────────────────────────────────────────────

// Handle names one of the eight resize grips of a crop rectangle.
type Handle string

const (
	HandleN  Handle = "n"
	HandleS  Handle = "s"
	HandleE  Handle = "e"
	HandleW  Handle = "w"
	HandleNE Handle = "ne"
	HandleNW Handle = "nw"
	HandleSE Handle = "se"
	HandleSW Handle = "sw"
)

func (h Handle) Valid() bool {
	switch h {
	case HandleN, HandleS, HandleE, HandleW, HandleNE, HandleNW, HandleSE, HandleSW:
		return true
	}
	return false
}

func (h Handle) has(edge byte) bool { return strings.IndexByte(string(h), edge) >= 0 }

func (h Handle) corner() bool { return len(h) == 2 }

// MoveRect translates r by (dx, dy) percent, stopping at the frame edges.
func MoveRect(r Rect, dx, dy float64) Rect {
	r = ClampRect(r)
	r.X = clampPct(r.X+dx, 0, 100-r.Width)
	r.Y = clampPct(r.Y+dy, 0, 100-r.Height)
	return r
}

// DragHandle resizes r by dragging handle by (dx, dy) percent.  Extents
// never drop below MinCropExtent.  With a locked ratio the opposite axis is
// recomputed in pixel space of the w×h image: edge handles e/w drive the
// height, n/s drive the width, and corners follow whichever delta
// dominates.
func DragHandle(r Rect, handle Handle, dx, dy float64, ratio AspectRatio, w, h int) Rect {
	r = ClampRect(r)

	if handle.has('e') {
		r.Width = math.Max(MinCropExtent, math.Min(100-r.X, r.Width+dx))
	}
	if handle.has('w') {
		nw := math.Max(MinCropExtent, r.Width-dx)
		r.X = math.Max(0, r.X+(r.Width-nw))
		r.Width = nw
	}
	if handle.has('s') {
		r.Height = math.Max(MinCropExtent, math.Min(100-r.Y, r.Height+dy))
	}
	if handle.has('n') {
		nh := math.Max(MinCropExtent, r.Height-dy)
		r.Y = math.Max(0, r.Y+(r.Height-nh))
		r.Height = nh
	}

	target, locked := ratio.Value()
	if !locked || w <= 0 || h <= 0 {
		return ClampRect(r)
	}

	// Pixel ratio (r.Width*w)/(r.Height*h) must equal target.
	widthDriven := handle == HandleE || handle == HandleW
	if handle.corner() {
		widthDriven = math.Abs(dx) >= math.Abs(dy)
	}
	if widthDriven {
		r.Height = r.Width * float64(w) / (target * float64(h))
	} else {
		r.Width = r.Height * float64(h) * target / float64(w)
	}
	return fitLocked(r, target, w, h)
}

// fitLocked shrinks a ratio-locked rectangle until it fits the frame,
// keeping the ratio instead of clipping one axis.
func fitLocked(r Rect, target float64, w, h int) Rect {
	if r.X+r.Width > 100 {
		r.Width = 100 - r.X
		r.Height = r.Width * float64(w) / (target * float64(h))
	}
	if r.Y+r.Height > 100 {
		r.Height = 100 - r.Y
		r.Width = r.Height * float64(h) * target / float64(w)
	}
	return ClampRect(r)
}
