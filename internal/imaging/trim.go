package imaging

import (
	"fmt"
	"image"
	"math"
)

// Threshold holds the per-channel limits that separate background from
// content.
//
// A pixel is background only when all three of its channels are strictly
// brighter than the corresponding limit. A pixel at or below the limit on any
// channel is foreground and is kept by trimming.
type Threshold struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

// DefaultThreshold treats near-white (above 250 on every channel) as
// background.
var DefaultThreshold = Threshold{R: 250, G: 250, B: 250}

// IsBackground reports whether a pixel with the given channels is background.
func (t Threshold) IsBackground(red, green, blue uint8) bool {
	return blue > t.B && green > t.G && red > t.R
}

// IsForeground is the negation of IsBackground.
func (t Threshold) IsForeground(red, green, blue uint8) bool {
	return !t.IsBackground(red, green, blue)
}

// BoundingBox is an axis-aligned rectangle with inclusive pixel coordinates.
//
// Width and Height are Max-Min+1, so a box around a single pixel is 1x1.
// A box with MinX > MaxX (or MinY > MaxY) is empty; EmptyBox returns the
// canonical empty value used as the starting point of a scan.
type BoundingBox struct {
	MinX int `json:"min_x" yaml:"min_x"`
	MinY int `json:"min_y" yaml:"min_y"`
	MaxX int `json:"max_x" yaml:"max_x"`
	MaxY int `json:"max_y" yaml:"max_y"`
}

// EmptyBox returns the "nothing found yet" sentinel.
func EmptyBox() BoundingBox {
	return BoundingBox{
		MinX: math.MaxInt,
		MinY: math.MaxInt,
		MaxX: math.MinInt,
		MaxY: math.MinInt,
	}
}

// Empty reports whether the box encloses no pixel.
func (bb BoundingBox) Empty() bool {
	return bb.MinX > bb.MaxX || bb.MinY > bb.MaxY
}

// Width returns the inclusive width, or 0 for an empty box.
func (bb BoundingBox) Width() int {
	if bb.Empty() {
		return 0
	}
	return bb.MaxX - bb.MinX + 1
}

// Height returns the inclusive height, or 0 for an empty box.
func (bb BoundingBox) Height() int {
	if bb.Empty() {
		return 0
	}
	return bb.MaxY - bb.MinY + 1
}

// Rect converts the box into a half-open image.Rectangle.
// An empty box converts to the zero rectangle.
func (bb BoundingBox) Rect() image.Rectangle {
	if bb.Empty() {
		return image.Rectangle{}
	}
	return image.Rect(bb.MinX, bb.MinY, bb.MaxX+1, bb.MaxY+1)
}

func (bb BoundingBox) String() string {
	if bb.Empty() {
		return "(empty)"
	}
	return fmt.Sprintf("(%d,%d)-(%d,%d)", bb.MinX, bb.MinY, bb.MaxX, bb.MaxY)
}

func (bb *BoundingBox) extend(x, y int) {
	if x < bb.MinX {
		bb.MinX = x
	}
	if y < bb.MinY {
		bb.MinY = y
	}
	if x > bb.MaxX {
		bb.MaxX = x
	}
	if y > bb.MaxY {
		bb.MaxY = y
	}
}

// ComputeBoundingBox returns the smallest box containing every foreground
// pixel of buf.
//
// Rows are scanned top to bottom and pixels left to right. Channel bytes are
// read as byte0=Blue, byte1=Green, byte2=Red; a fourth byte, if present, is
// ignored. When the whole image is background the result is EmptyBox() and the
// error is nil; the caller decides whether that is a failure.
func ComputeBoundingBox(buf *PixelBuffer, t Threshold) (BoundingBox, error) {
	if err := buf.Validate(); err != nil {
		return EmptyBox(), err
	}

	box := EmptyBox()
	bpp := buf.BytesPerPixel()
	for y := 0; y < buf.Height; y++ {
		row := buf.Pix[y*buf.Stride : y*buf.Stride+buf.Width*bpp]
		for x := 0; x < buf.Width; x++ {
			i := x * bpp
			if t.IsForeground(row[i+2], row[i+1], row[i]) {
				box.extend(x, y)
			}
		}
	}
	return box, nil
}

// Crop copies the region covered by box into a new, tightly packed buffer of
// the same pixel format. The source buffer is not modified.
func Crop(buf *PixelBuffer, box BoundingBox) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if box.Empty() {
		return nil, fmt.Errorf("%w: box %s is empty", ErrInvalidRegion, box)
	}
	if box.MinX < 0 || box.MinY < 0 || box.MaxX >= buf.Width || box.MaxY >= buf.Height {
		return nil, fmt.Errorf("%w: box %s outside %dx%d image",
			ErrInvalidRegion, box, buf.Width, buf.Height)
	}

	out := NewPixelBuffer(box.Width(), box.Height(), buf.Format)
	rowBytes := out.Width * out.BytesPerPixel()
	for y := 0; y < out.Height; y++ {
		si := buf.PixOffset(box.MinX, box.MinY+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+rowBytes], buf.Pix[si:si+rowBytes])
	}
	return out, nil
}

// Trim crops buf to the bounding box of its foreground pixels.
//
// It returns ErrEmptyImage when the image contains only background, rather
// than producing a zero-sized result.
func Trim(buf *PixelBuffer, t Threshold) (*PixelBuffer, error) {
	box, err := ComputeBoundingBox(buf, t)
	if err != nil {
		return nil, err
	}
	if box.Empty() {
		return nil, fmt.Errorf("%w (threshold r=%d g=%d b=%d)", ErrEmptyImage, t.R, t.G, t.B)
	}
	return Crop(buf, box)
}
