package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// PixelFormat describes the byte layout of one pixel in a PixelBuffer.
//
// Every supported format stores colour channels in B, G, R order, matching
// the little-endian 24/32-bit bitmap layout produced by most desktop decoders.
type PixelFormat int

const (
	// FormatUnknown is the zero value and is never valid.
	FormatUnknown PixelFormat = iota

	// FormatBGR24 stores 3 bytes per pixel: B, G, R.
	FormatBGR24

	// FormatBGRX32 stores 4 bytes per pixel: B, G, R and an unused byte.
	FormatBGRX32

	// FormatBGRA32 stores 4 bytes per pixel: B, G, R, A (non-premultiplied).
	FormatBGRA32
)

// BytesPerPixel returns 3 or 4 for known formats and 0 otherwise.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatBGR24:
		return 3
	case FormatBGRX32, FormatBGRA32:
		return 4
	default:
		return 0
	}
}

// HasAlpha reports whether byte 3 of each pixel is an alpha channel.
func (f PixelFormat) HasAlpha() bool {
	return f == FormatBGRA32
}

func (f PixelFormat) String() string {
	switch f {
	case FormatBGR24:
		return "BGR24"
	case FormatBGRX32:
		return "BGRX32"
	case FormatBGRA32:
		return "BGRA32"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// PixelBuffer is a raw, stride-addressed pixel array.
//
// The pixel at (x, y) starts at Pix[y*Stride + x*BytesPerPixel]. Stride may be
// larger than Width*BytesPerPixel when rows are padded (for example to a
// 4-byte boundary, as in BMP files); padding bytes are never read.
type PixelBuffer struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Pix    []byte
}

// NewPixelBuffer allocates a zeroed, tightly packed buffer.
func NewPixelBuffer(width, height int, format PixelFormat) *PixelBuffer {
	stride := width * format.BytesPerPixel()
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Stride: stride,
		Format: format,
		Pix:    make([]byte, stride*height),
	}
}

// BytesPerPixel is shorthand for b.Format.BytesPerPixel().
func (b *PixelBuffer) BytesPerPixel() int {
	return b.Format.BytesPerPixel()
}

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (b *PixelBuffer) PixOffset(x, y int) int {
	return pixelOffset(x, y, b.Stride, b.Format.BytesPerPixel())
}

func pixelOffset(x, y, stride, bytesPerPixel int) int {
	return y*stride + x*bytesPerPixel
}

// Validate checks dimensions, format, stride and storage length.
// All failures wrap ErrInvalidBuffer.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d must be positive", ErrInvalidBuffer, b.Width, b.Height)
	}
	bpp := b.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("%w: unsupported pixel format %s", ErrInvalidBuffer, b.Format)
	}
	if b.Width > math.MaxInt/bpp {
		return fmt.Errorf("%w: width %d is too large", ErrInvalidBuffer, b.Width)
	}
	rowBytes := b.Width * bpp
	if b.Stride < rowBytes {
		return fmt.Errorf("%w: stride %d is smaller than row size %d", ErrInvalidBuffer, b.Stride, rowBytes)
	}
	if b.Height-1 > (math.MaxInt-rowBytes)/b.Stride {
		return fmt.Errorf("%w: %d rows of stride %d are too large", ErrInvalidBuffer, b.Height, b.Stride)
	}
	// The last row does not need to carry its padding.
	need := (b.Height-1)*b.Stride + rowBytes
	if len(b.Pix) < need {
		return fmt.Errorf("%w: pixel data has %d bytes, need %d", ErrInvalidBuffer, len(b.Pix), need)
	}
	return nil
}

// BGRA returns the channel values at (x, y). Alpha is 255 for formats
// without an alpha channel. The caller must ensure (x, y) is in range.
func (b *PixelBuffer) BGRA(x, y int) (blue, green, red, alpha uint8) {
	i := b.PixOffset(x, y)
	alpha = 255
	if b.Format.HasAlpha() {
		alpha = b.Pix[i+3]
	}
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2], alpha
}

// FromImage converts any image into a tightly packed BGRA32 buffer.
//
// The source is first normalised to non-premultiplied NRGBA so that alpha is
// preserved and colour values of transparent pixels are not scaled.
func FromImage(img image.Image) *PixelBuffer {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	buf := NewPixelBuffer(w, h, FormatBGRA32)
	for y := 0; y < h; y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := buf.Pix[y*buf.Stride : y*buf.Stride+w*4]
		for i := 0; i < len(src); i += 4 {
			dst[i+0] = src[i+2]
			dst[i+1] = src[i+1]
			dst[i+2] = src[i+0]
			dst[i+3] = src[i+3]
		}
	}
	return buf
}

// ToImage converts a buffer into an *image.NRGBA anchored at (0, 0).
// Formats without alpha produce fully opaque pixels.
func ToImage(b *PixelBuffer) (*image.NRGBA, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	bpp := b.BytesPerPixel()
	hasAlpha := b.Format.HasAlpha()
	for y := 0; y < b.Height; y++ {
		si := y * b.Stride
		di := y * out.Stride
		for x := 0; x < b.Width; x++ {
			out.Pix[di+0] = b.Pix[si+2]
			out.Pix[di+1] = b.Pix[si+1]
			out.Pix[di+2] = b.Pix[si+0]
			if hasAlpha {
				out.Pix[di+3] = b.Pix[si+3]
			} else {
				out.Pix[di+3] = 255
			}
			si += bpp
			di += 4
		}
	}
	return out, nil
}
