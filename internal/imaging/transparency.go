package imaging

import "fmt"

// Default grey range made transparent by ApplyTransparency.
const (
	DefaultTransparentFrom uint8 = 250
	DefaultTransparentTo   uint8 = 255
)

// ApplyTransparency sets alpha to 0 on every pixel that is an exact grey
// (R == G == B) with a level in [from, to]. Colour bytes are left untouched.
//
// The buffer is modified in place. Formats without an alpha channel are
// rejected with ErrUnsupportedFormat. An empty range (from > to) changes
// nothing. It returns the number of pixels made transparent.
func ApplyTransparency(buf *PixelBuffer, from, to uint8) (int, error) {
	if err := buf.Validate(); err != nil {
		return 0, err
	}
	if !buf.Format.HasAlpha() {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, buf.Format)
	}
	if from > to {
		return 0, nil
	}

	changed := 0
	for y := 0; y < buf.Height; y++ {
		row := buf.Pix[y*buf.Stride : y*buf.Stride+buf.Width*4]
		for i := 0; i < len(row); i += 4 {
			b, g, r := row[i], row[i+1], row[i+2]
			if r != g || g != b || r < from || r > to {
				continue
			}
			if row[i+3] != 0 {
				row[i+3] = 0
				changed++
			}
		}
	}
	return changed, nil
}
