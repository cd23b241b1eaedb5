// Package imaging implements border trimming over raw pixel buffers, plus the
// decode and encode steps around it.
//
// # Pixel Buffers
//
// A PixelBuffer is a stride-addressed byte array in B, G, R(, A|X) order.
// The pixel at (x, y) starts at y*Stride + x*BytesPerPixel. Decoded images are
// converted to FormatBGRA32 by FromImage; ToImage converts back to
// *image.NRGBA for encoding.
//
// # Trimming
//
// ComputeBoundingBox scans every pixel once and returns the inclusive box
// around all foreground pixels. A pixel is background when its blue, green
// and red values are all strictly greater than the Threshold; anything else
// is foreground. Crop copies a box into a new buffer and Trim combines the
// two. Trimming an image with no foreground fails with ErrEmptyImage.
//
// # Coordinate System
//
// All coordinates are 0-based with the origin at the top-left pixel.
// BoundingBox coordinates are inclusive on both ends, so Width is
// MaxX-MinX+1. BoundingBox.Rect converts to a half-open image.Rectangle.
//
// # Thread Safety
//
// Buffer operations are stateless and safe to run concurrently on different
// buffers. ApplyTransparency mutates its buffer and must not race with other
// users of the same buffer. ImageCache is safe for concurrent use.
//
// # Error Handling
//
// Core failures wrap ErrInvalidBuffer, ErrEmptyImage, ErrInvalidRegion or
// ErrUnsupportedFormat; test for them with errors.Is. Decode failures are a
// *DecodeError, and output failures wrap ErrOutputDir or ErrUnknownFormat.
package imaging
