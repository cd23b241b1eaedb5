package imaging

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBuffer reports malformed dimensions, stride or pixel format.
	ErrInvalidBuffer = errors.New("invalid pixel buffer")

	// ErrEmptyImage reports that no foreground pixel was found, so there is
	// nothing to trim to.
	ErrEmptyImage = errors.New("image has no foreground pixels")

	// ErrInvalidRegion reports a crop box that is empty, inverted or outside
	// the buffer.
	ErrInvalidRegion = errors.New("invalid crop region")

	// ErrUnsupportedFormat reports a transparency request on a pixel format
	// without an alpha channel.
	ErrUnsupportedFormat = errors.New("pixel format has no alpha channel")

	// ErrOutputDir reports a missing or non-directory output location.
	ErrOutputDir = errors.New("output directory does not exist")

	// ErrUnknownFormat reports an unsupported output file extension.
	ErrUnknownFormat = errors.New("unknown output format")

	// ErrInvalidName reports an output name that is empty or would resolve
	// outside the output directory.
	ErrInvalidName = errors.New("invalid output name")
)

// DecodeError is returned when a file or byte stream cannot be read or is not
// a recognised image. It is distinct from the trimming errors so batch callers
// can tell bad input apart from algorithmic outcomes.
type DecodeError struct {
	// Path is the source file, or empty for in-memory data.
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
