package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// DefaultFormat is the output extension used when none is given.
const DefaultFormat = "png"

// SaveOptions controls how an image is encoded to disk.
type SaveOptions struct {
	// Format is the file extension without the dot: png, jpg, jpeg, bmp,
	// gif, tif, tiff or webp. Empty means DefaultFormat.
	Format string

	// Quality applies to jpeg and lossy webp output (1-100).
	// Zero selects 90.
	Quality int

	// Lossless selects lossless webp encoding.
	Lossless bool
}

func (o SaveOptions) format() string {
	f := strings.ToLower(strings.TrimPrefix(o.Format, "."))
	if f == "" {
		return DefaultFormat
	}
	return f
}

func (o SaveOptions) quality() int {
	if o.Quality <= 0 || o.Quality > 100 {
		return 90
	}
	return o.Quality
}

// SupportedFormats lists the output extensions accepted by Encode.
func SupportedFormats() []string {
	return []string{"png", "jpg", "jpeg", "bmp", "gif", "tif", "tiff", "webp"}
}

// SupportsAlpha reports whether format keeps a per-pixel alpha channel when
// written by Encode.
func SupportsAlpha(format string) bool {
	switch (SaveOptions{Format: format}).format() {
	case "png", "tif", "tiff", "webp":
		return true
	}
	return false
}

// WithAlpha returns o, switched to PNG when its format would drop alpha.
func (o SaveOptions) WithAlpha() SaveOptions {
	if !SupportsAlpha(o.Format) {
		o.Format = "png"
	}
	return o
}

// Encode writes img to w in the format selected by opts.
func Encode(w io.Writer, img image.Image, opts SaveOptions) error {
	switch opts.format() {
	case "png":
		return imgio.PNGEncoder()(w, img)
	case "jpg", "jpeg":
		return imgio.JPEGEncoder(opts.quality())(w, img)
	case "bmp":
		return imgio.BMPEncoder()(w, img)
	case "gif":
		return imaging.Encode(w, img, imaging.GIF)
	case "tif", "tiff":
		return imaging.Encode(w, img, imaging.TIFF)
	case "webp":
		return webp.Encode(w, img, &webp.Options{
			Lossless: opts.Lossless,
			Quality:  float32(opts.quality()),
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
}

// Save encodes img as dir/name.<format> and returns the written path.
//
// The directory must already exist; Save never creates it. name is a plain
// file name: separators, "." and ".." are rejected with ErrInvalidName. A
// partially written file is removed when encoding fails.
func Save(img image.Image, dir, name string, opts SaveOptions) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrOutputDir, dir)
	}
	if !isSupportedFormat(opts.format()) {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	path := filepath.Join(dir, name+"."+opts.format())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}

	if err := Encode(f, img, opts); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

// EncodeBase64PNG returns img as a base64 PNG, for inline previews.
func EncodeBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imgio.PNGEncoder()(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode preview: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func isSupportedFormat(format string) bool {
	for _, f := range SupportedFormats() {
		if f == format {
			return true
		}
	}
	return false
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
