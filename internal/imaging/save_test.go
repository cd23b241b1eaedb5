package imaging

import (
	"encoding/base64"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSave_Formats(t *testing.T) {
	img := createPatternImage(20, 20)

	tests := []struct {
		format  string
		wantExt string
	}{
		{"", ".png"},
		{"png", ".png"},
		{"PNG", ".png"},
		{".jpg", ".jpg"},
		{"jpeg", ".jpeg"},
		{"bmp", ".bmp"},
		{"gif", ".gif"},
		{"tiff", ".tiff"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			dir := t.TempDir()
			path, err := Save(img, dir, "image_1", SaveOptions{Format: tt.format})
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if filepath.Ext(path) != tt.wantExt {
				t.Errorf("extension: got %s, want %s", filepath.Ext(path), tt.wantExt)
			}
			if filepath.Base(path) != "image_1"+tt.wantExt {
				t.Errorf("name: got %s", filepath.Base(path))
			}

			back, err := Open(path)
			if err != nil {
				t.Fatalf("written file does not decode: %v", err)
			}
			if back.Bounds().Dx() != 20 || back.Bounds().Dy() != 20 {
				t.Errorf("decoded size: got %v", back.Bounds())
			}
		})
	}
}

func TestSave_PreservesPixels(t *testing.T) {
	buf := newFilledBuffer(3, 2, FormatBGRA32, 0, [4]uint8{30, 20, 10, 255})
	setPixel(buf, 1, 1, [4]uint8{252, 252, 252, 0})
	img, err := ToImage(buf)
	if err != nil {
		t.Fatal(err)
	}

	path, err := Save(img, t.TempDir(), "exact", SaveOptions{Format: "png"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	decoded, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	back := FromImage(decoded)

	b, g, r, a := back.BGRA(0, 0)
	if b != 30 || g != 20 || r != 10 || a != 255 {
		t.Errorf("pixel (0,0): got (%d,%d,%d,%d)", b, g, r, a)
	}
	if _, _, _, a := back.BGRA(1, 1); a != 0 {
		t.Errorf("transparent pixel alpha: got %d, want 0", a)
	}
}

func TestSave_MissingDirectory(t *testing.T) {
	img := createInMemoryImage(4, 4, color.RGBA{0, 0, 0, 255})

	_, err := Save(img, filepath.Join(t.TempDir(), "missing"), "image", SaveOptions{})
	if !errors.Is(err, ErrOutputDir) {
		t.Errorf("expected ErrOutputDir, got %v", err)
	}
}

func TestSave_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	img := createInMemoryImage(4, 4, color.RGBA{0, 0, 0, 255})

	if _, err := Save(img, file, "image", SaveOptions{}); !errors.Is(err, ErrOutputDir) {
		t.Errorf("expected ErrOutputDir, got %v", err)
	}
}

func TestSave_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	img := createInMemoryImage(4, 4, color.RGBA{0, 0, 0, 255})

	_, err := Save(img, dir, "image", SaveOptions{Format: "psd"})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("no file should be written for an unknown format, found %d", len(entries))
	}
}

func TestSave_InvalidName(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "out")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	img := createInMemoryImage(4, 4, color.RGBA{0, 0, 0, 255})

	for _, name := range []string{"", ".", "..", "../escaped", `..\escaped`, "sub/image", "/tmp/image"} {
		if _, err := Save(img, dir, name, SaveOptions{}); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Save(%q): expected ErrInvalidName, got %v", name, err)
		}
	}

	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("output directory should be empty, found %d entries", len(entries))
	}
	if entries, _ := os.ReadDir(parent); len(entries) != 1 {
		t.Errorf("nothing should be written next to the output directory, found %d entries", len(entries))
	}

	// Dots inside a plain name are fine.
	path, err := Save(img, dir, "scan..v2", SaveOptions{})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("written outside the output directory: %s", path)
	}
}

func TestSupportsAlpha(t *testing.T) {
	tests := []struct {
		format string
		want   bool
	}{
		{"", true},
		{"png", true},
		{".PNG", true},
		{"tiff", true},
		{"webp", true},
		{"jpg", false},
		{"jpeg", false},
		{"bmp", false},
		{"gif", false},
	}
	for _, tt := range tests {
		if got := SupportsAlpha(tt.format); got != tt.want {
			t.Errorf("SupportsAlpha(%q) = %v, want %v", tt.format, got, tt.want)
		}
	}

	opts := SaveOptions{Format: "jpg", Quality: 75}.WithAlpha()
	if opts.Format != "png" || opts.Quality != 75 {
		t.Errorf("jpg WithAlpha: got %+v", opts)
	}
	if opts := (SaveOptions{Format: "webp", Lossless: true}).WithAlpha(); opts.Format != "webp" || !opts.Lossless {
		t.Errorf("webp WithAlpha: got %+v", opts)
	}
}

func TestEncodeBase64PNG(t *testing.T) {
	img := createInMemoryImage(7, 5, color.RGBA{1, 2, 3, 255})

	s, err := EncodeBase64PNG(img)
	if err != nil {
		t.Fatalf("EncodeBase64PNG failed: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	decoded, err := png.Decode(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 7 || decoded.Bounds().Dy() != 5 {
		t.Errorf("dimensions: got %v", decoded.Bounds())
	}
}
