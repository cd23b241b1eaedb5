package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// MaxPreviewSide bounds the longest side of a preview image.
const MaxPreviewSide = 1024

// PreviewResult contains an inline PNG rendering of an image
type PreviewResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Preview renders img as a base64 PNG, scaled by scale and then fitted
// within MaxPreviewSide. A scale of 0 or 1 keeps the original size.
func Preview(img image.Image, scale float64) (*PreviewResult, error) {
	if scale < 0 {
		return nil, fmt.Errorf("invalid preview scale %g", scale)
	}

	var out image.Image = img
	if scale != 0 && scale != 1.0 {
		w := int(float64(img.Bounds().Dx()) * scale)
		h := int(float64(img.Bounds().Dy()) * scale)
		if w < 1 || h < 1 {
			return nil, fmt.Errorf("preview scale %g leaves no pixels", scale)
		}
		out = imaging.Resize(out, w, h, imaging.Lanczos)
	}
	if out.Bounds().Dx() > MaxPreviewSide || out.Bounds().Dy() > MaxPreviewSide {
		out = imaging.Fit(out, MaxPreviewSide, MaxPreviewSide, imaging.Lanczos)
	}

	data, err := EncodeBase64PNG(out)
	if err != nil {
		return nil, err
	}

	return &PreviewResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: data,
		MimeType:    "image/png",
	}, nil
}
