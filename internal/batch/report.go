package batch

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/image-trimmer/internal/imaging"
)

// Status is the outcome of one batch item.
type Status string

const (
	StatusTrimmed   Status = "trimmed"
	StatusEmpty     Status = "empty"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Item describes what happened to one input image.
type Item struct {
	// Source is the input path, or "id <n>" for database rows.
	Source string `yaml:"source" json:"source"`
	ID     *int   `yaml:"id,omitempty" json:"id,omitempty"`
	Status Status `yaml:"status" json:"status"`

	// Output is the written file, set only for trimmed items.
	Output string               `yaml:"output,omitempty" json:"output,omitempty"`
	Box    *imaging.BoundingBox `yaml:"box,omitempty" json:"box,omitempty"`
	Width  int                  `yaml:"width,omitempty" json:"width,omitempty"`
	Height int                  `yaml:"height,omitempty" json:"height,omitempty"`

	// Transparent is the number of pixels cleared by the transparency pass.
	Transparent int    `yaml:"transparent_pixels,omitempty" json:"transparent_pixels,omitempty"`
	Error       string `yaml:"error,omitempty" json:"error,omitempty"`
}

// Report summarises a batch run. Items keep input order.
type Report struct {
	Total     int    `yaml:"total" json:"total"`
	Trimmed   int    `yaml:"trimmed" json:"trimmed"`
	Empty     int    `yaml:"empty" json:"empty"`
	Failed    int    `yaml:"failed" json:"failed"`
	Cancelled int    `yaml:"cancelled,omitempty" json:"cancelled,omitempty"`
	Items     []Item `yaml:"items" json:"items"`
}

func (r *Report) tally() {
	r.Total = len(r.Items)
	r.Trimmed, r.Empty, r.Failed, r.Cancelled = 0, 0, 0, 0
	for _, it := range r.Items {
		switch it.Status {
		case StatusTrimmed:
			r.Trimmed++
		case StatusEmpty:
			r.Empty++
		case StatusFailed:
			r.Failed++
		case StatusCancelled:
			r.Cancelled++
		}
	}
}

// Summary returns a one-line description of the counts.
func (r *Report) Summary() string {
	s := fmt.Sprintf("%d images: %d trimmed, %d empty, %d failed", r.Total, r.Trimmed, r.Empty, r.Failed)
	if r.Cancelled > 0 {
		s += fmt.Sprintf(", %d cancelled", r.Cancelled)
	}
	return s
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// WriteFile writes the report as YAML to path.
func (r *Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := r.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadReport loads a report written by WriteFile.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
