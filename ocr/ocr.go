// Package ocr defines the recognition contract used to build searchable
// documents. Recognition itself is a collaborator behind the Engine
// interface; this package consumes its word boxes to place an invisible
// text layer over scanned pages.
package ocr

import "context"

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
)

// Region is a rectangle in pixel coordinates, origin in the upper-left
// corner of the image.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input is a single page image submitted for recognition.
type Input struct {
	// Image is the encoded payload in the format given by Format.
	Image  []byte
	Format ImageFormat
	// PageIndex links the input back to its zero-based page.
	PageIndex int
	// DPI is the density the page was rasterized at; the text layer
	// needs it to map pixel boxes back to page space. Zero means 72.
	DPI int
	// Languages holds trained-data hints such as "eng" or "deu".
	Languages []string
	// Metadata passes engine-specific knobs through without hard-coding
	// them into the API surface.
	Metadata map[string]string
}

// Word is one recognized token with its pixel bounds.
type Word struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Result is the recognition output for one input image.
type Result struct {
	PageIndex int
	PlainText string
	Words     []Word
}

// Engine is the recognition provider contract: one image in, one result
// out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// Rasterizer renders a page to encoded image bytes at the given
// density. Rendering is an external capability; the engine never
// rasterizes itself.
type Rasterizer interface {
	Render(ctx context.Context, pageIndex int, dpi int) ([]byte, ImageFormat, error)
}

// InputOption mutates an input before submission.
type InputOption func(*Input)

// WithLanguages sets language hints.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithDPI overrides the density hint.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata sets provider-specific variables.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}
