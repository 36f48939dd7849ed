package ocr

import (
	"context"
	"fmt"

	"github.com/pdfdesk/pdfengine/editor"
	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
)

// TextLayerConfig carries the searchable-document tunables.
type TextLayerConfig struct {
	// DPI is the rasterization density for recognition. Zero means 150.
	DPI int
	// MinConfidence drops words below this recognition confidence,
	// 0-1. Zero keeps everything.
	MinConfidence float64
	// Languages holds trained-data hints passed to the engine.
	Languages []string

	Logger observability.Logger
	Tracer observability.Tracer
}

// TextLayer overlays recognized text invisibly over page images so the
// document becomes selectable and searchable without changing how it
// renders.
type TextLayer struct {
	cfg    TextLayerConfig
	editor *editor.Editor
	log    observability.Logger
	tracer observability.Tracer
}

// NewTextLayer returns a text layer builder.
func NewTextLayer(cfg TextLayerConfig) *TextLayer {
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	return &TextLayer{
		cfg:    cfg,
		editor: editor.New(editor.Config{Logger: cfg.Logger}),
		log:    log,
		tracer: tracer,
	}
}

// MakeSearchable rasterizes every page, runs recognition and applies
// the invisible layer. Cancellation is honored between pages, never
// mid-page. Pages whose recognition fails are skipped and counted in
// the returned total; the rest of the document still gets its layer.
func (t *TextLayer) MakeSearchable(ctx context.Context, doc *object.Document, engine Engine, rasterizer Rasterizer) (int, error) {
	ctx, span := t.tracer.StartSpan(ctx, "ocr.MakeSearchable")
	defer span.Finish()

	pages, err := doc.Pages()
	if err != nil {
		span.SetError(err)
		return 0, err
	}
	applied := 0
	for i := range pages {
		if err := ctx.Err(); err != nil {
			span.SetError(err)
			return applied, err
		}
		image, format, err := rasterizer.Render(ctx, i, t.cfg.DPI)
		if err != nil {
			return applied, fmt.Errorf("render page %d: %w", i, err)
		}
		result, err := engine.Recognize(ctx, Input{
			Image:     image,
			Format:    format,
			PageIndex: i,
			DPI:       t.cfg.DPI,
			Languages: t.cfg.Languages,
		})
		if err != nil {
			t.log.Warn("recognition failed, page left without text layer",
				observability.Int("page", i), observability.Err(err))
			continue
		}
		result.PageIndex = i
		if err := t.Apply(ctx, doc, result); err != nil {
			return applied, err
		}
		applied++
	}
	t.log.Info("searchable layer applied",
		observability.Int("pages", applied),
		observability.Int("total", len(pages)))
	return applied, nil
}

// Apply places one page's recognized words as invisible text (render
// mode 3) at their recognized positions.
func (t *TextLayer) Apply(ctx context.Context, doc *object.Document, result Result) error {
	if len(result.Words) == 0 {
		return nil
	}
	page, err := doc.Page(result.PageIndex)
	if err != nil {
		return err
	}
	fontName, err := t.editor.RegisterFont(doc, result.PageIndex)
	if err != nil {
		return err
	}

	dpi := float64(t.cfg.DPI)
	if dpi <= 0 {
		dpi = 72
	}
	scale := 72.0 / dpi

	var b []byte
	b = append(b, "BT\n3 Tr\n"...)
	for _, word := range result.Words {
		if word.Text == "" || word.Bounds.IsEmpty() {
			continue
		}
		if t.cfg.MinConfidence > 0 && word.Confidence < t.cfg.MinConfidence {
			continue
		}
		// Pixel boxes hang from the top-left corner; page space grows
		// upward from the bottom-left.
		size := word.Bounds.Height * scale
		x := page.MediaBox.LLX + word.Bounds.X*scale
		y := page.MediaBox.URY - (word.Bounds.Y+word.Bounds.Height)*scale

		b = append(b, "/"+string(fontName)+" "+formatNum(size)+" Tf\n"...)
		b = append(b, "1 0 0 1 "+formatNum(x)+" "+formatNum(y)+" Tm\n"...)
		b = append(b, '(')
		b = append(b, escapeText(word.Text)...)
		b = append(b, ") Tj\n"...)
	}
	b = append(b, "ET\n"...)
	return t.editor.Overlay(ctx, doc, result.PageIndex, b)
}

func formatNum(v float64) string { return object.FormatNumber(object.Real(v)) }

func escapeText(s string) []byte {
	out := make([]byte, 0, len(s)+8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(', ')', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	return out
}
