package editor

import (
	"context"
	"math"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
)

// Anchor selects where a stamp lands on the page.
type Anchor int

const (
	AnchorCenter Anchor = iota
	AnchorTopLeft
	AnchorTopRight
	AnchorBottomLeft
	AnchorBottomRight
)

// Color is an RGB triple in [0,1].
type Color struct {
	R, G, B float64
}

// TextWatermarkOptions configures a text overlay stamped across pages.
type TextWatermarkOptions struct {
	Text     string
	FontSize float64 // default 48
	Color    Color   // default mid gray
	Opacity  float64 // default 0.3
	Rotation float64 // degrees counterclockwise, default 45
	// Pages selects a zero-based subset; nil means every page.
	Pages []int
}

// ImageWatermarkOptions configures an image overlay stamped on pages.
type ImageWatermarkOptions struct {
	// Image is raw JPEG or PNG bytes.
	Image []byte
	// Scale is the stamp width as a fraction of the page width,
	// default 0.5. The aspect ratio is preserved.
	Scale   float64
	Opacity float64 // default 0.3
	Anchor  Anchor
	Pages   []int
}

// AddTextWatermark stamps semi-transparent text across the selected
// pages, centered and rotated about the page center.
func (e *Editor) AddTextWatermark(ctx context.Context, doc *object.Document, opts TextWatermarkOptions) error {
	if opts.Text == "" {
		return nil
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 48
	}
	if opts.Opacity == 0 {
		opts.Opacity = 0.3
	}
	if opts.Rotation == 0 {
		opts.Rotation = 45
	}
	if opts.Color == (Color{}) {
		opts.Color = Color{R: 0.5, G: 0.5, B: 0.5}
	}

	pages, err := doc.Pages()
	if err != nil {
		return err
	}
	indices, err := resolvePages(opts.Pages, len(pages))
	if err != nil {
		return err
	}
	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.stampText(ctx, doc, pages[i], opts); err != nil {
			return err
		}
	}
	e.log.Debug("text watermark applied", observability.Int("pages", len(indices)))
	return nil
}

func (e *Editor) stampText(ctx context.Context, doc *object.Document, page object.Page, opts TextWatermarkOptions) error {
	gsName := opacityState(doc, page, opts.Opacity)
	fontName := helveticaFont(doc, page)

	// Helvetica averages about half the point size per glyph; close
	// enough to center a stamp.
	textWidth := float64(len(opts.Text)) * opts.FontSize * 0.5
	cx := page.MediaBox.LLX + page.MediaBox.Width()/2
	cy := page.MediaBox.LLY + page.MediaBox.Height()/2
	rad := opts.Rotation * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	// Shift back along the baseline so the text centers on the page.
	tx := cx - cos*textWidth/2
	ty := cy - sin*textWidth/2

	var b []byte
	b = append(b, "q\n/"+string(gsName)+" gs\nBT\n"...)
	b = append(b, "/"+string(fontName)+" "+num(opts.FontSize)+" Tf\n"...)
	b = append(b, num(opts.Color.R)+" "+num(opts.Color.G)+" "+num(opts.Color.B)+" rg\n"...)
	b = append(b, num(cos)+" "+num(sin)+" "+num(-sin)+" "+num(cos)+" "+num(tx)+" "+num(ty)+" Tm\n"...)
	b = append(b, '(')
	b = append(b, escapeText(opts.Text)...)
	b = append(b, ") Tj\nET\nQ\n"...)
	return e.appendOverlay(ctx, doc, page, b)
}

// AddImageWatermark stamps a semi-transparent image on the selected
// pages at the given anchor.
func (e *Editor) AddImageWatermark(ctx context.Context, doc *object.Document, opts ImageWatermarkOptions) error {
	if opts.Scale <= 0 {
		opts.Scale = 0.5
	}
	if opts.Opacity == 0 {
		opts.Opacity = 0.3
	}
	pages, err := doc.Pages()
	if err != nil {
		return err
	}
	indices, err := resolvePages(opts.Pages, len(pages))
	if err != nil {
		return err
	}
	img, err := e.importImage(ctx, doc, opts.Image)
	if err != nil {
		return err
	}
	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.stampImage(ctx, doc, pages[i], img, opts); err != nil {
			return err
		}
	}
	e.log.Debug("image watermark applied", observability.Int("pages", len(indices)))
	return nil
}

func (e *Editor) stampImage(ctx context.Context, doc *object.Document, page object.Page, img importedImage, opts ImageWatermarkOptions) error {
	gsName := opacityState(doc, page, opts.Opacity)
	imName := registerXObject(doc, page, img.Ref)

	w := page.MediaBox.Width() * opts.Scale
	h := w * float64(img.Height) / float64(img.Width)
	const margin = 36.0
	var x, y float64
	switch opts.Anchor {
	case AnchorTopLeft:
		x = page.MediaBox.LLX + margin
		y = page.MediaBox.URY - margin - h
	case AnchorTopRight:
		x = page.MediaBox.URX - margin - w
		y = page.MediaBox.URY - margin - h
	case AnchorBottomLeft:
		x = page.MediaBox.LLX + margin
		y = page.MediaBox.LLY + margin
	case AnchorBottomRight:
		x = page.MediaBox.URX - margin - w
		y = page.MediaBox.LLY + margin
	default:
		x = page.MediaBox.LLX + (page.MediaBox.Width()-w)/2
		y = page.MediaBox.LLY + (page.MediaBox.Height()-h)/2
	}

	ops := []byte("q\n/" + string(gsName) + " gs\n" +
		num(w) + " 0 0 " + num(h) + " " + num(x) + " " + num(y) + " cm\n" +
		"/" + string(imName) + " Do\nQ\n")
	return e.appendOverlay(ctx, doc, page, ops)
}

// Erase covers a page region with an opaque rectangle matching a white
// page background. The underlying operators stay in the content stream;
// this is masking, not content removal.
func (e *Editor) Erase(ctx context.Context, doc *object.Document, index int, region object.Rectangle) error {
	pages, err := doc.Pages()
	if err != nil {
		return err
	}
	if err := checkIndex(index, len(pages)); err != nil {
		return err
	}
	ops := []byte("q\n1 1 1 rg\n" +
		num(region.LLX) + " " + num(region.LLY) + " " +
		num(region.Width()) + " " + num(region.Height()) + " re\nf\nQ\n")
	return e.appendOverlay(ctx, doc, pages[index], ops)
}
