package editor

import (
	"context"

	"github.com/pdfdesk/pdfengine/object"
)

// appendOverlay adds drawing operators on top of a page's existing
// content. The existing stream list is bracketed with a save/restore
// pair so an unbalanced graphics state in the page cannot leak into the
// overlay.
func (e *Editor) appendOverlay(ctx context.Context, doc *object.Document, page object.Page, ops []byte) error {
	contents := object.NewArray()
	hadContent := false
	switch existing := doc.Resolve(doc.DictGet(page.Dict, "Contents")).(type) {
	case *object.Stream:
		prev, _ := page.Dict.Get("Contents")
		if _, ok := prev.(object.Reference); !ok {
			// Streams are only legal as indirect objects inside an array.
			ref := doc.Put(existing)
			prev = object.NewReference(ref.Num, ref.Gen)
		}
		contents.Append(prev)
		hadContent = true
	case *object.Array:
		contents.Append(existing.Items...)
		hadContent = existing.Len() > 0
	}

	overlay := ops
	if hadContent {
		save, err := e.pipeline.NewStream(ctx, object.NewDict(), []byte("q\n"), "FlateDecode")
		if err != nil {
			return err
		}
		saveRef := doc.Put(save)
		contents.Items = append([]object.Object{object.NewReference(saveRef.Num, saveRef.Gen)}, contents.Items...)
		overlay = append([]byte("Q\n"), ops...)
	}
	overlayStream, err := e.pipeline.NewStream(ctx, object.NewDict(), overlay, "FlateDecode")
	if err != nil {
		return err
	}
	overlayRef := doc.Put(overlayStream)
	contents.Append(object.NewReference(overlayRef.Num, overlayRef.Gen))
	page.Dict.Set("Contents", contents)
	doc.Touch(page.Ref)
	return nil
}

// Overlay appends raw drawing operators on top of the index-th page's
// content. Callers own operator validity; the editor only brackets the
// existing content and registers the stream.
func (e *Editor) Overlay(ctx context.Context, doc *object.Document, index int, ops []byte) error {
	pages, err := doc.Pages()
	if err != nil {
		return err
	}
	if err := checkIndex(index, len(pages)); err != nil {
		return err
	}
	return e.appendOverlay(ctx, doc, pages[index], ops)
}

// RegisterFont attaches a standard Helvetica font to the index-th
// page's resources and returns the name it is reachable under.
func (e *Editor) RegisterFont(doc *object.Document, index int) (object.Name, error) {
	pages, err := doc.Pages()
	if err != nil {
		return "", err
	}
	if err := checkIndex(index, len(pages)); err != nil {
		return "", err
	}
	return helveticaFont(doc, pages[index]), nil
}

// opacityState registers an ExtGState with the given alpha on the page's
// resources and returns its name.
func opacityState(doc *object.Document, page object.Page, opacity float64) object.Name {
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	gs := object.NewDict()
	gs.Set("Type", object.Name("ExtGState"))
	gs.Set("ca", object.Real(opacity))
	gs.Set("CA", object.Real(opacity))
	gsRef := doc.Put(gs)

	res := localResources(doc, page)
	states := categoryDict(res, "ExtGState")
	name := uniqueName(states, "GS")
	states.Set(name, object.NewReference(gsRef.Num, gsRef.Gen))
	return name
}

// helveticaFont registers the standard Helvetica font on the page's
// resources and returns its name. Base-14 fonts need no embedded
// program.
func helveticaFont(doc *object.Document, page object.Page) object.Name {
	font := object.NewDict()
	font.Set("Type", object.Name("Font"))
	font.Set("Subtype", object.Name("Type1"))
	font.Set("BaseFont", object.Name("Helvetica"))
	font.Set("Encoding", object.Name("WinAnsiEncoding"))
	fontRef := doc.Put(font)

	res := localResources(doc, page)
	fonts := categoryDict(res, "Font")
	name := uniqueName(fonts, "F")
	fonts.Set(name, object.NewReference(fontRef.Num, fontRef.Gen))
	return name
}

// registerXObject attaches an image XObject to the page's resources.
func registerXObject(doc *object.Document, page object.Page, ref object.Ref) object.Name {
	res := localResources(doc, page)
	xobjects := categoryDict(res, "XObject")
	name := uniqueName(xobjects, "Im")
	xobjects.Set(name, object.NewReference(ref.Num, ref.Gen))
	return name
}

// escapeText escapes a string for a literal-string operand.
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

func num(v float64) string { return object.FormatNumber(object.Real(v)) }
