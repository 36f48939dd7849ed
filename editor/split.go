package editor

import (
	"context"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
)

// Split produces one new document per range, each holding only the
// referenced pages and the closure of objects they use. Objects not
// reachable from the selected pages are not copied.
func (e *Editor) Split(ctx context.Context, src *object.Document, ranges []PageRange) ([]*object.Document, error) {
	pages, err := src.Pages()
	if err != nil {
		return nil, err
	}
	for _, r := range ranges {
		if err := checkIndex(r.Start, len(pages)); err != nil {
			return nil, err
		}
		if err := checkIndex(r.End, len(pages)); err != nil {
			return nil, err
		}
	}

	out := make([]*object.Document, 0, len(ranges))
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dst, rootRef, root := newPageTreeDocument()
		im := newImporter(src, dst)
		for i := r.Start; i <= r.End; i++ {
			pageRef := im.importPage(pages[i])
			appendPage(dst, rootRef, root, pageRef)
		}
		out = append(out, dst)
	}
	e.log.Debug("split complete",
		observability.Int("ranges", len(ranges)),
		observability.Int("pages", len(pages)))
	return out, nil
}

// ExtractPages builds one document containing the selected pages, in the
// given order. Unlike Split it accepts arbitrary order and repeats.
func (e *Editor) ExtractPages(ctx context.Context, src *object.Document, indices []int) (*object.Document, error) {
	pages, err := src.Pages()
	if err != nil {
		return nil, err
	}
	for _, i := range indices {
		if err := checkIndex(i, len(pages)); err != nil {
			return nil, err
		}
	}
	dst, rootRef, root := newPageTreeDocument()
	im := newImporter(src, dst)
	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageRef := im.importPage(pages[i])
		appendPage(dst, rootRef, root, pageRef)
	}
	return dst, nil
}
