package editor

import (
	"context"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
)

// Merge builds a new document holding every page of the sources, in
// source order then page order. Page subtrees are deep-copied into a
// fresh object-number space; the sources are left untouched.
func (e *Editor) Merge(ctx context.Context, sources ...*object.Document) (*object.Document, error) {
	if len(sources) == 0 {
		return nil, &MergeError{Source: 0, Reason: "no input documents"}
	}

	dst, rootRef, root := newPageTreeDocument()
	total := 0
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages, err := src.Pages()
		if err != nil {
			return nil, &MergeError{Source: i, Reason: err.Error()}
		}
		if len(pages) == 0 {
			return nil, &MergeError{Source: i, Reason: "document has no pages"}
		}
		im := newImporter(src, dst)
		for _, page := range pages {
			pageRef := im.importPage(page)
			appendPage(dst, rootRef, root, pageRef)
			total++
		}
	}

	copyInfo(dst, sources[0])
	e.log.Debug("merge complete",
		observability.Int("sources", len(sources)),
		observability.Int("pages", total))
	return dst, nil
}

// copyInfo carries the first source's Info dictionary into the result.
func copyInfo(dst *object.Document, src *object.Document) {
	info, ok := src.Info()
	if !ok {
		return
	}
	im := newImporter(src, dst)
	copied := im.importValue(info)
	ref := dst.Put(copied)
	dst.Trailer.Set("Info", object.NewReference(ref.Num, ref.Gen))
}
