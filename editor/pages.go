package editor

import (
	"github.com/pdfdesk/pdfengine/object"
)

// flatten rebuilds the page tree as a single flat Pages root. Inherited
// attributes are materialized onto each leaf first, so reparenting does
// not change what any page resolves to. Page order is preserved.
//
// Operations that reorder the Kids list use this form; intermediate
// Pages nodes become unreferenced and are dropped by the writer's
// compaction pass.
func flatten(doc *object.Document) (object.Ref, *object.Dict, []object.Page, error) {
	rootRef, root, err := doc.PagesRoot()
	if err != nil {
		return object.Ref{}, nil, nil, err
	}
	pages, err := doc.Pages()
	if err != nil {
		return object.Ref{}, nil, nil, err
	}
	kids := object.NewArray()
	for _, page := range pages {
		if _, ok := page.Dict.Get("Resources"); !ok {
			page.Dict.Set("Resources", page.Resources)
		}
		if _, ok := page.Dict.Get("MediaBox"); !ok {
			page.Dict.Set("MediaBox", object.RectArray(page.MediaBox))
		}
		if _, ok := page.Dict.Get("Rotate"); !ok && page.Rotate != 0 {
			page.Dict.Set("Rotate", object.Int(int64(page.Rotate)))
		}
		page.Dict.Set("Parent", object.NewReference(rootRef.Num, rootRef.Gen))
		kids.Append(object.NewReference(page.Ref.Num, page.Ref.Gen))
		doc.Touch(page.Ref)
	}
	root.Set("Kids", kids)
	root.Set("Count", object.Int(int64(len(pages))))
	root.Delete("Parent")
	doc.Touch(rootRef)
	return rootRef, root, pages, nil
}

// RotatePage adds delta degrees to one page's stored rotation,
// normalized to a quarter turn.
func (e *Editor) RotatePage(doc *object.Document, index, delta int) error {
	return e.RotatePages(doc, []int{index}, delta)
}

// RotatePages rotates a page subset; nil selects every page.
func (e *Editor) RotatePages(doc *object.Document, indices []int, delta int) error {
	pages, err := doc.Pages()
	if err != nil {
		return err
	}
	indices, err = resolvePages(indices, len(pages))
	if err != nil {
		return err
	}
	for _, i := range indices {
		page := pages[i]
		page.Dict.Set("Rotate", object.Int(int64(object.NormalizeRotation(page.Rotate+delta))))
		doc.Touch(page.Ref)
	}
	return nil
}

// DeletePage removes the index-th page from the tree. The page object
// and its resources stay in the arena until compaction.
func (e *Editor) DeletePage(doc *object.Document, index int) error {
	rootRef, root, pages, err := flatten(doc)
	if err != nil {
		return err
	}
	if err := checkIndex(index, len(pages)); err != nil {
		return err
	}
	kids, _ := root.GetArray("Kids")
	kids.Items = append(kids.Items[:index], kids.Items[index+1:]...)
	root.Set("Count", object.Int(int64(len(kids.Items))))
	doc.Touch(rootRef)
	return nil
}

// MovePage moves the page at from so that it lands at index to.
func (e *Editor) MovePage(doc *object.Document, from, to int) error {
	rootRef, root, pages, err := flatten(doc)
	if err != nil {
		return err
	}
	if err := checkIndex(from, len(pages)); err != nil {
		return err
	}
	if err := checkIndex(to, len(pages)); err != nil {
		return err
	}
	kids, _ := root.GetArray("Kids")
	item := kids.Items[from]
	rest := append(kids.Items[:from:from], kids.Items[from+1:]...)
	items := make([]object.Object, 0, len(rest)+1)
	items = append(items, rest[:to]...)
	items = append(items, item)
	items = append(items, rest[to:]...)
	kids.Items = items
	doc.Touch(rootRef)
	return nil
}

// InsertBlankPage inserts an empty page with the given media box before
// the index-th page; index == pageCount appends.
func (e *Editor) InsertBlankPage(doc *object.Document, index int, media object.Rectangle) error {
	rootRef, root, pages, err := flatten(doc)
	if err != nil {
		return err
	}
	if index < 0 || index > len(pages) {
		return &RangeError{Index: index, PageCount: len(pages) + 1}
	}
	if media.Width() <= 0 || media.Height() <= 0 {
		media = object.A4
	}

	page := object.NewDict()
	page.Set("Type", object.Name("Page"))
	page.Set("MediaBox", object.RectArray(media))
	page.Set("Resources", object.NewDict())
	page.Set("Parent", object.NewReference(rootRef.Num, rootRef.Gen))
	pageRef := doc.Put(page)

	kids, _ := root.GetArray("Kids")
	items := make([]object.Object, 0, len(kids.Items)+1)
	items = append(items, kids.Items[:index]...)
	items = append(items, object.NewReference(pageRef.Num, pageRef.Gen))
	items = append(items, kids.Items[index:]...)
	kids.Items = items
	root.Set("Count", object.Int(int64(len(items))))
	doc.Touch(rootRef)
	return nil
}
