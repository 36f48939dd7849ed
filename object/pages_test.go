package object

import "testing"

// buildTree assembles a two-level page tree: the root carries MediaBox
// and Resources, an inner Pages node carries Rotate, and the second leaf
// overrides MediaBox locally.
func buildTree(t *testing.T) *Document {
	t.Helper()
	doc := NewDocument()

	rootRef := Ref{Num: 2, Gen: 0}
	innerRef := Ref{Num: 3, Gen: 0}
	leaf1 := Ref{Num: 4, Gen: 0}
	leaf2 := Ref{Num: 5, Gen: 0}

	fonts := NewDict()
	fonts.Set("F1", Name("Helvetica"))
	res := NewDict()
	res.Set("Font", fonts)

	root := NewDict()
	root.Set("Type", Name("Pages"))
	root.Set("Kids", NewArray(Reference{Ref: innerRef}))
	root.Set("Count", Int(2))
	root.Set("MediaBox", RectArray(Rectangle{0, 0, 612, 792}))
	root.Set("Resources", res)
	doc.Load(rootRef, root)

	inner := NewDict()
	inner.Set("Type", Name("Pages"))
	inner.Set("Parent", Reference{Ref: rootRef})
	inner.Set("Kids", NewArray(Reference{Ref: leaf1}, Reference{Ref: leaf2}))
	inner.Set("Count", Int(2))
	inner.Set("Rotate", Int(90))
	doc.Load(innerRef, inner)

	p1 := NewDict()
	p1.Set("Type", Name("Page"))
	p1.Set("Parent", Reference{Ref: innerRef})
	doc.Load(leaf1, p1)

	p2 := NewDict()
	p2.Set("Type", Name("Page"))
	p2.Set("Parent", Reference{Ref: innerRef})
	p2.Set("MediaBox", RectArray(Rectangle{0, 0, 200, 100}))
	doc.Load(leaf2, p2)

	catalog := NewDict()
	catalog.Set("Type", Name("Catalog"))
	catalog.Set("Pages", Reference{Ref: rootRef})
	catRef := Ref{Num: 1, Gen: 0}
	doc.Load(catRef, catalog)
	doc.Trailer.Set("Root", Reference{Ref: catRef})
	return doc
}

func TestPagesInheritance(t *testing.T) {
	doc := buildTree(t)
	pages, err := doc.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 leaves, got %d", len(pages))
	}

	first := pages[0]
	if first.MediaBox != (Rectangle{0, 0, 612, 792}) {
		t.Errorf("leaf 1 MediaBox not inherited: %+v", first.MediaBox)
	}
	if first.Rotate != 90 {
		t.Errorf("leaf 1 Rotate not inherited: %d", first.Rotate)
	}
	if first.Resources == nil {
		t.Fatalf("leaf 1 Resources nil")
	}
	if _, ok := first.Resources.Get("Font"); !ok {
		t.Errorf("leaf 1 Resources not inherited from root")
	}

	second := pages[1]
	if second.MediaBox != (Rectangle{0, 0, 200, 100}) {
		t.Errorf("leaf 2 local MediaBox lost: %+v", second.MediaBox)
	}
}

func TestPagesDetectsCycle(t *testing.T) {
	doc := buildTree(t)
	inner, _ := doc.Get(Ref{Num: 3, Gen: 0})
	// Point the inner node's Kids back at the root.
	inner.(*Dict).Set("Kids", NewArray(Reference{Ref: Ref{Num: 2, Gen: 0}}))

	if _, err := doc.Pages(); err == nil {
		t.Fatalf("cyclic Kids must fail")
	}
}

func TestPageIndexing(t *testing.T) {
	doc := buildTree(t)
	n, err := doc.PageCount()
	if err != nil || n != 2 {
		t.Fatalf("PageCount = %d, %v", n, err)
	}
	p, err := doc.Page(1)
	if err != nil {
		t.Fatalf("Page(1): %v", err)
	}
	if p.Ref != (Ref{Num: 5, Gen: 0}) {
		t.Fatalf("Page(1) wrong leaf: %v", p.Ref)
	}
	if _, err := doc.Page(2); err == nil {
		t.Fatalf("out of range index must fail")
	}
}

func TestRectFromArrayNormalizesCorners(t *testing.T) {
	doc := NewDocument()
	arr := NewArray(Int(612), Int(792), Int(0), Int(0))
	r, ok := RectFromArray(doc, arr)
	if !ok {
		t.Fatalf("rect not parsed")
	}
	if r != (Rectangle{0, 0, 612, 792}) {
		t.Fatalf("corners not normalized: %+v", r)
	}
}
