package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pdfdesk/pdfengine/filters"
	"github.com/pdfdesk/pdfengine/object"
)

// newTestDoc builds an in-memory document with n pages, each carrying a
// distinct content stream.
func newTestDoc(t *testing.T, n int) *object.Document {
	t.Helper()
	doc := object.NewDocument()

	pages := object.NewDict()
	pages.Set("Type", object.Name("Pages"))
	pagesRef := doc.Put(pages)

	kids := object.NewArray()
	for i := 0; i < n; i++ {
		content := object.NewStream(object.NewDict(), []byte(fmt.Sprintf("BT (page %d) Tj ET", i)))
		contentRef := doc.Put(content)

		page := object.NewDict()
		page.Set("Type", object.Name("Page"))
		page.Set("Parent", object.Reference{Ref: pagesRef})
		page.Set("MediaBox", object.RectArray(object.Rectangle{LLX: 0, LLY: 0, URX: 612, URY: 792}))
		page.Set("Contents", object.Reference{Ref: contentRef})
		page.Set("Resources", object.NewDict())
		kids.Append(object.Reference{Ref: doc.Put(page)})
	}
	pages.Set("Kids", kids)
	pages.Set("Count", object.Int(int64(n)))

	catalog := object.NewDict()
	catalog.Set("Type", object.Name("Catalog"))
	catalog.Set("Pages", object.Reference{Ref: pagesRef})
	doc.Trailer.Set("Root", object.Reference{Ref: doc.Put(catalog)})
	return doc
}

func pageText(t *testing.T, doc *object.Document, index int) string {
	t.Helper()
	page, err := doc.Page(index)
	if err != nil {
		t.Fatalf("page %d: %v", index, err)
	}
	s, ok := doc.ResolveStream(doc.DictGet(page.Dict, "Contents"))
	if !ok {
		t.Fatalf("page %d has no direct content stream", index)
	}
	return string(s.RawBytes())
}

func mustCount(t *testing.T, doc *object.Document, want int) {
	t.Helper()
	n, err := doc.PageCount()
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if n != want {
		t.Fatalf("page count %d, want %d", n, want)
	}
}

func TestMergeCombinesInOrder(t *testing.T) {
	e := New(Config{})
	a := newTestDoc(t, 2)
	b := newTestDoc(t, 1)

	info := object.NewDict()
	info.Set("Title", object.Str([]byte("first source")))
	a.Trailer.Set("Info", object.Reference{Ref: a.Put(info)})

	merged, err := e.Merge(context.Background(), a, b)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	mustCount(t, merged, 3)
	if got := pageText(t, merged, 0); got != "BT (page 0) Tj ET" {
		t.Fatalf("page 0 content %q", got)
	}
	if got := pageText(t, merged, 2); got != "BT (page 0) Tj ET" {
		t.Fatalf("page 2 should be the second source's first page, got %q", got)
	}
	mergedInfo, ok := merged.Info()
	if !ok {
		t.Fatalf("merged document lost Info")
	}
	title, _ := mergedInfo.GetString("Title")
	if string(title) != "first source" {
		t.Fatalf("Info title %q", title)
	}
	if err := merged.Validate(); err != nil {
		t.Fatalf("merged document invalid: %v", err)
	}
}

func TestMergeCopiesDeeply(t *testing.T) {
	e := New(Config{})
	src := newTestDoc(t, 1)
	merged, err := e.Merge(context.Background(), src)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	// Mutating the source must not leak into the copy.
	page, _ := src.Page(0)
	page.Dict.Set("Rotate", object.Int(180))
	s, _ := src.ResolveStream(src.DictGet(page.Dict, "Contents"))
	s.SetRawBytes([]byte("overwritten"))

	got, _ := merged.Page(0)
	if got.Rotate != 0 {
		t.Fatalf("source mutation leaked into merged page")
	}
	if pageText(t, merged, 0) != "BT (page 0) Tj ET" {
		t.Fatalf("source stream mutation leaked into merged content")
	}
}

func TestMergeRejectsEmptyInput(t *testing.T) {
	e := New(Config{})
	if _, err := e.Merge(context.Background()); err == nil {
		t.Fatalf("merge with no sources must fail")
	}
	empty := object.NewDocument()
	pages := object.NewDict()
	pages.Set("Type", object.Name("Pages"))
	pages.Set("Kids", object.NewArray())
	pages.Set("Count", object.Int(0))
	catalog := object.NewDict()
	catalog.Set("Type", object.Name("Catalog"))
	catalog.Set("Pages", object.Reference{Ref: empty.Put(pages)})
	empty.Trailer.Set("Root", object.Reference{Ref: empty.Put(catalog)})

	var me *MergeError
	_, err := e.Merge(context.Background(), empty)
	if !errors.As(err, &me) {
		t.Fatalf("expected MergeError, got %v", err)
	}
}

func TestSplitRanges(t *testing.T) {
	e := New(Config{})
	src := newTestDoc(t, 5)

	parts, err := e.Split(context.Background(), src, []PageRange{{0, 1}, {2, 4}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	mustCount(t, parts[0], 2)
	mustCount(t, parts[1], 3)
	if got := pageText(t, parts[1], 0); got != "BT (page 2) Tj ET" {
		t.Fatalf("second part starts with %q", got)
	}
	// The source is untouched.
	mustCount(t, src, 5)
}

func TestSplitValidatesBeforeCopying(t *testing.T) {
	e := New(Config{})
	src := newTestDoc(t, 3)
	_, err := e.Split(context.Background(), src, []PageRange{{0, 1}, {1, 7}})
	var re *RangeError
	if !errors.As(err, &re) {
		t.Fatalf("expected RangeError, got %v", err)
	}
}

func TestExtractPagesArbitraryOrder(t *testing.T) {
	e := New(Config{})
	src := newTestDoc(t, 4)
	out, err := e.ExtractPages(context.Background(), src, []int{3, 0, 3})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	mustCount(t, out, 3)
	if got := pageText(t, out, 0); got != "BT (page 3) Tj ET" {
		t.Fatalf("first extracted page %q", got)
	}
	if got := pageText(t, out, 1); got != "BT (page 0) Tj ET" {
		t.Fatalf("second extracted page %q", got)
	}
}

func TestRotatePages(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 2)
	if err := e.RotatePage(doc, 0, 90); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := e.RotatePage(doc, 0, 90); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	p, _ := doc.Page(0)
	if p.Rotate != 180 {
		t.Fatalf("rotation %d, want 180", p.Rotate)
	}
	if err := e.RotatePage(doc, 0, -270); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	p, _ = doc.Page(0)
	if p.Rotate != 270 {
		t.Fatalf("rotation %d, want 270", p.Rotate)
	}
	if err := e.RotatePage(doc, 5, 90); err == nil {
		t.Fatalf("out of range rotate must fail")
	}
}

func TestDeletePage(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 3)
	if err := e.DeletePage(doc, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	mustCount(t, doc, 2)
	if got := pageText(t, doc, 1); got != "BT (page 2) Tj ET" {
		t.Fatalf("wrong page deleted, page 1 is now %q", got)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("document invalid after delete: %v", err)
	}
}

func TestMovePage(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 4)
	if err := e.MovePage(doc, 3, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := pageText(t, doc, 0); got != "BT (page 3) Tj ET" {
		t.Fatalf("page 0 after move is %q", got)
	}
	if got := pageText(t, doc, 1); got != "BT (page 0) Tj ET" {
		t.Fatalf("page 1 after move is %q", got)
	}
	mustCount(t, doc, 4)
}

func TestInsertBlankPage(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 2)
	if err := e.InsertBlankPage(doc, 1, object.Rectangle{}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	mustCount(t, doc, 3)
	p, _ := doc.Page(1)
	if p.MediaBox != object.A4 {
		t.Fatalf("blank page default MediaBox %+v", p.MediaBox)
	}
	// Appending at the end is allowed.
	if err := e.InsertBlankPage(doc, 3, object.A4); err != nil {
		t.Fatalf("append: %v", err)
	}
	mustCount(t, doc, 4)
	if err := e.InsertBlankPage(doc, 9, object.A4); err == nil {
		t.Fatalf("index past the end must fail")
	}
}

func TestOverlayBracketsExistingContent(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 1)
	ops := []byte("1 0 0 rg 0 0 10 10 re f\n")
	if err := e.Overlay(context.Background(), doc, 0, ops); err != nil {
		t.Fatalf("overlay: %v", err)
	}

	page, _ := doc.Page(0)
	arr, ok := doc.ResolveArray(doc.DictGet(page.Dict, "Contents"))
	if !ok {
		t.Fatalf("Contents is not an array after overlay")
	}
	if arr.Len() != 3 {
		t.Fatalf("expected save + original + overlay, got %d streams", arr.Len())
	}

	pipe := filters.NewPipeline(filters.Limits{})
	first, _ := doc.ResolveStream(arr.At(0))
	head, err := pipe.DecodeStream(context.Background(), first)
	if err != nil || string(head) != "q\n" {
		t.Fatalf("first stream %q, %v", head, err)
	}
	last, _ := doc.ResolveStream(arr.At(2))
	tail, err := pipe.DecodeStream(context.Background(), last)
	if err != nil {
		t.Fatalf("decode overlay: %v", err)
	}
	if string(tail) != "Q\n"+string(ops) {
		t.Fatalf("overlay stream %q", tail)
	}
}

func TestOverlayPromotesDirectContentStream(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 1)
	page, _ := doc.Page(0)
	// A direct stream under /Contents is nonconforming input; the
	// overlay must still produce an array of indirect references.
	page.Dict.Set("Contents", object.NewStream(object.NewDict(), []byte("BT (direct) Tj ET")))
	doc.Touch(page.Ref)

	if err := e.Overlay(context.Background(), doc, 0, []byte("0 0 5 5 re f\n")); err != nil {
		t.Fatalf("overlay: %v", err)
	}

	page, _ = doc.Page(0)
	arr, ok := doc.ResolveArray(doc.DictGet(page.Dict, "Contents"))
	if !ok {
		t.Fatalf("Contents is not an array after overlay")
	}
	for i := 0; i < arr.Len(); i++ {
		if _, ok := arr.At(i).(object.Reference); !ok {
			t.Fatalf("Contents[%d] is %T, want an indirect reference", i, arr.At(i))
		}
	}
	middle, _ := doc.ResolveStream(arr.At(1))
	if !bytes.Contains(middle.RawBytes(), []byte("(direct)")) {
		t.Fatalf("original content lost: %q", middle.RawBytes())
	}
}

func TestSplitThenMergeRestoresOrder(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 10)

	parts, err := e.Split(context.Background(), doc, []PageRange{{0, 2}, {3, 9}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	mustCount(t, parts[0], 3)
	mustCount(t, parts[1], 7)

	merged, err := e.Merge(context.Background(), parts...)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	mustCount(t, merged, 10)
	for i := 0; i < 10; i++ {
		want := fmt.Sprintf("BT (page %d) Tj ET", i)
		if got := pageText(t, merged, i); got != want {
			t.Fatalf("page %d content %q, want %q", i, got, want)
		}
	}
	if err := merged.Validate(); err != nil {
		t.Fatalf("merged document invalid: %v", err)
	}
}

func TestOverlayOnEmptyPageSkipsBracket(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 1)
	page, _ := doc.Page(0)
	page.Dict.Delete("Contents")

	if err := e.Overlay(context.Background(), doc, 0, []byte("BT ET\n")); err != nil {
		t.Fatalf("overlay: %v", err)
	}
	page, _ = doc.Page(0)
	arr, ok := doc.ResolveArray(doc.DictGet(page.Dict, "Contents"))
	if !ok {
		t.Fatalf("Contents missing")
	}
	if arr.Len() != 1 {
		t.Fatalf("empty page needs no save bracket, got %d streams", arr.Len())
	}
}

func TestTextWatermarkRegistersResources(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 2)
	err := e.AddTextWatermark(context.Background(), doc, TextWatermarkOptions{
		Text:    "DRAFT",
		Opacity: 0.25,
	})
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	for i := 0; i < 2; i++ {
		page, _ := doc.Page(i)
		states, ok := page.Resources.GetDict("ExtGState")
		if !ok || states.Len() == 0 {
			t.Fatalf("page %d: no ExtGState registered", i)
		}
		fonts, ok := page.Resources.GetDict("Font")
		if !ok || fonts.Len() == 0 {
			t.Fatalf("page %d: no font registered", i)
		}
		gs, _ := doc.ResolveDict(doc.DictGet(states, states.Keys()[0]))
		if ca, _ := gs.Get("ca"); ca.(object.Number).Float() != 0.25 {
			t.Fatalf("page %d: opacity not recorded", i)
		}
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("document invalid after watermark: %v", err)
	}
}

func TestEraseCoversRegion(t *testing.T) {
	e := New(Config{})
	doc := newTestDoc(t, 1)
	if err := e.Erase(context.Background(), doc, 0, object.Rectangle{LLX: 10, LLY: 20, URX: 110, URY: 70}); err != nil {
		t.Fatalf("erase: %v", err)
	}
	page, _ := doc.Page(0)
	arr, _ := doc.ResolveArray(doc.DictGet(page.Dict, "Contents"))
	last, _ := doc.ResolveStream(arr.At(arr.Len() - 1))
	pipe := filters.NewPipeline(filters.Limits{})
	ops, err := pipe.DecodeStream(context.Background(), last)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Contains(ops, []byte("10 20 100 50 re")) {
		t.Fatalf("erase rectangle missing from %q", ops)
	}
}
