package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pdfdesk/pdfengine/filters"
	"github.com/pdfdesk/pdfengine/object"
)

type fakeEngine struct {
	results map[int]Result
	failOn  map[int]bool
	inputs  []Input
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, input Input) (Result, error) {
	f.inputs = append(f.inputs, input)
	if f.failOn[input.PageIndex] {
		return Result{}, errors.New("recognition failed")
	}
	return f.results[input.PageIndex], nil
}

type fakeRasterizer struct{ renders int }

func (f *fakeRasterizer) Render(_ context.Context, pageIndex int, dpi int) ([]byte, ImageFormat, error) {
	f.renders++
	return []byte(fmt.Sprintf("page-%d@%d", pageIndex, dpi)), ImageFormatPNG, nil
}

func newScannedDoc(t *testing.T, n int) *object.Document {
	t.Helper()
	doc := object.NewDocument()

	pages := object.NewDict()
	pages.Set("Type", object.Name("Pages"))
	pagesRef := doc.Put(pages)

	kids := object.NewArray()
	for i := 0; i < n; i++ {
		page := object.NewDict()
		page.Set("Type", object.Name("Page"))
		page.Set("Parent", object.Reference{Ref: pagesRef})
		page.Set("MediaBox", object.RectArray(object.Rectangle{LLX: 0, LLY: 0, URX: 612, URY: 792}))
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

func pageOps(t *testing.T, doc *object.Document, index int) []byte {
	t.Helper()
	page, err := doc.Page(index)
	if err != nil {
		t.Fatalf("page %d: %v", index, err)
	}
	contents := doc.Resolve(doc.DictGet(page.Dict, "Contents"))
	arr, ok := contents.(*object.Array)
	if !ok {
		t.Fatalf("page %d has no overlay array", index)
	}
	s, ok := doc.ResolveStream(arr.At(arr.Len() - 1))
	if !ok {
		t.Fatalf("page %d overlay is not a stream", index)
	}
	pipe := filters.NewPipeline(filters.Limits{})
	ops, err := pipe.DecodeStream(context.Background(), s)
	if err != nil {
		t.Fatalf("decode overlay: %v", err)
	}
	return ops
}

func TestApplyPlacesInvisibleText(t *testing.T) {
	doc := newScannedDoc(t, 1)
	layer := NewTextLayer(TextLayerConfig{DPI: 144})

	// One word box at pixel (144, 288), 72x36 pixels. At 144 DPI the
	// scale is 0.5, so the page position is x=72, y=792-(288+36)*0.5=630.
	err := layer.Apply(context.Background(), doc, Result{
		PageIndex: 0,
		Words: []Word{
			{Text: "invoice", Bounds: Region{X: 144, Y: 288, Width: 72, Height: 36}, Confidence: 0.9},
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	ops := pageOps(t, doc, 0)
	for _, want := range []string{"BT\n3 Tr\n", "1 0 0 1 72 630 Tm\n", "(invoice) Tj\n", " 18 Tf\n"} {
		if !bytes.Contains(ops, []byte(want)) {
			t.Fatalf("operator %q missing from %q", want, ops)
		}
	}

	page, _ := doc.Page(0)
	fonts, ok := page.Resources.GetDict("Font")
	if !ok || fonts.Len() == 0 {
		t.Fatalf("no font registered for the text layer")
	}
}

func TestApplyFiltersByConfidence(t *testing.T) {
	doc := newScannedDoc(t, 1)
	layer := NewTextLayer(TextLayerConfig{DPI: 72, MinConfidence: 0.5})

	err := layer.Apply(context.Background(), doc, Result{
		PageIndex: 0,
		Words: []Word{
			{Text: "keep", Bounds: Region{X: 0, Y: 0, Width: 40, Height: 10}, Confidence: 0.8},
			{Text: "drop", Bounds: Region{X: 0, Y: 20, Width: 40, Height: 10}, Confidence: 0.2},
			{Text: "", Bounds: Region{X: 0, Y: 40, Width: 40, Height: 10}, Confidence: 0.9},
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	ops := pageOps(t, doc, 0)
	if !bytes.Contains(ops, []byte("(keep)")) {
		t.Fatalf("confident word missing: %q", ops)
	}
	if bytes.Contains(ops, []byte("(drop)")) {
		t.Fatalf("low-confidence word kept: %q", ops)
	}
}

func TestApplyEscapesTextOperands(t *testing.T) {
	doc := newScannedDoc(t, 1)
	layer := NewTextLayer(TextLayerConfig{DPI: 72})

	err := layer.Apply(context.Background(), doc, Result{
		PageIndex: 0,
		Words: []Word{
			{Text: `a(b)c\d`, Bounds: Region{X: 0, Y: 0, Width: 40, Height: 10}, Confidence: 1},
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !bytes.Contains(pageOps(t, doc, 0), []byte(`(a\(b\)c\\d) Tj`)) {
		t.Fatalf("string operand not escaped")
	}
}

func TestApplyWithNoWordsIsANoop(t *testing.T) {
	doc := newScannedDoc(t, 1)
	layer := NewTextLayer(TextLayerConfig{})
	if err := layer.Apply(context.Background(), doc, Result{PageIndex: 0}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	page, _ := doc.Page(0)
	if _, ok := page.Dict.Get("Contents"); ok {
		t.Fatalf("empty result must not touch the page")
	}
}

func TestMakeSearchableSkipsFailedPages(t *testing.T) {
	doc := newScannedDoc(t, 3)
	word := func(text string) Result {
		return Result{Words: []Word{{Text: text, Bounds: Region{X: 0, Y: 0, Width: 40, Height: 10}, Confidence: 1}}}
	}
	engine := &fakeEngine{
		results: map[int]Result{0: word("first"), 2: word("third")},
		failOn:  map[int]bool{1: true},
	}
	raster := &fakeRasterizer{}
	layer := NewTextLayer(TextLayerConfig{DPI: 150})

	applied, err := layer.MakeSearchable(context.Background(), doc, engine, raster)
	if err != nil {
		t.Fatalf("make searchable: %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied %d pages, want 2", applied)
	}
	if raster.renders != 3 {
		t.Fatalf("renders %d, want 3", raster.renders)
	}
	// The failed page keeps its original (empty) content.
	page, _ := doc.Page(1)
	if _, ok := page.Dict.Get("Contents"); ok {
		t.Fatalf("failed page must be left alone")
	}
	if len(engine.inputs) != 3 || engine.inputs[0].DPI != 150 {
		t.Fatalf("engine inputs wrong: %+v", engine.inputs)
	}
}

func TestMakeSearchableHonorsCancellation(t *testing.T) {
	doc := newScannedDoc(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	engine := &fakeEngine{results: map[int]Result{}}
	raster := &fakeRasterizer{}
	cancel()

	_, err := NewTextLayer(TextLayerConfig{}).MakeSearchable(ctx, doc, engine, raster)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if raster.renders != 0 {
		t.Fatalf("no page should render after cancellation")
	}
}
