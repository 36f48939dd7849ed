package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pdfdesk/pdfengine/object"
)

func buildClassicPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	off3 := buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 4\n")
	fmt.Fprintf(buf, "0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n", off1, off2, off3)
	buf.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func buildIncrementalPDF() ([]byte, int) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	xref1 := buf.Len()
	fmt.Fprintf(buf, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", off1, off2)
	fmt.Fprintf(buf, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref1)

	// Update: replace the pages node and add a page.
	off2b := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	off3 := buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n")

	xref2 := buf.Len()
	fmt.Fprintf(buf, "xref\n2 2\n%010d 00000 n \n%010d 00000 n \n", off2b, off3)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Prev %d >>\n", xref1)
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xref2)
	return buf.Bytes(), xref2
}

func buildXrefStreamPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	xrefOffset := buf.Len()
	entry := func(t byte, a int, b int) []byte {
		return []byte{t, byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a), byte(b >> 8), byte(b)}
	}
	var data []byte
	data = append(data, entry(0, 0, 0xFFFF)...)
	data = append(data, entry(1, off1, 0)...)
	data = append(data, entry(1, off2, 0)...)
	data = append(data, entry(1, xrefOffset, 0)...)

	fmt.Fprintf(buf, "3 0 obj\n<< /Type /XRef /Size 4 /W [1 4 2] /Root 1 0 R /Length %d >>\nstream\n", len(data))
	buf.Write(data)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func buildObjectStreamPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")

	first := "<< /Type /Catalog /Pages 2 0 R >>"
	second := "<< /Type /Pages /Kids [] /Count 0 >>"
	header := fmt.Sprintf("1 0 2 %d ", len(first)+1)
	payload := header + first + " " + second

	off4 := buf.Len()
	fmt.Fprintf(buf, "4 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n", len(header), len(payload))
	buf.WriteString(payload)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOffset := buf.Len()
	entry := func(t byte, a int, b int) []byte {
		return []byte{t, byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a), byte(b >> 8), byte(b)}
	}
	var data []byte
	data = append(data, entry(0, 0, 0xFFFF)...)
	data = append(data, entry(2, 4, 0)...)
	data = append(data, entry(2, 4, 1)...)
	data = append(data, entry(1, xrefOffset, 0)...)
	data = append(data, entry(1, off4, 0)...)

	fmt.Fprintf(buf, "3 0 obj\n<< /Type /XRef /Size 5 /W [1 4 2] /Root 1 0 R /Length %d >>\nstream\n", len(data))
	buf.Write(data)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func TestParseClassicXref(t *testing.T) {
	p := New(Config{})
	doc, err := p.Parse(context.Background(), buildClassicPDF())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Version != "1.7" {
		t.Fatalf("version %q", doc.Version)
	}
	n, err := doc.PageCount()
	if err != nil || n != 1 {
		t.Fatalf("PageCount = %d, %v", n, err)
	}
	if len(doc.Dirty()) != 0 {
		t.Fatalf("freshly parsed document must be clean")
	}
	if doc.Encrypted {
		t.Fatalf("plain file reported encrypted")
	}
}

func TestParseFollowsPrevChain(t *testing.T) {
	data, startXref := buildIncrementalPDF()
	p := New(Config{})
	doc, err := p.Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// The updated pages node shadows the original.
	pages, ok := doc.Get(object.Ref{Num: 2, Gen: 0})
	if !ok {
		t.Fatalf("pages node missing")
	}
	count, _ := pages.(*object.Dict).GetInt("Count")
	if count != 1 {
		t.Fatalf("stale pages node won, Count = %d", count)
	}
	if _, ok := doc.Get(object.Ref{Num: 3, Gen: 0}); !ok {
		t.Fatalf("object added by the update missing")
	}
	if doc.StartXref != int64(startXref) {
		t.Fatalf("StartXref = %d, want %d", doc.StartXref, startXref)
	}
	if doc.Original == nil {
		t.Fatalf("source bytes not retained")
	}
}

func TestParseXrefStream(t *testing.T) {
	p := New(Config{})
	doc, err := p.Parse(context.Background(), buildXrefStreamPDF())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := doc.Catalog(); err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if doc.Version != "1.5" {
		t.Fatalf("version %q", doc.Version)
	}
}

func TestParseObjectStream(t *testing.T) {
	p := New(Config{})
	doc, err := p.Parse(context.Background(), buildObjectStreamPDF())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cat, err := doc.Catalog()
	if err != nil {
		t.Fatalf("catalog not extracted from object stream: %v", err)
	}
	if _, ok := cat.Get("Pages"); !ok {
		t.Fatalf("catalog incomplete: %v", cat.Keys())
	}
	if _, ok := doc.Get(object.Ref{Num: 2, Gen: 0}); !ok {
		t.Fatalf("second packed object missing")
	}
}

func TestParseRecoversWithoutXref(t *testing.T) {
	// No xref section at all: only object bodies and a trailer.
	data := []byte("%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n" +
		"trailer\n<< /Size 3 /Root 1 0 R >>\n%%EOF\n")

	p := New(Config{})
	doc, err := p.Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("salvage parse: %v", err)
	}
	if _, err := doc.Catalog(); err != nil {
		t.Fatalf("catalog after salvage: %v", err)
	}

	strict := New(Config{DisableRecovery: true})
	if _, err := strict.Parse(context.Background(), data); err == nil {
		t.Fatalf("recovery disabled must fail on a damaged index")
	}
}

func TestParseRecoversWithoutTrailer(t *testing.T) {
	// Not even a trailer: the catalog is found by scanning the arena.
	data := []byte("%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	p := New(Config{})
	doc, err := p.Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("salvage parse: %v", err)
	}
	ref, ok := doc.CatalogRef()
	if !ok || ref.Num != 1 {
		t.Fatalf("catalog not located: %v", ref)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	p := New(Config{})
	_, err := p.Parse(context.Background(), []byte("not a pdf at all"))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}

	_, err = p.Parse(context.Background(), []byte("%PDF-9.9\njunk"))
	if !errors.As(err, &pe) || pe.Kind != ErrUnsupportedVersion {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestParseHeaderAfterJunkPrefix(t *testing.T) {
	data := append([]byte("GARBAGE BYTES\n"), buildClassicPDF()...)
	// Offsets moved, so the index is wrong; recovery puts it back together.
	p := New(Config{})
	doc, err := p.Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse with junk prefix: %v", err)
	}
	if doc.Version != "1.7" {
		t.Fatalf("version %q", doc.Version)
	}
}

func TestParseIndirectLength(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	payload := "indirect length payload"
	off3 := buf.Len()
	fmt.Fprintf(buf, "3 0 obj\n<< /Length 4 0 R >>\nstream\n%s\nendstream\nendobj\n", payload)

	off4 := buf.Len()
	fmt.Fprintf(buf, "4 0 obj\n%d\nendobj\n", len(payload))

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 5\n")
	fmt.Fprintf(buf, "0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n",
		off1, off2, off3, off4)
	buf.WriteString("trailer\n<< /Size 5 /Root 1 0 R >>\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	p := New(Config{})
	doc, err := p.Parse(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, ok := doc.ResolveStream(object.NewReference(3, 0))
	if !ok {
		t.Fatalf("stream object missing")
	}
	if string(s.RawBytes()) != payload {
		t.Fatalf("stream payload %q", s.RawBytes())
	}
}

func TestParseSkipsOneBadObject(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")

	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 4\n")
	// Object 3 points into the middle of nowhere.
	fmt.Fprintf(buf, "0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n", off1, off2, 2)
	buf.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	p := New(Config{})
	doc, err := p.Parse(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("parse must survive one unreadable object: %v", err)
	}
	if _, err := doc.Catalog(); err != nil {
		t.Fatalf("catalog: %v", err)
	}
}
