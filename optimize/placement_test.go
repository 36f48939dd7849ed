package optimize

import (
	"math"
	"testing"

	"github.com/pdfdesk/pdfengine/object"
)

func scanOne(t *testing.T, content string) map[object.Ref]placement {
	t.Helper()
	ref := object.Ref{Num: 9, Gen: 0}
	out := make(map[object.Ref]placement)
	scanContent([]byte(content), map[string]object.Ref{"Im0": ref}, out)
	return out
}

func TestScanContentSimplePlacement(t *testing.T) {
	out := scanOne(t, "q 200 0 0 150 36 36 cm /Im0 Do Q")
	p := out[object.Ref{Num: 9, Gen: 0}]
	if p.width != 200 || p.height != 150 {
		t.Fatalf("placement %+v", p)
	}
}

func TestScanContentConcatenatesMatrices(t *testing.T) {
	out := scanOne(t, "q 2 0 0 2 0 0 cm q 36 0 0 36 10 10 cm /Im0 Do Q Q")
	p := out[object.Ref{Num: 9, Gen: 0}]
	if p.width != 72 || p.height != 72 {
		t.Fatalf("nested cm not concatenated: %+v", p)
	}
}

func TestScanContentRestoresOnQ(t *testing.T) {
	out := scanOne(t, "q 10 0 0 10 0 0 cm Q 50 0 0 50 0 0 cm /Im0 Do")
	p := out[object.Ref{Num: 9, Gen: 0}]
	if p.width != 50 {
		t.Fatalf("state not restored: %+v", p)
	}
}

func TestScanContentRotationKeepsExtent(t *testing.T) {
	// 90 degree rotation of a 100x40 placement.
	out := scanOne(t, "0 100 -40 0 0 0 cm /Im0 Do")
	p := out[object.Ref{Num: 9, Gen: 0}]
	if math.Abs(p.width-100) > 1e-9 || math.Abs(p.height-40) > 1e-9 {
		t.Fatalf("rotated extent %+v", p)
	}
}

func TestScanContentKeepsLargestPlacement(t *testing.T) {
	out := scanOne(t, "q 30 0 0 30 0 0 cm /Im0 Do Q q 90 0 0 90 0 0 cm /Im0 Do Q")
	p := out[object.Ref{Num: 9, Gen: 0}]
	if p.width != 90 {
		t.Fatalf("largest placement not kept: %+v", p)
	}
}

func TestScanContentStopsAtInlineImage(t *testing.T) {
	out := scanOne(t, "BI /W 4 /H 4 ID \x00\x01\x02 EI q 80 0 0 80 0 0 cm /Im0 Do Q")
	if len(out) != 0 {
		t.Fatalf("scan must stop at inline image data: %+v", out)
	}
}

func TestScanContentIgnoresUnknownOperators(t *testing.T) {
	out := scanOne(t, "1 0 0 RG 4 w 60 0 0 60 5 5 cm /Im0 Do")
	p := out[object.Ref{Num: 9, Gen: 0}]
	if p.width != 60 {
		t.Fatalf("unrelated operators broke the operand window: %+v", p)
	}
}
