package filters

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/pdfdesk/pdfengine/object"
)

func TestChainRoundTrips(t *testing.T) {
	p := NewPipeline(Limits{})
	ctx := context.Background()
	payload := bytes.Repeat([]byte("structural payload \x00\x01\xfe "), 64)

	chains := [][]object.Name{
		{"FlateDecode"},
		{"LZWDecode"},
		{"ASCIIHexDecode"},
		{"ASCII85Decode"},
		{"RunLengthDecode"},
		{"ASCII85Decode", "FlateDecode"},
		{"ASCIIHexDecode", "RunLengthDecode"},
	}
	for _, chain := range chains {
		encoded, err := p.Encode(ctx, payload, chain, nil)
		if err != nil {
			t.Errorf("%v: encode: %v", chain, err)
			continue
		}
		decoded, err := p.Decode(ctx, encoded, chain, nil)
		if err != nil {
			t.Errorf("%v: decode: %v", chain, err)
			continue
		}
		if !bytes.Equal(decoded, payload) {
			t.Errorf("%v: round trip mismatch", chain)
		}
	}
}

func TestUnknownFilterFails(t *testing.T) {
	p := NewPipeline(Limits{})
	_, err := p.Decode(context.Background(), []byte("x"), []object.Name{"JBIG2Decode"}, nil)
	if !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("expected ErrUnsupportedFilter, got %v", err)
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Filter != "JBIG2Decode" {
		t.Fatalf("error should carry the filter name: %v", err)
	}
}

func TestCorruptFlateFails(t *testing.T) {
	p := NewPipeline(Limits{})
	_, err := p.Decode(context.Background(), []byte("not deflate data"), []object.Name{"FlateDecode"}, nil)
	if err == nil {
		t.Fatalf("corrupt payload must fail")
	}
}

func TestDecodedSizeLimit(t *testing.T) {
	p := NewPipeline(Limits{MaxDecodedSize: 16})
	ctx := context.Background()
	big := bytes.Repeat([]byte("A"), 4096)
	encoded, err := p.Encode(ctx, big, []object.Name{"FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := p.Decode(ctx, encoded, []object.Name{"FlateDecode"}, nil); err == nil {
		t.Fatalf("oversized decode must fail")
	}
}

func TestDCTDecodeIsPassthrough(t *testing.T) {
	p := NewPipeline(Limits{})
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}
	out, err := p.Decode(context.Background(), jpeg, []object.Name{"DCTDecode"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, jpeg) {
		t.Fatalf("DCT payload must pass through unchanged")
	}
}

func TestDecodeStreamCaches(t *testing.T) {
	p := NewPipeline(Limits{})
	ctx := context.Background()
	s, err := p.NewStream(ctx, nil, []byte("content ops"), "FlateDecode")
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if name, _ := s.Dict.GetName("Filter"); name != "FlateDecode" {
		t.Fatalf("Filter entry missing: %v", name)
	}

	// Force a real decode by dropping the cache.
	s.SetRawBytes(s.RawBytes())
	out, err := p.DecodeStream(ctx, s)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if string(out) != "content ops" {
		t.Fatalf("decoded payload %q", out)
	}
	if cached, ok := s.DecodedCache(); !ok || !bytes.Equal(cached, out) {
		t.Fatalf("decode result not cached")
	}
}

func TestPredictorPNGUp(t *testing.T) {
	// Two rows of four bytes, PNG Up predictor: second row stores deltas.
	raw := []byte{
		0x02, 10, 20, 30, 40, // row 0, filter type Up against zero row
		0x02, 1, 1, 1, 1, // row 1, deltas over row 0
	}
	var buf bytes.Buffer
	p := NewPipeline(Limits{})
	ctx := context.Background()

	flated, err := p.Encode(ctx, raw, []object.Name{"FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.Write(flated)

	parms := object.NewDict()
	parms.Set("Predictor", object.Int(12))
	parms.Set("Columns", object.Int(4))
	parms.Set("Colors", object.Int(1))
	parms.Set("BitsPerComponent", object.Int(8))

	out, err := p.Decode(ctx, buf.Bytes(), []object.Name{"FlateDecode"}, []*object.Dict{parms})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []byte{10, 20, 30, 40, 11, 21, 31, 41}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output %v, want %v", out, want)
	}
}
