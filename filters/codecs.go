package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"

	"github.com/pdfdesk/pdfengine/object"
)

// flateCodec implements FlateDecode. Payloads are zlib-wrapped deflate;
// some producers emit bare deflate, which the decoder accepts as a
// fallback. PNG/TIFF predictors from DecodeParms are reversed on decode.
type flateCodec struct{}

func (flateCodec) Name() object.Name { return "FlateDecode" }

func (flateCodec) Decode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	var r io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		r = flate.NewReader(bytes.NewReader(data))
	} else {
		r = zr
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		// Truncated deflate tails are common in files rebuilt by sloppy
		// tools; keep what decoded if anything did.
		if out.Len() == 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
	}
	return reversePredictor(out.Bytes(), parms)
}

func (flateCodec) Encode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// lzwCodec implements LZWDecode using the PDF/TIFF variant with the
// EarlyChange parameter (default 1).
type lzwCodec struct{}

func (lzwCodec) Name() object.Name { return "LZWDecode" }

func earlyChange(parms *object.Dict) bool {
	if parms != nil {
		if v, ok := parms.GetInt("EarlyChange"); ok {
			return v == 1
		}
	}
	return true
}

func (lzwCodec) Decode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(data), earlyChange(parms))
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		if out.Len() == 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
	}
	return reversePredictor(out.Bytes(), parms)
}

func (lzwCodec) Encode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, earlyChange(parms))
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// asciiHexCodec implements ASCIIHexDecode.
type asciiHexCodec struct{}

func (asciiHexCodec) Name() object.Name { return "ASCIIHexDecode" }

func (asciiHexCodec) Decode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	compact := make([]byte, 0, len(data))
	for _, c := range data {
		if c == '>' {
			break
		}
		switch c {
		case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
			continue
		}
		compact = append(compact, c)
	}
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	out := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(out, compact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	return out[:n], nil
}

func (asciiHexCodec) Encode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(data))+1)
	hex.Encode(out, data)
	out[len(out)-1] = '>'
	return out, nil
}

// ascii85Codec implements ASCII85Decode.
type ascii85Codec struct{}

func (ascii85Codec) Name() object.Name { return "ASCII85Decode" }

func (ascii85Codec) Decode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	trimmed = bytes.TrimSuffix(trimmed, []byte("~>"))
	out := make([]byte, len(trimmed)*4/5+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	return out[:n], nil
}

func (ascii85Codec) Encode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	var buf bytes.Buffer
	w := stdascii85.NewEncoder(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("~>")
	return buf.Bytes(), nil
}

// runLengthCodec implements RunLengthDecode.
type runLengthCodec struct{}

func (runLengthCodec) Name() object.Name { return "RunLengthDecode" }

func (runLengthCodec) Decode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(data) {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			if i+n+1 > len(data) {
				return nil, fmt.Errorf("%w: literal run past end", ErrCorruptData)
			}
			out.Write(data[i : i+n+1])
			i += n + 1
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("%w: repeat run past end", ErrCorruptData)
			}
			out.Write(bytes.Repeat(data[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}

func (runLengthCodec) Encode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(data) {
		// Measure the run of identical bytes starting here.
		j := i + 1
		for j < len(data) && j-i < 127 && data[j] == data[i] {
			j++
		}
		if j-i >= 2 {
			out.WriteByte(byte(257 - (j - i)))
			out.WriteByte(data[i])
			i = j
			continue
		}
		// Literal run up to the next repeat of length >= 3.
		start := i
		for i < len(data) && i-start < 128 {
			if i+2 < len(data) && data[i] == data[i+1] && data[i] == data[i+2] {
				break
			}
			i++
		}
		out.WriteByte(byte(i - start - 1))
		out.Write(data[start:i])
	}
	out.WriteByte(128)
	return out.Bytes(), nil
}

// dctCodec passes JPEG payloads through untouched. Pixel decoding is the
// recompression engine's concern, not the structural codec's.
type dctCodec struct{}

func (dctCodec) Name() object.Name { return "DCTDecode" }

func (dctCodec) Decode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	return data, nil
}

func (dctCodec) Encode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errors.New("DCTDecode payload must already be JPEG encoded")
	}
	return data, nil
}
