// Package filters implements the stream codec: decoding and encoding of
// the filter chains attached to PDF stream payloads.
//
// Decode applies the chain in order, Encode in reverse order, so that
// Encode(Decode(x)) round-trips a chain definition.
package filters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdfdesk/pdfengine/object"
)

// ErrUnsupportedFilter marks a filter name with no registered codec.
var ErrUnsupportedFilter = errors.New("unsupported filter")

// ErrCorruptData marks a payload the codec could not process.
var ErrCorruptData = errors.New("corrupt stream data")

// Error is a filter failure localized to one chain entry.
type Error struct {
	Filter object.Name
	Err    error
}

func (e *Error) Error() string { return fmt.Sprintf("filter %s: %v", e.Filter, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Limits bounds decode work so that a malicious stream cannot exhaust
// memory or stall an operation.
type Limits struct {
	MaxDecodedSize int64
	MaxDecodeTime  time.Duration
}

// DefaultLimits returns the limits used when the caller supplies none.
func DefaultLimits() Limits {
	return Limits{
		MaxDecodedSize: 512 << 20,
		MaxDecodeTime:  30 * time.Second,
	}
}

// Codec decodes and encodes one filter.
type Codec interface {
	Name() object.Name
	Decode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error)
	Encode(ctx context.Context, data []byte, parms *object.Dict) ([]byte, error)
}

// Pipeline applies filter chains using a codec registry.
type Pipeline struct {
	codecs map[object.Name]Codec
	limits Limits
}

// NewPipeline returns a pipeline with the standard codec set registered:
// FlateDecode, LZWDecode, ASCIIHexDecode, ASCII85Decode, RunLengthDecode
// and DCTDecode (image passthrough).
func NewPipeline(limits Limits) *Pipeline {
	if limits.MaxDecodedSize == 0 {
		limits.MaxDecodedSize = DefaultLimits().MaxDecodedSize
	}
	p := &Pipeline{codecs: make(map[object.Name]Codec), limits: limits}
	p.Register(flateCodec{})
	p.Register(lzwCodec{})
	p.Register(asciiHexCodec{})
	p.Register(ascii85Codec{})
	p.Register(runLengthCodec{})
	p.Register(dctCodec{})
	return p
}

// Register adds or replaces a codec.
func (p *Pipeline) Register(c Codec) { p.codecs[c.Name()] = c }

func (p *Pipeline) codec(name object.Name) (Codec, error) {
	c, ok := p.codecs[name]
	if !ok {
		return nil, &Error{Filter: name, Err: ErrUnsupportedFilter}
	}
	return c, nil
}

// Decode applies the chain in order. parms may be shorter than names;
// missing entries are nil.
func (p *Pipeline) Decode(ctx context.Context, data []byte, names []object.Name, parms []*object.Dict) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := p.codec(name)
		if err != nil {
			return nil, err
		}
		var parm *object.Dict
		if i < len(parms) {
			parm = parms[i]
		}
		out, err := c.Decode(ctx, data, parm)
		if err != nil {
			return nil, &Error{Filter: name, Err: err}
		}
		if p.limits.MaxDecodedSize > 0 && int64(len(out)) > p.limits.MaxDecodedSize {
			return nil, &Error{Filter: name, Err: errors.New("decoded size exceeds limit")}
		}
		data = out
	}
	return data, nil
}

// Encode applies the chain in reverse order, producing a payload that
// Decode(names) reverses.
func (p *Pipeline) Encode(ctx context.Context, data []byte, names []object.Name, parms []*object.Dict) ([]byte, error) {
	for i := len(names) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := p.codec(names[i])
		if err != nil {
			return nil, err
		}
		var parm *object.Dict
		if i < len(parms) {
			parm = parms[i]
		}
		out, err := c.Encode(ctx, data, parm)
		if err != nil {
			return nil, &Error{Filter: names[i], Err: err}
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes a stream's payload per its dictionary, caching the
// result on the stream. DCTDecode is passed through: image pixel data is
// not re-decoded unless recompression asks for it.
func (p *Pipeline) DecodeStream(ctx context.Context, s *object.Stream) ([]byte, error) {
	if cached, ok := s.DecodedCache(); ok {
		return cached, nil
	}
	out, err := p.Decode(ctx, s.RawBytes(), s.FilterNames(), s.DecodeParms())
	if err != nil {
		return nil, err
	}
	s.SetDecodedCache(out)
	return out, nil
}

// NewStream encodes data through the given chain and builds a stream
// object carrying the matching /Filter entry.
func (p *Pipeline) NewStream(ctx context.Context, dict *object.Dict, data []byte, names ...object.Name) (*object.Stream, error) {
	if dict == nil {
		dict = object.NewDict()
	}
	encoded, err := p.Encode(ctx, data, names, nil)
	if err != nil {
		return nil, err
	}
	switch len(names) {
	case 0:
		dict.Delete("Filter")
	case 1:
		dict.Set("Filter", names[0])
	default:
		arr := object.NewArray()
		for _, n := range names {
			arr.Append(n)
		}
		dict.Set("Filter", arr)
	}
	dict.Delete("DecodeParms")
	s := object.NewStream(dict, encoded)
	s.SetDecodedCache(data)
	return s, nil
}
