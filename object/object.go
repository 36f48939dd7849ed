// Package object defines the typed representation of a PDF object graph:
// the closed set of container-format variants, the indirect reference
// handle, and the Document arena that owns every loaded object.
package object

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind discriminates the closed set of PDF object variants.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindString
	KindName
	KindArray
	KindDict
	KindReference
	KindStream
)

// Object is the tagged-variant base for all PDF values. Every consumer is
// expected to switch exhaustively over the concrete types below.
type Object interface {
	Kind() Kind
}

// Ref identifies an indirect object by number and generation.
type Ref struct {
	Num int
	Gen int
}

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Null is the PDF null object.
type Null struct{}

func (Null) Kind() Kind { return KindNull }

// Boolean is a PDF boolean.
type Boolean bool

func (Boolean) Kind() Kind { return KindBoolean }

// Number is a PDF numeric value. PDF does not distinguish integer and real
// at the type level, but serialization and several consumers (object
// numbers, stream lengths) do, so the integer-ness is preserved.
type Number struct {
	I       int64
	F       float64
	Integer bool
}

func (Number) Kind() Kind { return KindNumber }

func (n Number) Int() int64 {
	if n.Integer {
		return n.I
	}
	return int64(n.F)
}

func (n Number) Float() float64 {
	if n.Integer {
		return float64(n.I)
	}
	return n.F
}

// Int returns an integer Number.
func Int(v int64) Number { return Number{I: v, Integer: true} }

// Real returns a real Number.
func Real(v float64) Number { return Number{F: v} }

// String is a PDF string. Hex records whether the source notation was
// hexadecimal; it only affects serialization.
type String struct {
	Data []byte
	Hex  bool
}

func (String) Kind() Kind { return KindString }

// Str returns a literal String.
func Str(b []byte) String { return String{Data: b} }

// Name is a PDF name object (without the leading slash).
type Name string

func (Name) Kind() Kind { return KindName }

// Array is an ordered sequence of objects.
type Array struct {
	Items []Object
}

func (*Array) Kind() Kind { return KindArray }

// NewArray builds an array from the given items.
func NewArray(items ...Object) *Array { return &Array{Items: items} }

func (a *Array) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Items)
}

func (a *Array) At(i int) Object {
	if a == nil || i < 0 || i >= len(a.Items) {
		return Null{}
	}
	return a.Items[i]
}

func (a *Array) Append(items ...Object) { a.Items = append(a.Items, items...) }

// Dict is a mapping from Name to Object.
type Dict struct {
	kv map[Name]Object
}

func (*Dict) Kind() Kind { return KindDict }

// NewDict returns an empty dictionary.
func NewDict() *Dict { return &Dict{kv: make(map[Name]Object)} }

func (d *Dict) Get(key Name) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.kv[key]
	return o, ok
}

func (d *Dict) Set(key Name, value Object) {
	if d.kv == nil {
		d.kv = make(map[Name]Object)
	}
	d.kv[key] = value
}

func (d *Dict) Delete(key Name) {
	if d != nil {
		delete(d.kv, key)
	}
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.kv)
}

// Keys returns the dictionary keys in sorted order so that serialization
// and tests are deterministic.
func (d *Dict) Keys() []Name {
	if d == nil {
		return nil
	}
	keys := make([]Name, 0, len(d.kv))
	for k := range d.kv {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns a shallow copy of the dictionary (values are shared).
func (d *Dict) Clone() *Dict {
	out := NewDict()
	if d == nil {
		return out
	}
	for k, v := range d.kv {
		out.kv[k] = v
	}
	return out
}

// Convenience accessors for direct (non-reference) values.

func (d *Dict) GetName(key Name) (Name, bool) {
	o, ok := d.Get(key)
	if !ok {
		return "", false
	}
	n, ok := o.(Name)
	return n, ok
}

func (d *Dict) GetInt(key Name) (int64, bool) {
	o, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := o.(Number)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func (d *Dict) GetBool(key Name) (bool, bool) {
	o, ok := d.Get(key)
	if !ok {
		return false, false
	}
	b, ok := o.(Boolean)
	return bool(b), ok
}

func (d *Dict) GetString(key Name) ([]byte, bool) {
	o, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := o.(String)
	if !ok {
		return nil, false
	}
	return s.Data, true
}

func (d *Dict) GetDict(key Name) (*Dict, bool) {
	o, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := o.(*Dict)
	return sub, ok
}

func (d *Dict) GetArray(key Name) (*Array, bool) {
	o, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	arr, ok := o.(*Array)
	return arr, ok
}

// Reference is a weak link to an indirect object. It never owns the target;
// lookup always goes through the Document arena.
type Reference struct {
	Ref Ref
}

func (Reference) Kind() Kind { return KindReference }

// NewReference builds a reference to object num/gen.
func NewReference(num, gen int) Reference { return Reference{Ref: Ref{Num: num, Gen: gen}} }

// Stream is a dictionary with an attached byte payload. The payload is kept
// in the encoded form described by the dictionary's /Filter entry; decoded
// bytes are cached on first access by the filters package.
type Stream struct {
	Dict *Dict

	data       []byte
	decoded    []byte
	hasDecoded bool
}

func (*Stream) Kind() Kind { return KindStream }

// NewStream builds a stream whose payload is already encoded per the
// dictionary's filter chain. /Length is kept in sync with the payload.
func NewStream(dict *Dict, encoded []byte) *Stream {
	if dict == nil {
		dict = NewDict()
	}
	s := &Stream{Dict: dict}
	s.SetRawBytes(encoded)
	return s
}

// RawBytes returns the encoded payload.
func (s *Stream) RawBytes() []byte { return s.data }

// SetRawBytes replaces the encoded payload, invalidates the decoded cache
// and updates /Length.
func (s *Stream) SetRawBytes(encoded []byte) {
	s.data = encoded
	s.decoded = nil
	s.hasDecoded = false
	s.Dict.Set("Length", Int(int64(len(encoded))))
}

// DecodedCache returns the cached decoded payload, if any.
func (s *Stream) DecodedCache() ([]byte, bool) { return s.decoded, s.hasDecoded }

// SetDecodedCache records the decoded payload for later reuse.
func (s *Stream) SetDecodedCache(b []byte) {
	s.decoded = b
	s.hasDecoded = true
}

// FilterNames returns the stream's filter chain in application order.
// A single name and an array of names are both accepted.
func (s *Stream) FilterNames() []Name {
	obj, ok := s.Dict.Get("Filter")
	if !ok {
		return nil
	}
	switch v := obj.(type) {
	case Name:
		return []Name{v}
	case *Array:
		out := make([]Name, 0, v.Len())
		for _, item := range v.Items {
			if n, ok := item.(Name); ok {
				out = append(out, n)
			}
		}
		return out
	}
	return nil
}

// DecodeParms returns per-filter parameter dictionaries aligned with
// FilterNames. Entries may be nil.
func (s *Stream) DecodeParms() []*Dict {
	names := s.FilterNames()
	if len(names) == 0 {
		return nil
	}
	out := make([]*Dict, len(names))
	obj, ok := s.Dict.Get("DecodeParms")
	if !ok {
		obj, ok = s.Dict.Get("DP")
	}
	if !ok {
		return out
	}
	switch v := obj.(type) {
	case *Dict:
		out[0] = v
	case *Array:
		for i := 0; i < len(out) && i < v.Len(); i++ {
			if d, ok := v.Items[i].(*Dict); ok {
				out[i] = d
			}
		}
	}
	return out
}

// FormatNumber renders a Number the way the container format expects:
// no exponent notation, no trailing zeros on reals.
func FormatNumber(n Number) string {
	if n.Integer {
		return strconv.FormatInt(n.I, 10)
	}
	return strconv.FormatFloat(n.F, 'f', -1, 64)
}
