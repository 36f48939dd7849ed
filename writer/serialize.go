package writer

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/security"
)

// serializer emits objects in container syntax. renum maps arena
// references to output object numbers; an identity map keeps the
// original numbering for incremental updates.
type serializer struct {
	buf     *bytes.Buffer
	renum   map[object.Ref]int
	handler *security.Handler
	// current is the output reference of the object being emitted; the
	// per-object encryption key derives from it.
	current object.Ref
	// plaintext suppresses encryption for the Encrypt dictionary.
	plaintext bool
}

func (s *serializer) mapRef(ref object.Ref) (int, bool) {
	num, ok := s.renum[ref]
	return num, ok
}

// writeIndirect emits one "N 0 obj ... endobj" record and returns its
// starting offset.
func (s *serializer) writeIndirect(num int, value object.Object, plaintext bool) int64 {
	offset := int64(s.buf.Len())
	s.current = object.Ref{Num: num}
	s.plaintext = plaintext
	fmt.Fprintf(s.buf, "%d 0 obj\n", num)
	s.writeValue(value)
	s.buf.WriteString("\nendobj\n")
	return offset
}

func (s *serializer) writeValue(v object.Object) {
	switch t := v.(type) {
	case nil, object.Null:
		s.buf.WriteString("null")
	case object.Boolean:
		if t {
			s.buf.WriteString("true")
		} else {
			s.buf.WriteString("false")
		}
	case object.Number:
		s.buf.WriteString(object.FormatNumber(t))
	case object.Name:
		s.writeName(t)
	case object.String:
		s.writeString(t)
	case *object.Array:
		s.buf.WriteByte('[')
		for i, item := range t.Items {
			if i > 0 {
				s.buf.WriteByte(' ')
			}
			s.writeValue(item)
		}
		s.buf.WriteByte(']')
	case *object.Dict:
		s.writeDict(t)
	case object.Reference:
		if num, ok := s.mapRef(t.Ref); ok {
			fmt.Fprintf(s.buf, "%d 0 R", num)
		} else {
			// A dangling reference degrades to null rather than
			// pointing at a missing record.
			s.buf.WriteString("null")
		}
	case *object.Stream:
		s.writeStream(t)
	default:
		s.buf.WriteString("null")
	}
}

func (s *serializer) writeName(n object.Name) {
	s.buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c <= 32 || c >= 127 || c == '#' ||
			c == '(' || c == ')' || c == '<' || c == '>' ||
			c == '[' || c == ']' || c == '{' || c == '}' || c == '/' || c == '%' {
			fmt.Fprintf(s.buf, "#%02X", c)
			continue
		}
		s.buf.WriteByte(c)
	}
}

func (s *serializer) writeString(str object.String) {
	data := str.Data
	if s.handler != nil && !s.plaintext {
		if enc, err := s.handler.EncryptString(s.current, data); err == nil {
			data = enc
		}
	}
	if str.Hex {
		s.buf.WriteByte('<')
		for _, b := range data {
			fmt.Fprintf(s.buf, "%02X", b)
		}
		s.buf.WriteByte('>')
		return
	}
	s.buf.WriteByte('(')
	for _, b := range data {
		switch b {
		case '(', ')', '\\':
			s.buf.WriteByte('\\')
			s.buf.WriteByte(b)
		case '\r':
			s.buf.WriteString(`\r`)
		case '\n':
			s.buf.WriteString(`\n`)
		default:
			s.buf.WriteByte(b)
		}
	}
	s.buf.WriteByte(')')
}

func (s *serializer) writeDict(d *object.Dict) {
	s.buf.WriteString("<<")
	for i, key := range d.Keys() {
		if i > 0 {
			s.buf.WriteByte(' ')
		}
		s.writeName(key)
		s.buf.WriteByte(' ')
		v, _ := d.Get(key)
		s.writeValue(v)
	}
	s.buf.WriteString(">>")
}

func (s *serializer) writeStream(stream *object.Stream) {
	payload := stream.RawBytes()
	if s.handler != nil && !s.plaintext {
		if enc, err := s.handler.EncryptStream(s.current, payload); err == nil {
			payload = enc
		}
	}
	// Length reflects the bytes as written, which differ from the
	// arena's when the payload is encrypted.
	dict := stream.Dict.Clone()
	dict.Set("Length", object.Int(int64(len(payload))))
	s.writeDict(dict)
	s.buf.WriteString("\nstream\n")
	s.buf.Write(payload)
	s.buf.WriteString("\nendstream")
}

// sortedRefs orders arena references by object number then generation.
func sortedRefs(set map[object.Ref]struct{}) []object.Ref {
	out := make([]object.Ref, 0, len(set))
	for ref := range set {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Num != out[j].Num {
			return out[i].Num < out[j].Num
		}
		return out[i].Gen < out[j].Gen
	})
	return out
}
