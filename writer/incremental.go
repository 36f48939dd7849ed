package writer

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
)

// incremental appends the touched objects plus a chained cross-reference
// section after the original bytes. The original file content is
// preserved byte for byte.
func (w *Writer) incremental(ctx context.Context, doc *object.Document) ([]byte, error) {
	if err := w.checkIncrementalPreconditions(doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	dirty := doc.Dirty()
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].Num < dirty[j].Num })

	// Identity numbering: incremental updates keep every object number.
	renum := make(map[object.Ref]int, len(doc.Objects))
	for ref := range doc.Objects {
		renum[ref] = ref.Num
	}

	base := int64(len(doc.Original))
	s := &serializer{buf: &bytes.Buffer{}, renum: renum}
	if base > 0 && doc.Original[base-1] != '\n' {
		s.buf.WriteByte('\n')
	}

	type written struct {
		ref    object.Ref
		offset int64
	}
	records := make([]written, 0, len(dirty))
	for i, ref := range dirty {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		value, ok := doc.Get(ref)
		if !ok {
			continue
		}
		offset := base + s.writeIndirect(ref.Num, value, false)
		records = append(records, written{ref: ref, offset: offset})
	}
	if len(records) == 0 {
		return doc.Original, nil
	}

	xrefOffset := base + int64(s.buf.Len())
	s.buf.WriteString("xref\n")
	for start := 0; start < len(records); {
		end := start + 1
		for end < len(records) && records[end].ref.Num == records[end-1].ref.Num+1 {
			end++
		}
		fmt.Fprintf(s.buf, "%d %d\n", records[start].ref.Num, end-start)
		for _, rec := range records[start:end] {
			fmt.Fprintf(s.buf, "%010d %05d n \n", rec.offset, rec.ref.Gen)
		}
		start = end
	}

	trailer := object.NewDict()
	trailer.Set("Size", object.Int(int64(doc.MaxObjectNumber()+1)))
	trailer.Set("Prev", object.Int(doc.StartXref))
	for _, key := range []object.Name{"Root", "Info", "ID"} {
		if v, ok := doc.Trailer.Get(key); ok {
			trailer.Set(key, v)
		}
	}
	s.buf.WriteString("trailer\n")
	s.writeDict(trailer)
	fmt.Fprintf(s.buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	w.log.Debug("incremental update complete",
		observability.Int("objects", len(records)),
		observability.Int("appended_bytes", s.buf.Len()))

	out := make([]byte, 0, len(doc.Original)+s.buf.Len())
	out = append(out, doc.Original...)
	out = append(out, s.buf.Bytes()...)
	return out, nil
}
