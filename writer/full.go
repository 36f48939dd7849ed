package writer

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
	"github.com/pdfdesk/pdfengine/security"
)

// fullRewrite emits the live object graph, renumbered from 1, with one
// classic cross-reference table and trailer.
func (w *Writer) fullRewrite(ctx context.Context, doc *object.Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	refs := sortedRefs(doc.Reachable())
	renum := make(map[object.Ref]int, len(refs))
	for i, ref := range refs {
		renum[ref] = i + 1
	}

	fileID := fileIDFor(doc)
	var handler *security.Handler
	var encNum int
	if w.cfg.Protect != nil {
		var err error
		handler, err = security.Protect(*w.cfg.Protect, fileID)
		if err != nil {
			return nil, err
		}
		encNum = len(refs) + 1
	}

	s := &serializer{
		buf:     &bytes.Buffer{},
		renum:   renum,
		handler: handler,
	}
	s.buf.WriteString("%PDF-" + headerVersion(doc.Version) + "\n")
	// Binary comment so transfer tools treat the file as binary.
	s.buf.Write([]byte{'%', 0xE2, 0xE3, 0xCF, 0xD3, '\n'})

	offsets := make([]int64, 0, len(refs)+2)
	for i, ref := range refs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		value, _ := doc.Get(ref)
		offsets = append(offsets, s.writeIndirect(i+1, value, false))
	}
	if handler != nil {
		offsets = append(offsets, s.writeIndirect(encNum, handler.EncryptDict(), true))
	}

	size := len(offsets) + 1
	xrefOffset := int64(s.buf.Len())
	s.buf.WriteString("xref\n")
	fmt.Fprintf(s.buf, "0 %d\n", size)
	s.buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(s.buf, "%010d 00000 n \n", off)
	}

	trailer := object.NewDict()
	trailer.Set("Size", object.Int(int64(size)))
	for _, key := range []object.Name{"Root", "Info"} {
		if v, ok := doc.Trailer.Get(key); ok {
			trailer.Set(key, v)
		}
	}
	trailer.Set("ID", object.NewArray(
		object.String{Data: fileID, Hex: true},
		object.String{Data: fileID, Hex: true},
	))
	if handler != nil {
		trailer.Set("Encrypt", object.NewReference(encNum, 0))
	}
	s.buf.WriteString("trailer\n")
	s.plaintext = true
	s.writeDict(trailer)
	fmt.Fprintf(s.buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	w.log.Debug("full rewrite complete",
		observability.Int("objects", len(offsets)),
		observability.Int("bytes", s.buf.Len()))
	return s.buf.Bytes(), nil
}

// fileIDFor keeps the original first ID element when the document came
// from bytes and derives a fresh one otherwise.
func fileIDFor(doc *object.Document) []byte {
	if ids, ok := doc.Trailer.GetArray("ID"); ok && ids.Len() > 0 {
		if s, ok := ids.At(0).(object.String); ok && len(s.Data) > 0 {
			return s.Data
		}
	}
	id := make([]byte, 16)
	rand.Read(id)
	return id
}

func headerVersion(v string) string {
	if v == "" {
		return "1.7"
	}
	return v
}
