// Package parser loads PDF byte streams into the object arena: header
// detection, cross-reference chain resolution (classic tables, stream
// tables and hybrids), object stream extraction, decryption at load time
// and a recovery scan for files with damaged indexes.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pdfdesk/pdfengine/filters"
	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
	"github.com/pdfdesk/pdfengine/scanner"
	"github.com/pdfdesk/pdfengine/security"
	"github.com/pdfdesk/pdfengine/xref"
)

// revisionLimit bounds the Prev chain so a loop in a damaged file cannot
// hang resolution.
const revisionLimit = 64

// Config carries the parser's tunables. The zero value is usable.
type Config struct {
	// Password authenticates against the standard security handler when
	// the file is encrypted. Empty tries the empty user password.
	Password string
	// Limits bounds filter decoding. Zero takes filters.DefaultLimits.
	Limits filters.Limits
	// DisableRecovery turns the salvage scan off, so damaged indexes fail
	// instead of being rebuilt.
	DisableRecovery bool

	Logger observability.Logger
	Tracer observability.Tracer
}

// Parser loads documents. It is stateless between calls and safe for
// concurrent use.
type Parser struct {
	cfg      Config
	log      observability.Logger
	tracer   observability.Tracer
	pipeline *filters.Pipeline
}

// New returns a parser for the given configuration.
func New(cfg Config) *Parser {
	if cfg.Limits == (filters.Limits{}) {
		cfg.Limits = filters.DefaultLimits()
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	return &Parser{
		cfg:      cfg,
		log:      log,
		tracer:   tracer,
		pipeline: filters.NewPipeline(cfg.Limits),
	}
}

// ParseFile loads the file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*object.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.Parse(ctx, data)
}

// Parse loads a document from raw bytes. The slice is retained by the
// returned document for incremental updates and must not be mutated.
//
// An encrypted file is decrypted object by object while loading, so the
// arena always holds plaintext. A wrong password surfaces as a
// security.AuthError.
func (p *Parser) Parse(ctx context.Context, data []byte) (*object.Document, error) {
	ctx, span := p.tracer.StartSpan(ctx, "parser.Parse")
	defer span.Finish()

	version, err := parseHeader(data)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	l := &loader{
		p:          p,
		data:       data,
		table:      xref.NewTable(),
		trailer:    object.NewDict(),
		doc:        object.NewDocument(),
		objStreams: make(map[int]*extractedStream),
	}
	if err := l.resolveXref(ctx); err != nil {
		if p.cfg.DisableRecovery {
			span.SetError(err)
			return nil, err
		}
		p.log.Warn("cross-reference resolution failed, rebuilding by scan",
			observability.Err(err))
		l.salvage()
	}
	if err := l.openSecurity(); err != nil {
		span.SetError(err)
		return nil, err
	}
	if err := l.loadObjects(ctx); err != nil {
		span.SetError(err)
		return nil, err
	}
	if err := l.finish(version); err != nil {
		span.SetError(err)
		return nil, err
	}

	span.SetTag(observability.MetricObjectCount, len(l.doc.Objects))
	p.log.Debug("document parsed",
		observability.Int("objects", len(l.doc.Objects)),
		observability.String("version", l.doc.Version))
	return l.doc, nil
}

// loader is the per-call parse state.
type loader struct {
	p    *Parser
	data []byte

	table      *xref.Table
	trailer    *object.Dict
	doc        *object.Document
	objStreams map[int]*extractedStream

	handler   *security.Handler
	encRef    object.Ref
	hasEncRef bool

	startXref int64
	salvaged  bool
}

func parseHeader(data []byte) (string, error) {
	window := data
	if len(window) > 1024 {
		window = window[:1024]
	}
	idx := bytes.Index(window, []byte("%PDF-"))
	if idx < 0 {
		return "", parseErrf(ErrMalformed, 0, "missing %%PDF header")
	}
	rest := data[idx+5:]
	end := 0
	for end < len(rest) && end < 8 {
		c := rest[end]
		if (c >= '0' && c <= '9') || c == '.' {
			end++
			continue
		}
		break
	}
	version := string(rest[:end])
	if !strings.HasPrefix(version, "1.") && !strings.HasPrefix(version, "2.") {
		return "", parseErrf(ErrUnsupportedVersion, int64(idx), "header version %q", version)
	}
	return version, nil
}

// resolveXref walks the startxref pointer and the Prev chain, newest
// revision first, merging every section into the table.
func (l *loader) resolveXref(ctx context.Context) error {
	idx := bytes.LastIndex(l.data, []byte("startxref"))
	if idx < 0 {
		return parseErrf(ErrXrefCorrupt, 0, "startxref keyword not found")
	}
	sc := scanner.New(l.data)
	sc.Seek(int64(idx + len("startxref")))
	tok, err := sc.Next()
	if err != nil || tok.Type != scanner.TokenInteger {
		return parseErrf(ErrXrefCorrupt, int64(idx), "startxref value is not an integer")
	}
	l.startXref = tok.Int

	visited := make(map[int64]struct{})
	queue := []int64{tok.Int}
	for n := 0; len(queue) > 0; n++ {
		if n >= revisionLimit {
			return parseErrf(ErrXrefCorrupt, queue[0], "revision chain exceeds %d sections", revisionLimit)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		offset := queue[0]
		queue = queue[1:]
		if _, seen := visited[offset]; seen {
			continue
		}
		visited[offset] = struct{}{}

		sectionTrailer, err := l.readXrefSection(ctx, offset)
		if err != nil {
			return err
		}
		// Newest section wins per key, same as per object number.
		for _, key := range sectionTrailer.Keys() {
			if _, ok := l.trailer.Get(key); !ok {
				v, _ := sectionTrailer.Get(key)
				l.trailer.Set(key, v)
			}
		}
		if l.table.Size == 0 {
			if size, ok := sectionTrailer.GetInt("Size"); ok {
				l.table.Size = int(size)
			}
		}
		// Hybrid files point at a parallel stream section before Prev.
		if stm, ok := sectionTrailer.GetInt("XRefStm"); ok {
			queue = append(queue, stm)
		}
		if prev, ok := sectionTrailer.GetInt("Prev"); ok {
			queue = append(queue, prev)
		}
	}
	if _, ok := l.trailer.Get("Root"); !ok {
		return parseErrf(ErrTrailerNotFound, l.startXref, "no document root in trailer chain")
	}
	return nil
}

// readXrefSection parses one cross-reference section, classic or stream
// form, feeding its entries into the table and returning its trailer.
func (l *loader) readXrefSection(ctx context.Context, offset int64) (*object.Dict, error) {
	sc := scanner.New(l.data)
	if err := sc.Seek(offset); err != nil {
		return nil, parseErrf(ErrXrefCorrupt, offset, "section offset out of range")
	}
	if tok, err := sc.Peek(); err == nil && tok.Type == scanner.TokenKeyword && tok.Keyword == "xref" {
		return l.readClassicSection(sc)
	}
	return l.readStreamSection(ctx, sc, offset)
}

func (l *loader) readClassicSection(sc *scanner.Scanner) (*object.Dict, error) {
	r := newTokenReader(sc)
	if err := r.expectKeyword("xref"); err != nil {
		return nil, parseErrf(ErrXrefCorrupt, sc.Offset(), "%v", err)
	}
	for {
		tok, err := r.next()
		if err != nil {
			return nil, parseErrf(ErrXrefCorrupt, sc.Offset(), "section ended without trailer")
		}
		if tok.Type == scanner.TokenKeyword && tok.Keyword == "trailer" {
			break
		}
		if tok.Type != scanner.TokenInteger {
			return nil, parseErrf(ErrXrefCorrupt, tok.Offset, "subsection header expected")
		}
		countTok, err := r.next()
		if err != nil || countTok.Type != scanner.TokenInteger {
			return nil, parseErrf(ErrXrefCorrupt, tok.Offset, "subsection count expected")
		}
		start, count := tok.Int, countTok.Int
		for i := int64(0); i < count; i++ {
			offTok, err1 := r.next()
			genTok, err2 := r.next()
			kindTok, err3 := r.next()
			if err1 != nil || err2 != nil || err3 != nil ||
				offTok.Type != scanner.TokenInteger || genTok.Type != scanner.TokenInteger ||
				kindTok.Type != scanner.TokenKeyword {
				return nil, parseErrf(ErrXrefCorrupt, offTok.Offset, "malformed entry in subsection %d", start)
			}
			num := int(start + i)
			switch kindTok.Keyword {
			case "n":
				l.table.Add(num, xref.Entry{Type: xref.EntryInFile, Offset: offTok.Int, Gen: int(genTok.Int)})
			case "f":
				l.table.Add(num, xref.Entry{Type: xref.EntryFree, Gen: int(genTok.Int)})
			default:
				return nil, parseErrf(ErrXrefCorrupt, kindTok.Offset, "entry kind %q", kindTok.Keyword)
			}
		}
	}
	trailer, err := readValue(newTokenReader(sc))
	if err != nil {
		return nil, parseErrf(ErrXrefCorrupt, sc.Offset(), "trailer dictionary: %v", err)
	}
	dict, ok := trailer.(*object.Dict)
	if !ok {
		return nil, parseErrf(ErrXrefCorrupt, sc.Offset(), "trailer is not a dictionary")
	}
	return dict, nil
}

func (l *loader) readStreamSection(ctx context.Context, sc *scanner.Scanner, offset int64) (*object.Dict, error) {
	obj, err := readIndirect(sc, l.lengthFor)
	if err != nil {
		return nil, parseErrf(ErrXrefCorrupt, offset, "cross-reference stream: %v", err)
	}
	stream, ok := obj.Value.(*object.Stream)
	if !ok {
		return nil, parseErrf(ErrXrefCorrupt, offset, "object %s is not a cross-reference stream", obj.Ref)
	}
	if typ, _ := stream.Dict.GetName("Type"); typ != "XRef" {
		return nil, parseErrf(ErrXrefCorrupt, offset, "object %s has type %q, want XRef", obj.Ref, typ)
	}
	// Cross-reference streams are never encrypted, so decoding needs no
	// handler even in protected files.
	decoded, err := l.p.pipeline.DecodeStream(ctx, stream)
	if err != nil {
		return nil, parseErrf(ErrXrefCorrupt, offset, "decode cross-reference stream: %v", err)
	}

	var w []int64
	if arr, ok := stream.Dict.GetArray("W"); ok {
		for i := 0; i < arr.Len(); i++ {
			if n, ok := arr.At(i).(object.Number); ok {
				w = append(w, n.Int())
			}
		}
	}
	var index [][2]int64
	if arr, ok := stream.Dict.GetArray("Index"); ok {
		for i := 0; i+1 < arr.Len(); i += 2 {
			a, okA := arr.At(i).(object.Number)
			b, okB := arr.At(i + 1).(object.Number)
			if okA && okB {
				index = append(index, [2]int64{a.Int(), b.Int()})
			}
		}
	}
	size, _ := stream.Dict.GetInt("Size")

	entries, err := xref.ParseStreamEntries(w, index, size, decoded)
	if err != nil {
		return nil, parseErrf(ErrXrefCorrupt, offset, "%v", err)
	}
	for _, e := range entries {
		l.table.Add(e.Num, e.Entry)
	}
	return stream.Dict, nil
}

// lengthFor resolves a stream /Length value, chasing one level of
// indirection through the table. -1 forces the endstream marker search.
func (l *loader) lengthFor(v object.Object) int64 {
	switch t := v.(type) {
	case object.Number:
		if n := t.Int(); n >= 0 {
			return n
		}
	case object.Reference:
		e, ok := l.table.Lookup(t.Ref.Num)
		if !ok || e.Type != xref.EntryInFile {
			return -1
		}
		sc := scanner.New(l.data)
		if sc.Seek(e.Offset) != nil {
			return -1
		}
		obj, err := readIndirect(sc, func(object.Object) int64 { return -1 })
		if err != nil {
			return -1
		}
		if n, ok := obj.Value.(object.Number); ok {
			return n.Int()
		}
	}
	return -1
}

// salvage rebuilds the table by scanning for object markers when the
// cross-reference chain is unusable.
func (l *loader) salvage() {
	table, trailers := xref.RecoverScan(l.data)
	l.table = table
	l.trailer = object.NewDict()
	l.salvaged = true
	// Trailers come oldest first; the newest carries the live keys.
	for i := len(trailers) - 1; i >= 0; i-- {
		sc := scanner.New(l.data)
		sc.Seek(trailers[i] + int64(len("trailer")))
		dict, err := readValue(newTokenReader(sc))
		if err != nil {
			continue
		}
		d, ok := dict.(*object.Dict)
		if !ok {
			continue
		}
		for _, key := range d.Keys() {
			if _, exists := l.trailer.Get(key); !exists {
				v, _ := d.Get(key)
				l.trailer.Set(key, v)
			}
		}
	}
	l.p.log.Info("salvage scan complete",
		observability.Int("objects", l.table.Len()),
		observability.Int("trailers", len(trailers)))
}

// openSecurity locates the Encrypt dictionary and authenticates.
func (l *loader) openSecurity() error {
	enc, ok := l.trailer.Get("Encrypt")
	if !ok {
		return nil
	}
	var encDict *object.Dict
	switch t := enc.(type) {
	case *object.Dict:
		encDict = t
	case object.Reference:
		l.encRef = t.Ref
		l.hasEncRef = true
		e, ok := l.table.Lookup(t.Ref.Num)
		if !ok || e.Type != xref.EntryInFile {
			return parseErrf(ErrMalformed, 0, "Encrypt dictionary %s not in file", t.Ref)
		}
		sc := scanner.New(l.data)
		if err := sc.Seek(e.Offset); err != nil {
			return parseErrf(ErrMalformed, e.Offset, "Encrypt dictionary offset out of range")
		}
		obj, err := readIndirect(sc, l.lengthFor)
		if err != nil {
			return parseErrf(ErrMalformed, e.Offset, "Encrypt dictionary: %v", err)
		}
		encDict, ok = obj.Value.(*object.Dict)
		if !ok {
			return parseErrf(ErrMalformed, e.Offset, "Encrypt entry is not a dictionary")
		}
	default:
		return parseErrf(ErrMalformed, 0, "Encrypt entry has wrong type")
	}

	var fileID []byte
	if ids, ok := l.trailer.GetArray("ID"); ok && ids.Len() > 0 {
		if s, ok := ids.At(0).(object.String); ok {
			fileID = s.Data
		}
	}
	handler, err := security.Open(encDict, fileID, l.p.cfg.Password)
	if err != nil {
		return err
	}
	l.handler = handler
	return nil
}

// loadObjects materializes every table entry into the arena: in-file
// objects first, then the ones packed into object streams.
func (l *loader) loadObjects(ctx context.Context) error {
	nums := l.table.Objects()
	var inStream []int
	for i, num := range nums {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		entry, _ := l.table.Lookup(num)
		if entry.Type == xref.EntryInStream {
			inStream = append(inStream, num)
			continue
		}
		if err := l.loadInFile(num, entry); err != nil {
			// One bad object does not sink the document; anything
			// load-bearing fails later with a precise error.
			l.p.log.Warn("skipping unreadable object",
				observability.Int("object", num), observability.Err(err))
		}
	}
	for _, num := range inStream {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, _ := l.table.Lookup(num)
		if err := l.loadFromStream(ctx, num, entry); err != nil {
			l.p.log.Warn("skipping unreadable packed object",
				observability.Int("object", num), observability.Err(err))
		}
	}
	return nil
}

func (l *loader) loadInFile(num int, entry xref.Entry) error {
	sc := scanner.New(l.data)
	if err := sc.Seek(entry.Offset); err != nil {
		return err
	}
	obj, err := readIndirect(sc, l.lengthFor)
	if err != nil {
		return err
	}
	if obj.Ref.Num != num {
		return fmt.Errorf("offset %d holds object %s, index says %d", entry.Offset, obj.Ref, num)
	}
	value := obj.Value
	if l.handler != nil && !l.skipDecrypt(obj.Ref, value) {
		value = l.decrypt(obj.Ref, value)
	}
	l.doc.Load(obj.Ref, value)
	return nil
}

// skipDecrypt excludes the payloads the handler never touches: the
// Encrypt dictionary itself, cross-reference streams, and metadata when
// EncryptMetadata is off.
func (l *loader) skipDecrypt(ref object.Ref, value object.Object) bool {
	if l.hasEncRef && ref == l.encRef {
		return true
	}
	if s, ok := value.(*object.Stream); ok {
		if typ, _ := s.Dict.GetName("Type"); typ == "XRef" {
			return true
		}
	}
	return false
}

// decrypt rewrites every string and stream payload of value in place
// with the per-object key of ref.
func (l *loader) decrypt(ref object.Ref, value object.Object) object.Object {
	switch t := value.(type) {
	case object.String:
		plain, err := l.handler.DecryptString(ref, t.Data)
		if err != nil {
			return t
		}
		return object.String{Data: plain, Hex: t.Hex}
	case *object.Array:
		for i, item := range t.Items {
			t.Items[i] = l.decrypt(ref, item)
		}
		return t
	case *object.Dict:
		for _, key := range t.Keys() {
			v, _ := t.Get(key)
			t.Set(key, l.decrypt(ref, v))
		}
		return t
	case *object.Stream:
		l.decrypt(ref, t.Dict)
		if typ, _ := t.Dict.GetName("Type"); typ == "Metadata" && !l.handler.EncryptMetadata() {
			return t
		}
		plain, err := l.handler.DecryptStream(ref, t.RawBytes())
		if err != nil {
			return t
		}
		t.SetRawBytes(plain)
		return t
	}
	return value
}

func (l *loader) finish(version string) error {
	if _, ok := l.trailer.Get("Root"); !ok {
		if ref, ok := l.findCatalog(); ok {
			l.trailer.Set("Root", object.NewReference(ref.Num, ref.Gen))
		} else {
			return parseErrf(ErrTrailerNotFound, 0, "no document root found")
		}
	}

	trailer := object.NewDict()
	for _, key := range []object.Name{"Root", "Info", "ID"} {
		if v, ok := l.trailer.Get(key); ok {
			trailer.Set(key, v)
		}
	}
	l.doc.Trailer = trailer
	l.doc.Version = version
	l.doc.Original = l.data
	l.doc.StartXref = l.startXref
	l.doc.Encrypted = l.handler != nil

	maxNum := l.table.Size - 1
	for _, num := range l.table.Objects() {
		if num > maxNum {
			maxNum = num
		}
	}
	l.doc.OriginalMaxNum = maxNum

	if l.handler != nil {
		l.doc.Permissions = l.handler.Permissions()
		if l.handler.OwnerAuthenticated() {
			l.doc.Permissions = object.AllPermissions()
		}
	} else {
		l.doc.Permissions = object.AllPermissions()
	}
	l.doc.ResetDirty()
	return nil
}

// findCatalog scans the arena for the catalog dictionary, used when a
// salvaged file has no usable trailer.
func (l *loader) findCatalog() (object.Ref, bool) {
	for ref, obj := range l.doc.Objects {
		if dict, ok := obj.(*object.Dict); ok {
			if typ, _ := dict.GetName("Type"); typ == "Catalog" {
				return ref, true
			}
		}
	}
	return object.Ref{}, false
}
