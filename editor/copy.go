package editor

import (
	"github.com/pdfdesk/pdfengine/object"
)

// importer copies object closures from one arena into another,
// allocating fresh object numbers and rewriting references through a
// memo so shared targets are copied once and cycles terminate.
type importer struct {
	src  *object.Document
	dst  *object.Document
	memo map[object.Ref]object.Ref
}

func newImporter(src, dst *object.Document) *importer {
	return &importer{src: src, dst: dst, memo: make(map[object.Ref]object.Ref)}
}

// importValue deep-copies v and everything reachable from it.
func (im *importer) importValue(v object.Object) object.Object {
	switch t := v.(type) {
	case object.Reference:
		return im.importRef(t.Ref)
	case *object.Dict:
		typ, _ := t.GetName("Type")
		out := object.NewDict()
		for _, key := range t.Keys() {
			// Parent edges on tree nodes point upward; following them
			// would drag the whole source tree into the copy. The new
			// tree wires its own Parent references.
			if key == "Parent" && (typ == "Page" || typ == "Pages") {
				continue
			}
			val, _ := t.Get(key)
			out.Set(key, im.importValue(val))
		}
		return out
	case *object.Array:
		out := object.NewArray()
		for _, item := range t.Items {
			out.Append(im.importValue(item))
		}
		return out
	case *object.Stream:
		dict, _ := im.importValue(t.Dict).(*object.Dict)
		raw := append([]byte(nil), t.RawBytes()...)
		return object.NewStream(dict, raw)
	case object.String:
		return object.String{Data: append([]byte(nil), t.Data...), Hex: t.Hex}
	}
	// Scalars are value types.
	return v
}

// importRef copies the target of ref, returning the reference it has in
// the destination arena. The memo entry is written before recursing so a
// cyclic graph resolves to the already-allocated number.
func (im *importer) importRef(ref object.Ref) object.Object {
	if dstRef, ok := im.memo[ref]; ok {
		return object.NewReference(dstRef.Num, dstRef.Gen)
	}
	target, ok := im.src.Get(ref)
	if !ok {
		return object.Null{}
	}
	dstRef := im.dst.Put(object.Null{})
	im.memo[ref] = dstRef
	im.dst.Set(dstRef, im.importValue(target))
	return object.NewReference(dstRef.Num, dstRef.Gen)
}

// importPage copies one page leaf into the destination, materializing
// inherited attributes onto the copy and detaching it from the source
// tree. The caller wires Parent and Kids afterwards.
func (im *importer) importPage(page object.Page) object.Ref {
	dstRef := im.dst.Put(object.Null{})
	// Seed the memo so a back-reference from an annotation resolves to
	// this copy instead of re-copying the page.
	im.memo[page.Ref] = dstRef

	local := page.Dict.Clone()
	local.Delete("Parent")
	if _, ok := local.Get("Resources"); !ok {
		local.Set("Resources", page.Resources)
	}
	if _, ok := local.Get("MediaBox"); !ok {
		local.Set("MediaBox", object.RectArray(page.MediaBox))
	}
	if _, ok := local.Get("Rotate"); !ok && page.Rotate != 0 {
		local.Set("Rotate", object.Int(int64(page.Rotate)))
	}

	copied, _ := im.importValue(local).(*object.Dict)
	im.dst.Set(dstRef, copied)
	return dstRef
}

// newPageTreeDocument builds an empty document with a catalog and a flat
// Pages root ready to receive imported pages.
func newPageTreeDocument() (*object.Document, object.Ref, *object.Dict) {
	doc := object.NewDocument()

	root := object.NewDict()
	root.Set("Type", object.Name("Pages"))
	root.Set("Kids", object.NewArray())
	root.Set("Count", object.Int(0))
	rootRef := doc.Put(root)

	catalog := object.NewDict()
	catalog.Set("Type", object.Name("Catalog"))
	catalog.Set("Pages", object.NewReference(rootRef.Num, rootRef.Gen))
	catalogRef := doc.Put(catalog)

	doc.Trailer.Set("Root", object.NewReference(catalogRef.Num, catalogRef.Gen))
	return doc, rootRef, root
}

// appendPage attaches an imported page to a flat Pages root.
func appendPage(doc *object.Document, rootRef object.Ref, root *object.Dict, pageRef object.Ref) {
	page, _ := doc.Get(pageRef)
	if dict, ok := page.(*object.Dict); ok {
		dict.Set("Parent", object.NewReference(rootRef.Num, rootRef.Gen))
	}
	kids, _ := root.GetArray("Kids")
	kids.Append(object.NewReference(pageRef.Num, pageRef.Gen))
	count, _ := root.GetInt("Count")
	root.Set("Count", object.Int(count+1))
	doc.Touch(rootRef)
}
