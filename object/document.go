package object

import (
	"errors"
	"fmt"
)

// resolveDepthLimit bounds reference chains so that a reference loop in a
// damaged file cannot hang resolution.
const resolveDepthLimit = 32

// Permissions describes the actions an encrypted document allows.
type Permissions struct {
	Print             bool
	Modify            bool
	Copy              bool
	ModifyAnnotations bool
	FillForms         bool
	ExtractAccessible bool
	Assemble          bool
	PrintHighQuality  bool
}

// AllPermissions returns a fully permissive set.
func AllPermissions() Permissions {
	return Permissions{
		Print: true, Modify: true, Copy: true, ModifyAnnotations: true,
		FillForms: true, ExtractAccessible: true, Assemble: true, PrintHighQuality: true,
	}
}

// Document is the arena owning every object of one PDF revision chain.
// References are resolved through the arena and never own their target,
// so cycles in the object graph cannot form ownership cycles.
//
// A Document is single-owner: it must not be mutated concurrently.
type Document struct {
	Objects map[Ref]Object
	Trailer *Dict
	Version string

	// Encrypted records that the source file carried an Encrypt
	// dictionary; object payloads are stored decrypted regardless.
	Encrypted   bool
	Permissions Permissions

	// Original carries the source bytes and xref start offset for
	// incremental updates. Both are zero for documents built in memory.
	Original       []byte
	StartXref      int64
	OriginalMaxNum int

	maxNum int
	dirty  map[Ref]struct{}
}

// NewDocument returns an empty document with an empty trailer.
func NewDocument() *Document {
	return &Document{
		Objects: make(map[Ref]Object),
		Trailer: NewDict(),
		Version: "1.7",
		dirty:   make(map[Ref]struct{}),
	}
}

// Get returns the object stored under ref.
func (d *Document) Get(ref Ref) (Object, bool) {
	o, ok := d.Objects[ref]
	return o, ok
}

// Set stores obj under ref and marks it dirty.
func (d *Document) Set(ref Ref, obj Object) {
	d.Objects[ref] = obj
	if ref.Num > d.maxNum {
		d.maxNum = ref.Num
	}
	d.Touch(ref)
}

// Load stores obj under ref without marking it dirty. The parser uses it
// to populate the arena from source bytes.
func (d *Document) Load(ref Ref, obj Object) {
	d.Objects[ref] = obj
	if ref.Num > d.maxNum {
		d.maxNum = ref.Num
	}
}

// ResetDirty clears the touched set, typically right after parsing.
func (d *Document) ResetDirty() { d.dirty = make(map[Ref]struct{}) }

// Put allocates a fresh object number for obj and returns its reference.
func (d *Document) Put(obj Object) Ref {
	if d.maxNum == 0 {
		for ref := range d.Objects {
			if ref.Num > d.maxNum {
				d.maxNum = ref.Num
			}
		}
		if d.OriginalMaxNum > d.maxNum {
			d.maxNum = d.OriginalMaxNum
		}
	}
	d.maxNum++
	ref := Ref{Num: d.maxNum}
	d.Objects[ref] = obj
	d.Touch(ref)
	return ref
}

// Delete removes ref from the arena.
func (d *Document) Delete(ref Ref) {
	delete(d.Objects, ref)
	if d.dirty != nil {
		delete(d.dirty, ref)
	}
}

// Touch marks ref as changed since the document was parsed. The writer's
// incremental mode emits exactly the touched set.
func (d *Document) Touch(ref Ref) {
	if d.dirty == nil {
		d.dirty = make(map[Ref]struct{})
	}
	d.dirty[ref] = struct{}{}
}

// Dirty reports the touched object references.
func (d *Document) Dirty() []Ref {
	out := make([]Ref, 0, len(d.dirty))
	for ref := range d.dirty {
		out = append(out, ref)
	}
	return out
}

// MaxObjectNumber returns the highest object number in use.
func (d *Document) MaxObjectNumber() int {
	max := d.maxNum
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	if d.OriginalMaxNum > max {
		max = d.OriginalMaxNum
	}
	return max
}

// Resolve follows obj through reference indirection until a concrete value
// is reached. Missing targets resolve to Null.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < resolveDepthLimit; i++ {
		ref, ok := obj.(Reference)
		if !ok {
			return obj
		}
		target, ok := d.Objects[ref.Ref]
		if !ok {
			return Null{}
		}
		obj = target
	}
	return Null{}
}

// ResolveDict resolves obj to a dictionary. Stream dictionaries are not
// unwrapped; a stream is its own variant.
func (d *Document) ResolveDict(obj Object) (*Dict, bool) {
	dict, ok := d.Resolve(obj).(*Dict)
	return dict, ok
}

// ResolveArray resolves obj to an array.
func (d *Document) ResolveArray(obj Object) (*Array, bool) {
	arr, ok := d.Resolve(obj).(*Array)
	return arr, ok
}

// ResolveStream resolves obj to a stream.
func (d *Document) ResolveStream(obj Object) (*Stream, bool) {
	s, ok := d.Resolve(obj).(*Stream)
	return s, ok
}

// ResolveInt resolves obj to an integer value.
func (d *Document) ResolveInt(obj Object) (int64, bool) {
	n, ok := d.Resolve(obj).(Number)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

// DictGet resolves the value stored under key in dict.
func (d *Document) DictGet(dict *Dict, key Name) Object {
	o, ok := dict.Get(key)
	if !ok {
		return Null{}
	}
	return d.Resolve(o)
}

// Catalog returns the document catalog referenced by the trailer Root.
func (d *Document) Catalog() (*Dict, error) {
	if d.Trailer == nil {
		return nil, errors.New("document has no trailer")
	}
	rootObj, ok := d.Trailer.Get("Root")
	if !ok {
		return nil, errors.New("trailer has no Root entry")
	}
	catalog, ok := d.ResolveDict(rootObj)
	if !ok {
		return nil, fmt.Errorf("Root does not resolve to a dictionary")
	}
	return catalog, nil
}

// CatalogRef returns the trailer Root reference.
func (d *Document) CatalogRef() (Ref, bool) {
	if d.Trailer == nil {
		return Ref{}, false
	}
	obj, ok := d.Trailer.Get("Root")
	if !ok {
		return Ref{}, false
	}
	ref, ok := obj.(Reference)
	if !ok {
		return Ref{}, false
	}
	return ref.Ref, true
}

// Info returns the trailer Info dictionary, if present.
func (d *Document) Info() (*Dict, bool) {
	if d.Trailer == nil {
		return nil, false
	}
	obj, ok := d.Trailer.Get("Info")
	if !ok {
		return nil, false
	}
	return d.ResolveDict(obj)
}

// Reachable computes the set of object numbers reachable from the trailer
// root (and Info), tracking visited references so that legal cycles in the
// object graph terminate.
func (d *Document) Reachable() map[Ref]struct{} {
	visited := make(map[Ref]struct{})
	var walk func(obj Object)
	walk = func(obj Object) {
		switch v := obj.(type) {
		case Reference:
			if _, seen := visited[v.Ref]; seen {
				return
			}
			target, ok := d.Objects[v.Ref]
			if !ok {
				return
			}
			visited[v.Ref] = struct{}{}
			walk(target)
		case *Array:
			for _, item := range v.Items {
				walk(item)
			}
		case *Dict:
			for _, key := range v.Keys() {
				val, _ := v.Get(key)
				walk(val)
			}
		case *Stream:
			walk(v.Dict)
		}
	}
	if d.Trailer != nil {
		for _, key := range d.Trailer.Keys() {
			val, _ := d.Trailer.Get(key)
			walk(val)
		}
	}
	return visited
}

// Validate checks the structural invariant that every reference reachable
// from the trailer resolves to a present object.
func (d *Document) Validate() error {
	var dangling []Ref
	visited := make(map[Ref]struct{})
	var walk func(obj Object)
	walk = func(obj Object) {
		switch v := obj.(type) {
		case Reference:
			if _, seen := visited[v.Ref]; seen {
				return
			}
			visited[v.Ref] = struct{}{}
			target, ok := d.Objects[v.Ref]
			if !ok {
				dangling = append(dangling, v.Ref)
				return
			}
			walk(target)
		case *Array:
			for _, item := range v.Items {
				walk(item)
			}
		case *Dict:
			for _, key := range v.Keys() {
				val, _ := v.Get(key)
				walk(val)
			}
		case *Stream:
			walk(v.Dict)
		}
	}
	if d.Trailer != nil {
		for _, key := range d.Trailer.Keys() {
			val, _ := d.Trailer.Get(key)
			walk(val)
		}
	}
	if len(dangling) > 0 {
		return fmt.Errorf("dangling references: %v", dangling)
	}
	return nil
}
