package object

import (
	"errors"
	"fmt"
)

// Rectangle is a PDF rectangle in default user space units.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// A4 is the default media box for pages created in memory.
var A4 = Rectangle{0, 0, 595.28, 841.89}

// RectArray converts a rectangle into its array form.
func RectArray(r Rectangle) *Array {
	return NewArray(Real(r.LLX), Real(r.LLY), Real(r.URX), Real(r.URY))
}

// RectFromArray reads a rectangle from a four-element array, resolving
// references through the document.
func RectFromArray(d *Document, arr *Array) (Rectangle, bool) {
	if arr.Len() != 4 {
		return Rectangle{}, false
	}
	var vals [4]float64
	for i := 0; i < 4; i++ {
		n, ok := d.Resolve(arr.At(i)).(Number)
		if !ok {
			return Rectangle{}, false
		}
		vals[i] = n.Float()
	}
	r := Rectangle{vals[0], vals[1], vals[2], vals[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r, true
}

// Page is a derived view over a Page leaf of the page tree. MediaBox,
// Resources and Rotate are resolved, with values inherited from ancestor
// Pages nodes where the leaf has none of its own.
type Page struct {
	Ref       Ref
	Dict      *Dict
	Parent    Ref
	Resources *Dict
	MediaBox  Rectangle
	Rotate    int
}

type inherited struct {
	resources *Dict
	mediaBox  *Rectangle
	rotate    *int
}

// Pages walks the page tree and returns the leaves in document order.
// Traversal tracks visited nodes so that a cyclic Kids graph in a damaged
// file terminates with an error instead of recursing forever.
func (d *Document) Pages() ([]Page, error) {
	catalog, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	rootObj, ok := catalog.Get("Pages")
	if !ok {
		return nil, errors.New("catalog has no Pages entry")
	}
	rootRef, _ := rootObj.(Reference)
	root, ok := d.ResolveDict(rootObj)
	if !ok {
		return nil, errors.New("Pages does not resolve to a dictionary")
	}

	var out []Page
	visited := make(map[Ref]struct{})
	var walk func(nodeRef Ref, node *Dict, inh inherited) error
	walk = func(nodeRef Ref, node *Dict, inh inherited) error {
		if nodeRef.Num != 0 {
			if _, seen := visited[nodeRef]; seen {
				return fmt.Errorf("page tree cycle at %v", nodeRef)
			}
			visited[nodeRef] = struct{}{}
		}
		if res, ok := d.ResolveDict(d.DictGet(node, "Resources")); ok {
			inh.resources = res
		}
		if arr, ok := d.ResolveArray(d.DictGet(node, "MediaBox")); ok {
			if r, ok := RectFromArray(d, arr); ok {
				inh.mediaBox = &r
			}
		}
		if n, ok := d.Resolve(d.DictGet(node, "Rotate")).(Number); ok {
			rot := int(n.Int())
			inh.rotate = &rot
		}

		nodeType, _ := node.GetName("Type")
		kidsObj, hasKids := node.Get("Kids")
		if nodeType == "Pages" || hasKids {
			kids, ok := d.ResolveArray(kidsObj)
			if !ok {
				return fmt.Errorf("Pages node %v has no Kids array", nodeRef)
			}
			for _, kid := range kids.Items {
				kidRef, _ := kid.(Reference)
				kidDict, ok := d.ResolveDict(kid)
				if !ok {
					return fmt.Errorf("Kids entry of %v is not a dictionary", nodeRef)
				}
				if err := walk(kidRef.Ref, kidDict, inh); err != nil {
					return err
				}
			}
			return nil
		}

		page := Page{Ref: nodeRef, Dict: node}
		if parent, ok := node.Get("Parent"); ok {
			if pref, ok := parent.(Reference); ok {
				page.Parent = pref.Ref
			}
		}
		if inh.resources != nil {
			page.Resources = inh.resources
		} else {
			page.Resources = NewDict()
		}
		if inh.mediaBox != nil {
			page.MediaBox = *inh.mediaBox
		} else {
			page.MediaBox = A4
		}
		if inh.rotate != nil {
			page.Rotate = normalizeRotation(*inh.rotate)
		}
		out = append(out, page)
		return nil
	}
	if err := walk(rootRef.Ref, root, inherited{}); err != nil {
		return nil, err
	}
	return out, nil
}

// PageCount returns the number of page leaves.
func (d *Document) PageCount() (int, error) {
	pages, err := d.Pages()
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// Page returns the index-th page leaf (0-based).
func (d *Document) Page(index int) (Page, error) {
	pages, err := d.Pages()
	if err != nil {
		return Page{}, err
	}
	if index < 0 || index >= len(pages) {
		return Page{}, fmt.Errorf("page index %d out of range [0,%d)", index, len(pages))
	}
	return pages[index], nil
}

// PagesRoot returns the root Pages node and its reference.
func (d *Document) PagesRoot() (Ref, *Dict, error) {
	catalog, err := d.Catalog()
	if err != nil {
		return Ref{}, nil, err
	}
	obj, ok := catalog.Get("Pages")
	if !ok {
		return Ref{}, nil, errors.New("catalog has no Pages entry")
	}
	ref, _ := obj.(Reference)
	root, ok := d.ResolveDict(obj)
	if !ok {
		return Ref{}, nil, errors.New("Pages does not resolve to a dictionary")
	}
	return ref.Ref, root, nil
}

// normalizeRotation reduces a rotation to one of 0, 90, 180, 270.
func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	// Round to the nearest multiple of 90; the container format only
	// allows quarter turns.
	return ((deg + 45) / 90 % 4) * 90
}

// NormalizeRotation is the exported form used by the structural editor.
func NormalizeRotation(deg int) int { return normalizeRotation(deg) }
