package optimize

import (
	"context"
	"io"
	"math"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/scanner"
)

// placement is the largest size, in default user space points, at which
// an image is painted anywhere in the document. Downsampling targets
// density relative to this size.
type placement struct {
	width  float64
	height float64
}

// scanPlacements walks every page's content stream tracking the current
// transformation matrix, and records the painted extent of each image
// XObject at its Do operator. A page whose content cannot be decoded
// simply contributes no placements; its images keep their pixel counts.
func (o *Optimizer) scanPlacements(ctx context.Context, doc *object.Document, pages []object.Page) map[object.Ref]placement {
	out := make(map[object.Ref]placement)
	for _, page := range pages {
		content, err := o.pageContent(ctx, doc, page)
		if err != nil {
			continue
		}
		names := imageNameTable(doc, page)
		if len(names) == 0 {
			continue
		}
		scanContent(content, names, out)
	}
	return out
}

// pageContent concatenates and decodes a page's content streams.
func (o *Optimizer) pageContent(ctx context.Context, doc *object.Document, page object.Page) ([]byte, error) {
	var out []byte
	switch t := doc.Resolve(doc.DictGet(page.Dict, "Contents")).(type) {
	case *object.Stream:
		return o.pipeline.DecodeStream(ctx, t)
	case *object.Array:
		for _, item := range t.Items {
			stream, ok := doc.ResolveStream(item)
			if !ok {
				continue
			}
			part, err := o.pipeline.DecodeStream(ctx, stream)
			if err != nil {
				return nil, err
			}
			out = append(out, part...)
			out = append(out, '\n')
		}
	}
	return out, nil
}

// imageNameTable maps the page's XObject resource names to image refs.
func imageNameTable(doc *object.Document, page object.Page) map[string]object.Ref {
	xobjects, ok := doc.ResolveDict(doc.DictGet(page.Resources, "XObject"))
	if !ok {
		return nil
	}
	out := make(map[string]object.Ref)
	for _, name := range xobjects.Keys() {
		entry, _ := xobjects.Get(name)
		ref, ok := entry.(object.Reference)
		if !ok {
			continue
		}
		stream, ok := doc.ResolveStream(entry)
		if !ok {
			continue
		}
		if sub, _ := stream.Dict.GetName("Subtype"); sub == "Image" {
			out[string(name)] = ref.Ref
		}
	}
	return out
}

// matrix is a 2D affine transform in PDF order [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// extent is the painted size of the unit square under the matrix.
func (m matrix) extent() (w, h float64) {
	w = math.Hypot(m[0], m[1])
	h = math.Hypot(m[2], m[3])
	return w, h
}

// scanContent interprets just enough of the operator stream to know the
// CTM at each Do: q/Q save and restore, cm concatenation. Operands that
// are not part of those operators are held in a small sliding window.
func scanContent(content []byte, names map[string]object.Ref, out map[object.Ref]placement) {
	sc := scanner.New(content)
	ctm := identity
	var stack []matrix
	var operands []scanner.Token
	lastName := ""

	for {
		tok, err := sc.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}
		switch tok.Type {
		case scanner.TokenInteger, scanner.TokenReal:
			operands = append(operands, tok)
			if len(operands) > 6 {
				operands = operands[1:]
			}
		case scanner.TokenName:
			lastName = tok.Name
			operands = operands[:0]
		case scanner.TokenKeyword:
			switch tok.Keyword {
			case "q":
				stack = append(stack, ctm)
			case "Q":
				if n := len(stack); n > 0 {
					ctm = stack[n-1]
					stack = stack[:n-1]
				}
			case "cm":
				if len(operands) == 6 {
					var m matrix
					for i, op := range operands {
						if op.Type == scanner.TokenReal {
							m[i] = op.Real
						} else {
							m[i] = float64(op.Int)
						}
					}
					ctm = m.mul(ctm)
				}
			case "Do":
				if ref, ok := names[lastName]; ok {
					w, h := ctm.extent()
					p := out[ref]
					if w > p.width {
						p.width = w
					}
					if h > p.height {
						p.height = h
					}
					out[ref] = p
				}
			case "BI":
				// Inline image data is not tokenizable; stop scanning
				// this stream rather than misread it.
				return
			}
			operands = operands[:0]
		default:
			operands = operands[:0]
		}
	}
}
