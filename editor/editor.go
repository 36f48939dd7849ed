// Package editor is the structural mutation API: merge, split, page
// manipulation, blank and image page insertion, watermark and erase
// overlays. Operations are transactional: they either build a fresh
// document or validate fully before touching the one they were given.
package editor

import (
	"fmt"

	"github.com/pdfdesk/pdfengine/filters"
	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
)

// RangeError reports a page index or range outside [0, pageCount).
type RangeError struct {
	Index     int
	PageCount int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("page index %d outside [0, %d)", e.Index, e.PageCount)
}

// MergeError reports inputs that cannot be merged.
type MergeError struct {
	Source int
	Reason string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge source %d: %s", e.Source, e.Reason)
}

// Config carries the editor's collaborators. The zero value is usable.
type Config struct {
	// Limits bounds filter work on content and image streams.
	Limits filters.Limits
	Logger observability.Logger
}

// Editor applies structural edits to documents.
type Editor struct {
	pipeline *filters.Pipeline
	log      observability.Logger
}

// New returns an editor for the given configuration.
func New(cfg Config) *Editor {
	if cfg.Limits == (filters.Limits{}) {
		cfg.Limits = filters.DefaultLimits()
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Editor{
		pipeline: filters.NewPipeline(cfg.Limits),
		log:      log,
	}
}

// checkIndex validates one page index against the document.
func checkIndex(index, pageCount int) error {
	if index < 0 || index >= pageCount {
		return &RangeError{Index: index, PageCount: pageCount}
	}
	return nil
}

// resolvePages expands an optional page subset: nil selects every page.
func resolvePages(indices []int, pageCount int) ([]int, error) {
	if indices == nil {
		out := make([]int, pageCount)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	for _, i := range indices {
		if err := checkIndex(i, pageCount); err != nil {
			return nil, err
		}
	}
	return indices, nil
}

// localResources returns the page's own resource dictionary, creating a
// local one first when the page only inherits resources. Overlay content
// must never mutate a shared ancestor dictionary.
func localResources(doc *object.Document, page object.Page) *object.Dict {
	if res, ok := page.Dict.GetDict("Resources"); ok {
		return res
	}
	res := object.NewDict()
	if page.Resources != nil {
		res = page.Resources.Clone()
	}
	page.Dict.Set("Resources", res)
	return res
}

// uniqueName picks a resource name with the given prefix that is unused
// in the category dictionary.
func uniqueName(category *object.Dict, prefix string) object.Name {
	for i := 0; ; i++ {
		name := object.Name(fmt.Sprintf("%s%d", prefix, i))
		if _, exists := category.Get(name); !exists {
			return name
		}
	}
}

// categoryDict returns the named sub-dictionary of a resource dict,
// creating it on demand.
func categoryDict(res *object.Dict, name object.Name) *object.Dict {
	if d, ok := res.GetDict(name); ok {
		return d
	}
	d := object.NewDict()
	res.Set(name, d)
	return d
}
