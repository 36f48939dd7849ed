// Package optimize shrinks documents by re-encoding embedded raster
// images: optional downsampling to a target density relative to each
// image's placement size, JPEG re-encoding at a target quality, and a
// binary search mode that compresses toward a requested file size.
package optimize

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdfdesk/pdfengine/filters"
	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
)

// ImageError reports an image the engine could not re-encode.
type ImageError struct {
	Ref    object.Ref
	Reason string
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %s: %s", e.Ref, e.Reason)
}

// Config carries the recompression tunables.
type Config struct {
	// Quality is the JPEG quality for re-encoded images, 1-100.
	// Zero means 75.
	Quality int
	// TargetDPI downsamples images rendered denser than this relative
	// to their placement size. Zero disables resampling. Images are
	// never upsampled.
	TargetDPI float64
	// Limits bounds filter decoding.
	Limits filters.Limits

	Logger observability.Logger
	Tracer observability.Tracer
}

// Optimizer recompresses the images of a document.
type Optimizer struct {
	cfg      Config
	log      observability.Logger
	tracer   observability.Tracer
	pipeline *filters.Pipeline
}

// New returns an optimizer for the given configuration.
func New(cfg Config) *Optimizer {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 75
	}
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
	return &Optimizer{
		cfg:      cfg,
		log:      log,
		tracer:   tracer,
		pipeline: filters.NewPipeline(cfg.Limits),
	}
}

// Result reports what a recompression pass did.
type Result struct {
	// ImagesSeen counts image XObjects reachable from the page tree.
	ImagesSeen int
	// ImagesRecompressed counts payloads actually replaced.
	ImagesRecompressed int
	// BytesSaved sums the payload size reduction.
	BytesSaved int64
	// Warnings lists images skipped with the reason, one per image.
	Warnings []ImageError
}

// Recompress re-encodes every raster image reachable from the page
// tree, in place, keeping object numbers. Images that cannot be handled
// (unsupported color space, bit depth, damaged data) are skipped and
// reported in the result's warning list; they never fail the pass.
//
// A replacement only happens when the re-encoded payload is smaller, so
// output size is non-increasing.
func (o *Optimizer) Recompress(ctx context.Context, doc *object.Document) (Result, error) {
	ctx, span := o.tracer.StartSpan(ctx, "optimize.Recompress")
	defer span.Finish()

	pages, err := doc.Pages()
	if err != nil {
		span.SetError(err)
		return Result{}, err
	}
	placements := o.scanPlacements(ctx, doc, pages)

	var res Result
	seen := make(map[object.Ref]struct{})
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			span.SetError(err)
			return res, err
		}
		for _, ref := range pageImages(doc, page) {
			if _, done := seen[ref]; done {
				continue
			}
			seen[ref] = struct{}{}
			res.ImagesSeen++

			saved, err := o.recompressImage(ctx, doc, ref, placements[ref])
			if err != nil {
				var ie *ImageError
				if errors.As(err, &ie) {
					res.Warnings = append(res.Warnings, *ie)
					o.log.Debug("image skipped",
						observability.String("object", ref.String()),
						observability.String("reason", ie.Reason))
					continue
				}
				span.SetError(err)
				return res, err
			}
			if saved > 0 {
				res.ImagesRecompressed++
				res.BytesSaved += saved
			}
		}
	}

	span.SetTag(observability.MetricImagesTouched, res.ImagesRecompressed)
	o.log.Info("recompression pass complete",
		observability.Int("seen", res.ImagesSeen),
		observability.Int("recompressed", res.ImagesRecompressed),
		observability.Int64("bytes_saved", res.BytesSaved))
	return res, nil
}

// pageImages collects the image XObject references of one page.
func pageImages(doc *object.Document, page object.Page) []object.Ref {
	xobjects, ok := doc.ResolveDict(doc.DictGet(page.Resources, "XObject"))
	if !ok {
		return nil
	}
	var out []object.Ref
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
		if sub, _ := stream.Dict.GetName("Subtype"); sub != "Image" {
			continue
		}
		out = append(out, ref.Ref)
	}
	return out
}
