package batch

import (
	"context"

	"github.com/pdfdesk/pdfengine/optimize"
	"github.com/pdfdesk/pdfengine/parser"
	"github.com/pdfdesk/pdfengine/writer"
)

// CompressOperation builds an Operation that parses, recompresses and
// fully rewrites each file with the given settings.
func CompressOperation(cfg optimize.Config) Operation {
	return func(ctx context.Context, source []byte) ([]byte, error) {
		p := parser.New(parser.Config{
			Limits: cfg.Limits,
			Logger: cfg.Logger,
			Tracer: cfg.Tracer,
		})
		doc, err := p.Parse(ctx, source)
		if err != nil {
			return nil, err
		}
		if _, err := optimize.New(cfg).Recompress(ctx, doc); err != nil {
			return nil, err
		}
		return writer.New(writer.Config{
			Mode:   writer.FullRewrite,
			Logger: cfg.Logger,
			Tracer: cfg.Tracer,
		}).Write(ctx, doc)
	}
}

// CompressFiles recompresses every item with a shared quality setting.
func (r *Runner) CompressFiles(ctx context.Context, items []Item, cfg optimize.Config) (Summary, error) {
	return r.Run(ctx, items, CompressOperation(cfg))
}
