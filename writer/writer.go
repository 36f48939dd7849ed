// Package writer serializes a document back to container bytes: a full
// rewrite that compacts and renumbers the live object graph, or an
// incremental update that appends changed objects after the original
// bytes so prior revisions (and any signature over them) stay intact.
package writer

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
	"github.com/pdfdesk/pdfengine/security"
)

// Mode selects the output strategy.
type Mode int

const (
	// FullRewrite emits every reachable object once, renumbered, with a
	// single cross-reference table. Unreachable objects are dropped.
	FullRewrite Mode = iota
	// IncrementalUpdate appends the changed objects plus a new
	// cross-reference section chained to the original one.
	IncrementalUpdate
)

// Config carries the writer's tunables.
type Config struct {
	Mode Mode
	// Protect encrypts the output with a freshly derived file key.
	// Only valid with FullRewrite.
	Protect *security.ProtectConfig

	Logger observability.Logger
	Tracer observability.Tracer
}

// Writer serializes documents. It is stateless between calls.
type Writer struct {
	cfg    Config
	log    observability.Logger
	tracer observability.Tracer
}

// New returns a writer for the given configuration.
func New(cfg Config) *Writer {
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	return &Writer{cfg: cfg, log: log, tracer: tracer}
}

// Write serializes doc according to the configured mode. The document
// is not mutated; a failed write leaves it untouched.
func (w *Writer) Write(ctx context.Context, doc *object.Document) ([]byte, error) {
	_, span := w.tracer.StartSpan(ctx, "writer.Write")
	defer span.Finish()

	var out []byte
	var err error
	switch w.cfg.Mode {
	case FullRewrite:
		out, err = w.fullRewrite(ctx, doc)
	case IncrementalUpdate:
		out, err = w.incremental(ctx, doc)
	default:
		err = fmt.Errorf("write mode %d not supported", w.cfg.Mode)
	}
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag("bytes", len(out))
	return out, nil
}

func (w *Writer) checkIncrementalPreconditions(doc *object.Document) error {
	if w.cfg.Protect != nil {
		return errors.New("incremental update cannot change encryption")
	}
	if len(doc.Original) == 0 {
		return errors.New("incremental update needs the original bytes")
	}
	if doc.Encrypted {
		// The arena holds plaintext; appending it to a file whose
		// earlier revisions are encrypted would produce a mixed file.
		return errors.New("incremental update on an encrypted source is not supported, use a full rewrite")
	}
	return nil
}
