package optimize

import (
	"context"
	"fmt"

	"github.com/pdfdesk/pdfengine/filters"
	"github.com/pdfdesk/pdfengine/observability"
	"github.com/pdfdesk/pdfengine/parser"
	"github.com/pdfdesk/pdfengine/writer"
)

// TargetOutcome classifies a compress-to-size run.
type TargetOutcome int

const (
	// TargetAlreadySmall means the input was within the target already;
	// the output is the input unchanged.
	TargetAlreadySmall TargetOutcome = iota
	// TargetAchieved means a quality setting landed inside the target.
	TargetAchieved
	// TargetBestEffort means even the most aggressive settings stayed
	// above the target; the output is the smallest result reached.
	TargetBestEffort
)

// TargetConfig drives CompressToTarget.
type TargetConfig struct {
	// TargetSize is the desired output size in bytes.
	TargetSize int64
	// Tolerance widens the acceptance window above the target as a
	// fraction; 0.05 accepts up to 5% over. Zero means 0.05.
	Tolerance float64
	// MinQuality and MaxQuality bound the JPEG quality search.
	// Zero means 20 and 95.
	MinQuality int
	MaxQuality int
	// FallbackDPI starts the downsampling ladder used when the quality
	// floor alone cannot reach the target. Zero means 150.
	FallbackDPI float64
	// Password opens an encrypted input.
	Password string
	Limits   filters.Limits

	Logger observability.Logger
	Tracer observability.Tracer
}

// TargetResult reports what CompressToTarget produced.
type TargetResult struct {
	Output  []byte
	Outcome TargetOutcome
	// Quality is the JPEG quality of the winning attempt, 0 for an
	// unchanged input.
	Quality int
	// DPI is the downsampling density of the winning attempt, 0 when
	// no resampling was applied.
	DPI float64
}

// CompressToTarget searches for the highest JPEG quality whose full
// rewrite fits the target size, re-parsing the original bytes for every
// attempt so earlier attempts cannot compound. When the quality floor
// is not enough it walks a downsampling ladder and returns the smallest
// result as best effort.
func CompressToTarget(ctx context.Context, original []byte, cfg TargetConfig) (TargetResult, error) {
	if cfg.TargetSize <= 0 {
		return TargetResult{}, fmt.Errorf("target size %d must be positive", cfg.TargetSize)
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.05
	}
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = 20
	}
	if cfg.MaxQuality <= 0 || cfg.MaxQuality > 100 {
		cfg.MaxQuality = 95
	}
	if cfg.MinQuality > cfg.MaxQuality {
		cfg.MinQuality = cfg.MaxQuality
	}
	if cfg.FallbackDPI <= 0 {
		cfg.FallbackDPI = 150
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NopLogger{}
	}

	bound := int64(float64(cfg.TargetSize) * (1 + cfg.Tolerance))
	if int64(len(original)) <= bound {
		return TargetResult{Output: original, Outcome: TargetAlreadySmall}, nil
	}

	attempt := func(quality int, dpi float64) ([]byte, error) {
		p := parser.New(parser.Config{
			Password: cfg.Password,
			Limits:   cfg.Limits,
			Logger:   cfg.Logger,
			Tracer:   cfg.Tracer,
		})
		doc, err := p.Parse(ctx, original)
		if err != nil {
			return nil, err
		}
		opt := New(Config{
			Quality:   quality,
			TargetDPI: dpi,
			Limits:    cfg.Limits,
			Logger:    cfg.Logger,
			Tracer:    cfg.Tracer,
		})
		if _, err := opt.Recompress(ctx, doc); err != nil {
			return nil, err
		}
		w := writer.New(writer.Config{
			Mode:   writer.FullRewrite,
			Logger: cfg.Logger,
			Tracer: cfg.Tracer,
		})
		return w.Write(ctx, doc)
	}

	// Floor probe: if the lowest quality cannot reach the target, skip
	// the search and go straight to the downsampling ladder.
	floor, err := attempt(cfg.MinQuality, 0)
	if err != nil {
		return TargetResult{}, err
	}
	best := TargetResult{Output: floor, Outcome: TargetBestEffort, Quality: cfg.MinQuality}
	if int64(len(floor)) > bound {
		for dpi := cfg.FallbackDPI; dpi >= 72; dpi *= 0.75 {
			if err := ctx.Err(); err != nil {
				return TargetResult{}, err
			}
			out, err := attempt(cfg.MinQuality, dpi)
			if err != nil {
				return TargetResult{}, err
			}
			if len(out) < len(best.Output) {
				best = TargetResult{Output: out, Outcome: TargetBestEffort, Quality: cfg.MinQuality, DPI: dpi}
			}
			if int64(len(out)) <= bound {
				best.Outcome = TargetAchieved
				log.Info("target reached by downsampling",
					observability.Float("dpi", dpi),
					observability.Int("size", len(out)))
				return best, nil
			}
		}
		log.Info("target size not reachable",
			observability.Int("smallest", len(best.Output)),
			observability.Int64("target", cfg.TargetSize))
		return best, nil
	}

	// Binary search the highest quality that still fits.
	lo, hi := cfg.MinQuality, cfg.MaxQuality
	for lo < hi {
		if err := ctx.Err(); err != nil {
			return TargetResult{}, err
		}
		mid := (lo + hi + 1) / 2
		out, err := attempt(mid, 0)
		if err != nil {
			return TargetResult{}, err
		}
		if int64(len(out)) <= bound {
			best = TargetResult{Output: out, Outcome: TargetAchieved, Quality: mid}
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if best.Outcome != TargetAchieved {
		best = TargetResult{Output: floor, Outcome: TargetAchieved, Quality: cfg.MinQuality}
	}
	log.Info("target reached",
		observability.Int("quality", best.Quality),
		observability.Int("size", len(best.Output)))
	return best, nil
}
