package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pdfdesk/pdfengine/ocr"
	"github.com/pdfdesk/pdfengine/ocr/tesseract"
)

// execRasterizer renders pages by shelling out to an external tool in
// the pdftoppm argument convention, writing PNG to stdout. Rasterization
// is a collaborator capability, not something the engine does itself.
type execRasterizer struct {
	tool string
	path string
}

func (r *execRasterizer) Render(ctx context.Context, pageIndex int, dpi int) ([]byte, ocr.ImageFormat, error) {
	page := fmt.Sprint(pageIndex + 1)
	cmd := exec.CommandContext(ctx, r.tool,
		"-png", "-r", fmt.Sprint(dpi), "-f", page, "-l", page, r.path)
	out, err := cmd.Output()
	if err != nil {
		return nil, "", fmt.Errorf("%s page %d: %w", r.tool, pageIndex, err)
	}
	return out, ocr.ImageFormatPNG, nil
}

func runOCR(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ocr", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: <input>-searchable.pdf)")
	langs := fs.String("lang", "eng", "Comma separated language hints for recognition")
	dpi := fs.Int("dpi", 150, "Rasterization density")
	rasterTool := fs.String("raster-tool", "pdftoppm", "External page rasterizer (pdftoppm argument convention)")
	verbose, password := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("ocr needs one input file")
	}
	log := logger(*verbose)

	doc, err := loadDocument(ctx, fs.Arg(0), *password, log)
	if err != nil {
		return err
	}
	layer := ocr.NewTextLayer(ocr.TextLayerConfig{
		DPI:       *dpi,
		Languages: strings.Split(*langs, ","),
		Logger:    log,
	})
	applied, err := layer.MakeSearchable(ctx, doc, tesseract.New(), &execRasterizer{
		tool: *rasterTool,
		path: fs.Arg(0),
	})
	if err != nil {
		return err
	}
	dest := *out
	if dest == "" {
		dest = derivedName(fs.Arg(0), "-searchable")
	}
	if err := writeDocument(ctx, doc, dest, nil, log); err != nil {
		return err
	}
	fmt.Printf("%s: text layer on %d pages\n", dest, applied)
	return nil
}
