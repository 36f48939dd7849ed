package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/pdfdesk/pdfengine/batch"
	"github.com/pdfdesk/pdfengine/editor"
	"github.com/pdfdesk/pdfengine/object"
	"github.com/pdfdesk/pdfengine/observability"
	"github.com/pdfdesk/pdfengine/optimize"
	"github.com/pdfdesk/pdfengine/parser"
	"github.com/pdfdesk/pdfengine/security"
	"github.com/pdfdesk/pdfengine/writer"
)

// loadDocument parses one input, prompting for a password when the
// stored one is wrong or absent.
func loadDocument(ctx context.Context, path, password string, log observability.Logger) (*object.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := parser.New(parser.Config{Password: password, Logger: log}).Parse(ctx, data)
	if err == nil {
		return doc, nil
	}
	if !security.IsAuthError(err) || password != "" {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pwd, perr := promptPassword(path)
	if perr != nil {
		return nil, perr
	}
	doc, err = parser.New(parser.Config{Password: pwd, Logger: log}).Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func promptPassword(path string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("password required and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", filepath.Base(path))
	pwd, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func writeDocument(ctx context.Context, doc *object.Document, path string, protect *security.ProtectConfig, log observability.Logger) error {
	out, err := writer.New(writer.Config{
		Mode:    writer.FullRewrite,
		Protect: protect,
		Logger:  log,
	}).Write(ctx, doc)
	if err != nil {
		return err
	}
	return batch.AtomicWrite(path, out)
}

func runMerge(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	out := fs.String("o", "merged.pdf", "Output file")
	verbose, password := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errors.New("merge needs at least two input files")
	}
	log := logger(*verbose)

	docs := make([]*object.Document, 0, fs.NArg())
	for _, path := range fs.Args() {
		doc, err := loadDocument(ctx, path, *password, log)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	merged, err := editor.New(editor.Config{Logger: log}).Merge(ctx, docs...)
	if err != nil {
		return err
	}
	return writeDocument(ctx, merged, *out, nil, log)
}

func runSplit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	ranges := fs.String("ranges", "", `Page ranges like "1-3,7" (default: every page separately)`)
	chunk := fs.Int("chunk", 0, "Split into chunks of N pages")
	outDir := fs.String("d", ".", "Output directory")
	verbose, password := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("split needs one input file")
	}
	log := logger(*verbose)

	doc, err := loadDocument(ctx, fs.Arg(0), *password, log)
	if err != nil {
		return err
	}
	count, err := doc.PageCount()
	if err != nil {
		return err
	}
	var parts []editor.PageRange
	switch {
	case *ranges != "":
		parts, err = editor.ParsePageRanges(*ranges, count)
		if err != nil {
			return err
		}
	case *chunk > 0:
		parts = editor.Chunks(count, *chunk)
	default:
		parts = editor.EveryPage(count)
	}

	docs, err := editor.New(editor.Config{Logger: log}).Split(ctx, doc, parts)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(fs.Arg(0)), filepath.Ext(fs.Arg(0)))
	for i, part := range docs {
		name := filepath.Join(*outDir, fmt.Sprintf("%s-%02d.pdf", base, i+1))
		if err := writeDocument(ctx, part, name, nil, log); err != nil {
			return err
		}
		fmt.Println(name)
	}
	return nil
}

func runCompress(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compress", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: <input>-compressed.pdf; ignored with multiple inputs)")
	quality := fs.Int("quality", 75, "JPEG quality 1-100")
	dpi := fs.Float64("dpi", 0, "Downsample images above this density (0 disables)")
	target := fs.Int64("target", 0, "Compress toward this size in bytes (single input only)")
	workers := fs.Int("workers", 0, "Concurrent files (default: GOMAXPROCS)")
	verbose, password := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("compress needs at least one input file")
	}
	log := logger(*verbose)

	if *target > 0 {
		if fs.NArg() != 1 {
			return errors.New("-target works on a single input")
		}
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			return err
		}
		res, err := optimize.CompressToTarget(ctx, data, optimize.TargetConfig{
			TargetSize: *target,
			Password:   *password,
			Logger:     log,
		})
		if err != nil {
			return err
		}
		dest := *out
		if dest == "" {
			dest = derivedName(fs.Arg(0), "-compressed")
		}
		if err := batch.AtomicWrite(dest, res.Output); err != nil {
			return err
		}
		switch res.Outcome {
		case optimize.TargetAlreadySmall:
			fmt.Printf("%s: already within target\n", dest)
		case optimize.TargetBestEffort:
			fmt.Printf("%s: target not reachable, wrote smallest result (%d bytes)\n", dest, len(res.Output))
		default:
			fmt.Printf("%s: %d bytes at quality %d\n", dest, len(res.Output), res.Quality)
		}
		return nil
	}

	items := make([]batch.Item, 0, fs.NArg())
	for _, path := range fs.Args() {
		dest := derivedName(path, "-compressed")
		if *out != "" && fs.NArg() == 1 {
			dest = *out
		}
		items = append(items, batch.Item{Source: path, Dest: dest})
	}
	summary, err := batch.New(batch.Config{
		Workers: *workers,
		Logger:  log,
		Progress: func(completed, total int, stage string) {
			fmt.Fprintf(os.Stderr, "\r%d/%d %s", completed, total, stage)
			if completed == total {
				fmt.Fprintln(os.Stderr)
			}
		},
	}).CompressFiles(ctx, items, optimize.Config{
		Quality:   *quality,
		TargetDPI: *dpi,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	for _, o := range summary.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", o.Source, o.Err)
			continue
		}
		fmt.Printf("%s: %d -> %d bytes\n", o.Dest, o.BytesBefore, o.BytesAfter)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, len(items))
	}
	return nil
}

func runProtect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("protect", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: <input>-protected.pdf)")
	userPwd := fs.String("user", "", "User password (prompted when empty)")
	ownerPwd := fs.String("owner", "", "Owner password (defaults to the user password)")
	revision := fs.Int("revision", 6, "Security handler revision: 4 (AES-128) or 6 (AES-256)")
	noPrint := fs.Bool("no-print", false, "Disallow printing")
	noCopy := fs.Bool("no-copy", false, "Disallow content copying")
	noModify := fs.Bool("no-modify", false, "Disallow modification")
	noAnnotate := fs.Bool("no-annotate", false, "Disallow annotation")
	verbose, password := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("protect needs one input file")
	}
	log := logger(*verbose)

	user := *userPwd
	if user == "" {
		var err error
		if user, err = promptPassword(fs.Arg(0)); err != nil {
			return err
		}
	}
	perms := object.AllPermissions()
	perms.Print = !*noPrint
	perms.PrintHighQuality = !*noPrint
	perms.Copy = !*noCopy
	perms.ExtractAccessible = !*noCopy
	perms.Modify = !*noModify
	perms.Assemble = !*noModify
	perms.ModifyAnnotations = !*noAnnotate
	perms.FillForms = !*noAnnotate

	doc, err := loadDocument(ctx, fs.Arg(0), *password, log)
	if err != nil {
		return err
	}
	dest := *out
	if dest == "" {
		dest = derivedName(fs.Arg(0), "-protected")
	}
	return writeDocument(ctx, doc, dest, &security.ProtectConfig{
		UserPassword:  user,
		OwnerPassword: *ownerPwd,
		Permissions:   perms,
		Revision:      *revision,
	}, log)
}

func runUnlock(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: <input>-unlocked.pdf)")
	verbose, password := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("unlock needs one input file")
	}
	log := logger(*verbose)

	doc, err := loadDocument(ctx, fs.Arg(0), *password, log)
	if err != nil {
		return err
	}
	dest := *out
	if dest == "" {
		dest = derivedName(fs.Arg(0), "-unlocked")
	}
	// A full rewrite without protection drops the encryption
	// dictionary; the arena already holds plaintext.
	return writeDocument(ctx, doc, dest, nil, log)
}

func runWatermark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watermark", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: <input>-watermarked.pdf)")
	text := fs.String("text", "", "Watermark text")
	imagePath := fs.String("image", "", "Watermark image file (JPEG or PNG)")
	opacity := fs.Float64("opacity", 0.3, "Stamp opacity 0-1")
	rotation := fs.Float64("rotation", 45, "Text rotation in degrees")
	size := fs.Float64("size", 48, "Text font size")
	scale := fs.Float64("scale", 0.5, "Image width as a fraction of page width")
	pagesFlag := fs.String("pages", "", `Page subset like "1-3,7" (default: all)`)
	verbose, password := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("watermark needs one input file")
	}
	if (*text == "") == (*imagePath == "") {
		return errors.New("watermark needs exactly one of -text or -image")
	}
	log := logger(*verbose)

	doc, err := loadDocument(ctx, fs.Arg(0), *password, log)
	if err != nil {
		return err
	}
	pages, err := pageSubset(doc, *pagesFlag)
	if err != nil {
		return err
	}
	ed := editor.New(editor.Config{Logger: log})
	if *text != "" {
		err = ed.AddTextWatermark(ctx, doc, editor.TextWatermarkOptions{
			Text:     *text,
			FontSize: *size,
			Opacity:  *opacity,
			Rotation: *rotation,
			Pages:    pages,
		})
	} else {
		var img []byte
		img, err = os.ReadFile(*imagePath)
		if err == nil {
			err = ed.AddImageWatermark(ctx, doc, editor.ImageWatermarkOptions{
				Image:   img,
				Scale:   *scale,
				Opacity: *opacity,
				Pages:   pages,
			})
		}
	}
	if err != nil {
		return err
	}
	dest := *out
	if dest == "" {
		dest = derivedName(fs.Arg(0), "-watermarked")
	}
	return writeDocument(ctx, doc, dest, nil, log)
}

func runRotate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: <input>-rotated.pdf)")
	degrees := fs.Int("degrees", 90, "Rotation to add, a multiple of 90")
	pagesFlag := fs.String("pages", "", `Page subset like "1-3,7" (default: all)`)
	verbose, password := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("rotate needs one input file")
	}
	log := logger(*verbose)

	doc, err := loadDocument(ctx, fs.Arg(0), *password, log)
	if err != nil {
		return err
	}
	pages, err := pageSubset(doc, *pagesFlag)
	if err != nil {
		return err
	}
	if err := editor.New(editor.Config{Logger: log}).RotatePages(doc, pages, *degrees); err != nil {
		return err
	}
	dest := *out
	if dest == "" {
		dest = derivedName(fs.Arg(0), "-rotated")
	}
	return writeDocument(ctx, doc, dest, nil, log)
}

// pageSubset parses an optional -pages flag; empty selects every page.
func pageSubset(doc *object.Document, spec string) ([]int, error) {
	if spec == "" {
		return nil, nil
	}
	count, err := doc.PageCount()
	if err != nil {
		return nil, err
	}
	ranges, err := editor.ParsePageRanges(spec, count)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, r := range ranges {
		out = append(out, r.Pages()...)
	}
	return out, nil
}

func derivedName(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}
