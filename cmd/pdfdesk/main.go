// Command pdfdesk is the command line front end of the engine: merge,
// split, compress, protect, unlock, watermark, rotate and ocr.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pdfdesk/pdfengine/observability"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "merge":
		err = runMerge(ctx, args)
	case "split":
		err = runSplit(ctx, args)
	case "compress":
		err = runCompress(ctx, args)
	case "protect":
		err = runProtect(ctx, args)
	case "unlock":
		err = runUnlock(ctx, args)
	case "watermark":
		err = runWatermark(ctx, args)
	case "rotate":
		err = runRotate(ctx, args)
	case "ocr":
		err = runOCR(ctx, args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "pdfdesk: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfdesk %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: pdfdesk <command> [flags]

Commands:
  merge      combine input documents into one
  split      write page ranges as separate documents
  compress   recompress embedded images, optionally toward a size
  protect    set password protection on a document
  unlock     remove password protection
  watermark  stamp text or an image across pages
  rotate     rotate pages by quarter turns
  ocr        add an invisible searchable text layer

Run "pdfdesk <command> -h" for command flags.
`)
}

// logger builds the shared logger honoring -v.
func logger(verbose bool) observability.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return observability.NewSlogLogger(slog.New(h))
}

func commonFlags(fs *flag.FlagSet) (verbose *bool, password *string) {
	verbose = fs.Bool("v", false, "Verbose logging")
	password = fs.String("password", "", "Password for encrypted inputs (prompted when omitted and needed)")
	return verbose, password
}
