package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/image-trimmer/internal/batch"
	"github.com/ironsheep/image-trimmer/internal/config"
	"github.com/ironsheep/image-trimmer/internal/imaging"
	"github.com/ironsheep/image-trimmer/internal/oledb"
)

// newFlagSet creates a subcommand flag set whose errors go to stderr.
func newFlagSet(e *env, name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: image-trimmer %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args, revalidates the configuration the flags wrote into and
// checks the positional argument count. ok is false when the command should
// stop with code.
func parse(e *env, fs *flag.FlagSet, args []string, positional int) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK, false
		}
		return exitUsage, false
	}
	if err := e.cfg.Validate(); err != nil {
		fmt.Fprintf(e.stderr, "invalid flags: %v\n", err)
		return exitUsage, false
	}
	if positional >= 0 && fs.NArg() != positional {
		fs.Usage()
		return exitUsage, false
	}
	return exitOK, true
}

func thresholdFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.Threshold.R, "r", cfg.Threshold.R, "red background limit; a pixel is background when every channel is above its limit")
	fs.IntVar(&cfg.Threshold.G, "g", cfg.Threshold.G, "green background limit")
	fs.IntVar(&cfg.Threshold.B, "b", cfg.Threshold.B, "blue background limit")
	fs.StringVar(&cfg.Threshold.Background, "background", cfg.Threshold.Background, "background limit as a hex colour, overrides -r -g -b")
}

func rangeFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.Transparency.From, "from", cfg.Transparency.From, "lowest grey level made transparent")
	fs.IntVar(&cfg.Transparency.To, "to", cfg.Transparency.To, "highest grey level made transparent")
}

func outputFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Output.Format, "format", cfg.Output.Format, "output format: "+strings.Join(imaging.SupportedFormats(), "|"))
	fs.IntVar(&cfg.Output.Quality, "quality", cfg.Output.Quality, "JPEG/WebP quality (1-100)")
	fs.BoolVar(&cfg.Output.Lossless, "lossless", cfg.Output.Lossless, "lossless WebP")
	fs.BoolVar(&cfg.Transparency.Enabled, "transparent", cfg.Transparency.Enabled, "make near-white greys transparent after trimming (jpg, bmp and gif are written as png)")
	rangeFlags(fs, cfg)
}

// batchFlags registers the flags shared by trim-dir and extract-db.
func batchFlags(fs *flag.FlagSet, cfg *config.Config) (outDir, reportPath *string, quiet *bool) {
	thresholdFlags(fs, cfg)
	outputFlags(fs, cfg)
	fs.StringVar(&cfg.Output.Prefix, "prefix", cfg.Output.Prefix, "output file name prefix")
	fs.IntVar(&cfg.Batch.Workers, "workers", cfg.Batch.Workers, "images processed in parallel")
	outDir = fs.String("out", "", "existing output directory (required)")
	reportPath = fs.String("report", "", "write a YAML report of the run to this file")
	quiet = fs.Bool("q", false, "do not print progress")
	return outDir, reportPath, quiet
}

// progressLine reports batch progress on one stderr line. A nil
// progressLine prints nothing.
type progressLine struct {
	w    io.Writer
	open bool
}

func newProgressLine(w io.Writer, quiet bool) *progressLine {
	if quiet {
		return nil
	}
	return &progressLine{w: w}
}

// callback returns the batch callback, or nil when progress is off.
func (p *progressLine) callback() batch.ProgressFunc {
	if p == nil {
		return nil
	}
	return p.update
}

func (p *progressLine) update(done, total int) {
	fmt.Fprintf(p.w, "\rprocessed %d/%d", done, total)
	p.open = done != total
	if !p.open {
		fmt.Fprintln(p.w)
	}
}

// end terminates a line left open by a cancelled or failed run.
func (p *progressLine) end() {
	if p == nil || !p.open {
		return
	}
	fmt.Fprintln(p.w)
	p.open = false
}

// finishBatch prints and optionally saves the report. Any failed item makes
// the command fail.
func finishBatch(e *env, rep *batch.Report, runErr error, reportPath string) int {
	if rep == nil {
		fmt.Fprintf(e.stderr, "error: %v\n", runErr)
		return exitError
	}

	for _, item := range rep.Items {
		switch item.Status {
		case batch.StatusTrimmed:
			fmt.Fprintf(e.stdout, "%-9s %s -> %s %dx%d\n", item.Status, item.Source, item.Output, item.Width, item.Height)
		case batch.StatusCancelled:
			fmt.Fprintf(e.stdout, "%-9s %s\n", item.Status, item.Source)
		default:
			fmt.Fprintf(e.stdout, "%-9s %s: %s\n", item.Status, item.Source, item.Error)
		}
	}
	fmt.Fprintln(e.stdout, rep.Summary())

	if reportPath != "" {
		if err := rep.WriteFile(reportPath); err != nil {
			fmt.Fprintf(e.stderr, "error: %v\n", err)
			return exitError
		}
	}
	if runErr != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", runErr)
		return exitError
	}
	if rep.Failed > 0 {
		return exitError
	}
	return exitOK
}

func runTrim(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet(e, "trim", "trim [flags] <image>")
	thresholdFlags(fs, e.cfg)
	outputFlags(fs, e.cfg)
	outDir := fs.String("out", "", "output directory (default: the image's directory)")
	if code, ok := parse(e, fs, args, 1); !ok {
		return code
	}

	src := fs.Arg(0)
	if *outDir == "" {
		*outDir = filepath.Dir(src)
	}

	item, err := batch.New(e.cfg.BatchOptions(nil)).TrimFile(ctx, src, *outDir)
	if err != nil {
		if batch.IsEmpty(err) {
			fmt.Fprintf(e.stderr, "%s: nothing to trim, every pixel is background (threshold %s)\n", src, e.cfg.BackgroundThreshold().Hex())
		} else {
			fmt.Fprintf(e.stderr, "error: %v\n", err)
		}
		return exitError
	}

	fmt.Fprintf(e.stdout, "%s -> %s %dx%d box %s\n", src, item.Output, item.Width, item.Height, item.Box)
	return exitOK
}

func runTrimDir(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet(e, "trim-dir", "trim-dir [flags] -out <dir> <input dir>")
	outDir, reportPath, quiet := batchFlags(fs, e.cfg)
	if code, ok := parse(e, fs, args, 1); !ok {
		return code
	}
	if *outDir == "" {
		fs.Usage()
		return exitUsage
	}

	progress := newProgressLine(e.stderr, *quiet)
	rep, err := batch.New(e.cfg.BatchOptions(progress.callback())).TrimDirectory(ctx, fs.Arg(0), *outDir)
	progress.end()
	return finishBatch(e, rep, err, *reportPath)
}

func runExtractDB(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet(e, "extract-db", "extract-db [flags] -out <dir> <database.mdb>")
	outDir, reportPath, quiet := batchFlags(fs, e.cfg)
	db := &e.cfg.Database
	fs.StringVar(&db.Driver, "driver", db.Driver, "database/sql driver")
	fs.StringVar(&db.DSN, "dsn", db.DSN, "connection string; %s is replaced by the database path")
	fs.StringVar(&db.Query, "query", db.Query, "query selecting the id and OLE columns")
	fs.StringVar(&db.IDColumn, "id-column", db.IDColumn, "integer id column")
	fs.StringVar(&db.BlobColumn, "blob-column", db.BlobColumn, "OLE object column")
	if code, ok := parse(e, fs, args, -1); !ok {
		return code
	}
	if *outDir == "" || fs.NArg() > 1 || (fs.NArg() == 0 && strings.Contains(db.DSN, "%s")) {
		fs.Usage()
		return exitUsage
	}

	ex, err := oledb.Open(db.Driver, oledb.DSN(db.DSN, fs.Arg(0)), db.IDColumn, db.BlobColumn)
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitError
	}
	defer ex.Close()

	progress := newProgressLine(e.stderr, *quiet)
	rep, err := batch.New(e.cfg.BatchOptions(progress.callback())).ExtractDatabase(ctx, ex, db.Query, *outDir)
	progress.end()
	return finishBatch(e, rep, err, *reportPath)
}

func runTransparent(_ context.Context, e *env, args []string) int {
	fs := newFlagSet(e, "transparent", "transparent [flags] <image>")
	rangeFlags(fs, e.cfg)
	outDir := fs.String("out", "", "output directory (default: the image's directory)")
	name := fs.String("name", "", "output name without extension (default <image>_transparent)")
	if code, ok := parse(e, fs, args, 1); !ok {
		return code
	}

	src := fs.Arg(0)
	if *outDir == "" {
		*outDir = filepath.Dir(src)
	}
	if *name == "" {
		*name = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + "_transparent"
	}

	buf, err := imaging.LoadBuffer(src)
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitError
	}
	from, to := e.cfg.TransparentRange()
	changed, err := imaging.ApplyTransparency(buf, from, to)
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitError
	}
	img, err := imaging.ToImage(buf)
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitError
	}

	opts := e.cfg.SaveOptions()
	opts.Format = "png"
	out, err := imaging.Save(img, *outDir, *name, opts)
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitError
	}

	fmt.Fprintf(e.stdout, "%s -> %s, %d pixels transparent\n", src, out, changed)
	return exitOK
}

func runBBox(_ context.Context, e *env, args []string) int {
	fs := newFlagSet(e, "bbox", "bbox [flags] <image>")
	thresholdFlags(fs, e.cfg)
	if code, ok := parse(e, fs, args, 1); !ok {
		return code
	}

	buf, err := imaging.LoadBuffer(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitError
	}
	box, err := imaging.ComputeBoundingBox(buf, e.cfg.BackgroundThreshold())
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitError
	}

	if box.Empty() {
		fmt.Fprintf(e.stdout, "%dx%d empty\n", buf.Width, buf.Height)
		return exitOK
	}
	fmt.Fprintf(e.stdout, "%dx%d box %s size %dx%d\n", buf.Width, buf.Height, box, box.Width(), box.Height())
	return exitOK
}

func runConfig(_ context.Context, e *env, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(e.stderr, "Usage: image-trimmer config")
		return exitUsage
	}
	data, err := yaml.Marshal(e.cfg)
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitError
	}
	e.stdout.Write(data)
	return exitOK
}
