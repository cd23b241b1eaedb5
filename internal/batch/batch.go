package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-trimmer/internal/imaging"
	"github.com/ironsheep/image-trimmer/internal/ole"
)

// ProgressFunc receives the number of finished items and the total. It is
// called with done=0 before work starts; later values never decrease and the
// last call has done == total unless the run was cancelled. Calls are
// serialised.
type ProgressFunc func(done, total int)

// Options configures a Runner.
type Options struct {
	Threshold imaging.Threshold

	// Transparency enables a pass that clears alpha on greys in
	// [TransparentFrom, TransparentTo] after trimming. Output formats that
	// cannot store alpha are written as PNG instead.
	Transparency    bool
	TransparentFrom uint8
	TransparentTo   uint8

	Save imaging.SaveOptions

	// Prefix is prepended to the index or id of batch output names.
	Prefix string

	// Workers bounds the number of items processed at once.
	Workers int

	Progress ProgressFunc
}

// DefaultOptions returns a near-white background threshold, PNG output named
// image_<n> and no transparency pass.
func DefaultOptions() Options {
	return Options{
		Threshold:       imaging.DefaultThreshold,
		TransparentFrom: imaging.DefaultTransparentFrom,
		TransparentTo:   imaging.DefaultTransparentTo,
		Save:            imaging.SaveOptions{Format: imaging.DefaultFormat},
		Prefix:          "image_",
		Workers:         runtime.NumCPU(),
	}
}

// BlobSource yields OLE fields keyed by record id. *oledb.Extractor
// implements it.
type BlobSource interface {
	OleImages(ctx context.Context, query string) (map[int][]byte, error)
}

// Runner trims images and writes the results to an output directory.
type Runner struct {
	opts Options
}

// New creates a Runner. A non-positive worker count means one worker.
func New(opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{opts: opts}
}

// TrimFile trims a single image file and saves it to outDir as
// <base>_trimmed.<format>. The returned error is nil only when the item was
// trimmed; an all-background image yields imaging.ErrEmptyImage.
func (r *Runner) TrimFile(ctx context.Context, src, outDir string) (Item, error) {
	if err := checkOutputDir(outDir); err != nil {
		return Item{Source: src, Status: StatusFailed, Error: err.Error()}, err
	}
	if err := ctx.Err(); err != nil {
		return Item{Source: src, Status: StatusCancelled}, err
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	r.progress(0, 1)
	item, err := r.trimPath(src, outDir, base+"_trimmed")
	r.progress(1, 1)
	return item, err
}

// TrimDirectory trims every image returned by ListImages(srcDir) and saves
// them as <prefix><index>, where index is the position in sorted order.
//
// Failures of individual images are recorded in the report and do not stop
// the run. The error is non-nil when the directory cannot be listed, the
// output directory is missing or ctx is cancelled.
func (r *Runner) TrimDirectory(ctx context.Context, srcDir, outDir string) (*Report, error) {
	if err := checkOutputDir(outDir); err != nil {
		return nil, err
	}
	files, err := ListImages(srcDir)
	if err != nil {
		return nil, err
	}

	return r.run(ctx, files, func(i int) Item {
		item, _ := r.trimPath(files[i], outDir, r.opts.Prefix+strconv.Itoa(i))
		return item
	})
}

// ExtractImages unwraps, trims and saves database blobs as <prefix><id>.
// Items are reported in ascending id order.
func (r *Runner) ExtractImages(ctx context.Context, blobs map[int][]byte, outDir string) (*Report, error) {
	if err := checkOutputDir(outDir); err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(blobs))
	for id := range blobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = "id " + strconv.Itoa(id)
	}

	rep, err := r.run(ctx, labels, func(i int) Item {
		id := ids[i]
		item := r.trimBlob(blobs[id], outDir, r.opts.Prefix+strconv.Itoa(id))
		item.Source = labels[i]
		item.ID = &id
		return item
	})
	for i := range rep.Items {
		if rep.Items[i].ID == nil {
			id := ids[i]
			rep.Items[i].ID = &id
		}
	}
	return rep, err
}

// ExtractDatabase reads blobs from src with query and passes them to
// ExtractImages.
func (r *Runner) ExtractDatabase(ctx context.Context, src BlobSource, query, outDir string) (*Report, error) {
	if err := checkOutputDir(outDir); err != nil {
		return nil, err
	}
	blobs, err := src.OleImages(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read images from database: %w", err)
	}
	return r.ExtractImages(ctx, blobs, outDir)
}

// run processes labels concurrently with at most Workers items in flight.
func (r *Runner) run(ctx context.Context, labels []string, work func(i int) Item) (*Report, error) {
	total := len(labels)
	rep := &Report{Items: make([]Item, total)}
	for i, l := range labels {
		rep.Items[i] = Item{Source: l, Status: StatusCancelled}
	}

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	g.SetLimit(r.opts.Workers)
	r.progress(0, total)

	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			item := work(i)

			mu.Lock()
			defer mu.Unlock()
			rep.Items[i] = item
			done++
			r.progress(done, total)
			return nil
		})
	}
	_ = g.Wait()

	rep.tally()
	return rep, ctx.Err()
}

func (r *Runner) trimPath(src, outDir, name string) (Item, error) {
	img, err := imaging.Open(src)
	if err != nil {
		log.Printf("Failed to load %s: %v", src, err)
		return Item{Source: src, Status: StatusFailed, Error: err.Error()}, err
	}
	item, err := r.trimImage(img, outDir, name)
	item.Source = src
	return item, err
}

func (r *Runner) trimBlob(blob []byte, outDir, name string) Item {
	data, err := ole.UnwrapImage(blob)
	if err != nil {
		log.Printf("Failed to unwrap %s (%s): %v", name, ole.Describe(blob), err)
		return Item{Status: StatusFailed, Error: err.Error()}
	}
	img, err := imaging.DecodeBytes(data)
	if err != nil {
		log.Printf("Failed to decode %s: %v", name, err)
		return Item{Status: StatusFailed, Error: err.Error()}
	}
	item, _ := r.trimImage(img, outDir, name)
	return item
}

// trimImage crops img to its foreground, applies the optional transparency
// pass and saves the result as outDir/name.
func (r *Runner) trimImage(img image.Image, outDir, name string) (Item, error) {
	item := Item{Status: StatusFailed}
	fail := func(err error) (Item, error) {
		item.Error = err.Error()
		log.Printf("Failed to trim %s: %v", name, err)
		return item, err
	}

	buf := imaging.FromImage(img)
	box, err := imaging.ComputeBoundingBox(buf, r.opts.Threshold)
	if err != nil {
		return fail(err)
	}
	if box.Empty() {
		err := fmt.Errorf("%w (threshold %s)", imaging.ErrEmptyImage, r.opts.Threshold.Hex())
		item.Status = StatusEmpty
		item.Error = err.Error()
		return item, err
	}

	cropped, err := imaging.Crop(buf, box)
	if err != nil {
		return fail(err)
	}
	item.Box = &box
	item.Width, item.Height = cropped.Width, cropped.Height

	if r.opts.Transparency {
		n, err := imaging.ApplyTransparency(cropped, r.opts.TransparentFrom, r.opts.TransparentTo)
		if err != nil {
			return fail(err)
		}
		item.Transparent = n
	}

	out, err := imaging.ToImage(cropped)
	if err != nil {
		return fail(err)
	}
	opts := r.opts.Save
	if r.opts.Transparency {
		opts = opts.WithAlpha()
	}
	path, err := imaging.Save(out, outDir, name, opts)
	if err != nil {
		return fail(err)
	}

	item.Output = path
	item.Status = StatusTrimmed
	item.Error = ""
	return item, nil
}

func (r *Runner) progress(done, total int) {
	if r.opts.Progress != nil {
		r.opts.Progress(done, total)
	}
}

func checkOutputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", imaging.ErrOutputDir, dir)
	}
	return nil
}

// ListImages returns the image files directly inside dir, sorted by name.
// Files are selected by extension; subdirectories are not searched.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {},
	".tif": {}, ".tiff": {}, ".webp": {},
}

// IsEmpty reports whether err means the image had nothing to trim to.
func IsEmpty(err error) bool {
	return errors.Is(err, imaging.ErrEmptyImage)
}
