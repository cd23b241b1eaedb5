package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/image/bmp"

	"github.com/ironsheep/image-trimmer/internal/imaging"
	"github.com/ironsheep/image-trimmer/internal/oledb"
)

// canvas returns a white w x h image with a black rectangle covering r.
func canvas(w, h int, r image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{255, 255, 255, 255}
			if image.Pt(x, y).In(r) {
				c = color.NRGBA{0, 0, 0, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func encodeBMP(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("cannot open output %s: %v", path, err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

// progressRecorder collects progress calls and checks the contract.
type progressRecorder struct {
	mu    sync.Mutex
	calls [][2]int
}

func (p *progressRecorder) record(done, total int) {
	p.mu.Lock()
	p.calls = append(p.calls, [2]int{done, total})
	p.mu.Unlock()
}

func (p *progressRecorder) check(t *testing.T, total int) {
	t.Helper()
	if len(p.calls) == 0 {
		t.Fatal("no progress reported")
	}
	if p.calls[0][0] != 0 {
		t.Errorf("first progress call: got %d, want 0", p.calls[0][0])
	}
	for i, c := range p.calls {
		if c[1] != total {
			t.Errorf("call %d: total %d, want %d", i, c[1], total)
		}
		if i > 0 && c[0] < p.calls[i-1][0] {
			t.Errorf("progress decreased: %v", p.calls)
		}
	}
	if last := p.calls[len(p.calls)-1][0]; last != total {
		t.Errorf("last progress: got %d, want %d", last, total)
	}
}

func testOptions(progress ProgressFunc) Options {
	opts := DefaultOptions()
	opts.Workers = 3
	opts.Progress = progress
	return opts
}

func TestTrimDirectory(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(src, "a.png"), canvas(40, 30, image.Rect(5, 5, 15, 10)))
	if err := os.WriteFile(filepath.Join(src, "b.bmp"), encodeBMP(t, canvas(20, 20, image.Rect(0, 0, 1, 1))), 0644); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(src, "c.png"), canvas(10, 10, image.Rectangle{}))
	if err := os.WriteFile(filepath.Join(src, "notes.txt"), []byte("skip me"), 0644); err != nil {
		t.Fatal(err)
	}

	var rec progressRecorder
	rep, err := New(testOptions(rec.record)).TrimDirectory(context.Background(), src, out)
	if err != nil {
		t.Fatalf("TrimDirectory failed: %v", err)
	}

	if rep.Total != 3 || rep.Trimmed != 2 || rep.Empty != 1 || rep.Failed != 0 {
		t.Fatalf("report: %s", rep.Summary())
	}
	rec.check(t, 3)

	if w, h := imageSize(t, filepath.Join(out, "image_0.png")); w != 10 || h != 5 {
		t.Errorf("image_0: got %dx%d, want 10x5", w, h)
	}
	if w, h := imageSize(t, filepath.Join(out, "image_1.png")); w != 1 || h != 1 {
		t.Errorf("image_1: got %dx%d, want 1x1", w, h)
	}
	if _, err := os.Stat(filepath.Join(out, "image_2.png")); !os.IsNotExist(err) {
		t.Error("all-background image should not be written")
	}

	empty := rep.Items[2]
	if empty.Status != StatusEmpty || !strings.HasSuffix(empty.Source, "c.png") {
		t.Errorf("item 2: got %+v", empty)
	}
	first := rep.Items[0]
	if first.Box == nil || *first.Box != (imaging.BoundingBox{MinX: 5, MinY: 5, MaxX: 14, MaxY: 9}) {
		t.Errorf("item 0 box: got %v", first.Box)
	}
}

func TestTrimDirectory_DecodeFailureIsRecorded(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(src, "good.png"), canvas(8, 8, image.Rect(2, 2, 4, 4)))
	if err := os.WriteFile(filepath.Join(src, "broken.png"), []byte("not a png"), 0644); err != nil {
		t.Fatal(err)
	}

	rep, err := New(testOptions(nil)).TrimDirectory(context.Background(), src, out)
	if err != nil {
		t.Fatalf("TrimDirectory failed: %v", err)
	}
	if rep.Trimmed != 1 || rep.Failed != 1 {
		t.Fatalf("report: %s", rep.Summary())
	}
	// sorted order: broken.png, good.png
	if rep.Items[0].Status != StatusFailed || rep.Items[0].Error == "" {
		t.Errorf("broken item: got %+v", rep.Items[0])
	}
	if rep.Items[1].Output != filepath.Join(out, "image_1.png") {
		t.Errorf("good item output: got %s", rep.Items[1].Output)
	}
}

func TestTrimDirectory_Transparency(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	// Two black dots leave white pixels inside the crop.
	img := canvas(10, 10, image.Rect(1, 1, 2, 2))
	img.SetNRGBA(4, 4, color.NRGBA{0, 0, 0, 255})
	writePNG(t, filepath.Join(src, "dots.png"), img)

	opts := testOptions(nil)
	opts.Transparency = true
	rep, err := New(opts).TrimDirectory(context.Background(), src, out)
	if err != nil {
		t.Fatalf("TrimDirectory failed: %v", err)
	}
	if got := rep.Items[0].Transparent; got != 14 {
		t.Errorf("transparent pixels: got %d, want 14", got)
	}

	result, err := imaging.Open(filepath.Join(out, "image_0.png"))
	if err != nil {
		t.Fatal(err)
	}
	buf := imaging.FromImage(result)
	if _, _, _, a := buf.BGRA(1, 0); a != 0 {
		t.Errorf("white pixel alpha: got %d, want 0", a)
	}
	if _, _, _, a := buf.BGRA(0, 0); a != 255 {
		t.Errorf("black pixel alpha: got %d, want 255", a)
	}
}

func TestTrimDirectory_TransparencyKeepsAlpha(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	img := canvas(10, 10, image.Rect(1, 1, 2, 2))
	img.SetNRGBA(4, 4, color.NRGBA{0, 0, 0, 255})
	writePNG(t, filepath.Join(src, "dots.png"), img)

	opts := testOptions(nil)
	opts.Transparency = true
	opts.Save.Format = "jpg"
	rep, err := New(opts).TrimDirectory(context.Background(), src, out)
	if err != nil {
		t.Fatalf("TrimDirectory failed: %v", err)
	}
	want := filepath.Join(out, "image_0.png")
	if rep.Items[0].Output != want {
		t.Fatalf("output: got %s, want %s", rep.Items[0].Output, want)
	}
	if _, err := os.Stat(filepath.Join(out, "image_0.jpg")); !os.IsNotExist(err) {
		t.Errorf("no jpg should be written, stat: %v", err)
	}

	result, err := imaging.Open(want)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, a := imaging.FromImage(result).BGRA(1, 0); a != 0 {
		t.Errorf("white pixel alpha: got %d, want 0", a)
	}
}

func TestTrimDirectory_InvalidPrefix(t *testing.T) {
	parent := t.TempDir()
	src, out := filepath.Join(parent, "src"), filepath.Join(parent, "out")
	for _, dir := range []string{src, out} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writePNG(t, filepath.Join(src, "a.png"), canvas(10, 10, image.Rect(2, 2, 5, 5)))

	opts := testOptions(nil)
	opts.Prefix = "../escaped_"
	rep, err := New(opts).TrimDirectory(context.Background(), src, out)
	if err != nil {
		t.Fatalf("TrimDirectory failed: %v", err)
	}
	if rep.Failed != 1 || !strings.Contains(rep.Items[0].Error, imaging.ErrInvalidName.Error()) {
		t.Errorf("report: %s, item error %q", rep.Summary(), rep.Items[0].Error)
	}
	if _, err := os.Stat(filepath.Join(parent, "escaped_0.png")); !os.IsNotExist(err) {
		t.Errorf("file written outside the output directory, stat: %v", err)
	}
}

func TestTrimDirectory_OutputDirMissing(t *testing.T) {
	_, err := New(testOptions(nil)).TrimDirectory(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, imaging.ErrOutputDir) {
		t.Errorf("expected ErrOutputDir, got %v", err)
	}
}

func TestTrimDirectory_Cancelled(t *testing.T) {
	src, out := t.TempDir(), t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		writePNG(t, filepath.Join(src, name), canvas(4, 4, image.Rect(1, 1, 2, 2)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := New(testOptions(nil)).TrimDirectory(ctx, src, out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rep.Cancelled != 2 || rep.Trimmed != 0 {
		t.Errorf("report: %s", rep.Summary())
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Errorf("cancelled run wrote %d files", len(entries))
	}
}

func TestTrimDirectory_EmptyDirectory(t *testing.T) {
	var rec progressRecorder
	rep, err := New(testOptions(rec.record)).TrimDirectory(context.Background(), t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("TrimDirectory failed: %v", err)
	}
	if rep.Total != 0 {
		t.Errorf("total: got %d", rep.Total)
	}
	rec.check(t, 0)
}

func TestTrimFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.png")
	writePNG(t, src, canvas(30, 30, image.Rect(10, 12, 20, 14)))

	var rec progressRecorder
	item, err := New(testOptions(rec.record)).TrimFile(context.Background(), src, dir)
	if err != nil {
		t.Fatalf("TrimFile failed: %v", err)
	}
	if item.Output != filepath.Join(dir, "scan_trimmed.png") {
		t.Errorf("output: got %s", item.Output)
	}
	if w, h := imageSize(t, item.Output); w != 10 || h != 2 {
		t.Errorf("size: got %dx%d, want 10x2", w, h)
	}
	rec.check(t, 1)
}

func TestTrimFile_Empty(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "blank.png")
	writePNG(t, src, canvas(5, 5, image.Rectangle{}))

	item, err := New(testOptions(nil)).TrimFile(context.Background(), src, dir)
	if !IsEmpty(err) {
		t.Fatalf("expected empty-image error, got %v", err)
	}
	if item.Status != StatusEmpty {
		t.Errorf("status: got %s", item.Status)
	}
}

func TestTrimFile_NotAnImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "x.png")
	if err := os.WriteFile(src, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := New(testOptions(nil)).TrimFile(context.Background(), src, dir)
	var decErr *imaging.DecodeError
	if !errors.As(err, &decErr) {
		t.Errorf("expected *imaging.DecodeError, got %v", err)
	}
}

func TestExtractImages(t *testing.T) {
	out := t.TempDir()
	blobs := map[int][]byte{
		12: encodeBMP(t, canvas(16, 16, image.Rect(4, 4, 8, 6))),
		11: encodePNG(t, canvas(16, 16, image.Rect(0, 0, 16, 16))),
		30: []byte("definitely not a picture"),
	}

	var rec progressRecorder
	rep, err := New(testOptions(rec.record)).ExtractImages(context.Background(), blobs, out)
	if err != nil {
		t.Fatalf("ExtractImages failed: %v", err)
	}
	rec.check(t, 3)

	if rep.Trimmed != 2 || rep.Failed != 1 {
		t.Fatalf("report: %s", rep.Summary())
	}
	wantIDs := []int{11, 12, 30}
	for i, want := range wantIDs {
		if rep.Items[i].ID == nil || *rep.Items[i].ID != want {
			t.Errorf("item %d: id %v, want %d", i, rep.Items[i].ID, want)
		}
	}
	if w, h := imageSize(t, filepath.Join(out, "image_11.png")); w != 16 || h != 16 {
		t.Errorf("image_11: got %dx%d", w, h)
	}
	if w, h := imageSize(t, filepath.Join(out, "image_12.png")); w != 4 || h != 2 {
		t.Errorf("image_12: got %dx%d, want 4x2", w, h)
	}
}

type fakeSource struct {
	blobs map[int][]byte
	err   error
	query string
}

func (f *fakeSource) OleImages(_ context.Context, query string) (map[int][]byte, error) {
	f.query = query
	return f.blobs, f.err
}

func TestExtractDatabase(t *testing.T) {
	out := t.TempDir()
	src := &fakeSource{blobs: map[int][]byte{
		42: encodePNG(t, canvas(8, 8, image.Rect(3, 3, 5, 5))),
	}}

	rep, err := New(testOptions(nil)).ExtractDatabase(context.Background(), src, "SELECT * FROM OLE", out)
	if err != nil {
		t.Fatalf("ExtractDatabase failed: %v", err)
	}
	if src.query != "SELECT * FROM OLE" {
		t.Errorf("query: got %q", src.query)
	}
	if rep.Trimmed != 1 || rep.Items[0].Output != filepath.Join(out, "image_42.png") {
		t.Errorf("report: %+v", rep.Items)
	}
}

func TestExtractDatabase_SourceError(t *testing.T) {
	sourceErr := errors.New("database locked")
	_, err := New(testOptions(nil)).ExtractDatabase(context.Background(), &fakeSource{err: sourceErr}, "", t.TempDir())
	if !errors.Is(err, sourceErr) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}

func TestExtractDatabase_WithExtractor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"idOle", "object"}).
			AddRow(int64(11), encodeBMP(t, canvas(12, 12, image.Rect(2, 2, 3, 3)))))

	out := t.TempDir()
	rep, err := New(testOptions(nil)).ExtractDatabase(context.Background(), oledb.New(db, "", ""), oledb.DefaultQuery, out)
	if err != nil {
		t.Fatalf("ExtractDatabase failed: %v", err)
	}
	if rep.Trimmed != 1 {
		t.Fatalf("report: %s", rep.Summary())
	}
	if w, h := imageSize(t, filepath.Join(out, "image_11.png")); w != 1 || h != 1 {
		t.Errorf("image_11: got %dx%d, want 1x1", w, h)
	}
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "c.tiff", "readme.md", "d.webp"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0755); err != nil {
		t.Fatal(err)
	}

	files, err := ListImages(dir)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	if got := strings.Join(names, ","); got != "a.png,b.JPG,c.tiff,d.webp" {
		t.Errorf("got %s", got)
	}
}

func TestListImages_Missing(t *testing.T) {
	if _, err := ListImages(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}
