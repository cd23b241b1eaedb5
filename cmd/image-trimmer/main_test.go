package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ironsheep/image-trimmer/internal/batch"
	"github.com/ironsheep/image-trimmer/internal/oledb"
)

// framed returns a 40x30 white image with a 10x10 dark square at (10,5).
func framed() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 5; y < 15; y++ {
		for x := 10; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{30, 60, 90, 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

// cli runs the command line with an empty home directory so no user
// configuration is picked up.
func cli(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_VersionAndHelp(t *testing.T) {
	code, out, _ := cli(t, "version")
	if code != exitOK || !strings.Contains(out, "image-trimmer "+Version) {
		t.Errorf("version: code %d, output %q", code, out)
	}

	code, out, _ = cli(t, "help")
	if code != exitOK {
		t.Errorf("help: code %d", code)
	}
	for _, c := range commands {
		if !strings.Contains(out, c.name) {
			t.Errorf("help does not list %s", c.name)
		}
	}
}

func TestRun_Usage(t *testing.T) {
	if code, _, _ := cli(t); code != exitUsage {
		t.Errorf("no command: code %d, want %d", code, exitUsage)
	}
	code, _, errOut := cli(t, "frobnicate")
	if code != exitUsage || !strings.Contains(errOut, `unknown command "frobnicate"`) {
		t.Errorf("unknown command: code %d, stderr %q", code, errOut)
	}
	if code, _, _ := cli(t, "trim"); code != exitUsage {
		t.Errorf("trim without image: code %d", code)
	}
	if code, _, _ := cli(t, "trim-dir", t.TempDir()); code != exitUsage {
		t.Errorf("trim-dir without -out: code %d", code)
	}
}

func TestRun_Trim(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, filepath.Join(dir, "scan.png"), framed())

	code, out, errOut := cli(t, "trim", "-format", "bmp", src)
	if code != exitOK {
		t.Fatalf("trim: code %d, stderr %q", code, errOut)
	}
	want := filepath.Join(dir, "scan_trimmed.bmp")
	if !strings.Contains(out, want) || !strings.Contains(out, "10x10") || !strings.Contains(out, "(10,5)-(19,14)") {
		t.Errorf("output: %q", out)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("trimmed file missing: %v", err)
	}
}

func TestRun_TrimEmpty(t *testing.T) {
	blank := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}
	src := writePNG(t, filepath.Join(t.TempDir(), "blank.png"), blank)

	code, _, errOut := cli(t, "trim", src)
	if code != exitError || !strings.Contains(errOut, "nothing to trim") {
		t.Errorf("code %d, stderr %q", code, errOut)
	}
}

func TestRun_TrimDir(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writePNG(t, filepath.Join(in, "a.png"), framed())
	writePNG(t, filepath.Join(in, "b.png"), framed())
	report := filepath.Join(t.TempDir(), "run.yaml")

	code, stdout, stderr := cli(t, "trim-dir", "-out", out, "-prefix", "pic_", "-workers", "2", "-report", report, in)
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "2 images: 2 trimmed, 0 empty, 0 failed") {
		t.Errorf("summary missing: %q", stdout)
	}
	if !strings.Contains(stderr, "processed 2/2") {
		t.Errorf("progress missing: %q", stderr)
	}
	for _, name := range []string{"pic_0.png", "pic_1.png"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}

	rep, err := batch.ReadReport(report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if rep.Trimmed != 2 {
		t.Errorf("report: %s", rep.Summary())
	}
}

func TestProgressLine(t *testing.T) {
	var w bytes.Buffer
	p := newProgressLine(&w, false)

	// A cancelled run stops before done reaches total.
	p.update(0, 3)
	p.update(1, 3)
	p.end()
	if got, want := w.String(), "\rprocessed 0/3\rprocessed 1/3\n"; got != want {
		t.Errorf("cancelled run: got %q, want %q", got, want)
	}

	w.Reset()
	p.update(3, 3)
	p.end()
	if got, want := w.String(), "\rprocessed 3/3\n"; got != want {
		t.Errorf("finished run: got %q, want %q", got, want)
	}

	quiet := newProgressLine(&w, true)
	if quiet.callback() != nil {
		t.Error("quiet progress should have no callback")
	}
	quiet.end()
}

func TestRun_TrimDirCancelled(t *testing.T) {
	in := t.TempDir()
	writePNG(t, filepath.Join(in, "a.png"), framed())
	writePNG(t, filepath.Join(in, "b.png"), framed())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	t.Setenv("HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"trim-dir", "-out", t.TempDir(), in}, &stdout, &stderr)
	if code != exitError {
		t.Errorf("code %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr.String(), "processed 0/2\n") {
		t.Errorf("progress line not terminated: %q", stderr.String())
	}
}

func TestRun_TrimDirFailure(t *testing.T) {
	in := t.TempDir()
	writePNG(t, filepath.Join(in, "a.png"), framed())
	if err := os.WriteFile(filepath.Join(in, "broken.png"), []byte("not a png"), 0644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := cli(t, "trim-dir", "-q", "-out", t.TempDir(), in)
	if code != exitError {
		t.Errorf("code %d, want %d", code, exitError)
	}
	if !strings.Contains(stdout, "failed") || !strings.Contains(stdout, "broken.png") {
		t.Errorf("failure not reported: %q", stdout)
	}
	if strings.Contains(stderr, "processed") {
		t.Errorf("-q should suppress progress: %q", stderr)
	}
}

func TestRun_BBox(t *testing.T) {
	src := writePNG(t, filepath.Join(t.TempDir(), "scan.png"), framed())

	code, out, _ := cli(t, "bbox", src)
	if code != exitOK || !strings.Contains(out, "40x30 box (10,5)-(19,14) size 10x10") {
		t.Errorf("code %d, output %q", code, out)
	}

	// Nothing is above a limit of 255, so the whole image is foreground.
	code, out, _ = cli(t, "bbox", "-background", "#FFFFFF", src)
	if code != exitOK || !strings.Contains(out, "(0,0)-(39,29)") {
		t.Errorf("code %d, output %q", code, out)
	}

	code, _, errOut := cli(t, "bbox", "-r", "300", src)
	if code != exitUsage || !strings.Contains(errOut, "threshold.r") {
		t.Errorf("code %d, stderr %q", code, errOut)
	}
}

func TestRun_Transparent(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, filepath.Join(dir, "scan.png"), framed())

	code, out, errOut := cli(t, "transparent", src)
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, errOut)
	}
	if !strings.Contains(out, "1100 pixels transparent") {
		t.Errorf("output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "scan_transparent.png")); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trim.yaml")
	if err := os.WriteFile(path, []byte("output:\n  prefix: scan_\n"), 0644); err != nil {
		t.Fatal(err)
	}

	code, out, _ := cli(t, "-config", path, "config")
	if code != exitOK || !strings.Contains(out, "prefix: scan_") {
		t.Errorf("code %d, output %q", code, out)
	}

	code, _, errOut := cli(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"), "config")
	if code != exitError || !strings.Contains(errOut, "configuration error") {
		t.Errorf("code %d, stderr %q", code, errOut)
	}
}

func TestRun_ExtractDB(t *testing.T) {
	const dsn = "image_trimmer_cli_test"
	db, mock, err := sqlmock.NewWithDSN(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var blob bytes.Buffer
	if err := png.Encode(&blob, framed()); err != nil {
		t.Fatal(err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(oledb.DefaultQuery)).WillReturnRows(
		sqlmock.NewRows([]string{"idOle", "object"}).AddRow(int64(42), blob.Bytes()),
	)

	out := t.TempDir()
	code, stdout, stderr := cli(t, "extract-db", "-q", "-driver", "sqlmock", "-dsn", dsn, "-out", out)
	if code != exitOK {
		t.Fatalf("code %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "1 images: 1 trimmed") {
		t.Errorf("summary: %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(out, "image_42.png")); err != nil {
		t.Errorf("image_42.png missing: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRun_ExtractDBNeedsDatabase(t *testing.T) {
	// The default DSN has a %s placeholder for the database path.
	if code, _, _ := cli(t, "extract-db", "-out", t.TempDir()); code != exitUsage {
		t.Errorf("code %d, want %d", code, exitUsage)
	}
}
