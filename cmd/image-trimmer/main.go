package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	_ "github.com/mattn/go-adodb"

	"github.com/ironsheep/image-trimmer/internal/config"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// command is one subcommand. run receives the arguments after the command
// name and the resolved configuration.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, e *env, args []string) int
}

// env carries what every subcommand needs.
type env struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

var commands = []command{
	{"trim", "Trim the borders of one image", runTrim},
	{"trim-dir", "Trim every image in a directory", runTrimDir},
	{"extract-db", "Extract and trim OLE pictures from an Access database", runExtractDB},
	{"transparent", "Make near-white greys transparent and save as PNG", runTransparent},
	{"bbox", "Print the foreground bounding box", runBBox},
	{"config", "Print the effective configuration as YAML", runConfig},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("image-trimmer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file (default "+config.GetConfigPath()+" when present)")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return exitUsage
	}

	switch rest[0] {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "image-trimmer %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return exitOK
	case "help", "--help", "-h":
		usage(stdout)
		return exitOK
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == rest[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", rest[0])
		usage(stderr)
		return exitUsage
	}

	log.SetOutput(stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return exitError
	}
	if !cfg.Debug() {
		// Per-image failures are already in the report.
		log.SetOutput(io.Discard)
	}

	return cmd.run(ctx, &env{cfg: cfg, stdout: stdout, stderr: stderr}, rest[1:])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "image-trimmer - crop uniform near-white borders from images")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: image-trimmer [-config file] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "  %-12s %s\n", "version", "Print version information")
	fmt.Fprintf(w, "  %-12s %s\n", "help", "Print this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'image-trimmer <command> -h' for the flags of a command.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintf(w, "  %s=debug    Enable debug logging\n", config.EnvLogLevel)
	fmt.Fprintf(w, "  %s=<n>        Parallel images in batch commands\n", config.EnvWorkers)
}
