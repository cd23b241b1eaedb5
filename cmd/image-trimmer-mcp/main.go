package main

import (
	"fmt"
	"log"
	"os"

	_ "github.com/mattn/go-adodb"

	"github.com/ironsheep/image-trimmer/internal/config"
	"github.com/ironsheep/image-trimmer/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := ""

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("image-trimmer-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("image-trimmer-mcp - MCP server for trimming image borders")
			fmt.Println()
			fmt.Println("Usage: image-trimmer-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --config <file>  Read settings from a YAML file")
			fmt.Printf("                   (default %s when present)\n", config.GetConfigPath())
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Printf("  %s=debug    Enable debug logging\n", config.EnvLogLevel)
			fmt.Printf("  %s=<n>        Parallel images in batch tools\n", config.EnvWorkers)
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		case "--config", "-config":
			if len(os.Args) < 3 {
				fmt.Fprintln(os.Stderr, "--config requires a file name")
				os.Exit(2)
			}
			configPath = os.Args[2]
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	server.Version = Version
	if cfg.Debug() {
		log.Printf("Image Trimmer MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
		log.Printf("Threshold %s, %d workers", cfg.BackgroundThreshold().Hex(), cfg.Batch.Workers)
	}

	srv := server.New(cfg)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
