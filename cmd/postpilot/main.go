// Package main provides the postpilot command: it posts an image with a
// caption through a logged-in browser session and reports progress.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	Image       string
	Caption     string
	Headless    bool
	UserDataDir string
	MetricsAddr string
	Verbosity   string
	TUI         bool
	Tool        bool
	Preview     bool
	Status      string
	Ping        bool
	Inspect     bool
	Serve       bool
	InitConfig  bool
	ShowVersion bool

	// set records which flags were given explicitly
	set map[string]bool
}

func main() {
	// Parse command line flags
	cli := parseFlags()

	// Show version if requested
	if cli.ShowVersion {
		fmt.Printf("postpilot v%s\n", version)
		return
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("postpilot: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (default ~/.postpilot/config.yaml)")
	flag.StringVar(&cli.Image, "image", "", "Image to post: file path, data URL or HTTP(S) URL")
	flag.StringVar(&cli.Caption, "caption", "", "Caption for the post (max 2200 characters)")
	flag.BoolVar(&cli.Headless, "headless", false, "Run the browser without a window (overrides config)")
	flag.StringVar(&cli.UserDataDir, "user-data-dir", "", "Browser profile directory (overrides config)")
	flag.StringVar(&cli.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")
	flag.StringVar(&cli.Verbosity, "verbosity", "", "Log verbosity: quiet, normal, verbose or debug (overrides config)")
	flag.BoolVar(&cli.TUI, "tui", false, "Show an interactive progress view")
	flag.BoolVar(&cli.Tool, "tool", false, "Read a tool call in XML from stdin and execute it")
	flag.BoolVar(&cli.Preview, "preview", false, "With -tool, describe the call instead of executing it")
	flag.StringVar(&cli.Status, "status", "", "Print the status of an operation kept in the shared store")
	flag.BoolVar(&cli.Ping, "ping", false, "Check that the browser shows the target site")
	flag.BoolVar(&cli.Inspect, "inspect", false, "Report what the page agent sees on the target page")
	flag.BoolVar(&cli.Serve, "serve", false, "Answer JSON requests, one per line, on stdin")
	flag.BoolVar(&cli.InitConfig, "init-config", false, "Write the default configuration file and exit")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "postpilot - post images through a logged-in browser session\n\n")
		fmt.Fprintf(os.Stderr, "Usage: postpilot [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Post a local image\n")
		fmt.Fprintf(os.Stderr, "  postpilot -image ./sunset.jpg -caption \"Golden hour #sunset\"\n\n")
		fmt.Fprintf(os.Stderr, "  # Check the browser session\n")
		fmt.Fprintf(os.Stderr, "  postpilot -ping\n\n")
		fmt.Fprintf(os.Stderr, "  # Execute a tool call\n")
		fmt.Fprintf(os.Stderr, "  echo '<tool><tool_name>publish_post</tool_name><arguments><image>a.jpg</image></arguments></tool>' | postpilot -tool\n\n")
	}

	flag.Parse()

	cli.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		cli.set[f.Name] = true
	})
	return cli
}
