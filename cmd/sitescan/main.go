package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/probeworks/sitescan/internal/logger"
	"github.com/probeworks/sitescan/internal/rpcserver"
	"github.com/probeworks/sitescan/pkg/engine"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool

	// Scan flags
	maxDepth      int
	maxPages      int
	timeoutMs     int
	maxConcurrent int
	rateLimit     float64
	headless      bool
	pathRegex     string
	headers       []string
	outputFile    string
	archivePath   string

	// Auth flags
	loginURL      string
	username      string
	password      string
	usernameField string
	passwordField string

	// Serve flags
	listenAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sitescan",
		Short: "SiteScan - Website Structure Scanner",
		Long: `SiteScan - A breadth-first website scanner for security reconnaissance.

Maps the same-origin link graph of a target site, with optional headless
browser rendering, form-based authentication, and live scan observation.`,
		Version: version,
	}

	scanCmd := &cobra.Command{
		Use:   "scan [target]",
		Short: "Scan a target URL",
		Long:  "Crawl a target URL breadth-first and print the result document as JSON.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan API server",
		Long:  "Serve the scan operations over HTTP and stream scan logs over WebSocket.",
		RunE:  runServe,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	scanCmd.Flags().IntVarP(&maxDepth, "max-depth", "d", 5, "Maximum crawl depth")
	scanCmd.Flags().IntVar(&maxPages, "max-pages", 500, "Maximum pages to scan")
	scanCmd.Flags().IntVarP(&timeoutMs, "timeout", "t", 10000, "Request timeout in milliseconds")
	scanCmd.Flags().IntVarP(&maxConcurrent, "workers", "w", 5, "Number of concurrent workers")
	scanCmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 0, "Requests per second (0 = unlimited)")
	scanCmd.Flags().BoolVar(&headless, "headless", false, "Use a headless browser for fetching")
	scanCmd.Flags().StringVar(&pathRegex, "path-filter", "", "Only follow URLs whose path matches this regex")
	scanCmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Custom header (Name: Value), repeatable")
	scanCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	scanCmd.Flags().StringVar(&archivePath, "archive", "", "Archive database for scan summaries")

	scanCmd.Flags().StringVar(&loginURL, "login-url", "", "Login URL for form authentication")
	scanCmd.Flags().StringVarP(&username, "username", "u", "", "Username for authentication")
	scanCmd.Flags().StringVarP(&password, "password", "p", "", "Password for authentication")
	scanCmd.Flags().StringVar(&usernameField, "username-field", "", "Login form username field name")
	scanCmd.Flags().StringVar(&passwordField, "password-field", "", "Login form password field name")

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8087", "Listen address")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildConfig(cmd *cobra.Command, args []string) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if configFile != "" {
		loaded, err := engine.LoadFromFile(configFile)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		cfg = loaded
	}
	if len(args) > 0 {
		cfg.URL = args[0]
	}

	// Command-line flags win over the config file.
	if cmd.Flags().Changed("max-depth") {
		cfg.MaxDepth = maxDepth
	}
	if cmd.Flags().Changed("max-pages") {
		cfg.MaxPages = maxPages
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutMs = timeoutMs
	}
	if cmd.Flags().Changed("workers") {
		cfg.MaxConcurrent = maxConcurrent
	}
	if cmd.Flags().Changed("rate-limit") {
		cfg.RequestsPerSecond = rateLimit
	}
	if cmd.Flags().Changed("headless") {
		cfg.UseHeadlessBrowser = headless
	}
	if cmd.Flags().Changed("path-filter") {
		cfg.PathRegexFilter = pathRegex
	}
	if cmd.Flags().Changed("archive") {
		cfg.ArchivePath = archivePath
	}
	if loginURL != "" {
		cfg.LoginURL = loginURL
		cfg.Username = username
		cfg.Password = password
		cfg.UsernameField = usernameField
		cfg.PasswordField = passwordField
	}

	for _, h := range headers {
		name, value, ok := splitHeader(h)
		if !ok {
			return cfg, fmt.Errorf("malformed header %q, want Name: Value", h)
		}
		if cfg.CustomHeaders == nil {
			cfg.CustomHeaders = make(map[string]string)
		}
		cfg.CustomHeaders[name] = value
	}

	cfg.Verbose = verbose
	return cfg, nil
}

func newLogger() *logger.Logger {
	logCfg := logger.DefaultConfig()
	logCfg.Pretty = true
	logCfg.Output = os.Stderr
	if verbose {
		logCfg.Level = logger.DebugLevel
	}
	return logger.New(logCfg)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(newLogger())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, stopping...\n")
		cancel()
	}()

	report, err := eng.ScanWebsite(ctx, cfg)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	if report == nil {
		return nil
	}

	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	srv := rpcserver.New(rpcserver.Config{
		ListenAddr: listenAddr,
		Log:        log,
	}, engine.New(log))

	httpSrv := srv.HTTPServer()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, shutting down...\n")
		httpSrv.Close()
	}()

	log.WithField("addr", listenAddr).Info("scan API listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func splitHeader(h string) (string, string, bool) {
	name, value, ok := strings.Cut(h, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return "", "", false
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), true
}
