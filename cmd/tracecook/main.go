// Package main is the tracecook CLI entry point: a transparent capturing
// proxy plus the offline tools that turn a capture log into a viewable
// bundle (cook, query) and serve it (viewer).
//
// CLI commands (cobra):
//
//	tracecook proxy   - start the capturing proxy
//	tracecook cook    - cook a capture log into a JSON bundle
//	tracecook viewer  - serve a bundle (or auto-cook a capture log) for viewing
//	tracecook query   - filter a cooked bundle's requests via its trace index
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracecook/tracecook/internal/adapter"
	"github.com/tracecook/tracecook/internal/capture"
	"github.com/tracecook/tracecook/internal/config"
	"github.com/tracecook/tracecook/internal/cook"
	"github.com/tracecook/tracecook/internal/index"
	"github.com/tracecook/tracecook/internal/proxy"
	"github.com/tracecook/tracecook/internal/viewer"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// usageError carries spec.md §6's exit code 2 ("invalid arguments"),
// distinct from the generic exit code 1 every other failure uses.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }

func newUsageError(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tracecook:", err)
		var ue *usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// ============================================================================
// Root command
// ============================================================================

var configPath string

var rootCmd = &cobra.Command{
	Use:           "tracecook",
	Short:         "tracecook — capturing LLM proxy and trace cooker",
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "tracecook.yaml", "Path to tracecook.yaml")
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(cookCmd)
	rootCmd.AddCommand(viewerCmd)
	rootCmd.AddCommand(queryCmd)
}

// ============================================================================
// tracecook proxy
// ============================================================================

var (
	proxyPort   int
	proxyTarget string
	proxyOutput string
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Start the capturing proxy",
	Long: `Start the capturing proxy. Every request under the root path is
forwarded to --target and the exchange is appended to --output as it
completes. The only non-proxied path is /_local, reserved for the viewer.`,
	RunE: runProxy,
}

func init() {
	proxyCmd.Flags().IntVar(&proxyPort, "port", 0, "Bind port (default 8080, or server.port from config)")
	proxyCmd.Flags().StringVar(&proxyTarget, "target", "", "Upstream base URL (required)")
	proxyCmd.Flags().StringVar(&proxyOutput, "output", "", "Capture log path (default capture.jsonl, or output from config)")
}

func runProxy(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if proxyTarget != "" {
		cfg.Target = proxyTarget
	}
	if proxyOutput != "" {
		cfg.Output = proxyOutput
	}
	if proxyPort != 0 {
		cfg.Server.Port = proxyPort
	}

	if cfg.Target == "" {
		return newUsageError("--target is required (upstream base URL)")
	}

	formatRules, err := proxy.NewFormatRules(cfg.FormatRules)
	if err != nil {
		return newUsageError("invalid formatRules: %v", err)
	}

	store, err := capture.Open(cfg.Output)
	if err != nil {
		return fmt.Errorf("opening capture log %s: %w", cfg.Output, err)
	}
	defer store.Close()

	p := proxy.New(proxy.Options{
		Target:            cfg.Target,
		Store:             store,
		FormatRules:       formatRules,
		BufferTimeoutMs:   cfg.Streaming.BufferTimeoutMs,
		ReassembleEagerly: cfg.Streaming.ReassembleEagerly,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("tracecook: proxying %s -> %s, capturing to %s\n", addr, cfg.Target, cfg.Output)
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		fmt.Println("tracecook: shutting down...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "tracecook: shutdown error:", err)
	}
	fmt.Println("tracecook: stopped")
	return nil
}

// ============================================================================
// tracecook cook
// ============================================================================

var (
	cookOutput string
	cookFormat string
	cookIndex  string
)

var cookCmd = &cobra.Command{
	Use:   "cook <INPUT.jsonl>",
	Short: "Cook a capture log into a JSON bundle",
	Args:  cobra.ExactArgs(1),
	RunE:  runCook,
}

func init() {
	cookCmd.Flags().StringVarP(&cookOutput, "output", "o", "", "Output bundle path (required)")
	cookCmd.Flags().StringVar(&cookFormat, "format", "", "Force adapter format: openai|claude|gemini")
	cookCmd.Flags().StringVar(&cookIndex, "index", "", "Also build a SQLite trace index at this path, for tracecook query")
}

func runCook(cmd *cobra.Command, args []string) error {
	if cookOutput == "" {
		return newUsageError("-o/--output is required")
	}
	format, err := parseCLIFormat(cookFormat)
	if err != nil {
		return newUsageError("%v", err)
	}

	skipCount := 0
	bundle, err := cook.Run(args[0], cook.Options{Format: format}, func(s cook.Skip) {
		skipCount++
		fmt.Fprintf(os.Stderr, "tracecook: skipped record %s: %s\n", s.RecordID, s.Reason)
	})
	if err != nil {
		return fmt.Errorf("cooking %s: %w", args[0], err)
	}

	if err := writeJSONFile(cookOutput, bundle); err != nil {
		return fmt.Errorf("writing %s: %w", cookOutput, err)
	}

	if cookIndex != "" {
		idx, err := index.Open(cookIndex)
		if err != nil {
			return fmt.Errorf("opening trace index %s: %w", cookIndex, err)
		}
		defer idx.Close()
		if err := idx.Build(bundle); err != nil {
			return fmt.Errorf("building trace index %s: %w", cookIndex, err)
		}
	}

	if skipCount > 0 {
		fmt.Fprintf(os.Stderr, "tracecook: cooked %d request(s), skipped %d record(s)\n", len(bundle.Requests), skipCount)
	} else {
		fmt.Printf("tracecook: cooked %d request(s) to %s\n", len(bundle.Requests), cookOutput)
	}
	return nil
}

// parseCLIFormat maps the CLI's provider names (openai|claude|gemini) to
// adapter.Format. "claude" is the CLI-facing spelling of adapter.FormatAnthropic.
func parseCLIFormat(name string) (adapter.Format, error) {
	switch name {
	case "":
		return "", nil
	case "openai":
		return adapter.FormatOpenAI, nil
	case "claude":
		return adapter.FormatAnthropic, nil
	case "gemini":
		return adapter.FormatGemini, nil
	default:
		return "", fmt.Errorf("unknown --format %q (want openai, claude, or gemini)", name)
	}
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ============================================================================
// tracecook viewer
// ============================================================================

var (
	viewerHost   string
	viewerPort   int
	viewerAssets string
)

var viewerCmd = &cobra.Command{
	Use:   "viewer <TRACE>",
	Short: "Serve a cooked bundle (or auto-cook a capture log) for viewing",
	Args:  cobra.ExactArgs(1),
	RunE:  runViewer,
}

func init() {
	viewerCmd.Flags().StringVar(&viewerHost, "host", "127.0.0.1", "Bind host")
	viewerCmd.Flags().IntVar(&viewerPort, "port", 8081, "Bind port")
	viewerCmd.Flags().StringVar(&viewerAssets, "assets", "", "Directory of static viewer UI assets to serve at /")
}

func runViewer(cmd *cobra.Command, args []string) error {
	v, err := viewer.New(viewer.Options{
		AssetsDir: viewerAssets,
		TracePath: args[0],
	})
	if err != nil {
		return fmt.Errorf("starting viewer on %s: %w", args[0], err)
	}
	defer v.Close()

	addr := fmt.Sprintf("%s:%d", viewerHost, viewerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           v.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("tracecook: viewer serving %s at http://%s\n", args[0], addr)
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		fmt.Println("tracecook: shutting down...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "tracecook: shutdown error:", err)
	}
	fmt.Println("tracecook: stopped")
	return nil
}

// ============================================================================
// tracecook query
// ============================================================================

var (
	queryIndex    string
	queryModel    string
	querySince    string
	queryRootOnly bool
)

var queryCmd = &cobra.Command{
	Use:   "query <BUNDLE>",
	Short: "Filter a cooked bundle's requests via its trace index",
	Long: `Print matching request summaries as JSON lines to stdout. Requires
tracecook cook to have been run with --index against the same bundle.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryIndex, "index", "", "Trace index path (default <BUNDLE>.sqlite)")
	queryCmd.Flags().StringVar(&queryModel, "model", "", "Filter to this model")
	queryCmd.Flags().StringVar(&querySince, "since", "", "Filter to requests newer than this duration ago (e.g. 1h30m)")
	queryCmd.Flags().BoolVar(&queryRootOnly, "root-only", false, "Only print requests with no parent")
}

func runQuery(cmd *cobra.Command, args []string) error {
	indexPath := queryIndex
	if indexPath == "" {
		indexPath = args[0] + ".sqlite"
	}
	if _, err := os.Stat(indexPath); err != nil {
		return fmt.Errorf("trace index %s not found; re-run `tracecook cook --index %s`: %w", indexPath, indexPath, err)
	}

	idx, err := index.Open(indexPath)
	if err != nil {
		return fmt.Errorf("opening trace index %s: %w", indexPath, err)
	}
	defer idx.Close()

	params := index.QueryParams{Model: queryModel}
	if querySince != "" {
		dur, err := time.ParseDuration(querySince)
		if err != nil {
			return newUsageError("invalid --since %q: %v", querySince, err)
		}
		params.Since = time.Now().Add(-dur).UTC().Format(time.RFC3339Nano)
	}

	rows, err := idx.Query(params)
	if err != nil {
		return fmt.Errorf("querying trace index: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if queryRootOnly && row.ParentID != "" {
			continue
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("writing query output: %w", err)
		}
	}
	return nil
}
