// Lexorchd is the extraction daemon: it loads pattern definitions, wires
// the extraction pipeline, and exposes it over a thin HTTP admin surface
// for routing, extraction, and pattern/cache introspection.
//
// Configuration is loaded from environment variables. See internal/config
// for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	lexorchd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9091 LLM_BASE_URL=http://localhost:8000 lexorchd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/brianjwalters/lexorch/internal/config"
	lexorchhttp "github.com/brianjwalters/lexorch/internal/http"
	"github.com/brianjwalters/lexorch/internal/logging"
	"github.com/brianjwalters/lexorch/pkg/extraction"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  lexorchd           Start the extraction daemon\n")
			fmt.Fprintf(os.Stderr, "  lexorchd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("lexorchd error: %v", err)
	}

	log.Println("lexorchd shutdown complete")
}

func printVersion() {
	fmt.Printf("lexorchd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run initializes the extraction engine and admin HTTP server, and blocks
// until ctx is cancelled.
func run(ctx context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(loggingConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	zapLogger := logger.Underlying()
	zapLogger.Info("starting lexorchd",
		zap.Int("port", cfg.Server.Port),
		zap.String("pattern_dir", cfg.PatternStore.Dir),
		zap.String("llm_base_url", cfg.LLM.BaseURL),
		zap.Bool("watch_patterns", cfg.PatternStore.Watch),
	)

	eng, err := extraction.New(*cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to construct extraction engine: %w", err)
	}

	if err := eng.Start(ctx, cfg.PatternStore.Watch); err != nil {
		return fmt.Errorf("failed to start extraction engine: %w", err)
	}
	defer eng.Close()

	srv, err := lexorchhttp.NewServer(eng, zapLogger, &lexorchhttp.Config{
		Host:    "0.0.0.0",
		Port:    cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("failed to construct http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loggingConfig builds a logging.Config matching the daemon's telemetry
// mode: JSON output when telemetry is enabled, console otherwise.
func loggingConfig(cfg *config.Config) *logging.Config {
	lc := logging.NewDefaultConfig()
	if !cfg.Observability.EnableTelemetry {
		lc.Format = "console"
	}
	return lc
}
