// Command quillmate serves the fiction chapter analysis engine over HTTP, or
// over stdio as an MCP tool server when started with -mcp.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/quillmate/internal/analyzer"
	"github.com/MrWong99/quillmate/internal/api"
	"github.com/MrWong99/quillmate/internal/config"
	"github.com/MrWong99/quillmate/internal/health"
	"github.com/MrWong99/quillmate/internal/mcpserver"
	"github.com/MrWong99/quillmate/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "quillmate.yaml", "path to the YAML configuration file")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdin/stdout instead of HTTP")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "quillmate: config file %q not found; pass its location with -config\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "quillmate: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Always stderr: in MCP mode stdout carries the protocol.
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("quillmate starting",
		"version", version,
		"config", *configPath,
		"mode", modeName(*mcpMode),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	model, err := buildLLM(cfg.Providers, reg)
	if err != nil {
		slog.Error("failed to build LLM provider", "err", err)
		return 1
	}

	// ── Name registry ─────────────────────────────────────────────────────────
	store, closeStore, err := buildStore(ctx, cfg.Registry, metrics)
	if err != nil {
		slog.Error("failed to open name registry", "backend", cfg.Registry.Backend, "err", err)
		return 1
	}
	defer closeStore()

	// ── Analyzer ──────────────────────────────────────────────────────────────
	a, err := buildAnalyzer(cfg.Analysis, model, metrics)
	if err != nil {
		slog.Error("failed to build analyzer", "err", err)
		return 1
	}
	svc := analyzer.NewService(a, store)

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(r config.Reload) {
		applyConfigChange(r.Diff, r.Current, &level, svc, model, metrics)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go func() {
			for {
				select {
				case <-hup:
					watcher.Recheck()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	summaryOut := io.Writer(os.Stdout)
	if *mcpMode {
		summaryOut = os.Stderr
	}
	printStartupSummary(summaryOut, cfg, *mcpMode)

	if *mcpMode {
		slog.Info("serving MCP over stdio")
		if err := mcpserver.New(svc, version).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp server error", "err", err)
			return 1
		}
		slog.Info("goodbye")
		return 0
	}

	return serveHTTP(ctx, cfg.Server, svc, model != nil, metrics)
}

// serveHTTP runs the API until ctx is cancelled, then drains in-flight
// requests.
func serveHTTP(ctx context.Context, cfg config.ServerConfig, svc *analyzer.Service, llmConfigured bool, metrics *observe.Metrics) int {
	mux := http.NewServeMux()
	api.New(svc).Register(mux)
	health.New(
		health.Checker{Name: "registry", Check: svc.Ping},
		health.Checker{Name: "llm", Optional: true, Check: func(context.Context) error {
			if !llmConfigured {
				return errors.New("not configured; rule-based corrections only")
			}
			return nil
		}},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLS != nil {
			errCh <- srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("server ready, press Ctrl+C to shut down", "listen_addr", cfg.ListenAddr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, mcpMode bool) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        Quillmate: startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "LLM", providerLabel(cfg.Providers.LLM))
	printRow(w, "Fallback LLM", providerLabel(cfg.Providers.FallbackLLM))
	printRow(w, "Registry", string(cfg.Registry.Backend))
	printRow(w, "Windows", fmt.Sprintf("%d / %d words", cfg.Analysis.CommonWindow, cfg.Analysis.UncommonWindow))
	printRow(w, "Fix timeout", cfg.Analysis.CorrectionTimeout.String())
	if mcpMode {
		printRow(w, "Transport", "MCP stdio")
	} else {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	if !e.Configured() {
		return "(not configured)"
	}
	if e.Model != "" {
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func printRow(w io.Writer, key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func modeName(mcpMode bool) string {
	if mcpMode {
		return "mcp"
	}
	return "http"
}
