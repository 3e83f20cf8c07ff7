// CoPilot is an aviation-education assistant daemon.
//
// It exposes a streaming chat API backed by a bounded tool-use
// orchestration loop, with persistent conversation threads, aviation
// weather tools, and a searchable reference manual library.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	copilot serve                 Start the API server
//	copilot ingest [dir]          Import markdown manuals into the library
//	copilot version               Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aviara/copilot/examples"
	"github.com/aviara/copilot/internal/api"
	"github.com/aviara/copilot/internal/buildinfo"
	"github.com/aviara/copilot/internal/cache"
	"github.com/aviara/copilot/internal/config"
	"github.com/aviara/copilot/internal/embeddings"
	"github.com/aviara/copilot/internal/identity"
	"github.com/aviara/copilot/internal/llm"
	"github.com/aviara/copilot/internal/manuals"
	"github.com/aviara/copilot/internal/orchestrator"
	"github.com/aviara/copilot/internal/settings"
	"github.com/aviara/copilot/internal/thread"
	"github.com/aviara/copilot/internal/tools"
	"github.com/aviara/copilot/internal/weather"
)

// main constructs the OS-level environment and delegates to [run] so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the copilot command. Arguments are
// parsed by hand; the flag package's global state interferes with
// calling run concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ingest":
		dir := ""
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runIngest(ctx, stdout, configPath, dir)
	case "init":
		path := "config.yaml"
		if len(cmdArgs) > 0 {
			path = cmdArgs[0]
		}
		return runInit(stdout, path)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "", "help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintf(w, `CoPilot — aviation education assistant

Usage:
  copilot [flags] <command>

Commands:
  serve          Start the API server
  ingest [dir]   Import markdown manuals (defaults to manuals.dir from config)
  init [path]    Write an example config file (default: config.yaml)
  version        Print version and build information

Flags:
  -config <path>   Explicit config file (otherwise searched automatically)
`)
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		// No config file is fine for local development; defaults carry.
		if explicit == "" {
			return config.Default(), "(defaults)", nil
		}
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting CoPilot", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Inference.Model,
		"inference_url", cfg.Inference.BaseURL,
	)

	// All persistent state (threads, settings, manual chunks) lives
	// under the data directory.
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	threadStore, err := thread.NewSQLiteStore(filepath.Join(cfg.DataDir, "threads.db"))
	if err != nil {
		return fmt.Errorf("open thread database: %w", err)
	}
	defer threadStore.Close()

	settingsStore, err := settings.NewSQLiteStore(filepath.Join(cfg.DataDir, "settings.db"))
	if err != nil {
		return fmt.Errorf("open settings database: %w", err)
	}
	defer settingsStore.Close()

	manualStore, err := manuals.NewStore(filepath.Join(cfg.DataDir, "manuals.db"))
	if err != nil {
		return fmt.Errorf("open manual database: %w", err)
	}
	defer manualStore.Close()

	// Weather cache backend. Redis when configured, in-process otherwise.
	var weatherCache cache.Cache
	switch cfg.Cache.Backend {
	case "", "memory":
		weatherCache = cache.NewMemory()
	case "redis":
		redisCache, err := cache.NewRedis(cfg.Cache.Redis)
		if err != nil {
			return fmt.Errorf("connect redis cache: %w", err)
		}
		defer redisCache.Close()
		weatherCache = redisCache
		logger.Info("redis cache connected", "addr", cfg.Cache.Redis.Addr)
	default:
		return fmt.Errorf("unknown cache backend: %q", cfg.Cache.Backend)
	}

	cacheTTL := weather.DefaultPointTTL
	if cfg.Weather.CacheTTL != "" {
		cacheTTL, err = time.ParseDuration(cfg.Weather.CacheTTL)
		if err != nil {
			return fmt.Errorf("parse weather cache_ttl: %w", err)
		}
	}

	aviation := weather.NewAviationClient(cfg.Weather.AviationURL, logger)
	var point *weather.PointClient
	if cfg.Weather.PointURL != "" {
		point = weather.NewPointClient(cfg.Weather.PointURL, weatherCache, cacheTTL, logger)
	} else {
		logger.Warn("point weather not configured, fetch_weather tool disabled")
	}

	embedder := embeddings.New(embeddings.Config{
		BaseURL: embeddingBaseURL(cfg),
		Model:   cfg.Manuals.EmbeddingModel,
	})
	library := manuals.NewLibrary(manualStore, embedder, logger)

	registryCfg := tools.RegistryConfig{
		Aviation: aviation,
		Manuals:  library,
	}
	if point != nil {
		registryCfg.Point = point
	}
	registry := tools.NewRegistry(registryCfg)

	client := llm.NewOllamaClient(cfg.Inference.BaseURL)
	if err := client.Ping(ctx); err != nil {
		logger.Warn("inference provider unreachable at startup", "url", cfg.Inference.BaseURL, "error", err)
	}

	orch := orchestrator.New(logger, threadStore, registry, client, settings.NewResolver(settingsStore, logger), orchestrator.Config{
		Model:         cfg.Inference.Model,
		TitleModel:    cfg.Inference.TitleModel,
		MaxToolRounds: cfg.Inference.MaxToolRounds,
	})

	if len(cfg.Auth.Tokens) == 0 {
		logger.Warn("no auth tokens configured, all requests will be rejected")
	}
	ident := identity.NewTokenResolver(cfg.Auth.Tokens)

	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, orch, threadStore, settings.NewResolver(settingsStore, logger), ident, logger)

	// SIGINT/SIGTERM trigger graceful shutdown.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runIngest(ctx context.Context, stdout io.Writer, configPath, dir string) error {
	logger := newLogger(stdout, slog.LevelInfo)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	if dir == "" {
		dir = cfg.Manuals.Dir
	}
	if dir == "" {
		return fmt.Errorf("no manual directory: pass one or set manuals.dir in config")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	manualStore, err := manuals.NewStore(filepath.Join(cfg.DataDir, "manuals.db"))
	if err != nil {
		return fmt.Errorf("open manual database: %w", err)
	}
	defer manualStore.Close()

	embedder := embeddings.New(embeddings.Config{
		BaseURL: embeddingBaseURL(cfg),
		Model:   cfg.Manuals.EmbeddingModel,
	})
	library := manuals.NewLibrary(manualStore, embedder, logger)

	n, err := library.IngestDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingest manuals: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no manuals found in %s (expected far_aim.md, phak.md, afh.md, poh.md)", dir)
	}

	fmt.Fprintf(stdout, "imported %d chunks from %s\n", n, dir)
	return nil
}

// runInit writes the embedded example config, refusing to clobber an
// existing file.
func runInit(stdout io.Writer, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	if err := os.WriteFile(path, examples.ConfigYAML, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}

func embeddingBaseURL(cfg *config.Config) string {
	if cfg.Manuals.EmbeddingURL != "" {
		return cfg.Manuals.EmbeddingURL
	}
	return cfg.Inference.BaseURL
}
