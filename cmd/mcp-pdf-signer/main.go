package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/a3tai/mcp-pdf-signer/internal/cache"
	"github.com/a3tai/mcp-pdf-signer/internal/config"
	"github.com/a3tai/mcp-pdf-signer/internal/logging"
	"github.com/a3tai/mcp-pdf-signer/internal/mcp"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/export"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/wrapper"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

const redisKeyPrefix = "mcp-pdf-signer:"

// setupLogging builds the process logger. In stdio mode stdout carries the
// MCP protocol, so logs go to stderr and only errors are reported unless
// debug is enabled.
func setupLogging(cfg *config.Config) *log.Logger {
	var logger *log.Logger
	if cfg.IsStdioMode() {
		level := cfg.LogLevel
		if !cfg.IsDebug() {
			level = "error"
		}
		logger = logging.New(os.Stderr, level)
	} else {
		logger = logging.New(os.Stdout, cfg.LogLevel)
		logger.SetReportCaller(cfg.IsDebug())
	}
	logger.SetPrefix(cfg.ServerName)
	log.SetDefault(logger)
	return logger
}

// newCache picks the document cache: Redis when configured, otherwise an
// in-process LRU holding a few documents at the maximum file size
func newCache(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if cfg.RedisURL != "" {
		return cache.NewRedis(ctx, cfg.RedisURL, redisKeyPrefix, cfg.CacheTTL)
	}
	return cache.NewLRU(cfg.CacheSize, int64(cfg.CacheSize)*cfg.MaxFileSize), nil
}

// deliveryChannels orders the channels the exporter tries. Every order ends
// with a manual save so a finished document is never lost.
func deliveryChannels(cfg *config.Config) []export.DeliveryChannel {
	var channels []export.DeliveryChannel
	switch cfg.Delivery {
	case config.DeliverySubmit:
		channels = append(channels, export.NewSubmitChannel(cfg.SubmitURL, cfg.FetchTimeout))
		if cfg.OutputDirectory != "" {
			channels = append(channels, &export.DownloadChannel{Dir: cfg.OutputDirectory})
		}
	case config.DeliveryDownload:
		channels = append(channels, &export.DownloadChannel{Dir: cfg.OutputDirectory})
	}
	return append(channels, &export.ManualSaveChannel{Dir: cfg.OutputDirectory})
}

// buildService wires the signing service from configuration
func buildService(ctx context.Context, cfg *config.Config, logger *log.Logger) (*pdf.Service, error) {
	store, err := newCache(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up document cache: %w", err)
	}

	return pdf.NewService(pdf.Options{
		Directory:   cfg.TemplateDirectory,
		MaxFileSize: cfg.MaxFileSize,
		Raster: raster.Options{
			Oversample:     cfg.Oversample,
			Padding:        raster.DefaultPadding,
			MaxUploadBytes: cfg.MaxUploadSize,
			MaxDimension:   cfg.MaxDimension,
		},
		FetchTimeout: cfg.FetchTimeout,
		Inspector:    wrapper.LibraryType(cfg.Inspector),
		Cache:        store,
		Channels:     deliveryChannels(cfg),
		Logger:       logger,
	})
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	logger := setupLogging(cfg)
	logger.Debug("starting", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	service, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create signing service", "err", err)
	}

	server, err := mcp.NewServer(cfg, service, logger)
	if err != nil {
		logger.Fatal("failed to create MCP server", "err", err)
	}

	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	if ctx.Err() != nil {
		logger.Info("received shutdown signal, stopped")
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("MCP PDF Signer\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
