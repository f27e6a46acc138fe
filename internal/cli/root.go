package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/ocrguard/internal/control"
	"github.com/vietddude/ocrguard/internal/core/config"
	"github.com/vietddude/ocrguard/internal/infra/engine"
)

var (
	cfgPath string
	isDebug bool

	// engineFactory builds recognition engines for serve and extract.
	engineFactory engine.Factory
)

var rootCmd = &cobra.Command{
	Use:   "ocrguard",
	Short: "Resilient text extraction service",
	Long:  `ocrguard serves Tesseract text extraction behind an engine pool, retries with backoff and a circuit breaker.`,
	Run:   runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction HTTP server",
	Run:   runServe,
}

// Execute runs the CLI with factory as the recognition engine.
func Execute(factory engine.Factory) {
	engineFactory = factory
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads .env and the config file and installs the logger.
func loadConfig() (*config.AppConfig, control.Config) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Logging)

	controlCfg, err := control.ConfigFrom(cfg)
	if err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}
	return cfg, controlCfg
}

func setupLogging(cfg config.LoggingConfig) {
	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Level == "error":
		slogLevel = slog.LevelError
	}

	if cfg.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
		return
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}

func runServe(cmd *cobra.Command, args []string) {
	_, controlCfg := loadConfig()

	app, err := control.NewService(controlCfg, engineFactory)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start service", "error", err)
		os.Exit(1)
	}

	slog.Info("ocrguard started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("ocrguard stopped gracefully")
}
