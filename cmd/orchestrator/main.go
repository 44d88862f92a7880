package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tributary-ai/content-orchestrator/internal/app"
	"github.com/tributary-ai/content-orchestrator/internal/config"
)

var version = "dev"

// Application represents the main application
type Application struct {
	config *config.Config
	app    *app.App
	logger *logrus.Logger
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	wired, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Application{
		config: cfg,
		app:    wired,
		logger: logger,
	}, nil
}

// Run starts the application
func (a *Application) Run() error {
	a.logger.WithFields(logrus.Fields{
		"version":   version,
		"profile":   a.config.RoutingProfile(),
		"providers": a.config.GetEnabledProviders(),
	}).Info("Starting content orchestrator")

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		a.logger.WithField("address", ":"+a.config.Server.Port).Info("HTTP server starting")
		if err := a.app.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		a.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	a.logger.Info("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.app.Server.Stop(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := a.app.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close redis client")
	}

	a.logger.WithField("session_cost_usd", a.app.Accountant.SessionCost()).Info("Graceful shutdown completed")
	return nil
}

// setupLogger configures the logger based on configuration
func setupLogger(logger *logrus.Logger, config config.LoggingConfig) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	logger.SetLevel(level)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	switch config.Output {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		// Anything else is a file path, rotated by size
		logger.SetOutput(&lumberjack.Logger{
			Filename:   config.Output,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		})
	}

	return nil
}

// writeEffectiveConfig resolves defaults, file and environment and saves the result
func writeEffectiveConfig(configPath, outPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg.SaveToFile(outPath)
}

// printUsage prints application usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, GROQ_API_KEY,\n")
	fmt.Fprintf(os.Stderr, "  MISTRAL_API_KEY, DEEPSEEK_API_KEY, RUNWARE_API_KEY,\n")
	fmt.Fprintf(os.Stderr, "  HUGGINGFACE_API_KEY, QWEN_API_KEY   Provider credentials\n")
	fmt.Fprintf(os.Stderr, "  ORCHESTRATOR_PORT             Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  ORCHESTRATOR_LOG_LEVEL        Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  ORCHESTRATOR_LOG_FORMAT       Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "  ORCHESTRATOR_ROUTING_PROFILE  Routing profile (default,cost_balanced)\n")
	fmt.Fprintf(os.Stderr, "  ORCHESTRATOR_REDIS_URL        Mirror usage records to Redis\n")
	fmt.Fprintf(os.Stderr, "  ORCHESTRATOR_API_KEYS         Comma-separated API keys; enables auth\n")
	fmt.Fprintf(os.Stderr, "  ORCHESTRATOR_JWT_SECRET       Secret for issued bearer tokens\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml --write-config effective.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY=sk-ant-xxx GOOGLE_API_KEY=xxx %s\n", os.Args[0])
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		envFile     = flag.String("env-file", ".env", "Optional dotenv file with provider credentials")
		writeConfig = flag.String("write-config", "", "Write the effective configuration (secrets removed) to this path and exit")
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *showVersion {
		fmt.Printf("content-orchestrator %s\n", version)
		os.Exit(0)
	}

	// Existing environment variables win over the file
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", *envFile, err)
	}

	if *writeConfig != "" {
		if err := writeEffectiveConfig(*configPath, *writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", *writeConfig)
		os.Exit(0)
	}

	application, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
