package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/content-orchestrator/internal/config"
)

func TestWriteEffectiveConfig(t *testing.T) {
	for _, env := range config.DefaultCredentialEnv {
		t.Setenv(env, "")
	}
	t.Setenv("ORCHESTRATOR_PORT", "7070")
	t.Setenv("ORCHESTRATOR_JWT_SECRET", "do-not-write")

	out := filepath.Join(t.TempDir(), "effective.yaml")
	if err := writeEffectiveConfig("", out); err != nil {
		t.Fatalf("writeEffectiveConfig failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Contains(string(data), "do-not-write") {
		t.Error("Secret written to effective configuration")
	}

	t.Setenv("ORCHESTRATOR_PORT", "")
	reloaded, err := config.LoadConfig(out)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if reloaded.Server.Port != "7070" {
		t.Errorf("Expected environment port in effective config, got %s", reloaded.Server.Port)
	}
}

func TestWriteEffectiveConfig_MissingFile(t *testing.T) {
	err := writeEffectiveConfig(filepath.Join(t.TempDir(), "absent.yaml"), filepath.Join(t.TempDir(), "out.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestSetupLogger(t *testing.T) {
	logger := logrus.New()

	path := filepath.Join(t.TempDir(), "orchestrator.log")
	if err := setupLogger(logger, config.LoggingConfig{Level: "debug", Format: "json", Output: path, MaxSizeMB: 1}); err != nil {
		t.Fatalf("setupLogger failed: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", logger.GetLevel())
	}
	logger.Info("rotated output")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected log file to be created: %v", err)
	}

	if err := setupLogger(logger, config.LoggingConfig{Level: "loud", Format: "json"}); err == nil {
		t.Error("Expected error for invalid level")
	}
	if err := setupLogger(logger, config.LoggingConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("Expected error for invalid format")
	}
}
