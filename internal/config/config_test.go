package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Cascade.ClassifierThreshold != 0.6 {
		t.Errorf("expected classifier threshold 0.6, got %v", cfg.Cascade.ClassifierThreshold)
	}
	if cfg.Suspension.TTL != 10*time.Minute {
		t.Errorf("expected suspension TTL 10m, got %v", cfg.Suspension.TTL)
	}
	if cfg.Tools.InvokeTimeout != 30*time.Second {
		t.Errorf("expected invoke timeout 30s, got %v", cfg.Tools.InvokeTimeout)
	}
	if cfg.Emotion.HistoryLimit != 8 {
		t.Errorf("expected emotion history limit 8, got %d", cfg.Emotion.HistoryLimit)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"model":{"name":"test-model","maxIterations":3},"cascade":{"classifierThreshold":0.8}}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WENKO_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.Name != "test-model" {
		t.Errorf("expected model from file, got %q", cfg.Model.Name)
	}
	if cfg.Model.MaxIterations != 3 {
		t.Errorf("expected max iterations 3, got %d", cfg.Model.MaxIterations)
	}
	if cfg.Cascade.ClassifierThreshold != 0.8 {
		t.Errorf("expected threshold 0.8, got %v", cfg.Cascade.ClassifierThreshold)
	}
	// Untouched group keeps defaults.
	if cfg.Suspension.TTL != 10*time.Minute {
		t.Errorf("expected default TTL, got %v", cfg.Suspension.TTL)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"model":{"name":"from-file"}}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WENKO_CONFIG", path)
	t.Setenv("WENKO_MODEL_MODEL", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.Name != "from-env" {
		t.Errorf("expected env to override file, got %q", cfg.Model.Name)
	}
}

func TestLoadClampsInvalidThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"cascade":{"classifierThreshold":4.2}}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WENKO_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cascade.ClassifierThreshold != 0.6 {
		t.Errorf("expected threshold reset to 0.6, got %v", cfg.Cascade.ClassifierThreshold)
	}
}
