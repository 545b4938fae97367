package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	storage := t.TempDir()
	t.Setenv("FACERECOG_STORAGE_DIR", storage)
	t.Setenv("FACERECOG_PORT", "")
	t.Setenv("FACERECOG_HOST", "")
	t.Setenv("FACERECOG_PROFILE_DIR", "")
	t.Setenv("FACERECOG_LIVE_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if cfg.Addr() != "0.0.0.0:5001" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
	if cfg.ProfileDir != filepath.Join(storage, "profilePicture") {
		t.Fatalf("unexpected profile dir %s", cfg.ProfileDir)
	}
	if cfg.LiveDir != filepath.Join(storage, "liveCam") {
		t.Fatalf("unexpected live dir %s", cfg.LiveDir)
	}
	if cfg.MaxUploadBytes != defaultMaxUploadBytes {
		t.Fatalf("unexpected max upload %d", cfg.MaxUploadBytes)
	}
	if cfg.SniffContent {
		t.Fatal("expected sniffing disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FACERECOG_STORAGE_DIR", t.TempDir())
	t.Setenv("FACERECOG_PORT", "8088")
	t.Setenv("FACERECOG_PROFILE_DIR", "relative/profiles")
	t.Setenv("FACERECOG_SNIFF_CONTENT", "true")
	t.Setenv("FACERECOG_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if cfg.Port != 8088 {
		t.Fatalf("expected port 8088, got %d", cfg.Port)
	}
	if !filepath.IsAbs(cfg.ProfileDir) {
		t.Fatalf("expected absolute profile dir, got %s", cfg.ProfileDir)
	}
	if !cfg.SniffContent {
		t.Fatal("expected sniffing enabled")
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("unexpected shutdown timeout %s", cfg.ShutdownTimeout)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("FACERECOG_STORAGE_DIR", t.TempDir())
	t.Setenv("FACERECOG_PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestFinalizeRejectsSharedDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{StorageDir: dir, ProfileDir: dir, LiveDir: dir, Port: 5001}

	if err := cfg.Finalize(); err == nil {
		t.Fatal("expected error when directories collide")
	}
}
