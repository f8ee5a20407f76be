package keystone

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultEngineConfigIsUsable(t *testing.T) {
	cfg := DefaultEngineConfig()

	if cfg.EntryScript != "scripts://main.lua" {
		t.Fatalf("unexpected default entry script: %s", cfg.EntryScript)
	}
	if !cfg.HotReload {
		t.Fatal("expected default config to enable hot reload")
	}
	if cfg.FrameArenaSize == 0 {
		t.Fatal("expected a nonzero default frame arena size")
	}
}

func TestLoadEngineConfigOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.json")
	if err := os.WriteFile(path, []byte(`{"asset_root": "custom_assets"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadEngineConfig(path)
	if err != nil {
		t.Fatalf("LoadEngineConfig failed: %v", err)
	}

	if cfg.AssetRoot != "custom_assets" {
		t.Fatalf("expected overridden asset root, got %s", cfg.AssetRoot)
	}
	if cfg.ScriptRoot != "scripts" {
		t.Fatalf("expected default script root to survive partial overlay, got %s", cfg.ScriptRoot)
	}
}

func TestLoadEngineConfigMissingFileFails(t *testing.T) {
	if _, err := LoadEngineConfig("/no/such/file.json"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestCheckScriptAPIVersionEnforcesFloor(t *testing.T) {
	cfg := EngineConfig{MinScriptAPIVersion: "1.2.0"}

	if err := cfg.CheckScriptAPIVersion("1.1.0"); err == nil {
		t.Fatal("expected a version below the floor to fail")
	}
	if err := cfg.CheckScriptAPIVersion("1.2.0"); err != nil {
		t.Fatalf("expected the floor version itself to pass: %v", err)
	}
	if err := cfg.CheckScriptAPIVersion("2.0.0"); err != nil {
		t.Fatalf("expected a newer version to pass: %v", err)
	}
}

func TestCheckScriptAPIVersionRejectsMalformed(t *testing.T) {
	cfg := DefaultEngineConfig()
	if err := cfg.CheckScriptAPIVersion("not-a-version"); err == nil {
		t.Fatal("expected a malformed declared version to fail")
	}
}

func TestCheckScriptAPIVersionWithNoFloorAcceptsAnything(t *testing.T) {
	cfg := EngineConfig{}
	if err := cfg.CheckScriptAPIVersion("0.0.1"); err != nil {
		t.Fatalf("expected an unset floor to accept any valid version: %v", err)
	}
}
