package configfile

import (
	"os"
	"path/filepath"
	"testing"

	"conductor/mapping"
)

const sampleToml = `
[device]
name = "Launchkey"
auto_connect = true
input_mode = "both"

[advanced_settings]
chord_timeout_ms = 60
hold_threshold_ms = 1500

[[modes]]
name = "default"
color = "#00ff00"

[[modes.mappings]]
description = "Tap C3"
trigger = { kind = "tap", id = 60, tier = "medium" }
action = { kind = "keystroke", keys = ["c"], modifiers = ["cmd"] }

[[global_mappings]]
trigger = { kind = "chord", ids = [36, 37, 38] }
action = { kind = "shell", program = "notify-send", args = ["hello"] }
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesDeviceAndAdvancedSettings(t *testing.T) {
	path := writeTemp(t, sampleToml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Device.Name != "Launchkey" || !cfg.Device.AutoConnect {
		t.Fatalf("unexpected device config: %+v", cfg.Device)
	}
	if cfg.AdvancedSettings.ChordTimeoutMs != 60 || cfg.AdvancedSettings.HoldThresholdMs != 1500 {
		t.Fatalf("unexpected advanced settings: %+v", cfg.AdvancedSettings)
	}
}

func TestLoadProducesCompilableConfig(t *testing.T) {
	path := writeTemp(t, sampleToml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, errs := mapping.Compile(cfg)
	if errs != nil {
		t.Fatalf("expected a compilable config, got errors: %v", errs)
	}
	if snap.ModeCount() != 1 || snap.ModeName(0) != "default" {
		t.Fatalf("unexpected compiled modes: count=%d name=%s", snap.ModeCount(), snap.ModeName(0))
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
