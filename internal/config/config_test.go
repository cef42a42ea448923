package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Bind != "127.0.0.1" {
		t.Fatalf("expected loopback bind, got %q", cfg.HTTP.Bind)
	}
	if cfg.HTTP.Port != 7849 {
		t.Fatalf("expected default port 7849, got %d", cfg.HTTP.Port)
	}
	if cfg.Audio.TailDrainMS != 150 {
		t.Fatalf("expected default tail drain 150ms, got %d", cfg.Audio.TailDrainMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SPEAKUP_HTTP_PORT", "7901")
	t.Setenv("SPEAKUP_LEDGER_PATH", "./tmp.db")
	t.Setenv("SPEAKUP_LEDGER_RETENTION_DAYS", "14")
	t.Setenv("SPEAKUP_LEDGER_VACUUM_ON_START", "true")
	t.Setenv("SPEAKUP_ENGINE_MODE", "exec")
	t.Setenv("SPEAKUP_ENGINE_COMMAND", "sherpa-onnx-offline-tts --vits-model model.onnx")
	t.Setenv("SPEAKUP_AUDIO_MONITOR_INTERVAL_MS", "5000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Port != 7901 {
		t.Fatalf("expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.Ledger.Path != "./tmp.db" {
		t.Fatalf("expected ledger path override")
	}
	if cfg.Ledger.RetentionDays != 14 {
		t.Fatalf("expected retention days override, got %d", cfg.Ledger.RetentionDays)
	}
	if !cfg.Ledger.VacuumOnStart {
		t.Fatal("expected vacuum flag override true")
	}
	if cfg.Engine.Mode != "exec" {
		t.Fatalf("expected engine mode override")
	}
	if cfg.Audio.MonitorIntervalMS != 5000 {
		t.Fatalf("expected monitor interval override, got %d", cfg.Audio.MonitorIntervalMS)
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("SPEAKUP_ENGINE_MODE", "exec")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec mode without command")
	}
}
