package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	PollMs int `env:"DAPBRIDGE_TEST_POLL_MS" envDefault:"300"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.PollMs != 300 {
		t.Fatalf("expected default poll interval 300, got %d", cfg.PollMs)
	}
}

func TestParseEnvFrom(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnvFrom(&cfg, map[string]string{"DAPBRIDGE_TEST_POLL_MS": "50"}); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.PollMs != 50 {
		t.Fatalf("expected poll interval 50, got %d", cfg.PollMs)
	}
}

func TestParseEnvFromMissingKeyUsesDefault(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("DAPBRIDGE_TEST_POLL_MS", "999")

	if err := ParseEnvFrom(&cfg, map[string]string{}); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.PollMs != 300 {
		t.Fatalf("expected default poll interval 300, got %d", cfg.PollMs)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("DAPBRIDGE_TEST_POLL_MS", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
