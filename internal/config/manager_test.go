package config

import (
	"os"
	"testing"
)

func TestLoadMissingFileReturnsEmptyConfig(t *testing.T) {
	m := NewManagerAt(t.TempDir())

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != (Config{}) {
		t.Errorf("expected empty config, got %+v", cfg)
	}
	if m.Exists() {
		t.Error("Exists should be false before Save")
	}
}

func TestSaveThenLoadRoundtrips(t *testing.T) {
	m := NewManagerAt(t.TempDir())

	want := Config{
		Provider:    "ollama",
		Model:       "llama3.1",
		SandboxMode: "host",
	}
	if err := m.Save(&want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !m.Exists() {
		t.Error("Exists should be true after Save")
	}

	got, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestApplyToEnvDoesNotClobber(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "from-env")

	cfg := Config{Provider: "anthropic", APIKey: "from-file", Model: "claude-3-5-sonnet-20241022"}
	cfg.ApplyToEnv()

	if got := tGetenv(t, "ANTHROPIC_API_KEY"); got != "from-env" {
		t.Errorf("ANTHROPIC_API_KEY = %q, env should win", got)
	}
	if got := tGetenv(t, "ANTHROPIC_MODEL"); got != "claude-3-5-sonnet-20241022" {
		t.Errorf("ANTHROPIC_MODEL = %q, want config value", got)
	}
}

func TestApplyToEnvOpenAICompatiblePrefix(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("OLLAMA_MODEL", "")
	t.Setenv("OLLAMA_BASE_URL", "")

	cfg := Config{Provider: "ollama", Model: "qwen2.5-coder", BaseURL: "http://box:11434/v1"}
	cfg.ApplyToEnv()

	if got := tGetenv(t, "LLM_PROVIDER"); got != "ollama" {
		t.Errorf("LLM_PROVIDER = %q", got)
	}
	if got := tGetenv(t, "OLLAMA_MODEL"); got != "qwen2.5-coder" {
		t.Errorf("OLLAMA_MODEL = %q", got)
	}
	if got := tGetenv(t, "OLLAMA_BASE_URL"); got != "http://box:11434/v1" {
		t.Errorf("OLLAMA_BASE_URL = %q", got)
	}
}

func tGetenv(t *testing.T, key string) string {
	t.Helper()
	return os.Getenv(key)
}
