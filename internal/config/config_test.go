package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("port: want=8080 got=%s", cfg.ServerPort)
	}
	if cfg.RetentionDays != 15 || !cfg.PruneOnStats {
		t.Fatalf("retention: days=%d prune=%v", cfg.RetentionDays, cfg.PruneOnStats)
	}
	if cfg.AudioStreamTTL != 5*time.Minute {
		t.Fatalf("audio ttl: got=%v", cfg.AudioStreamTTL)
	}
	if cfg.LLMProvider != ProviderAnthropic {
		t.Fatalf("provider: got=%s", cfg.LLMProvider)
	}
	if cfg.NATSURL != "" {
		t.Fatalf("events should be off by default, got %s", cfg.NATSURL)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "RETENTION_DAYS=30\nLLM_PROVIDER=openai\nOPENAI_API_KEY=sk-file\nPORT=9000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PORT", "9100")
	// godotenv sets variables into the process; restore them afterwards.
	for _, k := range []string{"RETENTION_DAYS", "LLM_PROVIDER", "OPENAI_API_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerPort != "9100" {
		t.Fatalf("environment should win: got port=%s", cfg.ServerPort)
	}
	if cfg.RetentionDays != 30 || cfg.LLMProvider != ProviderOpenAI {
		t.Fatalf("file values: days=%d provider=%s", cfg.RetentionDays, cfg.LLMProvider)
	}
	if cfg.LLMAPIKey() != "sk-file" {
		t.Fatalf("api key: got=%s", cfg.LLMAPIKey())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string][2]string{
		"provider":    {"LLM_PROVIDER", "gemini"},
		"driver":      {"DATABASE_DRIVER", "mysql"},
		"retention":   {"RETENTION_DAYS", "-1"},
		"temperature": {"LLM_TEMPERATURE", "3"},
		"not a int":   {"RATE_LIMIT_REQUESTS", "lots"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
				t.Fatalf("want error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
