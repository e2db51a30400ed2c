package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var providerKeys = []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "KIMI_API_KEY", "LLM_API_KEY", "LLM_PROVIDER", "LLM_MODEL"}

func clearProviders(t *testing.T) {
	t.Helper()
	for _, k := range providerKeys {
		t.Setenv(k, "")
	}
}

func TestDetectProviderKimi(t *testing.T) {
	clearProviders(t)
	t.Setenv("KIMI_API_KEY", "test-key")

	if provider := DetectProvider(); provider != "kimi" {
		t.Errorf("expected kimi, got %s", provider)
	}
}

func TestDetectProviderPrefersClaude(t *testing.T) {
	clearProviders(t)
	t.Setenv("KIMI_API_KEY", "test-key")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	if provider := DetectProvider(); provider != "claude" {
		t.Errorf("expected claude, got %s", provider)
	}
}

func TestDetectProviderFallsBackToOllama(t *testing.T) {
	clearProviders(t)

	if provider := DetectProvider(); provider != "ollama" {
		t.Errorf("expected ollama, got %s", provider)
	}
}

func TestInferProviderFromModel(t *testing.T) {
	tests := map[string]string{
		"claude-sonnet-4":  "claude",
		"gpt-4o-mini":      "openai",
		"gemini-2.0-flash": "gemini",
		"kimi-k2":          "kimi",
		"qwen2:0.5b":       "",
	}
	for model, want := range tests {
		if got := InferProviderFromModel(model); got != want {
			t.Errorf("InferProviderFromModel(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestLoadLLMConfigRequiresKey(t *testing.T) {
	clearProviders(t)
	t.Setenv("LLM_PROVIDER", "openai")

	if _, err := loadLLMConfig(); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestLoadLLMConfigModelMismatch(t *testing.T) {
	clearProviders(t)
	t.Setenv("KIMI_API_KEY", "k")
	t.Setenv("LLM_MODEL", "claude-sonnet-4")

	if _, err := loadLLMConfig(); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("REDIS_URL", "")
	cfg, err := loadCacheConfig()
	if err != nil || cfg.Backend != "sqlite" {
		t.Fatalf("expected sqlite default, got %+v %v", cfg, err)
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err = loadCacheConfig()
	if err != nil || cfg.Backend != "redis" {
		t.Fatalf("expected redis when REDIS_URL set, got %+v %v", cfg, err)
	}

	t.Setenv("CACHE_BACKEND", "memcached")
	if _, err := loadCacheConfig(); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func TestLoadBotConfigAllowedChats(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "tok")
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("TELEGRAM_ALLOWED_CHATS", "12, -34")

	cfg, err := loadBotConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Telegram.Enabled || cfg.Discord.Enabled {
		t.Errorf("unexpected bot enablement: %+v", cfg)
	}
	if len(cfg.AllowedChats) != 2 || cfg.AllowedChats[0] != 12 || cfg.AllowedChats[1] != -34 {
		t.Errorf("unexpected allowed chats: %v", cfg.AllowedChats)
	}

	t.Setenv("TELEGRAM_ALLOWED_CHATS", "abc")
	if _, err := loadBotConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadLiveConfig(t *testing.T) {
	t.Setenv("MCP_COMMAND", "status-server")
	t.Setenv("MCP_URL", "")
	t.Setenv("MCP_TOOL", "status")
	t.Setenv("MCP_ARGS", "--quiet --json")
	t.Setenv("MCP_ARGUMENT", "")
	t.Setenv("MCP_TIMEOUT", "2s")

	cfg, err := loadLiveConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Enabled || cfg.Timeout != 2*time.Second || cfg.Argument != "query" || len(cfg.Args) != 2 {
		t.Errorf("unexpected live config: %+v", cfg)
	}

	t.Setenv("MCP_URL", "http://localhost:8080/mcp")
	if _, err := loadLiveConfig(); err == nil {
		t.Fatal("expected error when both command and url are set")
	}
}

func TestTuningDefaultsValidate(t *testing.T) {
	if err := DefaultTuning().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestTuningValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Tuning)
	}{
		{"threshold above one", func(tu *Tuning) { tu.SimilarityThreshold = 1.5 }},
		{"broad above primary", func(tu *Tuning) { tu.BroadThreshold = 0.7 }},
		{"zero top k", func(tu *Tuning) { tu.TopK = 0 }},
		{"negative rewrites", func(tu *Tuning) { tu.MaxRewrites = -1 }},
		{"overlap not below size", func(tu *Tuning) { tu.ChunkOverlap = tu.ChunkSize }},
		{"negative rate limit", func(tu *Tuning) { tu.RateLimitMessages = -1 }},
		{"rate limit without window", func(tu *Tuning) { tu.RateLimitWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tu := DefaultTuning()
			tt.mutate(&tu)
			if err := tu.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadTuningPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsage.yaml")
	yaml := `tuning:
  top_k: 8
  similarity_threshold: 0.7
  keywords: [billing, invoice]
schedules:
  backup: ""
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DOCSAGE_TOP_K", "9")
	t.Setenv("DOCSAGE_SCHEDULE_STATS_LOG", "@daily")

	tuning, schedules, err := loadTuning(path)
	if err != nil {
		t.Fatal(err)
	}

	if tuning.TopK != 9 {
		t.Errorf("env should override file: top_k = %d", tuning.TopK)
	}
	if tuning.SimilarityThreshold != 0.7 {
		t.Errorf("file should override default: threshold = %v", tuning.SimilarityThreshold)
	}
	if tuning.BroadTopK != 10 {
		t.Errorf("default should survive: broad_top_k = %d", tuning.BroadTopK)
	}
	if len(tuning.Keywords) != 2 || tuning.Keywords[0] != "billing" {
		t.Errorf("unexpected keywords: %v", tuning.Keywords)
	}
	if schedules.Backup != "" {
		t.Errorf("file should disable backup, got %q", schedules.Backup)
	}
	if schedules.StatsLog != "@daily" {
		t.Errorf("env schedule not applied: %q", schedules.StatsLog)
	}
	if schedules.CachePurge != "@hourly" {
		t.Errorf("default schedule lost: %q", schedules.CachePurge)
	}
}

func TestLoadTuningRateLimit(t *testing.T) {
	t.Setenv("DOCSAGE_RATE_LIMIT_MESSAGES", "20")
	t.Setenv("DOCSAGE_RATE_LIMIT_WINDOW", "30s")

	tu, _, err := loadTuning("")
	if err != nil {
		t.Fatalf("loadTuning: %v", err)
	}
	if tu.RateLimitMessages != 20 || tu.RateLimitWindow != 30*time.Second {
		t.Errorf("got %d per %v, want 20 per 30s", tu.RateLimitMessages, tu.RateLimitWindow)
	}

	def := DefaultTuning()
	if def.RateLimitMessages != 50 || def.RateLimitWindow != time.Minute {
		t.Errorf("defaults %d per %v, want 50 per 1m", def.RateLimitMessages, def.RateLimitWindow)
	}
}

func TestLoadTuningEnvKeywords(t *testing.T) {
	t.Setenv("DOCSAGE_KEYWORDS", "sso,saml")

	tuning, _, err := loadTuning("")
	if err != nil {
		t.Fatal(err)
	}
	if len(tuning.Keywords) != 2 || tuning.Keywords[1] != "saml" {
		t.Errorf("unexpected keywords: %v", tuning.Keywords)
	}
}

func TestLoadTuningMissingFile(t *testing.T) {
	if _, _, err := loadTuning(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
