package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigWithRootValidates(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfigWithRoot(root)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.HistoryFile != filepath.Join(root, "ANALYSIS_HISTORY.md") {
		t.Fatalf("unexpected history file %s", cfg.HistoryFile)
	}
	if cfg.ExpertTimeout().Seconds() != float64(cfg.ExpertTimeoutSecs) {
		t.Fatalf("expert timeout mismatch")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfigWithRoot(t.TempDir())
	cfg.ExpertPrimaryModel = " "
	cfg.ChairTimeoutSecs = 0
	cfg.QuoteProvider = "bloomberg"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"expert_primary_model", "chair_timeout_secs", "bloomberg"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("EXPERT_PRIMARY_MODEL", "deepseek-chat")
	t.Setenv("EXPERT_TIMEOUT_SECS", "30")
	t.Setenv("EXPERT_FALLBACK_MODEL", "")
	t.Setenv("QUOTE_PROVIDER", "LONGPORT")
	t.Setenv("REQUIRE_APPROVAL", "false")
	t.Setenv("MAX_TOKENS", "not-a-number")

	cfg := DefaultConfigWithRoot(t.TempDir())
	cfg.loadFromEnv()

	if cfg.ExpertPrimaryModel != "deepseek-chat" {
		t.Fatalf("expected env model override, got %s", cfg.ExpertPrimaryModel)
	}
	if cfg.ExpertFallbackModel != "gpt-5" {
		t.Fatalf("empty env var must not override, got %s", cfg.ExpertFallbackModel)
	}
	if cfg.ExpertTimeoutSecs != 30 {
		t.Fatalf("expected timeout 30, got %d", cfg.ExpertTimeoutSecs)
	}
	if cfg.QuoteProvider != QuoteProviderLongport {
		t.Fatalf("expected lowercased provider, got %s", cfg.QuoteProvider)
	}
	if cfg.RequireApproval {
		t.Fatalf("expected approval disabled")
	}
	if cfg.MaxTokens != 4000 {
		t.Fatalf("unparseable value must keep default, got %d", cfg.MaxTokens)
	}
}

func TestEnsureDirectories(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested")
	cfg := DefaultConfigWithRoot(root)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.ResultsDir, cfg.DataDir, cfg.DataCacheDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected %s to exist: %v", dir, err)
		}
	}
}
