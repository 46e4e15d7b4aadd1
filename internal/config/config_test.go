package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"CAL_API_KEY", "CAL_API_BASE_URL", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL",
	"GEMINI_API_KEY", "CALASSIST_CLASSIFIER", "CALASSIST_MODEL", "CALASSIST_GEMINI_MODEL",
	"CALASSIST_TIMEZONE", "CALASSIST_REQUEST_TIMEOUT", "CALASSIST_REQUESTS_PER_MINUTE",
	"CALASSIST_SERVE_ADDR", "CALASSIST_SERVE_TOKENS", "ENV", "LOG_LEVEL", "LOG_FILE",
}

// isolate clears every config key from the environment and returns
// options pointing at an empty temp dir.
func isolate(t *testing.T) (LoadOptions, string) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	dir := t.TempDir()
	return LoadOptions{
		EnvFile:     filepath.Join(dir, ".env"),
		ConfigPaths: []string{dir},
	}, dir
}

func TestLoad_Defaults(t *testing.T) {
	opts, _ := isolate(t)

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CalBaseURL != DefaultCalBaseURL {
		t.Errorf("CalBaseURL = %q, want %q", cfg.CalBaseURL, DefaultCalBaseURL)
	}
	if cfg.Timezone != DefaultTimezone {
		t.Errorf("Timezone = %q, want %q", cfg.Timezone, DefaultTimezone)
	}
	if cfg.Location().String() != DefaultTimezone {
		t.Errorf("Location() = %q", cfg.Location())
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.Classifier != ClassifierAuto {
		t.Errorf("Classifier = %q, want auto", cfg.Classifier)
	}
	if cfg.ResolvedClassifier() != ClassifierRules {
		t.Errorf("ResolvedClassifier() = %q, want rules when no keys are set", cfg.ResolvedClassifier())
	}
	if cfg.CalAPIKey() != "" {
		t.Errorf("CalAPIKey() = %q, want empty", cfg.CalAPIKey())
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	opts, _ := isolate(t)
	t.Setenv("CAL_API_KEY", "cal_live_123")
	t.Setenv("CAL_API_BASE_URL", "http://localhost:9999/v1")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("CALASSIST_TIMEZONE", "Europe/Berlin")
	t.Setenv("CALASSIST_REQUEST_TIMEOUT", "5s")
	t.Setenv("CALASSIST_SERVE_TOKENS", "a, b ,,c")

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CalAPIKey() != "cal_live_123" {
		t.Errorf("CalAPIKey() = %q", cfg.CalAPIKey())
	}
	if cfg.CalBaseURL != "http://localhost:9999/v1/" {
		t.Errorf("CalBaseURL = %q, want trailing slash added", cfg.CalBaseURL)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Errorf("Location() = %q", cfg.Location())
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.ResolvedClassifier() != ClassifierAnthropic {
		t.Errorf("ResolvedClassifier() = %q, want anthropic", cfg.ResolvedClassifier())
	}
	key, err := cfg.LLMAPIKey()
	if err != nil || key != "sk-ant-test" {
		t.Errorf("LLMAPIKey() = %q, %v", key, err)
	}
	tokens := cfg.Tokens()
	if strings.Join(tokens, "|") != "a|b|c" {
		t.Errorf("Tokens() = %v", tokens)
	}
}

func TestLoad_ConfigFileAndDotEnv(t *testing.T) {
	opts, dir := isolate(t)

	yamlBody := "CALASSIST_CLASSIFIER: gemini\nCALASSIST_TIMEZONE: America/New_York\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlBody), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(opts.EnvFile, []byte("CAL_API_KEY=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CalAPIKey() != "from-dotenv" {
		t.Errorf("CalAPIKey() = %q, want value from .env", cfg.CalAPIKey())
	}
	if cfg.ResolvedClassifier() != ClassifierGemini {
		t.Errorf("ResolvedClassifier() = %q, want gemini", cfg.ResolvedClassifier())
	}
	if cfg.Timezone != "America/New_York" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}

	// Gemini selected without a key: a use-time failure, not a load failure.
	if _, err := cfg.LLMAPIKey(); !errors.Is(err, ErrMissingLLMKey) {
		t.Errorf("LLMAPIKey() error = %v, want ErrMissingLLMKey", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown classifier", "CALASSIST_CLASSIFIER", "magic"},
		{"unknown timezone", "CALASSIST_TIMEZONE", "Mars/Olympus_Mons"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, _ := isolate(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(opts); err == nil {
				t.Fatalf("Load() with %s=%s: expected error", tt.key, tt.val)
			}
		})
	}
}

func TestCredentials(t *testing.T) {
	cfg := &Config{CalAPIKeyValue: "x", Classifier: ClassifierAnthropic}
	got := cfg.Credentials()
	if len(got) != 3 {
		t.Fatalf("Credentials() returned %d entries, want 3", len(got))
	}
	if !got[0].Present || !got[0].Required {
		t.Errorf("CAL_API_KEY status = %+v", got[0])
	}
	if got[1].Present || !got[1].Required {
		t.Errorf("ANTHROPIC_API_KEY status = %+v, want required and missing", got[1])
	}
	if got[2].Required {
		t.Errorf("GEMINI_API_KEY should not be required for the anthropic backend")
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{
		CalAPIKeyValue:  "cal_live_abcdefghijkl",
		AnthropicAPIKey: "short",
		Timezone:        DefaultTimezone,
		ServeTokens:     "one,two",
	}
	out, err := cfg.Redacted()
	if err != nil {
		t.Fatalf("Redacted() error: %v", err)
	}
	if strings.Contains(out, "abcdefghijkl") || strings.Contains(out, "short") {
		t.Errorf("Redacted() leaked a secret:\n%s", out)
	}
	if !strings.Contains(out, "cal_") || !strings.Contains(out, "(2 tokens)") {
		t.Errorf("Redacted() output unexpected:\n%s", out)
	}
	if cfg.CalAPIKeyValue != "cal_live_abcdefghijkl" {
		t.Errorf("Redacted() mutated the receiver")
	}
}
