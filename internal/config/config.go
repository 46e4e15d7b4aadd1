package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Classifier backends.
const (
	ClassifierAuto      = "auto"
	ClassifierAnthropic = "anthropic"
	ClassifierGemini    = "gemini"
	ClassifierRules     = "rules"
)

const (
	DefaultCalBaseURL = "https://api.cal.com/v1/"
	DefaultTimezone   = "America/Los_Angeles"
)

// ErrMissingCalKey is returned by accessors when CAL_API_KEY is not set.
var ErrMissingCalKey = errors.New("CAL_API_KEY is not set")

// ErrMissingLLMKey is returned when the selected language backend has no key.
var ErrMissingLLMKey = errors.New("language backend API key is not set")

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	CalAPIKeyValue    string        `mapstructure:"CAL_API_KEY" yaml:"cal_api_key"`
	CalBaseURL        string        `mapstructure:"CAL_API_BASE_URL" yaml:"cal_api_base_url"`
	AnthropicAPIKey   string        `mapstructure:"ANTHROPIC_API_KEY" yaml:"anthropic_api_key"`
	AnthropicBaseURL  string        `mapstructure:"ANTHROPIC_BASE_URL" yaml:"anthropic_base_url,omitempty"`
	GeminiAPIKey      string        `mapstructure:"GEMINI_API_KEY" yaml:"gemini_api_key"`
	Classifier        string        `mapstructure:"CALASSIST_CLASSIFIER" yaml:"classifier"`
	Model             string        `mapstructure:"CALASSIST_MODEL" yaml:"model,omitempty"`
	GeminiModel       string        `mapstructure:"CALASSIST_GEMINI_MODEL" yaml:"gemini_model"`
	Timezone          string        `mapstructure:"CALASSIST_TIMEZONE" yaml:"timezone"`
	RequestTimeout    time.Duration `mapstructure:"CALASSIST_REQUEST_TIMEOUT" yaml:"request_timeout"`
	RequestsPerMinute int           `mapstructure:"CALASSIST_REQUESTS_PER_MINUTE" yaml:"requests_per_minute"`
	ServeAddr         string        `mapstructure:"CALASSIST_SERVE_ADDR" yaml:"serve_addr"`
	ServeTokens       string        `mapstructure:"CALASSIST_SERVE_TOKENS" yaml:"serve_tokens,omitempty"`
	Env               string        `mapstructure:"ENV" yaml:"env"`
	LogLevel          string        `mapstructure:"LOG_LEVEL" yaml:"log_level"`
	LogFile           string        `mapstructure:"LOG_FILE" yaml:"log_file,omitempty"`

	loc *time.Location
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// EnvFile is loaded into the process environment if it exists. Defaults to ".env".
	EnvFile string
	// ConfigPaths are searched for config.yaml. Defaults to "." and $HOME/.calassist.
	ConfigPaths []string
}

// Load reads .env, config.yaml and the environment. Missing secrets are not
// an error; they surface when the component that needs them is first used.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	paths := opts.ConfigPaths
	if len(paths) == 0 {
		paths = []string{"."}
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".calassist"))
		}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv picks it up on Unmarshal.
	v.SetDefault("CAL_API_KEY", "")
	v.SetDefault("CAL_API_BASE_URL", DefaultCalBaseURL)
	v.SetDefault("ANTHROPIC_API_KEY", "")
	v.SetDefault("ANTHROPIC_BASE_URL", "")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("CALASSIST_CLASSIFIER", ClassifierAuto)
	v.SetDefault("CALASSIST_MODEL", "")
	v.SetDefault("CALASSIST_GEMINI_MODEL", "gemini-1.5-pro")
	v.SetDefault("CALASSIST_TIMEZONE", DefaultTimezone)
	v.SetDefault("CALASSIST_REQUEST_TIMEOUT", "30s")
	v.SetDefault("CALASSIST_REQUESTS_PER_MINUTE", 60)
	v.SetDefault("CALASSIST_SERVE_ADDR", "127.0.0.1:8787")
	v.SetDefault("CALASSIST_SERVE_TOKENS", "")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Classifier = strings.ToLower(strings.TrimSpace(c.Classifier))
	switch c.Classifier {
	case "":
		c.Classifier = ClassifierAuto
	case ClassifierAuto, ClassifierAnthropic, ClassifierGemini, ClassifierRules:
	default:
		return fmt.Errorf("unknown classifier %q (want auto, anthropic, gemini or rules)", c.Classifier)
	}
	if c.CalBaseURL == "" {
		c.CalBaseURL = DefaultCalBaseURL
	}
	if !strings.HasSuffix(c.CalBaseURL, "/") {
		c.CalBaseURL += "/"
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RequestsPerMinute < 0 {
		c.RequestsPerMinute = 0
	}
	return nil
}

// CalAPIKey returns the scheduling service key. It satisfies calcom.Credentials.
func (c *Config) CalAPIKey() string {
	return c.CalAPIKeyValue
}

// Location is the timezone every timestamp is normalized to.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// ResolvedClassifier maps "auto" to a concrete backend based on which keys are set.
func (c *Config) ResolvedClassifier() string {
	if c.Classifier != ClassifierAuto {
		return c.Classifier
	}
	switch {
	case c.AnthropicAPIKey != "":
		return ClassifierAnthropic
	case c.GeminiAPIKey != "":
		return ClassifierGemini
	default:
		return ClassifierRules
	}
}

// LLMAPIKey returns the key for the resolved language backend.
func (c *Config) LLMAPIKey() (string, error) {
	switch c.ResolvedClassifier() {
	case ClassifierAnthropic:
		if c.AnthropicAPIKey == "" {
			return "", fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrMissingLLMKey)
		}
		return c.AnthropicAPIKey, nil
	case ClassifierGemini:
		if c.GeminiAPIKey == "" {
			return "", fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingLLMKey)
		}
		return c.GeminiAPIKey, nil
	default:
		return "", nil
	}
}

// Tokens returns the configured bearer tokens for the HTTP server.
func (c *Config) Tokens() []string {
	var out []string
	for _, t := range strings.Split(c.ServeTokens, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// CredentialStatus reports whether a required secret is present.
type CredentialStatus struct {
	Name     string `json:"name"`
	Purpose  string `json:"purpose"`
	Present  bool   `json:"present"`
	Required bool   `json:"required"`
}

// Credentials lists the secrets the process depends on, for status displays.
func (c *Config) Credentials() []CredentialStatus {
	backend := c.ResolvedClassifier()
	return []CredentialStatus{
		{Name: "CAL_API_KEY", Purpose: "scheduling service", Present: c.CalAPIKeyValue != "", Required: true},
		{Name: "ANTHROPIC_API_KEY", Purpose: "language backend (anthropic)", Present: c.AnthropicAPIKey != "", Required: backend == ClassifierAnthropic},
		{Name: "GEMINI_API_KEY", Purpose: "language backend (gemini)", Present: c.GeminiAPIKey != "", Required: backend == ClassifierGemini},
	}
}

// Redacted renders the effective configuration as YAML with secrets masked.
func (c *Config) Redacted() (string, error) {
	cp := *c
	cp.CalAPIKeyValue = mask(cp.CalAPIKeyValue)
	cp.AnthropicAPIKey = mask(cp.AnthropicAPIKey)
	cp.GeminiAPIKey = mask(cp.GeminiAPIKey)
	if cp.ServeTokens != "" {
		cp.ServeTokens = fmt.Sprintf("(%d tokens)", len(c.Tokens()))
	}
	out, err := yaml.Marshal(&cp)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
