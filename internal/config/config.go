package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	modelpkg "github.com/stupiduntilnot/magnus/internal/model"
)

// Settings file names looked up in the working directory when no path is
// given. The dev file takes precedence.
const (
	DevSettingsFile = "MagnusLiber.dev.json"
	SettingsFile    = "MagnusLiber.json"
)

const (
	DefaultSystemMessageFile = "SystemMessage.txt"
	DefaultMessagesFile      = "Messages.json"
	DefaultAPIStyle          = "azure"
	DefaultAPIVersion        = "2023-05-15"
	DefaultProvider          = "openai"
	DefaultTimeoutSeconds    = 120
	dummyDeployment          = "dummy"
)

// Config is the complete startup configuration. Zero-valued sampling
// factors are left to the provider.
type Config struct {
	// Endpoint is the Azure resource URL or OpenAI-compatible API base. Required.
	Endpoint string `json:"openAiUri" toml:"openAiUri" yaml:"openAiUri"`
	// Key is the access credential. Required.
	Key string `json:"openAiKey" toml:"openAiKey" yaml:"openAiKey"`
	// Deployment is the Azure deployment or model name. Required.
	Deployment string `json:"deployment" toml:"deployment" yaml:"deployment"`
	// HistoryLength caps the transcript in messages. Required, > 0.
	HistoryLength int `json:"historyLength" toml:"historyLength" yaml:"historyLength"`
	// MaxTokens caps each reply. Required, > 0.
	MaxTokens int `json:"maxTokens" toml:"maxTokens" yaml:"maxTokens"`

	Temperature      *float64 `json:"temperature" toml:"temperature" yaml:"temperature"`
	TopP             *float64 `json:"topP" toml:"topP" yaml:"topP"`
	FrequencyPenalty *float64 `json:"frequencyPenalty" toml:"frequencyPenalty" yaml:"frequencyPenalty"`
	PresencePenalty  *float64 `json:"presencePenalty" toml:"presencePenalty" yaml:"presencePenalty"`

	// APIStyle is "azure" (default) or "openai".
	APIStyle string `json:"apiStyle" toml:"apiStyle" yaml:"apiStyle"`
	// APIVersion is the Azure api-version, default 2023-05-15.
	APIVersion string `json:"apiVersion" toml:"apiVersion" yaml:"apiVersion"`
	// RequestTimeoutSeconds bounds each completion call, default 120. Zero disables.
	RequestTimeoutSeconds int `json:"requestTimeoutSeconds" toml:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"`

	// Provider is "openai" (default) or "dummy".
	Provider    string `json:"provider" toml:"provider" yaml:"provider"`
	DummyScript string `json:"dummyScript" toml:"dummyScript" yaml:"dummyScript"`

	SystemMessageFile string `json:"systemMessageFile" toml:"systemMessageFile" yaml:"systemMessageFile"`
	MessagesFile      string `json:"messagesFile" toml:"messagesFile" yaml:"messagesFile"`
	// EventLog is the SQLite turn journal path. Empty disables it.
	EventLog       string `json:"eventLog" toml:"eventLog" yaml:"eventLog"`
	RenderMarkdown bool   `json:"renderMarkdown" toml:"renderMarkdown" yaml:"renderMarkdown"`
	Verbose        bool   `json:"verbose" toml:"verbose" yaml:"verbose"`

	// SourcePath is the settings file that was read, or "" for env only.
	SourcePath string `json:"-" toml:"-" yaml:"-"`
}

// Default returns a Config holding every documented default.
func Default() Config {
	return Config{
		APIStyle:              DefaultAPIStyle,
		APIVersion:            DefaultAPIVersion,
		RequestTimeoutSeconds: DefaultTimeoutSeconds,
		Provider:              DefaultProvider,
		SystemMessageFile:     DefaultSystemMessageFile,
		MessagesFile:          DefaultMessagesFile,
	}
}

// Overrides are per-run command line switches. Nil fields are left alone.
type Overrides struct {
	Provider       *string
	EventLog       *string
	RenderMarkdown *bool
	Verbose        *bool
}

func (o Overrides) apply(cfg *Config) {
	if o.Provider != nil {
		cfg.Provider = strings.ToLower(*o.Provider)
	}
	if o.EventLog != nil {
		cfg.EventLog = *o.EventLog
	}
	if o.RenderMarkdown != nil {
		cfg.RenderMarkdown = *o.RenderMarkdown
	}
	if o.Verbose != nil {
		cfg.Verbose = *o.Verbose
	}
}

// Load builds the configuration from defaults, the settings file, and the
// environment, in that order, then validates it. path may be empty.
func Load(path string) (Config, error) {
	return LoadWithOverrides(path, Overrides{})
}

// LoadWithOverrides is Load with command line switches applied last.
func LoadWithOverrides(path string, overrides Overrides) (Config, error) {
	cfg := Default()

	settingsPath, explicit := resolveSettingsPath(path)
	if settingsPath != "" {
		if err := decodeFile(settingsPath, &cfg); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				settingsPath = ""
			} else {
				return Config{}, err
			}
		}
	}
	cfg.SourcePath = settingsPath

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	overrides.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.HistoryLength%2 != 0 {
		log.Printf("[config] historyLength=%d is odd; the transcript may hold one extra pair", cfg.HistoryLength)
	}
	return cfg, nil
}

func resolveSettingsPath(path string) (string, bool) {
	if path != "" {
		return path, true
	}
	if env := os.Getenv("MAGNUS_CONFIG"); env != "" {
		return env, true
	}
	for _, candidate := range []string{DevSettingsFile, SettingsFile} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, false
		}
	}
	return "", false
}

func applyEnv(cfg *Config) error {
	cfg.Endpoint = envOrDefault("OPENAI_URL", cfg.Endpoint)
	cfg.Key = envOrDefault("OPENAI_KEY", cfg.Key)
	cfg.Deployment = envOrDefault("OPENAI_DEPLOYMENT", cfg.Deployment)
	cfg.APIVersion = envOrDefault("OPENAI_API_VERSION", cfg.APIVersion)
	cfg.APIStyle = strings.ToLower(envOrDefault("MAGNUS_API_STYLE", cfg.APIStyle))
	cfg.Provider = strings.ToLower(envOrDefault("MAGNUS_PROVIDER", cfg.Provider))
	cfg.DummyScript = envOrDefault("MAGNUS_DUMMY_SCRIPT", cfg.DummyScript)
	cfg.SystemMessageFile = envOrDefault("MAGNUS_SYSTEM_MESSAGE_FILE", cfg.SystemMessageFile)
	cfg.MessagesFile = envOrDefault("MAGNUS_MESSAGES_FILE", cfg.MessagesFile)
	cfg.EventLog = envOrDefault("MAGNUS_EVENT_LOG", cfg.EventLog)
	cfg.RenderMarkdown = envBoolOrDefault("MAGNUS_RENDER_MARKDOWN", cfg.RenderMarkdown)
	cfg.Verbose = envBoolOrDefault("MAGNUS_VERBOSE", cfg.Verbose)

	var err error
	if cfg.HistoryLength, err = envInt("MAGNUS_HISTORY_LENGTH", cfg.HistoryLength); err != nil {
		return err
	}
	if cfg.MaxTokens, err = envInt("MAGNUS_MAX_TOKENS", cfg.MaxTokens); err != nil {
		return err
	}
	if cfg.RequestTimeoutSeconds, err = envInt("MAGNUS_REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeoutSeconds); err != nil {
		return err
	}
	if cfg.Temperature, err = envFloat("MAGNUS_TEMPERATURE", cfg.Temperature); err != nil {
		return err
	}
	if cfg.TopP, err = envFloat("MAGNUS_TOP_P", cfg.TopP); err != nil {
		return err
	}
	if cfg.FrequencyPenalty, err = envFloat("MAGNUS_FREQUENCY_PENALTY", cfg.FrequencyPenalty); err != nil {
		return err
	}
	if cfg.PresencePenalty, err = envFloat("MAGNUS_PRESENCE_PENALTY", cfg.PresencePenalty); err != nil {
		return err
	}
	return nil
}

// Validate checks required fields and enumerated values. The dummy provider
// needs no endpoint or credential.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "dummy":
	default:
		return sourceErr("MAGNUS_PROVIDER", "unsupported provider %q", c.Provider)
	}
	switch c.APIStyle {
	case "azure", "openai":
	default:
		return sourceErr("MAGNUS_API_STYLE", "unsupported api style %q", c.APIStyle)
	}
	if c.RequestTimeoutSeconds < 0 {
		return sourceErr("MAGNUS_REQUEST_TIMEOUT_SECONDS", "must be >= 0, got %d", c.RequestTimeoutSeconds)
	}
	if c.Provider == "dummy" && c.Deployment == "" {
		c.Deployment = dummyDeployment
	}

	var missing []string
	if c.Provider == "openai" {
		if strings.TrimSpace(c.Endpoint) == "" {
			missing = append(missing, "endpoint (openAiUri / OPENAI_URL)")
		}
		if strings.TrimSpace(c.Key) == "" {
			missing = append(missing, "credential (openAiKey / OPENAI_KEY)")
		}
	}
	if strings.TrimSpace(c.Deployment) == "" {
		missing = append(missing, "model id (deployment / OPENAI_DEPLOYMENT)")
	}
	if c.HistoryLength <= 0 {
		missing = append(missing, "history capacity (historyLength / MAGNUS_HISTORY_LENGTH)")
	}
	if c.MaxTokens <= 0 {
		missing = append(missing, "max output tokens (maxTokens / MAGNUS_MAX_TOKENS)")
	}
	if len(missing) > 0 {
		return &Error{Source: c.describeSource(), Missing: missing}
	}
	return nil
}

func (c *Config) describeSource() string {
	if c.SourcePath == "" {
		return "environment"
	}
	return filepath.Clean(c.SourcePath) + " + environment"
}

// Sampling returns the fixed generation parameters for every request.
func (c Config) Sampling() modelpkg.SamplingParameters {
	return modelpkg.SamplingParameters{
		MaxTokens:        c.MaxTokens,
		Temperature:      c.Temperature,
		TopP:             c.TopP,
		FrequencyPenalty: c.FrequencyPenalty,
		PresencePenalty:  c.PresencePenalty,
	}
}

// RequestTimeout converts RequestTimeoutSeconds.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, sourceErr(key, "not an integer: %q", v)
	}
	return n, nil
}

func envFloat(key string, fallback *float64) (*float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, sourceErr(key, "not a number: %q", v)
	}
	return &f, nil
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}

// String renders the configuration for logs without the credential.
func (c Config) String() string {
	return fmt.Sprintf("source=%q provider=%s style=%s deployment=%s history=%d max_tokens=%d timeout=%ds",
		c.describeSource(), c.Provider, c.APIStyle, c.Deployment, c.HistoryLength, c.MaxTokens, c.RequestTimeoutSeconds)
}
