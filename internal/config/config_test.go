package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var configEnvKeys = []string{
	"MAGNUS_CONFIG",
	"OPENAI_URL",
	"OPENAI_KEY",
	"OPENAI_DEPLOYMENT",
	"OPENAI_API_VERSION",
	"MAGNUS_HISTORY_LENGTH",
	"MAGNUS_MAX_TOKENS",
	"MAGNUS_TEMPERATURE",
	"MAGNUS_TOP_P",
	"MAGNUS_FREQUENCY_PENALTY",
	"MAGNUS_PRESENCE_PENALTY",
	"MAGNUS_API_STYLE",
	"MAGNUS_REQUEST_TIMEOUT_SECONDS",
	"MAGNUS_PROVIDER",
	"MAGNUS_DUMMY_SCRIPT",
	"MAGNUS_SYSTEM_MESSAGE_FILE",
	"MAGNUS_MESSAGES_FILE",
	"MAGNUS_EVENT_LOG",
	"MAGNUS_RENDER_MARKDOWN",
	"MAGNUS_VERBOSE",
}

// isolate clears every config variable and moves into an empty directory so
// no settings file is discovered.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func setupRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_URL", "https://example.openai.azure.com/")
	t.Setenv("OPENAI_KEY", "test-key")
	t.Setenv("OPENAI_DEPLOYMENT", "gpt-35")
	t.Setenv("MAGNUS_HISTORY_LENGTH", "10")
	t.Setenv("MAGNUS_MAX_TOKENS", "150")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	isolate(t)
	setupRequiredEnv(t)
	t.Setenv("MAGNUS_TEMPERATURE", "0.7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Endpoint != "https://example.openai.azure.com/" || cfg.Key != "test-key" || cfg.Deployment != "gpt-35" {
		t.Fatalf("unexpected connection settings: %+v", cfg)
	}
	if cfg.HistoryLength != 10 || cfg.MaxTokens != 150 {
		t.Fatalf("unexpected limits: history=%d max_tokens=%d", cfg.HistoryLength, cfg.MaxTokens)
	}
	if cfg.SourcePath != "" {
		t.Fatalf("expected env-only source, got %q", cfg.SourcePath)
	}
	if cfg.APIStyle != DefaultAPIStyle || cfg.APIVersion != DefaultAPIVersion || cfg.Provider != DefaultProvider {
		t.Fatalf("defaults not applied: %+v", cfg)
	}

	params := cfg.Sampling()
	if params.MaxTokens != 150 {
		t.Fatalf("unexpected max tokens %d", params.MaxTokens)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Fatalf("unexpected temperature %v", params.Temperature)
	}
	if params.TopP != nil || params.FrequencyPenalty != nil || params.PresencePenalty != nil {
		t.Fatal("unset sampling factors should stay nil")
	}
	if cfg.RequestTimeout().Seconds() != DefaultTimeoutSeconds {
		t.Fatalf("unexpected timeout %v", cfg.RequestTimeout())
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	isolate(t)

	_, err := Load("")
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(cfgErr.Missing) != 5 {
		t.Fatalf("expected five missing fields, got %v", cfgErr.Missing)
	}
	for _, key := range []string{"OPENAI_URL", "OPENAI_KEY", "OPENAI_DEPLOYMENT", "MAGNUS_HISTORY_LENGTH", "MAGNUS_MAX_TOKENS"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
}

func TestLoad_DiscoversDevSettingsFirst(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, SettingsFile), `{"openAiUri":"https://shared","openAiKey":"shared","deployment":"d","historyLength":4,"maxTokens":100}`)
	writeFile(t, filepath.Join(dir, DevSettingsFile), `{"openAiUri":"https://dev","openAiKey":"dev","deployment":"d","historyLength":6,"maxTokens":200}`)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SourcePath != DevSettingsFile {
		t.Fatalf("expected dev settings, got %q", cfg.SourcePath)
	}
	if cfg.Endpoint != "https://dev" || cfg.HistoryLength != 6 || cfg.MaxTokens != 200 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_SharedSettingsWhenNoDevFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, SettingsFile), `{"openAiUri":"https://shared","openAiKey":"shared","deployment":"d","historyLength":4,"maxTokens":100}`)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SourcePath != SettingsFile || cfg.Key != "shared" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_JSONWithComments(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "settings.json")
	writeFile(t, path, `{
		// Azure resource
		"openAiUri": "https://example.openai.azure.com/",
		"openAiKey": "k",
		"deployment": "gpt-35",
		/* message count, not tokens */
		"historyLength": 10,
		"maxTokens": 1500,
		"topP": 0.95,
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxTokens != 1500 || cfg.TopP == nil || *cfg.TopP != 0.95 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "magnus.toml")
	writeFile(t, path, `
openAiUri = "https://api.openai.com/v1"
openAiKey = "sk-test"
deployment = "gpt-4o-mini"
historyLength = 8
maxTokens = 300
apiStyle = "openai"
presencePenalty = 0.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIStyle != "openai" || cfg.HistoryLength != 8 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.PresencePenalty == nil || *cfg.PresencePenalty != 0.5 {
		t.Fatalf("unexpected presence penalty %v", cfg.PresencePenalty)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "magnus.yaml")
	writeFile(t, path, `
openAiUri: https://example.openai.azure.com/
openAiKey: k
deployment: gpt-35
historyLength: 10
maxTokens: 150
eventLog: journal.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EventLog != "journal.db" || cfg.MaxTokens != 150 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "settings.json")
	writeFile(t, path, `{"openAiUri":"https://file","openAiKey":"file-key","deployment":"d","historyLength":4,"maxTokens":100}`)
	t.Setenv("OPENAI_KEY", "env-key")
	t.Setenv("MAGNUS_HISTORY_LENGTH", "12")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Key != "env-key" || cfg.HistoryLength != 12 || cfg.Endpoint != "https://file" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.json")
	writeFile(t, path, `{"openAiUri":"https://custom","openAiKey":"k","deployment":"d","historyLength":4,"maxTokens":100}`)
	t.Setenv("MAGNUS_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != "https://custom" {
		t.Fatalf("unexpected endpoint %q", cfg.Endpoint)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	dir := isolate(t)
	setupRequiredEnv(t)

	_, err := Load(filepath.Join(dir, "nope.json"))
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist cause, got %v", err)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "settings.json")
	writeFile(t, path, `{"historyLength": "ten"}`)

	_, err := Load(path)
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || cfgErr.Source != path {
		t.Fatalf("expected *Error for %s, got %v", path, err)
	}
}

func TestLoad_InvalidNumericEnv(t *testing.T) {
	for _, key := range []string{"MAGNUS_HISTORY_LENGTH", "MAGNUS_MAX_TOKENS", "MAGNUS_TEMPERATURE", "MAGNUS_REQUEST_TIMEOUT_SECONDS"} {
		t.Run(key, func(t *testing.T) {
			isolate(t)
			setupRequiredEnv(t)
			t.Setenv(key, "lots")
			_, err := Load("")
			if err == nil {
				t.Fatal("expected invalid value error")
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestLoad_RejectsNonPositiveLimits(t *testing.T) {
	isolate(t)
	setupRequiredEnv(t)
	t.Setenv("MAGNUS_HISTORY_LENGTH", "0")
	t.Setenv("MAGNUS_MAX_TOKENS", "-1")

	_, err := Load("")
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || len(cfgErr.Missing) != 2 {
		t.Fatalf("expected two missing limits, got %v", err)
	}
}

func TestLoad_UnsupportedValues(t *testing.T) {
	isolate(t)
	setupRequiredEnv(t)
	t.Setenv("MAGNUS_API_STYLE", "bedrock")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "MAGNUS_API_STYLE") {
		t.Fatalf("unexpected err: %v", err)
	}

	t.Setenv("MAGNUS_API_STYLE", "")
	t.Setenv("MAGNUS_PROVIDER", "telepathy")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "MAGNUS_PROVIDER") {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLoad_DummyProviderNeedsNoCredential(t *testing.T) {
	isolate(t)
	t.Setenv("MAGNUS_PROVIDER", "dummy")
	t.Setenv("MAGNUS_HISTORY_LENGTH", "4")
	t.Setenv("MAGNUS_MAX_TOKENS", "50")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Deployment != "dummy" {
		t.Fatalf("expected dummy deployment, got %q", cfg.Deployment)
	}
}

func TestConfig_StringHidesKey(t *testing.T) {
	isolate(t)
	setupRequiredEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(cfg.String(), "test-key") {
		t.Fatalf("credential leaked: %s", cfg.String())
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MAGNUS_DOTENV_PROBE", "")
	os.Unsetenv("MAGNUS_DOTENV_PROBE")
	t.Setenv("OPENAI_KEY", "already-set")

	path := filepath.Join(dir, ".env")
	writeFile(t, path, "MAGNUS_DOTENV_PROBE=from-file\nOPENAI_KEY=from-file\n")

	if err := LoadDotEnv(path, true); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("MAGNUS_DOTENV_PROBE"); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
	if got := os.Getenv("OPENAI_KEY"); got != "already-set" {
		t.Fatalf(".env must not override existing variables, got %q", got)
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	dir := isolate(t)
	missing := filepath.Join(dir, ".env")
	if err := LoadDotEnv(missing, false); err != nil {
		t.Fatalf("default .env absent should be ignored: %v", err)
	}
	var cfgErr *Error
	if err := LoadDotEnv(missing, true); !errors.As(err, &cfgErr) {
		t.Fatalf("explicit .env absent should fail, got %v", err)
	}
}

func TestLoadWithOverrides_FlagsWinOverEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MAGNUS_HISTORY_LENGTH", "4")
	t.Setenv("MAGNUS_MAX_TOKENS", "50")
	t.Setenv("MAGNUS_EVENT_LOG", "env.db")

	provider := "DUMMY"
	eventLog := "flag.db"
	verbose := true
	cfg, err := LoadWithOverrides("", Overrides{Provider: &provider, EventLog: &eventLog, Verbose: &verbose})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "dummy" || cfg.Deployment != "dummy" {
		t.Fatalf("dummy override not applied: %+v", cfg)
	}
	if cfg.EventLog != "flag.db" || !cfg.Verbose || cfg.RenderMarkdown {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}
