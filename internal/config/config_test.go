package config

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	if service != keychainService {
		return "", errors.New("wrong service")
	}
	v, ok := m.values[account]
	if !ok {
		return "", errSecretNotFound
	}
	return v, nil
}

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	data map[string]any
}

func newMemBackend(data map[string]any) *memBackend {
	if data == nil {
		data = map[string]any{}
	}
	return &memBackend{data: data}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (b *memBackend) SetString(key, val string) error   { b.data[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *memBackend) Delete(key string) error          { delete(b.data, key); return nil }

// clearEnv blanks every SCOUR_* variable the loader reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "127.0.0.1:8000" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.LLM.Backend != "openrouter" {
		t.Errorf("LLM.Backend = %q", cfg.LLM.Backend)
	}
	if cfg.Search.Provider != "tavily" || cfg.Search.MaxResults != 10 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.Stream.VerdictDelay().Milliseconds() != 100 || cfg.Stream.FragmentDelay() != 0 {
		t.Errorf("Stream = %+v", cfg.Stream)
	}
	if cfg.Stream.Format != "legacy" {
		t.Errorf("Stream.Format = %q", cfg.Stream.Format)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
}

func TestMissingSecretsIsNotAnError(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.Join(cfg.MissingSecrets(), ",")
	if got != "SCOUR_OPENROUTER_API_KEY,SCOUR_TAVILY_API_KEY" {
		t.Errorf("MissingSecrets = %q", got)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMemBackend(map[string]any{
		"server.port":         9000,
		"server.cors_origins": "https://a.example, https://b.example,",
		"llm.backend":         "ollama",
		"llm.models":          "llama3.1, qwen2.5",
		"search.provider":     "brave",
		"stream.format":       "typed",
		"log.level":           "debug",
	})

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if got := strings.Join(cfg.Server.CORSOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("CORSOrigins = %q", got)
	}
	if got := strings.Join(cfg.LLM.Models, "|"); got != "llama3.1|qwen2.5" {
		t.Errorf("Models = %q", got)
	}
	if cfg.LLM.Backend != "ollama" || cfg.Search.Provider != "brave" || cfg.Stream.Format != "typed" {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := strings.Join(cfg.MissingSecrets(), ","); got != "SCOUR_BRAVE_API_KEY" {
		t.Errorf("MissingSecrets = %q", got)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCOUR_SERVER_PORT", "7000")
	t.Setenv("SCOUR_LLM_MODELS", "a,b,c")
	t.Setenv("SCOUR_OPENROUTER_API_KEY", "env-key")

	b := newMemBackend(map[string]any{"server.port": 9000})
	cfg, err := loadWith(b, mockKeychain{values: map[string]string{"openrouter_api_key": "keychain-key"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if len(cfg.LLM.Models) != 3 {
		t.Errorf("Models = %v", cfg.LLM.Models)
	}
	if cfg.LLM.OpenRouterAPIKey != "env-key" {
		t.Errorf("OpenRouterAPIKey = %q, want env-key", cfg.LLM.OpenRouterAPIKey)
	}
}

func TestEnvOverride_BadIntKeepsValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCOUR_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	kc := mockKeychain{values: map[string]string{
		"openrouter_api_key": "or-secret",
		"tavily_api_key":     "tv-secret",
	}}
	cfg, err := loadWith(newMemBackend(nil), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.OpenRouterAPIKey != "or-secret" {
		t.Errorf("OpenRouterAPIKey = %q", cfg.LLM.OpenRouterAPIKey)
	}
	if cfg.Search.TavilyAPIKey != "tv-secret" {
		t.Errorf("TavilyAPIKey = %q", cfg.Search.TavilyAPIKey)
	}
	if len(cfg.MissingSecrets()) != 0 {
		t.Errorf("MissingSecrets = %v", cfg.MissingSecrets())
	}
}

func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)
	b := newMemBackend(map[string]any{"llm.openrouter_api_key": "plain-text"})

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.OpenRouterAPIKey != "" {
		t.Errorf("secret read from backend: %q", cfg.LLM.OpenRouterAPIKey)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cases := map[string]map[string]any{
		"backend":  {"llm.backend": "gemini"},
		"provider": {"search.provider": "google"},
		"format":   {"stream.format": "ndjson"},
		"level":    {"log.level": "loud"},
		"port":     {"server.port": 70000},
		"results":  {"search.max_results": 0},
		"delay":    {"stream.verdict_delay_ms": -1},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadWith(newMemBackend(data), mockKeychain{})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "invalid config") {
				t.Errorf("error = %q", err)
			}
		})
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.OpenRouterAPIKey = "sk-very-secret"

	found := map[string]string{}
	for _, ki := range ShowAll(cfg) {
		found[ki.Key] = ki.Value
	}
	if found["llm.openrouter_api_key"] != "(set)" {
		t.Errorf("openrouter key shown as %q", found["llm.openrouter_api_key"])
	}
	if found["search.brave_api_key"] != "(unset)" {
		t.Errorf("brave key shown as %q", found["search.brave_api_key"])
	}
	if found["server.port"] != "8000" {
		t.Errorf("server.port shown as %q", found["server.port"])
	}
	if found["llm.models"] != "google/gemini-flash-1.5,google/gemini-pro-1.5" {
		t.Errorf("llm.models shown as %q", found["llm.models"])
	}
}

func TestSetAndUnsetKey(t *testing.T) {
	b := newMemBackend(nil)

	if err := setKey(b, "server.port", "9100"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if b.data["server.port"] != 9100 {
		t.Errorf("server.port stored as %#v", b.data["server.port"])
	}
	if err := setKey(b, "llm.models", "a,b"); err != nil {
		t.Fatalf("setKey list: %v", err)
	}
	if err := setKey(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKey(b, "llm.openrouter_api_key", "x"); err == nil || !strings.Contains(err.Error(), "SCOUR_OPENROUTER_API_KEY") {
		t.Errorf("secret set error = %v", err)
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	if err := unsetKey(b, "server.port"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	if _, ok := b.data["server.port"]; ok {
		t.Error("server.port still present after unset")
	}
	if err := unsetKey(b, "nope"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestValidKeysExcludeSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if strings.HasSuffix(k, "_api_key") {
			t.Errorf("ValidKeys includes secret %q", k)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		" trace ": LevelTrace,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewLoggerTrace(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "trace")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Log(t.Context(), LevelTrace, "payload", "bytes", 12)
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	logger, _ = NewLogger(&buf, "warn")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}
