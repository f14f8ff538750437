package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	LLM     LLMConfig
	Ollama  OllamaConfig
	Search  SearchConfig
	Stream  StreamConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// Addr is the listen address for the HTTP API.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	DataDir string
}

type LLMConfig struct {
	Backend string // "openrouter" or "ollama"
	BaseURL string
	// Models are candidates tried in order; the first that answers is used.
	Models           []string
	OpenRouterAPIKey string
}

type OllamaConfig struct {
	BaseURL string
}

type SearchConfig struct {
	Provider     string // "tavily" or "brave"
	MaxResults   int
	TavilyAPIKey string
	BraveAPIKey  string
}

type StreamConfig struct {
	VerdictDelayMS  int
	FragmentDelayMS int
	Format          string // "legacy" or "typed"
}

func (s StreamConfig) VerdictDelay() time.Duration {
	return time.Duration(s.VerdictDelayMS) * time.Millisecond
}

func (s StreamConfig) FragmentDelay() time.Duration {
	return time.Duration(s.FragmentDelayMS) * time.Millisecond
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			Backend: "openrouter",
			Models:  []string{"google/gemini-flash-1.5", "google/gemini-pro-1.5"},
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Search: SearchConfig{
			Provider:   "tavily",
			MaxResults: 10,
		},
		Stream: StreamConfig{
			VerdictDelayMS:  100,
			FragmentDelayMS: 0,
			Format:          "legacy",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.scour.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/scour/config.json
// and secrets come from environment variables or
// $XDG_DATA_HOME/scour/secrets.json.
//
// Environment variables (SCOUR_*) override backend values on all platforms.
// Missing API keys are not an error; the collaborators that need them
// report themselves unavailable.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets fills secrets still empty after env overrides from the
// platform secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		v, err := kc.Get(keychainService, s.account)
		if err != nil {
			if !errors.Is(err, errSecretNotFound) {
				slog.Debug("secret store unavailable", "account", s.account, "error", err)
			}
			continue
		}
		if v != "" {
			s.apply(cfg, v)
		}
	}
}

// Validate checks enumerated and numeric settings.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.LLM.Backend {
	case "openrouter", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.backend %q (valid: openrouter, ollama)", c.LLM.Backend))
	}
	switch c.Search.Provider {
	case "tavily", "brave":
	default:
		errs = append(errs, fmt.Errorf("search.provider %q (valid: tavily, brave)", c.Search.Provider))
	}
	if c.Search.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults))
	}
	switch c.Stream.Format {
	case "legacy", "typed":
	default:
		errs = append(errs, fmt.Errorf("stream.format %q (valid: legacy, typed)", c.Stream.Format))
	}
	if c.Stream.VerdictDelayMS < 0 || c.Stream.FragmentDelayMS < 0 {
		errs = append(errs, errors.New("stream delays must not be negative"))
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MissingSecrets names the env vars of secrets the configured providers need
// but do not have.
func (c Config) MissingSecrets() []string {
	var missing []string
	if c.LLM.Backend == "openrouter" && c.LLM.OpenRouterAPIKey == "" {
		missing = append(missing, "SCOUR_OPENROUTER_API_KEY")
	}
	if c.Search.Provider == "tavily" && c.Search.TavilyAPIKey == "" {
		missing = append(missing, "SCOUR_TAVILY_API_KEY")
	}
	if c.Search.Provider == "brave" && c.Search.BraveAPIKey == "" {
		missing = append(missing, "SCOUR_BRAVE_API_KEY")
	}
	return missing
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	return readSecret(service, account)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
