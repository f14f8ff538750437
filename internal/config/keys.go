package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const keychainService = "scour"

type keyType int

const (
	kString keyType = iota
	kInt
	kList // comma-separated strings
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	account string // keychain account for secrets
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "SCOUR_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "SCOUR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.cors_origins", typ: kList, env: "SCOUR_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Server.CORSOrigins, ",") },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SCOUR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "llm.backend", typ: kString, env: "SCOUR_LLM_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.LLM.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Backend },
	},
	{
		key: "llm.base_url", typ: kString, env: "SCOUR_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.models", typ: kList, env: "SCOUR_LLM_MODELS",
		apply:   func(cfg *Config, v any) { cfg.LLM.Models = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.LLM.Models, ",") },
	},
	{
		key: "llm.openrouter_api_key", typ: kString, env: "SCOUR_OPENROUTER_API_KEY",
		secret: true, account: "openrouter_api_key",
		apply:   func(cfg *Config, v any) { cfg.LLM.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OpenRouterAPIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SCOUR_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "search.provider", typ: kString, env: "SCOUR_SEARCH_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Search.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.Provider },
	},
	{
		key: "search.max_results", typ: kInt, env: "SCOUR_SEARCH_MAX_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.Search.MaxResults = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MaxResults },
	},
	{
		key: "search.tavily_api_key", typ: kString, env: "SCOUR_TAVILY_API_KEY",
		secret: true, account: "tavily_api_key",
		apply:   func(cfg *Config, v any) { cfg.Search.TavilyAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.TavilyAPIKey },
	},
	{
		key: "search.brave_api_key", typ: kString, env: "SCOUR_BRAVE_API_KEY",
		secret: true, account: "brave_api_key",
		apply:   func(cfg *Config, v any) { cfg.Search.BraveAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.BraveAPIKey },
	},
	{
		key: "stream.verdict_delay_ms", typ: kInt, env: "SCOUR_STREAM_VERDICT_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Stream.VerdictDelayMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Stream.VerdictDelayMS },
	},
	{
		key: "stream.fragment_delay_ms", typ: kInt, env: "SCOUR_STREAM_FRAGMENT_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Stream.FragmentDelayMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Stream.FragmentDelayMS },
	},
	{
		key: "stream.format", typ: kString, env: "SCOUR_STREAM_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Stream.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Stream.Format },
	},
	{
		key: "log.level", typ: kString, env: "SCOUR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kList:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, splitList(v))
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kList:
			s.apply(cfg, splitList(raw))
		}
	}
}
