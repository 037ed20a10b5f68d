package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/maastricht-university/harmon/emotion"
)

type Service struct {
	URL string `yaml:"url"`
}

type Services struct {
	ASR       Service `yaml:"asr"`
	Sentiment Service `yaml:"sentiment"`
}

type Pipeline struct {
	Name               string `yaml:"name"`
	Version            string `yaml:"version"`
	LogLevel           string `yaml:"log_level"`
	LogFormat          string `yaml:"log_format"`
	LogFile            string `yaml:"log_file"`
	IdleTimeoutSeconds int    `yaml:"idle_timeout_seconds"`
}

type Wake struct {
	Token   string   `yaml:"token"`
	Aliases []string `yaml:"aliases"`
}

type Intervention struct {
	HistoryTurns int `yaml:"history_turns"`
	// Seed makes template choice reproducible; 0 picks randomly.
	Seed uint64 `yaml:"seed"`
}

type LLM struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	HistoryTurns      int     `yaml:"history_turns"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Store struct {
	Backend           string `yaml:"backend"`
	DSN               string `yaml:"dsn"`
	Redis             Redis  `yaml:"redis"`
	RecentLimit       int    `yaml:"recent_limit"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	PersistTranscript bool   `yaml:"persist_transcript"`
}

type Transcription struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

type Server struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type Root struct {
	Pipeline      Pipeline       `yaml:"pipeline"`
	Wake          Wake           `yaml:"wake"`
	Emotion       emotion.Config `yaml:"emotion"`
	Intervention  Intervention   `yaml:"intervention"`
	LLM           LLM            `yaml:"llm"`
	Store         Store          `yaml:"store"`
	Services      Services       `yaml:"services"`
	Transcription Transcription  `yaml:"transcription"`
	Server        Server         `yaml:"server"`
	Paths         struct {
		Outputs string `yaml:"outputs"`
	} `yaml:"paths"`
}

// Providers and backends accepted by Validate.
const (
	ProviderOpenAI    = "openai"
	ProviderOpenAISDK = "openai-sdk"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Option adjusts the viper instance before the config is decoded, e.g. to bind CLI flags.
type Option func(v *viper.Viper) error

func setDefaults(v *viper.Viper) {
	d := emotion.DefaultConfig()
	for k, val := range map[string]any{
		"pipeline.name":                 "harmon",
		"pipeline.version":              "dev",
		"pipeline.log_level":            "info",
		"pipeline.log_format":           "text",
		"pipeline.log_file":             "",
		"pipeline.idle_timeout_seconds": 1800,
		"wake.token":                    "harmon",
		"wake.aliases":                  []string{"aitool"},
		"emotion.window_size":           d.WindowSize,
		"emotion.cooldown":              d.Cooldown,
		"emotion.negative_threshold":    d.NegativeThreshold,
		"emotion.intensity_threshold":   d.IntensityThreshold,
		"emotion.escalation_threshold":  d.EscalationThreshold,
		"emotion.recovery_threshold":    d.RecoveryThreshold,
		"intervention.history_turns":    10,
		"intervention.seed":             0,
		"llm.provider":                  ProviderOpenAI,
		"llm.model":                     "llama-4-scout-17b-16e-instruct",
		"llm.base_url":                  "https://api.cerebras.ai/v1",
		"llm.api_key":                   "",
		"llm.timeout_seconds":           30,
		"llm.requests_per_second":       0,
		"llm.burst":                     1,
		"llm.history_turns":             20,
		"store.backend":                 BackendMemory,
		"store.dsn":                     "",
		"store.redis.addr":              "localhost:6379",
		"store.redis.password":          "",
		"store.redis.db":                0,
		"store.recent_limit":            50,
		"store.timeout_seconds":         5,
		"store.persist_transcript":      true,
		"services.asr.url":              "",
		"services.sentiment.url":        "",
		"transcription.url":             "wss://api.deepgram.com/v1/listen?encoding=linear16&sample_rate=16000&channels=1",
		"transcription.api_key":         "",
		"server.addr":                   ":5000",
		"server.allow_origins":          []string{"*"},
		"paths.outputs":                 "outputs",
	} {
		v.SetDefault(k, val)
	}
}

// Load reads .env, the config file, HARMON_* variables and any bound flags, in
// increasing precedence. An empty path searches the CONFIG_ENV locations; when
// none exists the defaults are used.
func Load(path string, opts ...Option) (*Root, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config dotenv: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HARMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Variable names used by existing deployments.
	_ = v.BindEnv("llm.api_key", "HARMON_LLM_API_KEY", "CEREBRAS_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("transcription.api_key", "HARMON_TRANSCRIPTION_API_KEY", "DEEPGRAM_API_KEY")

	if path == "" {
		path = discover()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read %s: %w", path, err)
		}
	}
	// Hosted platforms hand the listen port over in PORT.
	if port := os.Getenv("PORT"); port != "" {
		v.SetDefault("server.addr", ":"+port)
	}
	for _, o := range opts {
		if err := o(v); err != nil {
			return nil, err
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func discover() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	guess := []string{
		filepath.Join("config", env, "config.yaml"),
		"config.yaml",
	}
	for _, p := range guess {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate reports the first offending key.
func (c *Root) Validate() error {
	bad := func(key, reason string) error { return fmt.Errorf("config: %s %s", key, reason) }

	if c.Pipeline.IdleTimeoutSeconds < 0 {
		return bad("pipeline.idle_timeout_seconds", "must not be negative")
	}
	if strings.TrimSpace(c.Wake.Token) == "" {
		return bad("wake.token", "must not be empty")
	}
	if c.Emotion.WindowSize < 0 {
		return bad("emotion.window_size", "must not be negative")
	}
	if c.Emotion.Cooldown < 0 {
		return bad("emotion.cooldown", "must not be negative")
	}
	if c.Intervention.HistoryTurns < 0 {
		return bad("intervention.history_turns", "must not be negative")
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderOpenAISDK, ProviderOllama, ProviderNone:
	default:
		return bad("llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return bad("llm.timeout_seconds", "must be positive")
	}
	if c.LLM.RequestsPerSecond < 0 {
		return bad("llm.requests_per_second", "must not be negative")
	}
	if c.LLM.HistoryTurns < 0 {
		return bad("llm.history_turns", "must not be negative")
	}
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	case BackendSQLite, BackendPostgres:
		if c.Store.DSN == "" {
			return bad("store.dsn", "is required for "+c.Store.Backend)
		}
	default:
		return bad("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend))
	}
	if c.Store.TimeoutSeconds <= 0 {
		return bad("store.timeout_seconds", "must be positive")
	}
	if c.Store.RecentLimit <= 0 {
		return bad("store.recent_limit", "must be positive")
	}
	if c.Server.Addr == "" {
		return bad("server.addr", "must not be empty")
	}
	return nil
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
