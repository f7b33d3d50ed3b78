// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server holds the ingest HTTP server's listen and timeout settings.
type Server struct {
	Addr               string        `mapstructure:"addr"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	CORSAllowOrigins   []string      `mapstructure:"cors_allow_origins"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
}

// Storage holds the filesystem roots the queue, job status store and
// episode catalog are rooted under.
type Storage struct {
	QueueDir     string `mapstructure:"queue_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
	FailedDir    string `mapstructure:"failed_dir"`
	JobsDir      string `mapstructure:"jobs_dir"`
	EpisodesDir  string `mapstructure:"episodes_dir"`
	ScriptsDir   string `mapstructure:"scripts_dir"`
	AudioDir     string `mapstructure:"audio_dir"`
	LogsDir      string `mapstructure:"logs_dir"`
}

// ProviderCandidate is one entry in an ordered LLM or TTS fallback chain.
type ProviderCandidate struct {
	Name      string            `mapstructure:"name"`
	Kind      string            `mapstructure:"kind"` // "anthropic", "openai_compatible", "google_tts", "http_tts" (alias "edge_tts")
	Model     string            `mapstructure:"model"`
	Voice     string            `mapstructure:"voice"`
	BaseURL   string            `mapstructure:"base_url"`
	APIKeyEnv string            `mapstructure:"api_key_env"`
	ExtraEnv  map[string]string `mapstructure:"extra_env"`
	Priority  int               `mapstructure:"priority"`
}

// Providers holds the ordered candidate lists for each provider kind and the
// startup probe timeout applied to each candidate.
type Providers struct {
	LLM          []ProviderCandidate `mapstructure:"llm"`
	TTS          []ProviderCandidate `mapstructure:"tts"`
	ProbeTimeout time.Duration       `mapstructure:"probe_timeout"`
}

// StageBudgets caps how long the worker allows each pipeline stage to run.
type StageBudgets struct {
	Fetch   time.Duration `mapstructure:"fetch"`
	LLM     time.Duration `mapstructure:"llm"`
	TTS     time.Duration `mapstructure:"tts"`
	Persist time.Duration `mapstructure:"persist"`
}

// Backoff holds exponential-backoff base/max duration knobs.
type Backoff struct {
	Base time.Duration `mapstructure:"base"`
	Max  time.Duration `mapstructure:"max"`
}

// Worker holds the single-flight worker's tunables.
type Worker struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	StageBudgets      StageBudgets  `mapstructure:"stage_budgets"`
	Backoff           Backoff       `mapstructure:"backoff"`
	LockPath          string        `mapstructure:"lock_path"`
	PruneInterval     time.Duration `mapstructure:"prune_interval"`
	ProcessedKeepDays int           `mapstructure:"processed_keep_days"`
}

// Retention controls the episode catalog's FIFO cap per user.
type Retention struct {
	EpisodesPerUser int `mapstructure:"episodes_per_user"`
}

// Webhook controls outbound job-completion notifications.
type Webhook struct {
	Enabled bool     `mapstructure:"enabled"`
	URLs    []string `mapstructure:"urls"`
	Backoff Backoff  `mapstructure:"backoff"`
}

// Observability controls logging and metrics.
type Observability struct {
	LogLevel    string `mapstructure:"log_level"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// Podcast holds the channel-level metadata the RSS feed serializer embeds.
type Podcast struct {
	Title       string `mapstructure:"title"`
	BaseURL     string `mapstructure:"base_url"`
	Description string `mapstructure:"description"`
	Language    string `mapstructure:"language"`
	Author      string `mapstructure:"author"`
	Category    string `mapstructure:"category"`
	CoverImage  string `mapstructure:"cover_image"`
	AudioFormat string `mapstructure:"audio_format"`
}

// Config is the top-level, viper-unmarshalled configuration tree.
type Config struct {
	Server        Server        `mapstructure:"server"`
	Storage       Storage       `mapstructure:"storage"`
	Providers     Providers     `mapstructure:"providers"`
	Worker        Worker        `mapstructure:"worker"`
	Retention     Retention     `mapstructure:"retention"`
	Webhook       Webhook       `mapstructure:"webhook"`
	Observability Observability `mapstructure:"observability"`
	Podcast       Podcast       `mapstructure:"podcast"`
	PromptsFile   string        `mapstructure:"prompts_file"`
}

func defaultConfig() *Config {
	return &Config{
		Server: Server{
			Addr:               ":8080",
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			RequestTimeout:     10 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			RateLimitPerMinute: 60,
			RateLimitBurst:     10,
			CORSAllowOrigins:   []string{"*"},
			MaxBodyBytes:       1 << 20,
		},
		Storage: Storage{
			QueueDir:     "data/queue",
			ProcessedDir: "data/processed",
			FailedDir:    "data/failed",
			JobsDir:      "data/jobs",
			EpisodesDir:  "data/episodes",
			ScriptsDir:   "data/scripts",
			AudioDir:     "data/audio",
			LogsDir:      "logs",
		},
		Providers: Providers{
			ProbeTimeout: 10 * time.Second,
		},
		Worker: Worker{
			MaxAttempts: 3,
			StageBudgets: StageBudgets{
				Fetch:   30 * time.Second,
				LLM:     90 * time.Second,
				TTS:     180 * time.Second,
				Persist: 15 * time.Second,
			},
			Backoff:           Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second},
			LockPath:          "logs/worker.lock",
			PruneInterval:     1 * time.Hour,
			ProcessedKeepDays: 14,
		},
		Retention: Retention{
			EpisodesPerUser: 10,
		},
		Webhook: Webhook{
			Enabled: false,
			Backoff: Backoff{Base: 1 * time.Second, Max: 30 * time.Second},
		},
		Observability: Observability{
			LogLevel:    "info",
			MetricsPort: 9090,
		},
		Podcast: Podcast{
			Title:       "GhostRadio",
			Description: "AI generated podcast",
			Language:    "en-US",
			Author:      "GhostRadio",
			Category:    "Technology",
			CoverImage:  "cover.jpg",
			AudioFormat: "mp3",
		},
		PromptsFile: "config/prompts.yaml",
	}
}

// Load reads configuration from a YAML file (if present) and env overrides,
// falling back to built-in defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PODCASTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.read_timeout", def.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", def.Server.WriteTimeout)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit_per_minute", def.Server.RateLimitPerMinute)
	v.SetDefault("server.rate_limit_burst", def.Server.RateLimitBurst)
	v.SetDefault("server.cors_allow_origins", def.Server.CORSAllowOrigins)
	v.SetDefault("server.max_body_bytes", def.Server.MaxBodyBytes)

	v.SetDefault("storage.queue_dir", def.Storage.QueueDir)
	v.SetDefault("storage.processed_dir", def.Storage.ProcessedDir)
	v.SetDefault("storage.failed_dir", def.Storage.FailedDir)
	v.SetDefault("storage.jobs_dir", def.Storage.JobsDir)
	v.SetDefault("storage.episodes_dir", def.Storage.EpisodesDir)
	v.SetDefault("storage.scripts_dir", def.Storage.ScriptsDir)
	v.SetDefault("storage.audio_dir", def.Storage.AudioDir)
	v.SetDefault("storage.logs_dir", def.Storage.LogsDir)

	v.SetDefault("providers.probe_timeout", def.Providers.ProbeTimeout)

	v.SetDefault("worker.max_attempts", def.Worker.MaxAttempts)
	v.SetDefault("worker.stage_budgets.fetch", def.Worker.StageBudgets.Fetch)
	v.SetDefault("worker.stage_budgets.llm", def.Worker.StageBudgets.LLM)
	v.SetDefault("worker.stage_budgets.tts", def.Worker.StageBudgets.TTS)
	v.SetDefault("worker.stage_budgets.persist", def.Worker.StageBudgets.Persist)
	v.SetDefault("worker.backoff.base", def.Worker.Backoff.Base)
	v.SetDefault("worker.backoff.max", def.Worker.Backoff.Max)
	v.SetDefault("worker.lock_path", def.Worker.LockPath)
	v.SetDefault("worker.prune_interval", def.Worker.PruneInterval)
	v.SetDefault("worker.processed_keep_days", def.Worker.ProcessedKeepDays)

	v.SetDefault("retention.episodes_per_user", def.Retention.EpisodesPerUser)

	v.SetDefault("webhook.enabled", def.Webhook.Enabled)
	v.SetDefault("webhook.backoff.base", def.Webhook.Backoff.Base)
	v.SetDefault("webhook.backoff.max", def.Webhook.Backoff.Max)

	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)

	v.SetDefault("podcast.title", def.Podcast.Title)
	v.SetDefault("podcast.description", def.Podcast.Description)
	v.SetDefault("podcast.language", def.Podcast.Language)
	v.SetDefault("podcast.author", def.Podcast.Author)
	v.SetDefault("podcast.category", def.Podcast.Category)
	v.SetDefault("podcast.cover_image", def.Podcast.CoverImage)
	v.SetDefault("podcast.audio_format", def.Podcast.AudioFormat)
	v.SetDefault("prompts_file", def.PromptsFile)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be >= 1")
	}
	if cfg.Worker.StageBudgets.Fetch <= 0 || cfg.Worker.StageBudgets.LLM <= 0 ||
		cfg.Worker.StageBudgets.TTS <= 0 || cfg.Worker.StageBudgets.Persist <= 0 {
		return fmt.Errorf("worker.stage_budgets entries must all be > 0")
	}
	if cfg.Worker.LockPath == "" {
		return fmt.Errorf("worker.lock_path must be set")
	}
	if cfg.Retention.EpisodesPerUser < 1 {
		return fmt.Errorf("retention.episodes_per_user must be >= 1")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	if len(cfg.Providers.LLM) == 0 {
		return fmt.Errorf("providers.llm must declare at least one candidate")
	}
	if len(cfg.Providers.TTS) == 0 {
		return fmt.Errorf("providers.tts must declare at least one candidate")
	}
	return nil
}
