package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	APIKey         string   `mapstructure:"api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimit      int      `mapstructure:"rate_limit"`
	RateBurst      int      `mapstructure:"rate_burst"`
}

// DatabaseConfig holds persistence settings
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// SyncConfig tunes the IMAP connection manager
type SyncConfig struct {
	// IdleRefresh bounds a single IDLE wait; the worker reissues the wait
	// before servers are allowed to drop it (30 minutes per RFC 2177).
	IdleRefresh    time.Duration `mapstructure:"idle_refresh"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap"`
	FetchBatchSize int           `mapstructure:"fetch_batch_size"`
}

// PipelineConfig tunes the enrichment pipeline
type PipelineConfig struct {
	QueueSize       int           `mapstructure:"queue_size"`
	Workers         int           `mapstructure:"workers"`
	ClassifyWorkers int           `mapstructure:"classify_workers"`
	IndexWorkers    int           `mapstructure:"index_workers"`
	NotifyWorkers   int           `mapstructure:"notify_workers"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// ClassifierConfig holds categorization model settings
type ClassifierConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	MaxBodySize int           `mapstructure:"max_body_size"`
}

// SearchConfig holds search index settings
type SearchConfig struct {
	Addresses  []string      `mapstructure:"addresses"`
	Index      string        `mapstructure:"index"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// VectorConfig holds vector store and embedding settings
type VectorConfig struct {
	Path           string `mapstructure:"path"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// GenerationConfig holds reply generation settings
type GenerationConfig struct {
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetrievalTop int           `mapstructure:"retrieval_top"`
}

// WebhookConfig describes one generic webhook notification endpoint
type WebhookConfig struct {
	Name   string `mapstructure:"name"`
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// NotifyConfig tunes the notification dispatcher
type NotifyConfig struct {
	// ActionableLabels is the label set that triggers notifications.
	ActionableLabels []string        `mapstructure:"actionable_labels"`
	MinConfidence    float64         `mapstructure:"min_confidence"`
	SlackWebhookURL  string          `mapstructure:"slack_webhook_url"`
	Webhooks         []WebhookConfig `mapstructure:"webhooks"`
	MaxAttempts      int             `mapstructure:"max_attempts"`
	BackoffBase      time.Duration   `mapstructure:"backoff_base"`
	Timeout          time.Duration   `mapstructure:"timeout"`
}

// ArchiveConfig holds the raw message archive location
type ArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the root configuration for the service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Search     SearchConfig     `mapstructure:"search"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Generation GenerationConfig `mapstructure:"generation"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Log        LogConfig        `mapstructure:"log"`
}

// Load reads configuration from an optional YAML file plus environment
// variables. Environment variables win and use the LEADBOX_ prefix with
// underscores, e.g. LEADBOX_DATABASE_URL, LEADBOX_CLASSIFIER_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("leadbox")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		// A missing default config file is fine; env vars may be enough.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("database.url", "leadbox.db")

	v.SetDefault("sync.idle_refresh", "25m")
	v.SetDefault("sync.backoff_base", "1s")
	v.SetDefault("sync.backoff_cap", "60s")
	v.SetDefault("sync.fetch_batch_size", 50)

	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.classify_workers", 4)
	v.SetDefault("pipeline.index_workers", 4)
	v.SetDefault("pipeline.notify_workers", 2)
	v.SetDefault("pipeline.sweep_interval", "5m")

	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.timeout", "20s")
	v.SetDefault("classifier.max_retries", 3)
	v.SetDefault("classifier.max_body_size", 4000)

	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.index", "emails")
	v.SetDefault("search.timeout", "10s")
	v.SetDefault("search.max_retries", 3)

	v.SetDefault("vector.path", "data/vectors")
	v.SetDefault("vector.embedding_model", "text-embedding-3-small")

	v.SetDefault("generation.model", "gpt-4o")
	v.SetDefault("generation.timeout", "30s")
	v.SetDefault("generation.retrieval_top", 3)

	v.SetDefault("notify.actionable_labels", []string{"interested"})
	v.SetDefault("notify.min_confidence", 0.0)
	v.SetDefault("notify.max_attempts", 5)
	v.SetDefault("notify.backoff_base", "2s")
	v.SetDefault("notify.timeout", "10s")

	v.SetDefault("archive.dir", "data/raw")

	v.SetDefault("log.level", "info")
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffCap < c.Sync.BackoffBase {
		return fmt.Errorf("sync backoff bounds are invalid: base=%s cap=%s", c.Sync.BackoffBase, c.Sync.BackoffCap)
	}
	if c.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline.queue_size must be positive")
	}
	if c.Pipeline.Workers <= 0 || c.Pipeline.ClassifyWorkers <= 0 || c.Pipeline.IndexWorkers <= 0 || c.Pipeline.NotifyWorkers <= 0 {
		return fmt.Errorf("pipeline worker counts must be positive")
	}
	if c.Notify.MaxAttempts <= 0 {
		return fmt.Errorf("notify.max_attempts must be positive")
	}
	if len(c.Search.Addresses) == 0 {
		return fmt.Errorf("search.addresses must not be empty")
	}
	for _, w := range c.Notify.Webhooks {
		if w.Name == "" || w.URL == "" {
			return fmt.Errorf("notify.webhooks entries require name and url")
		}
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
