package config

import (
	"fmt"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/inkwell/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cron      CronConfig      `yaml:"cron"`
	RunLog    RunLogConfig    `yaml:"run_log"`
	Generator GeneratorConfig `yaml:"generator"`
	Image     ImageConfig     `yaml:"image"`
	Publisher PublisherConfig `yaml:"publisher"`
}

type ServerConfig struct {
	Port            int    `yaml:"port"`
	Host            string `yaml:"host"`
	Mode            string `yaml:"mode"`
	CertFile        string `yaml:"cert_file"`
	KeyFile         string `yaml:"key_file"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	// Path is the database file when Type is sqlite.
	Path string `yaml:"path"`
}

// SchedulerConfig drives the in-process trigger. The HTTP endpoint works
// regardless of this setting.
type SchedulerConfig struct {
	Cron    string `yaml:"cron"`
	Enabled bool   `yaml:"enabled"`
}

type CronConfig struct {
	Secret string `yaml:"secret"`
	// MaxDuration caps the wall clock of one invocation including its
	// detached background work.
	MaxDuration string `yaml:"max_duration"`
}

type RunLogConfig struct {
	Retention int `yaml:"retention"`
}

type GeneratorConfig struct {
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
	Timeout      string `yaml:"timeout"`
}

type ImageConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Size     string `yaml:"size"`
	Timeout  string `yaml:"timeout"`
}

type PublisherConfig struct {
	WordPress WordPressConfig `yaml:"wordpress"`
}

type WordPressConfig struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.ShutdownTimeout == "" {
		cfg.Server.ShutdownTimeout = "30s"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "inkwell.db"
	}
	if cfg.Scheduler.Cron == "" {
		cfg.Scheduler.Cron = "0 * * * *"
	}
	if cfg.Cron.MaxDuration == "" {
		cfg.Cron.MaxDuration = "300s"
	}
	if cfg.RunLog.Retention == 0 {
		cfg.RunLog.Retention = 50
	}
	if cfg.Generator.Endpoint == "" {
		cfg.Generator.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-4o-mini"
	}
	if cfg.Generator.Timeout == "" {
		cfg.Generator.Timeout = "120s"
	}
	if cfg.Image.Endpoint == "" {
		cfg.Image.Endpoint = "https://api.openai.com/v1/images/generations"
	}
	if cfg.Image.Model == "" {
		cfg.Image.Model = "gpt-image-1"
	}
	if cfg.Image.Size == "" {
		cfg.Image.Size = "1024x1024"
	}
	if cfg.Image.Timeout == "" {
		cfg.Image.Timeout = "120s"
	}
	if cfg.Publisher.WordPress.Timeout == "" {
		cfg.Publisher.WordPress.Timeout = "60s"
	}
}

// Validate checks that all duration fields parse.
func (c *Config) Validate() error {
	durations := map[string]string{
		"server.shutdown_timeout":     c.Server.ShutdownTimeout,
		"cron.max_duration":           c.Cron.MaxDuration,
		"generator.timeout":           c.Generator.Timeout,
		"image.timeout":               c.Image.Timeout,
		"publisher.wordpress.timeout": c.Publisher.WordPress.Timeout,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}
	if c.RunLog.Retention < 0 {
		return fmt.Errorf("run_log.retention must not be negative, got %d", c.RunLog.Retention)
	}
	return nil
}

// Duration parses a validated duration field, falling back to def.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
