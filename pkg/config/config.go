package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Signal struct {
		URL            string        `yaml:"url"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		Reconnect      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"reconnect"`
	} `yaml:"signal"`

	Admission struct {
		SettleDelay     time.Duration `yaml:"settle_delay"`
		AttemptsPerMin  int           `yaml:"attempts_per_minute"`
		AttemptBurst    int           `yaml:"attempt_burst"`
		SessionTokenTTL time.Duration `yaml:"session_token_ttl"`
	} `yaml:"admission"`

	Media struct {
		Facing     string `yaml:"facing"`
		Quality    string `yaml:"quality"`
		MicEnabled bool   `yaml:"mic_enabled"`
	} `yaml:"media"`

	Analyzer struct {
		Enabled       bool   `yaml:"enabled"`
		Sensitivity   string `yaml:"sensitivity"`
		Notifications bool   `yaml:"notifications"`
	} `yaml:"analyzer"`

	Watchdog struct {
		SampleInterval time.Duration `yaml:"sample_interval"`
	} `yaml:"watchdog"`

	HTTP struct {
		Enabled           bool    `yaml:"enabled"`
		Address           string  `yaml:"address"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"http"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Backup struct {
		Enabled  bool          `yaml:"enabled"`
		Dir      string        `yaml:"dir"`
		Interval time.Duration `yaml:"interval"`
		Keep     int           `yaml:"keep"`
	} `yaml:"backup"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Signal.URL == "" {
		return fmt.Errorf("signal.url must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.ConnectTimeout <= 0 {
		return fmt.Errorf("signal.connect_timeout must be > 0")
	}
	if c.Signal.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("signal.reconnect.max_attempts must be >= 0")
	}

	if c.Admission.SettleDelay < 0 {
		return fmt.Errorf("admission.settle_delay must be >= 0")
	}
	if c.Admission.AttemptsPerMin <= 0 {
		return fmt.Errorf("admission.attempts_per_minute must be > 0")
	}
	if c.Admission.AttemptBurst <= 0 {
		return fmt.Errorf("admission.attempt_burst must be > 0")
	}
	if c.Admission.SessionTokenTTL <= 0 {
		return fmt.Errorf("admission.session_token_ttl must be > 0")
	}

	switch c.Media.Facing {
	case "front", "back":
	default:
		return fmt.Errorf("media.facing must be front or back")
	}
	switch c.Media.Quality {
	case "high", "medium", "low":
	default:
		return fmt.Errorf("media.quality must be high, medium or low")
	}

	switch c.Analyzer.Sensitivity {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("analyzer.sensitivity must be low, medium or high")
	}

	if c.Watchdog.SampleInterval <= 0 {
		return fmt.Errorf("watchdog.sample_interval must be > 0")
	}

	if c.HTTP.Enabled {
		if c.HTTP.Address == "" {
			return fmt.Errorf("http.address must not be empty when http.enabled=true")
		}
		if c.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("http.requests_per_second must be > 0")
		}
		if c.HTTP.Burst <= 0 {
			return fmt.Errorf("http.burst must be > 0")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Backup.Enabled {
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.Keep <= 0 {
			return fmt.Errorf("backup.keep must be > 0 when backup.enabled=true")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Must match the path cmd/rendezvous registers for its websocket.
	cfg.Signal.URL = "ws://localhost:8443/ws"
	cfg.Signal.PingInterval = 5 * time.Second
	cfg.Signal.PongTimeout = 15 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.ConnectTimeout = 10 * time.Second
	cfg.Signal.Reconnect.MaxAttempts = 5
	cfg.Signal.Reconnect.InitialDelay = 500 * time.Millisecond
	cfg.Signal.Reconnect.MaxDelay = 10 * time.Second

	cfg.Admission.SettleDelay = 500 * time.Millisecond
	cfg.Admission.AttemptsPerMin = 12
	cfg.Admission.AttemptBurst = 4
	cfg.Admission.SessionTokenTTL = 12 * time.Hour

	cfg.Media.Facing = "back"
	cfg.Media.Quality = "medium"
	cfg.Media.MicEnabled = true

	cfg.Analyzer.Enabled = true
	cfg.Analyzer.Sensitivity = "medium"
	cfg.Analyzer.Notifications = true

	cfg.Watchdog.SampleInterval = 3 * time.Second

	cfg.HTTP.Enabled = true
	cfg.HTTP.Address = ":8088"
	cfg.HTTP.RequestsPerSecond = 20
	cfg.HTTP.Burst = 40

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Backup.Enabled = false
	cfg.Backup.Dir = "backups"
	cfg.Backup.Interval = 6 * time.Hour
	cfg.Backup.Keep = 5

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("NIDO_SIGNAL_URL"); url != "" {
		c.Signal.URL = url
	}
	if addr := os.Getenv("NIDO_HTTP_ADDRESS"); addr != "" {
		c.HTTP.Address = addr
	}
	if level := os.Getenv("NIDO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("NIDO_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}
