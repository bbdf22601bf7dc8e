package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"

	TransportLocal = "local"
	TransportRedis = "redis"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Address         string        `yaml:"address"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		SendBuffer      int           `yaml:"send_buffer"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"signal"`

	Sync struct {
		PushInterval     time.Duration `yaml:"push_interval"`
		DriftThreshold   time.Duration `yaml:"drift_threshold"`
		ReactionTTL      time.Duration `yaml:"reaction_ttl"`
		TickInterval     time.Duration `yaml:"tick_interval"`
		HistoryLimit     int           `yaml:"history_limit"`
		SyncOnJoin       bool          `yaml:"sync_on_join"`
		OperationTimeout time.Duration `yaml:"operation_timeout"`
		InboxSize        int           `yaml:"inbox_size"`
	} `yaml:"sync"`

	Chat struct {
		MaxMessageLength  int     `yaml:"max_message_length"`
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"chat"`

	Storage struct {
		Backend string `yaml:"backend"`
	} `yaml:"storage"`

	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"postgres"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Transport struct {
		Backend    string `yaml:"backend"`
		InstanceID string `yaml:"instance_id"`
		QueueSize  int    `yaml:"queue_size"`
	} `yaml:"transport"`

	Profiles struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
		Retry    struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`
		CircuitBreaker struct {
			FailureThreshold int           `yaml:"failure_threshold"`
			SuccessThreshold int           `yaml:"success_threshold"`
			Timeout          time.Duration `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"profiles"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxConcurrent       int     `yaml:"max_concurrent_connections"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.Address == "" {
		return fmt.Errorf("signal.address must not be empty")
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
	if c.Signal.SendBuffer <= 0 {
		return fmt.Errorf("signal.send_buffer must be > 0")
	}

	// Sync
	if c.Sync.PushInterval <= 0 {
		return fmt.Errorf("sync.push_interval must be > 0")
	}
	if c.Sync.DriftThreshold <= 0 {
		return fmt.Errorf("sync.drift_threshold must be > 0")
	}
	if c.Sync.ReactionTTL <= 0 {
		return fmt.Errorf("sync.reaction_ttl must be > 0")
	}
	if c.Sync.TickInterval < 0 {
		return fmt.Errorf("sync.tick_interval must be >= 0")
	}
	if c.Sync.HistoryLimit < 0 {
		return fmt.Errorf("sync.history_limit must be >= 0")
	}
	if c.Sync.OperationTimeout <= 0 {
		return fmt.Errorf("sync.operation_timeout must be > 0")
	}
	if c.Sync.InboxSize <= 0 {
		return fmt.Errorf("sync.inbox_size must be > 0")
	}

	// Chat
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("chat.max_message_length must be > 0")
	}
	if c.Chat.MessagesPerSecond < 0 {
		return fmt.Errorf("chat.messages_per_second must be >= 0")
	}
	if c.Chat.MessagesPerSecond > 0 && c.Chat.Burst <= 0 {
		return fmt.Errorf("chat.burst must be > 0 when chat.messages_per_second is set")
	}

	// Storage
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("storage.backend=redis requires redis.enabled=true")
		}
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn must not be empty when storage.backend=postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, redis, postgres")
	}

	// Transport
	switch c.Transport.Backend {
	case TransportLocal:
	case TransportRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("transport.backend=redis requires redis.enabled=true")
		}
	default:
		return fmt.Errorf("transport.backend must be one of local, redis")
	}
	if c.Transport.QueueSize <= 0 {
		return fmt.Errorf("transport.queue_size must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Profiles
	if c.Profiles.CacheTTL < 0 {
		return fmt.Errorf("profiles.cache_ttl must be >= 0")
	}
	if c.Profiles.Retry.MaxAttempts < 0 {
		return fmt.Errorf("profiles.retry.max_attempts must be >= 0")
	}
	if c.Profiles.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("profiles.circuit_breaker.failure_threshold must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// A .env file next to the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
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

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.Address = ":8081"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendBuffer = 64
	cfg.Signal.ShutdownTimeout = 30 * time.Second
	cfg.Signal.AllowedOrigins = []string{"*"}

	cfg.Sync.PushInterval = 5 * time.Second
	cfg.Sync.DriftThreshold = 3 * time.Second
	cfg.Sync.ReactionTTL = 3 * time.Second
	cfg.Sync.TickInterval = 250 * time.Millisecond
	cfg.Sync.HistoryLimit = 0
	cfg.Sync.SyncOnJoin = true
	cfg.Sync.OperationTimeout = 5 * time.Second
	cfg.Sync.InboxSize = 256

	cfg.Chat.MaxMessageLength = 1000
	cfg.Chat.MessagesPerSecond = 2
	cfg.Chat.Burst = 5

	cfg.Storage.Backend = StorageMemory

	cfg.Postgres.MaxConns = 10
	cfg.Postgres.Migrate = true

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Transport.Backend = TransportLocal
	cfg.Transport.QueueSize = 256

	cfg.Profiles.CacheTTL = 5 * time.Minute
	cfg.Profiles.Retry.MaxAttempts = 2
	cfg.Profiles.Retry.InitialDelay = 50 * time.Millisecond
	cfg.Profiles.Retry.MaxDelay = 500 * time.Millisecond
	cfg.Profiles.CircuitBreaker.FailureThreshold = 5
	cfg.Profiles.CircuitBreaker.SuccessThreshold = 2
	cfg.Profiles.CircuitBreaker.Timeout = 30 * time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "watchparty"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 16 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("WATCHPARTY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("WATCHPARTY_SIGNAL_ADDRESS"); addr != "" {
		c.Signal.Address = addr
	}
	if level := os.Getenv("WATCHPARTY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if backend := os.Getenv("WATCHPARTY_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if backend := os.Getenv("WATCHPARTY_TRANSPORT_BACKEND"); backend != "" {
		c.Transport.Backend = backend
	}
	if dsn := os.Getenv("WATCHPARTY_POSTGRES_DSN"); dsn != "" {
		c.Postgres.DSN = dsn
	}
	if addr := os.Getenv("WATCHPARTY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if pw := os.Getenv("WATCHPARTY_REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if id := os.Getenv("WATCHPARTY_INSTANCE_ID"); id != "" {
		c.Transport.InstanceID = id
	}
	if v := os.Getenv("WATCHPARTY_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
}
