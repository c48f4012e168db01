package config

import "time"

type ServerConfig struct {
	Host string `yaml:"host"`
	// HTTPPort defaults to 3000.
	HTTPPort int `yaml:"http_port"`
	// BaseURL is the public origin used to build OAuth redirect URLs. When
	// empty the request origin is used.
	BaseURL           string        `yaml:"base_url"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig configures the durable output channel. An empty URL disables
// resumable streaming.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	StreamTTL    time.Duration `yaml:"stream_ttl"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 3000
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Driver == "" {
		cfg.Driver = "memory"
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
}

func applyRedisDefaults(cfg *RedisConfig) {
	if cfg.StreamTTL == 0 {
		cfg.StreamTTL = 24 * time.Hour
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
}
