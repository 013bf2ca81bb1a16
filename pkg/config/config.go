package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/sitegate/pkg/ipallow"
)

// AllowlistEnv is the single variable holding the admin IP allowlist.
const AllowlistEnv = "ADMIN_IP_ALLOWLIST"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Events    EventsConfig    `yaml:"events"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`

	// AdminAllowlist is only populated from AllowlistEnv.
	AdminAllowlist []string `yaml:"-"`
}

type ServerConfig struct {
	Listen         string `yaml:"listen"`
	Environment    string `yaml:"environment"`
	AdminLoginPath string `yaml:"admin_login_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RateLimitConfig struct {
	Backend        string      `yaml:"backend"`
	SweepIntervalS int         `yaml:"sweep_interval_s"`
	Redis          RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type AuthConfig struct {
	FloorMs    int `yaml:"floor_ms"`
	BcryptCost int `yaml:"bcrypt_cost"`
}

type EventsConfig struct {
	WriteTimeoutMs int `yaml:"write_timeout_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	Insecure    bool    `yaml:"insecure" json:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`
	LogSpans    bool    `yaml:"log_spans" json:"log_spans"`
}

// DefaultConfig returns a config with development defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:         ":8080",
			Environment:    "development",
			AdminLoginPath: "/admin/login",
		},
		Database: DatabaseConfig{
			Path: "sitegate.db",
		},
		RateLimit: RateLimitConfig{
			Backend:        "memory",
			SweepIntervalS: 60,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "sitegate:ratelimit",
			},
		},
		Auth: AuthConfig{
			FloorMs:    200,
			BcryptCost: 10,
		},
		Events: EventsConfig{
			WriteTimeoutMs: 2000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Load reads config from an optional YAML file, then a .env file, then env vars
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	_ = godotenv.Load()

	if env := os.Getenv("SITEGATE_ENV"); env != "" {
		cfg.Server.Environment = env
	}
	if listen := os.Getenv("SITEGATE_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if db := os.Getenv("SITEGATE_DB"); db != "" {
		cfg.Database.Path = db
	}
	if level := os.Getenv("SITEGATE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := os.Getenv("SITEGATE_REDIS_ADDR"); addr != "" {
		cfg.RateLimit.Backend = "redis"
		cfg.RateLimit.Redis.Addr = addr
	}
	if password := os.Getenv("SITEGATE_REDIS_PASSWORD"); password != "" {
		cfg.RateLimit.Redis.Password = password
	}
	if floor := os.Getenv("SITEGATE_AUTH_FLOOR_MS"); floor != "" {
		ms, err := strconv.Atoi(floor)
		if err != nil {
			return nil, &Error{"SITEGATE_AUTH_FLOOR_MS must be an integer"}
		}
		cfg.Auth.FloorMs = ms
	}
	cfg.AdminAllowlist = ipallow.ParseAllowlist(os.Getenv(AllowlistEnv))

	return cfg, nil
}

func (c *Config) Production() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func (c *Config) AuthFloor() time.Duration {
	return time.Duration(c.Auth.FloorMs) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.RateLimit.SweepIntervalS) * time.Second
}

func (c *Config) EventWriteTimeout() time.Duration {
	return time.Duration(c.Events.WriteTimeoutMs) * time.Millisecond
}

func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return ErrMissingListen
	}
	if c.Database.Path == "" {
		return ErrMissingDatabase
	}
	switch c.RateLimit.Backend {
	case "", "memory":
		c.RateLimit.Backend = "memory"
	case "redis":
		if c.RateLimit.Redis.Addr == "" {
			return &Error{"redis backend requires rate_limit.redis.addr"}
		}
	default:
		return &Error{"rate_limit.backend must be memory or redis"}
	}
	if !strings.HasPrefix(c.Server.AdminLoginPath, "/") {
		c.Server.AdminLoginPath = "/admin/login"
	}
	if c.RateLimit.SweepIntervalS <= 0 {
		c.RateLimit.SweepIntervalS = 60
	}
	// a zero floor would disable latency padding, so it is treated as unset
	if c.Auth.FloorMs <= 0 {
		c.Auth.FloorMs = 200
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		c.Auth.BcryptCost = 10
	}
	if c.Events.WriteTimeoutMs <= 0 {
		c.Events.WriteTimeoutMs = 2000
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

var (
	ErrMissingListen   = &Error{"server listen address is required"}
	ErrMissingDatabase = &Error{"database path is required"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
