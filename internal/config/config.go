package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации движка воспроизведения.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	API       APIConfig       `yaml:"api"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Хранилища слотов кеша
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type CacheConfig struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"` // для file; пусто - рядом с записью
	BadgerPath string `yaml:"badger_path"`
	Redis      struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTLHours int    `yaml:"ttl_hours"`
	} `yaml:"redis"`
	ChunkSize int `yaml:"chunk_size"`
}

type ProtocolConfig struct {
	Version int32 `yaml:"version"` // 0 - из метаданных записи
}

type MetricsConfig struct {
	Port int `yaml:"port"`
}

type APIConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто - шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	cfg := &Config{}
	cfg.Logging.Level = "info"
	cfg.Cache.Backend = BackendFile
	cfg.EventBus.Stream = "REPLAY"
	cfg.EventBus.Retention = 24
	cfg.Telemetry.ServiceName = "replay-engine"
	return cfg
}

// GetBackend возвращает хранилище кеша: config -> REPLAY_CACHE_BACKEND -> file
func (c *CacheConfig) GetBackend() string {
	if c.Backend != "" {
		return c.Backend
	}
	if env := os.Getenv("REPLAY_CACHE_BACKEND"); env != "" {
		return env
	}
	return BackendFile
}

// GetRedisAddr возвращает адрес Redis с поддержкой fallback значений
func (c *CacheConfig) GetRedisAddr() string {
	if c.Redis.Addr != "" {
		return c.Redis.Addr
	}
	if env := os.Getenv("REPLAY_REDIS_ADDR"); env != "" {
		return env
	}
	return "localhost:6379"
}

// GetRedisTTL возвращает время жизни кеша в Redis
func (c *CacheConfig) GetRedisTTL() time.Duration {
	if c.Redis.TTLHours > 0 {
		return time.Duration(c.Redis.TTLHours) * time.Hour
	}
	return 24 * time.Hour
}

// GetRetention возвращает время хранения событий в JetStream
func (e *EventBusConfig) GetRetention() time.Duration {
	return time.Duration(e.Retention) * time.Hour
}

// GetMetricsPort возвращает порт Prometheus метрик с поддержкой fallback значений
func (m *MetricsConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(m.Port, "REPLAY_METRICS_PORT", 2112)
}

// GetPort возвращает порт REST API с поддержкой fallback значений
func (a *APIConfig) GetPort() int {
	return getPortWithEnvFallback(a.Port, "REPLAY_API_PORT", 8088)
}

// GetJWTSecret возвращает секрет подписи токенов: config -> REPLAY_JWT_SECRET
func (a *APIConfig) GetJWTSecret() string {
	if a.JWTSecret != "" {
		return a.JWTSecret
	}
	return os.Getenv("REPLAY_JWT_SECRET")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", берётся ENV REPLAY_CONFIG; если и он пуст - только значения по умолчанию.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("REPLAY_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать конфигурацию %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("не удалось разобрать конфигурацию %s: %w", path, err)
	}
	return cfg, nil
}
