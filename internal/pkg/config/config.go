// internal/pkg/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ExpiryBackendTimer = "timer"
	ExpiryBackendRedis = "redis"
)

// Config 是 inventory-service 的完整配置
type Config struct {
	App   AppConfig     `yaml:"app"`
	Log   LogConfig     `yaml:"log"`
	Infra InfraConfig   `yaml:"infra"`
	Seed  []ProductSeed `yaml:"seedProducts"`
}

type AppConfig struct {
	ServiceName      string        `yaml:"serviceName"`
	Port             int           `yaml:"port"`
	ExpiryDelay      time.Duration `yaml:"expiryDelay"`
	ExpiryBackend    string        `yaml:"expiryBackend"`
	StrictInvariants bool          `yaml:"strictInvariants"`
	AdmissionPolicy  string        `yaml:"admissionPolicy"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type InfraConfig struct {
	Jaeger JaegerConfig `yaml:"jaeger"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Redis  RedisConfig  `yaml:"redis"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	EventTopic string   `yaml:"eventTopic"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DelayKey     string        `yaml:"delayKey"`
	PollInterval time.Duration `yaml:"pollInterval"`
	BatchSize    int           `yaml:"batchSize"`
}

// ProductSeed 启动时注册到账本的商品
type ProductSeed struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

// Default 返回默认配置，过期时间与原有库存系统一致为 5 分钟
func Default() *Config {
	return &Config{
		App: AppConfig{
			ServiceName:   "inventory-service",
			Port:          8080,
			ExpiryDelay:   5 * time.Minute,
			ExpiryBackend: ExpiryBackendTimer,
		},
		Log: LogConfig{Level: "info"},
		Infra: InfraConfig{
			Kafka: KafkaConfig{EventTopic: "inventory.order-events"},
			Redis: RedisConfig{
				DelayKey:     "inventory:order-expiry",
				PollInterval: time.Second,
				BatchSize:    100,
			},
		},
	}
}

// Load 读取 YAML 文件 (path 为空则跳过)，再用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.App.ServiceName = getEnv("SERVICE_NAME", c.App.ServiceName)
	c.App.ExpiryBackend = getEnv("EXPIRY_BACKEND", c.App.ExpiryBackend)
	c.App.AdmissionPolicy = getEnv("ADMISSION_POLICY", c.App.AdmissionPolicy)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.Kafka.EventTopic = getEnv("KAFKA_EVENT_TOPIC", c.Infra.Kafka.EventTopic)
	c.Infra.Redis.Addr = getEnv("REDIS_ADDR", c.Infra.Redis.Addr)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Infra.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if port := getEnv("HTTP_PORT", ""); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return errors.Wrapf(err, "invalid HTTP_PORT %q", port)
		}
		c.App.Port = p
	}
	if delay := getEnv("EXPIRY_DELAY", ""); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return errors.Wrapf(err, "invalid EXPIRY_DELAY %q", delay)
		}
		c.App.ExpiryDelay = d
	}
	if strict := getEnv("STRICT_INVARIANTS", ""); strict != "" {
		b, err := strconv.ParseBool(strict)
		if err != nil {
			return errors.Wrapf(err, "invalid STRICT_INVARIANTS %q", strict)
		}
		c.App.StrictInvariants = b
	}
	return nil
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	if c.App.ExpiryDelay <= 0 {
		return errors.Errorf("expiryDelay must be positive, got %s", c.App.ExpiryDelay)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return errors.Errorf("port out of range: %d", c.App.Port)
	}
	switch c.App.ExpiryBackend {
	case ExpiryBackendTimer:
	case ExpiryBackendRedis:
		if c.Infra.Redis.Addr == "" {
			return errors.New("expiryBackend redis requires infra.redis.addr")
		}
		if c.Infra.Redis.PollInterval <= 0 {
			return errors.Errorf("redis pollInterval must be positive, got %s", c.Infra.Redis.PollInterval)
		}
	default:
		return errors.Errorf("unknown expiryBackend %q", c.App.ExpiryBackend)
	}

	seen := make(map[string]struct{}, len(c.Seed))
	for _, p := range c.Seed {
		if p.ID == "" || p.Count < 0 {
			return errors.Errorf("invalid seed product %+v", p)
		}
		if _, dup := seen[p.ID]; dup {
			return errors.Errorf("seed product %s listed twice", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// getEnv 从环境变量中读取配置
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
