// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构，每个服务只读取自己关心的部分。
type Config struct {
	App          AppConfig          `yaml:"app"`
	HTTP         HTTPConfig         `yaml:"http"`
	Infra        InfraConfig        `yaml:"infra"`
	Lock         LockConfig         `yaml:"lock"`
	Pool         PoolConfig         `yaml:"pool"`
	Validation   ValidationConfig   `yaml:"validation"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
}

type HTTPConfig struct {
	// RequestTimeout 是每一次跨服务调用的超时时间
	RequestTimeout time.Duration   `yaml:"requestTimeout"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig 的 RPS 为 0 表示不限流
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Kafka     KafkaConfig     `yaml:"kafka"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"` // 格式为 "ip1:port1,ip2:port2"
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

type KafkaConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Brokers         []string `yaml:"brokers"`
	SagaEventsTopic string   `yaml:"sagaEventsTopic"`
	RetryTopic      string   `yaml:"retryTopic"`
	DeadLetterTopic string   `yaml:"deadLetterTopic"`
	ConsumerGroup   string   `yaml:"consumerGroup"`
	MaxRetries      int      `yaml:"maxRetries"`
}

// LockConfig 决定按位置串行化分配时使用的锁实现: local / redis / zookeeper
type LockConfig struct {
	Driver      string        `yaml:"driver"`
	TTL         time.Duration `yaml:"ttl"`
	WaitTimeout time.Duration `yaml:"waitTimeout"`
}

type PoolConfig struct {
	Kind               string         `yaml:"kind"`
	Store              string         `yaml:"store"` // memory / mysql
	MaxConflictRetries int            `yaml:"maxConflictRetries"`
	Seed               []SeedProvider `yaml:"seed"`
}

// SeedProvider 在启动时注册到资源池中，主要用于内存存储的本地运行
type SeedProvider struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	Capacity int    `yaml:"capacity"`
}

type ValidationConfig struct {
	// AdmissionRule 是一个可选的 CEL 表达式，返回 false 的请求被视为非法输入
	AdmissionRule    string `yaml:"admissionRule"`
	HospitalService  string `yaml:"hospitalService"`
	AmbulanceService string `yaml:"ambulanceService"`
}

type OrchestratorConfig struct {
	ValidationService string `yaml:"validationService"`
	HospitalService   string `yaml:"hospitalService"`
	AmbulanceService  string `yaml:"ambulanceService"`
}

var currentConfig atomic.Pointer[Config]

// GetCurrentConfig 返回最近一次加载的配置
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig("", 0)
}

// DefaultConfig 返回不依赖任何外部组件即可运行的默认配置
func DefaultConfig(serviceName string, port int) *Config {
	return &Config{
		App: AppConfig{Name: serviceName, Port: port, LogLevel: "info"},
		HTTP: HTTPConfig{
			RequestTimeout: 5 * time.Second,
		},
		Infra: InfraConfig{
			Nacos: NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
			MySQL: MySQLConfig{Host: "localhost", Port: 3306, User: "root", Database: "emergency"},
			Redis: RedisConfig{Addr: "localhost:6379"},
			Zookeeper: ZookeeperConfig{
				Servers:        []string{"localhost:2181"},
				SessionTimeout: 10 * time.Second,
			},
			Kafka: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				SagaEventsTopic: "emergency.saga.events",
				RetryTopic:      "saga.compensation.retry",
				DeadLetterTopic: "saga.compensation.dlt",
				ConsumerGroup:   "orchestrator-service",
				MaxRetries:      5,
			},
		},
		Lock: LockConfig{Driver: "local", TTL: 10 * time.Second, WaitTimeout: 5 * time.Second},
		Pool: PoolConfig{Store: "memory", MaxConflictRetries: 3},
		Validation: ValidationConfig{
			HospitalService:  "http://localhost:3001",
			AmbulanceService: "http://localhost:3002",
		},
		Orchestrator: OrchestratorConfig{
			ValidationService: "http://localhost:3003",
			HospitalService:   "http://localhost:3001",
			AmbulanceService:  "http://localhost:3002",
		},
	}
}

// LoadConfig 按 默认值 -> YAML 文件 -> 环境变量 的顺序加载配置。
// 文件路径取自 CONFIG_FILE，未设置时尝试 configs/<serviceName>.yaml，不存在则跳过。
func LoadConfig(serviceName string, port int) (*Config, error) {
	cfg := DefaultConfig(serviceName, port)

	path := getEnv("CONFIG_FILE", "configs/"+serviceName+".yaml")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && os.Getenv("CONFIG_FILE") == "":
		// 没有显式指定配置文件时允许缺省
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.App.Name == "" {
		cfg.App.Name = serviceName
	}

	currentConfig.Store(cfg)
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置，变量名与原有部署脚本保持一致
func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.App.Port = port
	}
	if v, ok := os.LookupEnv("REQUEST_TIMEOUT_MS"); ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REQUEST_TIMEOUT_MS %q: %w", v, err)
		}
		cfg.HTTP.RequestTimeout = time.Duration(ms) * time.Millisecond
	}

	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)

	cfg.Infra.Nacos.Enabled = getEnv("NACOS_ENABLED", strconv.FormatBool(cfg.Infra.Nacos.Enabled)) == "true"
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)

	cfg.Infra.MySQL.Host = getEnv("MYSQL_HOST", cfg.Infra.MySQL.Host)
	cfg.Infra.MySQL.User = getEnv("MYSQL_USER", cfg.Infra.MySQL.User)
	cfg.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.MySQL.Password)
	cfg.Infra.MySQL.Database = getEnv("MYSQL_DATABASE", cfg.Infra.MySQL.Database)

	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
		cfg.Infra.Kafka.Enabled = true
	}

	cfg.Lock.Driver = getEnv("LOCK_DRIVER", cfg.Lock.Driver)
	cfg.Pool.Store = getEnv("POOL_STORE", cfg.Pool.Store)

	cfg.Validation.HospitalService = getEnv("HOSPITAL_SERVICE_URL", cfg.Validation.HospitalService)
	cfg.Validation.AmbulanceService = getEnv("AMBULANCE_SERVICE_URL", cfg.Validation.AmbulanceService)
	cfg.Orchestrator.HospitalService = getEnv("HOSPITAL_SERVICE_URL", cfg.Orchestrator.HospitalService)
	cfg.Orchestrator.AmbulanceService = getEnv("AMBULANCE_SERVICE_URL", cfg.Orchestrator.AmbulanceService)
	cfg.Orchestrator.ValidationService = getEnv("VALIDATION_SERVICE_URL", cfg.Orchestrator.ValidationService)
	return nil
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
