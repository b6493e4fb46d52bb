package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address        string `yaml:"address"`        // MongoDB 连接 URI
	Username       string `yaml:"username"`       // 用户名
	Password       string `yaml:"password"`       // 密码
	Database       string `yaml:"database"`       // 数据库名称
	ConnectTimeout string `yaml:"connectTimeout"` // 连接超时 (例如: "10s")
	MaxPoolSize    uint64 `yaml:"maxPoolSize"`    // 连接池最大连接数
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topics  []string `yaml:"topics"`  // 启动时需要确保存在的主题列表
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	MongoDB MongoConfig `yaml:"mongodb"` // 实体存储
	Redis   RedisConfig `yaml:"redis"`   // 延迟工作队列 (queue.driver 为 "redis" 时使用)
	Kafka   KafkaConfig `yaml:"kafka"`   // 工作队列与任务事件
}

// QueueConfig 定义了任务分发所使用的工作队列。
type QueueConfig struct {
	Driver        string `yaml:"driver"`        // "kafka" 或 "redis"
	Topic         string `yaml:"topic"`         // Kafka 主题 / Redis 键前缀
	DeliveryDelay string `yaml:"deliveryDelay"` // 消息对 worker 可见前的固定延迟 (例如: "1s")
	PollInterval  string `yaml:"pollInterval"`  // Redis 队列轮询间隔
}

// TaskServiceConfig 是 API 服务的配置。
type TaskServiceConfig struct {
	ServerAddress   string `yaml:"serverAddress"`   // HTTP 监听地址
	EventsTopic     string `yaml:"eventsTopic"`     // 订阅的任务事件主题
	EventsGroupID   string `yaml:"eventsGroupID"`   // 任务事件消费组
	DefaultPageSize int    `yaml:"defaultPageSize"` // 列表接口默认分页大小
	RequestTimeout  string `yaml:"requestTimeout"`  // 单个请求访问存储的超时
	ShutdownTimeout string `yaml:"shutdownTimeout"` // 优雅关闭超时
}

// TaskWorkerConfig 是 worker 进程的配置。
type TaskWorkerConfig struct {
	GroupID         string `yaml:"groupID"`         // 工作队列消费组
	EventsTopic     string `yaml:"eventsTopic"`     // 发布任务事件的主题
	ComputeEndpoint string `yaml:"computeEndpoint"` // 算法服务地址
	TaskTimeout     string `yaml:"taskTimeout"`     // 单个任务的最长执行时间
	Concurrency     int    `yaml:"concurrency"`     // 同时处理的任务数
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AuthConfig 用于配置 JWT 认证。
type AuthConfig struct {
	JwtSecret string `yaml:"jwtSecret"` // JWT HMAC 密钥
	Issuer    string `yaml:"issuer"`    // 期望的签发者，为空时不校验
}

// RateLimiterConfig 定义了按用户的令牌桶限流配置。
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"`     // 每秒补充的令牌数
	Capacity int     `yaml:"capacity"` // 桶容量
}

// CircuitBreakerConfig 定义了调用算法服务时的熔断器配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig 是整个 YAML 文件的根结构。
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Logger      LoggerConfig      `yaml:"logger"`
	Auth        AuthConfig        `yaml:"auth"`
	Databases   DatabaseConfigs   `yaml:"databases"`
	Queue       QueueConfig       `yaml:"queue"`
	TaskService TaskServiceConfig `yaml:"taskService"`
	TaskWorker  TaskWorkerConfig  `yaml:"taskWorker"`
	Middleware  MiddlewareConfig  `yaml:"middleware"`
}

// LoadConfig 从指定路径加载并解析 YAML 配置文件，并补齐默认值。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse 解析 YAML 内容，补齐默认值并校验。
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults 为未配置的字段填充默认值。
func (c *AppConfig) ApplyDefaults() {
	setDefault(&c.Logger.Level, "info")
	setDefault(&c.Databases.MongoDB.Address, "mongodb://localhost:27017")
	setDefault(&c.Databases.MongoDB.Database, "jaqpot")
	setDefault(&c.Databases.MongoDB.ConnectTimeout, "10s")
	setDefault(&c.Databases.Redis.Address, "localhost:6379")
	if len(c.Databases.Kafka.Brokers) == 0 {
		c.Databases.Kafka.Brokers = []string{"localhost:9092"}
	}
	setDefault(&c.Queue.Driver, "kafka")
	setDefault(&c.Queue.Topic, "jaqpot-work")
	setDefault(&c.Queue.DeliveryDelay, "1s")
	setDefault(&c.Queue.PollInterval, "200ms")
	setDefault(&c.TaskService.ServerAddress, ":8080")
	setDefault(&c.TaskService.EventsTopic, "jaqpot-task-events")
	setDefault(&c.TaskService.EventsGroupID, "jaqpot-task-service")
	setDefault(&c.TaskService.RequestTimeout, "5s")
	setDefault(&c.TaskService.ShutdownTimeout, "5s")
	if c.TaskService.DefaultPageSize <= 0 {
		c.TaskService.DefaultPageSize = 10
	}
	setDefault(&c.TaskWorker.GroupID, "jaqpot-task-worker")
	setDefault(&c.TaskWorker.EventsTopic, c.TaskService.EventsTopic)
	setDefault(&c.TaskWorker.TaskTimeout, "30m")
	if c.TaskWorker.Concurrency <= 0 {
		c.TaskWorker.Concurrency = 1
	}
	setDefault(&c.Middleware.CircuitBreaker.Timeout, "30s")
	if c.Middleware.CircuitBreaker.FailureThreshold == 0 {
		c.Middleware.CircuitBreaker.FailureThreshold = 5
	}
	if c.Middleware.CircuitBreaker.SuccessThreshold == 0 {
		c.Middleware.CircuitBreaker.SuccessThreshold = 1
	}
	if len(c.Databases.Kafka.Topics) == 0 {
		c.Databases.Kafka.Topics = []string{c.Queue.Topic, c.TaskService.EventsTopic}
	}
}

// Validate 检查配置之间的约束。
func (c *AppConfig) Validate() error {
	switch c.Queue.Driver {
	case "kafka", "redis":
	default:
		return fmt.Errorf("未知的队列驱动: %q", c.Queue.Driver)
	}
	for name, v := range map[string]string{
		"queue.deliveryDelay":               c.Queue.DeliveryDelay,
		"queue.pollInterval":                c.Queue.PollInterval,
		"databases.mongodb.connectTimeout":  c.Databases.MongoDB.ConnectTimeout,
		"taskService.requestTimeout":        c.TaskService.RequestTimeout,
		"taskService.shutdownTimeout":       c.TaskService.ShutdownTimeout,
		"taskWorker.taskTimeout":            c.TaskWorker.TaskTimeout,
		"middleware.circuitBreaker.timeout": c.Middleware.CircuitBreaker.Timeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("配置项 %s 不是合法的时长: %w", name, err)
		}
	}
	if c.Middleware.RateLimiter.Enabled && (c.Middleware.RateLimiter.Rate <= 0 || c.Middleware.RateLimiter.Capacity <= 0) {
		return fmt.Errorf("限流器已启用，但 rate/capacity 未配置")
	}
	return nil
}

// Duration 解析一个已通过 Validate 校验的时长字符串。
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
