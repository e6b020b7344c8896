package config

import (
	"os"
	"strings"
	"time"

	"PPChat/data/database/mgo/mongoutil"
	"PPChat/tools"
	"PPChat/tools/errs"

	"gopkg.in/yaml.v3"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"

	EventsMemory = "memory"
	EventsNATS   = "nats"
	EventsKafka  = "kafka"
)

type Config struct {
	NodeID  int64         `yaml:"nodeId"`
	HTTP    HTTPConfig    `yaml:"http"`
	GRPC    GRPCConfig    `yaml:"grpc"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Redis   RedisConfig   `yaml:"redis"`
	Events  EventsConfig  `yaml:"events"`
	NATS    NATSConfig    `yaml:"nats"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	JWT     JWTConfig     `yaml:"jwt"`
	Cookie  CookieConfig  `yaml:"cookie"`
	CORS    CORSConfig    `yaml:"cors"`
	Gateway GatewayConfig `yaml:"gateway"`
	Outbox  OutboxConfig  `yaml:"outbox"`
	OTP     OTPConfig     `yaml:"otp"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	Mode            string        `yaml:"mode"` // gin: debug/release/test
}

type GRPCConfig struct {
	Addr string `yaml:"addr"` // 为空则不启动 gRPC 健康检查
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console/json
	File       string `yaml:"file"`   // 为空只输出到 stdout
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // mongo/memory
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Address        []string      `yaml:"address"`
	Database       string        `yaml:"database"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	AuthSource     string        `yaml:"authSource"`
	MaxPoolSize    int           `yaml:"maxPoolSize"`
	MaxRetry       int           `yaml:"maxRetry"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// Mongoutil 转成连接层配置
func (m MongoConfig) Mongoutil() *mongoutil.Config {
	return &mongoutil.Config{
		Uri:         m.URI,
		Address:     m.Address,
		Database:    m.Database,
		Username:    m.Username,
		Password:    m.Password,
		AuthSource:  m.AuthSource,
		MaxPoolSize: m.MaxPoolSize,
		MaxRetry:    m.MaxRetry,
	}
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"` // 为空则在线状态只保存在进程内
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"poolSize"`
	PresenceTTL time.Duration `yaml:"presenceTTL"`
	// clientMessageId 去重窗口
	ClientIDTTL time.Duration `yaml:"clientIdTTL"`
}

type EventsConfig struct {
	Driver string `yaml:"driver"` // memory/nats/kafka
}

type NATSConfig struct {
	Servers       []string      `yaml:"servers"`
	Name          string        `yaml:"name"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	SubjectPrefix string        `yaml:"subjectPrefix"`
	Mode          string        `yaml:"mode"` // core/js_push
	Queue         string        `yaml:"queue"`
	Durable       string        `yaml:"durable"`
	AckWait       time.Duration `yaml:"ackWait"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	GroupID       string   `yaml:"groupId"`
	ClientID      string   `yaml:"clientId"`
	Version       string   `yaml:"version"`
	InitialOffset string   `yaml:"initialOffset"` // newest/oldest
	Compression   string   `yaml:"compression"`
	Partitions    int32    `yaml:"partitions"`
	Replication   int16    `yaml:"replication"`
	EnsureTopic   bool     `yaml:"ensureTopic"` // 启动时不存在则创建
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Alg    string        `yaml:"alg"`
	TTL    time.Duration `yaml:"ttl"`
}

type CookieConfig struct {
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
	Secure bool   `yaml:"secure"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

type GatewayConfig struct {
	Path            string        `yaml:"path"`
	SendBuffer      int           `yaml:"sendBuffer"`
	ReadLimit       int64         `yaml:"readLimit"`
	PingInterval    time.Duration `yaml:"pingInterval"`
	PongWait        time.Duration `yaml:"pongWait"`
	WriteWait       time.Duration `yaml:"writeWait"`
	HandlerTimeout  time.Duration `yaml:"handlerTimeout"`
	CheckOrigin     bool          `yaml:"checkOrigin"`
	ReadBufferSize  int           `yaml:"readBufferSize"`
	WriteBufferSize int           `yaml:"writeBufferSize"`
}

type OutboxConfig struct {
	Interval    time.Duration `yaml:"interval"`
	BatchSize   int           `yaml:"batchSize"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

type OTPConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Digits int           `yaml:"digits"`
}

// Default 本地开发可直接跑起来的默认值
func Default() *Config {
	return &Config{
		NodeID: 1,
		HTTP:   HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second, Mode: "release"},
		GRPC:   GRPCConfig{Addr: ":50051"},
		Log:    LogConfig{Level: "info", Format: "console", MaxSizeMB: 100, MaxBackups: 7, MaxAgeDays: 30},
		Storage: StorageConfig{
			Driver: StorageMongo,
		},
		Mongo: MongoConfig{
			URI:            "mongodb://127.0.0.1:27017",
			Database:       "ppchat",
			MaxPoolSize:    100,
			MaxRetry:       3,
			ConnectTimeout: 15 * time.Second,
		},
		Redis:  RedisConfig{PoolSize: 50, PresenceTTL: 2 * time.Minute, ClientIDTTL: 48 * time.Hour},
		Events: EventsConfig{Driver: EventsMemory},
		NATS: NATSConfig{
			Servers:       []string{"nats://127.0.0.1:4222"},
			Name:          "ppchat",
			SubjectPrefix: "ppchat.events",
			Mode:          "core",
			Queue:         "ppchat-workers",
			Durable:       "ppchat-notify",
			AckWait:       30 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"127.0.0.1:9092"},
			Topic:         "ppchat.events",
			GroupID:       "ppchat-notify",
			ClientID:      "ppchat",
			Version:       "2.1.0",
			InitialOffset: "oldest",
			Compression:   "snappy",
			Partitions:    8,
			Replication:   1,
			EnsureTopic:   true,
		},
		JWT:    JWTConfig{Alg: "HS256", TTL: 7 * 24 * time.Hour},
		Cookie: CookieConfig{Name: "authorization"},
		CORS:   CORSConfig{AllowOrigins: []string{"http://localhost:5173"}},
		Gateway: GatewayConfig{
			Path:            "/ws",
			SendBuffer:      128,
			ReadLimit:       64 * 1024,
			PingInterval:    30 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
			HandlerTimeout:  10 * time.Second,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		Outbox: OutboxConfig{Interval: 500 * time.Millisecond, BatchSize: 100, MaxAttempts: 5},
		OTP:    OTPConfig{TTL: 10 * time.Minute, Digits: 6},
	}
}

// Load 默认值 -> YAML 文件（可选）-> 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = tools.GetEnv("PPCHAT_CONFIG", "")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config", "path", path)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, errs.WrapMsg(err, "parse config", "path", path)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	c.HTTP.Addr = tools.GetEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.Mode = tools.GetEnv("GIN_MODE", c.HTTP.Mode)
	c.GRPC.Addr = tools.GetEnv("GRPC_ADDR", c.GRPC.Addr)
	c.Log.Level = tools.GetEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = tools.GetEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = tools.GetEnv("LOG_FILE", c.Log.File)
	c.Storage.Driver = tools.GetEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Mongo.URI = tools.GetEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = tools.GetEnv("MONGO_DATABASE", c.Mongo.Database)
	c.Mongo.Username = tools.GetEnv("MONGO_USERNAME", c.Mongo.Username)
	c.Mongo.Password = tools.GetEnv("MONGO_PASSWORD", c.Mongo.Password)
	c.Redis.Addr = tools.GetEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = tools.GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = tools.GetEnvInt("REDIS_DB", c.Redis.DB)
	c.Events.Driver = tools.GetEnv("EVENTS_DRIVER", c.Events.Driver)
	c.NATS.Servers = tools.GetEnvList("NATS_SERVERS", c.NATS.Servers)
	c.NATS.User = tools.GetEnv("NATS_USER", c.NATS.User)
	c.NATS.Password = tools.GetEnv("NATS_PASSWORD", c.NATS.Password)
	c.NATS.Mode = tools.GetEnv("NATS_MODE", c.NATS.Mode)
	c.Kafka.Brokers = tools.GetEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = tools.GetEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.JWT.Secret = tools.GetEnv("JWT_SECRET", c.JWT.Secret)
	c.JWT.TTL = tools.GetEnvDuration("JWT_TTL", c.JWT.TTL)
	c.Cookie.Secure = tools.GetEnvBool("COOKIE_SECURE", c.Cookie.Secure)
	c.CORS.AllowOrigins = tools.GetEnvList("FRONTEND_URL", c.CORS.AllowOrigins)
	c.NodeID = int64(tools.GetEnvInt("NODE_ID", int(c.NodeID)))
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errs.New("jwt secret is required (JWT_SECRET)")
	}
	switch c.Storage.Driver {
	case StorageMongo:
		if c.Mongo.URI == "" && len(c.Mongo.Address) == 0 {
			return errs.New("mongo uri or address is required")
		}
		if c.Mongo.Database == "" {
			return errs.New("mongo database is required")
		}
	case StorageMemory:
	default:
		return errs.New("unknown storage driver", "driver", c.Storage.Driver)
	}
	switch c.Events.Driver {
	case EventsMemory:
	case EventsNATS:
		if len(c.NATS.Servers) == 0 {
			return errs.New("nats servers are required for events driver nats")
		}
	case EventsKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errs.New("kafka brokers and topic are required for events driver kafka")
		}
	default:
		return errs.New("unknown events driver", "driver", c.Events.Driver)
	}
	if c.Gateway.Path == "" || !strings.HasPrefix(c.Gateway.Path, "/") {
		return errs.New("gateway path must start with /", "path", c.Gateway.Path)
	}
	return nil
}
