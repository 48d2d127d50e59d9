package main

import (
	"fmt"
	"strings"
	"time"

	"fuzdispatch/internal/common/cache"
	"fuzdispatch/internal/common/db"
	"fuzdispatch/internal/common/mq"
	"fuzdispatch/internal/common/storage"
	"fuzdispatch/internal/dispatch/master"
	"fuzdispatch/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"github.com/zeromicro/go-zero/core/conf"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8090"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
	defaultKeyPrefix       = "dispatch:queue"
	defaultResultPrefix    = "dispatch:result"
	defaultFinalTopic      = "judge.verdict.final"
	defaultConsumerGroup   = "fuzdispatch-verdict-persist"
	defaultWorkRoot        = "./fake-file-system/work"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `json:"addr,optional"`
	ReadTimeout  time.Duration `json:"readTimeout,optional"`
	WriteTimeout time.Duration `json:"writeTimeout,optional"`
	IdleTimeout  time.Duration `json:"idleTimeout,optional"`
}

// QueueConfig selects the job queue backend.
type QueueConfig struct {
	Backend string `json:"backend,optional,options=redis|dir|memory"`
	Dir     string `json:"dir,optional"`
	Prefix  string `json:"prefix,optional"`
}

// ResultsConfig selects the result channel backend.
type ResultsConfig struct {
	Backend   string        `json:"backend,optional,options=redis|memory"`
	Prefix    string        `json:"prefix,optional"`
	TTL       time.Duration `json:"ttl,optional"`
	WaitSlice time.Duration `json:"waitSlice,optional"`
}

// KafkaConfig holds Kafka settings for final verdict events.
type KafkaConfig struct {
	Brokers      []string      `json:"brokers,optional"`
	ClientID     string        `json:"clientID,optional"`
	MinBytes     int           `json:"minBytes,optional"`
	MaxBytes     int           `json:"maxBytes,optional"`
	MaxWait      time.Duration `json:"maxWait,optional"`
	BatchSize    int           `json:"batchSize,optional"`
	BatchTimeout time.Duration `json:"batchTimeout,optional"`
	DialTimeout  time.Duration `json:"dialTimeout,optional"`
	RequiredAcks int           `json:"requiredAcks,optional"`
	Compression  string        `json:"compression,optional"`
}

// SourceConfig selects where submission sources live.
type SourceConfig struct {
	Backend  string `json:"backend,optional,options=local|minio"`
	Dir      string `json:"dir,optional"`
	Bucket   string `json:"bucket,optional"`
	Prefix   string `json:"prefix,optional"`
	Compress bool   `json:"compress,optional"`
}

// ProblemsConfig selects the problem metadata store.
type ProblemsConfig struct {
	Backend  string        `json:"backend,optional,options=dir|mysql"`
	Dir      string        `json:"dir,optional"`
	Cache    bool          `json:"cache,optional"`
	CacheTTL time.Duration `json:"cacheTTL,optional"`
	EmptyTTL time.Duration `json:"emptyTTL,optional"`
	LocalTTL time.Duration `json:"localTTL,optional"`
}

// CompilerConfig selects the compiler.
type CompilerConfig struct {
	Kind     string        `json:"kind,optional,options=fake|command"`
	Template string        `json:"template,optional"`
	Timeout  time.Duration `json:"timeout,optional"`
}

// ExecutorConfig selects the checkpoint executor.
type ExecutorConfig struct {
	Kind           string        `json:"kind,optional,options=random|command"`
	DataDir        string        `json:"dataDir,optional"`
	Shell          string        `json:"shell,optional"`
	DefaultTimeout time.Duration `json:"defaultTimeout,optional"`
	AcceptRate     float64       `json:"acceptRate,optional"`
	WrongRate      float64       `json:"wrongRate,optional"`
	Seed           int64         `json:"seed,optional"`
}

// MasterConfig holds master coordinator settings.
type MasterConfig struct {
	WorkRoot       string        `json:"workRoot,optional"`
	WorkerCount    int           `json:"workerCount,optional"`
	Partition      string        `json:"partition,optional"`
	Priority       string        `json:"priority,optional"`
	FixedPriority  int           `json:"fixedPriority,optional"`
	CollectTimeout time.Duration `json:"collectTimeout,optional"`
	KeepWorkDir    bool          `json:"keepWorkDir,optional"`
}

// SchedulerConfig holds claim loop settings.
type SchedulerConfig struct {
	PollInterval time.Duration `json:"pollInterval,optional"`
}

// StatusConfig holds verdict record settings.
type StatusConfig struct {
	TTL           time.Duration `json:"ttl,optional"`
	EmptyTTL      time.Duration `json:"emptyTTL,optional"`
	Timeout       time.Duration `json:"timeout,optional"`
	FinalTopic    string        `json:"finalTopic,optional"`
	Consume       bool          `json:"consume,optional"`
	ConsumerGroup string        `json:"consumerGroup,optional"`
}

// Config holds dispatcher config.
type Config struct {
	Server    ServerConfig        `json:"server,optional"`
	Logger    logger.Config       `json:"logger,optional"`
	Queue     QueueConfig         `json:"queue,optional"`
	Results   ResultsConfig       `json:"results,optional"`
	Redis     cache.RedisConfig   `json:"redis,optional"`
	MySQL     db.MySQLConfig      `json:"mysql,optional"`
	Kafka     KafkaConfig         `json:"kafka,optional"`
	MinIO     storage.MinIOConfig `json:"minio,optional"`
	Source    SourceConfig        `json:"source,optional"`
	Problems  ProblemsConfig      `json:"problems,optional"`
	Compiler  CompilerConfig      `json:"compiler,optional"`
	Executor  ExecutorConfig      `json:"executor,optional"`
	Master    MasterConfig        `json:"master,optional"`
	Scheduler SchedulerConfig     `json:"scheduler,optional"`
	Status    StatusConfig        `json:"status,optional"`
}

func loadConfig(path string) (*Config, error) {
	var c Config
	if err := conf.Load(path, &c); err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	applyDefaults(&c)
	if err := validateConfig(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultHTTPAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = defaultIdleTimeout
	}
	if c.Queue.Backend == "" {
		c.Queue.Backend = "memory"
		if c.Redis.Addr != "" {
			c.Queue.Backend = "redis"
		}
	}
	if c.Queue.Prefix == "" {
		c.Queue.Prefix = defaultKeyPrefix
	}
	if c.Results.Backend == "" {
		c.Results.Backend = "memory"
		if c.Redis.Addr != "" {
			c.Results.Backend = "redis"
		}
	}
	if c.Results.Prefix == "" {
		c.Results.Prefix = defaultResultPrefix
	}
	if c.Redis.Addr != "" {
		c.Redis.ApplyDefaults()
	}
	if c.MySQL.DSN != "" {
		c.MySQL.ApplyDefaults()
	}
	if c.Source.Backend == "" {
		c.Source.Backend = "local"
	}
	if c.Source.Backend == "local" && c.Source.Dir == "" {
		c.Source.Dir = "./fake-file-system/submission"
	}
	if c.Source.Bucket == "" {
		c.Source.Bucket = c.MinIO.Bucket
	}
	if c.Problems.Backend == "" {
		c.Problems.Backend = "dir"
	}
	if c.Problems.Backend == "dir" && c.Problems.Dir == "" {
		c.Problems.Dir = "./fake-file-system/data"
	}
	if c.Compiler.Kind == "" {
		c.Compiler.Kind = "fake"
	}
	if c.Executor.Kind == "" {
		c.Executor.Kind = "random"
	}
	if c.Executor.Kind == "command" && c.Executor.DataDir == "" {
		c.Executor.DataDir = c.Problems.Dir
	}
	if c.Master.WorkRoot == "" {
		c.Master.WorkRoot = defaultWorkRoot
	}
	if c.Master.WorkerCount <= 0 {
		c.Master.WorkerCount = 2
	}
	if c.Master.Partition == "" {
		c.Master.Partition = string(master.PolicyRoundRobin)
	}
	if c.Master.Priority == "" {
		c.Master.Priority = "random"
	}
	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = time.Second
	}
	if c.Status.FinalTopic == "" {
		c.Status.FinalTopic = defaultFinalTopic
	}
	if c.Status.ConsumerGroup == "" {
		c.Status.ConsumerGroup = defaultConsumerGroup
	}
}

func validateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	needRedis := c.Queue.Backend == "redis" || c.Results.Backend == "redis" || c.Problems.Cache
	if needRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.Queue.Backend == "dir" && c.Queue.Dir == "" {
		return fmt.Errorf("queue dir is required")
	}
	if c.Queue.Backend == "memory" && c.Results.Backend == "redis" {
		return fmt.Errorf("an in-memory queue cannot be shared, use a memory result channel")
	}
	if c.Problems.Backend == "mysql" && c.MySQL.DSN == "" {
		return fmt.Errorf("mysql dsn is required for the mysql problem store")
	}
	if c.MySQL.DSN != "" {
		if _, err := db.NormalizeDSN(c.MySQL.DSN); err != nil {
			return err
		}
	}
	if c.Source.Backend == "minio" {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("minio endpoint is required")
		}
		if c.Source.Bucket == "" {
			return fmt.Errorf("source bucket is required")
		}
	}
	if c.Compiler.Kind == "command" && strings.TrimSpace(c.Compiler.Template) == "" {
		return fmt.Errorf("compiler template is required")
	}
	if c.Executor.Kind == "command" && c.Executor.DataDir == "" {
		return fmt.Errorf("executor data dir is required")
	}
	if c.Executor.AcceptRate < 0 || c.Executor.WrongRate < 0 || c.Executor.AcceptRate+c.Executor.WrongRate > 1 {
		return fmt.Errorf("executor rates must be non-negative and sum to at most 1")
	}
	if _, err := master.ParsePolicy(c.Master.Partition); err != nil {
		return err
	}
	if _, err := master.NewPriorityAssigner(c.Master.Priority, c.Master.FixedPriority); err != nil {
		return err
	}
	if c.Status.Consume {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required to consume verdict events")
		}
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql dsn is required to consume verdict events")
		}
	}
	return nil
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
