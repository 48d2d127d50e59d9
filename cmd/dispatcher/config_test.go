package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatcher.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "queue:\n  backend: memory\n")
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Results.Backend != "memory" {
		t.Fatalf("unexpected result backend: %s", cfg.Results.Backend)
	}
	if cfg.Compiler.Kind != "fake" || cfg.Executor.Kind != "random" {
		t.Fatalf("unexpected compiler/executor: %s/%s", cfg.Compiler.Kind, cfg.Executor.Kind)
	}
	if cfg.Master.WorkerCount != 2 || cfg.Master.Partition != "round_robin" {
		t.Fatalf("unexpected master defaults: %+v", cfg.Master)
	}
	if cfg.Scheduler.PollInterval != time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.Scheduler.PollInterval)
	}
}

func TestLoadConfigDurations(t *testing.T) {
	path := writeConfig(t, `
queue:
  backend: dir
  dir: /tmp/jobs
master:
  collectTimeout: "90s"
  partition: balanced
scheduler:
  pollInterval: "250ms"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Master.CollectTimeout != 90*time.Second {
		t.Fatalf("unexpected collect timeout: %s", cfg.Master.CollectTimeout)
	}
	if cfg.Scheduler.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval: %s", cfg.Scheduler.PollInterval)
	}
}

func TestDefaultsPreferRedisWhenConfigured(t *testing.T) {
	cfg := &Config{}
	cfg.Redis.Addr = "127.0.0.1:6379"
	applyDefaults(cfg)
	if cfg.Queue.Backend != "redis" || cfg.Results.Backend != "redis" {
		t.Fatalf("expected redis backends, got %s/%s", cfg.Queue.Backend, cfg.Results.Backend)
	}
	if cfg.Redis.PoolSize == 0 {
		t.Fatalf("expected redis pool defaults")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"redis queue without addr", func(c *Config) { c.Queue.Backend = "redis" }},
		{"dir queue without dir", func(c *Config) { c.Queue.Backend = "dir" }},
		{"memory queue with redis results", func(c *Config) {
			c.Redis.Addr = "127.0.0.1:6379"
			c.Queue.Backend = "memory"
			c.Results.Backend = "redis"
		}},
		{"mysql problems without dsn", func(c *Config) { c.Problems.Backend = "mysql" }},
		{"minio source without endpoint", func(c *Config) { c.Source.Backend = "minio" }},
		{"command compiler without template", func(c *Config) { c.Compiler.Kind = "command" }},
		{"rates above one", func(c *Config) {
			c.Executor.AcceptRate = 0.8
			c.Executor.WrongRate = 0.5
		}},
		{"unknown partition", func(c *Config) { c.Master.Partition = "zigzag" }},
		{"unknown priority", func(c *Config) { c.Master.Priority = "loudest" }},
		{"consume without kafka", func(c *Config) { c.Status.Consume = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			applyDefaults(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := &Config{}
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	tests := map[string]kafka.Compression{
		"gzip":   kafka.Gzip,
		"SNAPPY": kafka.Snappy,
		"lz4":    kafka.Lz4,
		"zstd":   kafka.Zstd,
		"":       kafka.Compression(0),
		"brotli": kafka.Compression(0),
	}
	for raw, want := range tests {
		if got := parseCompression(raw); got != want {
			t.Fatalf("parseCompression(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestBuildBackendsInMemory(t *testing.T) {
	cfg := &Config{}
	cfg.Problems.Dir = t.TempDir()
	cfg.Source.Dir = t.TempDir()
	applyDefaults(cfg)
	in := &infra{}

	if _, err := buildQueue(cfg.Queue, in); err != nil {
		t.Fatalf("build queue failed: %v", err)
	}
	if _, err := buildResults(cfg.Results, in); err != nil {
		t.Fatalf("build results failed: %v", err)
	}
	if _, err := buildProblems(cfg.Problems, in); err != nil {
		t.Fatalf("build problems failed: %v", err)
	}
	if _, err := buildSources(cfg.Source, in); err != nil {
		t.Fatalf("build sources failed: %v", err)
	}
	if _, err := buildCompiler(cfg.Compiler); err != nil {
		t.Fatalf("build compiler failed: %v", err)
	}
	if _, err := buildExecutor(cfg.Executor); err != nil {
		t.Fatalf("build executor failed: %v", err)
	}
	if verdicts := buildVerdicts(cfg.Status, in); verdicts == nil {
		t.Fatalf("expected verdict repository")
	}

	if _, err := buildQueue(QueueConfig{Backend: "redis"}, in); err == nil {
		t.Fatalf("expected redis queue to require redis")
	}
	if _, err := buildSources(SourceConfig{Backend: "minio", Bucket: "b"}, in); err == nil {
		t.Fatalf("expected minio source to require minio")
	}
}
