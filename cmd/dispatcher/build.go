package main

import (
	"fmt"

	"fuzdispatch/internal/common/cache"
	"fuzdispatch/internal/common/mq"
	"fuzdispatch/internal/common/storage"
	"fuzdispatch/internal/dispatch/compiler"
	"fuzdispatch/internal/dispatch/dbmodel"
	"fuzdispatch/internal/dispatch/executor"
	"fuzdispatch/internal/dispatch/problem"
	"fuzdispatch/internal/dispatch/queue"
	"fuzdispatch/internal/dispatch/repository"
	"fuzdispatch/internal/dispatch/result"
	"fuzdispatch/internal/dispatch/source"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// infra holds the optional shared clients a dispatcher process talks to.
type infra struct {
	redis   *cache.RedisCache
	sqlConn sqlx.SqlConn
	objects storage.ObjectStorage
	kafka   *mq.KafkaQueue
}

func (i *infra) cache() cache.Cache {
	if i.redis == nil {
		return nil
	}
	return i.redis
}

func buildQueue(cfg QueueConfig, in *infra) (queue.JobQueue, error) {
	switch cfg.Backend {
	case "redis":
		if in.redis == nil {
			return nil, fmt.Errorf("redis queue requires redis")
		}
		return queue.NewRedisQueue(in.redis, cfg.Prefix)
	case "dir":
		return queue.NewDirQueue(cfg.Dir)
	case "memory":
		return queue.NewMemoryQueue(), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

func buildResults(cfg ResultsConfig, in *infra) (result.Channel, error) {
	switch cfg.Backend {
	case "redis":
		if in.redis == nil {
			return nil, fmt.Errorf("redis result channel requires redis")
		}
		return result.NewRedisChannel(in.redis, cfg.Prefix,
			result.WithTTL(cfg.TTL),
			result.WithWaitSlice(cfg.WaitSlice),
		)
	case "memory":
		return result.NewMemoryChannel(), nil
	default:
		return nil, fmt.Errorf("unknown result backend %q", cfg.Backend)
	}
}

func buildProblems(cfg ProblemsConfig, in *infra) (problem.Store, error) {
	var store problem.Store
	switch cfg.Backend {
	case "dir":
		dir, err := problem.NewDirStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		store = dir
	case "mysql":
		if in.sqlConn == nil {
			return nil, fmt.Errorf("mysql problem store requires mysql")
		}
		store = problem.NewMySQLStore(dbmodel.NewProblemsModel(in.sqlConn))
	default:
		return nil, fmt.Errorf("unknown problem backend %q", cfg.Backend)
	}
	if !cfg.Cache {
		return store, nil
	}
	return problem.NewCachedStore(store, in.cache(), cfg.CacheTTL, cfg.EmptyTTL, cfg.LocalTTL), nil
}

func buildSources(cfg SourceConfig, in *infra) (source.Store, error) {
	switch cfg.Backend {
	case "local":
		return source.NewLocalStore(cfg.Dir)
	case "minio":
		if in.objects == nil {
			return nil, fmt.Errorf("minio source store requires minio")
		}
		return source.NewMinIOStore(in.objects, source.MinIOConfig{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Compress: cfg.Compress,
		})
	default:
		return nil, fmt.Errorf("unknown source backend %q", cfg.Backend)
	}
}

func buildCompiler(cfg CompilerConfig) (compiler.Compiler, error) {
	switch cfg.Kind {
	case "fake":
		return compiler.NewFakeCompiler(), nil
	case "command":
		return compiler.NewCommandCompiler(compiler.CommandConfig{Template: cfg.Template, Timeout: cfg.Timeout})
	default:
		return nil, fmt.Errorf("unknown compiler kind %q", cfg.Kind)
	}
}

func buildExecutor(cfg ExecutorConfig) (executor.Executor, error) {
	switch cfg.Kind {
	case "random":
		var opts []executor.RandomOption
		if cfg.Seed != 0 {
			opts = append(opts, executor.WithSeed(cfg.Seed))
		}
		if cfg.AcceptRate > 0 || cfg.WrongRate > 0 {
			opts = append(opts, executor.WithRates(cfg.AcceptRate, cfg.WrongRate))
		}
		return executor.NewRandomExecutor(opts...), nil
	case "command":
		return executor.NewCommandExecutor(executor.CommandConfig{
			DataDir:        cfg.DataDir,
			Shell:          cfg.Shell,
			DefaultTimeout: cfg.DefaultTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown executor kind %q", cfg.Kind)
	}
}

// buildVerdicts wires the verdict repository. With Kafka configured, final
// records travel as events; otherwise they are written straight to MySQL.
func buildVerdicts(cfg StatusConfig, in *infra) *repository.VerdictRepository {
	var verdictsModel dbmodel.VerdictsModel
	if in.sqlConn != nil {
		verdictsModel = dbmodel.NewVerdictsModel(in.sqlConn)
	}
	var publisher repository.VerdictEventPublisher
	if in.kafka != nil {
		publisher = repository.NewMQVerdictEventPublisher(in.kafka, cfg.FinalTopic)
	}
	return repository.NewVerdictRepository(in.cache(), verdictsModel, cfg.TTL, cfg.EmptyTTL, publisher)
}
