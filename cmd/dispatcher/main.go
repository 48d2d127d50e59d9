package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fuzdispatch/internal/common/cache"
	"fuzdispatch/internal/common/db"
	commonmw "fuzdispatch/internal/common/http/middleware"
	"fuzdispatch/internal/common/mq"
	"fuzdispatch/internal/common/storage"
	"fuzdispatch/internal/dispatch/controller"
	"fuzdispatch/internal/dispatch/master"
	"fuzdispatch/internal/dispatch/model"
	"fuzdispatch/internal/dispatch/repository"
	"fuzdispatch/internal/dispatch/scheduler"
	"fuzdispatch/internal/dispatch/worker"
	"fuzdispatch/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/dispatcher.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	in := &infra{}
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(context.Background(), "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		in.redis = redisCache
	}

	if appCfg.MySQL.DSN != "" {
		conn, err := db.NewSqlConn(appCfg.MySQL)
		if err != nil {
			logger.Error(context.Background(), "init database failed", zap.Error(err))
			return
		}
		in.sqlConn = conn
	}

	if appCfg.Source.Backend == "minio" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		in.objects = objStorage
	}

	if len(appCfg.Kafka.Brokers) > 0 {
		mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
		in.kafka = mqClient
	}

	jobQueue, err := buildQueue(appCfg.Queue, in)
	if err != nil {
		logger.Error(context.Background(), "init job queue failed", zap.Error(err))
		return
	}
	if closer, ok := jobQueue.(io.Closer); ok {
		defer func() {
			_ = closer.Close()
		}()
	}
	results, err := buildResults(appCfg.Results, in)
	if err != nil {
		logger.Error(context.Background(), "init result channel failed", zap.Error(err))
		return
	}
	problems, err := buildProblems(appCfg.Problems, in)
	if err != nil {
		logger.Error(context.Background(), "init problem store failed", zap.Error(err))
		return
	}
	sources, err := buildSources(appCfg.Source, in)
	if err != nil {
		logger.Error(context.Background(), "init source store failed", zap.Error(err))
		return
	}
	comp, err := buildCompiler(appCfg.Compiler)
	if err != nil {
		logger.Error(context.Background(), "init compiler failed", zap.Error(err))
		return
	}
	exec, err := buildExecutor(appCfg.Executor)
	if err != nil {
		logger.Error(context.Background(), "init executor failed", zap.Error(err))
		return
	}
	priority, err := master.NewPriorityAssigner(appCfg.Master.Priority, appCfg.Master.FixedPriority)
	if err != nil {
		logger.Error(context.Background(), "init priority assigner failed", zap.Error(err))
		return
	}
	verdicts := buildVerdicts(appCfg.Status, in)

	if appCfg.Status.Consume {
		consumer := repository.NewVerdictEventConsumer(in.kafka, verdicts)
		if err := consumer.Subscribe(context.Background(), appCfg.Status.FinalTopic, appCfg.Status.ConsumerGroup); err != nil {
			logger.Error(context.Background(), "subscribe verdict events failed", zap.Error(err))
			return
		}
		defer func() {
			_ = in.kafka.Stop()
		}()
	}

	coordinator, err := master.NewCoordinator(master.Config{
		Queue:          jobQueue,
		Results:        results,
		Problems:       problems,
		Sources:        sources,
		Compiler:       comp,
		Recorder:       verdicts,
		Priority:       priority,
		WorkRoot:       appCfg.Master.WorkRoot,
		WorkerCount:    appCfg.Master.WorkerCount,
		Policy:         master.Policy(appCfg.Master.Partition),
		CollectTimeout: appCfg.Master.CollectTimeout,
		StatusTimeout:  appCfg.Status.Timeout,
		KeepWorkDir:    appCfg.Master.KeepWorkDir,
		Seed:           appCfg.Executor.Seed,
	})
	if err != nil {
		logger.Error(context.Background(), "init master coordinator failed", zap.Error(err))
		return
	}
	workerExec, err := worker.NewExecutor(exec, results)
	if err != nil {
		logger.Error(context.Background(), "init worker executor failed", zap.Error(err))
		return
	}

	sched, err := scheduler.New(jobQueue, scheduler.Config{PollInterval: appCfg.Scheduler.PollInterval})
	if err != nil {
		logger.Error(context.Background(), "init scheduler failed", zap.Error(err))
		return
	}
	sched.Register(model.KindMaster, coordinator)
	sched.Register(model.KindWorker, workerExec)

	judgeController := controller.NewJudgeController(jobQueue, sources, verdicts)
	httpServer := buildHTTPServer(appCfg.Server, judgeController)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(shutdownCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "dispatcher http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
		stop()
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	<-schedDone
	drained := make(chan struct{})
	go func() {
		sched.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		logger.Warn(context.Background(), "in-flight jobs still running at shutdown")
	}
}

func buildHTTPServer(cfg ServerConfig, judgeController *controller.JudgeController) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContext())
	router.Use(requestLogger())

	judgeController.Register(router)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
