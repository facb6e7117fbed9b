package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/robcarmo/puppies-api/config"
	_ "github.com/robcarmo/puppies-api/docs"
	"github.com/robcarmo/puppies-api/internal/api"
	"github.com/robcarmo/puppies-api/internal/api/handler"
	"github.com/robcarmo/puppies-api/internal/cache"
	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/queue"
	"github.com/robcarmo/puppies-api/internal/repository"
	"github.com/robcarmo/puppies-api/internal/service"
	"github.com/robcarmo/puppies-api/pkg/database"
	"github.com/robcarmo/puppies-api/pkg/logger"
	"github.com/robcarmo/puppies-api/pkg/tracing"
)

// @title Puppies Social Feed API
// @version 1.0
// @description 社交 feed 分发服务：发帖扇出、物化 feed 与读时合并
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, cfg)
	if err != nil {
		logger.Warn("tracing init failed", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("db init failed", zap.Error(err))
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&model.User{}, &model.Post{}, &model.Follow{}, &model.Fan{},
		&model.FeedEntry{}, &model.Like{}, &model.Comment{}, &model.Outbox{},
	); err != nil {
		logger.Error("migrate failed", zap.Error(err))
		os.Exit(1)
	}

	rdb, err := cache.NewClient(cfg)
	if err != nil {
		logger.Error("redis init failed", zap.Error(err))
		os.Exit(1)
	}

	// repositories
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	feedRepo := repository.NewFeedRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// caches
	counts := cache.NewFollowerCountCache(rdb, fanRepo, cfg.Fanout.FollowerCountTTL)
	hot := cache.NewHotAuthors(rdb)
	snapshots := cache.NewAuthorSnapshotCache(rdb, userRepo, cfg.Feed.SnapshotTTL)

	// 扇出任务传输：默认 outbox 轮询，可切 Kafka
	var producer queue.Producer
	if cfg.Fanout.Transport == "kafka" {
		kp := queue.NewKafkaProducer(cfg)
		defer kp.Close()
		producer = kp
	}

	dispatcher := service.NewDispatcher(fanRepo, outboxRepo, counts, hot, producer,
		cfg.Fanout.PushThreshold, cfg.Fanout.BatchSize)
	publisher := service.NewPublisher(db, dispatcher)

	replicator := service.NewFanReplicator(fanRepo, feedRepo, cfg.Fanout.ReplicatorQueue)
	stopReplicator := replicator.Start(cfg.Fanout.Workers)
	relSvc := service.NewRelationshipService(followRepo, fanRepo, userRepo, replicator)

	fanout := service.NewFanoutWorker(db, fanRepo, feedRepo,
		cfg.Fanout.Workers, cfg.Fanout.BatchSize, cfg.Fanout.ClaimLimit, cfg.Fanout.PollInterval)
	stopFanout := fanout.Start()

	if cfg.Fanout.Transport == "kafka" {
		consumer := queue.NewKafkaConsumer(cfg)
		go func() {
			if err := consumer.Run(ctx, fanout.MaterializeJob); err != nil {
				logger.Error("kafka consumer exited", zap.Error(err))
			}
		}()
	}

	interactions := service.NewInteractionService(db, commentRepo)
	feedSvc := service.NewFeedService(feedRepo, postRepo, followRepo, hot, snapshots,
		cfg.Feed.DefaultLimit, cfg.Feed.MaxLimit, cfg.Feed.PullConcurrency, cfg.Feed.PullWindow, cfg.Feed.ReadTimeout)
	userSvc := service.NewUserService(userRepo)

	sweeper := service.NewSweeper(postRepo, feedRepo, fanRepo, outboxRepo, dispatcher, interactions,
		cfg.Sweep.Interval, cfg.Sweep.LookBack, cfg.Sweep.StuckTimeout)
	stopSweeper := sweeper.Start()

	h := handler.NewHandler(userSvc, relSvc, publisher, feedSvc, interactions, postRepo)
	router := api.NewRouter(cfg, h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = stopSweeper(shutdownCtx)
	_ = stopFanout(shutdownCtx)
	_ = stopReplicator(shutdownCtx)
	_ = shutdownTracing(shutdownCtx)
}
