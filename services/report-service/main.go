package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-mistake-tracker/pkg/cache"
	"ai-mistake-tracker/pkg/config"
	"ai-mistake-tracker/pkg/database"
	"ai-mistake-tracker/pkg/logger"
	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/mistake"
	"ai-mistake-tracker/pkg/queue"
	"ai-mistake-tracker/pkg/security"
	"ai-mistake-tracker/pkg/storage"
	"ai-mistake-tracker/pkg/store"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load("8082")
	log := logger.New(cfg.Env, "report-service")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB, log)
	if err != nil {
		log.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())

	st := store.NewMongo(db)
	if err := st.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}

	key, err := security.KeyFrom(cfg.AnonEncKey, cfg.JWTSecret)
	if err != nil {
		log.Fatal("invalid anonymity key", zap.Error(err))
	}
	sealer, err := security.NewSealer(key)
	if err != nil {
		log.Fatal("failed to build sealer", zap.Error(err))
	}

	opts := []mistake.Option{
		mistake.WithLogger(log),
		mistake.WithSealer(sealer),
	}

	conn, ch, err := queue.ConnectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
	} else {
		defer conn.Close()
		defer ch.Close()
		opts = append(opts, mistake.WithEmitter(queue.NewPublisher(ch, log)))
		log.Info("connected to rabbitmq")
	}

	if rc, err := cache.NewRedis(ctx, cfg.RedisURL, log); err != nil {
		log.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
	} else {
		defer rc.Close()
		opts = append(opts, mistake.WithCache(rc, cfg.AnalyticsCacheTTL))
	}

	if pg, err := database.ConnectPostgres(cfg.PostgresDSN, log); err != nil {
		log.Warn("postgres unavailable, user totals and leaderboard disabled", zap.Error(err))
	} else {
		dir := userDirectory{db: pg}
		opts = append(opts, mistake.WithUserCounter(dir), mistake.WithLeaderboard(dir))
	}

	var evidence EvidenceStore
	if ev, err := storage.NewEvidence(ctx, storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, log); err != nil {
		log.Warn("object storage unavailable, evidence uploads disabled", zap.Error(err))
	} else {
		evidence = ev
	}

	middleware.RegisterMetrics()
	srv := newServer(mistake.NewService(st, opts...), middleware.NewAuthenticator(cfg.JWTSecret), evidence, log)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()

	log.Info("report service listening", zap.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
}
