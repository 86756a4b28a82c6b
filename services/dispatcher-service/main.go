package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"ai-mistake-tracker/pkg/config"
	"ai-mistake-tracker/pkg/database"
	"ai-mistake-tracker/pkg/logger"
	"ai-mistake-tracker/pkg/mistake"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/queue"
	"ai-mistake-tracker/pkg/store"

	"go.uber.org/zap"
)

var handledEvents = []string{
	string(models.EventReportCreated),
	string(models.EventVoteChanged),
	string(models.EventReportModerated),
	string(models.EventUserDeleted),
}

func main() {
	cfg := config.Load("")
	log := logger.New(cfg.Env, "dispatcher-service")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB, log)
	if err != nil {
		log.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())

	svc := mistake.NewService(store.NewMongo(db), mistake.WithLogger(log))
	d := &dispatcher{tools: svc, reports: svc, log: log}

	if pg, err := database.ConnectPostgres(cfg.PostgresDSN, log); err != nil {
		log.Warn("postgres unavailable, user stats disabled", zap.Error(err))
	} else {
		d.stats = gormStats{db: pg}
	}

	conn, ch, err := queue.ConnectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatal("failed to connect to rabbitmq", zap.Error(err))
	}
	defer conn.Close()
	defer ch.Close()

	log.Info("dispatcher waiting for events")
	if err := queue.Consume(ctx, ch, "dispatcher", handledEvents, log, d.Handle); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("event consumer stopped", zap.Error(err))
	}
	log.Info("dispatcher stopped")
}
