package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-mistake-tracker/pkg/config"
	"ai-mistake-tracker/pkg/logger"
	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/queue"

	"go.uber.org/zap"
)

var relayedEvents = []string{
	string(models.EventReportCreated),
	string(models.EventVoteChanged),
	string(models.EventReportModerated),
}

func main() {
	cfg := config.Load("8084")
	log := logger.New(cfg.Env, "notification-service")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, ch, err := queue.ConnectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatal("failed to connect to rabbitmq", zap.Error(err))
	}
	defer conn.Close()
	defer ch.Close()

	middleware.RegisterMetrics()

	hub := NewHub(log)
	go hub.Run(ctx)

	go func() {
		err := queue.Consume(ctx, ch, "notifications", relayedEvents, log, hub.Publish)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("event consumer stopped", zap.Error(err))
			stop()
		}
	}()

	srv := &server{hub: hub, auth: middleware.NewAuthenticator(cfg.JWTSecret), log: log}
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

	log.Info("notification service listening", zap.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
}
