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
	"ai-mistake-tracker/pkg/database"
	"ai-mistake-tracker/pkg/logger"
	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/queue"
	"ai-mistake-tracker/services/auth-service/utils"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load("8081")
	log := logger.New(cfg.Env, "auth-service")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	log.Info("running auto migration")
	if err := db.AutoMigrate(&models.User{}); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	var events eventEmitter
	conn, ch, err := queue.ConnectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Warn("rabbitmq unavailable, user.deleted events disabled", zap.Error(err))
	} else {
		defer conn.Close()
		defer ch.Close()
		events = queue.NewPublisher(ch, log)
	}

	middleware.RegisterMetrics()
	srv := newServer(gormUsers{db: db}, middleware.NewAuthenticator(cfg.JWTSecret), events, log)
	srv.adminEmail = utils.NormalizeEmail(cfg.AdminEmail)

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

	log.Info("auth service listening", zap.String("addr", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
}
