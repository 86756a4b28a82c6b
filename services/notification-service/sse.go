package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ai-mistake-tracker/pkg/middleware"
	"ai-mistake-tracker/pkg/models"
	"ai-mistake-tracker/pkg/response"

	"go.uber.org/zap"
)

const keepAliveInterval = 30 * time.Second

type server struct {
	hub  *Hub
	auth *middleware.Authenticator
	log  *zap.Logger
}

func (s *server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /health", s.health)
	api.Handle("GET /metrics", middleware.MetricsHandler())

	root := http.NewServeMux()
	// The stream stays outside the logging and metrics chain: those wrap the
	// writer and would record a single never-ending request.
	root.Handle("GET /notifications/subscribe", middleware.Trace(http.HandlerFunc(s.subscribe)))
	root.Handle("GET /subscribe", middleware.Trace(http.HandlerFunc(s.subscribe)))
	root.Handle("/", middleware.Chain(api, s.log))
	return root
}

func (s *server) subscribe(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if tokenString == "" {
		response.Error(w, http.StatusUnauthorized, "Missing token", "")
		return
	}
	claims, err := s.auth.ParseToken(tokenString)
	if err != nil {
		middleware.WithTrace(s.log, r).Warn("invalid token on subscribe", zap.Error(err))
		response.Error(w, http.StatusUnauthorized, "Invalid token", "")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	c := &client{principal: claims.Principal(), send: make(chan models.Event, clientBuffer)}
	select {
	case s.hub.register <- c:
	case <-r.Context().Done():
		return
	}
	defer func() {
		select {
		case s.hub.unregister <- c:
		case <-time.After(time.Second):
		}
	}()

	fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected","message":"Connection established"}`)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case e, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.log.Warn("failed to encode event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":            "UP",
		"service":           "notification-service",
		"connected_clients": s.hub.Clients(),
	})
}
