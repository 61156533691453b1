// Command webhook-receiver is a development endpoint for the log webhooks:
// it prints every delivered line. Register it with
//
//	curl -X POST localhost:8989/webhook-logs/register -d '{"url":"http://localhost:4000/"}'
package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"renderhub/internal/config"
	"renderhub/internal/httpkit"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/pkg/middleware"
)

type delivery struct {
	Log string `json:"log"`
}

func newRouter(log *logger.Logger, received func(line string)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Post("/", middleware.WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
		var d delivery
		if err := httpkit.DecodeJSON(w, r, &d); err != nil {
			return err
		}
		received(d.Log)
		httpkit.WriteJSON(w, http.StatusOK, map[string]string{"message": "Log received"})
		return nil
	}))
	return r
}

func main() {
	log := logger.New(logger.Config{
		Level:       config.Env("LOG_LEVEL", "info"),
		Format:      config.Env("LOG_FORMAT", "text"),
		ServiceName: "webhook-receiver",
	})
	addr := ":" + config.Env("PORT", "4000")

	router := newRouter(log, func(line string) {
		log.Info("received log from webhook", "log", line)
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("webhook receiver listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.LogFatal("webhook receiver failed", err)
	}
}

