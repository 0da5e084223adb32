package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"drawsync/core"
	"drawsync/handlers/api/assets"
	"drawsync/handlers/api/scenes"
	"drawsync/handlers/websocket"
	"drawsync/session"
	"drawsync/stores"
)

func setupRouter(registry *session.Registry, store core.AssetStore) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", scenes.HandleHealth(registry))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", scenes.HandleListSessions(registry))
		r.Route("/session/{sessionID}", func(r chi.Router) {
			r.Get("/", scenes.HandleGetSession(registry))
			r.Post("/elements", scenes.HandleReplaceElements(registry))
			r.Post("/append", scenes.HandleAppendElements(registry))
			r.Post("/viewport", scenes.HandleSetViewport(registry))
			r.Post("/clear", scenes.HandleClear(registry))
			r.Post("/files", assets.HandleUpload(registry, store))
			r.Get("/files/{fileID}", assets.HandleFetch(registry, store))
		})
	})

	r.Get("/ws/{sessionID}", websocket.Handle(registry))

	return r
}

// setupWSRouter carries only the update channel, for deployments that put the
// WebSocket listener on its own port.
func setupWSRouter(registry *session.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/ws/{sessionID}", websocket.Handle(registry))
	return r
}

func idleWindow() time.Duration {
	raw := os.Getenv("SESSION_IDLE_SECONDS")
	if raw == "" {
		return session.DefaultIdleWindow
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		logrus.WithField("SESSION_IDLE_SECONDS", raw).Warn("invalid idle window, using default")
		return session.DefaultIdleWindow
	}
	return time.Duration(seconds) * time.Second
}

func waitForShutdown() {
	exit := make(chan struct{})
	signalC := make(chan os.Signal, 1)

	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range signalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("shutting down")
	os.Exit(0)
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	wsListenAddress := flag.String("ws-listen", "", "Separate address for the WebSocket channel; empty shares the main listener.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	registry := session.NewRegistry(idleWindow())
	store := stores.GetStore()

	r := setupRouter(registry, store)

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	if *wsListenAddress != "" && *wsListenAddress != *listenAddress {
		wsRouter := setupWSRouter(registry)
		logrus.WithField("addr", *wsListenAddress).Info("starting websocket listener")
		go func() {
			if err := http.ListenAndServe(*wsListenAddress, wsRouter); err != nil {
				logrus.WithField("event", "start ws server").Fatal(err)
			}
		}()
	}

	logrus.Debug("Server is running in the background")
	waitForShutdown()
}
