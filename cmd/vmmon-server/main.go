package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vmmonitor/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to server config yaml (optional)")
	flag.Parse()

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			slog.Error("config load failed", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	// env override, handy for containers
	if addr := os.Getenv("VM_MONITOR_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))

	store := server.NewStore()
	api := &server.API{
		Store: store,
		Gate:  server.NewGate(store),
		Log:   logger,
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.CORS(cfg.CORS.AllowedOrigins, api.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("vmmon-server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
