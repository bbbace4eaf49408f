package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/arbiterhq/arbiter/internal/config"
	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/orchestrator"
	"github.com/arbiterhq/arbiter/web/handlers"
)

func main() {
	port := flag.Int("port", 0, "Server port (default: from config)")
	cfgPath := flag.String("config", "", "Config file path (default: ~/.arbiter/config.yaml)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Initialize slog
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if *debug {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if *cfgPath != "" {
		cfg, err = config.LoadFrom(*cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := cfg.BuildStorage()
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	registry, err := cfg.CreateRegistry()
	if err != nil {
		slog.Error("Failed to initialize provider registry", "error", err)
		os.Exit(1)
	}

	completions, err := cfg.BuildCache()
	if err != nil {
		slog.Error("Failed to initialize completion cache", "error", err)
		os.Exit(1)
	}

	gw := cfg.BuildGateway(registry)
	publisher := events.NewPublisher()
	defer publisher.Close()

	service := orchestrator.New(store, gw, completions, publisher, cfg.OrchestratorOptions())
	h := handlers.New(service, gw, registry)

	listenPort := *port
	if listenPort == 0 {
		listenPort = cfg.Server.Port
	}

	addr := fmt.Sprintf(":%d", listenPort)
	server := &http.Server{
		Addr:    addr,
		Handler: h.Router(),
	}

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		slog.Info("Shutting down...")
		server.Close()
	}()

	slog.Info("Starting arbiter server", "url", fmt.Sprintf("http://localhost%s", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
