package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"chatcore/internal/app"
	"chatcore/pkg/config"
	"chatcore/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("CHATCORE_CONFIG"), "path to YAML config")
		addr       = flag.String("addr", "", "listen address override")
		dbPath     = flag.String("db", "", "storage path override")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init()
		logger.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}

	logger.InitWithLevel(cfg.Logging.Level)

	a, err := app.New(cfg)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server_stopped")
}
