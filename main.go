package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/KyahWill/journal-app-sub001/pkg/config"
	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
)

func main() {
	logger := utils.GetLogger()

	if _, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("Failed to ensure default config", "error", err)
	}

	cfg, path, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "path", path, "error", err)
		os.Exit(1)
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		logger.Error("Failed to resolve database path", "error", err)
		os.Exit(1)
	}
	database, err := db.Open(dbPath)
	if err != nil {
		logger.Error("Failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}

	server, err := NewServer(cfg, database)
	if err != nil {
		logger.Error("Failed to build server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
