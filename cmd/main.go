package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mtorres/chrono-archiver/internal/api"
	"github.com/mtorres/chrono-archiver/internal/archive"
	"github.com/mtorres/chrono-archiver/internal/chrono"
	"github.com/mtorres/chrono-archiver/internal/config"
	"github.com/mtorres/chrono-archiver/internal/document"
	"github.com/mtorres/chrono-archiver/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := utils.NewLogger("error", false)
		log.Fatal("Failed to load configuration:", err)
	}
	if err := cfg.Validate(); err != nil {
		log := utils.NewLogger("error", cfg.App.RawBodyLog)
		log.Fatal("Invalid configuration:", err)
	}

	logger := utils.NewLogger(cfg.App.LogLevel, cfg.App.RawBodyLog)
	logger.Info(nil, "Starting Clinical Note Archiver")
	logger.Info(nil, "Environment: %s", cfg.App.Env)
	logger.Info(nil, "Log level: %s", cfg.App.LogLevel)
	logger.Info(nil, "Archive bucket: %s", cfg.Archive.Bucket)

	chronoClient, err := chrono.NewClient(cfg, logger)
	if err != nil {
		logger.Error(nil, "Failed to create DrChrono client: %v", err)
		logger.Fatal("Missing required configuration")
	}
	uploader, err := archive.NewUploader(context.Background(), cfg, logger)
	if err != nil {
		logger.Error(nil, "Failed to create S3 uploader: %v", err)
		logger.Fatal("Missing required configuration")
	}
	classifier := document.NewClassifier(logger)

	webhookHandler := api.NewHandler(logger, chronoClient, classifier, uploader, cfg)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Clinical Note Archiver is running\n")
	})

	api.RegisterRoutes(mux, webhookHandler)

	logger.Info(nil, "Starting server on port %s", cfg.App.ServerPort)
	logger.Info(nil, "Endpoints:")
	logger.Info(nil, "  GET  /health")
	logger.Info(nil, "  GET  /webhook (verification handshake)")
	logger.Info(nil, "  POST /webhook")
	logger.Fatal(http.ListenAndServe("0.0.0.0:"+cfg.App.ServerPort, mux))
}
