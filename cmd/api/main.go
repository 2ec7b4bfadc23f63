package main

import (
	"context"
	"log"

	_ "github.com/dhima/datman/docs"
	"github.com/dhima/datman/internal/api"
	"github.com/dhima/datman/internal/logging"
	"github.com/dhima/datman/pkg/config"
)

// @title Datman Gateway API
// @version 1.0
// @description HTTP gateway over a relational database and S3-compatible object storage.
// @description
// @description ## Features
// @description - **Batch mutations**: paged insert, update and delete of table rows
// @description - **Duplicate maintenance**: find and remove rows sharing partition column values
// @description - **Objects**: single-request upload and download
// @description - **Mutation events**: each successful mutation is published to Kafka when brokers are configured

// @contact.name API Support
// @contact.url https://github.com/dhima/datman

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg := config.FromEnv()

	logger, err := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	srv, err := api.NewServer(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("api server setup: %v", err)
	}
	if err := srv.Serve(); err != nil {
		log.Fatalf("api server stopped: %v", err)
	}
}
