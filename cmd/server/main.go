package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/config"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/export"
	httpiface "github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/interfaces/http"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/repository"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/service"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/workflow"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/pkg/database"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/pkg/utils"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting standardized forms service",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	defs, err := workflow.LoadDefinitions(cfg.Workflows.DefinitionsPath)
	if err != nil {
		logger.Fatal("Failed to load workflow definitions", zap.Error(err))
	}
	registry, err := workflow.NewRegistry(defs)
	if err != nil {
		logger.Fatal("Failed to build workflow registry", zap.Error(err))
	}
	logger.Info("Workflow definitions loaded", zap.Strings("form_types", registry.FormTypes()))

	requestRepo := repository.NewRequestRepository(db, logger)
	engine := workflow.NewEngine(registry, requestRepo, logger)
	requestService := service.NewRequestService(registry, requestRepo, logger)
	exporter := export.NewRegisterExporter(registry, logger)

	server := httpiface.NewServer(httpiface.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, engine, requestService, exporter, utils.NewKVLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
