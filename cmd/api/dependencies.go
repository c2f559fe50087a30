package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moneta-app/moneta-api/internal/domain/categorization"
	importhandler "github.com/moneta-app/moneta-api/internal/domain/import/handler"
	importrepo "github.com/moneta-app/moneta-api/internal/domain/import/repository"
	importservice "github.com/moneta-app/moneta-api/internal/domain/import/service"
	"github.com/moneta-app/moneta-api/internal/domain/splitwise"
	"github.com/moneta-app/moneta-api/pkg/config"
	"github.com/moneta-app/moneta-api/pkg/cron"
	"github.com/moneta-app/moneta-api/pkg/db"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	Stores        *importrepo.Stores
	ImportService *importservice.Service
	SearchIndex   *categorization.Index
	ImportHandler *importhandler.Handler
	Scheduler     *cron.Scheduler
}

// InitDependencies wires everything together, bottom-up.
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: logger}

	database, err := db.New(db.Config{
		DSN:             cfg.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	deps.DB = database

	deps.Stores = importrepo.NewPostgresStores(database.Pool)

	var swClient importservice.SplitwiseClient
	if cfg.Splitwise.APIKey != "" {
		swClient = splitwise.NewClient(
			cfg.Splitwise.BaseURL,
			cfg.Splitwise.APIKey,
			time.Duration(cfg.Splitwise.TimeoutSeconds)*time.Second,
		)
	} else {
		logger.Info("splitwise integration disabled, no API key configured")
	}

	deps.ImportService = importservice.NewService(deps.Stores, swClient, logger, importservice.Options{
		MaxFileBytes: cfg.Import.MaxFileBytes,
		MaxRows:      cfg.Import.MaxRows,
	})

	search, err := categorization.NewIndex()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("create category search index: %w", err)
	}
	deps.SearchIndex = search

	deps.ImportHandler = importhandler.New(deps.ImportService, deps.Stores.Categories, search, logger)
	deps.Scheduler = cron.NewScheduler(deps.Stores.Audit, cfg.Import.AuditRetentionDays, logger)

	logger.Info("all dependencies initialized")
	return deps, nil
}

// WarmSearchIndex seeds the category picker index with the global
// categories. User-owned categories are indexed as users touch the picker.
func (d *Dependencies) WarmSearchIndex(ctx context.Context) {
	// Global categories have a nil user id, so any scope works here.
	categories, err := d.Stores.Categories.ListForUser(ctx, uuid.Nil)
	if err != nil {
		d.Logger.Warn("category index warmup failed", slog.Any("error", err))
		return
	}
	if err := d.SearchIndex.IndexCategories(categories); err != nil {
		d.Logger.Warn("category index warmup failed", slog.Any("error", err))
	}
}

// Close releases everything in reverse initialization order.
func (d *Dependencies) Close() {
	if d.SearchIndex != nil {
		_ = d.SearchIndex.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
