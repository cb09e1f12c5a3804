package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docutag/enhancer/api"
	"github.com/docutag/enhancer/config"
	"github.com/docutag/enhancer/db"
	"github.com/docutag/enhancer/extractor"
	"github.com/docutag/enhancer/ingest"
	"github.com/docutag/enhancer/llm"
	"github.com/docutag/enhancer/metrics"
	"github.com/docutag/enhancer/queue"
	"github.com/docutag/enhancer/search"
	"github.com/docutag/enhancer/storage"
	"github.com/docutag/enhancer/ui"
	"github.com/docutag/enhancer/workflow"
)

// app holds every constructed component. Selection of the LLM provider and
// the ingestion strategies happens here, once.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	db         *db.DB
	archive    *storage.Archive
	enhancer   *workflow.Enhancer
	queue      *queue.Queue
	automation *workflow.Automation
	ingest     *ingest.Service
	registry   *ingest.Registry
	llm        *llm.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	m := metrics.New("enhancer")

	database, err := db.New(cfg.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	m.RegisterDB(database.DB(), "enhancer")
	logger.Info("database ready", "driver", database.Driver())

	archive, err := storage.Open(ctx, cfg.Archive())
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if archive != nil {
		logger.Info("article archive enabled", "backend", cfg.Storage.Backend)
	}

	content := llm.NewService(llm.New(cfg.LLMClient(), logger), logger)

	deps := workflow.Deps{
		Store:    database,
		Searcher: search.New(cfg.SearchClient(), logger),
		Scraper:  extractor.New(cfg.Extractor(), logger),
		LLM:      content,
		Logger:   logger,
	}
	var originals ingest.OriginalArchiver
	if archive != nil {
		deps.Archive = archive
		originals = archive
	}
	enhancer := workflow.NewEnhancer(cfg.Workflow(), deps)

	jobs := queue.New(cfg.QueueWorkers(), database, enhancer, m, logger)

	registry := ingest.NewRegistry(
		ingest.NewBeyondChats(cfg.Scraping.BeyondChatsBaseURL, logger),
		ingest.NewFeed(logger),
		ingest.NewGeneric(cfg.Scraping.RespectRobots, logger),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		db:         database,
		archive:    archive,
		enhancer:   enhancer,
		queue:      jobs,
		automation: workflow.NewAutomation(database, jobs, logger),
		ingest:     ingest.NewService(cfg.Ingest(), registry, database, originals, m, logger),
		registry:   registry,
		llm:        content,
	}, nil
}

// server builds the HTTP surface: REST API, metrics and the comparison UI
func (a *app) server() (*api.Server, error) {
	pages, err := ui.New(a.db, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize UI: %w", err)
	}

	deps := api.Deps{
		Store:      a.db,
		Automation: a.automation,
		Ingest:     a.ingest,
		Metrics:    a.metrics,
		UI:         pages,
		Logger:     a.logger,
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}

	return api.NewServer(api.Config{
		Addr:       ":" + a.cfg.Server.Port,
		CORSOrigin: a.cfg.Server.CORSOrigin,
	}, deps), nil
}

// strategyNames lists ingestion strategies in resolution order
func (a *app) strategyNames() []string {
	var names []string
	for _, s := range a.registry.Strategies() {
		names = append(names, s.Name())
	}
	return names
}

func (a *app) Close() error {
	return a.db.Close()
}
