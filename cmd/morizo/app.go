package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/config"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/confirm"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/events"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/executor"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/gateway"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/logging"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/orchestrator"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/planner"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/services"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/state"
)

// app holds the wired engine shared by every front end.
type app struct {
	cfg     *config.Config
	catalog *services.Catalog
	http    *services.HTTPInvoker
	orch    *orchestrator.Orchestrator
	router  *gateway.Router
	bus     *events.Bus
	chains  *chain.Registry
	db      *state.DB

	closers []io.Closer
}

// newApp wires the engine described by cfg; extra options are applied last.
// Call Close when done.
func newApp(cfg *config.Config, extra ...orchestrator.Option) (_ *app, retErr error) {
	a := &app{cfg: cfg}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	if cfg.Log.DebugPath != "" {
		logger, err := logging.NewDebugLogger(cfg.Log.DebugPath)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		logging.SetDefault(logger)
		a.closers = append(a.closers, logger)
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	a.catalog = catalog

	var httpOpts []services.HTTPOption
	if cfg.Services.AuthToken != "" {
		httpOpts = append(httpOpts, services.WithAuthToken(cfg.Services.AuthToken))
	}
	a.http = services.NewHTTPInvoker(catalog, cfg.Services.Timeout, httpOpts...)

	registry := services.NewRegistry()
	services.NewInventory().Register(registry)
	registry.SetFallback(a.http)

	p, err := buildPlanner(cfg, catalog)
	if err != nil {
		return nil, err
	}

	exec := executor.New(registry,
		executor.WithMaxParallel(cfg.Execution.MaxParallel),
		executor.WithTaskTimeout(cfg.Execution.TaskTimeout),
	)

	a.bus = events.NewBus(256)
	a.closers = append(a.closers, a.bus)
	a.chains = chain.NewRegistry()

	opts := []orchestrator.Option{
		orchestrator.WithChainRegistry(a.chains),
		orchestrator.WithObserver(a.bus),
		orchestrator.WithCoordinatorOptions(confirm.WithMaxAttempts(cfg.Confirmation.MaxAttempts)),
	}
	storeOpts, err := a.openStores()
	if err != nil {
		return nil, err
	}
	opts = append(opts, storeOpts...)
	opts = append(opts, extra...)

	a.orch = orchestrator.New(p, exec, opts...)
	a.router = gateway.NewRouter(a.orch)
	return a, nil
}

// openStores selects persistence per storage.driver.
func (a *app) openStores() ([]orchestrator.Option, error) {
	cfg := a.cfg
	if cfg.Storage.Driver == "memory" {
		sessions := state.NewMemorySessionStore(cfg.Session.TTL, cfg.Session.TTL/4)
		confirmations := state.NewMemoryConfirmationStore(cfg.Confirmation.TTL, cfg.Confirmation.TTL/4)
		a.closers = append(a.closers, sessions, confirmations)
		return []orchestrator.Option{
			orchestrator.WithSessionStore(sessions),
			orchestrator.WithConfirmationStore(confirmations),
		}, nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db)

	return []orchestrator.Option{
		orchestrator.WithSessionStore(db.Sessions(cfg.Session.TTL)),
		orchestrator.WithConfirmationStore(db.Confirmations(cfg.Confirmation.TTL)),
		orchestrator.WithMenuRecorder(db),
		orchestrator.WithObserver(db.TaskLog()),
	}, nil
}

// Close releases stores, the event bus and the debug log, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("[morizo] close: %v", err)
		}
	}
	a.closers = nil
	logging.SetDefault(nil)
}

// pruneChains drops paused chains whose confirmation can no longer be
// answered, until ctx is done.
func (a *app) pruneChains(ctx context.Context) {
	ttl := a.cfg.Confirmation.TTL
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.chains.PruneStale(ttl); n > 0 {
				log.Printf("[morizo] pruned %d stale paused chains, %d still active", n, a.chains.Len())
			}
		}
	}
}

func openDB(cfg *config.Config) (*state.DB, error) {
	path := cfg.Storage.Path
	if path == "" {
		path = state.DefaultDBPath()
	}
	db, err := state.OpenWithDriver(cfg.Storage.Driver, filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func loadCatalog(cfg *config.Config) (*services.Catalog, error) {
	if cfg.Services.Catalog == "" {
		return services.DefaultCatalog(), nil
	}
	return services.LoadCatalog(cfg.Services.Catalog)
}

// buildPlanner picks the LLM backend named by planner.provider.
func buildPlanner(cfg *config.Config, catalog *services.Catalog) (planner.Planner, error) {
	pc := cfg.Planner
	switch pc.Provider {
	case "openai":
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		model, err := planner.NewOpenAIModel(planner.OpenAIConfig{
			APIKey:  key,
			Model:   pc.Model,
			BaseURL: pc.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return planner.NewLangchainPlanner(model, catalog), nil

	default:
		ac := planner.AnthropicConfig{
			Model:         pc.Model,
			MaxTokens:     pc.MaxTokens,
			UseAWSBedrock: pc.Bedrock.Enabled,
			AWSRegion:     pc.Bedrock.Region,
			AWSProfile:    pc.Bedrock.Profile,
		}
		if !pc.Bedrock.Enabled {
			key, err := config.GetAPIKey(cfg)
			if err != nil {
				return nil, err
			}
			ac.APIKey = key
		}
		p, err := planner.NewAnthropicPlanner(ac, catalog)
		if err != nil {
			return nil, fmt.Errorf("create planner: %w", err)
		}
		return p, nil
	}
}
