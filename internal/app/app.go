package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"Prospector/internal/api"
	"Prospector/internal/config"
	"Prospector/internal/gateway"
	"Prospector/internal/infrastructure/cache"
	"Prospector/internal/infrastructure/llm"
	"Prospector/internal/infrastructure/maps"
	"Prospector/internal/infrastructure/scheduler"
	"Prospector/internal/infrastructure/screenshot"
	"Prospector/internal/infrastructure/storage"
	"Prospector/internal/infrastructure/telegram"
	"Prospector/internal/logging"
	"Prospector/internal/metrics"
	"Prospector/internal/ports"
	"Prospector/internal/provider"
	"Prospector/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	registry   *prometheus.Registry
	cache      *cache.SQLiteCache
	postgres   *storage.PostgresStore
	notices    *usecase.NoticeFeed
	persister  *usecase.Persister
	controller *usecase.Controller
	discovery  *usecase.Discovery
	syncer     *usecase.Syncer
	server     *api.Server
}

// New builds the application. Optional integrations without credentials are
// left out; an unreachable remote store degrades to the offline store.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gen, err := buildGenerator(ctx, cfg, baseLogger)
	if err != nil {
		return nil, err
	}
	model, codeModel := cfg.GenerationModels()
	gw := gateway.New(gen, gateway.Options{
		RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		Timeout:           cfg.Gateway.Timeout,
		Model:             model,
		CodeModel:         codeModel,
	}, m, baseLogger.With("component", "gateway"))

	localCache, err := cache.Open(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger, registry: reg, cache: localCache}
	remote := a.openRemote(ctx)

	var sinks []ports.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		sinks = append(sinks, telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	a.notices = usecase.NewNoticeFeed(baseLogger.With("component", "notices"), sinks...)

	var shots ports.ScreenshotCapturer
	if cfg.Screenshot.APIKey != "" {
		shots = screenshot.NewClient(cfg.Screenshot.Endpoint, cfg.Screenshot.APIKey, nil)
	}
	var locations ports.LocationSuggester
	if cfg.Maps.APIKey != "" {
		locations = maps.NewProvider(cfg.Maps.Endpoint, cfg.Maps.APIKey, cfg.Maps.LoadTimeout, nil)
	}

	a.persister = usecase.NewPersister(usecase.PersisterDeps{
		Cache:    localCache,
		Remote:   remote,
		Notifier: a.notices,
		Metrics:  m,
		Logger:   baseLogger.With("component", "persister"),
	})
	a.controller = usecase.NewController(usecase.ControllerDeps{
		Gateway:        gw,
		Persister:      a.persister,
		Cache:          localCache,
		Notifier:       a.notices,
		Screenshots:    shots,
		Metrics:        m,
		Logger:         baseLogger.With("component", "pipeline"),
		PreviewBaseURL: cfg.Site.PreviewBaseURL,
	})
	a.discovery = usecase.NewDiscovery(usecase.DiscoveryDeps{
		Gateway:    gw,
		Remote:     remote,
		Notifier:   a.notices,
		Controller: a.controller,
		Metrics:    m,
		Logger:     baseLogger.With("component", "discovery"),
	})
	a.syncer = usecase.NewSyncer(
		scheduler.NewTicker(cfg.Sync.Interval),
		a.controller,
		baseLogger.With("component", "sync"),
	)
	a.server = api.NewServer(api.Deps{
		Controller: a.controller,
		Discovery:  a.discovery,
		Notices:    a.notices,
		Locations:  locations,
		Cache:      localCache,
		Gatherer:   reg,
		Logger:     baseLogger.With("component", "http"),
	})

	if n, err := a.controller.Restore(); err != nil {
		baseLogger.Warn("cached bundles not restored", "error", err)
	} else if n > 0 {
		baseLogger.Info("cached bundles restored", "count", n)
	}
	return a, nil
}

func buildGenerator(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.Generator, error) {
	registry := provider.NewRegistry()
	if cfg.Gemini.APIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		registry.Register(gemini)
	}
	if cfg.ChatGPT.APIKey != "" {
		registry.Register(llm.NewChatGPTClient(cfg.ChatGPT, nil))
	}

	gen, err := registry.Resolve(cfg.Gateway.Provider)
	if err != nil {
		logger.Warn("generation back end unavailable, every generation step will fail soft", "error", err)
		return nil, nil
	}
	return gen, nil
}

// openRemote connects to Postgres when configured.
func (a *Application) openRemote(ctx context.Context) ports.RemoteStore {
	if !a.cfg.RemoteEnabled() {
		a.logger.Info("remote store disabled, running offline")
		return storage.OfflineStore{}
	}
	pg, err := storage.OpenPostgres(ctx, a.cfg.Database.DSN)
	if err == nil {
		err = pg.EnsureSchema(ctx)
		if err != nil {
			_ = pg.Close()
		}
	}
	if err != nil {
		a.logger.Warn("remote store unreachable, running offline", "error", err)
		return storage.OfflineStore{}
	}
	a.postgres = pg
	return pg
}

// Serve runs the HTTP API and the periodic sync until ctx is cancelled. Open
// pipelines are synced once more before returning.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.syncer.Start(ctx); err != nil {
		return fmt.Errorf("start periodic sync: %w", err)
	}

	serveErr := a.server.ListenAndServe(ctx, a.cfg.Server.Addr)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	stopErr := a.syncer.Stop(stopCtx)
	a.controller.SyncAll(stopCtx)
	a.persister.Wait()
	a.notices.Wait()
	return errors.Join(serveErr, stopErr)
}

// Discover runs one discovery session.
func (a *Application) Discover(ctx context.Context, params usecase.SearchParams) (usecase.Result, error) {
	res, err := a.discovery.Run(ctx, params)
	a.notices.Wait()
	return res, err
}

// BundleStatus summarises a cached pipeline.
type BundleStatus struct {
	BusinessID   string    `json:"business_id"`
	Name         string    `json:"name"`
	Stage        string    `json:"stage"`
	Completeness int       `json:"completeness"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Status lists the cached pipelines, most recently updated first.
func (a *Application) Status() ([]BundleStatus, error) {
	bundles, err := a.cache.List()
	if err != nil {
		return nil, err
	}
	out := make([]BundleStatus, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, BundleStatus{
			BusinessID:   b.BusinessID,
			Name:         b.Business.Name,
			Stage:        b.Stage.String(),
			Completeness: b.Completeness(),
			UpdatedAt:    b.UpdatedAt,
		})
	}
	return out, nil
}

// Close releases the stores.
func (a *Application) Close() error {
	var errs []error
	if a.postgres != nil {
		errs = append(errs, a.postgres.Close())
	}
	errs = append(errs, a.cache.Close())
	return errors.Join(errs...)
}
