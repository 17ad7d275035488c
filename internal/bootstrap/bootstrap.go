package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthfin/hearth/internal/adapters/watcher"
	"github.com/hearthfin/hearth/internal/config"
	"github.com/hearthfin/hearth/internal/core/dedup"
	"github.com/hearthfin/hearth/internal/core/ports"
	"github.com/hearthfin/hearth/internal/core/usecase"
	"github.com/hearthfin/hearth/internal/infrastructure/payload"
	"github.com/hearthfin/hearth/internal/infrastructure/payload/localdir"
	"github.com/hearthfin/hearth/internal/infrastructure/payload/natskv"
	"github.com/hearthfin/hearth/internal/infrastructure/queue/nats"
	"github.com/hearthfin/hearth/internal/infrastructure/repository/postgres"
	"github.com/hearthfin/hearth/internal/infrastructure/resilience"
	"github.com/hearthfin/hearth/internal/plugin"
)

type App struct {
	Config config.Config

	Queue  ports.StageQueue
	Jobs   ports.JobStore
	Ledger ports.LedgerStore

	IntakeUC     ports.StatementIntake
	ProcessUC    ports.StageRunner
	CategorizeUC ports.StageRunner
	ReaderUC     ports.JobReader
	AdminUC      ports.JobAdmin
	QueryUC      ports.FinanceAnswerer
	SeedUC       *usecase.SeedCategoriesUseCase

	Watcher *watcher.Watcher

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	jobs := postgres.NewJobRepository(db)
	if err := jobs.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure job schema: %w", err)
	}
	ledger := postgres.NewLedgerRepository(db)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	// Store writes retry on a fixed delay; provider and queue calls keep the
	// default backoff curve.
	storeDelay := time.Duration(cfg.StorageRetryDelayMS) * time.Millisecond
	storeExecutor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.StorageRetryAttempts,
		RetryInitialBackoff: storeDelay,
		RetryMaxBackoff:     storeDelay,
		RetryMultiplier:     1,
		BreakerEnabled:      true,
	})

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSProcessSubject, cfg.NATSCategorizeSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init stage queue: %w", err)
	}

	uploads, err := natskv.New(queue.Conn(), cfg.PayloadBucket, time.Duration(cfg.PayloadTTLSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("init payload bucket: %w", err)
	}
	watchDir, err := localdir.New(cfg.WatchDir)
	if err != nil {
		return nil, fmt.Errorf("init watch directory: %w", err)
	}
	payloads := payload.NewStore(uploads, watchDir)

	registry := plugin.NewRegistry()
	if err := plugin.Install(ctx, registry, plugin.Config{
		SchemaDir:       cfg.SchemaDir,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:     cfg.OpenAIModel,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GeminiModel:     cfg.GeminiModel,
		ProviderTimeout: time.Duration(cfg.ProviderTimeoutSeconds) * time.Second,
		ProviderRPS:     cfg.ProviderRPS,
		Executor:        executor,
	}); err != nil {
		return nil, fmt.Errorf("install plugins: %w", err)
	}
	provider, err := registry.ResolveProvider(cfg.AIProvider)
	if err != nil {
		return nil, fmt.Errorf("resolve categorization provider: %w", err)
	}

	intakeUC := usecase.NewIntakeStatementUseCase(jobs, payloads, queue, registry)
	processUC := usecase.NewProcessStageUseCase(jobs, ledger, payloads, queue, registry,
		dedup.ExactMatcher{}, storeExecutor, cfg.ImportFlushEvery)
	categorizeUC := usecase.NewCategorizeStageUseCase(jobs, ledger, provider, storeExecutor, cfg.CategorizeBatchSize)
	readerUC := usecase.NewJobReaderUseCase(jobs, time.Duration(cfg.ProgressPollSeconds)*time.Second)
	adminUC := usecase.NewJobAdminUseCase(jobs, queue)
	queryUC := usecase.NewFinanceQueryUseCase(ledger, provider, 0)
	seedUC := usecase.NewSeedCategoriesUseCase(ledger)

	watch := watcher.New(jobs, queue, watchDir, watcher.Options{
		OwnerID:  cfg.DefaultAccountHolder,
		Interval: time.Duration(cfg.WatchIntervalSeconds) * time.Second,
	})

	return &App{
		Config: cfg,
		Queue:  queue,
		Jobs:   jobs,
		Ledger: ledger,

		IntakeUC:     intakeUC,
		ProcessUC:    processUC,
		CategorizeUC: categorizeUC,
		ReaderUC:     readerUC,
		AdminUC:      adminUC,
		QueryUC:      queryUC,
		SeedUC:       seedUC,

		Watcher: watch,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
