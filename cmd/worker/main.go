package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthfin/hearth/internal/bootstrap"
	"github.com/hearthfin/hearth/internal/config"
	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/observability/logging"
	"github.com/hearthfin/hearth/internal/observability/metrics"
)

const stageTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	go app.Watcher.Run(ctx)

	runStage := func(stage string, run func(context.Context, domain.StageHandoff) error) func(context.Context, domain.StageHandoff) error {
		return func(handlerCtx context.Context, handoff domain.StageHandoff) error {
			if !handoff.DispatchedAt.IsZero() {
				workerMetrics.ObserveQueueLag("worker", stage, time.Since(handoff.DispatchedAt))
			}
			stageCtx, cancel := context.WithTimeout(handlerCtx, stageTimeout)
			defer cancel()

			workerMetrics.StartStage(stage)
			started := time.Now()
			err := run(stageCtx, handoff)
			workerMetrics.FinishStage("worker", stage, time.Since(started), err)
			return err
		}
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("worker consuming %s", cfg.NATSProcessSubject)
		errCh <- app.Queue.ConsumeProcess(ctx, runStage("process", app.ProcessUC.Run))
	}()
	go func() {
		log.Printf("worker consuming %s", cfg.NATSCategorizeSubject)
		errCh <- app.Queue.ConsumeCategorize(ctx, runStage("categorize", func(runCtx context.Context, handoff domain.StageHandoff) error {
			// The categorize handoff reports the import stage's row tallies.
			workerMetrics.ObserveImportRows("worker", handoff.ImportedRows, handoff.DuplicateRows)
			return app.CategorizeUC.Run(runCtx, handoff)
		}))
	}()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			log.Printf("worker consume error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
