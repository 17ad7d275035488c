package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/hearthfin/hearth/internal/adapters/http"
	"github.com/hearthfin/hearth/internal/bootstrap"
	"github.com/hearthfin/hearth/internal/config"
	"github.com/hearthfin/hearth/internal/observability/logging"
	"github.com/hearthfin/hearth/internal/observability/metrics"
	"golang.org/x/net/netutil"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(cfg, app.IntakeUC, app.ReaderUC, app.AdminUC, app.QueryUC)
	router.Metrics = serverMetrics.Handler()

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     serverMetrics.Middleware("api", router.Handler()),
		ReadTimeout: 30 * time.Second,
		// Progress streams outlive any fixed write deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		log.Fatalf("api listen error: %v", err)
	}
	if cfg.APIMaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConns)
	}

	go func() {
		log.Printf("api listening on %s", listener.Addr())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
