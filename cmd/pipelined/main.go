package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/bus"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/common"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/gateway"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/pipeline"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/server"
)

func main() {
	// Logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	// Structured logger for the pipeline internals.
	appLog := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := common.LoadConfig()

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pipeline definition: built-in catalog unless a file overrides it.
	def := pipeline.Default()
	if cfg.Pipeline.DefinitionFile != "" {
		var err error
		def, err = pipeline.Load(cfg.Pipeline.DefinitionFile)
		if err != nil {
			log.Fatalf("loading pipeline definition: %v", err)
		}
		log.Infof("loaded pipeline definition from %s", cfg.Pipeline.DefinitionFile)
	}

	gw := gateway.New(gateway.Config{
		BaseURL:   cfg.Stages.BaseURL,
		Endpoints: cfg.Stages.Endpoints,
	}, nil, appLog)

	b := bus.New(appLog)
	orch := pipeline.NewOrchestrator(def, gw, b, cfg.Stages.Timeout, pipeline.Thresholds{
		MinSEOScore:         cfg.Gate.MinSEOScore,
		MinReadabilityScore: cfg.Gate.MinReadabilityScore,
		MinConfidence:       cfg.Gate.MinConfidence,
	}, appLog)
	registry := pipeline.NewRegistry(cfg.Pipeline.Retention)

	svc := server.NewService(orch, registry, b, cfg.Server.HeartbeatInterval, logger)
	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: svc.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("pipelined listening on %s (stages at %s)", cfg.Server.Addr, cfg.Stages.BaseURL)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Info("pipelined stopped")
}
