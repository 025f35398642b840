package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/heatseeker/internal/api"
	"github.com/dgnsrekt/heatseeker/internal/config"
	"github.com/dgnsrekt/heatseeker/internal/dashboard"
	"github.com/dgnsrekt/heatseeker/internal/data"
	"github.com/dgnsrekt/heatseeker/internal/server"
	"github.com/dgnsrekt/heatseeker/internal/source"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Setup logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Load config
	srvCfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error("failed to load server config", zap.Error(err))
		return 1
	}
	cfg, err := config.Load(srvCfg.ConfigPath)
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return 1
	}
	if srvCfg.APIKey == "" {
		srvCfg.APIKey = cfg.API.APIKey
	}

	logger.Info("configuration loaded",
		zap.String("port", srvCfg.Port),
		zap.String("sourceMode", srvCfg.SourceMode),
		zap.Bool("strict", srvCfg.Strict),
		zap.Bool("apiKeySet", srvCfg.APIKey != ""),
		zap.String("dataDir", srvCfg.DataDir),
		zap.String("dataDate", srvCfg.DataDate),
	)

	// Chain files are only served in file mode
	var (
		reload *server.ReloadManager
		files  data.ChainLoader
	)
	if srvCfg.SourceMode == string(source.ModeFile) {
		start := time.Now()
		loader, err := data.NewMemoryLoader(srvCfg.DataDir, srvCfg.DataDate, logger)
		if err != nil {
			logger.Error("failed to load chain files", zap.Error(err))
			return 1
		}
		reload = server.NewReloadManager(loader, srvCfg.DataDir, server.MemoryLoaderFunc(logger), logger)
		defer reload.Close()
		files = reload

		logger.Info("chain files loaded",
			zap.Strings("tickers", loader.Tickers()),
			zap.Duration("duration", time.Since(start)),
		)
	}

	client := api.NewClient(cfg.ClientOptions(), logger)
	resolver := source.NewResolver(client, files, cfg.ResolverConfig(), logger)
	service := dashboard.NewService(resolver, cfg.ExposureOptions(), logger)

	srv := server.NewServer(service, reload, cfg.Dashboard.Tickers, srvCfg, logger)

	// Create router
	router, err := server.NewRouter(srv, srvCfg.CORSOrigins, logger)
	if err != nil {
		logger.Error("failed to create router", zap.Error(err))
		return 1
	}

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:         ":" + srvCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful HTTP server shutdown on signal or listener failure
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
