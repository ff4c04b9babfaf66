package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/api"
	"github.com/spigell/uniscan/internal/cache"
	"github.com/spigell/uniscan/internal/eligibility"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis and eligibility HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8080)")
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx := context.Background()
	logger, config := setup(false)

	logger.Info("starting the uniscan api", zap.String("version", buildVersion()))

	st, closeStore, err := openStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer closeStore()

	extractor, err := newExtractor(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the extractor", zap.Error(err))
	}

	statusCache := cache.NewRedis(ctx, config.Redis, logger)
	defer statusCache.Close()

	analysisSvc := analysis.NewService(st, extractor, logger,
		analysis.WithConcurrency(config.analysisConfig().Concurrency),
		analysis.WithStatusCache(statusCache),
	)
	eligibilitySvc := eligibility.NewService(st, st, logger, nil)

	server := api.New(analysisSvc, eligibilitySvc, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(config.Listen)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := analysisSvc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background jobs interrupted", zap.Error(err))
	}
}
