package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/spigell/uniscan/internal/analysis"
	"go.uber.org/zap"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>...",
	Short: "Analyze admission circulars once and print the job status",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		analyze(args)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func analyze(urls []string) {
	ctx := context.Background()
	logger, config := setup(true)

	st, closeStore, err := openStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer closeStore()

	extractor, err := newExtractor(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the extractor", zap.Error(err))
	}

	svc := analysis.NewService(st, extractor, logger,
		analysis.WithConcurrency(config.analysisConfig().Concurrency),
	)

	job, err := svc.Submit(ctx, urls)
	if err != nil {
		logger.Fatal("submitting the job", zap.Error(err))
	}
	if err := svc.Wait(ctx, job.ID); err != nil {
		logger.Fatal("waiting for the job", zap.Error(err))
	}

	view, err := svc.GetStatus(ctx, job.ID)
	if err != nil {
		logger.Fatal("getting the job status", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		logger.Fatal("printing the job status", zap.Error(err))
	}

	logger.Info("analysis finished",
		zap.Int("completed", len(view.Results)),
		zap.Int("failed", len(view.Errors)),
	)
}
