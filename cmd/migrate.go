package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spigell/uniscan/internal/database/migration"
	"github.com/spigell/uniscan/internal/database/migrations"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Run: func(_ *cobra.Command, _ []string) {
		migrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger, config := setup(false)

	db, err := connectDatabase(ctx, config.Database)
	if err != nil {
		logger.Fatal("connecting to the database", zap.Error(err))
	}
	defer db.Close()

	runner := migration.Runner{Files: migrations.Files, Logger: logger}
	applied, err := runner.Run(ctx, db.SQLDB())
	if err != nil {
		logger.Fatal("applying migrations", zap.Error(err))
	}

	logger.Info("database is up to date", zap.Int("applied", applied))
}
