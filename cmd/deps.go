package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"github.com/spigell/uniscan/internal/ai"
	"github.com/spigell/uniscan/internal/ai/gemini"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/database"
	"github.com/spigell/uniscan/internal/database/postgres"
	"github.com/spigell/uniscan/internal/eligibility"
	"github.com/spigell/uniscan/internal/logger"
	"github.com/spigell/uniscan/internal/secrets"
	"github.com/spigell/uniscan/internal/store/memory"
	pgstore "github.com/spigell/uniscan/internal/store/postgres"
	"go.uber.org/zap"
)

// store is what both the analysis and the eligibility services need.
type store interface {
	analysis.Store
	eligibility.Store
}

// setup loads the logger and the config. It exits the process on failure.
// Commands that print results to stdout log to stderr.
func setup(logToStderr bool) (*zap.Logger, *Config) {
	l, err := logger.New(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Stderr: logToStderr,
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		l.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		l.Fatal("config is required")
	}

	return l, config
}

func connectDatabase(ctx context.Context, cfg postgres.Config) (database.DB, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("database is not configured (set database.dsn or database.host)")
	}
	// The DSN may carry its own credentials, so a missing password is not an error.
	password, err := secrets.Load(secrets.Source{
		Name:  "database password",
		Value: cfg.Password,
		File:  cfg.PasswordFile,
		Env:   "PGPASSWORD",
	})
	switch {
	case err == nil:
		cfg.Password = password
	case !errors.Is(err, secrets.ErrNotConfigured):
		return nil, err
	}

	return postgres.Connect(ctx, cfg)
}

// openStore returns the Postgres store when a database is configured and the
// in-memory store otherwise. The returned func releases the connection.
func openStore(ctx context.Context, cfg *Config, l *zap.Logger) (store, func(), error) {
	if !cfg.Database.Enabled() {
		l.Warn("database is not configured, results are kept in memory only")
		return memory.New(), func() {}, nil
	}

	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return pgstore.New(db), func() { _ = db.Close() }, nil
}

func newExtractor(ctx context.Context, cfg *Config, l *zap.Logger) (ai.Extractor, error) {
	if cfg.AI == nil || cfg.AI.Gemini == nil {
		return nil, fmt.Errorf("ai.gemini configuration is required")
	}
	provider := strings.TrimSpace(strings.ToLower(cfg.AI.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.AI.Provider)
	}
	gcfg := cfg.AI.Gemini

	apiKey, origin, err := secrets.Resolve(secrets.Source{
		Name:  "gemini api key",
		Value: gcfg.APIKey,
		File:  gcfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}
	l.Debug("gemini api key loaded", zap.String("origin", string(origin)))

	genLogger := logger.With(l, logger.Fields{Provider: "gemini", Model: gcfg.Model}).With(zap.Int("ai_retry_attempts", gcfg.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, apiKey, gemini.Options{
		Model:      gcfg.Model,
		MaxRetries: gcfg.MaxRetries,
		Timeout:    gcfg.Timeout,
	}, genLogger)
	if err != nil {
		return nil, err
	}

	fetchTimeout := cfg.analysisConfig().FetchTimeout
	fetcher := gemini.NewFetcher(fetchTimeout, l)

	return gemini.NewExtractor(fetcher, generator, l, gcfg.MaxLogLength), nil
}

func (c *Config) analysisConfig() AnalysisConfig {
	if c.Analysis == nil {
		return AnalysisConfig{Concurrency: analysis.DefaultConcurrency}
	}
	return *c.Analysis
}
