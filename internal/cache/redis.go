// Package cache keeps finished job status views in Redis. Every operation is
// bypassed when Redis is not configured or not reachable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/logger"
	"go.uber.org/zap"
)

const DefaultTTL = 10 * time.Minute

type Config struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	warnedUnavailable atomic.Bool
}

// NewRedis connects to cfg.Addr. An empty address or a failed ping yields a
// cache that never hits.
func NewRedis(ctx context.Context, cfg Config, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Redis{ttl: ttl, logger: log}

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		log.Debug("redis address not set, status cache disabled")
		return r
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, bypassing status cache", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return r
	}

	r.client = client
	return r
}

func (r *Redis) isUnavailable() bool {
	return r == nil || r.client == nil
}

func (r *Redis) warnUnavailableOnce(err error) {
	if r.warnedUnavailable.CompareAndSwap(false, true) {
		r.logger.Warn("redis unavailable, bypassing status cache", zap.Error(err))
	}
}

func jobStatusKey(jobID uuid.UUID) string {
	return "analysis:job:" + jobID.String() + ":status"
}

func (r *Redis) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*analysis.JobStatusView, bool) {
	if r.isUnavailable() {
		return nil, false
	}
	b, err := r.client.Get(ctx, jobStatusKey(jobID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.warnUnavailableOnce(err)
		}
		return nil, false
	}

	var view analysis.JobStatusView
	if err := json.Unmarshal(b, &view); err != nil || view.Job == nil {
		r.logger.Debug("discarding unreadable status cache entry", zap.String(logger.FieldJobID, jobID.String()), zap.Error(err))
		return nil, false
	}
	return &view, true
}

func (r *Redis) SetJobStatus(ctx context.Context, view *analysis.JobStatusView) {
	if r.isUnavailable() || view == nil || view.Job == nil {
		return
	}
	b, err := json.Marshal(view)
	if err != nil {
		r.logger.Debug("encode status cache entry", zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, jobStatusKey(view.Job.ID), b, r.ttl).Err(); err != nil {
		r.warnUnavailableOnce(err)
	}
}

func (r *Redis) Close() error {
	if r.isUnavailable() {
		return nil
	}
	return r.client.Close()
}
