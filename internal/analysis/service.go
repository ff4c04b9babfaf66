package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/ai"
	"github.com/spigell/uniscan/internal/circular"
	"github.com/spigell/uniscan/internal/logger"
	"go.uber.org/zap"
)

const (
	DefaultConcurrency = 5
	DefaultPageSize    = 20
	MaxPageSize        = 100
)

type Option func(*Service)

// WithConcurrency sets how many results of one job are processed at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithStatusCache(cache StatusCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// Service orchestrates circular analysis jobs.
type Service struct {
	store       Store
	extractor   ai.Extractor
	cache       StatusCache
	logger      *zap.Logger
	concurrency int
	now         func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[uuid.UUID]chan struct{}
}

func NewService(store Store, extractor ai.Extractor, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		store:       store,
		extractor:   extractor,
		logger:      log,
		concurrency: DefaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
		baseCtx:     ctx,
		cancel:      cancel,
		running:     make(map[uuid.UUID]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseURLs accepts a single URL string or a list of URL strings.
func ParseURLs(v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case []any:
		urls := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: urls[%d] is not a string", ErrValidation, i)
			}
			urls = append(urls, s)
		}
		return urls, nil
	case nil:
		return nil, fmt.Errorf("%w: urls is required", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: urls must be a string or a list of strings", ErrValidation)
	}
}

func validateURLs(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: at least one url is required", ErrValidation)
	}
	cleaned := make([]string, 0, len(urls))
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return nil, fmt.Errorf("%w: invalid url %q: must start with http:// or https://", ErrValidation, raw)
		}
		cleaned = append(cleaned, u)
	}
	return cleaned, nil
}

// Submit creates a job with one pending result per URL and starts processing it
// in the background. Nothing is persisted when validation fails.
func (s *Service) Submit(ctx context.Context, urls []string) (*Job, error) {
	cleaned, err := validateURLs(urls)
	if err != nil {
		return nil, err
	}

	now := s.now()
	job := &Job{
		ID:        uuid.New(),
		Status:    JobPending,
		URLs:      cleaned,
		URLsCount: len(cleaned),
		CreatedAt: now,
	}
	results := make([]*Result, 0, len(cleaned))
	for _, u := range cleaned {
		results = append(results, &Result{
			ID:        uuid.New(),
			JobID:     job.ID,
			URL:       u,
			Status:    ResultPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.store.CreateJob(ctx, job, results); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	// Process starts a job that is still pending.
	if err := s.store.UpdateJobStatus(ctx, job.ID, JobProcessing, nil); err != nil {
		s.logger.Warn("start job", zap.String(logger.FieldJobID, job.ID.String()), zap.Error(err))
	} else {
		job.Status = JobProcessing
	}

	s.logger.Info("analysis job submitted",
		zap.String(logger.FieldJobID, job.ID.String()),
		zap.Int("urls_count", job.URLsCount),
	)

	s.startBackground(job.ID)
	return job, nil
}

func (s *Service) startBackground(jobID uuid.UUID) {
	done := make(chan struct{})

	s.mu.Lock()
	s.running[jobID] = done
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, jobID)
			s.mu.Unlock()
			close(done)
		}()

		if err := s.Process(s.baseCtx, jobID); err != nil {
			s.logger.Error("analysis job failed", zap.String(logger.FieldJobID, jobID.String()), zap.Error(err))
		}
	}()
}

// Process runs every pending result of the job through extraction,
// normalization and persistence, then completes the job. Result failures are
// recorded on the result; only a failure of the control path fails the job.
func (s *Service) Process(ctx context.Context, jobID uuid.UUID) (err error) {
	log := logger.With(s.logger, logger.Fields{JobID: jobID.String()})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrOrchestration, r)
		}
		if err != nil {
			s.failJob(context.WithoutCancel(ctx), jobID, log)
		}
	}()

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: load job: %w", ErrOrchestration, err)
	}
	switch job.Status {
	case JobPending:
		if err := s.store.UpdateJobStatus(ctx, jobID, JobProcessing, nil); err != nil {
			return fmt.Errorf("%w: start job: %w", ErrOrchestration, err)
		}
	case JobProcessing:
	default:
		log.Debug("job already finished", zap.String("status", string(job.Status)))
		return nil
	}

	pending, err := s.store.PendingResults(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: load pending results: %w", ErrOrchestration, err)
	}

	log.Info("processing job", zap.Int("pending_results", len(pending)), zap.Int("concurrency", s.concurrency))

	pool := NewWorkerPool(s.concurrency, len(pending))
	out := pool.Run(ctx)
	for _, result := range pending {
		result := result
		pool.Submit(func(ctx context.Context) error {
			return s.processResult(ctx, jobID, result)
		})
	}
	pool.Close()

	failed := 0
	for res := range out {
		if res.Err != nil {
			failed++
		}
	}

	remaining, err := s.store.CountUnfinished(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: count unfinished results: %w", ErrOrchestration, err)
	}
	if remaining > 0 {
		log.Warn("job left with unfinished results", zap.Int("remaining", remaining))
		return nil
	}

	completedAt := s.now()
	if err := s.store.UpdateJobStatus(ctx, jobID, JobCompleted, &completedAt); err != nil {
		return fmt.Errorf("%w: complete job: %w", ErrOrchestration, err)
	}

	log.Info("job completed", zap.Int("results", len(pending)), zap.Int("failed_results", failed))
	return nil
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, log *zap.Logger) {
	if err := s.store.UpdateJobStatus(ctx, jobID, JobFailed, nil); err != nil {
		log.Error("mark job failed", zap.Error(err))
	}
}

// processResult never lets an error or panic escape without recording it on the result.
func (s *Service) processResult(ctx context.Context, jobID uuid.UUID, result *Result) error {
	log := logger.With(s.logger, logger.Fields{JobID: jobID.String(), ResultID: result.ID.String(), URL: result.URL})
	start := s.now()

	if err := s.store.MarkResultProcessing(ctx, result.ID); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.Debug("result is no longer pending, skipping")
			return nil
		}
		log.Error("claim result, leaving it pending", zap.Error(err))
		return fmt.Errorf("mark processing: %w", err)
	}

	extraction, err := s.runPipeline(ctx, result)
	return s.finishResult(ctx, result.ID, start, extraction, err, log)
}

func (s *Service) runPipeline(ctx context.Context, result *Result) (extraction *ai.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing result: %v", r)
		}
	}()

	extraction, err = s.extractor.Extract(ctx, result.URL)
	if err != nil {
		return nil, err
	}

	c, err := circular.Normalize(extraction.Text, result.URL)
	if err != nil {
		return extraction, err
	}

	if _, err := s.store.SaveCircular(ctx, result.ID, c, extraction.Text); err != nil {
		return extraction, fmt.Errorf("save circular: %w", err)
	}
	return extraction, nil
}

func (s *Service) finishResult(ctx context.Context, id uuid.UUID, start time.Time, extraction *ai.Extraction, runErr error, log *zap.Logger) error {
	outcome := Outcome{
		Status:           ResultCompleted,
		ProcessingTimeMS: s.now().Sub(start).Milliseconds(),
	}
	if extraction != nil {
		outcome.Strategy = extraction.Strategy
		if extraction.MimeType != "" {
			mimeType := extraction.MimeType
			size := extraction.SizeBytes
			outcome.FileMimeType = &mimeType
			outcome.FileSizeBytes = &size
		}
	}
	if runErr != nil {
		msg := runErr.Error()
		outcome.Status = ResultFailed
		outcome.Error = &msg
	}

	if err := s.store.FinishResult(context.WithoutCancel(ctx), id, outcome); err != nil {
		log.Error("record result outcome", zap.Error(err))
		return errors.Join(runErr, fmt.Errorf("record result outcome: %w", err))
	}

	if runErr != nil {
		log.Warn("result failed", zap.Error(runErr), zap.Int64("processing_time_ms", outcome.ProcessingTimeMS))
		return runErr
	}
	log.Info("result completed",
		zap.String("strategy", string(outcome.Strategy)),
		zap.Int64("processing_time_ms", outcome.ProcessingTimeMS),
	)
	return nil
}

// Wait blocks until background processing of the job started by this service ends.
func (s *Service) Wait(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	done, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown waits for background jobs. When ctx ends first, in-flight work is
// canceled and ctx.Err is returned.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// GetStatus returns the job with its completed and failed results.
func (s *Service) GetStatus(ctx context.Context, jobID uuid.UUID) (*JobStatusView, error) {
	if s.cache != nil {
		if view, ok := s.cache.GetJobStatus(ctx, jobID); ok {
			return view, nil
		}
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	results, err := s.store.ListJobResults(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job results: %w", err)
	}

	view := &JobStatusView{Job: job, Results: []ResultView{}, Errors: []*Result{}}
	for _, result := range results {
		switch result.Status {
		case ResultCompleted:
			snapshot, err := s.store.GetSnapshotByResult(ctx, result.ID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load snapshot for result %s: %w", result.ID, err)
			}
			view.Results = append(view.Results, ResultView{Result: result, Snapshot: snapshot})
		case ResultFailed:
			view.Errors = append(view.Errors, result)
		}
	}

	if s.cache != nil && job.Status.Terminal() {
		s.cache.SetJobStatus(ctx, view)
	}

	return view, nil
}

// GetResult returns a result and, when it completed, its snapshot.
func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*ResultView, error) {
	result, err := s.store.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &ResultView{Result: result}
	if result.Status == ResultCompleted {
		snapshot, err := s.store.GetSnapshotByResult(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		view.Snapshot = snapshot
	}
	return view, nil
}

// ListResults pages through results, newest first. An unknown status yields an empty page.
func (s *Service) ListResults(ctx context.Context, filter ResultFilter) (*ResultPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	out := &ResultPage{Items: []*Result{}, Page: page, PageSize: size}

	var status *ResultStatus
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		parsed, ok := ParseResultStatus(raw)
		if !ok {
			return out, nil
		}
		status = &parsed
	}

	items, total, err := s.store.ListResults(ctx, status, size, (page-1)*size)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if items != nil {
		out.Items = items
	}
	out.Total = total
	return out, nil
}
