package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/nebula-hub/pkg/config"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/json"
	"github.com/ajitpratap0/nebula-hub/pkg/logger"
	"github.com/ajitpratap0/nebula-hub/pkg/metrics"
	"github.com/ajitpratap0/nebula-hub/pkg/observability"
	"github.com/ajitpratap0/nebula-hub/pkg/orchestrator"
)

// Progress milestones reported by the workers
const (
	progressStarted  = 10
	progressSynced   = 80
	progressFinished = 100
)

// ProgressFunc receives a job's progress in percent
type ProgressFunc func(percent int)

// Handlers process the jobs of the three queues
type Handlers struct {
	syncer       Syncer
	documents    DocumentStore
	embedder     Embedder
	embeddings   EmbeddingStore
	chunkSize    int
	syncLimiter  *rate.Limiter
	embedLimiter *rate.Limiter
	logger       *zap.Logger
	now          func() time.Time
}

// NewHandlers creates the workers' handlers. Storage and embedding
// integrations default to no-ops.
func NewHandlers(syncer Syncer, cfg config.QueueConfig, log *zap.Logger) *Handlers {
	if log == nil {
		log = logger.Get()
	}
	chunk := cfg.IndexChunkSize
	if chunk <= 0 {
		chunk = 100
	}
	return &Handlers{
		syncer:       syncer,
		documents:    NoopDocumentStore{},
		embedder:     NoopEmbedder{},
		embeddings:   NoopEmbeddingStore{},
		chunkSize:    chunk,
		syncLimiter:  perMinute(cfg.SyncRatePerMinute),
		embedLimiter: perMinute(cfg.EmbeddingRatePerMinute),
		logger:       log.With(zap.String("component", "queue_worker")),
		now:          time.Now,
	}
}

// perMinute allows n jobs per rolling minute; n <= 0 disables the limit
func perMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60), n)
}

// WithDocumentStore sets the index target
func (h *Handlers) WithDocumentStore(s DocumentStore) *Handlers {
	if s != nil {
		h.documents = s
	}
	return h
}

// WithEmbedder sets the embedding generator
func (h *Handlers) WithEmbedder(e Embedder) *Handlers {
	if e != nil {
		h.embedder = e
	}
	return h
}

// WithEmbeddingStore sets the vector store
func (h *Handlers) WithEmbeddingStore(s EmbeddingStore) *Handlers {
	if s != nil {
		h.embeddings = s
	}
	return h
}

// register binds every task type to its handler
func (h *Handlers) register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskSyncSystem, h.HandleSync)
	mux.HandleFunc(TaskIndexDocuments, h.HandleIndex)
	mux.HandleFunc(TaskEmbeddingDocument, h.HandleEmbedding)
}

// ProcessSync runs one sync job. A failed sync yields an outcome with
// Success=false and a non-nil error so the broker can retry it.
func (h *Handlers) ProcessSync(ctx context.Context, p SyncJobPayload, progress ProgressFunc) (*JobOutcome, error) {
	start := h.now()
	if err := h.syncLimiter.Wait(ctx); err != nil {
		return failure(start, h.now(), err), err
	}
	progress(progressStarted)

	result, err := h.syncer.SyncSystem(ctx, p.SystemID, p.SyncOptions())
	if err != nil {
		return failure(start, h.now(), err), err
	}
	progress(progressSynced)

	outcome := &JobOutcome{
		Success:        result.Status != orchestrator.StatusFailed,
		ProcessedCount: result.RowsProcessed,
		Duration:       h.now().Sub(start).Milliseconds(),
		Result:         result,
	}
	for _, e := range result.Errors {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %s", e.Table, e.Error))
	}
	progress(progressFinished)

	if !outcome.Success {
		return outcome, errors.Newf(errors.ErrorTypeData, "sync of %s failed: %d table errors", p.SystemID, len(result.Errors))
	}
	return outcome, nil
}

// ProcessIndex hands document ids to the document store in fixed-size chunks
func (h *Handlers) ProcessIndex(ctx context.Context, p IndexJobPayload, progress ProgressFunc) (*JobOutcome, error) {
	start := h.now()
	progress(progressStarted)

	total := len(p.DocumentIDs)
	chunks := (total + h.chunkSize - 1) / h.chunkSize
	done := 0
	for i := 0; i < total; i += h.chunkSize {
		end := i + h.chunkSize
		if end > total {
			end = total
		}
		if err := h.documents.IndexDocuments(ctx, p.SystemID, p.DocumentIDs[i:end]); err != nil {
			return failure(start, h.now(), err), err
		}
		done++
		progress(progressStarted + (progressFinished-progressStarted)*done/chunks)
	}
	if chunks == 0 {
		progress(progressFinished)
	}

	return &JobOutcome{
		Success:        true,
		ProcessedCount: total,
		Duration:       h.now().Sub(start).Milliseconds(),
	}, nil
}

// ProcessEmbedding embeds and stores one document's text
func (h *Handlers) ProcessEmbedding(ctx context.Context, p EmbeddingJobPayload, progress ProgressFunc) (*JobOutcome, error) {
	start := h.now()
	if err := h.embedLimiter.Wait(ctx); err != nil {
		return failure(start, h.now(), err), err
	}
	progress(progressStarted)

	vector, err := h.embedder.Embed(ctx, p.Text)
	if err != nil {
		return failure(start, h.now(), err), err
	}
	if err := h.embeddings.StoreEmbedding(ctx, p.DocumentID, vector); err != nil {
		return failure(start, h.now(), err), err
	}
	progress(progressFinished)

	return &JobOutcome{
		Success:        true,
		ProcessedCount: 1,
		Duration:       h.now().Sub(start).Milliseconds(),
	}, nil
}

func failure(start, end time.Time, err error) *JobOutcome {
	return &JobOutcome{
		Success:  false,
		Errors:   []string{err.Error()},
		Duration: end.Sub(start).Milliseconds(),
	}
}

// HandleSync is the asynq handler of TaskSyncSystem
func (h *Handlers) HandleSync(ctx context.Context, task *asynq.Task) error {
	var p SyncJobPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("invalid sync payload: %v: %w", err, asynq.SkipRetry)
	}
	return h.run(ctx, task, QueueSync, func(ctx context.Context, progress ProgressFunc) (*JobOutcome, error) {
		outcome, err := h.ProcessSync(ctx, p, progress)
		if errors.IsType(err, errors.ErrorTypeSystemNotFound) {
			err = fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return outcome, err
	})
}

// HandleIndex is the asynq handler of TaskIndexDocuments
func (h *Handlers) HandleIndex(ctx context.Context, task *asynq.Task) error {
	var p IndexJobPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("invalid index payload: %v: %w", err, asynq.SkipRetry)
	}
	return h.run(ctx, task, QueueIndex, func(ctx context.Context, progress ProgressFunc) (*JobOutcome, error) {
		return h.ProcessIndex(ctx, p, progress)
	})
}

// HandleEmbedding is the asynq handler of TaskEmbeddingDocument
func (h *Handlers) HandleEmbedding(ctx context.Context, task *asynq.Task) error {
	var p EmbeddingJobPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("invalid embedding payload: %v: %w", err, asynq.SkipRetry)
	}
	return h.run(ctx, task, QueueEmbedding, func(ctx context.Context, progress ProgressFunc) (*JobOutcome, error) {
		return h.ProcessEmbedding(ctx, p, progress)
	})
}

// run wraps a job with a span, progress recording and outcome metrics
func (h *Handlers) run(ctx context.Context, task *asynq.Task, queue string, fn func(context.Context, ProgressFunc) (*JobOutcome, error)) error {
	taskID, _ := asynq.GetTaskID(ctx)
	ctx = logger.ContextWithJob(ctx, taskID)
	log := h.logger.With(zap.String("queue", queue), zap.String("job_id", taskID))

	ctx, span := observability.StartSpan(ctx, "queue."+task.Type())
	span.SetAttribute("queue", queue)
	span.SetAttribute("job_id", taskID)

	rec := newRecorder(task)
	outcome, err := fn(ctx, rec.progress)
	rec.finish(outcome)
	span.EndWithError(err)

	if err != nil {
		metrics.QueueJobs.WithLabelValues(queue, "failed").Inc()
		log.Warn("job failed", zap.Error(err))
		return err
	}
	metrics.QueueJobs.WithLabelValues(queue, "completed").Inc()
	log.Info("job completed", zap.Int("processed", outcome.ProcessedCount), zap.Int64("duration_ms", outcome.Duration))
	return nil
}
