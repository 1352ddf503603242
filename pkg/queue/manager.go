// Package queue runs syncs, indexing and embedding as retryable background
// jobs on a Redis-backed asynq broker.
//
// # Overview
//
// New probes the broker once. When it answers, three worker pools are
// started (sync, index, embedding) with per-queue concurrency and rate
// limits. When it does not, the Manager is inert: job submission, retry and
// cancel fail with a queue_unavailable error so callers can fall back to
// running the work synchronously, while status and statistics calls return
// empty results.
//
// # Basic Usage
//
//	handlers := queue.NewHandlers(orch, cfg.Queue, logger)
//	mgr, err := queue.New(ctx, cfg.Queue, handlers, logger)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	jobID, err := mgr.AddSyncJob(ctx, queue.SyncJobPayload{SystemID: "crm"}, queue.JobOptions{})
//	if errors.IsType(err, errors.ErrorTypeQueueUnavailable) {
//	    // run orch.SyncSystem directly
//	}
package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/nebula-hub/pkg/config"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/base"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/json"
	"github.com/ajitpratap0/nebula-hub/pkg/logger"
	"github.com/ajitpratap0/nebula-hub/pkg/metrics"
)

// Manager owns the broker connection, the worker servers and the scheduler
type Manager struct {
	cfg       config.QueueConfig
	logger    *zap.Logger
	available bool

	client    *asynq.Client
	inspector *asynq.Inspector
	scheduler *asynq.Scheduler
	servers   map[string]*asynq.Server

	closeOnce sync.Once
	closeErr  error
}

// New probes the broker and, when it is reachable, starts the workers.
// An unreachable or disabled broker is not an error: the returned Manager
// reports Available() == false.
func New(ctx context.Context, cfg config.QueueConfig, handlers *Handlers, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = logger.Get()
	}
	m := &Manager{
		cfg:    cfg,
		logger: log.With(zap.String("component", "queue")),
	}

	if !cfg.Enabled {
		m.logger.Info("queue disabled, jobs run synchronously")
		return m, nil
	}
	if err := Probe(ctx, cfg); err != nil {
		m.logger.Warn("queue broker unavailable, jobs run synchronously",
			zap.String("redis_addr", cfg.RedisAddr), zap.Error(err))
		return m, nil
	}
	if handlers == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "queue handlers are required when the broker is available")
	}

	if err := m.start(handlers); err != nil {
		m.shutdown()
		return nil, err
	}
	m.available = true
	m.logger.Info("queue workers started",
		zap.String("redis_addr", cfg.RedisAddr),
		zap.Int("sync_concurrency", cfg.SyncConcurrency),
		zap.Int("index_concurrency", cfg.IndexConcurrency),
		zap.Int("embedding_concurrency", cfg.EmbeddingConcurrency))
	return m, nil
}

// Probe pings the broker within the configured probe timeout
func Probe(ctx context.Context, cfg config.QueueConfig) error {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: timeout,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "redis at %s did not answer", cfg.RedisAddr)
	}
	return nil
}

func (m *Manager) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     m.cfg.RedisAddr,
		Password: m.cfg.RedisPassword,
		DB:       m.cfg.RedisDB,
	}
}

func (m *Manager) start(handlers *Handlers) error {
	opt := m.redisOpt()
	m.client = asynq.NewClient(opt)
	m.inspector = asynq.NewInspector(opt)
	m.scheduler = asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Logger:   m.logger.Sugar(),
		LogLevel: asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	handlers.register(mux)

	m.servers = map[string]*asynq.Server{
		QueueSync:      m.newServer(m.cfg.SyncConcurrency, map[string]int{queueSyncCritical: 2, QueueSync: 1}),
		QueueIndex:     m.newServer(m.cfg.IndexConcurrency, map[string]int{QueueIndex: 1}),
		QueueEmbedding: m.newServer(m.cfg.EmbeddingConcurrency, map[string]int{QueueEmbedding: 1}),
	}
	for _, name := range Queues() {
		if err := m.servers[name].Start(mux); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to start %s workers", name)
		}
	}
	if err := m.scheduler.Start(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQueueUnavailable, "failed to start scheduler")
	}
	return nil
}

func (m *Manager) newServer(concurrency int, queues map[string]int) *asynq.Server {
	policy := base.NewRetryPolicy(m.cfg.Attempts, m.cfg.BackoffBase).WithRandomization(0.1)
	return asynq.NewServer(m.redisOpt(), asynq.Config{
		Concurrency:    concurrency,
		Queues:         queues,
		StrictPriority: true,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return policy.Delay(n)
		},
		ShutdownTimeout: m.cfg.ShutdownTimeout,
		Logger:          m.logger.Sugar(),
		LogLevel:        asynq.WarnLevel,
	})
}

// Available reports whether the broker answered at start-up. A nil
// Manager is never available.
func (m *Manager) Available() bool {
	return m != nil && m.available
}

func (m *Manager) unavailable(operation string) error {
	return errors.New(errors.ErrorTypeQueueUnavailable, "queue system not available").
		WithDetail("operation", operation)
}

// taskOptions applies the default job policy to queue
func (m *Manager) taskOptions(queue string, delay time.Duration) []asynq.Option {
	maxRetry := m.cfg.Attempts - 1
	if maxRetry < 0 {
		maxRetry = 0
	}
	opts := []asynq.Option{
		asynq.TaskID(uuid.NewString()),
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
	}
	if m.cfg.CompletedRetention > 0 {
		opts = append(opts, asynq.Retention(m.cfg.CompletedRetention))
	}
	if strings.HasPrefix(queue, QueueSync) && m.cfg.SyncTimeout > 0 {
		opts = append(opts, asynq.Timeout(m.cfg.SyncTimeout))
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	return opts
}

func (m *Manager) enqueue(ctx context.Context, queue, taskType string, payload interface{}, delay time.Duration) (string, error) {
	if !m.available {
		return "", m.unavailable("enqueue " + queue)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "failed to encode job payload")
	}

	task := asynq.NewTask(taskType, data)
	opts := m.taskOptions(queue, delay)
	var info *asynq.TaskInfo
	err = enqueueRetry.Execute(ctx, func() error {
		var err error
		info, err = m.client.EnqueueContext(ctx, task, opts...)
		return err
	}, isTransientEnqueueError)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to enqueue %s job", taskType)
	}
	metrics.QueueJobs.WithLabelValues(logicalQueue(queue), "enqueued").Inc()
	m.logger.Debug("job enqueued", zap.String("queue", info.Queue), zap.String("job_id", info.ID))
	return info.ID, nil
}

// enqueueRetry absorbs short broker hiccups before a submission is reported
// as unavailable
var enqueueRetry = base.NewRetryPolicy(3, 100*time.Millisecond).WithRandomization(0.2)

func isTransientEnqueueError(err error) bool {
	return !errors.Is(err, asynq.ErrDuplicateTask) && !errors.Is(err, asynq.ErrTaskIDConflict)
}

// AddSyncJob submits a sync job and returns its id
func (m *Manager) AddSyncJob(ctx context.Context, p SyncJobPayload, opts JobOptions) (string, error) {
	if p.SystemID == "" {
		return "", errors.New(errors.ErrorTypeValidation, "sync job requires a system id")
	}
	queue := QueueSync
	if opts.Priority > 0 {
		queue = queueSyncCritical
	}
	return m.enqueue(ctx, queue, TaskSyncSystem, p, opts.Delay)
}

// AddIndexJob submits an index job and returns its id
func (m *Manager) AddIndexJob(ctx context.Context, p IndexJobPayload, opts JobOptions) (string, error) {
	if p.SystemID == "" {
		return "", errors.New(errors.ErrorTypeValidation, "index job requires a system id")
	}
	return m.enqueue(ctx, QueueIndex, TaskIndexDocuments, p, opts.Delay)
}

// AddEmbeddingJob submits an embedding job and returns its id
func (m *Manager) AddEmbeddingJob(ctx context.Context, p EmbeddingJobPayload, opts JobOptions) (string, error) {
	if p.DocumentID == "" {
		return "", errors.New(errors.ErrorTypeValidation, "embedding job requires a document id")
	}
	return m.enqueue(ctx, QueueEmbedding, TaskEmbeddingDocument, p, opts.Delay)
}

// ScheduleRecurringSync registers a cron entry that enqueues the sync job
// on every tick and returns the entry id
func (m *Manager) ScheduleRecurringSync(p SyncJobPayload, cronSpec string) (string, error) {
	if !m.available {
		return "", m.unavailable("schedule sync")
	}
	if p.SystemID == "" {
		return "", errors.New(errors.ErrorTypeValidation, "sync job requires a system id")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "failed to encode job payload")
	}

	maxRetry := m.cfg.Attempts - 1
	if maxRetry < 0 {
		maxRetry = 0
	}
	entryID, err := m.scheduler.Register(cronSpec, asynq.NewTask(TaskSyncSystem, data),
		asynq.Queue(QueueSync), asynq.MaxRetry(maxRetry), asynq.Retention(m.cfg.CompletedRetention))
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrorTypeValidation, "invalid schedule %q", cronSpec)
	}
	m.logger.Info("recurring sync scheduled",
		zap.String("system_id", p.SystemID), zap.String("cron", cronSpec), zap.String("entry_id", entryID))
	return entryID, nil
}

// Close stops the workers, the scheduler and the broker connections. It is
// safe to call more than once and a no-op when the broker was never available.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if !m.available {
			return
		}
		m.closeErr = m.shutdown()
		m.logger.Info("queue closed")
	})
	return m.closeErr
}

func (m *Manager) shutdown() error {
	var g errgroup.Group
	for name, srv := range m.servers {
		g.Go(func() error {
			srv.Shutdown()
			m.logger.Debug("workers stopped", zap.String("queue", name))
			return nil
		})
	}
	if m.scheduler != nil {
		g.Go(func() error {
			m.scheduler.Shutdown()
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.inspector != nil {
		if err := m.inspector.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// logicalQueue maps an internal sub-queue to the queue callers know
func logicalQueue(queue string) string {
	if queue == queueSyncCritical {
		return QueueSync
	}
	return queue
}

// physicalQueues lists the asynq queues behind a logical queue
func physicalQueues(queue string) []string {
	if queue == QueueSync {
		return []string{QueueSync, queueSyncCritical}
	}
	return []string{queue}
}
