// Package service is the boundary the route layer calls: source management,
// introspection, sync triggering with queue fallback and job administration.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/logger"
	"github.com/ajitpratap0/nebula-hub/pkg/metrics"
	"github.com/ajitpratap0/nebula-hub/pkg/orchestrator"
	"github.com/ajitpratap0/nebula-hub/pkg/queue"
)

// Orchestrator is the part of *orchestrator.Orchestrator the service uses
type Orchestrator interface {
	RegisterSystem(ctx context.Context, id string, cfg core.ConnectionConfig) error
	UnregisterSystem(ctx context.Context, id string) error
	ListSystems() []string
	Connector(id string) (core.Connector, error)
	TestConnection(ctx context.Context, id string) (*core.ConnectorHealth, error)
	ListTables(ctx context.Context, id string) ([]string, error)
	GetTableSchema(ctx context.Context, id, table string) (*core.TableSchema, error)
	ExecuteQuery(ctx context.Context, id, query string, params []interface{}) (*core.QueryResult, error)
	SyncSystem(ctx context.Context, id string, opts orchestrator.SyncOptions) (*orchestrator.SyncJobResult, error)
}

// Queue is the part of *queue.Manager the service uses
type Queue interface {
	Available() bool
	AddSyncJob(ctx context.Context, p queue.SyncJobPayload, opts queue.JobOptions) (string, error)
	ScheduleRecurringSync(p queue.SyncJobPayload, cronSpec string) (string, error)
	GetJob(ctx context.Context, queueName, id string) (*queue.JobStatus, error)
	Stats(ctx context.Context) (map[string]queue.QueueStats, error)
	RetryJob(ctx context.Context, queueName, id string) error
	CancelJob(ctx context.Context, queueName, id string) error
	ListFailedJobs(ctx context.Context, queueName string, limit int) ([]*queue.JobStatus, error)
}

var (
	_ Orchestrator = (*orchestrator.Orchestrator)(nil)
	_ Queue        = (*queue.Manager)(nil)
)

// TriggerRequest describes one sync trigger
type TriggerRequest struct {
	Tables            []string      `json:"tables,omitempty"`
	IncrementalColumn string        `json:"incrementalColumn,omitempty"`
	LastSyncAt        *time.Time    `json:"lastSyncAt,omitempty"`
	Priority          int           `json:"priority,omitempty"`
	Delay             time.Duration `json:"delay,omitempty"`
}

// TriggerResult reports which path a sync took. Queued syncs carry the job
// id; synchronous syncs carry the finished result.
type TriggerResult struct {
	Queued bool                        `json:"queued"`
	JobID  string                      `json:"jobId"`
	Result *orchestrator.SyncJobResult `json:"result,omitempty"`
}

// Service wires the orchestrator to the job queue
type Service struct {
	orch   Orchestrator
	queue  Queue
	logger *zap.Logger
}

// New creates a service. A nil queue, including a nil *queue.Manager, and a
// queue whose broker is unavailable all select the synchronous path.
func New(orch Orchestrator, q Queue, log *zap.Logger) *Service {
	if log == nil {
		log = logger.Get()
	}
	if q != nil && !q.Available() {
		q = nil
	}
	return &Service{
		orch:   orch,
		queue:  q,
		logger: log.With(zap.String("component", "service")),
	}
}

// RegisterSystem connects and registers a source
func (s *Service) RegisterSystem(ctx context.Context, id string, cfg core.ConnectionConfig) error {
	return s.orch.RegisterSystem(ctx, id, cfg)
}

// UnregisterSystem disconnects and removes a source
func (s *Service) UnregisterSystem(ctx context.Context, id string) error {
	return s.orch.UnregisterSystem(ctx, id)
}

// ListSystems returns the registered source ids
func (s *Service) ListSystems() []string {
	return s.orch.ListSystems()
}

// TestConnection health-checks a source
func (s *Service) TestConnection(ctx context.Context, id string) (*core.ConnectorHealth, error) {
	return s.orch.TestConnection(ctx, id)
}

// ListTables lists a source's tables
func (s *Service) ListTables(ctx context.Context, id string) ([]string, error) {
	return s.orch.ListTables(ctx, id)
}

// GetTableSchema introspects one table
func (s *Service) GetTableSchema(ctx context.Context, id, table string) (*core.TableSchema, error) {
	return s.orch.GetTableSchema(ctx, id, table)
}

// ExecuteQuery runs an ad-hoc query when the source's adapter supports it
func (s *Service) ExecuteQuery(ctx context.Context, id, query string, params []interface{}) (*core.QueryResult, error) {
	return s.orch.ExecuteQuery(ctx, id, query, params)
}

// TriggerSync queues a sync of a registered source. When the broker is not
// available the sync runs synchronously instead and the result says so.
func (s *Service) TriggerSync(ctx context.Context, id string, req TriggerRequest) (*TriggerResult, error) {
	if _, err := s.orch.Connector(id); err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("system_id", id))

	payload := queue.SyncJobPayload{
		SystemID:          id,
		Tables:            req.Tables,
		IncrementalColumn: req.IncrementalColumn,
		LastSyncAt:        req.LastSyncAt,
	}

	var err error
	if s.queue != nil {
		var jobID string
		jobID, err = s.queue.AddSyncJob(ctx, payload, queue.JobOptions{Priority: req.Priority, Delay: req.Delay})
		if err == nil {
			log.Info("sync queued", zap.String("job_id", jobID))
			return &TriggerResult{Queued: true, JobID: jobID}, nil
		}
		if !errors.IsType(err, errors.ErrorTypeQueueUnavailable) {
			return nil, err
		}
	}

	log.Info("queue unavailable, running sync synchronously", zap.NamedError("queue_error", err))
	metrics.QueueJobs.WithLabelValues(queue.QueueSync, "fallback").Inc()

	result, err := s.orch.SyncSystem(ctx, id, payload.SyncOptions())
	if err != nil {
		return nil, err
	}
	return &TriggerResult{Queued: false, JobID: result.JobID, Result: result}, nil
}

// ScheduleSync registers a recurring sync of a registered source
func (s *Service) ScheduleSync(ctx context.Context, id, cronSpec string, req TriggerRequest) (string, error) {
	if _, err := s.orch.Connector(id); err != nil {
		return "", err
	}
	if s.queue == nil {
		return "", errors.New(errors.ErrorTypeQueueUnavailable, "queue system not available")
	}
	return s.queue.ScheduleRecurringSync(queue.SyncJobPayload{
		SystemID:          id,
		Tables:            req.Tables,
		IncrementalColumn: req.IncrementalColumn,
		LastSyncAt:        req.LastSyncAt,
	}, cronSpec)
}

// JobStatus returns a job's state and progress, or nil when unknown
func (s *Service) JobStatus(ctx context.Context, queueName, id string) (*queue.JobStatus, error) {
	if s.queue == nil {
		return nil, nil
	}
	return s.queue.GetJob(ctx, queueName, id)
}

// QueueStats returns per-queue job counts
func (s *Service) QueueStats(ctx context.Context) (map[string]queue.QueueStats, error) {
	if s.queue == nil {
		stats := make(map[string]queue.QueueStats)
		for _, q := range queue.Queues() {
			stats[q] = queue.QueueStats{}
		}
		return stats, nil
	}
	return s.queue.Stats(ctx)
}

// RetryJob re-runs a failed job
func (s *Service) RetryJob(ctx context.Context, queueName, id string) error {
	if s.queue == nil {
		return errors.New(errors.ErrorTypeQueueUnavailable, "queue system not available")
	}
	return s.queue.RetryJob(ctx, queueName, id)
}

// CancelJob removes a job
func (s *Service) CancelJob(ctx context.Context, queueName, id string) error {
	if s.queue == nil {
		return errors.New(errors.ErrorTypeQueueUnavailable, "queue system not available")
	}
	return s.queue.CancelJob(ctx, queueName, id)
}

// ListFailedJobs returns up to limit failed jobs of a queue
func (s *Service) ListFailedJobs(ctx context.Context, queueName string, limit int) ([]*queue.JobStatus, error) {
	if s.queue == nil {
		return []*queue.JobStatus{}, nil
	}
	return s.queue.ListFailedJobs(ctx, queueName, limit)
}
