package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/metrics"
)

const cleanPageSize = 500

func validQueue(queue string) error {
	for _, q := range Queues() {
		if q == queue {
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeValidation, "unknown queue %q", queue)
}

func isNotFound(err error) bool {
	return errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound)
}

func jobState(s asynq.TaskState) JobState {
	switch s {
	case asynq.TaskStatePending:
		return StateWaiting
	case asynq.TaskStateActive:
		return StateActive
	case asynq.TaskStateCompleted:
		return StateCompleted
	case asynq.TaskStateArchived:
		return StateFailed
	case asynq.TaskStateScheduled, asynq.TaskStateRetry:
		return StateDelayed
	default:
		return StateUnknown
	}
}

func toJobStatus(info *asynq.TaskInfo) *JobStatus {
	progress, result := decodeEnvelope(info.Result)
	status := &JobStatus{
		ID:          info.ID,
		Queue:       logicalQueue(info.Queue),
		Type:        info.Type,
		State:       jobState(info.State),
		Progress:    progress,
		Result:      result,
		Error:       info.LastErr,
		Attempts:    info.Retried,
		MaxAttempts: info.MaxRetry + 1,
	}
	if info.State == asynq.TaskStateActive || info.State == asynq.TaskStateCompleted {
		status.Attempts++
	}
	if !info.CompletedAt.IsZero() {
		completed := info.CompletedAt
		status.CompletedAt = &completed
	}
	return status
}

// findTask looks a job up in every asynq queue behind the logical queue
func (m *Manager) findTask(queue, id string) (*asynq.TaskInfo, error) {
	for _, q := range physicalQueues(queue) {
		info, err := m.inspector.GetTaskInfo(q, id)
		if err == nil {
			return info, nil
		}
		if !isNotFound(err) {
			return nil, errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to read job %s", id)
		}
	}
	return nil, nil
}

// GetJob returns the job's state, progress and result. Unknown ids and an
// unavailable broker both yield nil.
func (m *Manager) GetJob(ctx context.Context, queue, id string) (*JobStatus, error) {
	if !m.available {
		return nil, nil
	}
	if err := validQueue(queue); err != nil {
		return nil, err
	}
	info, err := m.findTask(queue, id)
	if err != nil || info == nil {
		return nil, err
	}
	return toJobStatus(info), nil
}

// Stats counts jobs by state for every queue. All counts are zero when the
// broker is unavailable.
func (m *Manager) Stats(ctx context.Context) (map[string]QueueStats, error) {
	stats := make(map[string]QueueStats, len(Queues()))
	for _, queue := range Queues() {
		stats[queue] = QueueStats{}
	}
	if !m.available {
		return stats, nil
	}

	for _, queue := range Queues() {
		var total QueueStats
		for _, q := range physicalQueues(queue) {
			info, err := m.inspector.GetQueueInfo(q)
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return nil, errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to read %s stats", queue)
			}
			total.add(QueueStats{
				Waiting:   info.Pending,
				Active:    info.Active,
				Completed: info.Completed,
				Failed:    info.Archived,
				Delayed:   info.Scheduled + info.Retry,
			})
		}
		stats[queue] = total

		metrics.QueueDepth.WithLabelValues(queue, string(StateWaiting)).Set(float64(total.Waiting))
		metrics.QueueDepth.WithLabelValues(queue, string(StateActive)).Set(float64(total.Active))
		metrics.QueueDepth.WithLabelValues(queue, string(StateCompleted)).Set(float64(total.Completed))
		metrics.QueueDepth.WithLabelValues(queue, string(StateFailed)).Set(float64(total.Failed))
		metrics.QueueDepth.WithLabelValues(queue, string(StateDelayed)).Set(float64(total.Delayed))
	}
	return stats, nil
}

// RetryJob re-runs a failed job. Jobs in any other state are rejected with
// a job_state_mismatch error.
func (m *Manager) RetryJob(ctx context.Context, queue, id string) error {
	if !m.available {
		return m.unavailable("retry job")
	}
	if err := validQueue(queue); err != nil {
		return err
	}
	info, err := m.findTask(queue, id)
	if err != nil {
		return err
	}
	if info == nil {
		return errors.Newf(errors.ErrorTypeNotFound, "job %s not found in %s", id, queue)
	}
	if info.State != asynq.TaskStateArchived {
		return errors.Newf(errors.ErrorTypeJobState, "job %s is %s, only failed jobs can be retried", id, jobState(info.State)).
			WithDetail("state", string(jobState(info.State)))
	}
	if err := m.inspector.RunTask(info.Queue, id); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to retry job %s", id)
	}
	m.logger.Info("job retried", zap.String("queue", queue), zap.String("job_id", id))
	return nil
}

// CancelJob removes a job. Running jobs are cancelled first.
func (m *Manager) CancelJob(ctx context.Context, queue, id string) error {
	if !m.available {
		return m.unavailable("cancel job")
	}
	if err := validQueue(queue); err != nil {
		return err
	}
	info, err := m.findTask(queue, id)
	if err != nil {
		return err
	}
	if info == nil {
		return errors.Newf(errors.ErrorTypeNotFound, "job %s not found in %s", id, queue)
	}

	if info.State == asynq.TaskStateActive {
		if err := m.inspector.CancelProcessing(id); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to cancel job %s", id)
		}
		m.logger.Info("job cancellation requested", zap.String("queue", queue), zap.String("job_id", id))
		return nil
	}
	if err := m.inspector.DeleteTask(info.Queue, id); err != nil && !isNotFound(err) {
		return errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to remove job %s", id)
	}
	m.logger.Info("job removed", zap.String("queue", queue), zap.String("job_id", id))
	return nil
}

// ListFailedJobs returns up to limit failed jobs of a queue
func (m *Manager) ListFailedJobs(ctx context.Context, queue string, limit int) ([]*JobStatus, error) {
	if !m.available {
		return []*JobStatus{}, nil
	}
	if err := validQueue(queue); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	out := []*JobStatus{}
	for _, q := range physicalQueues(queue) {
		if len(out) >= limit {
			break
		}
		tasks, err := m.inspector.ListArchivedTasks(q, asynq.PageSize(limit-len(out)))
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to list failed jobs of %s", queue)
		}
		for _, t := range tasks {
			out = append(out, toJobStatus(t))
		}
	}
	return out, nil
}

// Clean removes completed jobs that finished more than grace ago and
// returns how many were removed
func (m *Manager) Clean(ctx context.Context, queue string, grace time.Duration) (int, error) {
	if !m.available {
		return 0, nil
	}
	if err := validQueue(queue); err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-grace)
	removed := 0
	for _, q := range physicalQueues(queue) {
		var stale []string
		for page := 1; ; page++ {
			tasks, err := m.inspector.ListCompletedTasks(q, asynq.PageSize(cleanPageSize), asynq.Page(page))
			if err != nil {
				if isNotFound(err) {
					break
				}
				return removed, errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to list completed jobs of %s", queue)
			}
			for _, t := range tasks {
				if t.CompletedAt.Before(cutoff) {
					stale = append(stale, t.ID)
				}
			}
			if len(tasks) < cleanPageSize {
				break
			}
		}
		for _, id := range stale {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if err := m.inspector.DeleteTask(q, id); err != nil {
				if isNotFound(err) {
					continue
				}
				return removed, errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to remove job %s", id)
			}
			removed++
		}
	}
	m.logger.Info("queue cleaned", zap.String("queue", queue), zap.Int("removed", removed), zap.Duration("grace", grace))
	return removed, nil
}

// Pause stops workers from picking up new jobs of a queue
func (m *Manager) Pause(ctx context.Context, queue string) error {
	return m.setPaused(queue, true)
}

// Resume lets workers pick up jobs of a paused queue again
func (m *Manager) Resume(ctx context.Context, queue string) error {
	return m.setPaused(queue, false)
}

func (m *Manager) setPaused(queue string, paused bool) error {
	if !m.available {
		return nil
	}
	if err := validQueue(queue); err != nil {
		return err
	}
	for _, q := range physicalQueues(queue) {
		var err error
		if paused {
			err = m.inspector.PauseQueue(q)
		} else {
			err = m.inspector.UnpauseQueue(q)
		}
		if err != nil && !isNotFound(err) {
			return errors.Wrapf(err, errors.ErrorTypeQueueUnavailable, "failed to update %s", q)
		}
	}
	m.logger.Info("queue state changed", zap.String("queue", queue), zap.Bool("paused", paused))
	return nil
}
