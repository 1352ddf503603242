package queue

import (
	"context"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/orchestrator"
)

// Queue names
const (
	QueueSync      = "sync"
	QueueIndex     = "index"
	QueueEmbedding = "embedding"

	// queueSyncCritical carries sync jobs submitted with a positive priority.
	// It is served by the sync workers ahead of QueueSync.
	queueSyncCritical = "sync_critical"
)

// Task types
const (
	TaskSyncSystem        = "sync:system"
	TaskIndexDocuments    = "index:documents"
	TaskEmbeddingDocument = "embedding:document"
)

// Queues returns the logical queue names
func Queues() []string {
	return []string{QueueSync, QueueIndex, QueueEmbedding}
}

// JobState is the lifecycle state of a queued job
type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateDelayed   JobState = "delayed"
	StateUnknown   JobState = "unknown"
)

// SyncJobPayload asks a sync worker to sync one system
type SyncJobPayload struct {
	SystemID          string     `json:"systemId"`
	Tables            []string   `json:"tables,omitempty"`
	IncrementalColumn string     `json:"incrementalColumn,omitempty"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
}

// SyncOptions converts the payload into orchestrator options
func (p SyncJobPayload) SyncOptions() orchestrator.SyncOptions {
	return orchestrator.SyncOptions{
		Tables:            p.Tables,
		IncrementalColumn: p.IncrementalColumn,
		LastSyncAt:        p.LastSyncAt,
	}
}

// IndexJobPayload asks an index worker to index documents of a system
type IndexJobPayload struct {
	SystemID    string   `json:"systemId"`
	DocumentIDs []string `json:"documentIds"`
}

// EmbeddingJobPayload asks an embedding worker to embed one document's text
type EmbeddingJobPayload struct {
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
}

// JobOptions are submission hints
type JobOptions struct {
	// Priority > 0 routes a sync job ahead of regular sync jobs
	Priority int `json:"priority,omitempty"`
	// Delay postpones the first attempt
	Delay time.Duration `json:"delay,omitempty"`
}

// JobOutcome is the structured result a worker records for a job
type JobOutcome struct {
	Success        bool                        `json:"success"`
	ProcessedCount int                         `json:"processedCount"`
	Duration       int64                       `json:"duration"`
	Errors         []string                    `json:"errors,omitempty"`
	Result         *orchestrator.SyncJobResult `json:"result,omitempty"`
}

// JobStatus is a point-in-time view of one job
type JobStatus struct {
	ID          string      `json:"id"`
	Queue       string      `json:"queue"`
	Type        string      `json:"type"`
	State       JobState    `json:"state"`
	Progress    int         `json:"progress"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	Attempts    int         `json:"attempts"`
	MaxAttempts int         `json:"maxAttempts"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// QueueStats counts the jobs of one queue by state
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
	Total     int `json:"total"`
}

func (s *QueueStats) add(o QueueStats) {
	s.Waiting += o.Waiting
	s.Active += o.Active
	s.Completed += o.Completed
	s.Failed += o.Failed
	s.Delayed += o.Delayed
	s.Total = s.Waiting + s.Active + s.Completed + s.Failed + s.Delayed
}

// Syncer runs a system sync. *orchestrator.Orchestrator implements it.
type Syncer interface {
	SyncSystem(ctx context.Context, systemID string, opts orchestrator.SyncOptions) (*orchestrator.SyncJobResult, error)
}

// DocumentStore indexes normalized documents by id
type DocumentStore interface {
	IndexDocuments(ctx context.Context, systemID string, documentIDs []string) error
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingStore persists document vectors
type EmbeddingStore interface {
	StoreEmbedding(ctx context.Context, documentID string, vector []float32) error
}

// NoopDocumentStore accepts every document without storing it
type NoopDocumentStore struct{}

// IndexDocuments does nothing
func (NoopDocumentStore) IndexDocuments(context.Context, string, []string) error { return nil }

// NoopEmbedder returns an empty vector
type NoopEmbedder struct{}

// Embed returns nil
func (NoopEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }

// NoopEmbeddingStore discards vectors
type NoopEmbeddingStore struct{}

// StoreEmbedding does nothing
func (NoopEmbeddingStore) StoreEmbedding(context.Context, string, []float32) error { return nil }
