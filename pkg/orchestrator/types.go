package orchestrator

import (
	"context"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/models"
)

// DefaultBatchSize is the row ceiling of a single table sync
const DefaultBatchSize = 1000

// AllTables is the table name recorded when the table list itself could not be resolved
const AllTables = "*"

// SyncStatus is the final state of a system sync
type SyncStatus string

const (
	// StatusSuccess means every table synced without error
	StatusSuccess SyncStatus = "success"
	// StatusPartial means some tables failed but rows were still processed
	StatusPartial SyncStatus = "partial"
	// StatusFailed means nothing was processed
	StatusFailed SyncStatus = "failed"
)

// Config tunes the orchestrator
type Config struct {
	// BatchSize caps the rows fetched per table per sync
	BatchSize int
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{BatchSize: DefaultBatchSize}
}

// TableSyncOptions selects the incremental window of one table sync.
// The window applies only when both fields are set.
type TableSyncOptions struct {
	IncrementalColumn string     `json:"incrementalColumn,omitempty"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
}

// SyncOptions selects what a system sync covers. An empty Tables list syncs every table.
type SyncOptions struct {
	Tables            []string   `json:"tables,omitempty"`
	IncrementalColumn string     `json:"incrementalColumn,omitempty"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
}

// TableError records the failure of one table
type TableError struct {
	Table string `json:"table"`
	Error string `json:"error"`
}

// TableSyncResult is the outcome of one table sync
type TableSyncResult struct {
	RowsProcessed int                          `json:"rowsProcessed"`
	Documents     []*models.NormalizedDocument `json:"documents"`
}

// SyncJobResult summarizes a system sync. It is returned for every sync of a
// registered system, including syncs where every table failed.
type SyncJobResult struct {
	JobID           string        `json:"jobId"`
	SystemID        string        `json:"systemId"`
	Status          SyncStatus    `json:"status"`
	TablesProcessed int           `json:"tablesProcessed"`
	RowsProcessed   int           `json:"rowsProcessed"`
	Errors          []TableError  `json:"errors"`
	StartedAt       time.Time     `json:"startedAt"`
	CompletedAt     time.Time     `json:"completedAt"`
	Duration        time.Duration `json:"-"`
	DurationMs      int64         `json:"duration"`
}

// DocumentSink receives the documents produced by each table sync.
// Document persistence lives outside this module; integrators plug a store in here.
type DocumentSink interface {
	StoreDocuments(ctx context.Context, systemID, table string, docs []*models.NormalizedDocument) error
}

func resolveStatus(errs []TableError, rows int) SyncStatus {
	switch {
	case len(errs) == 0:
		return StatusSuccess
	case rows > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
