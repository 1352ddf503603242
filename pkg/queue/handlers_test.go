package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-hub/pkg/config"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/json"
	"github.com/ajitpratap0/nebula-hub/pkg/orchestrator"
)

type stubSyncer struct {
	mu     sync.Mutex
	result *orchestrator.SyncJobResult
	err    error
	calls  []SyncJobPayload
}

func (s *stubSyncer) SyncSystem(ctx context.Context, systemID string, opts orchestrator.SyncOptions) (*orchestrator.SyncJobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, SyncJobPayload{
		SystemID:          systemID,
		Tables:            opts.Tables,
		IncrementalColumn: opts.IncrementalColumn,
		LastSyncAt:        opts.LastSyncAt,
	})
	return s.result, s.err
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) record(percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, percent)
}

func testQueueConfig() config.QueueConfig {
	cfg := config.Default().Queue
	cfg.SyncRatePerMinute = 0
	cfg.EmbeddingRatePerMinute = 0
	return cfg
}

func TestProcessSync(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		result      *orchestrator.SyncJobResult
		wantSuccess bool
		wantErr     bool
		wantErrors  []string
	}{
		{
			name: "success",
			result: &orchestrator.SyncJobResult{
				Status:        orchestrator.StatusSuccess,
				RowsProcessed: 42,
				Errors:        []orchestrator.TableError{},
			},
			wantSuccess: true,
		},
		{
			name: "partial counts as success",
			result: &orchestrator.SyncJobResult{
				Status:        orchestrator.StatusPartial,
				RowsProcessed: 5,
				Errors:        []orchestrator.TableError{{Table: "A", Error: "boom"}},
			},
			wantSuccess: true,
			wantErrors:  []string{"A: boom"},
		},
		{
			name: "failed sync returns an error",
			result: &orchestrator.SyncJobResult{
				Status: orchestrator.StatusFailed,
				Errors: []orchestrator.TableError{{Table: "A", Error: "boom"}, {Table: "B", Error: "bang"}},
			},
			wantErr:    true,
			wantErrors: []string{"A: boom", "B: bang"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &stubSyncer{result: tt.result}
			h := NewHandlers(syncer, testQueueConfig(), zaptest.NewLogger(t))
			progress := &progressLog{}

			payload := SyncJobPayload{SystemID: "crm", Tables: []string{"A", "B"}, IncrementalColumn: "updated_at", LastSyncAt: &since}
			outcome, err := h.ProcessSync(context.Background(), payload, progress.record)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			require.NotNil(t, outcome)
			assert.Equal(t, tt.wantSuccess, outcome.Success)
			assert.Equal(t, tt.result.RowsProcessed, outcome.ProcessedCount)
			assert.Equal(t, tt.wantErrors, outcome.Errors)
			assert.Same(t, tt.result, outcome.Result)
			assert.Equal(t, []int{10, 80, 100}, progress.values)
			assert.Equal(t, []SyncJobPayload{payload}, syncer.calls)
		})
	}
}

func TestProcessSyncSyncerError(t *testing.T) {
	syncErr := errors.New(errors.ErrorTypeSystemNotFound, "system ghost not found")
	syncer := &stubSyncer{err: syncErr}
	h := NewHandlers(syncer, testQueueConfig(), zaptest.NewLogger(t))
	progress := &progressLog{}

	outcome, err := h.ProcessSync(context.Background(), SyncJobPayload{SystemID: "ghost"}, progress.record)
	require.Error(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, []string{syncErr.Error()}, outcome.Errors)
	assert.Equal(t, []int{10}, progress.values)
}

func TestHandleSync(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown system is not retried", func(t *testing.T) {
		syncErr := errors.New(errors.ErrorTypeSystemNotFound, "system ghost not found")
	syncer := &stubSyncer{err: syncErr}
		h := NewHandlers(syncer, testQueueConfig(), zaptest.NewLogger(t))
		payload, err := json.Marshal(SyncJobPayload{SystemID: "ghost"})
		require.NoError(t, err)

		err = h.HandleSync(ctx, asynq.NewTask(TaskSyncSystem, payload))
		require.Error(t, err)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("failed sync is retried", func(t *testing.T) {
		syncer := &stubSyncer{result: &orchestrator.SyncJobResult{Status: orchestrator.StatusFailed}}
		h := NewHandlers(syncer, testQueueConfig(), zaptest.NewLogger(t))
		payload, err := json.Marshal(SyncJobPayload{SystemID: "crm"})
		require.NoError(t, err)

		err = h.HandleSync(ctx, asynq.NewTask(TaskSyncSystem, payload))
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("success", func(t *testing.T) {
		syncer := &stubSyncer{result: &orchestrator.SyncJobResult{Status: orchestrator.StatusSuccess, RowsProcessed: 3}}
		h := NewHandlers(syncer, testQueueConfig(), zaptest.NewLogger(t))
		payload, err := json.Marshal(SyncJobPayload{SystemID: "crm", Tables: []string{"orders"}})
		require.NoError(t, err)

		require.NoError(t, h.HandleSync(ctx, asynq.NewTask(TaskSyncSystem, payload)))
		require.Len(t, syncer.calls, 1)
		assert.Equal(t, []string{"orders"}, syncer.calls[0].Tables)
	})

	t.Run("malformed payload", func(t *testing.T) {
		h := NewHandlers(&stubSyncer{}, testQueueConfig(), zaptest.NewLogger(t))
		err := h.HandleSync(ctx, asynq.NewTask(TaskSyncSystem, []byte("{not json")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}

type chunkStore struct {
	mu     sync.Mutex
	chunks [][]string
	err    error
}

func (s *chunkStore) IndexDocuments(ctx context.Context, systemID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(ids))
	copy(cp, ids)
	s.chunks = append(s.chunks, cp)
	return s.err
}

func TestProcessIndex(t *testing.T) {
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("crm:orders:%d", i)
	}

	store := &chunkStore{}
	h := NewHandlers(&stubSyncer{}, testQueueConfig(), zaptest.NewLogger(t)).WithDocumentStore(store)
	progress := &progressLog{}

	outcome, err := h.ProcessIndex(context.Background(), IndexJobPayload{SystemID: "crm", DocumentIDs: ids}, progress.record)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 250, outcome.ProcessedCount)
	assert.Equal(t, []int{10, 40, 70, 100}, progress.values)

	require.Len(t, store.chunks, 3)
	assert.Len(t, store.chunks[0], 100)
	assert.Len(t, store.chunks[1], 100)
	assert.Len(t, store.chunks[2], 50)
	assert.Equal(t, "crm:orders:249", store.chunks[2][49])
}

func TestProcessIndexEdgeCases(t *testing.T) {
	t.Run("no documents", func(t *testing.T) {
		h := NewHandlers(&stubSyncer{}, testQueueConfig(), zaptest.NewLogger(t))
		progress := &progressLog{}
		outcome, err := h.ProcessIndex(context.Background(), IndexJobPayload{SystemID: "crm"}, progress.record)
		require.NoError(t, err)
		assert.Equal(t, 0, outcome.ProcessedCount)
		assert.Equal(t, []int{10, 100}, progress.values)
	})

	t.Run("store failure", func(t *testing.T) {
		store := &chunkStore{err: fmt.Errorf("index offline")}
		h := NewHandlers(&stubSyncer{}, testQueueConfig(), zaptest.NewLogger(t)).WithDocumentStore(store)
		outcome, err := h.ProcessIndex(context.Background(), IndexJobPayload{SystemID: "crm", DocumentIDs: []string{"a"}}, func(int) {})
		require.Error(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, []string{"index offline"}, outcome.Errors)
	})
}

type fixedEmbedder struct{ vector []float32 }

func (e fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector, nil
}

type vectorStore struct {
	stored map[string][]float32
}

func (s *vectorStore) StoreEmbedding(ctx context.Context, id string, v []float32) error {
	if s.stored == nil {
		s.stored = make(map[string][]float32)
	}
	s.stored[id] = v
	return nil
}

func TestProcessEmbedding(t *testing.T) {
	store := &vectorStore{}
	h := NewHandlers(&stubSyncer{}, testQueueConfig(), zaptest.NewLogger(t)).
		WithEmbedder(fixedEmbedder{vector: []float32{0.1, 0.2}}).
		WithEmbeddingStore(store)
	progress := &progressLog{}

	outcome, err := h.ProcessEmbedding(context.Background(), EmbeddingJobPayload{DocumentID: "crm:orders:1", Text: "rush order"}, progress.record)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, outcome.ProcessedCount)
	assert.Equal(t, []float32{0.1, 0.2}, store.stored["crm:orders:1"])
	assert.Equal(t, []int{10, 100}, progress.values)
}

func TestProcessEmbeddingDefaultsToNoop(t *testing.T) {
	h := NewHandlers(&stubSyncer{}, testQueueConfig(), zaptest.NewLogger(t)).WithEmbedder(nil).WithEmbeddingStore(nil)
	outcome, err := h.ProcessEmbedding(context.Background(), EmbeddingJobPayload{DocumentID: "d1", Text: "x"}, func(int) {})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
}

func TestPerMinute(t *testing.T) {
	limited := perMinute(10)
	for i := 0; i < 10; i++ {
		assert.True(t, limited.Allow(), "burst slot %d", i)
	}
	assert.False(t, limited.Allow())

	unlimited := perMinute(0)
	for i := 0; i < 1000; i++ {
		require.True(t, unlimited.Allow())
	}
}

func TestRateLimitHonorsContext(t *testing.T) {
	cfg := testQueueConfig()
	cfg.SyncRatePerMinute = 1
	syncer := &stubSyncer{result: &orchestrator.SyncJobResult{Status: orchestrator.StatusSuccess}}
	h := NewHandlers(syncer, cfg, zaptest.NewLogger(t))

	_, err := h.ProcessSync(context.Background(), SyncJobPayload{SystemID: "crm"}, func(int) {})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	outcome, err := h.ProcessSync(ctx, SyncJobPayload{SystemID: "crm"}, func(int) {})
	require.Error(t, err)
	assert.False(t, outcome.Success)
	assert.Len(t, syncer.calls, 1)
}

type lastWrite struct{ data []byte }

func (w *lastWrite) Write(p []byte) (int, error) {
	w.data = append([]byte(nil), p...)
	return len(p), nil
}

func TestRecorder(t *testing.T) {
	w := &lastWrite{}
	rec := &recorder{w: w}

	rec.progress(10)
	progress, result := decodeEnvelope(w.data)
	assert.Equal(t, 10, progress)
	assert.Nil(t, result)

	rec.progress(80)
	rec.progress(40)
	progress, _ = decodeEnvelope(w.data)
	assert.Equal(t, 80, progress, "progress never moves backwards")

	rec.progress(100)
	rec.finish(&JobOutcome{Success: true, ProcessedCount: 3, Duration: 12})
	progress, result = decodeEnvelope(w.data)
	assert.Equal(t, 100, progress)
	outcome, ok := result.(*JobOutcome)
	require.True(t, ok)
	assert.True(t, outcome.Success)
	assert.Equal(t, 3, outcome.ProcessedCount)
}

func TestDecodeEnvelopeForeignResults(t *testing.T) {
	progress, result := decodeEnvelope(nil)
	assert.Equal(t, 0, progress)
	assert.Nil(t, result)

	_, result = decodeEnvelope([]byte(`{"custom":true}`))
	assert.Equal(t, map[string]interface{}{"custom": true}, result)

	_, result = decodeEnvelope([]byte("plain text"))
	assert.Equal(t, "plain text", result)
}
