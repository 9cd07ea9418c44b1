package worker

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mixmaster-audio/pipeline/internal/analysis"
	"github.com/mixmaster-audio/pipeline/internal/audio"
	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
	"github.com/mixmaster-audio/pipeline/internal/platform/logger"
	"github.com/mixmaster-audio/pipeline/internal/ports"
)

type passthroughStage struct {
	pipeline.NoopProcess
}

func (passthroughStage) Analyse(_ context.Context, jc *pipeline.Context, c contracts.Contract) (analysis.Record, error) {
	return analysis.NewRecord(c, map[string]any{"ok": 1.0}, nil), nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func wavFixture(t *testing.T, sampleRate, frames int) []byte {
	t.Helper()
	m := &audio.Mixdown{Channels: audio.Stereo, Samples: make([]float64, frames*2)}
	w := audio.NewMemoryWriteSeeker()
	if err := audio.EncodeWAV(w, m, sampleRate, audio.EncodeWAVOptions{BitDepth: 16}); err != nil {
		t.Fatalf("EncodeWAV fixture: %v", err)
	}
	return w.Bytes()
}

func TestWorkerRunsOneJobToSuccess(t *testing.T) {
	doc := contracts.Document{Stages: map[string][]contracts.Contract{
		"g": {{ID: "check", Kind: contracts.KindAnalysisOnly, Ordinal: 0}},
	}}
	creg := contracts.NewRegistry()
	if err := creg.Load(doc); err != nil {
		t.Fatalf("Load: %v", err)
	}
	stages := pipeline.NewRegistry()
	stages.Register("check", passthroughStage{})

	store := ports.NewMemoryStore()
	queue := ports.NewMemoryQueue()
	orch := pipeline.NewOrchestrator(creg, stages, store, nil)

	ctx := context.Background()
	if err := store.PutInput(ctx, "job-1", "vox.wav", wavFixture(t, 48000, 10)); err != nil {
		t.Fatalf("PutInput: %v", err)
	}
	if err := queue.Push(ctx, ports.JobEnvelope{JobID: "job-1"}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	w := New(testLogger(t), queue, store, orch, 10*time.Millisecond, ports.ErrQueueEmpty)

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	w.Run(runCtx)

	st, ok, err := store.GetStatus(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("expected a status row, ok=%v err=%v", ok, err)
	}
	if st.Status != ports.StatusSuccess {
		t.Fatalf("expected success status, got %+v", st)
	}

	data, ok, err := store.GetArtifact(ctx, "job-1", "report.json")
	if err != nil || !ok || len(data) == 0 {
		t.Fatalf("expected report.json artifact, ok=%v err=%v", ok, err)
	}
	if !bytes.Contains(data, []byte("job-1")) {
		t.Fatalf("expected report to mention job id, got %s", data)
	}
}

func TestWorkerStopsOnContextCancellation(t *testing.T) {
	queue := ports.NewMemoryQueue()
	store := ports.NewMemoryStore()
	creg := contracts.NewRegistry()
	_ = creg.Load(contracts.Document{})
	orch := pipeline.NewOrchestrator(creg, pipeline.NewRegistry(), store, nil)
	w := New(testLogger(t), queue, store, orch, 10*time.Millisecond, ports.ErrQueueEmpty)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to return after context cancellation")
	}
}
