package ports

import (
	"context"
	"testing"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	_ = q.Push(ctx, JobEnvelope{JobID: "a"})
	_ = q.Push(ctx, JobEnvelope{JobID: "b"})

	first, err := q.Pop(ctx)
	if err != nil || first.JobID != "a" {
		t.Fatalf("expected job a first, got %+v err=%v", first, err)
	}
	second, err := q.Pop(ctx)
	if err != nil || second.JobID != "b" {
		t.Fatalf("expected job b second, got %+v err=%v", second, err)
	}
	if _, err := q.Pop(ctx); err != ErrQueueEmpty {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.SetStatus(ctx, "job-1", Status{JobID: "job-1", Status: StatusRunning}); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	st, ok, err := s.GetStatus(ctx, "job-1")
	if err != nil || !ok || st.Status != StatusRunning {
		t.Fatalf("expected running status, got %+v ok=%v err=%v", st, ok, err)
	}

	if err := s.PutArtifact(ctx, "job-1", "report.json", []byte(`{}`)); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	data, ok, err := s.GetArtifact(ctx, "job-1", "report.json")
	if err != nil || !ok || string(data) != `{}` {
		t.Fatalf("expected artifact round trip, got %s ok=%v err=%v", data, ok, err)
	}

	if err := s.PutInput(ctx, "job-1", "vox.wav", []byte{1, 2, 3}); err != nil {
		t.Fatalf("PutInput: %v", err)
	}
	inputs, err := s.GetInputs(ctx, "job-1")
	if err != nil || len(inputs["vox.wav"]) != 3 {
		t.Fatalf("expected one input, got %+v err=%v", inputs, err)
	}
}
