// Package redisprogress implements ports.ProgressSink by publishing each
// ProgressEvent to a per-job redis pub/sub channel (so an SSE/websocket
// layer can forward it live, mirroring the teacher's internal/realtime/bus
// redisBus.Publish) and mirroring each event into the JobStore's status
// blob: "running" per stage and "success" once StageIndex reaches
// TotalStages. Failure and cancellation events are stored as "running"
// with the error in Message; the worker loop writes those terminal states.
package redisprogress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mixmaster-audio/pipeline/internal/platform/logger"
	"github.com/mixmaster-audio/pipeline/internal/ports"
)

// Sink publishes progress over redis pub/sub and updates durable status in
// a JobStore.
type Sink struct {
	log           *logger.Logger
	rdb           *goredis.Client
	channelPrefix string
	store         ports.JobStore
}

// New dials redis and returns a Sink. store may be nil, in which case only
// the pub/sub broadcast happens (useful when status durability is handled
// elsewhere, e.g. directly by the worker loop).
func New(log *logger.Logger, addr, channelPrefix string, store ports.JobStore) (*Sink, error) {
	if addr == "" {
		return nil, fmt.Errorf("redisprogress: missing redis address")
	}
	if channelPrefix == "" {
		channelPrefix = "mix:progress:"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisprogress: ping: %w", err)
	}
	return &Sink{log: log, rdb: rdb, channelPrefix: channelPrefix, store: store}, nil
}

// Emit publishes ev to this job's channel and, if a JobStore was supplied,
// mirrors it into a Status blob. Publish failures are logged but do not
// fail the call — a dropped progress tick must never abort a running job
// (§4.7: progress is best-effort, terminal status is not).
func (s *Sink) Emit(ctx context.Context, ev ports.ProgressEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redisprogress: marshal event: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channelPrefix+ev.JobID, raw).Err(); err != nil && s.log != nil {
		s.log.Warn("progress publish failed", "job_id", ev.JobID, "error", err)
	}

	if s.store == nil {
		return nil
	}
	status := ports.StatusRunning
	if ev.StageIndex >= ev.TotalStages && ev.TotalStages > 0 {
		status = ports.StatusSuccess
	}
	return s.store.SetStatus(ctx, ev.JobID, ports.Status{
		JobID:       ev.JobID,
		Status:      status,
		StageIndex:  ev.StageIndex,
		TotalStages: ev.TotalStages,
		StageKey:    ev.StageID,
		Message:     ev.Message,
		Progress:    progressPercent(ev.StageIndex, ev.TotalStages),
	})
}

func progressPercent(index, total int) int {
	if total <= 0 {
		return 0
	}
	if index >= total {
		return 100
	}
	return (index + 1) * 100 / total
}

// Close releases the underlying redis client.
func (s *Sink) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
