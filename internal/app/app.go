// Package app wires the worker process together: config, logger, tracing,
// the contract and stage registries, transport adapters, and the worker
// loop itself. It mirrors the teacher's internal/app bootstrap (one New
// that builds every collaborator, one Start that launches background
// work, one Close that tears it down) adapted from an HTTP+DB service to
// a queue-driven pipeline worker.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mixmaster-audio/pipeline/internal/contracts"
	"github.com/mixmaster-audio/pipeline/internal/pipeline"
	"github.com/mixmaster-audio/pipeline/internal/platform/config"
	"github.com/mixmaster-audio/pipeline/internal/platform/logger"
	"github.com/mixmaster-audio/pipeline/internal/platform/telemetry"
	"github.com/mixmaster-audio/pipeline/internal/ports"
	"github.com/mixmaster-audio/pipeline/internal/ports/pgstore"
	"github.com/mixmaster-audio/pipeline/internal/ports/redisprogress"
	"github.com/mixmaster-audio/pipeline/internal/ports/redisqueue"
	"github.com/mixmaster-audio/pipeline/internal/stages"
	"github.com/mixmaster-audio/pipeline/internal/worker"
)

// App holds every long-lived collaborator the worker process needs.
type App struct {
	Log          *logger.Logger
	Cfg          config.Config
	Contracts    *contracts.Registry
	Orchestrator *pipeline.Orchestrator
	Worker       *worker.Worker
	Queue        ports.JobQueue // exposed for cmd/worker's submit command
	Store        ports.JobStore

	queue           *redisqueue.Queue   // nil when running offline against the in-memory queue
	progress        *redisprogress.Sink // nil when running offline
	store           *pgstore.Store      // nil when running offline against the in-memory store
	shutdownTracing func(context.Context) error

	cancel context.CancelFunc
}

// New builds a fully-wired App from environment/overlay configuration.
// Offline mode (MIX_OFFLINE=true, the default for local/dev runs) uses the
// in-memory queue and store from internal/ports instead of redis/postgres,
// so the worker is runnable with zero external services.
func New() (*App, error) {
	log, err := logger.New(os.Getenv("MIX_LOG_MODE"))
	if err != nil {
		return nil, fmt.Errorf("app: init logger: %w", err)
	}

	log.Info("loading configuration")
	cfg, err := config.Load(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("app: load config: %w", err)
	}

	contractsReg := contracts.NewRegistry()
	if cfg.ContractsPath != "" {
		f, err := os.Open(cfg.ContractsPath)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("app: open contracts file: %w", err)
		}
		defer f.Close()
		if err := contractsReg.LoadFromReader(f); err != nil {
			log.Sync()
			return nil, fmt.Errorf("app: load contracts file: %w", err)
		}
	} else if err := contractsReg.LoadDefault(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("app: load default contracts: %w", err)
	}

	stageReg := pipeline.NewRegistry()
	stages.RegisterDefaults(stageReg, cfg.StemWorkerPoolSize)

	var a App
	a.Log = log
	a.Cfg = cfg
	a.Contracts = contractsReg

	var jobQueue ports.JobQueue
	var jobStore ports.JobStore
	var progressSink ports.ProgressSink

	if cfg.Offline {
		log.Info("offline mode: using in-memory queue and store")
		jobQueue = ports.NewMemoryQueue()
		mem := ports.NewMemoryStore()
		jobStore = mem
		progressSink = &loggingProgressSink{log: log, store: mem}
	} else {
		q, err := redisqueue.New(log, cfg.RedisAddr, cfg.RedisQueueKey, 5*time.Second)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("app: init redis queue: %w", err)
		}
		a.queue = q
		jobQueue = q

		var pg *pgstore.Store
		if cfg.SQLitePath != "" && cfg.PostgresDSN == "" {
			pg, err = pgstore.OpenSQLite(cfg.SQLitePath, log)
		} else {
			pg, err = pgstore.OpenPostgres(cfg.PostgresDSN, log)
		}
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("app: init job store: %w", err)
		}
		a.store = pg
		jobStore = pg

		prog, err := redisprogress.New(log, cfg.RedisAddr, "mix:progress:", pg)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("app: init progress sink: %w", err)
		}
		a.progress = prog
		progressSink = prog
	}

	a.Queue = jobQueue
	a.Store = jobStore

	artifactSink := ports.JobStoreArtifactSink{Store: jobStore}
	orchestrator := pipeline.NewOrchestrator(contractsReg, stageReg, artifactSink, progressSink)
	a.Orchestrator = orchestrator

	emptyErrs := []error{ports.ErrQueueEmpty, redisqueue.ErrPopTimeout}
	a.Worker = worker.New(log, jobQueue, jobStore, orchestrator, cfg.WorkerPollInterval, emptyErrs...)

	a.shutdownTracing = telemetry.Init(context.Background(), log, cfg.TracingEnabled)

	return &a, nil
}

// Start launches the worker loop on its own goroutine. It is a no-op if
// already started.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.Worker.Run(ctx)
}

// Close stops the worker loop, flushes tracing, and closes the redis queue
// and progress clients; the gorm job store is not closed here.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.shutdownTracing != nil {
		_ = a.shutdownTracing(context.Background())
	}
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if a.progress != nil {
		_ = a.progress.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// loggingProgressSink is the offline-mode ProgressSink: it mirrors each
// event into the in-memory store's status blob the same way
// redisprogress.Sink does ("running", then "success" once StageIndex
// reaches TotalStages; failure and cancellation are written by the worker
// loop) and logs every event instead of publishing to a channel nobody
// outside the process could subscribe to anyway.
type loggingProgressSink struct {
	log   *logger.Logger
	store ports.JobStore
}

func (s *loggingProgressSink) Emit(ctx context.Context, ev ports.ProgressEvent) error {
	s.log.Info("stage progress", "job_id", ev.JobID, "stage_id", ev.StageID, "index", ev.StageIndex, "total", ev.TotalStages, "message", ev.Message)
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
	})
}
