// Package app assembles FairForm's components from a validated
// configuration. Both binaries and the fairform CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GBSLIT/FairForm/internal/api"
	"github.com/GBSLIT/FairForm/internal/auth"
	"github.com/GBSLIT/FairForm/internal/config"
	"github.com/GBSLIT/FairForm/internal/database"
	"github.com/GBSLIT/FairForm/internal/formula"
	"github.com/GBSLIT/FairForm/internal/graph"
	"github.com/GBSLIT/FairForm/internal/model"
	"github.com/GBSLIT/FairForm/internal/pipeline"
	"github.com/GBSLIT/FairForm/internal/processing"
	"github.com/GBSLIT/FairForm/internal/queue"
	"github.com/GBSLIT/FairForm/internal/repository"
	"github.com/GBSLIT/FairForm/internal/s3storage"
	"github.com/GBSLIT/FairForm/internal/storage"
	"github.com/GBSLIT/FairForm/internal/upload"
	"github.com/GBSLIT/FairForm/internal/worker"
)

// ErrQueueNotConfigured is returned by RunWorker without a Redis address or
// formula column.
var ErrQueueNotConfigured = errors.New("worker needs REDIS_ADDR and FORMULA_COLUMN")

// AuditStore is satisfied by the in-memory store and the Postgres repository.
type AuditStore interface {
	Save(ctx context.Context, entry *model.AuditEntry) error
	Get(ctx context.Context, id string) (*model.AuditEntry, error)
	MarkFormula(ctx context.Context, id, address, warning string) error
}

// App holds the long-lived collaborators.
type App struct {
	Config *config.Config
	Graph  *graph.Client
	Tokens *auth.Provider
	Audit  AuditStore

	db      *pgxpool.Pool
	pool    *processing.Pool
	closers []func()
}

// New connects the audit store and builds the Graph client and token
// provider. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		Graph:  graph.New(cfg),
		Tokens: auth.NewProvider(cfg),
	}
	if cfg.DatabaseURL == "" {
		a.Audit = storage.NewMemoryStore()
		return a, nil
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	a.db = pool
	a.closers = append(a.closers, pool.Close)
	a.Audit = repository.NewSubmissionRepository(pool)
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Patcher returns an inline formula patcher for the configured column.
func (a *App) Patcher() *formula.Patcher {
	return formula.New(a.Graph, a.Config.Formula)
}

// Pipeline builds the submission pipeline. The formula step is the asynq
// queue when Redis is configured, the in-process pool when Formula.Async is
// set, and the inline patcher otherwise.
func (a *App) Pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	cfg := a.Config
	opts := []pipeline.Option{pipeline.WithAudit(a.Audit)}

	if cfg.Formula.Enabled() {
		switch {
		case cfg.RedisAddr != "":
			client := asynq.NewClient(redisOpt(cfg))
			a.closers = append(a.closers, func() { _ = client.Close() })
			opts = append(opts, pipeline.WithFormula(queue.NewEnqueuer(client)))
			log.Printf("formula patches queued on %s", cfg.RedisAddr)
		case cfg.Formula.Async:
			if a.pool == nil {
				a.pool = processing.New(worker.NewProcessor(a.Tokens, a.Patcher(), a.Audit), cfg.WorkerPool)
			}
			opts = append(opts, pipeline.WithFormula(a.pool))
			log.Printf("formula patches run on %d background workers", cfg.WorkerPool)
		default:
			opts = append(opts, pipeline.WithFormula(a.Patcher()))
		}
	}

	if cfg.Archive.Enabled() {
		archive, err := s3storage.New(cfg.Archive)
		if err != nil {
			return nil, err
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithArchive(archive))
		log.Printf("attachments mirrored to bucket %s", cfg.Archive.Bucket)
	}

	uploader := upload.New(a.Graph, cfg.UploadConcurrency)
	return pipeline.New(a.Tokens, a.Graph, uploader, opts...), nil
}

// StartBackground launches the in-process formula workers, if any. They stop
// when ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) {
	if a.pool != nil {
		a.pool.Start(ctx)
	}
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	p, err := a.Pipeline(ctx)
	if err != nil {
		return err
	}
	a.StartBackground(ctx)
	err = api.New(a.Config, p, a.Audit).Run(ctx)
	if a.pool != nil {
		a.pool.Wait()
	}
	return err
}

// RunWorker consumes queued formula patches until ctx is cancelled. Outcomes
// are recorded only when the audit log is shared through Postgres.
func (a *App) RunWorker(ctx context.Context) error {
	cfg := a.Config
	if cfg.RedisAddr == "" || !cfg.Formula.Enabled() {
		return ErrQueueNotConfigured
	}
	var recorder worker.FormulaRecorder
	if a.db != nil {
		recorder = a.Audit
	}
	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: cfg.WorkerPool,
	})
	processor := worker.NewProcessor(a.Tokens, a.Patcher(), recorder)

	log.Printf("worker consuming %s with %d workers", queue.FormulaPatchTask, cfg.WorkerPool)
	if err := server.Start(processor.Handler()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	<-ctx.Done()
	server.Shutdown()
	return nil
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
