// Package worker bootstraps background jobs: email delivery and the hourly
// purge of expired password reset tokens. On PostgreSQL they run on the
// River job queue; on SQLite they run in-process.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/d9705996/confera/internal/mail"
	"github.com/d9705996/confera/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// PurgeInterval is how often expired reset tokens are cleared.
const PurgeInterval = time.Hour

// SendEmailArgs is the job payload for one outbound email.
type SendEmailArgs struct {
	Message mail.Message `json:"message"`
}

// Kind returns the unique job type identifier for email jobs.
func (SendEmailArgs) Kind() string { return "send_email" }

// InsertOpts caps retries so a dead relay does not grow the queue forever.
func (SendEmailArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// SendEmailWorker delivers SendEmailArgs through a mail.Sender.
type SendEmailWorker struct {
	river.WorkerDefaults[SendEmailArgs]
	Sender mail.Sender
}

// Work implements river.Worker.
func (w *SendEmailWorker) Work(ctx context.Context, job *river.Job[SendEmailArgs]) error {
	return w.Sender.Send(ctx, job.Args.Message)
}

// PurgeResetTokensArgs is the periodic job payload for the reset-token purge.
type PurgeResetTokensArgs struct{}

// Kind returns the unique job type identifier for purge jobs.
func (PurgeResetTokensArgs) Kind() string { return "purge_reset_tokens" }

// PurgeResetTokensWorker clears expired password reset tokens.
type PurgeResetTokensWorker struct {
	river.WorkerDefaults[PurgeResetTokensArgs]
	Store *store.Store
	Log   *slog.Logger
}

// Work implements river.Worker.
func (w *PurgeResetTokensWorker) Work(ctx context.Context, _ *river.Job[PurgeResetTokensArgs]) error {
	n, err := w.Store.PurgeExpiredResetTokens(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		w.Log.InfoContext(ctx, "purged expired reset tokens", "count", n)
	}
	return nil
}

// Queue is the interface exposed by both the River client and localQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	mail.Enqueuer
}

// Deps are the collaborators jobs need.
type Deps struct {
	Sender mail.Sender
	Store  *store.Store
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// EnqueueEmail inserts a send_email job.
func (c *Client) EnqueueEmail(ctx context.Context, msg mail.Message) error {
	if _, err := c.client.Insert(ctx, SendEmailArgs{Message: msg}, nil); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// localQueue is used when River is unavailable (DB_DRIVER=sqlite). Email is
// sent inline and the purge runs on a ticker.
type localQueue struct {
	email    *SendEmailWorker
	purge    *PurgeResetTokensWorker
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (q *localQueue) Start(ctx context.Context) error {
	q.log.Info("worker queue running in-process (sqlite driver, River requires postgres)")
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return nil
	}
	ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.done = make(chan struct{})
	go q.loop(ctx)
	return nil
}

func (q *localQueue) loop(ctx context.Context) {
	defer close(q.done)
	t := time.NewTicker(q.interval)
	defer t.Stop()
	for {
		q.runPurge(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (q *localQueue) runPurge(ctx context.Context) {
	if err := q.purge.Work(ctx, &river.Job[PurgeResetTokensArgs]{}); err != nil && ctx.Err() == nil {
		q.log.Error("purge reset tokens", "err", err)
	}
}

func (q *localQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel = nil
	q.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *localQueue) EnqueueEmail(ctx context.Context, msg mail.Message) error {
	return q.email.Work(ctx, &river.Job[SendEmailArgs]{Args: SendEmailArgs{Message: msg}})
}

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a fully-functional River client backed by pool.
//   - anything else: returns an in-process queue.
//
// pool may be nil when driver != "postgres".
func New(_ context.Context, pool *pgxpool.Pool, driver string, concurrency int, deps Deps, log *slog.Logger) (Queue, error) {
	emailWorker := &SendEmailWorker{Sender: deps.Sender}
	purgeWorker := &PurgeResetTokensWorker{Store: deps.Store, Log: log}

	if driver != "postgres" {
		return &localQueue{email: emailWorker, purge: purgeWorker, interval: PurgeInterval, log: log}, nil
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, emailWorker)
	river.AddWorker(workers, purgeWorker)

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: concurrency},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(PurgeInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return PurgeResetTokensArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
