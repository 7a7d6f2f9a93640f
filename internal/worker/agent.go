// Package worker contains the pull-loop agent that claims and executes
// jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"crmforge/internal/crm"
	"crmforge/internal/logger"
	"crmforge/internal/notify"
	"crmforge/internal/observability"
	"crmforge/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrJobCancelled is returned by handlers that observe cooperative
// cancellation; the agent leaves such jobs in their cancelled state.
var ErrJobCancelled = errors.New("job cancelled")

// Handler executes one job type. On success it returns the job's result
// document.
type Handler interface {
	Type() store.JobType
	Handle(ctx context.Context, job *store.Job) (json.RawMessage, error)
}

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID                  string
	Concurrency         int
	PollInterval        time.Duration
	MaxBackoff          time.Duration // Maximum backoff when queue is empty (default: 30s)
	StaleClaimThreshold time.Duration // Processing jobs older than this are reclaimed (default: 10m)
	StaleSweepInterval  time.Duration // How often to sweep for stale claims (default: 1m)
}

// Agent is the main worker agent running the claim/execute loop.
type Agent struct {
	queue    store.Queue
	handlers map[store.JobType]Handler
	notifier notify.Notifier
	metrics  *observability.WorkerMetrics
	log      *slog.Logger
	config   AgentConfig
	done     chan struct{}
}

// New creates a worker agent with no handlers registered.
func New(q store.Queue, notifier notify.Notifier, metrics *observability.WorkerMetrics, log *slog.Logger, config AgentConfig) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.StaleClaimThreshold <= 0 {
		config.StaleClaimThreshold = 10 * time.Minute
	}
	if config.StaleSweepInterval <= 0 {
		config.StaleSweepInterval = 1 * time.Minute
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}

	return &Agent{
		queue:    q,
		handlers: make(map[store.JobType]Handler),
		notifier: notifier,
		metrics:  metrics,
		log:      log,
		config:   config,
		done:     make(chan struct{}),
	}
}

// Register adds a handler for its job type.
func (a *Agent) Register(h Handler) {
	a.handlers[h.Type()] = h
}

// Run starts the main pull-loop. It blocks until the context is
// cancelled; in-flight jobs are allowed to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("agent starting", "agent_id", a.config.ID, "concurrency", a.config.Concurrency)

	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal an immediate re-poll when a slot frees up.
	pollNow := make(chan struct{}, 1)
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
		}
	}

	// Backoff increases while the queue is empty, resets on work found.
	currentBackoff := a.config.PollInterval

	staleTicker := time.NewTicker(a.config.StaleSweepInterval)
	defer staleTicker.Stop()

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("context cancelled, waiting for running jobs to finish")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-staleTicker.C:
			a.sweepStale(ctx)

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			if len(sem) >= a.config.Concurrency {
				continue
			}

			job, err := a.queue.ClaimNext(ctx)
			if err != nil {
				a.log.Error("claim failed", "error", err)
				continue
			}
			if job == nil {
				currentBackoff *= 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			currentBackoff = a.config.PollInterval

			sem <- struct{}{}
			wg.Add(1)
			go func(job *store.Job) {
				defer wg.Done()
				defer func() {
					<-sem
					triggerPoll()
				}()
				// The job runs on its own context, detached from the
				// poll loop. A shutdown stops claiming but lets the
				// in-flight job execute and settle on the queue.
				a.process(context.WithoutCancel(ctx), job)
			}(job)

			// More work may be waiting; poll again while slots remain.
			triggerPoll()
		}
	}
}

// Done returns a channel closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// process runs one claimed job through its handler and settles the
// outcome on the queue.
func (a *Agent) process(ctx context.Context, job *store.Job) {
	ctx = logger.WithJobID(ctx, job.ID.String())
	log := logger.FromContext(ctx, a.log)

	tracer := otel.Tracer("crmforge-worker")
	ctx, span := tracer.Start(ctx, "job.process", trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.type", string(job.Type)),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer span.End()

	handler, ok := a.handlers[job.Type]
	if !ok {
		log.Error("no handler for job type", "type", job.Type)
		a.settleFailure(ctx, job, errors.New("no handler registered for job type"), false)
		return
	}

	log.Info("job started", "type", job.Type, "attempt", job.Attempts)

	result, err := handler.Handle(ctx, job)
	if err != nil {
		if errors.Is(err, ErrJobCancelled) {
			log.Info("job cancelled")
			a.notify(ctx, job, string(store.JobStatusCancelled), job.Progress, "cancelled")
			return
		}

		retryable := crm.IsRetryable(err)
		log.Warn("job failed", "error", err, "retryable", retryable)
		a.settleFailure(ctx, job, err, retryable)
		return
	}

	if err := a.queue.Complete(ctx, job.ID, result); err != nil {
		// A concurrent cancel can win the race; nothing to settle then.
		if errors.Is(err, store.ErrJobNotClaimable) {
			log.Info("job no longer processing, skipping completion")
			return
		}
		log.Error("failed to complete job", "error", err)
		return
	}

	if a.metrics != nil {
		a.metrics.JobsCompleted.Add(ctx, 1)
	}
	log.Info("job completed")
	a.notify(ctx, job, string(store.JobStatusCompleted), 100, "completed")
}

func (a *Agent) settleFailure(ctx context.Context, job *store.Job, cause error, retryable bool) {
	if err := a.queue.Fail(ctx, job.ID, cause.Error(), retryable); err != nil {
		if !errors.Is(err, store.ErrJobNotClaimable) {
			a.log.Error("failed to record job failure", "job_id", job.ID.String(), "error", err)
		}
		return
	}

	willRetry := retryable && job.Attempts < job.MaxAttempts
	if a.metrics != nil {
		if willRetry {
			a.metrics.JobsRetried.Add(ctx, 1)
		} else {
			a.metrics.JobsFailed.Add(ctx, 1)
		}
	}

	status := string(store.JobStatusFailed)
	if willRetry {
		status = string(store.JobStatusPending)
	}
	a.notify(ctx, job, status, job.Progress, cause.Error())
}

func (a *Agent) sweepStale(ctx context.Context) {
	reclaimed, err := a.queue.ReclaimStale(ctx, a.config.StaleClaimThreshold)
	if err != nil {
		a.log.Error("stale sweep failed", "error", err)
		return
	}
	if reclaimed > 0 {
		a.log.Warn("reclaimed stale jobs", "count", reclaimed)
	}
}

// notify is best-effort; it never blocks job settlement.
func (a *Agent) notify(ctx context.Context, job *store.Job, status string, progress int, message string) {
	a.notifier.Notify(ctx, notify.Event{
		JobID:     job.ID,
		DatasetID: job.DatasetID,
		Status:    status,
		Progress:  progress,
		Message:   message,
		At:        time.Now().UTC(),
	})
}
