package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/pricefeed/internal/domain"
	"github.com/jonesrussell/pricefeed/internal/logger"
	"github.com/jonesrussell/pricefeed/internal/queue"
)

const (
	defaultWorkerCount  = 4
	defaultIdleInterval = 2 * time.Second
)

// Runner executes one feed run. A returned error marks the job attempt
// failed and eligible for queue retry.
type Runner interface {
	Run(ctx context.Context, feedID string, trigger domain.TriggerKind) error
}

// WorkQueue is the consume side of the work queue.
type WorkQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, cause error) error
}

// WorkerPool runs N goroutines consuming jobs from the queue.
type WorkerPool struct {
	queue  WorkQueue
	runner Runner
	log    logger.Logger

	workers      int
	idleInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// WorkerPoolConfig holds configuration options
type WorkerPoolConfig struct {
	Workers      int
	IdleInterval time.Duration
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(q WorkQueue, runner Runner, cfg WorkerPoolConfig, log logger.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = defaultIdleInterval
	}

	return &WorkerPool{
		queue:        q,
		runner:       runner,
		log:          log,
		workers:      cfg.Workers,
		idleInterval: cfg.IdleInterval,
		stopChan:     make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	p.log.Info("worker pool started", logger.Int("workers", p.workers))
}

// Stop gracefully stops the pool, waiting for in-flight runs.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.log.Error("dequeue failed",
				logger.Int("worker", id),
				logger.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}

		p.process(ctx, id, job)
	}
}

func (p *WorkerPool) process(ctx context.Context, id int, job *queue.Job) {
	p.log.Debug("job picked up",
		logger.Int("worker", id),
		logger.String("job_id", job.ID),
		logger.String("feed_id", job.FeedID),
		logger.Int("attempt", job.Attempt))

	if runErr := p.runner.Run(ctx, job.FeedID, job.Trigger); runErr != nil {
		if failErr := p.queue.Fail(ctx, job, runErr); failErr != nil {
			p.log.Error("job fail handling errored",
				logger.String("job_id", job.ID),
				logger.Error(failErr))
		}
		return
	}

	if ackErr := p.queue.Ack(ctx, job); ackErr != nil {
		p.log.Error("job ack failed",
			logger.String("job_id", job.ID),
			logger.Error(ackErr))
	}
}

func (p *WorkerPool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-p.stopChan:
	case <-time.After(p.idleInterval):
	}
}
