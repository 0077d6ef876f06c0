// Package pool runs workers over the job queue with bounded concurrency.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/metrics"
	"github.com/JakeFAU/geo-ingest/internal/worker"
)

const (
	defaultConcurrency  = 4
	defaultDrainTimeout = 30 * time.Second
)

// Processor handles one delivery and must call cb.OnComplete exactly once.
type Processor interface {
	Process(ctx context.Context, delivery ingest.Delivery, cb ingest.Callback) worker.Outcome
}

// Config controls Pool behavior.
type Config struct {
	// Concurrency is the number of worker slots.
	Concurrency int
	// DrainTimeout bounds how long in-flight jobs may keep running after
	// Run's context is cancelled. Their context is cancelled afterwards.
	DrainTimeout time.Duration
}

// Pool pulls deliveries from a queue and hands each to the processor,
// holding a slot for the lifetime of the job.
type Pool struct {
	queue     ingest.Queue
	processor Processor
	cfg       Config
	slots     chan struct{}
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// New creates a Pool.
func New(queue ingest.Queue, processor Processor, cfg Config, logger *zap.Logger) (*Pool, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:     queue,
		processor: processor,
		cfg:       cfg,
		slots:     make(chan struct{}, cfg.Concurrency),
		logger:    logger,
	}, nil
}

// Run blocks until ctx is cancelled or the queue fails, then waits for
// in-flight jobs. A cancelled context is a clean stop and returns nil.
func (p *Pool) Run(ctx context.Context) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	err := p.loop(ctx, workCtx)
	p.drain(cancelWork)
	return err
}

func (p *Pool) loop(ctx, workCtx context.Context) error {
	for {
		waitStart := time.Now()
		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		metrics.ObserveSlotWait(time.Since(waitStart))

		delivery, err := p.queue.Dequeue(ctx)
		if err != nil {
			<-p.slots
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}

		p.wg.Add(1)
		c := &completion{pool: p, delivery: delivery}
		go p.process(workCtx, delivery, c)
	}
}

func (p *Pool) process(ctx context.Context, delivery ingest.Delivery, c *completion) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("processor panic",
				zap.String("job_id", delivery.Key),
				zap.Any("panic", r),
			)
		}
		if c.complete(delivery.Key) {
			p.logger.Warn("processor returned without completing; completed by pool",
				zap.String("job_id", delivery.Key),
			)
		}
	}()
	p.processor.Process(ctx, delivery, c)
}

func (p *Pool) drain(cancelWork context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(p.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return
	case <-timer.C:
		p.logger.Warn("drain timeout exceeded; cancelling in-flight jobs",
			zap.Duration("timeout", p.cfg.DrainTimeout),
		)
		cancelWork()
	}
	<-done
}

// InFlight reports the number of occupied slots.
func (p *Pool) InFlight() int {
	return len(p.slots)
}

// completion is the Callback handed to the processor for one delivery.
type completion struct {
	pool     *Pool
	delivery ingest.Delivery
	once     sync.Once
}

// OnComplete implements ingest.Callback.
func (c *completion) OnComplete(key string) {
	c.complete(key)
}

// complete acks the delivery and frees the slot. It reports whether this
// call did the work.
func (c *completion) complete(key string) bool {
	first := false
	c.once.Do(func() {
		first = true
		if err := c.delivery.Ack(); err != nil {
			metrics.ObserveAckFailure()
			c.pool.logger.Error("ack failed",
				zap.String("job_id", key),
				zap.Error(err),
			)
		}
		<-c.pool.slots
		c.pool.wg.Done()
	})
	return first
}
