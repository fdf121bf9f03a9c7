package paymentgateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/isp-billing/internal"
	paymentgatewaytypes "github.com/frahmantamala/isp-billing/internal/core/datamodel/paymentgateway"
)

var ErrSchedulerClosed = errors.New("settlement scheduler is shut down")

// Settler performs one settlement.
type Settler interface {
	Settle(ctx context.Context, job paymentgatewaytypes.SettlementJob) (*paymentgatewaytypes.SettlementResult, error)
}

// Timer is the handle returned by AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc runs f once d has elapsed.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Worker struct {
	ID         int
	WorkerPool chan chan paymentgatewaytypes.SettlementJob
	JobChannel chan paymentgatewaytypes.SettlementJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan paymentgatewaytypes.SettlementJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan paymentgatewaytypes.SettlementJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(paymentgatewaytypes.SettlementJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "transaction_id", job.GatewayReference)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Config struct {
	SettlementDelay time.Duration
	MaxWorkers      int
	JobQueueSize    int
	WorkerPoolSize  int
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = fn }
}

// Scheduler holds each settlement until its due time, then hands it to a fixed
// pool of workers through a bounded queue.
type Scheduler struct {
	settler   Settler
	delay     time.Duration
	now       func() time.Time
	afterFunc AfterFunc
	logger    *slog.Logger

	mu     sync.Mutex
	timers map[int64]Timer
	closed bool

	jobQueue   chan paymentgatewaytypes.SettlementJob
	workerPool chan chan paymentgatewaytypes.SettlementJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewScheduler(settler Settler, config Config, logger *slog.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	workerPoolSize := config.WorkerPoolSize
	if workerPoolSize <= 0 {
		workerPoolSize = maxWorkers
	}

	delay := config.SettlementDelay
	if delay < 0 {
		delay = 0
	}

	s := &Scheduler{
		settler:    settler,
		delay:      delay,
		now:        time.Now,
		afterFunc:  realAfterFunc,
		logger:     logger,
		timers:     make(map[int64]Timer),
		maxWorkers: maxWorkers,
		jobQueue:   make(chan paymentgatewaytypes.SettlementJob, jobQueueSize),
		workerPool: make(chan chan paymentgatewaytypes.SettlementJob, workerPoolSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.startWorkerPool()
	return s
}

func (s *Scheduler) startWorkerPool() {
	s.once.Do(func() {
		for i := 0; i < s.maxWorkers; i++ {
			worker := NewWorker(i, s.workerPool, s.logger)
			worker.Start(s.ctx, &s.wg, s.process)
		}

		s.wg.Add(1)
		go s.dispatch()

		s.logger.Info("settlement worker pool started",
			"max_workers", s.maxWorkers,
			"queue_size", cap(s.jobQueue),
			"settlement_delay", s.delay.String())
	})
}

func (s *Scheduler) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobQueue:
			select {
			case jobChannel := <-s.workerPool:
				select {
				case jobChannel <- job:
				case <-s.ctx.Done():
					s.logger.Info("dispatcher shutting down")
					return
				}
			case <-s.ctx.Done():
				s.logger.Info("dispatcher shutting down")
				return
			}
		case <-s.ctx.Done():
			s.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// Schedule arms a timer for InitiatedAt plus the settlement delay. A job already
// waiting for the same transaction is not armed twice.
func (s *Scheduler) Schedule(job paymentgatewaytypes.SettlementJob) error {
	if err := job.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if _, armed := s.timers[job.TransactionID]; armed {
		s.logger.Debug("settlement already scheduled", "transaction_id", job.GatewayReference)
		return nil
	}

	initiatedAt := job.InitiatedAt
	if initiatedAt.IsZero() {
		initiatedAt = s.now()
	}
	wait := initiatedAt.Add(s.delay).Sub(s.now())
	if wait < 0 {
		wait = 0
	}

	s.timers[job.TransactionID] = s.afterFunc(wait, func() { s.fire(job) })

	s.logger.Info("settlement scheduled",
		"transaction_id", job.GatewayReference,
		"due_in", wait.String())
	return nil
}

func (s *Scheduler) fire(job paymentgatewaytypes.SettlementJob) {
	s.mu.Lock()
	delete(s.timers, job.TransactionID)
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}

	select {
	case s.jobQueue <- job:
		s.logger.Debug("settlement job queued",
			"transaction_id", job.GatewayReference,
			"queue_length", len(s.jobQueue))
	case <-s.ctx.Done():
		s.logger.Warn("settlement dropped during shutdown", "transaction_id", job.GatewayReference)
	}
}

func (s *Scheduler) process(job paymentgatewaytypes.SettlementJob) {
	result, err := s.settler.Settle(s.ctx, job)
	if err != nil {
		if errors.Is(err, internal.ErrAlreadySettled) {
			s.logger.Info("settlement skipped, transaction already terminal", "transaction_id", job.GatewayReference)
			return
		}
		if errors.Is(err, context.Canceled) {
			s.logger.Warn("settlement interrupted by shutdown", "transaction_id", job.GatewayReference)
			return
		}
		s.logger.Error("settlement job failed",
			"transaction_id", job.GatewayReference,
			"error", err)
		return
	}

	s.logger.Info("settlement job finished",
		"transaction_id", result.GatewayReference,
		"status", result.Status,
		"attempts", result.Attempts)
}

// Pending reports how many settlements are waiting for their timer.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown stops armed timers, then stops the workers and waits for them. Jobs
// whose timers were stopped stay processing and are picked up by recovery.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stopped := 0
	for id, t := range s.timers {
		if t.Stop() {
			stopped++
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.logger.Info("shutting down settlement scheduler", "timers_stopped", stopped)
	s.cancel()
	s.wg.Wait()
	s.logger.Info("settlement scheduler shutdown complete")
}
