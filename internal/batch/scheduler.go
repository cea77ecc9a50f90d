package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrBatchCountMismatch is delivered to every item of a batch whose
	// processor returned a different number of results than items
	ErrBatchCountMismatch = errors.New("batch result count mismatch")

	// ErrProcessPanic is delivered to every item of a batch whose processor panicked
	ErrProcessPanic = errors.New("batch processor panicked")

	// ErrClosed is delivered to items submitted to or pending in a closed scheduler
	ErrClosed = errors.New("scheduler closed")

	// ErrInvalidConfig is returned by New for unusable limits
	ErrInvalidConfig = errors.New("invalid batch config")
)

const (
	DefaultMaxBatchSize = 5
	DefaultMaxWaitTime  = 2 * time.Second
	DefaultConcurrency  = 2
)

// ProcessFunc handles one batch. On success it must return exactly one result
// per item, in item order.
type ProcessFunc[I, R any] func(ctx context.Context, items []I) ([]R, error)

// Config bounds batching
type Config struct {
	MaxBatchSize int           // Items per batch
	MaxWaitTime  time.Duration // Longest an item waits for its batch to fill
	Concurrency  int           // Batches processed at once
}

// DefaultConfig returns the default batching limits
func DefaultConfig() Config {
	return Config{
		MaxBatchSize: DefaultMaxBatchSize,
		MaxWaitTime:  DefaultMaxWaitTime,
		Concurrency:  DefaultConcurrency,
	}
}

// Stats is a point-in-time view of scheduler state
type Stats struct {
	Pending     int   // Items waiting for a batch
	InFlight    int   // Batches currently being processed
	TimerActive bool  // Whether a wait timer is armed
	Batches     int64 // Batches processed since creation
	Failed      int64 // Items resolved with an error
}

// Option configures a Scheduler
type Option func(*settings)

type settings struct {
	clock     clockwork.Clock
	logger    *slog.Logger
	errorHook any
}

// WithClock sets the clock that drives the wait timer
func WithClock(clock clockwork.Clock) Option {
	return func(s *settings) {
		s.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithErrorHook registers a function called with the error and payloads of
// every failed batch. Its item type must match the scheduler's.
func WithErrorHook[I any](hook func(err error, items []I)) Option {
	return func(s *settings) {
		s.errorHook = hook
	}
}

type request[I, R any] struct {
	item   I
	future *Future[R]
}

// Scheduler coalesces individually submitted items into batches for a
// ProcessFunc. A batch is flushed when MaxBatchSize items are pending or when
// the oldest pending item has waited MaxWaitTime, whichever comes first. At
// most Concurrency batches run at once.
type Scheduler[I, R any] struct {
	config    Config
	process   ProcessFunc[I, R]
	clock     clockwork.Clock
	logger    *slog.Logger
	errorHook func(err error, items []I)
	sem       *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pending  []*request[I, R]
	timer    clockwork.Timer
	timerGen uint64
	queued   int // flush goroutines that have not dequeued yet
	active   int // flush goroutines alive
	inFlight int
	batches  int64
	failed   int64
	idle     []chan struct{}
	closed   bool
}

// New creates a scheduler. Zero config fields take their defaults.
func New[I, R any](config Config, process ProcessFunc[I, R], opts ...Option) (*Scheduler[I, R], error) {
	if process == nil {
		return nil, fmt.Errorf("%w: process function is required", ErrInvalidConfig)
	}
	if config.MaxBatchSize < 0 || config.MaxWaitTime < 0 || config.Concurrency < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}

	defaults := DefaultConfig()
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = defaults.MaxWaitTime
	}
	if config.Concurrency == 0 {
		config.Concurrency = defaults.Concurrency
	}

	st := settings{
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&st)
	}
	if st.clock == nil {
		st.clock = clockwork.NewRealClock()
	}
	if st.logger == nil {
		st.logger = slog.Default()
	}

	var hook func(err error, items []I)
	if st.errorHook != nil {
		h, ok := st.errorHook.(func(err error, items []I))
		if !ok {
			return nil, fmt.Errorf("%w: error hook item type %T does not match scheduler", ErrInvalidConfig, st.errorHook)
		}
		hook = h
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler[I, R]{
		config:    config,
		process:   process,
		clock:     st.clock,
		logger:    st.logger,
		errorHook: hook,
		sem:       semaphore.NewWeighted(int64(config.Concurrency)),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Config returns the effective limits
func (s *Scheduler[I, R]) Config() Config {
	return s.config
}

// Submit enqueues an item and returns its future
func (s *Scheduler[I, R]) Submit(item I) *Future[R] {
	f := newFuture[R]()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		var zero R
		f.resolve(zero, ErrClosed)
		return f
	}

	s.pending = append(s.pending, &request[I, R]{item: item, future: f})

	if s.uncoveredLocked() >= s.config.MaxBatchSize {
		s.startFlushLocked()
		return f
	}

	if s.timer == nil {
		gen := s.timerGen
		s.timer = s.clock.AfterFunc(s.config.MaxWaitTime, func() {
			s.onTimer(gen)
		})
	}

	return f
}

// Do submits an item and waits for its result
func (s *Scheduler[I, R]) Do(ctx context.Context, item I) (R, error) {
	return s.Submit(item).Wait(ctx)
}

// Drain flushes pending items without waiting for the timer and blocks until
// nothing is pending or in flight.
func (s *Scheduler[I, R]) Drain(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed && s.uncoveredLocked() > 0 {
		s.startFlushLocked()
	}
	if len(s.pending) == 0 && s.active == 0 {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.idle = append(s.idle, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current scheduler state
func (s *Scheduler[I, R]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Pending:     len(s.pending),
		InFlight:    s.inFlight,
		TimerActive: s.timer != nil,
		Batches:     s.batches,
		Failed:      s.failed,
	}
}

// Close stops accepting items, fails everything still pending with ErrClosed
// and cancels the context passed to running batches.
func (s *Scheduler[I, R]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	pending := s.pending
	s.pending = nil
	s.failed += int64(len(pending))
	if s.active == 0 {
		s.notifyIdleLocked()
	}
	s.mu.Unlock()

	s.cancel()

	var zero R
	for _, req := range pending {
		req.future.resolve(zero, ErrClosed)
	}
	return nil
}

// uncoveredLocked counts pending items no queued flush will pick up
func (s *Scheduler[I, R]) uncoveredLocked() int {
	return len(s.pending) - s.queued*s.config.MaxBatchSize
}

func (s *Scheduler[I, R]) onTimer(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A flush already stopped this timer
	if gen != s.timerGen {
		return
	}
	s.timer = nil

	if !s.closed && s.uncoveredLocked() > 0 {
		s.startFlushLocked()
	}
}

func (s *Scheduler[I, R]) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Scheduler[I, R]) startFlushLocked() {
	s.stopTimerLocked()
	s.queued++
	s.active++
	go s.flush()
}

func (s *Scheduler[I, R]) flush() {
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		s.mu.Lock()
		s.queued--
		s.finishLocked()
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.queued--
	n := min(len(s.pending), s.config.MaxBatchSize)
	reqs := make([]*request[I, R], n)
	copy(reqs, s.pending[:n])
	s.pending = append(s.pending[:0:0], s.pending[n:]...)
	if n > 0 {
		s.inFlight++
	}
	s.mu.Unlock()

	failed := 0
	if n > 0 {
		failed = s.execute(reqs)
	}
	s.sem.Release(1)

	s.mu.Lock()
	if n > 0 {
		s.inFlight--
		s.batches++
		s.failed += int64(failed)
	}
	s.finishLocked()
	s.mu.Unlock()
}

// finishLocked retires a flush goroutine and schedules the next one
func (s *Scheduler[I, R]) finishLocked() {
	s.active--
	if !s.closed && s.uncoveredLocked() > 0 {
		s.startFlushLocked()
	}
	if len(s.pending) == 0 && s.active == 0 {
		s.notifyIdleLocked()
	}
}

func (s *Scheduler[I, R]) notifyIdleLocked() {
	for _, ch := range s.idle {
		close(ch)
	}
	s.idle = nil
}

// execute runs one batch and resolves every future in it. It returns the
// number of items resolved with an error.
func (s *Scheduler[I, R]) execute(reqs []*request[I, R]) int {
	batchID := uuid.NewString()
	items := make([]I, len(reqs))
	for i, req := range reqs {
		items[i] = req.item
	}

	start := s.clock.Now()
	s.logger.Debug("processing batch", "batch_id", batchID, "size", len(items))

	results, err := s.safeProcess(items)
	if err == nil && len(results) != len(items) {
		err = fmt.Errorf("%w: got %d results for %d items", ErrBatchCountMismatch, len(results), len(items))
	}

	if err != nil {
		s.logger.Warn("batch failed",
			"batch_id", batchID, "size", len(items), "error", err)
		if s.errorHook != nil {
			s.errorHook(err, items)
		}
		var zero R
		for _, req := range reqs {
			req.future.resolve(zero, err)
		}
		return len(reqs)
	}

	for i, req := range reqs {
		req.future.resolve(results[i], nil)
	}
	s.logger.Debug("batch complete",
		"batch_id", batchID, "size", len(items), "duration", s.clock.Since(start))
	return 0
}

func (s *Scheduler[I, R]) safeProcess(items []I) (results []R, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("%w: %v", ErrProcessPanic, r)
		}
	}()
	return s.process(s.ctx, items)
}
