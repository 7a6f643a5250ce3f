package builder

import (
	"context"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned by Start while a previous run's worker has
// not fully stopped.
var ErrAlreadyRunning = errors.New("a build is already running")

// InterruptFlag is the single point of coordination between the owning
// context and the worker. The owner sets it, the worker reads it between
// items; it is never cleared for the lifetime of its run.
type InterruptFlag struct {
	mu  sync.Mutex
	set bool
}

// Request marks the flag. Safe to call from any goroutine, any number of
// times.
func (f *InterruptFlag) Request() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

// Requested reports whether an interruption has been asked for.
func (f *InterruptFlag) Requested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Builder drives a TxProducer on a worker goroutine, reporting status
// transitions, 1-based progress and the final result sequence over an
// ordered event channel. At most one run is active per Builder; the flag,
// status and results are recreated on every Start.
//
// Event delivery blocks the worker rather than dropping events, so an
// owner that stops draining must call Abandon to let the worker unwind.
type Builder struct {
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	flag    *InterruptFlag
	cancel  context.CancelFunc
	done    chan struct{}
	status  Status
	results []*wire.MsgTx
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used by worker runs.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// New returns an idle Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		logger: zerolog.Nop(),
		status: StatusNotStarted,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches a worker for producer and returns its event channel.
// Events arrive in emission order and the channel closes after the
// finished event. Start fails with ErrAlreadyRunning until the previous
// run's worker has stopped, so owners cancel and wait before retrying.
func (b *Builder) Start(ctx context.Context, producer TxProducer) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.flag = &InterruptFlag{}
	b.cancel = cancel
	b.done = make(chan struct{})
	b.status = StatusNotStarted
	b.results = nil

	events := make(chan Event, 16)
	go b.run(runCtx, producer, events, b.flag)
	return events, nil
}

// RequestCancellation asks the current worker to stop at its next check
// point. It returns immediately; the run ends when the worker observes
// the flag and reports Interrupted.
func (b *Builder) RequestCancellation() {
	b.mu.Lock()
	flag := b.flag
	b.mu.Unlock()
	if flag != nil {
		flag.Request()
	}
}

// Abandon cancels the run context so a worker blocked inside the producer
// or on event delivery unwinds without the owner draining the channel.
func (b *Builder) Abandon() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run's worker has fully stopped. It
// returns immediately if no run was ever started.
func (b *Builder) Wait() {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a worker is active.
func (b *Builder) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Status returns the last status the worker reported.
func (b *Builder) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Results returns the result sequence of the last run, or nil if the run
// was interrupted, failed, or never completed. Callers must not modify
// the returned slice.
func (b *Builder) Results() []*wire.MsgTx {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.results
}

func (b *Builder) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

func (b *Builder) setResults(results []*wire.MsgTx) {
	b.mu.Lock()
	b.results = results
	b.mu.Unlock()
}

func (b *Builder) finishRun() {
	b.mu.Lock()
	b.running = false
	b.cancel = nil
	done := b.done
	b.mu.Unlock()
	close(done)
}

func (b *Builder) run(ctx context.Context, producer TxProducer, events chan<- Event, flag *InterruptFlag) {
	defer b.finishRun()
	defer close(events)
	defer func() {
		if err := producer.Close(); err != nil {
			b.logger.Debug().Err(err).Msg("producer close failed")
		}
	}()

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	b.logger.Debug().Msg("build run started")
	b.setStatus(StatusBuilding)
	if !send(Event{Type: EventStatusChanged, Status: StatusBuilding}) {
		return
	}

	var results []*wire.MsgTx
	for {
		tx, err := producer.Next(ctx)
		if err != nil {
			b.logger.Debug().Err(err).Int("built", len(results)).Msg("build run failed")
			send(Event{Type: EventFailed, Err: err})
			send(Event{Type: EventFinished})
			return
		}
		if tx == nil {
			break
		}

		// The flag is checked once per item, after the draw. A run that
		// was cancelled delivers nothing, however far it got.
		if flag.Requested() {
			results = nil
			b.logger.Debug().Msg("build run interrupted")
			b.setStatus(StatusInterrupted)
			send(Event{Type: EventStatusChanged, Status: StatusInterrupted})
			send(Event{Type: EventFinished})
			return
		}

		results = append(results, tx)
		if !send(Event{Type: EventProgress, Progress: len(results)}) {
			return
		}
	}

	if len(results) > 0 {
		b.setStatus(StatusFinished)
		if !send(Event{Type: EventStatusChanged, Status: StatusFinished}) {
			return
		}
	}
	b.setResults(results)
	b.logger.Debug().Int("count", len(results)).Msg("build run finished")
	if !send(Event{Type: EventResultsReady, Results: results}) {
		return
	}
	send(Event{Type: EventFinished})
}
