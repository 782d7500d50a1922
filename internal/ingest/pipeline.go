// Package ingest implements the core pipeline: a bounded producer/consumer
// queue with adaptive backpressure, the tiered action decoder, and the
// per-transaction processing that persists filter-matched actions.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/si-chain/eosio-plugin/internal/chain"
	"github.com/si-chain/eosio-plugin/internal/metrics"
)

// Backpressure tuning. The delay adapts in fixed steps while the queue keeps
// growing across successive blocked enqueues.
const (
	backpressureStep = 100 * time.Millisecond
	backpressureMin  = 100 * time.Millisecond
)

// Config holds pipeline configuration.
type Config struct {
	// QueueTarget is the backpressure threshold: producers start sleeping
	// before appending once the queue exceeds it. The queue itself is
	// unbounded.
	QueueTarget int

	// StartBlock gates persistence: below this height no documents are
	// built or written, but registry/schema mutation still occurs. Zero
	// means enabled immediately.
	StartBlock uint32

	// FilterContracts lists the account names whose actions are persisted.
	// Empty persists nothing.
	FilterContracts []string
}

// DefaultConfig returns the defaults used by the daemon.
func DefaultConfig() Config {
	return Config{QueueTarget: 256}
}

// Pipeline owns the shared queue, the single consumer worker, and the
// per-transaction processing state. The queue is the only structure needing
// mutual exclusion: registry, cache, and store are touched only from the
// consumer worker (and from the producer during the temporally disjoint
// startup replay phase).
type Pipeline struct {
	cfg     Config
	decoder *Decoder
	actions ActionWriter
	filter  map[string]struct{}
	logger  *slog.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	queue []*chain.TransactionMeta
	done  bool

	startup atomic.Bool
	started atomic.Bool
	stopped chan struct{}

	// producer-thread only: adaptive backpressure state, persisted across
	// blocked enqueues.
	sleepFor time.Duration
	lastLen  int

	// consumer-thread only (plus the startup replay phase).
	startBlockReached bool
}

// New assembles a pipeline. It starts in startup mode: Submit processes
// inline until Start is called.
func New(cfg Config, accounts AccountStore, abis ABIResolver, actions ActionWriter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueTarget <= 0 {
		cfg.QueueTarget = DefaultConfig().QueueTarget
	}

	filter := make(map[string]struct{}, len(cfg.FilterContracts))
	for _, name := range cfg.FilterContracts {
		filter[name] = struct{}{}
	}

	p := &Pipeline{
		cfg:               cfg,
		decoder:           NewDecoder(accounts, abis, logger),
		actions:           actions,
		filter:            filter,
		logger:            logger.With("component", "pipeline"),
		stopped:           make(chan struct{}),
		sleepFor:          backpressureMin,
		startBlockReached: cfg.StartBlock == 0,
	}
	p.cond = sync.NewCond(&p.mu)
	p.startup.Store(true)
	return p
}

// Submit is the producer entry point. During the startup replay phase the
// event is processed synchronously so replayed history is durable before
// normal operation begins; afterwards it is enqueued with adaptive
// backpressure. Never panics into the caller: the event source must not be
// stalled or crashed by this pipeline.
func (p *Pipeline) Submit(t *chain.TransactionMeta) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while submitting accepted transaction", "panic", r)
		}
	}()

	if p.startup.Load() {
		p.safeProcess(t)
		return
	}
	p.enqueue(t)
}

// enqueue appends with best-effort throttling: past the target size the
// producer sleeps for an adaptive delay first, but the element is always
// appended afterwards.
func (p *Pipeline) enqueue(t *chain.TransactionMeta) {
	p.mu.Lock()
	if len(p.queue) > p.cfg.QueueTarget {
		qlen := len(p.queue)
		p.mu.Unlock()
		p.cond.Signal()

		if qlen > p.lastLen {
			p.sleepFor += backpressureStep
		} else if p.sleepFor > backpressureMin {
			p.sleepFor -= backpressureStep
		}
		p.lastLen = qlen
		time.Sleep(p.sleepFor)

		p.mu.Lock()
	}
	p.queue = append(p.queue, t)
	metrics.QueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()
	p.cond.Signal()
}

// Start spawns the consumer worker and leaves startup mode.
func (p *Pipeline) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.consume()
	p.startup.Store(false)
}

// Shutdown signals the consumer, which drains any already-enqueued events
// before exiting, and joins it. Safe to call once after Start; a no-op if
// the pipeline never started.
func (p *Pipeline) Shutdown() {
	if !p.started.Load() {
		return
	}
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		<-p.stopped
		return
	}
	p.done = true
	p.mu.Unlock()
	p.cond.Signal()
	<-p.stopped
}

// consume is the single worker loop: wait for work or shutdown, swap the
// whole pending queue into a private batch so producers keep filling a fresh
// one, process the batch in order, repeat.
func (p *Pipeline) consume() {
	defer close(p.stopped)

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.done {
			p.cond.Wait()
		}
		batch := p.queue
		p.queue = nil
		done := p.done
		metrics.QueueDepth.Set(0)
		p.mu.Unlock()

		size := len(batch)
		if size > (p.cfg.QueueTarget*3)/4 {
			p.logger.Warn("queue size", "size", size)
		} else if done {
			p.logger.Info("draining queue", "size", size)
		}

		for _, t := range batch {
			p.safeProcess(t)
		}

		if size == 0 && done {
			break
		}
	}

	p.logger.Info("consume thread shutdown gracefully")
}

// safeProcess processes one event with a catch-all: a failure loses that
// single event, never the worker.
func (p *Pipeline) safeProcess(t *chain.TransactionMeta) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing accepted transaction",
				"trx_id", t.ID,
				"panic", r,
			)
		}
	}()
	p.processTransaction(context.Background(), t)
}
