package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultChunkSize     = 5
	defaultQueueLimit    = 200
	flushTimeout         = 10 * time.Second
)

// BatcherDeps wires the dependencies required by the event batcher.
type BatcherDeps struct {
	Sinks         []Sink
	Audience      *Audience
	FlushInterval time.Duration
	ChunkSize     int
	QueueLimit    int
	Logger        *zap.Logger
	Clock         func() time.Time
}

// Batcher queues outbound events and flushes them in priority order to every
// configured sink. Dispatch failures are logged and dropped, never retried:
// a lost analytics event must never fail or block the checkout path. Under a
// sustained downstream outage this policy loses events silently.
type Batcher struct {
	sinks         []Sink
	audience      *Audience
	flushInterval time.Duration
	chunkSize     int
	queueLimit    int
	logger        *zap.Logger
	now           func() time.Time

	mu    sync.Mutex
	queue []Event

	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBatcher constructs a Batcher. A batcher with no sinks still accepts and
// drains events; analytics loss must never block the checkout path.
func NewBatcher(deps BatcherDeps) (*Batcher, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := deps.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	chunk := deps.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	limit := deps.QueueLimit
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	return &Batcher{
		sinks:         deps.Sinks,
		audience:      deps.Audience,
		flushInterval: interval,
		chunkSize:     chunk,
		queueLimit:    limit,
		logger:        logger,
		now:           clock,
		kick:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
	}, nil
}

// Add enqueues an event at the given priority. A pending event with the same
// resolved name is replaced rather than queued twice. High priority events
// trigger an immediate out-of-band flush in addition to the periodic timer.
func (b *Batcher) Add(event Event, priority Priority) {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	event.Priority = priority
	event.EnqueuedAt = b.now()

	b.mu.Lock()
	replaced := false
	name := event.Name()
	for i, pending := range b.queue {
		if pending.Name() == name {
			b.queue[i] = event
			replaced = true
			break
		}
	}
	if !replaced {
		if len(b.queue) >= b.queueLimit {
			b.mu.Unlock()
			b.logger.Warn("batcher: queue full, dropping event", zap.String("event", name))
			return
		}
		b.queue = append(b.queue, event)
	}
	b.mu.Unlock()

	if priority == PriorityHigh {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Run drives the periodic flush loop until Close or context cancellation.
func (b *Batcher) Run(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.Flush(ctx)
			case <-b.kick:
				b.Flush(ctx)
			case <-b.stop:
				b.Flush(context.Background())
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the flush loop after a final drain.
func (b *Batcher) Close() {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
	b.wg.Wait()
}

// QueueDepth reports the number of pending events.
func (b *Batcher) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Flush drains the queue and dispatches every pending event, higher priority
// first, in fixed-size chunks. The queue is cleared regardless of dispatch
// outcome.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})

	for start := 0; start < len(pending); start += b.chunkSize {
		end := start + b.chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		b.dispatchChunk(ctx, pending[start:end])
	}
}

func (b *Batcher) dispatchChunk(ctx context.Context, chunk []Event) {
	for _, event := range chunk {
		dispatchCtx, cancel := context.WithTimeout(ctx, flushTimeout)

		send := event
		if b.audience != nil {
			enhanced, ok := b.audience.EnhanceEvent(dispatchCtx, event)
			if !ok {
				cancel()
				b.logger.Debug("batcher: event suppressed for excluded customer",
					zap.String("event", event.Name()),
				)
				continue
			}
			send = enhanced
		}

		for _, sink := range b.sinks {
			if err := sink.Deliver(dispatchCtx, send); err != nil {
				b.logger.Warn("batcher: dispatch failed",
					zap.String("sink", sink.Name()),
					zap.String("event", send.Name()),
					zap.Error(err),
				)
			}
		}
		cancel()
	}
}
