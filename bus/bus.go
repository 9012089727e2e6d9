// Package bus delivers content status events to handlers on a pool of workers.
//
// Events of the same content item go to the same worker, so they are handled in publishing order.
// Each handler gets every event at least once: failed attempts are retried with exponential backoff,
// and successful deliveries are remembered for deduplication.
package bus

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/wansing/pressroom/core"
	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("event queue full")
	ErrClosed    = errors.New("event bus closed")
)

type Config struct {
	Workers        int
	QueueSize      int // per worker
	HandlerTimeout time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration // first backoff, doubled after each attempt
	DedupeWindow   int
}

func (cfg Config) withDefaults() Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.DedupeWindow == 0 {
		cfg.DedupeWindow = 4096
	}
	return cfg
}

type subscription struct {
	name    string
	types   map[core.ContentType]struct{} // empty means all
	handler core.EventHandler
}

func (s subscription) matches(t core.ContentType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus implements core.Dispatcher and core.Subscriber.
type Bus struct {
	cfg    Config
	logger *zap.Logger
	dedupe *Dedupe

	mu     sync.RWMutex // guards subs and closed, held while sending to shards
	subs   []subscription
	closed bool
	shards []chan core.StatusEvent

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func New(cfg Config, logger *zap.Logger) *Bus {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	var b = &Bus{
		cfg:    cfg,
		logger: logger,
		dedupe: NewDedupe(cfg.DedupeWindow),
		shards: make([]chan core.StatusEvent, cfg.Workers),
	}
	for i := range b.shards {
		b.shards[i] = make(chan core.StatusEvent, cfg.QueueSize)
	}
	return b
}

// Subscribe registers a handler. Names must be unique, they are part of the deduplication key.
func (b *Bus) Subscribe(name string, types []core.ContentType, h core.EventHandler) {
	var s = subscription{
		name:    name,
		types:   make(map[core.ContentType]struct{}),
		handler: h,
	}
	for _, t := range types {
		s.types[t] = struct{}{}
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
}

// Start launches the workers. Events published before are queued.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		for _, shard := range b.shards {
			b.wg.Add(1)
			go b.workerLoop(shard)
		}
	})
}

// Publish enqueues the event without blocking.
func (b *Bus) Publish(ctx context.Context, ev core.StatusEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.shards[b.shardOf(ev.Content.Ref)] <- ev:
		return nil
	default:
		b.logger.Warn("event queue full", zap.Stringer("content", ev.Content.Ref), zap.Stringer("event", ev.ID))
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until the queued events have been delivered.
func (b *Bus) Close() {
	b.Start()
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, shard := range b.shards {
			close(shard)
		}
		b.mu.Unlock()
		b.wg.Wait()
	})
}

func (b *Bus) shardOf(ref core.ContentRef) int {
	var h = fnv.New32a()
	h.Write([]byte(ref.String()))
	return int(h.Sum32() % uint32(len(b.shards)))
}

func (b *Bus) workerLoop(shard <-chan core.StatusEvent) {
	defer b.wg.Done()
	for ev := range shard {
		b.mu.RLock()
		var subs = make([]subscription, len(b.subs))
		copy(subs, b.subs)
		b.mu.RUnlock()
		for _, s := range subs {
			if s.matches(ev.Content.Ref.Type) {
				b.deliver(s, ev)
			}
		}
	}
}

func (b *Bus) deliver(s subscription, ev core.StatusEvent) {

	var key = DeliveryKey(s.name, ev)
	if b.dedupe.Seen(key) {
		b.logger.Debug("duplicate delivery skipped", zap.String("handler", s.name), zap.Stringer("event", ev.ID))
		return
	}

	var backoff = b.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := b.call(s.handler, ev)
		if err == nil {
			b.dedupe.Add(key)
			return
		}
		var fields = []zap.Field{
			zap.String("handler", s.name),
			zap.Stringer("event", ev.ID),
			zap.Stringer("content", ev.Content.Ref),
			zap.Int("attempt", attempt),
			zap.Error(err),
		}
		if !Retryable(err) || attempt >= b.cfg.MaxAttempts {
			b.logger.Error("event handler failed, giving up", fields...)
			return
		}
		b.logger.Warn("event handler failed, retrying", append(fields, zap.Duration("backoff", backoff))...)
		time.Sleep(backoff)
		backoff *= 2
	}
}

// call runs the handler with a timeout. A handler which ignores its context is abandoned after the timeout.
func (b *Bus) call(h core.EventHandler, ev core.StatusEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.HandlerTimeout)
	defer cancel()
	var done = make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- h(ctx, ev)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeliveryKey identifies the delivery of an event to a named handler.
func DeliveryKey(handler string, ev core.StatusEvent) string {
	return handler + "/" + ev.ID.String()
}

// Retryable returns false for errors marked with core.Permanent and for domain errors, which won't change on retry.
func Retryable(err error) bool {
	if err == nil || core.IsPermanent(err) {
		return false
	}
	var code *core.ErrorCode
	if errors.As(err, &code) {
		return code.Kind == core.KindInternal
	}
	return true
}
