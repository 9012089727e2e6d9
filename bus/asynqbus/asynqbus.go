// Package asynqbus dispatches content status events through Redis with hibiken/asynq,
// so events survive restarts and are consumed by "pressroom worker" processes.
package asynqbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/wansing/pressroom/bus"
	"github.com/wansing/pressroom/core"
	"go.uber.org/zap"
)

// TypeStatusEvent is the asynq task type of a core.StatusEvent.
const TypeStatusEvent = "content:status"

// An Enqueuer is implemented by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher implements core.Dispatcher. The event id is the task id, so republishing an event is a no-op.
type Dispatcher struct {
	Client    Enqueuer
	Queue     string // empty means asynq's default queue
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration // how long completed task ids block duplicates
	Logger    *zap.Logger
}

func (d *Dispatcher) Publish(ctx context.Context, ev core.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var opts = []asynq.Option{
		asynq.TaskID(ev.ID.String()),
		asynq.MaxRetry(d.MaxRetry),
	}
	if d.Queue != "" {
		opts = append(opts, asynq.Queue(d.Queue))
	}
	if d.Timeout > 0 {
		opts = append(opts, asynq.Timeout(d.Timeout))
	}
	if d.Retention > 0 {
		opts = append(opts, asynq.Retention(d.Retention))
	}
	task := asynq.NewTask(TypeStatusEvent, data)
	if _, err := d.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			d.logger().Debug("status event already enqueued", zap.Stringer("event", ev.ID))
			return nil
		}
		return fmt.Errorf("enqueue status event: %w", err)
	}
	return nil
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

type subscription struct {
	name    string
	types   map[core.ContentType]struct{}
	handler core.EventHandler
}

// Worker implements core.Subscriber and asynq.Handler. Handlers which succeeded are not called again when asynq retries the task.
type Worker struct {
	logger *zap.Logger
	dedupe *bus.Dedupe

	mu   sync.RWMutex
	subs []subscription
}

func NewWorker(dedupeWindow int, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		logger: logger,
		dedupe: bus.NewDedupe(dedupeWindow),
	}
}

func (w *Worker) Subscribe(name string, types []core.ContentType, h core.EventHandler) {
	var s = subscription{
		name:    name,
		types:   make(map[core.ContentType]struct{}),
		handler: h,
	}
	for _, t := range types {
		s.types[t] = struct{}{}
	}
	w.mu.Lock()
	w.subs = append(w.subs, s)
	w.mu.Unlock()
}

// Handler registers the status event handler.
func (w *Worker) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeStatusEvent, w)
	return mux
}

// ProcessTask calls all matching handlers. It fails if any handler failed with a retryable error,
// and skips retries if the remaining failures are not retryable.
func (w *Worker) ProcessTask(ctx context.Context, task *asynq.Task) error {

	var ev core.StatusEvent
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	w.mu.RLock()
	var subs = make([]subscription, len(w.subs))
	copy(subs, w.subs)
	w.mu.RUnlock()

	var retry, failed error
	for _, s := range subs {
		if len(s.types) > 0 {
			if _, ok := s.types[ev.Content.Ref.Type]; !ok {
				continue
			}
		}
		var key = bus.DeliveryKey(s.name, ev)
		if w.dedupe.Seen(key) {
			continue
		}
		if err := s.handler(ctx, ev); err != nil {
			w.logger.Warn("event handler failed", zap.String("handler", s.name), zap.Stringer("event", ev.ID), zap.Error(err))
			if bus.Retryable(err) {
				retry = errors.Join(retry, fmt.Errorf("%s: %w", s.name, err))
			} else {
				failed = errors.Join(failed, fmt.Errorf("%s: %w", s.name, err))
			}
			continue
		}
		w.dedupe.Add(key)
	}

	switch {
	case retry != nil:
		return retry
	case failed != nil:
		return fmt.Errorf("%v: %w", failed, asynq.SkipRetry)
	}
	return nil
}
