package bus

import (
	"context"
	"sync"

	"github.com/wansing/pressroom/core"
	"go.uber.org/zap"
)

// Sync calls the handlers within Publish, once, and logs their errors. It is meant for tests and tools.
type Sync struct {
	Logger *zap.Logger

	mu   sync.Mutex
	subs []subscription
}

func (s *Sync) Subscribe(name string, types []core.ContentType, h core.EventHandler) {
	var sub = subscription{
		name:    name,
		types:   make(map[core.ContentType]struct{}),
		handler: h,
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

func (s *Sync) Publish(ctx context.Context, ev core.StatusEvent) error {
	s.mu.Lock()
	var subs = make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, sub := range subs {
		if !sub.matches(ev.Content.Ref.Type) {
			continue
		}
		if err := sub.handler(ctx, ev); err != nil && s.Logger != nil {
			s.Logger.Warn("event handler failed", zap.String("handler", sub.name), zap.Stringer("event", ev.ID), zap.Error(err))
		}
	}
	return nil
}
