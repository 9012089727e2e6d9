// Package notify pushes messages to users. Pushing is best effort: failures are logged and never undo a status change.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wansing/pressroom/core"
)

// A Message is pushed to a user.
type Message struct {
	Kind    string          `json:"kind"` // template name
	Subject string          `json:"subject"`
	Body    string          `json:"body"`
	Content core.ContentRef `json:"content"`
	Time    time.Time       `json:"time"`
}

// A Pusher delivers a message to a user.
type Pusher interface {
	Push(ctx context.Context, userID int, m Message) error
}

// Delivery is a message which a MemoryPusher has received.
type Delivery struct {
	UserID  int
	Message Message
}

// MemoryPusher stores deliveries in memory for inspection and testing.
type MemoryPusher struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (m *MemoryPusher) Push(ctx context.Context, userID int, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, Delivery{UserID: userID, Message: msg})
	return nil
}

// Deliveries returns a copy of deliveries seen so far.
func (m *MemoryPusher) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

// Multi pushes to all pushers, even if some fail.
type Multi []Pusher

func (multi Multi) Push(ctx context.Context, userID int, m Message) error {
	var errs error
	for i, p := range multi {
		if err := p.Push(ctx, userID, m); err != nil {
			errs = errors.Join(errs, fmt.Errorf("pusher %d: %w", i, err))
		}
	}
	return errs
}

var nowUTC = func() time.Time { return time.Now().UTC() }
