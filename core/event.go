package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// A ContentStatusEvent reports a status change of a content item.
// PreviousStatus is nil if and only if the event reports the creation of the content.
type ContentStatusEvent[C any] struct {
	ID             uuid.UUID      `json:"id"` // deduplication key
	Content        C              `json:"content"`
	Time           time.Time      `json:"time"`
	PreviousStatus *ContentStatus `json:"previous,omitempty"`
	CurrentStatus  ContentStatus  `json:"current"`
	Review         *ReviewJob     `json:"review,omitempty"` // the resolved job, if the event results from a review
}

// NewContentStatusEvent creates an event with a fresh id.
func NewContentStatusEvent[C any](content C, previous *ContentStatus, current ContentStatus, at time.Time) ContentStatusEvent[C] {
	if previous != nil {
		previous = previous.Ptr() // copy
	}
	return ContentStatusEvent[C]{
		ID:             uuid.New(),
		Content:        content,
		Time:           at,
		PreviousStatus: previous,
		CurrentStatus:  current,
	}
}

func (e ContentStatusEvent[C]) IsCreation() bool {
	return e.PreviousStatus == nil
}

// NeedsAssign returns whether the content has just entered the review queue.
func (e ContentStatusEvent[C]) NeedsAssign() bool {
	return e.CurrentStatus == Reviewing && (e.PreviousStatus == nil || *e.PreviousStatus != Reviewing)
}

// StatusEvent is the event type which flows through the Dispatcher.
type StatusEvent = ContentStatusEvent[ContentMetadata]

// An EventHandler consumes status events. Handlers are invoked asynchronously, at least once, and must be idempotent.
type EventHandler func(ctx context.Context, ev StatusEvent) error

// A Dispatcher delivers status events to handlers without blocking the caller for the duration of the handlers.
type Dispatcher interface {
	Publish(ctx context.Context, ev StatusEvent) error
}

// A Subscriber registers named handlers. If types is empty, the handler receives events of all content types.
type Subscriber interface {
	Subscribe(name string, types []ContentType, h EventHandler)
}

// Permanent wraps an error which must not be retried by a Dispatcher.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

type permanentError struct {
	error
}

func (p permanentError) Unwrap() error {
	return p.error
}

// IsPermanent returns whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
