package core

import (
	"context"
	"fmt"
	"sort"
)

// A PublishFilter judges whether new content is acceptable. It returns Success or a specific ErrorCode.
// Filters must not modify any storage.
type PublishFilter interface {
	Filter(ctx context.Context, c UncreatedContent) *ErrorCode
	Order() int // ascending, default 0
}

// A PublishCallback decides the status of accepted content before it is stored.
// The returned status is ignored if it is zero, which means "no decision".
type PublishCallback interface {
	Publish(ctx context.Context, author Identity, d ContentDetails) (ContentStatus, error)
	Order() int // ascending, default 0
}

// DefaultStatus applies if no publish callback decides.
const DefaultStatus = Reviewing

// Pipeline runs publish filters and callbacks in ascending order. Elements with equal order keep their registration order.
type Pipeline struct {
	filters   []PublishFilter
	callbacks []PublishCallback
}

func NewPipeline(filters []PublishFilter, callbacks []PublishCallback) *Pipeline {
	var p = &Pipeline{}
	p.AddFilter(filters...)
	p.AddCallback(callbacks...)
	return p
}

func (p *Pipeline) AddFilter(filters ...PublishFilter) {
	p.filters = append(p.filters, filters...)
	sort.SliceStable(p.filters, func(i, j int) bool {
		return p.filters[i].Order() < p.filters[j].Order()
	})
}

func (p *Pipeline) AddCallback(callbacks ...PublishCallback) {
	p.callbacks = append(p.callbacks, callbacks...)
	sort.SliceStable(p.callbacks, func(i, j int) bool {
		return p.callbacks[i].Order() < p.callbacks[j].Order()
	})
}

// Filter returns the result of the first filter which does not return Success, else Success.
func (p *Pipeline) Filter(ctx context.Context, c UncreatedContent) *ErrorCode {
	if p == nil {
		return Success
	}
	for _, f := range p.filters {
		if code := f.Filter(ctx, c); !code.IsSuccess() {
			return code
		}
	}
	return Success
}

// Decide runs all callbacks. The last non-zero decision wins. If no callback decides, it returns DefaultStatus.
// A callback error aborts the decision.
func (p *Pipeline) Decide(ctx context.Context, author Identity, d ContentDetails) (ContentStatus, error) {
	var decided = DefaultStatus
	if p == nil {
		return decided, nil
	}
	for _, cb := range p.callbacks {
		status, err := cb.Publish(ctx, author, d)
		if err != nil {
			return 0, fmt.Errorf("publish callback: %w", err)
		}
		if status == 0 {
			continue
		}
		if !initialStatus(status) {
			return 0, ErrCallbackStatus
		}
		decided = status
	}
	return decided, nil
}

// initialStatus returns whether new content may start in the given status.
func initialStatus(s ContentStatus) bool {
	switch s {
	case Draft, Reviewing, Published:
		return true
	default:
		return false
	}
}

// OutcomeStatus maps a finished review to the content status: Reviewed to Published, ReviewRejected to Rejected.
func OutcomeStatus(s ReviewStatus) (ContentStatus, bool) {
	switch s {
	case Reviewed:
		return Published, true
	case ReviewRejected:
		return Rejected, true
	default:
		return 0, false
	}
}
