package core

import (
	"context"
	"errors"
	"testing"
)

type filterFunc struct {
	order int
	code  *ErrorCode
	calls *int
}

func (f filterFunc) Order() int {
	return f.order
}

func (f filterFunc) Filter(ctx context.Context, c UncreatedContent) *ErrorCode {
	*f.calls++
	return f.code
}

type callbackFunc struct {
	order  int
	status ContentStatus
	err    error
}

func (cb callbackFunc) Order() int {
	return cb.order
}

func (cb callbackFunc) Publish(ctx context.Context, author Identity, d ContentDetails) (ContentStatus, error) {
	return cb.status, cb.err
}

func TestPipelineFilterShortCircuits(t *testing.T) {
	var calls int
	var p = NewPipeline([]PublishFilter{
		filterFunc{order: 20, code: ErrBodyEmpty, calls: &calls},
		filterFunc{order: 10, code: ErrTitleEmpty, calls: &calls},
		filterFunc{order: 0, code: Success, calls: &calls},
	}, nil)
	if got := p.Filter(context.Background(), UncreatedContent{}); got != ErrTitleEmpty {
		t.Fatalf("got %s, want %s", got.Code, ErrTitleEmpty.Code)
	}
	if calls != 2 {
		t.Fatalf("got %d calls, want 2", calls)
	}
}

func TestPipelineFilterNil(t *testing.T) {
	var p *Pipeline
	if got := p.Filter(context.Background(), UncreatedContent{}); got != Success {
		t.Fatalf("got %s", got.Code)
	}
	var calls int
	p = NewPipeline([]PublishFilter{filterFunc{code: nil, calls: &calls}}, nil)
	if got := p.Filter(context.Background(), UncreatedContent{}); got != Success {
		t.Fatalf("nil code: got %s", got.Code)
	}
}

func TestPipelineDecide(t *testing.T) {
	var tests = []struct {
		callbacks []PublishCallback
		want      ContentStatus
	}{
		{nil, Reviewing},
		{[]PublishCallback{callbackFunc{status: 0}}, Reviewing},
		{[]PublishCallback{callbackFunc{order: 1, status: Published}, callbackFunc{order: 2, status: 0}}, Published},
		{[]PublishCallback{callbackFunc{order: 2, status: Draft}, callbackFunc{order: 1, status: Published}}, Draft},         // last wins
		{[]PublishCallback{callbackFunc{order: 1, status: Published}, callbackFunc{order: 1, status: Reviewing}}, Reviewing}, // stable
	}
	for i, test := range tests {
		got, err := NewPipeline(nil, test.callbacks).Decide(context.Background(), Identity{}, ContentDetails{})
		if err != nil {
			t.Fatalf("test %d: %v", i, err)
		}
		if got != test.want {
			t.Fatalf("test %d: got %s, want %s", i, got, test.want)
		}
	}
}

func TestPipelineDecideErrors(t *testing.T) {
	var failure = errors.New("callback broke")
	_, err := NewPipeline(nil, []PublishCallback{callbackFunc{err: failure}}).Decide(context.Background(), Identity{}, ContentDetails{})
	if !errors.Is(err, failure) {
		t.Fatalf("got %v", err)
	}
	_, err = NewPipeline(nil, []PublishCallback{callbackFunc{status: Deleted}}).Decide(context.Background(), Identity{}, ContentDetails{})
	if err != ErrCallbackStatus {
		t.Fatalf("got %v", err)
	}
}
