package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/dhima/datman/platform/events"
)

// FakePublisher captures published mutation events and can simulate failures.
type FakePublisher struct {
	mu        sync.Mutex
	Events    []events.MutationEvent
	FailNext  bool
	FailError error
}

func (p *FakePublisher) Publish(_ context.Context, e events.MutationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailNext {
		p.FailNext = false
		if p.FailError == nil {
			p.FailError = errors.New("publish failed")
		}
		return p.FailError
	}
	p.Events = append(p.Events, e)
	return nil
}
