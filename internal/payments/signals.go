package payments

import (
	"context"
	"fmt"
	"sync"
)

// StatusHandler reacts to a payment whose status just changed.
type StatusHandler func(ctx context.Context, p *Payment) error

// Signals fans the status-changed notification out to subscribers.
type Signals struct {
	mu       sync.RWMutex
	handlers []namedHandler
}

type namedHandler struct {
	name string
	fn   StatusHandler
}

func NewSignals() *Signals {
	return &Signals{}
}

func (s *Signals) Subscribe(name string, h StatusHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, namedHandler{name: name, fn: h})
}

// SendRobust calls every subscriber, collecting errors and recovered panics
// instead of stopping at the first failure.
func (s *Signals) SendRobust(ctx context.Context, p *Payment) []error {
	s.mu.RLock()
	hs := append([]namedHandler(nil), s.handlers...)
	s.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = append(errs, fmt.Errorf("status handler %s panicked: %v", h.name, r))
				}
			}()
			if err := h.fn(ctx, p); err != nil {
				errs = append(errs, fmt.Errorf("status handler %s: %w", h.name, err))
			}
		}()
	}
	return errs
}
