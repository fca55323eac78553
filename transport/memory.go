package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
)

// InMemory is an in-memory implementation of transport.
// It allows binding a validator with miners running in the same process.
type InMemory struct {
	caller string

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewInMemory creates a transport sending challenges on behalf of caller.
func NewInMemory(caller string) *InMemory {
	return &InMemory{
		caller:   caller,
		handlers: make(map[string]Handler),
	}
}

// Register binds a miner hotkey to its handler.
func (m *InMemory) Register(hotkey string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[hotkey] = h
}

// Unregister removes the handler, making the miner unreachable.
func (m *InMemory) Unregister(hotkey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, hotkey)
}

// Implement Sender.
func (m *InMemory) SendChallenge(ctx context.Context, p registry.Participant, ch shared.Challenge) (shared.Response, error) {
	m.mu.RLock()
	h, ok := m.handlers[p.Hotkey]
	m.mu.RUnlock()
	if !ok {
		logging.FromContext(ctx).Debug("nobody listens for the miner - dropping")
		return shared.Response{}, fmt.Errorf("%w: %s is not reachable", ErrNoResponse, p.Hotkey)
	}

	type result struct {
		resp shared.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := h.HandleChallenge(ctx, m.caller, ch)
		done <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		return shared.Response{}, fmt.Errorf("%w: %v", ErrNoResponse, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return shared.Response{}, fmt.Errorf("%w: %v", ErrRejected, r.err)
		}
		return r.resp, nil
	}
}
