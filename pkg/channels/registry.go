package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Registry owns the channel adapters and their lifecycle. Channels start
// in registration order and stop in reverse, and a failed startup rolls
// back the channels already running so the process never ends up half up.
type Registry struct {
	dispatch DispatchFunc

	mu       sync.Mutex
	channels []Channel
	byName   map[string]Channel
	running  []Channel
}

// NewRegistry constructs a registry around the dispatch function every
// adapter will feed.
func NewRegistry(dispatch DispatchFunc) *Registry {
	return &Registry{
		dispatch: dispatch,
		byName:   make(map[string]Channel),
	}
}

// Register adds a channel. Names must be unique and non-empty.
func (r *Registry) Register(ch Channel) error {
	if ch == nil {
		return fmt.Errorf("channel is required")
	}
	name := strings.TrimSpace(ch.Name())
	if name == "" {
		return fmt.Errorf("channel name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}
	r.byName[name] = ch
	r.channels = append(r.channels, ch)
	return nil
}

// IsRegistered reports whether a channel name is known.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

// Names returns the registered channel names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.Name()
	}
	return names
}

// StartAll starts every registered channel in registration order. If one
// fails, the channels already started are stopped again in reverse and the
// failure is returned. Calling StartAll while channels are running is an
// error.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.running) > 0 {
		return fmt.Errorf("channels already started")
	}

	for _, ch := range r.channels {
		if err := ch.Start(ctx, r.dispatch); err != nil {
			r.stopRunning(ctx)
			return fmt.Errorf("failed to start channel %q: %w", ch.Name(), err)
		}
		r.running = append(r.running, ch)
	}
	return nil
}

// StopAll stops the running channels in reverse start order. Stopping an
// idle registry is a no-op.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopRunning(ctx)
}

// stopRunning stops and clears the running list. Callers hold the lock.
func (r *Registry) stopRunning(ctx context.Context) error {
	var firstErr error
	for i := len(r.running) - 1; i >= 0; i-- {
		ch := r.running[i]
		if err := ch.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop channel %q: %w", ch.Name(), err)
		}
	}
	r.running = nil
	return firstErr
}
