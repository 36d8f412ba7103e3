package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Pool tries an ordered list of backends until one completes a chat call.
// Fragments from the active backend are forwarded to the caller as they are
// produced; output already forwarded from a backend that later fails is not
// retracted, the next backend simply starts from scratch.
type Pool struct {
	backends []Backend
	logger   zerolog.Logger
}

// NewPool creates a pool over the given backends, tried in argument order.
func NewPool(logger zerolog.Logger, backends ...Backend) (*Pool, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one backend is required")
	}
	return &Pool{
		backends: backends,
		logger:   logger.With().Str("component", "pool").Logger(),
	}, nil
}

// Backends returns the configured backends in pool order.
func (p *Pool) Backends() []Backend {
	out := make([]Backend, len(p.backends))
	copy(out, p.backends)
	return out
}

// Chat runs the request against the backends in order, forwarding fragments
// from the active backend to emit. If every backend fails, the last
// backend's error is returned unmodified.
func (p *Pool) Chat(ctx context.Context, req ChatRequest, emit EmitFunc) error {
	var lastErr error

	for i, backend := range p.backends {
		err := backend.Chat(ctx, req, emit)
		if err == nil {
			return nil
		}
		lastErr = err

		var authErr *AuthError
		if errors.As(err, &authErr) {
			p.logger.Error().
				Err(err).
				Str("backend", backend.Name()).
				Msg("Backend rejected credentials, check API key")
		} else {
			p.logger.Warn().
				Err(err).
				Str("backend", backend.Name()).
				Int("remaining", len(p.backends)-i-1).
				Msg("Backend call failed")
		}
	}

	return lastErr
}
