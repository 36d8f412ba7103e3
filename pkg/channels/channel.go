// Package channels connects message transports to the agent loop. Each
// adapter consumes its inbound messages sequentially, so replies within one
// channel stay FIFO; channels run independently of each other.
package channels

import (
	"context"

	"github.com/Athemis/squidbot/pkg/agent"
)

// DispatchFunc routes one inbound message through the agent loop, sending
// the reply to the given sink. It returns the final reply text.
type DispatchFunc func(ctx context.Context, in agent.Inbound, sink agent.Sink) (string, error)

// Channel is a message transport (terminal, websocket chat room, ...).
type Channel interface {
	Name() string
	Start(ctx context.Context, dispatch DispatchFunc) error
	Stop(ctx context.Context) error
}
