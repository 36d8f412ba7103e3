package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Athemis/squidbot/pkg/agent"
)

// TerminalChannel is an interactive stdin/stdout REPL. Replies stream to
// the terminal as they arrive.
type TerminalChannel struct {
	in       io.Reader
	out      io.Writer
	sender   string
	logger   zerolog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewTerminalChannel creates the REPL over stdin/stdout.
func NewTerminalChannel(sender string, logger zerolog.Logger) *TerminalChannel {
	if sender == "" {
		sender = "owner"
	}
	return &TerminalChannel{
		in:     os.Stdin,
		out:    os.Stdout,
		sender: sender,
		logger: logger.With().Str("component", "terminal").Logger(),
		done:   make(chan struct{}),
	}
}

// Name returns "terminal".
func (c *TerminalChannel) Name() string { return "terminal" }

// terminalSink writes chunks straight to the terminal and terminates the
// reply with a newline.
type terminalSink struct {
	out io.Writer
}

func (s *terminalSink) Streaming() bool { return true }

func (s *terminalSink) Deliver(_ context.Context, text string, d agent.Delivery) error {
	if d.Final {
		// Non-streamed finals (the round-limit sentinel) still carry text.
		if text != "" {
			if _, err := fmt.Fprint(s.out, text); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintln(s.out)
		return err
	}
	_, err := fmt.Fprint(s.out, text)
	return err
}

// Start runs the read loop. Each line dispatches one turn; the next prompt
// is not shown until the previous turn resolves, so replies stay FIFO.
func (c *TerminalChannel) Start(ctx context.Context, dispatch DispatchFunc) error {
	if dispatch == nil {
		return fmt.Errorf("dispatch function is required")
	}

	go c.readLoop(ctx, dispatch)
	return nil
}

func (c *TerminalChannel) readLoop(ctx context.Context, dispatch DispatchFunc) {
	scanner := bufio.NewScanner(c.in)
	sink := &terminalSink{out: c.out}

	fmt.Fprint(c.out, "> ")
	for scanner.Scan() {
		select {
		case <-c.done:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(c.out, "> ")
			continue
		}

		in := agent.Inbound{Channel: c.Name(), Sender: c.sender, Content: line}
		if _, err := dispatch(ctx, in, sink); err != nil {
			c.logger.Error().Err(err).Msg("Turn failed")
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		fmt.Fprint(c.out, "> ")
	}
}

// Stop ends the read loop.
func (c *TerminalChannel) Stop(_ context.Context) error {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	return nil
}
