package channels

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Athemis/squidbot/pkg/agent"
)

// wsInbound is one client frame.
type wsInbound struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// wsOutbound is one server frame.
type wsOutbound struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
	Error string `json:"error,omitempty"`
}

// WebSocketConfig holds chat-room adapter parameters.
type WebSocketConfig struct {
	Addr string
	Path string
	// Tokens is the connection allow-list. A client authenticates with a
	// "token" query parameter; an empty list refuses every connection.
	Tokens []string
	Logger zerolog.Logger
}

// WebSocketChannel serves a chat room over a websocket endpoint. Each
// connection gets its own sequential dispatch loop: one turn at a time per
// client, while separate clients run concurrently.
type WebSocketChannel struct {
	addr     string
	path     string
	tokens   map[string]bool
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	wg       sync.WaitGroup
}

// NewWebSocketChannel creates the adapter.
func NewWebSocketChannel(cfg WebSocketConfig) (*WebSocketChannel, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}

	tokens := make(map[string]bool, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if t != "" {
			tokens[t] = true
		}
	}

	return &WebSocketChannel{
		addr:   cfg.Addr,
		path:   cfg.Path,
		tokens: tokens,
		logger: cfg.Logger.With().Str("component", "websocket").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

// Name returns "websocket".
func (c *WebSocketChannel) Name() string { return "websocket" }

// wsSink buffers the reply and writes it as a single frame. Websocket
// connections do not interleave partial frames, so streaming is off.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Streaming() bool { return false }

func (s *wsSink) Deliver(_ context.Context, text string, d agent.Delivery) error {
	if !d.Final {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(wsOutbound{Text: text, Final: true})
}

// Start begins listening.
func (c *WebSocketChannel) Start(ctx context.Context, dispatch DispatchFunc) error {
	if dispatch == nil {
		return fmt.Errorf("dispatch function is required")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(c.path, func(w http.ResponseWriter, r *http.Request) {
		c.handle(ctx, w, r, dispatch)
	})

	c.server = &http.Server{Addr: c.addr, Handler: mux}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error().Err(err).Msg("Websocket server failed")
		}
	}()

	c.logger.Info().Str("addr", c.addr).Str("path", c.path).Msg("Websocket channel started")
	return nil
}

func (c *WebSocketChannel) handle(ctx context.Context, w http.ResponseWriter, r *http.Request, dispatch DispatchFunc) {
	if !c.tokens[r.URL.Query().Get("token")] {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Upgrade failed")
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}

	// One turn at a time per connection: the next frame is not read until
	// the previous dispatch resolves.
	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Connection dropped")
			}
			return
		}
		if in.Content == "" {
			continue
		}

		inbound := agent.Inbound{Channel: c.Name(), Sender: in.Sender, Content: in.Content}
		if _, err := dispatch(ctx, inbound, sink); err != nil {
			c.logger.Error().Err(err).Msg("Turn failed")
			if werr := conn.WriteJSON(wsOutbound{Final: true, Error: err.Error()}); werr != nil {
				return
			}
		}
	}
}

// Stop shuts the listener down and waits for it.
func (c *WebSocketChannel) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	err := c.server.Shutdown(ctx)
	c.wg.Wait()
	return err
}
