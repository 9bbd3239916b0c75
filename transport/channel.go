// Package transport keeps a persistent WebSocket link to the dialogue
// service, reconnecting with bounded exponential backoff.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrConnection         = errors.New("connection error")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Config struct {
	URL    string
	Header http.Header

	// MaxReconnectAttempts bounds the dials made after a drop before the
	// channel gives up and enters Error.
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	DialTimeout          time.Duration
	PingPeriod           time.Duration
	PongWait             time.Duration

	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 16 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = pongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

type Channel struct {
	cfg    Config
	log    zerolog.Logger
	events chan Inbound

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	onState  func(State)
	cancel   context.CancelFunc
	err      error
	attempts int

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func New(cfg Config) *Channel {
	cfg.applyDefaults()
	return &Channel{
		cfg:    cfg,
		log:    cfg.Logger,
		events: make(chan Inbound, 64),
	}
}

// Events delivers inbound events in the order they were read. The channel
// is never closed.
func (c *Channel) Events() <-chan Inbound { return c.events }

// OnState registers fn to run after every state transition. It runs on the
// goroutine that made the transition and must not block.
func (c *Channel) OnState(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal error once the channel is in Error.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Attempts reports how many reconnect dials the current or last outage used.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	c.log.Info().Str("from", prev.String()).Str("to", s.String()).Msg("connection_state")
	if fn != nil {
		fn(s)
	}
}

// Connect dials the server. If the first dial fails the channel keeps
// retrying in the background and the dial error is returned.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Error:
		err := c.err
		c.mu.Unlock()
		return err
	case Disconnected:
	default:
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	// Registered before the dial so a concurrent Disconnect waits for it.
	c.wg.Add(1)
	c.mu.Unlock()

	c.setState(Connecting)
	conn, err := c.dial(runCtx)
	if runCtx.Err() != nil {
		if conn != nil {
			conn.Close()
		}
		c.wg.Done()
		return runCtx.Err()
	}
	if err != nil {
		c.log.Warn().Err(err).Str("url", c.cfg.URL).Msg("connect_failed")
		c.setState(Reconnecting)
		go c.supervise(runCtx, nil, false)
		return err
	}
	c.setConn(conn)
	c.setState(Connected)
	go c.supervise(runCtx, conn, false)
	return nil
}

// Disconnect closes the link and stops reconnecting. A channel in Error
// stays in Error.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	if c.State() != Error {
		c.setState(Disconnected)
	}
}

// Send writes o if the link is up. It never queues.
func (c *Channel) Send(o Outbound) bool {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != Connected || conn == nil {
		c.log.Warn().Str("event", o.outboundEvent()).Str("state", state.String()).Msg("send_rejected")
		return false
	}

	frame, err := Encode(o)
	if err != nil {
		c.log.Error().Err(err).Msg("send_encode_failed")
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.log.Error().Err(err).Str("event", o.outboundEvent()).Msg("send_failed")
		return false
	}
	c.log.Debug().Str("event", o.outboundEvent()).Int("bytes", len(frame)).Msg("send")
	return true
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, resp, err := c.cfg.Dialer.DialContext(dctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s (status %d): %v", ErrConnection, c.cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, c.cfg.URL, err)
	}
	return conn, nil
}

// supervise owns the connection for the lifetime of ctx: it serves the
// live link and redials after every drop until attempts run out.
func (c *Channel) supervise(ctx context.Context, conn *websocket.Conn, immediate bool) {
	defer c.wg.Done()
	for {
		if conn == nil {
			var err error
			conn, err = c.reconnect(ctx, immediate)
			if ctx.Err() != nil {
				if conn != nil {
					conn.Close()
				}
				c.setState(Disconnected)
				return
			}
			if err != nil {
				c.fail(err)
				return
			}
			c.setConn(conn)
			c.setState(Connected)
		}

		clean := c.serve(ctx, conn)
		c.setConn(nil)
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}
		c.setState(Reconnecting)
		conn, immediate = nil, clean
	}
}

func (c *Channel) reconnect(ctx context.Context, immediate bool) (*websocket.Conn, error) {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()

	limit := c.cfg.MaxReconnectAttempts
	if limit <= 0 {
		return nil, ErrReconnectExhausted
	}
	if !immediate {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.BaseDelay):
		}
	}

	b := retry.NewExponential(c.cfg.BaseDelay)
	b = retry.WithCappedDuration(c.cfg.MaxDelay, b)
	b = retry.WithMaxRetries(uint64(limit-1), b)

	var conn *websocket.Conn
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		c.mu.Lock()
		c.attempts++
		n := c.attempts
		c.mu.Unlock()

		c.log.Info().Int("attempt", n).Int("max", limit).Bool("immediate", immediate).Msg("reconnect_attempt")
		cn, err := c.dial(ctx)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", n).Msg("reconnect_failed")
			return retry.RetryableError(err)
		}
		conn = cn
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, c.Attempts(), err)
	}
	return conn, nil
}

func (c *Channel) fail(err error) {
	c.mu.Lock()
	c.err = err
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.log.Error().Err(err).Msg("connection_lost")
	c.setState(Error)
}

// serve reads from conn until it fails. It reports whether the server
// closed the link cleanly.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) bool {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(c.cfg.PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			clean := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Bool("clean", clean).Msg("connection_dropped")
			}
			return clean
		}
		// The server only speaks JSON text frames.
		if mt != websocket.TextMessage {
			continue
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		ev, err := Decode(data)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				c.log.Debug().Err(err).Msg("event_ignored")
				continue
			}
			c.log.Warn().Err(err).Msg("event_decode_failed")
			ev = ServerError{
				Message:   "invalid message from server",
				Details:   err.Error(),
				Timestamp: time.Now().UnixMilli(),
				Local:     true,
			}
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return false
		}
	}
}
