package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"nido/internal/core/domain"
	"nido/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientConfig tunes one rendezvous client connection.
type ClientConfig struct {
	URL          string
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	Reconnect    retry.Config
}

// Client keeps one device registered on the rendezvous relay. A lost
// connection is re-dialed with backoff; envelopes that arrive while the
// link is down are gone, peers re-offer on their own retry schedule.
type Client struct {
	cfg      ClientConfig
	deviceID domain.DeviceID
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	inbox      chan Envelope
	inboxClose sync.Once
	onDown     func(error)
}

func NewClient(cfg ClientConfig, deviceID domain.DeviceID, logger *zap.SugaredLogger) *Client {
	return &Client{
		cfg:      cfg,
		deviceID: deviceID,
		logger:   logger,
		inbox:    make(chan Envelope, 16),
	}
}

// OnDown registers the callback fired when the connection is lost for
// good, after reconnection attempts are exhausted. Called before
// Connect.
func (c *Client) OnDown(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDown = fn
}

// Inbox delivers envelopes addressed to this device. It closes when the
// client shuts down.
func (c *Client) Inbox() <-chan Envelope {
	return c.inbox
}

// Connect dials the relay and starts the keepalive and read loops. It
// returns once the device is registered.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx, conn)
	go c.pingLoop(ctx, conn)

	c.logger.Infow("rendezvous connected", "device_id", c.deviceID, "url", c.cfg.URL)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid rendezvous url: %w", err)
	}
	q := u.Query()
	q.Set("device_id", string(c.deviceID))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("rendezvous dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})
	return conn, nil
}

// Send delivers one envelope to the relay.
func (c *Client) Send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return domain.ErrSignalingDown
	}
	env.From = c.deviceID
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(env)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.handleLoss(ctx, conn, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		select {
		case c.inbox <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			stale := c.conn != conn || c.closed
			if !stale {
				conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					stale = true
				}
			}
			c.mu.Unlock()
			if stale {
				return
			}
		}
	}
}

// handleLoss re-dials the relay with backoff. The device re-registers
// under the same ID, displacing the stale registration server-side.
func (c *Client) handleLoss(ctx context.Context, lost *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.closed || ctx.Err() != nil {
		c.mu.Unlock()
		c.inboxClose.Do(func() { close(c.inbox) })
		return
	}
	if c.conn != lost {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	c.logger.Warnw("rendezvous connection lost, reconnecting", "device_id", c.deviceID, "error", cause)

	conn, err := retry.DoWithResult(ctx, c.cfg.Reconnect, func() (*websocket.Conn, error) {
		return c.dial(ctx)
	})
	if err != nil {
		c.logger.Errorw("rendezvous reconnect failed", "device_id", c.deviceID, "error", err)
		c.mu.Lock()
		down := c.onDown
		c.mu.Unlock()
		if down != nil {
			down(fmt.Errorf("%w: %v", domain.ErrSignalingDown, cause))
		}
		c.inboxClose.Do(func() { close(c.inbox) })
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx, conn)
	go c.pingLoop(ctx, conn)
	c.logger.Infow("rendezvous reconnected", "device_id", c.deviceID)
}

// Close shuts the client down and closes the inbox.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	} else {
		// Never connected; nothing will close the inbox from the read side.
		c.inboxClose.Do(func() { close(c.inbox) })
	}
	return nil
}
