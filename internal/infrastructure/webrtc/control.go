package webrtc

import (
	"errors"
	"sync"

	"nido/internal/core/protocol"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// controlChannel is a ports.ControlChannel over one ordered data
// channel. Commands cross the wire in the versioned envelope encoding;
// frames that fail to decode are dropped, not fatal.
type controlChannel struct {
	dc     *webrtc.DataChannel
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	opened chan struct{}
	once   sync.Once

	mu        sync.Mutex
	closed    bool
	onCommand func(protocol.Command)
	onClose   func(error)
}

func newControlChannel(dc *webrtc.DataChannel, pc *webrtc.PeerConnection, logger *zap.SugaredLogger) *controlChannel {
	c := &controlChannel{
		dc:     dc,
		pc:     pc,
		logger: logger,
		opened: make(chan struct{}),
	}

	dc.OnOpen(func() {
		c.once.Do(func() { close(c.opened) })
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		cmd, err := protocol.Decode(msg.Data)
		if err != nil {
			c.logger.Warnw("undecodable control frame dropped", "error", err)
			return
		}
		c.mu.Lock()
		fn := c.onCommand
		c.mu.Unlock()
		if fn != nil {
			fn(cmd)
		}
	})

	dc.OnClose(func() {
		c.fireClose(nil)
	})

	return c
}

func (c *controlChannel) Send(cmd protocol.Command) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("control channel closed")
	}

	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	return c.dc.SendText(string(data))
}

func (c *controlChannel) OnCommand(fn func(protocol.Command)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommand = fn
}

func (c *controlChannel) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *controlChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.dc.Close()
	c.pc.Close()
	return err
}

// transportFailed reports the underlying peer connection dying, which
// the session layer treats as recoverable loss.
func (c *controlChannel) transportFailed() {
	c.fireClose(errors.New("peer connection failed"))
}

func (c *controlChannel) fireClose(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}
