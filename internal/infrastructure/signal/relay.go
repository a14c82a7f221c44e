package signal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nido/internal/core/domain"
	"nido/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Envelope is one rendezvous frame. The relay never inspects Payload;
// it only stamps From and routes on To.
type Envelope struct {
	Type    string          `json:"type"`
	From    domain.DeviceID `json:"from,omitempty"`
	To      domain.DeviceID `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope types exchanged through the relay.
const (
	EnvelopeOffer     = "offer"
	EnvelopeAnswer    = "answer"
	EnvelopeCandidate = "ice_candidate"
	EnvelopeError     = "error"
)

type relayConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *relayConn) writeJSON(timeout time.Duration, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(v)
}

// Relay is the rendezvous point: devices register under their stable
// device ID and the relay forwards session negotiation envelopes
// between them. It carries no media and keeps no session state beyond
// the live connections.
type Relay struct {
	connections map[domain.DeviceID]*relayConn
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

func NewRelay(logger *zap.SugaredLogger) *Relay {
	return &Relay{
		connections:  make(map[domain.DeviceID]*relayConn),
		pingInterval: 5 * time.Second,
		pongTimeout:  15 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// SetPingInterval sets ping interval for relay connections
func (s *Relay) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for relay connections
func (s *Relay) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
}

func (s *Relay) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	deviceID := domain.DeviceID(r.URL.Query().Get("device_id"))
	if err := validation.ValidateDeviceID(string(deviceID)); err != nil {
		http.Error(w, "invalid device_id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	wrapped := &relayConn{conn: conn}

	// A reconnecting device replaces its old registration.
	s.mu.Lock()
	existing, isReconnect := s.connections[deviceID]
	if isReconnect && existing != nil {
		existing.conn.Close()
		s.logger.Infow("closing old connection for reconnecting device", "device_id", deviceID)
	}
	s.connections[deviceID] = wrapped
	s.mu.Unlock()

	s.logger.Infow("device registered", "device_id", deviceID, "reconnect", isReconnect)

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan Envelope, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			messageChan <- env
		}
	}()

	for {
		select {
		case env := <-messageChan:
			if err := s.route(deviceID, env); err != nil {
				s.logger.Infow("envelope not routed", "device_id", deviceID, "type", env.Type, "error", err)
				s.sendError(wrapped, err.Error())
			}

		case <-pingTicker.C:
			wrapped.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			wrapped.mu.Unlock()
			if err != nil {
				s.logger.Infow("error sending ping", "device_id", deviceID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading envelope from device", "device_id", deviceID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	s.mu.Lock()
	if s.connections[deviceID] == wrapped {
		delete(s.connections, deviceID)
	}
	s.mu.Unlock()
	s.logger.Infow("device disconnected", "device_id", deviceID)
}

// route stamps the sender and forwards the envelope to its target.
func (s *Relay) route(from domain.DeviceID, env Envelope) error {
	if env.Type == "" {
		return fmt.Errorf("envelope type is required")
	}
	if env.From != "" && env.From != from {
		return fmt.Errorf("from mismatch: expected %s, got %s", from, env.From)
	}
	if env.To == "" {
		return fmt.Errorf("envelope target is required")
	}

	switch env.Type {
	case EnvelopeOffer, EnvelopeAnswer, EnvelopeCandidate:
	default:
		return fmt.Errorf("unknown envelope type: %s", env.Type)
	}

	env.From = from
	return s.sendToDevice(env.To, env)
}

func (s *Relay) sendToDevice(deviceID domain.DeviceID, env Envelope) error {
	s.mu.RLock()
	conn, exists := s.connections[deviceID]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("device %s not connected", deviceID)
	}
	return conn.writeJSON(s.writeTimeout, env)
}

func (s *Relay) sendError(conn *relayConn, message string) {
	conn.writeJSON(s.writeTimeout, Envelope{Type: EnvelopeError, Payload: mustRaw(message)})
}

func mustRaw(message string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"message": message})
	return data
}

func (s *Relay) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.connections)
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connectionCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ConnectedDevices lists the currently registered device IDs.
func (s *Relay) ConnectedDevices() []domain.DeviceID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]domain.DeviceID, 0, len(s.connections))
	for deviceID := range s.connections {
		devices = append(devices, deviceID)
	}
	return devices
}

func (s *Relay) IsDeviceConnected(deviceID domain.DeviceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.connections[deviceID]
	return exists
}
