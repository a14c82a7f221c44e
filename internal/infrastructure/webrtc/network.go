package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"nido/internal/core/domain"
	"nido/internal/core/ports"
	"nido/internal/infrastructure/signal"
	"nido/pkg/utils"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config is the peer connection configuration.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// DefaultConfig uses public STUN only.
func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// sessionPayload rides inside a rendezvous envelope and negotiates one
// peer connection. Admission is present only on control offers.
type sessionPayload struct {
	SessionID string                   `json:"session_id"`
	Kind      string                   `json:"kind"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate string                   `json:"candidate,omitempty"`
	Admission *domain.AdmissionRequest `json:"admission,omitempty"`
}

const (
	kindControl = "control"
	kindMedia   = "media"
)

// Network implements ports.PeerNetwork: direct peer links negotiated
// through the rendezvous relay. Control rides a data channel, media
// rides RTP tracks, and each link is its own peer connection keyed by
// a session ID so concurrent negotiations never collide.
type Network struct {
	cfg    Config
	client *signal.Client
	api    *webrtc.API
	self   domain.DeviceID
	logger *zap.SugaredLogger

	mu       sync.Mutex
	started  bool
	sessions map[string]*webrtc.PeerConnection
	answers  map[string]chan webrtc.SessionDescription

	onIncomingControl func(ports.IncomingControl)
	onIncomingCall    func(ports.IncomingCall)
}

func NewNetwork(cfg Config, client *signal.Client, self domain.DeviceID, logger *zap.SugaredLogger) *Network {
	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max)
	}

	return &Network{
		cfg:      cfg,
		client:   client,
		api:      webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		self:     self,
		logger:   logger,
		sessions: make(map[string]*webrtc.PeerConnection),
		answers:  make(map[string]chan webrtc.SessionDescription),
	}
}

// Open registers the device on the relay and starts the envelope pump.
func (n *Network) Open(ctx context.Context) (domain.DeviceID, error) {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return n.self, nil
	}
	n.started = true
	n.mu.Unlock()

	if err := n.client.Connect(ctx); err != nil {
		return "", err
	}
	go n.pump(ctx)
	return n.self, nil
}

func (n *Network) OnIncomingControl(fn func(ports.IncomingControl)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onIncomingControl = fn
}

func (n *Network) OnIncomingCall(fn func(ports.IncomingCall)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onIncomingCall = fn
}

// OpenControl dials a camera: one peer connection carrying a single
// ordered data channel, with the admission request riding the offer.
func (n *Network) OpenControl(ctx context.Context, target domain.DeviceID, req domain.AdmissionRequest) (ports.ControlChannel, error) {
	pc, err := n.newPeerConnection()
	if err != nil {
		return nil, err
	}

	ordered := true
	dc, err := pc.CreateDataChannel("control", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("control channel create failed: %w", err)
	}
	channel := newControlChannel(dc, pc, n.logger)

	sessionID := utils.GenerateSessionID()
	answerCh := n.registerSession(sessionID, pc, channel.transportFailed)
	n.forwardCandidates(pc, target, sessionID)

	if err := n.sendOffer(ctx, pc, target, sessionPayload{
		SessionID: sessionID,
		Kind:      kindControl,
		Admission: &req,
	}); err != nil {
		n.dropSession(sessionID)
		pc.Close()
		return nil, err
	}

	if err := n.awaitAnswer(ctx, pc, answerCh); err != nil {
		n.dropSession(sessionID)
		pc.Close()
		return nil, err
	}

	select {
	case <-channel.opened:
	case <-ctx.Done():
		n.dropSession(sessionID)
		pc.Close()
		return nil, ctx.Err()
	}
	return channel, nil
}

// Call offers media tracks to a peer. Either track may be nil; a
// talkback call carries audio only.
func (n *Network) Call(ctx context.Context, target domain.DeviceID, video, audio ports.MediaTrack) (ports.MediaSender, error) {
	pc, err := n.newPeerConnection()
	if err != nil {
		return nil, err
	}

	sessionID := utils.GenerateSessionID()
	answerCh := n.registerSession(sessionID, pc, nil)

	sender := &mediaSender{pc: pc}
	for _, t := range []struct {
		track ports.MediaTrack
		video bool
	}{{video, true}, {audio, false}} {
		if t.track == nil {
			continue
		}
		local, ok := t.track.(*LocalTrack)
		if !ok {
			n.dropSession(sessionID)
			pc.Close()
			return nil, fmt.Errorf("track %s is not a local RTP track", t.track.ID())
		}
		rtpSender, err := pc.AddTrack(local.track)
		if err != nil {
			n.dropSession(sessionID)
			pc.Close()
			return nil, fmt.Errorf("add track failed: %w", err)
		}
		if t.video {
			sender.video = rtpSender
		} else {
			sender.audio = rtpSender
		}
		// Drain RTCP so interceptors keep running.
		go drainRTCP(rtpSender)
	}

	n.forwardCandidates(pc, target, sessionID)

	if err := n.sendOffer(ctx, pc, target, sessionPayload{SessionID: sessionID, Kind: kindMedia}); err != nil {
		n.dropSession(sessionID)
		pc.Close()
		return nil, err
	}
	if err := n.awaitAnswer(ctx, pc, answerCh); err != nil {
		n.dropSession(sessionID)
		pc.Close()
		return nil, err
	}
	return sender, nil
}

// Close tears down every session and the relay registration.
func (n *Network) Close() error {
	n.mu.Lock()
	sessions := make([]*webrtc.PeerConnection, 0, len(n.sessions))
	for _, pc := range n.sessions {
		sessions = append(sessions, pc)
	}
	n.sessions = make(map[string]*webrtc.PeerConnection)
	n.mu.Unlock()

	for _, pc := range sessions {
		pc.Close()
	}
	return n.client.Close()
}

// pump routes inbound rendezvous envelopes to their sessions.
func (n *Network) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-n.client.Inbox():
			if !ok {
				return
			}
			n.handleEnvelope(ctx, env)
		}
	}
}

func (n *Network) handleEnvelope(ctx context.Context, env signal.Envelope) {
	switch env.Type {
	case signal.EnvelopeOffer:
		var payload sessionPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			n.logger.Warnw("malformed offer payload", "from", env.From, "error", err)
			return
		}
		n.handleOffer(ctx, env.From, payload)

	case signal.EnvelopeAnswer:
		var payload sessionPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			n.logger.Warnw("malformed answer payload", "from", env.From, "error", err)
			return
		}
		n.mu.Lock()
		ch, ok := n.answers[payload.SessionID]
		delete(n.answers, payload.SessionID)
		n.mu.Unlock()
		if !ok {
			n.logger.Debugw("answer for unknown session", "session_id", payload.SessionID)
			return
		}
		ch <- webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: payload.SDP}

	case signal.EnvelopeCandidate:
		var payload sessionPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return
		}
		n.mu.Lock()
		pc := n.sessions[payload.SessionID]
		n.mu.Unlock()
		if pc == nil || pc.RemoteDescription() == nil {
			return
		}
		if err := pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: payload.Candidate}); err != nil {
			n.logger.Debugw("candidate rejected", "session_id", payload.SessionID, "error", err)
		}

	case signal.EnvelopeError:
		n.logger.Warnw("relay error", "payload", string(env.Payload))
	}
}

func (n *Network) handleOffer(ctx context.Context, from domain.DeviceID, payload sessionPayload) {
	switch payload.Kind {
	case kindControl:
		if payload.Admission == nil {
			n.logger.Warnw("control offer without admission request", "from", from)
			return
		}
		n.answerControl(ctx, from, payload)

	case kindMedia:
		n.mu.Lock()
		fn := n.onIncomingCall
		n.mu.Unlock()
		if fn == nil {
			n.logger.Warnw("media offer with no call handler", "from", from)
			return
		}
		fn(ports.IncomingCall{
			From: from,
			Accept: func(acceptCtx context.Context) (ports.MediaReceiver, error) {
				return n.answerMedia(acceptCtx, from, payload)
			},
			Reject: func() {
				n.logger.Infow("media call rejected", "from", from)
			},
		})

	default:
		n.logger.Warnw("offer with unknown kind", "from", from, "kind", payload.Kind)
	}
}

// answerControl accepts an inbound control offer and surfaces the
// channel once the data channel opens.
func (n *Network) answerControl(ctx context.Context, from domain.DeviceID, payload sessionPayload) {
	pc, err := n.newPeerConnection()
	if err != nil {
		n.logger.Errorw("peer connection create failed", "from", from, "error", err)
		return
	}
	n.registerSession(payload.SessionID, pc, nil)
	n.forwardCandidates(pc, from, payload.SessionID)

	request := *payload.Admission
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		channel := newControlChannel(dc, pc, n.logger)
		n.registerSession(payload.SessionID, pc, channel.transportFailed)
		go func() {
			<-channel.opened
			n.mu.Lock()
			fn := n.onIncomingControl
			n.mu.Unlock()
			if fn != nil {
				fn(ports.IncomingControl{Request: request, Channel: channel})
			}
		}()
	})

	if err := n.sendAnswer(ctx, pc, from, payload); err != nil {
		n.logger.Errorw("control answer failed", "from", from, "error", err)
		n.dropSession(payload.SessionID)
		pc.Close()
	}
}

// answerMedia accepts an inbound media offer and returns the receiver.
func (n *Network) answerMedia(ctx context.Context, from domain.DeviceID, payload sessionPayload) (ports.MediaReceiver, error) {
	pc, err := n.newPeerConnection()
	if err != nil {
		return nil, err
	}
	n.registerSession(payload.SessionID, pc, nil)
	n.forwardCandidates(pc, from, payload.SessionID)

	receiver := newMediaReceiver(pc, n.logger)

	if err := n.sendAnswer(ctx, pc, from, payload); err != nil {
		n.dropSession(payload.SessionID)
		pc.Close()
		return nil, err
	}
	return receiver, nil
}

func (n *Network) newPeerConnection() (*webrtc.PeerConnection, error) {
	return n.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   n.cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
}

// sendOffer creates the local offer, waits out ICE gathering and ships
// the complete SDP through the relay.
func (n *Network) sendOffer(ctx context.Context, pc *webrtc.PeerConnection, target domain.DeviceID, payload sessionPayload) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer failed: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description failed: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	payload.SDP = pc.LocalDescription().SDP
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return n.client.Send(signal.Envelope{Type: signal.EnvelopeOffer, To: target, Payload: data})
}

func (n *Network) sendAnswer(ctx context.Context, pc *webrtc.PeerConnection, target domain.DeviceID, payload sessionPayload) error {
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  payload.SDP,
	}); err != nil {
		return fmt.Errorf("set remote description failed: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer failed: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description failed: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	data, err := json.Marshal(sessionPayload{
		SessionID: payload.SessionID,
		Kind:      payload.Kind,
		SDP:       pc.LocalDescription().SDP,
	})
	if err != nil {
		return err
	}
	return n.client.Send(signal.Envelope{Type: signal.EnvelopeAnswer, To: target, Payload: data})
}

func (n *Network) awaitAnswer(ctx context.Context, pc *webrtc.PeerConnection, answerCh chan webrtc.SessionDescription) error {
	select {
	case answer := <-answerCh:
		if err := pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote description failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forwardCandidates trickles local ICE candidates to the peer. Both
// sides also ship complete SDPs, so late candidates only speed things
// up.
func (n *Network) forwardCandidates(pc *webrtc.PeerConnection, target domain.DeviceID, sessionID string) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(sessionPayload{SessionID: sessionID, Candidate: c.ToJSON().Candidate})
		if err != nil {
			return
		}
		if err := n.client.Send(signal.Envelope{Type: signal.EnvelopeCandidate, To: target, Payload: data}); err != nil {
			n.logger.Debugw("candidate send failed", "session_id", sessionID, "error", err)
		}
	})
}

func (n *Network) registerSession(sessionID string, pc *webrtc.PeerConnection, onFailed func()) chan webrtc.SessionDescription {
	ch := make(chan webrtc.SessionDescription, 1)
	n.mu.Lock()
	n.sessions[sessionID] = pc
	n.answers[sessionID] = ch
	n.mu.Unlock()

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			n.dropSession(sessionID)
			if onFailed != nil && state == webrtc.PeerConnectionStateFailed {
				onFailed()
			}
		}
	})
	return ch
}

func (n *Network) dropSession(sessionID string) {
	n.mu.Lock()
	delete(n.sessions, sessionID)
	delete(n.answers, sessionID)
	n.mu.Unlock()
}
