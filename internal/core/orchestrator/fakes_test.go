package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/ports"
	"nido/internal/core/protocol"
)

// memStore is an in-memory ports.DeviceStore.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// scriptedChannel is a ControlChannel the test drives from the remote
// side: deliver() injects inbound commands, drop() simulates loss.
type scriptedChannel struct {
	mu        sync.Mutex
	sent      []protocol.Command
	closed    bool
	onCommand func(protocol.Command)
	onClose   func(error)
}

func (c *scriptedChannel) Send(cmd protocol.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("channel closed")
	}
	c.sent = append(c.sent, cmd)
	return nil
}

func (c *scriptedChannel) OnCommand(fn func(protocol.Command)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommand = fn
}

func (c *scriptedChannel) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *scriptedChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn(nil)
	}
	return nil
}

func (c *scriptedChannel) deliver(cmd protocol.Command) {
	c.mu.Lock()
	fn := c.onCommand
	c.mu.Unlock()
	if fn != nil {
		fn(cmd)
	}
}

func (c *scriptedChannel) drop(err error) {
	c.mu.Lock()
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *scriptedChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *scriptedChannel) sentCommands() []protocol.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Command(nil), c.sent...)
}

// fakeTrack is a ports.MediaTrack stand-in.
type fakeTrack struct {
	kind string
	id   string
}

func (t fakeTrack) Kind() string { return t.kind }
func (t fakeTrack) ID() string   { return t.id }

// fakeSender records replaced tracks.
type fakeSender struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeSender) ReplaceVideo(ports.MediaTrack) error { return nil }
func (s *fakeSender) ReplaceAudio(ports.MediaTrack) error { return nil }

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeReceiver reports a scripted playback position.
type fakeReceiver struct {
	mu       sync.Mutex
	position time.Duration
	hasMedia bool
	closed   bool
}

func (r *fakeReceiver) Position() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position, r.hasMedia
}

func (r *fakeReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// fakeSource and fakeBackend implement the capture ports.
type fakeSource struct {
	mu          sync.Mutex
	constraints domain.CaptureConstraints
	mic         bool
	closed      bool
}

func (s *fakeSource) VideoTrack() ports.MediaTrack              { return fakeTrack{kind: "video", id: "v"} }
func (s *fakeSource) AudioTrack() ports.MediaTrack              { return fakeTrack{kind: "audio", id: "a"} }
func (s *fakeSource) Constraints() domain.CaptureConstraints    { return s.constraints }
func (s *fakeSource) SetTorch(on bool) (bool, error)            { return on, nil }
func (s *fakeSource) Still(ctx context.Context) ([]byte, error) { return []byte{1}, nil }

func (s *fakeSource) SetMicEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mic = on
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeBackend struct{}

func (fakeBackend) Acquire(ctx context.Context, c domain.CaptureConstraints) (ports.CaptureSource, error) {
	return &fakeSource{constraints: c}, nil
}

// fakeBattery implements ports.BatteryMonitor with a push channel.
type fakeBattery struct {
	mu      sync.Mutex
	state   domain.BatteryState
	known   bool
	updates chan domain.BatteryState
}

func newFakeBattery() *fakeBattery {
	return &fakeBattery{updates: make(chan domain.BatteryState, 8)}
}

func (b *fakeBattery) Current() (domain.BatteryState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.known
}

func (b *fakeBattery) Updates() <-chan domain.BatteryState { return b.updates }

func (b *fakeBattery) push(state domain.BatteryState) {
	b.mu.Lock()
	b.state = state
	b.known = true
	b.mu.Unlock()
	b.updates <- state
}

// fakeNotifier collects notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	notes [][2]string
}

func (n *fakeNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, [2]string{title, body})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

// fakeAnalyzer always reports calm.
type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, frame []byte) (domain.AnalysisResult, error) {
	return domain.AnalysisResult{Status: domain.StatusCalm}, nil
}

// fakeNetwork is a scriptable ports.PeerNetwork.
type fakeNetwork struct {
	mu                sync.Mutex
	self              domain.DeviceID
	openErr           error
	onIncomingControl func(ports.IncomingControl)
	onIncomingCall    func(ports.IncomingCall)

	// viewer side scripting
	dialResult func(req domain.AdmissionRequest) (ports.ControlChannel, error)

	// camera side scripting
	callErr error
	calls   []outboundCall
	closed  bool
}

type outboundCall struct {
	target domain.DeviceID
	sender *fakeSender
	video  ports.MediaTrack
	audio  ports.MediaTrack
}

func newFakeNetwork(self domain.DeviceID) *fakeNetwork {
	return &fakeNetwork{self: self}
}

func (n *fakeNetwork) Open(ctx context.Context) (domain.DeviceID, error) {
	if n.openErr != nil {
		return "", n.openErr
	}
	return n.self, nil
}

func (n *fakeNetwork) OnIncomingControl(fn func(ports.IncomingControl)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onIncomingControl = fn
}

func (n *fakeNetwork) OnIncomingCall(fn func(ports.IncomingCall)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onIncomingCall = fn
}

func (n *fakeNetwork) OpenControl(ctx context.Context, target domain.DeviceID, req domain.AdmissionRequest) (ports.ControlChannel, error) {
	n.mu.Lock()
	dial := n.dialResult
	n.mu.Unlock()
	if dial == nil {
		return nil, errors.New("no dial script")
	}
	return dial(req)
}

func (n *fakeNetwork) Call(ctx context.Context, target domain.DeviceID, video, audio ports.MediaTrack) (ports.MediaSender, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.callErr != nil {
		return nil, n.callErr
	}
	sender := &fakeSender{}
	n.calls = append(n.calls, outboundCall{target: target, sender: sender, video: video, audio: audio})
	return sender, nil
}

func (n *fakeNetwork) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func (n *fakeNetwork) injectControl(in ports.IncomingControl) {
	n.mu.Lock()
	fn := n.onIncomingControl
	n.mu.Unlock()
	if fn != nil {
		fn(in)
	}
}

func (n *fakeNetwork) injectCall(call ports.IncomingCall) {
	n.mu.Lock()
	fn := n.onIncomingCall
	n.mu.Unlock()
	if fn != nil {
		fn(call)
	}
}

func (n *fakeNetwork) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
