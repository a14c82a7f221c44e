package services

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

// fakeChannel records sent commands and exposes the close callback.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []protocol.Command
	closed  bool
	sendErr error
	onClose func(error)
}

func (c *fakeChannel) Send(cmd protocol.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, cmd)
	return nil
}

func (c *fakeChannel) OnCommand(fn func(protocol.Command)) {}

func (c *fakeChannel) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) sentTags() []protocol.Tag {
	c.mu.Lock()
	defer c.mu.Unlock()
	tags := make([]protocol.Tag, 0, len(c.sent))
	for _, cmd := range c.sent {
		tags = append(tags, cmd.CommandTag())
	}
	return tags
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeTrack is a ports.MediaTrack stand-in.
type fakeTrack struct {
	kind string
	id   string
}

func (t fakeTrack) Kind() string { return t.kind }
func (t fakeTrack) ID() string   { return t.id }

// fakeSender records track replacements.
type fakeSender struct {
	mu       sync.Mutex
	videos   []ports.MediaTrack
	audios   []ports.MediaTrack
	closed   bool
	videoErr error
}

func (s *fakeSender) ReplaceVideo(track ports.MediaTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videoErr != nil {
		return s.videoErr
	}
	s.videos = append(s.videos, track)
	return nil
}

func (s *fakeSender) ReplaceAudio(track ports.MediaTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audios = append(s.audios, track)
	return nil
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeSource is an acquired capture session.
type fakeSource struct {
	mu          sync.Mutex
	constraints domain.CaptureConstraints
	torch       bool
	torchOK     bool
	mic         bool
	closed      bool
	frame       []byte
}

func (s *fakeSource) VideoTrack() ports.MediaTrack {
	return fakeTrack{kind: "video", id: "video-" + string(s.constraints.Facing)}
}

func (s *fakeSource) AudioTrack() ports.MediaTrack {
	return fakeTrack{kind: "audio", id: "audio-" + string(s.constraints.Facing)}
}

func (s *fakeSource) Constraints() domain.CaptureConstraints { return s.constraints }

func (s *fakeSource) SetTorch(enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.torchOK {
		return false, nil
	}
	s.torch = enabled
	return enabled, nil
}

func (s *fakeSource) SetMicEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mic = enabled
}

func (s *fakeSource) Still(ctx context.Context) ([]byte, error) {
	if s.frame == nil {
		return []byte{0x01}, nil
	}
	return s.frame, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeBackend fails acquisition for constraints listed in reject.
type fakeBackend struct {
	mu       sync.Mutex
	reject   map[domain.CaptureConstraints]bool
	acquired []*fakeSource
	torchOK  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{reject: make(map[domain.CaptureConstraints]bool), torchOK: true}
}

func (b *fakeBackend) rejectConstraints(c domain.CaptureConstraints) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reject[c] = true
}

func (b *fakeBackend) Acquire(ctx context.Context, c domain.CaptureConstraints) (ports.CaptureSource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reject[c] {
		return nil, errors.New("constraints not satisfiable")
	}
	source := &fakeSource{constraints: c, torchOK: b.torchOK}
	b.acquired = append(b.acquired, source)
	return source, nil
}

func (b *fakeBackend) lastSource() *fakeSource {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.acquired) == 0 {
		return nil
	}
	return b.acquired[len(b.acquired)-1]
}

// fakeAnalyzer returns a scripted sequence of results.
type fakeAnalyzer struct {
	mu     sync.Mutex
	result domain.AnalysisResult
	err    error
	calls  int
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, frame []byte) (domain.AnalysisResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return domain.AnalysisResult{}, a.err
	}
	return a.result, nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// fakeProbe reports a scripted playback position.
type fakeProbe struct {
	mu       sync.Mutex
	position time.Duration
	hasMedia bool
}

func (p *fakeProbe) Position() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.hasMedia
}

func (p *fakeProbe) advance(by time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasMedia = true
	p.position += by
}

// fakeSink collects written PCM.
type fakeSink struct {
	mu     sync.Mutex
	chunks int
	bytes  int
}

func (s *fakeSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks++
	s.bytes += len(pcm)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) written() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks, s.bytes
}
