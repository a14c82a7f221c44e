package device

import (
	"errors"
	"sync"
)

var errSinkClosed = errors.New("audio sink closed")

// DiscardSink accepts PCM and drops it, tracking only the byte count.
// It keeps the lullaby player functional on hosts without an audio
// output device.
type DiscardSink struct {
	mu      sync.Mutex
	written int64
	closed  bool
}

func NewDiscardSink() *DiscardSink {
	return &DiscardSink{}
}

func (s *DiscardSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	s.written += int64(len(pcm))
	return nil
}

// BytesWritten reports the total PCM bytes accepted so far.
func (s *DiscardSink) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *DiscardSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
