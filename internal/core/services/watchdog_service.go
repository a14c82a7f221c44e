package services

import (
	"context"
	"sync"
	"time"

	"nido/internal/core/ports"

	"go.uber.org/zap"
)

const (
	// watchdogUnstableAfter consecutive stalled samples mark the stream
	// unstable in the viewer UI.
	watchdogUnstableAfter = 2
	// watchdogRefreshAfter consecutive stalled samples ask the camera to
	// re-acquire its source. Sent once per stall episode.
	watchdogRefreshAfter = 3
)

// WatchdogService watches the viewer's inbound video for stalls. It
// samples the playback position at a fixed cadence; a sample that did
// not advance counts as a stall. The counter resets the moment playback
// moves again.
type WatchdogService struct {
	probe    ports.PlaybackProbe
	interval time.Duration
	recorder Recorder
	log      *zap.SugaredLogger

	onUnstable  func(unstable bool)
	sendRefresh func() error

	mu           sync.Mutex
	lastPosition time.Duration
	hasBaseline  bool
	stalls       int
	refreshSent  bool
	unstable     bool
}

func NewWatchdogService(
	probe ports.PlaybackProbe,
	interval time.Duration,
	onUnstable func(bool),
	sendRefresh func() error,
	recorder Recorder,
	log *zap.SugaredLogger,
) *WatchdogService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &WatchdogService{
		probe:       probe,
		interval:    interval,
		recorder:    recorder,
		log:         log,
		onUnstable:  onUnstable,
		sendRefresh: sendRefresh,
	}
}

// Run samples until ctx is cancelled.
func (s *WatchdogService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sample()
		}
	}
}

// Sample takes one stall measurement.
func (s *WatchdogService) Sample() {
	position, ok := s.probe.Position()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok {
		// No media yet; nothing to judge.
		return
	}

	if !s.hasBaseline {
		s.hasBaseline = true
		s.lastPosition = position
		return
	}

	if position > s.lastPosition {
		s.lastPosition = position
		s.reset()
		return
	}

	s.stalls++
	s.log.Debugw("playback stalled", "stalls", s.stalls, "position", position)

	if s.stalls >= watchdogUnstableAfter && !s.unstable {
		s.unstable = true
		if s.onUnstable != nil {
			s.onUnstable(true)
		}
	}

	if s.stalls >= watchdogRefreshAfter && !s.refreshSent {
		s.refreshSent = true
		s.recorder.WatchdogRefreshSent()
		s.log.Infow("requesting source refresh after stalled playback", "stalls", s.stalls)
		if s.sendRefresh != nil {
			if err := s.sendRefresh(); err != nil {
				s.log.Warnw("watchdog refresh send failed", "error", err)
			}
		}
	}
}

// Unstable reports whether the stream is currently flagged unstable.
func (s *WatchdogService) Unstable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unstable
}

// Reset clears all stall state, used when the media leg is replaced.
func (s *WatchdogService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasBaseline = false
	s.lastPosition = 0
	s.reset()
}

// reset clears the stall episode. Callers hold s.mu.
func (s *WatchdogService) reset() {
	s.stalls = 0
	s.refreshSent = false
	if s.unstable {
		s.unstable = false
		if s.onUnstable != nil {
			s.onUnstable(false)
		}
	}
}
