package services

import (
	"context"
	"fmt"
	"sync"

	"nido/internal/core/domain"
	"nido/internal/core/ports"

	"go.uber.org/zap"
)

// MediaService owns the camera's capture source and the outbound media
// legs toward admitted viewers. Quality and facing changes re-acquire
// the source and swap tracks in place on every live sender, so running
// calls never renegotiate.
type MediaService struct {
	backend  ports.CaptureBackend
	recorder Recorder
	log      *zap.SugaredLogger

	mu      sync.Mutex
	source  ports.CaptureSource
	params  domain.SourceParams
	senders map[domain.ConnectionID]ports.MediaSender
}

func NewMediaService(backend ports.CaptureBackend, recorder Recorder, log *zap.SugaredLogger) *MediaService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &MediaService{
		backend:  backend,
		recorder: recorder,
		log:      log,
		senders:  make(map[domain.ConnectionID]ports.MediaSender),
	}
}

// Start acquires the capture source with the requested parameters,
// falling back through lower quality tiers and then the opposite facing
// before giving up.
func (s *MediaService) Start(ctx context.Context, params domain.SourceParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source != nil {
		return nil
	}

	source, got, err := s.acquireWithFallback(ctx, params)
	if err != nil {
		return err
	}

	source.SetMicEnabled(params.MicEnabled)
	got.MicEnabled = params.MicEnabled
	s.source = source
	s.params = got

	s.log.Infow("capture source started",
		"facing", got.Facing, "quality", got.Quality, "mic", got.MicEnabled)
	return nil
}

// ApplyQuality re-acquires the source at a new quality tier and swaps
// the tracks on every live sender.
func (s *MediaService) ApplyQuality(ctx context.Context, quality domain.Quality) error {
	if !quality.Valid() {
		return fmt.Errorf("invalid quality %q", quality)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	params := s.params
	params.Quality = quality
	return s.swapSource(ctx, params)
}

// ApplyFacing re-acquires the source on the other lens and swaps the
// tracks on every live sender.
func (s *MediaService) ApplyFacing(ctx context.Context, facing domain.Facing) error {
	if !facing.Valid() {
		return fmt.Errorf("invalid facing %q", facing)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	params := s.params
	params.Facing = facing
	return s.swapSource(ctx, params)
}

// Refresh tears down and re-acquires the source with unchanged
// parameters. Used when a viewer's watchdog reports a stalled stream.
func (s *MediaService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapSource(ctx, s.params)
}

// SetTorch toggles the hardware light and reports the resulting state.
func (s *MediaService) SetTorch(enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return false, domain.ErrNoSource
	}
	return s.source.SetTorch(enabled)
}

// SetMic mutes or unmutes outgoing audio without touching the video leg.
func (s *MediaService) SetMic(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return domain.ErrNoSource
	}
	s.source.SetMicEnabled(enabled)
	s.params.MicEnabled = enabled
	return nil
}

// Still captures a single downsampled frame for the analyzer.
func (s *MediaService) Still(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	source := s.source
	s.mu.Unlock()
	if source == nil {
		return nil, domain.ErrNoSource
	}
	return source.Still(ctx)
}

// Tracks returns the current local tracks for originating a call.
func (s *MediaService) Tracks() (video, audio ports.MediaTrack, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return nil, nil, domain.ErrNoSource
	}
	return s.source.VideoTrack(), s.source.AudioTrack(), nil
}

// Params returns the live capture parameterization.
func (s *MediaService) Params() domain.SourceParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// AttachSender registers the outbound media leg for a viewer connection.
func (s *MediaService) AttachSender(connID domain.ConnectionID, sender ports.MediaSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[connID] = sender
}

// DetachSender closes and forgets a viewer's media leg.
func (s *MediaService) DetachSender(connID domain.ConnectionID) {
	s.mu.Lock()
	sender, ok := s.senders[connID]
	delete(s.senders, connID)
	s.mu.Unlock()
	if ok {
		_ = sender.Close()
	}
}

// Stop closes every sender and releases the capture source.
func (s *MediaService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sender := range s.senders {
		_ = sender.Close()
		delete(s.senders, id)
	}
	if s.source != nil {
		_ = s.source.Close()
		s.source = nil
	}
}

// swapSource acquires a replacement source, retargets every sender,
// then closes the old source. Callers hold s.mu.
func (s *MediaService) swapSource(ctx context.Context, params domain.SourceParams) error {
	if s.source == nil {
		return domain.ErrNoSource
	}

	next, got, err := s.acquireWithFallback(ctx, params)
	if err != nil {
		s.log.Warnw("source re-acquisition failed, keeping current source", "error", err)
		return err
	}
	next.SetMicEnabled(params.MicEnabled)
	got.MicEnabled = params.MicEnabled

	for connID, sender := range s.senders {
		if err := sender.ReplaceVideo(next.VideoTrack()); err != nil {
			s.log.Warnw("video track replace failed", "connection_id", connID, "error", err)
			continue
		}
		if err := sender.ReplaceAudio(next.AudioTrack()); err != nil {
			s.log.Warnw("audio track replace failed", "connection_id", connID, "error", err)
		}
		s.recorder.TrackReplaced()
	}

	old := s.source
	s.source = next
	s.params = got
	_ = old.Close()

	s.log.Infow("capture source swapped",
		"facing", got.Facing, "quality", got.Quality)
	return nil
}

// acquireWithFallback tries the requested tier, then each lower tier,
// then the same ladder on the opposite lens. It returns the parameters
// that actually stuck.
func (s *MediaService) acquireWithFallback(ctx context.Context, params domain.SourceParams) (ports.CaptureSource, domain.SourceParams, error) {
	var lastErr error
	for _, facing := range []domain.Facing{params.Facing, params.Facing.Other()} {
		for quality := params.Quality; quality != ""; quality = quality.Lower() {
			source, err := s.backend.Acquire(ctx, domain.ConstraintsFor(facing, quality))
			if err == nil {
				got := params
				got.Facing = facing
				got.Quality = quality
				return source, got, nil
			}
			lastErr = err
			s.log.Debugw("capture acquisition attempt failed",
				"facing", facing, "quality", quality, "error", err)
		}
	}
	return nil, domain.SourceParams{}, fmt.Errorf("%w: %v", domain.ErrAcquisitionFailed, lastErr)
}
