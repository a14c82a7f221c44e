package ports

import (
	"context"

	"nido/internal/core/domain"
)

// CaptureSource is one acquired capture device session. It is owned
// exclusively by the media session manager.
type CaptureSource interface {
	VideoTrack() MediaTrack
	AudioTrack() MediaTrack
	Constraints() domain.CaptureConstraints

	// SetTorch is best-effort hardware light control. It reports the
	// resulting state rather than assuming success and never fails hard
	// when the capability is absent.
	SetTorch(enabled bool) (bool, error)
	SetMicEnabled(enabled bool)

	// Still captures a downsampled frame for the analyzer.
	Still(ctx context.Context) ([]byte, error)

	Close() error
}

// CaptureBackend acquires capture devices under resolution and
// frame-rate constraints.
type CaptureBackend interface {
	Acquire(ctx context.Context, c domain.CaptureConstraints) (CaptureSource, error)
}

// FrameAnalyzer is the external image-classification service, treated
// as a black box.
type FrameAnalyzer interface {
	Analyze(ctx context.Context, frame []byte) (domain.AnalysisResult, error)
}

// Notifier raises a user-visible notification on the viewer device.
type Notifier interface {
	Notify(title, body string) error
}

// BatteryMonitor reports the camera device's battery telemetry.
type BatteryMonitor interface {
	Current() (domain.BatteryState, bool)
	// Updates delivers a state on every level or charging change. The
	// channel closes when the monitor shuts down.
	Updates() <-chan domain.BatteryState
}

// AudioSink plays raw PCM on the local device (lullaby output, talkback
// playback).
type AudioSink interface {
	// Write queues interleaved 16-bit PCM samples.
	Write(pcm []byte) error
	Close() error
}

// QREncoder and QRDecoder are external capabilities; the core only
// produces and consumes the pairing payload bytes.
type QREncoder interface {
	Encode(payload []byte) ([]byte, error)
}

type QRDecoder interface {
	Decode(image []byte) ([]byte, error)
}
