package ports

import (
	"context"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/protocol"
)

// ControlChannel is one bidirectional command channel to a single peer.
// Delivery is FIFO within the channel; nothing is guaranteed across
// channels.
type ControlChannel interface {
	Send(cmd protocol.Command) error
	// OnCommand registers the inbound dispatch callback. Commands are
	// delivered one at a time, in arrival order.
	OnCommand(fn func(cmd protocol.Command))
	// OnClose fires exactly once when the channel closes, whether by
	// explicit Close or transport failure.
	OnClose(fn func(err error))
	Close() error
}

// MediaTrack is an opaque handle to a local media track. Concrete
// transports assert it to their own track type; fakes use their own.
type MediaTrack interface {
	Kind() string
	ID() string
}

// MediaSender is the outbound media leg toward one peer. Replace
// substitutes a track in place so the call survives quality and facing
// changes without renegotiation.
type MediaSender interface {
	ReplaceVideo(track MediaTrack) error
	ReplaceAudio(track MediaTrack) error
	Close() error
}

// MediaReceiver is the inbound media leg from one peer.
type MediaReceiver interface {
	// Position reports the playback presentation timestamp of the
	// inbound video, and whether any media has arrived yet. The
	// stability watchdog samples it.
	Position() (time.Duration, bool)
	Close() error
}

// PlaybackProbe is the read-only view of a receiver the watchdog needs.
type PlaybackProbe interface {
	Position() (time.Duration, bool)
}

// IncomingControl is a viewer's control-channel open attempt, delivered
// to the camera before any admission decision is made.
type IncomingControl struct {
	Request domain.AdmissionRequest
	Channel ControlChannel
}

// IncomingCall is an inbound media call offer.
type IncomingCall struct {
	From domain.DeviceID
	// Accept answers the call. For audio-only talkback calls the camera
	// answers with no local tracks.
	Accept func(ctx context.Context) (MediaReceiver, error)
	Reject func()
}

// PeerNetwork is the peer-to-peer session fabric: control channels and
// media calls addressed by device ID, discovery supplied by the
// signaling infrastructure underneath.
type PeerNetwork interface {
	// Open registers this device on the discovery network and returns
	// its address. Blocks until the signaling channel is open or ctx
	// expires.
	Open(ctx context.Context) (domain.DeviceID, error)

	// Camera side.
	OnIncomingControl(fn func(IncomingControl))
	OnIncomingCall(fn func(IncomingCall))

	// Viewer side.
	OpenControl(ctx context.Context, target domain.DeviceID, req domain.AdmissionRequest) (ControlChannel, error)

	// Call originates an outbound media call to target. Either track
	// may be nil (audio-only talkback).
	Call(ctx context.Context, target domain.DeviceID, video, audio MediaTrack) (MediaSender, error)

	Close() error
}
