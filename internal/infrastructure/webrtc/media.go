package webrtc

import (
	"io"
	"sync"
	"time"

	"nido/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

// LocalTrack is a sample-fed outbound track. Capture backends write
// encoded frames into it; the same instance can feed several senders.
type LocalTrack struct {
	track *webrtc.TrackLocalStaticSample
}

// NewVideoTrack creates a VP8 video track.
func NewVideoTrack(id, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		id,
		streamID,
	)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{track: track}, nil
}

// NewAudioTrack creates an Opus audio track.
func NewAudioTrack(id, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		id,
		streamID,
	)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{track: track}, nil
}

func (t *LocalTrack) Kind() string { return t.track.Kind().String() }
func (t *LocalTrack) ID() string   { return t.track.ID() }

// WriteSample pushes one encoded frame onto the track.
func (t *LocalTrack) WriteSample(sample media.Sample) error {
	return t.track.WriteSample(sample)
}

// mediaSender is a ports.MediaSender over one outbound peer
// connection. Track swaps ride ReplaceTrack, no renegotiation.
type mediaSender struct {
	pc    *webrtc.PeerConnection
	video *webrtc.RTPSender
	audio *webrtc.RTPSender
}

func (s *mediaSender) ReplaceVideo(track ports.MediaTrack) error {
	return replaceOn(s.video, track)
}

func (s *mediaSender) ReplaceAudio(track ports.MediaTrack) error {
	return replaceOn(s.audio, track)
}

func replaceOn(sender *webrtc.RTPSender, track ports.MediaTrack) error {
	if sender == nil {
		return nil
	}
	if track == nil {
		return sender.ReplaceTrack(nil)
	}
	local, ok := track.(*LocalTrack)
	if !ok {
		return errNotLocalTrack
	}
	return sender.ReplaceTrack(local.track)
}

func (s *mediaSender) Close() error {
	return s.pc.Close()
}

// drainRTCP keeps interceptor pipelines alive on an outbound sender.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// mediaReceiver is a ports.MediaReceiver over one inbound peer
// connection. Playback position is derived from the RTP media clock of
// the video track, so a frozen encoder shows up as a stalled position
// even while the transport stays up. Until the first keyframe lands it
// nags the sender with PLI.
type mediaReceiver struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	mu        sync.Mutex
	closed    bool
	hasMedia  bool
	gotKey    bool
	prevTS    uint32
	mediaTime uint64
	clockRate uint32
}

func newMediaReceiver(pc *webrtc.PeerConnection, logger *zap.SugaredLogger) *mediaReceiver {
	r := &mediaReceiver{pc: pc, logger: logger}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		logger.Infow("inbound track started",
			"track_id", track.ID(),
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go r.requestKeyframes(track)
			go r.readVideo(track)
		} else {
			go r.drain(track)
		}
	})
	return r
}

// readVideo advances the media clock per packet and watches for the
// first decodable frame.
func (r *mediaReceiver) readVideo(track *webrtc.TrackRemote) {
	clockRate := track.Codec().ClockRate
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			if err != io.EOF {
				r.logger.Debugw("video track read ended", "error", err)
			}
			return
		}
		r.advance(packet, clockRate)
	}
}

func (r *mediaReceiver) advance(packet *rtp.Packet, clockRate uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clockRate = clockRate
	if !r.hasMedia {
		r.hasMedia = true
		r.prevTS = packet.Timestamp
	} else {
		// Unsigned subtraction survives the 32-bit timestamp wrap.
		delta := packet.Timestamp - r.prevTS
		if delta < 1<<31 {
			r.mediaTime += uint64(delta)
		}
		r.prevTS = packet.Timestamp
	}

	if !r.gotKey && isKeyframe(packet) {
		r.gotKey = true
	}
}

// requestKeyframes sends PLI until the stream is decodable.
func (r *mediaReceiver) requestKeyframes(track *webrtc.TrackRemote) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		done := r.gotKey || r.closed
		r.mu.Unlock()
		if done {
			return
		}
		err := r.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		})
		if err != nil {
			return
		}
	}
}

func (r *mediaReceiver) drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

// Position reports elapsed media time on the video clock.
func (r *mediaReceiver) Position() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasMedia || r.clockRate == 0 {
		return 0, false
	}
	return time.Duration(r.mediaTime) * time.Second / time.Duration(r.clockRate), true
}

func (r *mediaReceiver) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.pc.Close()
}
