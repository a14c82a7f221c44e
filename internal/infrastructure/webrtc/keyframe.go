package webrtc

import (
	"errors"

	"github.com/pion/rtp"
)

var errNotLocalTrack = errors.New("track is not a local RTP track")

// isKeyframe detects whether an RTP packet starts a decodable frame.
func isKeyframe(packet *rtp.Packet) bool {
	if len(packet.Payload) == 0 {
		return false
	}

	// VP8 keyframe detection
	// VP8 payload starts with a 1-byte descriptor
	// Bit 0 (X bit) indicates if extended control bits are present
	// For keyframes, we check the I bit in the extended control bits
	firstByte := packet.Payload[0]
	if firstByte&0x80 != 0 && len(packet.Payload) >= 2 {
		extendedByte := packet.Payload[1]
		if extendedByte&0x10 != 0 {
			return true // Keyframe
		}
	}

	// H.264 keyframe detection (NAL unit type 5 = IDR frame)
	nalType := packet.Payload[0] & 0x1F
	return nalType == 5
}
