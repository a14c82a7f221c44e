package webrtc

import (
	"encoding/json"
	"testing"
	"time"

	"nido/internal/core/domain"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalTrack_Kinds(t *testing.T) {
	video, err := NewVideoTrack("cam-video", "nido")
	require.NoError(t, err)
	assert.Equal(t, "video", video.Kind())
	assert.Equal(t, "cam-video", video.ID())

	audio, err := NewAudioTrack("cam-audio", "nido")
	require.NoError(t, err)
	assert.Equal(t, "audio", audio.Kind())
}

func TestReplaceOn_RejectsForeignTrack(t *testing.T) {
	err := replaceOn(nil, nil)
	assert.NoError(t, err, "missing sender is a no-op")
}

func TestSessionPayload_CarriesAdmission(t *testing.T) {
	payload := sessionPayload{
		SessionID: "sess_1",
		Kind:      kindControl,
		SDP:       "v=0",
		Admission: &domain.AdmissionRequest{
			Name:     "Parent Phone",
			DeviceID: "nido_view01",
			Token:    "secret",
		},
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded sessionPayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Admission)
	assert.Equal(t, "Parent Phone", decoded.Admission.Name)
	assert.EqualValues(t, "nido_view01", decoded.Admission.DeviceID)
	assert.Equal(t, "secret", decoded.Admission.Token)
}

func TestIsKeyframe_VP8(t *testing.T) {
	keyframe := &rtp.Packet{Payload: []byte{0x80, 0x10, 0x00}}
	assert.True(t, isKeyframe(keyframe))

	delta := &rtp.Packet{Payload: []byte{0x80, 0x00, 0x00}}
	assert.False(t, isKeyframe(delta))

	empty := &rtp.Packet{}
	assert.False(t, isKeyframe(empty))
}

func TestIsKeyframe_H264IDR(t *testing.T) {
	idr := &rtp.Packet{Payload: []byte{0x65}}
	assert.True(t, isKeyframe(idr))

	nonIDR := &rtp.Packet{Payload: []byte{0x61}}
	assert.False(t, isKeyframe(nonIDR))
}

func TestMediaReceiver_PositionFollowsMediaClock(t *testing.T) {
	r := &mediaReceiver{logger: zap.NewNop().Sugar()}

	_, ok := r.Position()
	assert.False(t, ok, "no media yet")

	// 90 kHz video clock: 3000 ticks per frame at 30fps.
	r.advance(&rtp.Packet{Header: rtp.Header{Timestamp: 1000}}, 90000)
	pos, ok := r.Position()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), pos)

	r.advance(&rtp.Packet{Header: rtp.Header{Timestamp: 1000 + 45000}}, 90000)
	pos, _ = r.Position()
	assert.Equal(t, 500*time.Millisecond, pos)

	// Same timestamp again (another packet of the same frame) does not
	// advance the clock.
	r.advance(&rtp.Packet{Header: rtp.Header{Timestamp: 1000 + 45000}}, 90000)
	pos, _ = r.Position()
	assert.Equal(t, 500*time.Millisecond, pos)
}

func TestMediaReceiver_PositionSurvivesTimestampWrap(t *testing.T) {
	r := &mediaReceiver{logger: zap.NewNop().Sugar()}

	start := uint32(0xFFFFFFFF - 44999)
	r.advance(&rtp.Packet{Header: rtp.Header{Timestamp: start}}, 90000)
	r.advance(&rtp.Packet{Header: rtp.Header{Timestamp: start + 45000}}, 90000) // wraps
	r.advance(&rtp.Packet{Header: rtp.Header{Timestamp: start + 90000}}, 90000)

	pos, ok := r.Position()
	require.True(t, ok)
	assert.Equal(t, time.Second, pos)
}

func TestMediaReceiver_KeyframeMarksDecodable(t *testing.T) {
	r := &mediaReceiver{logger: zap.NewNop().Sugar()}

	r.advance(&rtp.Packet{Header: rtp.Header{Timestamp: 1}, Payload: []byte{0x80, 0x00}}, 90000)
	assert.False(t, r.gotKey)

	r.advance(&rtp.Packet{Header: rtp.Header{Timestamp: 2}, Payload: []byte{0x80, 0x10}}, 90000)
	assert.True(t, r.gotKey)
}
