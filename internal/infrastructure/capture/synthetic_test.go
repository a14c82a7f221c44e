package capture

import (
	"bytes"
	"context"
	"image/jpeg"
	"testing"

	"nido/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func acquire(t *testing.T, c domain.CaptureConstraints) *syntheticSource {
	t.Helper()
	backend := NewSyntheticBackend(zap.NewNop().Sugar())
	src, err := backend.Acquire(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src.(*syntheticSource)
}

func TestAcquire_ProducesTracks(t *testing.T) {
	src := acquire(t, domain.ConstraintsFor(domain.FacingBack, domain.QualityMedium))

	assert.Equal(t, "video", src.VideoTrack().Kind())
	assert.Equal(t, "audio", src.AudioTrack().Kind())
	assert.Equal(t, 640, src.Constraints().Width)
	assert.Equal(t, 480, src.Constraints().Height)
}

func TestAcquire_RejectsUnsatisfiableConstraints(t *testing.T) {
	backend := NewSyntheticBackend(zap.NewNop().Sugar())
	_, err := backend.Acquire(context.Background(), domain.CaptureConstraints{})
	assert.Error(t, err)
}

func TestAcquire_DisplacesPreviousSource(t *testing.T) {
	backend := NewSyntheticBackend(zap.NewNop().Sugar())

	first, err := backend.Acquire(context.Background(), domain.ConstraintsFor(domain.FacingBack, domain.QualityLow))
	require.NoError(t, err)

	second, err := backend.Acquire(context.Background(), domain.ConstraintsFor(domain.FacingBack, domain.QualityHigh))
	require.NoError(t, err)
	defer second.Close()

	// The first source is closed by the second acquisition.
	_, err = first.SetTorch(true)
	assert.Error(t, err)
}

func TestSetTorch_ReportsResultingState(t *testing.T) {
	src := acquire(t, domain.ConstraintsFor(domain.FacingBack, domain.QualityLow))

	on, err := src.SetTorch(true)
	require.NoError(t, err)
	assert.True(t, on)

	off, err := src.SetTorch(false)
	require.NoError(t, err)
	assert.False(t, off)
}

func TestStill_ReturnsDecodableJPEG(t *testing.T) {
	src := acquire(t, domain.ConstraintsFor(domain.FacingBack, domain.QualityMedium))

	frame, err := src.Still(context.Background())
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(frame))
	require.NoError(t, err)
	// Stills are downsampled, not full capture resolution.
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestStill_FailsAfterClose(t *testing.T) {
	src := acquire(t, domain.ConstraintsFor(domain.FacingBack, domain.QualityLow))
	require.NoError(t, src.Close())

	_, err := src.Still(context.Background())
	assert.Error(t, err)
}

func TestRenderFrame_KeyframeCadence(t *testing.T) {
	src := acquire(t, domain.ConstraintsFor(domain.FacingBack, domain.QualityLow))

	key := src.renderFrame(1, false)
	assert.Equal(t, byte(0x10), key[1], "first frame carries the keyframe marker")

	delta := src.renderFrame(2, false)
	assert.Equal(t, byte(0x00), delta[1])

	nextKey := src.renderFrame(keyframeInterval+1, false)
	assert.Equal(t, byte(0x10), nextKey[1])
}
