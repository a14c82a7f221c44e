package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSetMode_StartsAndStopsPlayback(t *testing.T) {
	sink := &fakeSink{}
	svc := NewLullabyService(sink, zap.NewNop().Sugar())

	svc.SetMode(LullabyWhiteNoise)
	assert.Equal(t, LullabyWhiteNoise, svc.Mode())

	// Wait for at least one 100ms chunk to land.
	deadline := time.After(2 * time.Second)
	for {
		if chunks, _ := sink.written(); chunks > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no audio written")
		case <-time.After(10 * time.Millisecond):
		}
	}

	svc.Stop()
	assert.Equal(t, LullabyOff, svc.Mode())
}

func TestSetMode_UnknownModeStops(t *testing.T) {
	svc := NewLullabyService(&fakeSink{}, zap.NewNop().Sugar())

	svc.SetMode(LullabyHeartbeat)
	svc.SetMode(99)
	assert.Equal(t, LullabyOff, svc.Mode())
}

func TestSetMode_SameModeIsNoop(t *testing.T) {
	svc := NewLullabyService(&fakeSink{}, zap.NewNop().Sugar())

	svc.SetMode(LullabyBrownNoise)
	svc.SetMode(LullabyBrownNoise)
	assert.Equal(t, LullabyBrownNoise, svc.Mode())
	svc.Stop()
}

func TestGenerator_ProducesBoundedSamples(t *testing.T) {
	for _, mode := range []int{LullabyWhiteNoise, LullabyBrownNoise, LullabyHeartbeat} {
		gen := newGenerator(mode)
		buf := make([]byte, lullabyChunk*2)
		for i := 0; i < 20; i++ {
			gen.fill(buf)
		}
		assert.Len(t, buf, lullabyChunk*2)
	}
}

func TestGenerator_WhiteNoiseIsNotSilence(t *testing.T) {
	gen := newGenerator(LullabyWhiteNoise)
	buf := make([]byte, lullabyChunk*2)
	gen.fill(buf)

	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	assert.False(t, allZero)
}
