package services

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"sync"
	"time"

	"nido/internal/core/ports"

	"go.uber.org/zap"
)

const (
	lullabySampleRate = 22050
	lullabyChunk      = lullabySampleRate / 10 // 100ms of mono samples
)

// Lullaby modes selectable from the viewer. Mode 0 stops playback.
const (
	LullabyOff        = 0
	LullabyWhiteNoise = 1
	LullabyBrownNoise = 2
	LullabyHeartbeat  = 3
)

// LullabyService plays generated ambient sound on the camera device's
// speaker. One mode plays at a time; selecting a new mode replaces the
// current one.
type LullabyService struct {
	sink ports.AudioSink
	log  *zap.SugaredLogger

	mu     sync.Mutex
	mode   int
	cancel context.CancelFunc
}

func NewLullabyService(sink ports.AudioSink, log *zap.SugaredLogger) *LullabyService {
	return &LullabyService{sink: sink, log: log}
}

// SetMode starts, switches or stops playback. Unknown modes stop
// playback, matching the behaviour of mode 0.
func (s *LullabyService) SetMode(mode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == s.mode {
		return
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mode = mode

	if mode <= LullabyOff || mode > LullabyHeartbeat {
		s.mode = LullabyOff
		s.log.Infow("lullaby stopped")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.play(ctx, mode)

	s.log.Infow("lullaby started", "mode", mode)
}

// Mode returns the active lullaby mode.
func (s *LullabyService) Mode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Stop halts playback.
func (s *LullabyService) Stop() {
	s.SetMode(LullabyOff)
}

func (s *LullabyService) play(ctx context.Context, mode int) {
	gen := newGenerator(mode)
	buf := make([]byte, lullabyChunk*2)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gen.fill(buf)
			if err := s.sink.Write(buf); err != nil {
				s.log.Warnw("lullaby playback write failed", "error", err)
				return
			}
		}
	}
}

// generator produces 16-bit little-endian mono PCM.
type generator struct {
	mode  int
	rng   *rand.Rand
	brown float64
	phase float64
}

func newGenerator(mode int) *generator {
	return &generator{mode: mode, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *generator) fill(buf []byte) {
	for i := 0; i < len(buf); i += 2 {
		var sample float64
		switch g.mode {
		case LullabyWhiteNoise:
			sample = (g.rng.Float64()*2 - 1) * 0.25
		case LullabyBrownNoise:
			// Integrated white noise, kept leaky so it stays bounded.
			g.brown += (g.rng.Float64()*2 - 1) * 0.02
			g.brown *= 0.998
			sample = g.brown
		case LullabyHeartbeat:
			// Two soft thumps per second.
			g.phase += 1.0 / lullabySampleRate
			if g.phase >= 1.0 {
				g.phase -= 1.0
			}
			beat := math.Mod(g.phase, 0.5)
			if beat < 0.1 {
				sample = math.Sin(beat/0.1*math.Pi) * math.Exp(-beat*20) * 0.5
			}
		}

		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(sample*math.MaxInt16)))
	}
}
