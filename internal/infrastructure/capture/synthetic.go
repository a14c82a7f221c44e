package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/ports"
	"nido/internal/infrastructure/webrtc"
	"nido/pkg/optimize"
	"nido/pkg/utils"

	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

const keyframeInterval = 30

// SyntheticBackend acquires software-generated sources: a moving test
// pattern for video and silence for audio. It stands in for real
// camera hardware in development and in headless deployments, and it
// honors the same constraint set a hardware backend would.
type SyntheticBackend struct {
	logger *zap.SugaredLogger

	mu     sync.Mutex
	active *syntheticSource
}

func NewSyntheticBackend(logger *zap.SugaredLogger) *SyntheticBackend {
	return &SyntheticBackend{logger: logger}
}

// Acquire starts a new synthetic session. Acquiring while a previous
// session is live displaces it, mirroring exclusive camera ownership.
func (b *SyntheticBackend) Acquire(ctx context.Context, c domain.CaptureConstraints) (ports.CaptureSource, error) {
	if c.Width <= 0 || c.Height <= 0 || c.FrameRate <= 0 {
		return nil, fmt.Errorf("unsatisfiable constraints %dx%d@%d", c.Width, c.Height, c.FrameRate)
	}

	id := utils.GenerateID("cap")
	video, err := webrtc.NewVideoTrack(id+"-video", "nido")
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewAudioTrack(id+"-audio", "nido")
	if err != nil {
		return nil, err
	}

	src := &syntheticSource{
		constraints: c,
		video:       video,
		audio:       audio,
		pool:        optimize.NewFramePool(frameSize(c)),
		logger:      b.logger,
		done:        make(chan struct{}),
		mic:         true,
	}
	go src.produce()

	b.mu.Lock()
	prev := b.active
	b.active = src
	b.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	b.logger.Infow("synthetic capture acquired",
		"width", c.Width, "height", c.Height, "fps", c.FrameRate)
	return src, nil
}

type syntheticSource struct {
	constraints domain.CaptureConstraints
	video       *webrtc.LocalTrack
	audio       *webrtc.LocalTrack
	pool        *optimize.FramePool
	logger      *zap.SugaredLogger

	mu     sync.Mutex
	torch  bool
	mic    bool
	closed bool
	frame  uint64

	done     chan struct{}
	doneOnce sync.Once
}

func (s *syntheticSource) VideoTrack() ports.MediaTrack           { return s.video }
func (s *syntheticSource) AudioTrack() ports.MediaTrack           { return s.audio }
func (s *syntheticSource) Constraints() domain.CaptureConstraints { return s.constraints }

// SetTorch emulates the hardware light by brightening the pattern.
func (s *syntheticSource) SetTorch(enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("capture source closed")
	}
	s.torch = enabled
	return s.torch, nil
}

func (s *syntheticSource) SetMicEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mic = enabled
}

// Still renders the current pattern as a JPEG for the analyzer.
func (s *syntheticSource) Still(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("capture source closed")
	}
	frame := s.frame
	torch := s.torch
	width, height := s.constraints.Width, s.constraints.Height
	s.mu.Unlock()

	img := image.NewGray(image.Rect(0, 0, width/4, height/4))
	base := uint8(40)
	if torch {
		base = 160
	}
	for y := 0; y < img.Rect.Dy(); y++ {
		for x := 0; x < img.Rect.Dx(); x++ {
			img.SetGray(x, y, color.Gray{Y: base + uint8((x+y+int(frame))%64)})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 60}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *syntheticSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
	return nil
}

// produce pushes video frames and audio packets until the source is
// closed. Every keyframeInterval-th frame carries a keyframe marker so
// receivers can gauge decodability.
func (s *syntheticSource) produce() {
	frameDuration := time.Second / time.Duration(s.constraints.FrameRate)
	videoTicker := time.NewTicker(frameDuration)
	defer videoTicker.Stop()
	audioTicker := time.NewTicker(20 * time.Millisecond)
	defer audioTicker.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-videoTicker.C:
			s.mu.Lock()
			s.frame++
			frame := s.frame
			torch := s.torch
			s.mu.Unlock()

			data := s.renderFrame(frame, torch)
			if err := s.video.WriteSample(media.Sample{Data: data, Duration: frameDuration}); err != nil {
				s.logger.Debugw("video sample dropped", "error", err)
			}
			s.pool.Put(data)

		case <-audioTicker.C:
			s.mu.Lock()
			mic := s.mic
			s.mu.Unlock()
			if !mic {
				continue
			}
			// 20ms of silence.
			if err := s.audio.WriteSample(media.Sample{Data: silentOpusFrame, Duration: 20 * time.Millisecond}); err != nil {
				s.logger.Debugw("audio sample dropped", "error", err)
			}
		}
	}
}

// silentOpusFrame is a minimal opus frame encoding silence.
var silentOpusFrame = []byte{0xF8, 0xFF, 0xFE}

func frameSize(c domain.CaptureConstraints) int {
	size := c.Width * c.Height / 64
	if size < 16 {
		size = 16
	}
	return size
}

func (s *syntheticSource) renderFrame(frame uint64, torch bool) []byte {
	data := s.pool.Get()

	if frame%keyframeInterval == 1 {
		data[0], data[1] = 0x80, 0x10
	} else {
		data[0], data[1] = 0x80, 0x00
	}
	base := byte(40)
	if torch {
		base = 160
	}
	for i := 2; i < len(data); i++ {
		data[i] = base + byte((uint64(i)+frame)%64)
	}
	return data
}
