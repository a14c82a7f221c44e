package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"nido/internal/core/domain"
	"nido/pkg/utils"
)

// LuminanceAnalyzer classifies frames by mean-luma movement between
// consecutive stills. It is the on-device fallback when no external
// vision service is configured: large swings read as motion, everything
// else as calm. Distress detection needs a real model and is never
// produced here.
type LuminanceAnalyzer struct {
	mu        sync.Mutex
	prev      float64
	havePrev  bool
	threshold float64
}

// NewLuminanceAnalyzer creates an analyzer flagging motion when mean
// luma moves by more than threshold (0..255 scale).
func NewLuminanceAnalyzer(threshold float64) *LuminanceAnalyzer {
	if threshold <= 0 {
		threshold = 12
	}
	return &LuminanceAnalyzer{threshold: threshold}
}

func (a *LuminanceAnalyzer) Analyze(ctx context.Context, frame []byte) (domain.AnalysisResult, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return domain.AnalysisResult{Status: domain.StatusUnknown, Timestamp: utils.Now()},
			fmt.Errorf("failed to decode frame: %w", err)
	}

	luma := meanLuma(img)

	a.mu.Lock()
	defer a.mu.Unlock()

	result := domain.AnalysisResult{Status: domain.StatusCalm, Timestamp: utils.Now()}
	if a.havePrev {
		delta := luma - a.prev
		if delta < 0 {
			delta = -delta
		}
		if delta > a.threshold {
			result.Status = domain.StatusMotion
			result.Description = fmt.Sprintf("scene changed (luma delta %.1f)", delta)
		}
	}
	a.prev = luma
	a.havePrev = true
	return result, nil
}

func meanLuma(img image.Image) float64 {
	bounds := img.Bounds()
	if bounds.Empty() {
		return 0
	}
	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma, 16-bit channels scaled to 0..255.
			sum += (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
		}
	}
	return sum / float64(bounds.Dx()*bounds.Dy())
}
