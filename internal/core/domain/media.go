package domain

type Facing string

const (
	FacingFront Facing = "front"
	FacingBack  Facing = "back"
)

// Other returns the opposite facing, used by the acquisition fallback.
func (f Facing) Other() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

func (f Facing) Valid() bool {
	return f == FacingFront || f == FacingBack
}

type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

func (q Quality) Valid() bool {
	return q == QualityHigh || q == QualityMedium || q == QualityLow
}

// Lower returns the next lower tier, or "" when already at the bottom.
func (q Quality) Lower() Quality {
	switch q {
	case QualityHigh:
		return QualityMedium
	case QualityMedium:
		return QualityLow
	default:
		return ""
	}
}

// CaptureConstraints are the resolution/frame-rate constraints requested
// from the capture device. Higher tiers request larger minimum
// dimensions so the device does not silently fall back to a
// low-resolution lens.
type CaptureConstraints struct {
	Facing    Facing
	Width     int
	Height    int
	FrameRate int
}

// ConstraintsFor maps a quality tier onto concrete capture constraints.
func ConstraintsFor(facing Facing, quality Quality) CaptureConstraints {
	c := CaptureConstraints{Facing: facing}
	switch quality {
	case QualityHigh:
		c.Width, c.Height, c.FrameRate = 1280, 720, 24
	case QualityLow:
		c.Width, c.Height, c.FrameRate = 320, 240, 10
	default:
		c.Width, c.Height, c.FrameRate = 640, 480, 15
	}
	return c
}

// SourceParams describes the camera's live capture parameterization.
type SourceParams struct {
	Facing     Facing
	Quality    Quality
	MicEnabled bool
}
