package domain

import "time"

// AnalysisStatus is the classification returned by the external frame
// analyzer.
type AnalysisStatus string

const (
	StatusCalm     AnalysisStatus = "calm"
	StatusMotion   AnalysisStatus = "motion"
	StatusDistress AnalysisStatus = "distress"
	StatusUnknown  AnalysisStatus = "unknown"
)

// Alerting reports whether this status should reach the viewers.
func (s AnalysisStatus) Alerting() bool {
	return s == StatusDistress || s == StatusMotion
}

// AnalysisResult is the black-box analyzer's verdict for one frame.
type AnalysisResult struct {
	Status      AnalysisStatus
	Description string
	Timestamp   time.Time
}

type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

func (s Sensitivity) Valid() bool {
	return s == SensitivityLow || s == SensitivityMedium || s == SensitivityHigh
}

// Cadence returns the analysis interval and the notification cooldown
// for a sensitivity tier. Shorter interval = higher sensitivity.
func (s Sensitivity) Cadence() (interval, cooldown time.Duration) {
	switch s {
	case SensitivityHigh:
		return 2 * time.Second, 15 * time.Second
	case SensitivityLow:
		return 10 * time.Second, 60 * time.Second
	default:
		return 5 * time.Second, 30 * time.Second
	}
}
