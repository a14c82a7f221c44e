package services

import (
	"context"
	"sync"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/ports"
	"nido/internal/core/protocol"
	"nido/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// AnalyzerService periodically grabs a still frame, runs it through the
// external frame analyzer and broadcasts a notification when the baby
// needs attention. It only spends battery while someone is watching:
// with zero admitted viewers no frames are captured at all.
//
// Notifications are debounced per sensitivity tier: after one alert the
// service stays quiet for the tier's cooldown even if every following
// frame still alerts.
type AnalyzerService struct {
	media     *MediaService
	analyzer  ports.FrameAnalyzer
	breaker   *circuitbreaker.CircuitBreaker
	recorder  Recorder
	log       *zap.SugaredLogger
	viewers   func() int
	broadcast func(protocol.Command)

	mu          sync.Mutex
	sensitivity domain.Sensitivity
	notify      bool
	lastAlertAt time.Time
	changed     chan struct{}
	onAlert     func(status domain.AnalysisStatus, description string)
}

func NewAnalyzerService(
	media *MediaService,
	analyzer ports.FrameAnalyzer,
	viewers func() int,
	broadcast func(protocol.Command),
	recorder Recorder,
	log *zap.SugaredLogger,
) *AnalyzerService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &AnalyzerService{
		media:       media,
		analyzer:    analyzer,
		breaker:     circuitbreaker.New(circuitbreaker.DefaultConfig()),
		recorder:    recorder,
		log:         log,
		viewers:     viewers,
		broadcast:   broadcast,
		sensitivity: domain.SensitivityMedium,
		notify:      true,
		changed:     make(chan struct{}, 1),
	}
}

// OnAlert registers an observer fired for every delivered alert, after
// the viewer broadcast. Called once during wiring.
func (s *AnalyzerService) OnAlert(fn func(status domain.AnalysisStatus, description string)) {
	s.mu.Lock()
	s.onAlert = fn
	s.mu.Unlock()
}

// SetNotificationsEnabled toggles alert delivery. Analysis keeps
// running either way so re-enabling takes effect immediately.
func (s *AnalyzerService) SetNotificationsEnabled(enabled bool) {
	s.mu.Lock()
	s.notify = enabled
	s.mu.Unlock()
}

// SetSensitivity adjusts the analysis cadence. Takes effect on the next
// loop iteration; the cooldown clock is not reset.
func (s *AnalyzerService) SetSensitivity(level domain.Sensitivity) {
	if !level.Valid() {
		return
	}
	s.mu.Lock()
	s.sensitivity = level
	s.mu.Unlock()

	select {
	case s.changed <- struct{}{}:
	default:
	}

	s.log.Infow("analyzer sensitivity changed", "level", level)
}

// Sensitivity returns the active sensitivity tier.
func (s *AnalyzerService) Sensitivity() domain.Sensitivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensitivity
}

// Run drives the analysis loop until ctx is cancelled.
func (s *AnalyzerService) Run(ctx context.Context) {
	for {
		interval, _ := s.Sensitivity().Cadence()
		select {
		case <-ctx.Done():
			return
		case <-s.changed:
			// Re-arm the timer with the new cadence.
		case <-time.After(interval):
			s.Tick(ctx, time.Now())
		}
	}
}

// Tick performs one analysis cycle at the given instant.
func (s *AnalyzerService) Tick(ctx context.Context, now time.Time) {
	if s.viewers() == 0 {
		return
	}

	frame, err := s.media.Still(ctx)
	if err != nil {
		s.log.Debugw("frame capture for analysis failed", "error", err)
		return
	}

	var result domain.AnalysisResult
	err = s.breaker.Execute(ctx, func() error {
		var aerr error
		result, aerr = s.analyzer.Analyze(ctx, frame)
		return aerr
	})
	if err != nil {
		s.log.Warnw("frame analysis failed", "error", err)
		return
	}

	if !result.Status.Alerting() {
		return
	}

	s.mu.Lock()
	if !s.notify {
		s.mu.Unlock()
		return
	}
	_, cooldown := s.sensitivity.Cadence()
	if !s.lastAlertAt.IsZero() && now.Sub(s.lastAlertAt) < cooldown {
		s.mu.Unlock()
		return
	}
	s.lastAlertAt = now
	observer := s.onAlert
	s.mu.Unlock()

	s.recorder.NotificationSent()
	s.log.Infow("analysis alert", "status", result.Status, "description", result.Description)
	s.broadcast(protocol.Notification{
		Title: alertTitle(result.Status),
		Body:  result.Description,
	})
	if observer != nil {
		observer(result.Status, result.Description)
	}
}

func alertTitle(status domain.AnalysisStatus) string {
	switch status {
	case domain.StatusDistress:
		return "Baby needs attention"
	case domain.StatusMotion:
		return "Movement detected"
	default:
		return "Activity detected"
	}
}
