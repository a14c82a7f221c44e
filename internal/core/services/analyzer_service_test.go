package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type broadcastRecorder struct {
	mu   sync.Mutex
	cmds []protocol.Command
}

func (b *broadcastRecorder) record(cmd protocol.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cmds = append(b.cmds, cmd)
}

func (b *broadcastRecorder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cmds)
}

func newAnalyzerFixture(t *testing.T, analyzer *fakeAnalyzer, viewers func() int) (*AnalyzerService, *broadcastRecorder) {
	t.Helper()
	backend := newFakeBackend()
	media := NewMediaService(backend, nil, zap.NewNop().Sugar())
	require.NoError(t, media.Start(context.Background(), defaultParams()))

	sink := &broadcastRecorder{}
	svc := NewAnalyzerService(media, analyzer, viewers, sink.record, nil, zap.NewNop().Sugar())
	return svc, sink
}

func TestTick_SkipsWithoutViewers(t *testing.T) {
	analyzer := &fakeAnalyzer{result: domain.AnalysisResult{Status: domain.StatusDistress}}
	svc, sink := newAnalyzerFixture(t, analyzer, func() int { return 0 })

	svc.Tick(context.Background(), time.Now())
	assert.Equal(t, 0, analyzer.callCount())
	assert.Equal(t, 0, sink.count())
}

func TestTick_BroadcastsAlert(t *testing.T) {
	analyzer := &fakeAnalyzer{result: domain.AnalysisResult{
		Status:      domain.StatusDistress,
		Description: "crying detected",
	}}
	svc, sink := newAnalyzerFixture(t, analyzer, func() int { return 1 })

	svc.Tick(context.Background(), time.Now())
	require.Equal(t, 1, sink.count())

	note := sink.cmds[0].(protocol.Notification)
	assert.Equal(t, "Baby needs attention", note.Title)
	assert.Equal(t, "crying detected", note.Body)
}

func TestTick_CalmFramesNeverAlert(t *testing.T) {
	analyzer := &fakeAnalyzer{result: domain.AnalysisResult{Status: domain.StatusCalm}}
	svc, sink := newAnalyzerFixture(t, analyzer, func() int { return 2 })

	now := time.Now()
	for i := 0; i < 10; i++ {
		svc.Tick(context.Background(), now.Add(time.Duration(i)*5*time.Second))
	}
	assert.Equal(t, 10, analyzer.callCount())
	assert.Equal(t, 0, sink.count())
}

func TestTick_CooldownBoundsAlertRate(t *testing.T) {
	analyzer := &fakeAnalyzer{result: domain.AnalysisResult{Status: domain.StatusMotion}}
	svc, sink := newAnalyzerFixture(t, analyzer, func() int { return 1 })

	// Medium sensitivity: 5s interval, 30s cooldown. Over 60s of
	// continuous motion that is ticks at 0,5,...,60 but alerts only at
	// 0, 30 and 60.
	interval, cooldown := domain.SensitivityMedium.Cadence()
	start := time.Now()
	total := 60 * time.Second
	for elapsed := time.Duration(0); elapsed <= total; elapsed += interval {
		svc.Tick(context.Background(), start.Add(elapsed))
	}

	want := int(total/cooldown) + 1
	assert.Equal(t, want, sink.count())
}

func TestSetSensitivity_ChangesCadence(t *testing.T) {
	analyzer := &fakeAnalyzer{result: domain.AnalysisResult{Status: domain.StatusMotion}}
	svc, sink := newAnalyzerFixture(t, analyzer, func() int { return 1 })

	svc.SetSensitivity(domain.SensitivityHigh)
	assert.Equal(t, domain.SensitivityHigh, svc.Sensitivity())

	// High sensitivity cooldown is 15s, so alerts at 0 and 15.
	start := time.Now()
	svc.Tick(context.Background(), start)
	svc.Tick(context.Background(), start.Add(10*time.Second))
	svc.Tick(context.Background(), start.Add(15*time.Second))
	assert.Equal(t, 2, sink.count())

	// Invalid levels are ignored.
	svc.SetSensitivity("max")
	assert.Equal(t, domain.SensitivityHigh, svc.Sensitivity())
}

func TestTick_NotificationsToggle(t *testing.T) {
	analyzer := &fakeAnalyzer{result: domain.AnalysisResult{Status: domain.StatusDistress}}
	svc, sink := newAnalyzerFixture(t, analyzer, func() int { return 1 })

	svc.SetNotificationsEnabled(false)
	svc.Tick(context.Background(), time.Now())
	// Analysis still ran, but no alert went out.
	assert.Equal(t, 1, analyzer.callCount())
	assert.Equal(t, 0, sink.count())

	svc.SetNotificationsEnabled(true)
	svc.Tick(context.Background(), time.Now())
	assert.Equal(t, 1, sink.count())
}

func TestTick_AlertObserverSeesDeliveredAlerts(t *testing.T) {
	analyzer := &fakeAnalyzer{result: domain.AnalysisResult{
		Status:      domain.StatusMotion,
		Description: "rolled over",
	}}
	svc, sink := newAnalyzerFixture(t, analyzer, func() int { return 1 })

	var seen []string
	svc.OnAlert(func(status domain.AnalysisStatus, description string) {
		seen = append(seen, string(status)+": "+description)
	})

	now := time.Now()
	svc.Tick(context.Background(), now)
	require.Equal(t, 1, sink.count())
	require.Equal(t, []string{"motion: rolled over"}, seen)

	// Alerts swallowed by the cooldown never reach the observer.
	svc.Tick(context.Background(), now.Add(time.Second))
	assert.Len(t, seen, 1)
}

func TestTick_AnalyzerFailureDoesNotAlert(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("model not loaded")}
	svc, sink := newAnalyzerFixture(t, analyzer, func() int { return 1 })

	svc.Tick(context.Background(), time.Now())
	assert.Equal(t, 0, sink.count())
}

func TestTick_BreakerShieldsFailingAnalyzer(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("model not loaded")}
	svc, _ := newAnalyzerFixture(t, analyzer, func() int { return 1 })

	// The breaker opens after its failure threshold; later ticks stop
	// reaching the analyzer at all.
	for i := 0; i < 10; i++ {
		svc.Tick(context.Background(), time.Now())
	}
	assert.Less(t, analyzer.callCount(), 10)
}
