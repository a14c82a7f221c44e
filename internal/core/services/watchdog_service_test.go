package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type watchdogFixture struct {
	probe   *fakeProbe
	svc     *WatchdogService
	mu      sync.Mutex
	flags   []bool
	refresh int
}

func newWatchdogFixture() *watchdogFixture {
	f := &watchdogFixture{probe: &fakeProbe{}}
	f.svc = NewWatchdogService(
		f.probe,
		3*time.Second,
		func(unstable bool) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.flags = append(f.flags, unstable)
		},
		func() error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.refresh++
			return nil
		},
		nil,
		zap.NewNop().Sugar(),
	)
	return f
}

func (f *watchdogFixture) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

func TestSample_AdvancingPlaybackStaysQuiet(t *testing.T) {
	f := newWatchdogFixture()

	for i := 0; i < 10; i++ {
		f.probe.advance(3 * time.Second)
		f.svc.Sample()
	}

	assert.False(t, f.svc.Unstable())
	assert.Equal(t, 0, f.refreshCount())
	assert.Empty(t, f.flags)
}

func TestSample_NoMediaYetIsNotAStall(t *testing.T) {
	f := newWatchdogFixture()

	for i := 0; i < 5; i++ {
		f.svc.Sample()
	}
	assert.False(t, f.svc.Unstable())
	assert.Equal(t, 0, f.refreshCount())
}

func TestSample_TwoStallsMarkUnstable(t *testing.T) {
	f := newWatchdogFixture()
	f.probe.advance(time.Second) // first media

	f.svc.Sample() // baseline
	f.svc.Sample() // stall 1
	assert.False(t, f.svc.Unstable())
	f.svc.Sample() // stall 2
	assert.True(t, f.svc.Unstable())
	assert.Equal(t, 0, f.refreshCount())
}

func TestSample_ThirdStallSendsExactlyOneRefresh(t *testing.T) {
	f := newWatchdogFixture()
	f.probe.advance(time.Second)
	f.svc.Sample() // baseline

	for i := 0; i < 6; i++ {
		f.svc.Sample()
	}
	assert.Equal(t, 1, f.refreshCount())
}

func TestSample_RecoveryResetsEpisode(t *testing.T) {
	f := newWatchdogFixture()
	f.probe.advance(time.Second)
	f.svc.Sample() // baseline

	for i := 0; i < 3; i++ {
		f.svc.Sample()
	}
	assert.Equal(t, 1, f.refreshCount())
	assert.True(t, f.svc.Unstable())

	// Playback resumes: unstable clears, and a later episode may send
	// a new refresh.
	f.probe.advance(time.Second)
	f.svc.Sample()
	assert.False(t, f.svc.Unstable())
	assert.Equal(t, []bool{true, false}, f.flags)

	for i := 0; i < 3; i++ {
		f.svc.Sample()
	}
	assert.Equal(t, 2, f.refreshCount())
}

func TestReset_ClearsBaseline(t *testing.T) {
	f := newWatchdogFixture()
	f.probe.advance(time.Second)
	f.svc.Sample()
	f.svc.Sample()
	f.svc.Sample()
	assert.True(t, f.svc.Unstable())

	f.svc.Reset()
	assert.False(t, f.svc.Unstable())

	// After a reset the first sample is a fresh baseline, not a stall.
	f.svc.Sample()
	f.svc.Sample()
	assert.False(t, f.svc.Unstable())
}

func TestSample_RefreshSendFailureDoesNotPanic(t *testing.T) {
	probe := &fakeProbe{}
	svc := NewWatchdogService(probe, 3*time.Second, nil,
		func() error { return errors.New("channel gone") },
		nil, zap.NewNop().Sugar())

	probe.advance(time.Second)
	svc.Sample()
	for i := 0; i < 3; i++ {
		svc.Sample()
	}
}
