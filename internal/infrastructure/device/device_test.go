package device

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSimBatteryMonitor_DrainsWhileDischarging(t *testing.T) {
	monitor := NewSimBatteryMonitor(0.5, false, 0.1, 5*time.Millisecond)
	defer monitor.Close()

	require.Eventually(t, func() bool {
		state, ok := monitor.Current()
		return ok && state.Level < 0.5
	}, time.Second, 5*time.Millisecond)
}

func TestSimBatteryMonitor_ChargesTowardFull(t *testing.T) {
	monitor := NewSimBatteryMonitor(0.95, true, 0.1, 5*time.Millisecond)
	defer monitor.Close()

	require.Eventually(t, func() bool {
		state, _ := monitor.Current()
		return state.Level == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSimBatteryMonitor_SetChargingEmitsUpdate(t *testing.T) {
	monitor := NewSimBatteryMonitor(0.5, false, 0.01, time.Hour)
	defer monitor.Close()

	monitor.SetCharging(true)

	select {
	case state := <-monitor.Updates():
		assert.True(t, state.Charging)
	case <-time.After(time.Second):
		t.Fatal("no battery update received")
	}
}

func TestDiscardSink_CountsBytes(t *testing.T) {
	sink := NewDiscardSink()
	require.NoError(t, sink.Write(make([]byte, 320)))
	require.NoError(t, sink.Write(make([]byte, 320)))
	assert.Equal(t, int64(640), sink.BytesWritten())

	require.NoError(t, sink.Close())
	assert.Error(t, sink.Write(make([]byte, 320)))
}

func TestQRCodeEncoder_ProducesPNG(t *testing.T) {
	encoder := NewQRCodeEncoder(128)
	image, err := encoder.Encode([]byte(`{"id":"nido_cam01","token":"0123456789abcdef0123456789abcdef"}`))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(image, []byte("\x89PNG")))
}

func TestLogNotifier_NeverFails(t *testing.T) {
	notifier := NewLogNotifier(zap.NewNop().Sugar())
	assert.NoError(t, notifier.Notify("Baby Monitor", "Motion detected"))
}
