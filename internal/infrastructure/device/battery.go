package device

import (
	"sync"
	"time"

	"nido/internal/core/domain"
)

// SimBatteryMonitor models a battery that drains at a fixed rate and
// recharges while plugged in. It exists for deployments without a real
// power supply interface and for exercising the low-battery paths.
type SimBatteryMonitor struct {
	mu       sync.Mutex
	state    domain.BatteryState
	step     float64
	updates  chan domain.BatteryState
	stopOnce sync.Once
	stop     chan struct{}
}

// NewSimBatteryMonitor starts a monitor at the given level. Every
// interval the level moves by step: down when discharging, up when
// charging, clamped to [0, 1].
func NewSimBatteryMonitor(level float64, charging bool, step float64, interval time.Duration) *SimBatteryMonitor {
	m := &SimBatteryMonitor{
		state:   domain.BatteryState{Level: level, Charging: charging},
		step:    step,
		updates: make(chan domain.BatteryState, 8),
		stop:    make(chan struct{}),
	}
	go m.run(interval)
	return m
}

func (m *SimBatteryMonitor) Current() (domain.BatteryState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, true
}

func (m *SimBatteryMonitor) Updates() <-chan domain.BatteryState {
	return m.updates
}

// SetCharging flips the charger state and emits an update immediately.
func (m *SimBatteryMonitor) SetCharging(charging bool) {
	m.mu.Lock()
	m.state.Charging = charging
	state := m.state
	m.mu.Unlock()
	m.emit(state)
}

func (m *SimBatteryMonitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *SimBatteryMonitor) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(m.updates)

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.state.Charging {
				m.state.Level += m.step
				if m.state.Level > 1 {
					m.state.Level = 1
				}
			} else {
				m.state.Level -= m.step
				if m.state.Level < 0 {
					m.state.Level = 0
				}
			}
			state := m.state
			m.mu.Unlock()
			m.emit(state)
		}
	}
}

func (m *SimBatteryMonitor) emit(state domain.BatteryState) {
	select {
	case m.updates <- state:
	default:
		// Slow consumers miss intermediate levels, never block the sim.
	}
}
