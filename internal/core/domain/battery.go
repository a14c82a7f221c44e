package domain

// LowBatteryThreshold is the level at or below which viewers raise the
// low-battery warning while the camera is not charging.
const LowBatteryThreshold = 0.20

// BatteryState is the camera's battery telemetry.
type BatteryState struct {
	Level    float64
	Charging bool
}

// Low reports whether this state should trigger the viewer warning.
func (b BatteryState) Low() bool {
	return b.Level <= LowBatteryThreshold && !b.Charging
}
