package protocol

import (
	"encoding/json"

	"nido/internal/core/domain"
)

// Version is the control protocol version carried in every envelope.
// The original wire format had none; peers ignore versions they do not
// understand instead of failing.
const Version = 1

type Tag string

const (
	TagInfoDeviceName  Tag = "INFO_DEVICE_NAME"
	TagInfoCameraType  Tag = "INFO_CAMERA_TYPE"
	TagBatteryStatus   Tag = "BATTERY_STATUS"
	TagNotification    Tag = "CMD_NOTIFICATION"
	TagErrorAuth       Tag = "ERROR_AUTH"
	TagErrorBusy       Tag = "ERROR_BUSY"
	TagFlash           Tag = "CMD_FLASH"
	TagLullaby         Tag = "CMD_LULLABY"
	TagQuality         Tag = "CMD_QUALITY"
	TagCamera          Tag = "CMD_CAMERA"
	TagSensitivity     Tag = "CMD_SENSITIVITY"
	TagMic             Tag = "CMD_MIC"
	TagWatchdogRefresh Tag = "CMD_WATCHDOG_REFRESH"
)

// Command is one typed control-channel message. The wire representation
// is a single JSON object per send.
type Command interface {
	CommandTag() Tag
}

// InfoDeviceName announces the camera's display name (camera -> viewer).
type InfoDeviceName struct {
	Name string `json:"name"`
}

func (InfoDeviceName) CommandTag() Tag { return TagInfoDeviceName }

// InfoCameraType announces the active facing so viewers can adjust
// mirroring (camera -> viewer).
type InfoCameraType struct {
	Value domain.Facing `json:"value"`
}

func (InfoCameraType) CommandTag() Tag { return TagInfoCameraType }

// BatteryStatus carries camera battery telemetry (camera -> viewer).
type BatteryStatus struct {
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
}

func (BatteryStatus) CommandTag() Tag { return TagBatteryStatus }

// Notification raises a user-visible alert (camera -> viewer).
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (Notification) CommandTag() Tag { return TagNotification }

// ErrorAuth aborts pairing with an actionable reason (camera -> viewer).
type ErrorAuth struct {
	Message string `json:"message"`
}

func (ErrorAuth) CommandTag() Tag { return TagErrorAuth }

// ErrorBusy rejects an admission attempt because all viewer slots are
// taken (camera -> viewer).
type ErrorBusy struct {
	Message string `json:"message"`
}

func (ErrorBusy) CommandTag() Tag { return TagErrorBusy }

// Flash toggles the torch (viewer -> camera).
type Flash struct {
	Value bool `json:"value"`
}

func (Flash) CommandTag() Tag { return TagFlash }

// Lullaby starts or stops ambient sound; mode 0 is off (viewer -> camera).
type Lullaby struct {
	Mode int `json:"value"`
}

func (Lullaby) CommandTag() Tag { return TagLullaby }

// SetQuality requests a capture resolution change (viewer -> camera).
type SetQuality struct {
	Value domain.Quality `json:"value"`
}

func (SetQuality) CommandTag() Tag { return TagQuality }

// SetCamera requests a capture facing change (viewer -> camera).
type SetCamera struct {
	Value domain.Facing `json:"value"`
}

func (SetCamera) CommandTag() Tag { return TagCamera }

// SetSensitivity adjusts the analyzer cadence (viewer -> camera).
type SetSensitivity struct {
	Value domain.Sensitivity `json:"value"`
}

func (SetSensitivity) CommandTag() Tag { return TagSensitivity }

// SetMic mutes or unmutes the camera's outgoing audio (viewer -> camera).
type SetMic struct {
	Value bool `json:"value"`
}

func (SetMic) CommandTag() Tag { return TagMic }

// WatchdogRefresh forces the camera to re-acquire its media source
// (viewer -> camera).
type WatchdogRefresh struct{}

func (WatchdogRefresh) CommandTag() Tag { return TagWatchdogRefresh }

// Unknown preserves a message whose tag this peer does not understand.
// Dispatch ignores it; it is never an error.
type Unknown struct {
	Type Tag
	Raw  json.RawMessage
}

func (u Unknown) CommandTag() Tag { return u.Type }
