package domain

// DeviceID is the stable per-installation identifier used as the
// peer discovery address. Regenerating it invalidates prior pairings.
type DeviceID string

// ConnectionID identifies a single admitted viewer connection.
type ConnectionID string

// SessionID identifies one signaling session of a device.
type SessionID string

type Role string

const (
	RoleCamera Role = "camera"
	RoleViewer Role = "viewer"
)
