package domain

import "time"

// MaxViewers is the hard cap of concurrently admitted viewers per camera.
const MaxViewers = 3

// AdmissionRequest is the metadata a viewer sends when opening its
// control channel.
type AdmissionRequest struct {
	Name     string   `json:"name"`
	DeviceID DeviceID `json:"deviceId"`
	Token    string   `json:"token"`
}

// ViewerSlot is one admitted viewer connection, owned exclusively by the
// registry. It is freed the moment the control channel closes.
type ViewerSlot struct {
	ConnectionID ConnectionID
	DeviceID     DeviceID
	DisplayName  string
	SessionToken string
	AdmittedAt   time.Time
}
