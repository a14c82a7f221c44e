package domain

// DeviceIdentity is created once and persisted for the lifetime of the
// installation.
type DeviceIdentity struct {
	ID          DeviceID
	DisplayName string
}

// PairingToken is the shared secret between a camera and the viewers it
// has authorized. Created once per installation, never rotated
// automatically.
type PairingToken struct {
	Secret string
}

// PairingPayload is the QR/manual-code bootstrap payload. It may be
// re-scanned any number of times; it is not single-use.
type PairingPayload struct {
	ID    DeviceID `json:"id"`
	Token string   `json:"token"`
}
