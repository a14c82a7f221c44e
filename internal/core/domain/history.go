package domain

import "time"

const (
	// HistoryMaxEntries caps the number of remembered peers on the camera.
	HistoryMaxEntries = 20
	// HistoryMaxLogs caps the per-peer connection log.
	HistoryMaxLogs = 50
	// HistoryMergeWindow collapses reconnects within this window into a
	// single log timestamp.
	HistoryMergeWindow = 5 * time.Second
	// ViewerHistoryMaxEntries caps the cameras a viewer remembers.
	ViewerHistoryMaxEntries = 5
)

// HistoryEntry records one known peer. Entries with the same PeerID are
// merged (latest name wins, timestamps prepended) rather than
// duplicated. Deletion is user-initiated only.
type HistoryEntry struct {
	PeerID          DeviceID    `json:"peerId"`
	DisplayName     string      `json:"displayName"`
	LastConnectedAt time.Time   `json:"lastConnectedAt"`
	ConnectionLog   []time.Time `json:"connectionLog,omitempty"`

	// Token is kept on the viewer side only, so a remembered camera can
	// be re-dialed without re-scanning its code.
	Token string `json:"token,omitempty"`
}
