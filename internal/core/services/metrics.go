package services

// Recorder receives operational events from the services. The
// Prometheus collector implements it; tests use NopRecorder.
type Recorder interface {
	ViewerAdmitted()
	ViewerRejected(reason string)
	ViewerRemoved()
	BroadcastError()
	NotificationSent()
	TrackReplaced()
	WatchdogRefreshSent()
	SignalReconnect()
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) ViewerAdmitted()       {}
func (NopRecorder) ViewerRejected(string) {}
func (NopRecorder) ViewerRemoved()        {}
func (NopRecorder) BroadcastError()       {}
func (NopRecorder) NotificationSent()     {}
func (NopRecorder) TrackReplaced()        {}
func (NopRecorder) WatchdogRefreshSent()  {}
func (NopRecorder) SignalReconnect()      {}
