package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/ports"
	"nido/internal/core/protocol"
	"nido/internal/core/services"
	"nido/pkg/retry"

	"go.uber.org/zap"
)

// ViewerState is the viewer session lifecycle.
type ViewerState string

const (
	ViewerIdle        ViewerState = "IDLE"
	ViewerConnecting  ViewerState = "CONNECTING"
	ViewerAuthPending ViewerState = "AUTH_PENDING"
	ViewerConnected   ViewerState = "CONNECTED"
	ViewerClosed      ViewerState = "CLOSED"
)

// ViewerConfig tunes the viewer orchestrator.
type ViewerConfig struct {
	// DisplayName is announced to the camera on admission.
	DisplayName string
	// DeviceID is this viewer's own stable identifier.
	DeviceID domain.DeviceID
	// ConnectTimeout bounds one connection attempt end to end.
	ConnectTimeout time.Duration
	// WatchdogInterval is the playback stall sampling cadence.
	WatchdogInterval time.Duration
	// Reconnect bounds automatic reconnection after a recoverable loss.
	Reconnect retry.Config
}

// Viewer drives the viewer-side session toward one camera: it opens the
// control channel, waits out admission, auto-answers the camera's media
// call and relays control input. On a recoverable loss it re-dials the
// remembered camera with the remembered token.
type Viewer struct {
	cfg      ViewerConfig
	network  ports.PeerNetwork
	notifier ports.Notifier
	history  *services.HistoryService
	recorder services.Recorder
	log      *zap.SugaredLogger

	events chan func()
	done   chan struct{}
	once   sync.Once

	mu             sync.RWMutex
	state          ViewerState
	target         domain.DeviceID
	token          string
	cameraName     string
	cameraFacing   domain.Facing
	lowBattery     bool
	channel        ports.ControlChannel
	receiver       ports.MediaReceiver
	watchdog       *services.WatchdogService
	watchdogCancel context.CancelFunc
	onStateChange  func(ViewerState)
	onLowBattery   func(bool)
	onUnstable     func(bool)
}

func NewViewer(
	cfg ViewerConfig,
	network ports.PeerNetwork,
	notifier ports.Notifier,
	history *services.HistoryService,
	recorder services.Recorder,
	log *zap.SugaredLogger,
) *Viewer {
	if recorder == nil {
		recorder = services.NopRecorder{}
	}
	return &Viewer{
		cfg:      cfg,
		network:  network,
		notifier: notifier,
		history:  history,
		recorder: recorder,
		log:      log,
		events:   make(chan func(), 64),
		done:     make(chan struct{}),
		state:    ViewerIdle,
	}
}

// OnStateChange registers a state observer. Called before Connect.
func (v *Viewer) OnStateChange(fn func(ViewerState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onStateChange = fn
}

// OnLowBattery registers the low-battery indicator observer.
func (v *Viewer) OnLowBattery(fn func(bool)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onLowBattery = fn
}

// OnUnstable registers the stream stability indicator observer.
func (v *Viewer) OnUnstable(fn func(bool)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onUnstable = fn
}

// State returns the current lifecycle state.
func (v *Viewer) State() ViewerState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// CameraName returns the camera's announced display name.
func (v *Viewer) CameraName() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cameraName
}

// CameraFacing returns the camera's announced lens facing, used for
// mirroring the preview.
func (v *Viewer) CameraFacing() domain.Facing {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cameraFacing
}

// LowBattery reports whether the camera battery warning is active.
func (v *Viewer) LowBattery() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lowBattery
}

// Unstable reports whether the inbound stream is flagged unstable.
func (v *Viewer) Unstable() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.watchdog == nil {
		return false
	}
	return v.watchdog.Unstable()
}

// Connect dials a camera from a pairing payload and blocks until the
// session is CONNECTED, the camera rejects it, or the attempt times
// out. The event loop keeps running after a successful return.
func (v *Viewer) Connect(ctx context.Context, payload domain.PairingPayload) error {
	if _, err := v.network.Open(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignalingDown, err)
	}

	v.mu.Lock()
	v.target = payload.ID
	v.token = payload.Token
	v.mu.Unlock()

	v.network.OnIncomingCall(func(call ports.IncomingCall) {
		v.post(func() { v.answer(ctx, call) })
	})

	go v.loop(ctx)

	if err := v.dial(ctx); err != nil {
		v.shutdown()
		return err
	}
	return nil
}

// dial performs one connection attempt with the stored target and token.
func (v *Viewer) dial(ctx context.Context) error {
	v.setState(ViewerConnecting)

	v.mu.RLock()
	target, token := v.target, v.token
	v.mu.RUnlock()

	dialCtx, cancel := context.WithTimeout(ctx, v.cfg.ConnectTimeout)
	defer cancel()

	channel, err := v.network.OpenControl(dialCtx, target, domain.AdmissionRequest{
		Name:     v.cfg.DisplayName,
		DeviceID: v.cfg.DeviceID,
		Token:    token,
	})
	if err != nil {
		if dialCtx.Err() != nil {
			return domain.ErrConnectTimeout
		}
		return err
	}

	v.setState(ViewerAuthPending)

	// Admission is implied by the camera's greeting; rejection arrives
	// as an explicit protocol error.
	verdict := make(chan error, 1)
	decided := false

	channel.OnCommand(func(cmd protocol.Command) {
		v.post(func() {
			if !decided {
				switch cmd.(type) {
				case protocol.ErrorAuth:
					decided = true
					verdict <- domain.ErrAuthRejected
					return
				case protocol.ErrorBusy:
					decided = true
					verdict <- domain.ErrCapacityReached
					return
				default:
					decided = true
					verdict <- nil
				}
			}
			v.handle(ctx, cmd)
		})
	})
	channel.OnClose(func(err error) {
		v.post(func() {
			if !decided {
				decided = true
				verdict <- fmt.Errorf("control channel closed during admission: %w", domain.ErrSignalingDown)
				return
			}
			v.handleLoss(ctx, err)
		})
	})

	v.mu.Lock()
	v.channel = channel
	v.mu.Unlock()

	select {
	case err := <-verdict:
		if err != nil {
			_ = channel.Close()
			return err
		}
	case <-dialCtx.Done():
		_ = channel.Close()
		return domain.ErrConnectTimeout
	}

	v.setState(ViewerConnected)
	return nil
}

// handle processes one inbound camera command while connected.
func (v *Viewer) handle(ctx context.Context, cmd protocol.Command) {
	switch msg := cmd.(type) {
	case protocol.InfoDeviceName:
		v.mu.Lock()
		v.cameraName = msg.Name
		target, token := v.target, v.token
		v.mu.Unlock()
		if err := v.history.Record(ctx, target, msg.Name, token); err != nil {
			v.log.Warnw("camera history record failed", "error", err)
		}
	case protocol.InfoCameraType:
		v.mu.Lock()
		v.cameraFacing = msg.Value
		v.mu.Unlock()
	case protocol.BatteryStatus:
		state := domain.BatteryState{Level: msg.Level, Charging: msg.Charging}
		v.updateLowBattery(state.Low())
	case protocol.Notification:
		if v.notifier != nil {
			if err := v.notifier.Notify(msg.Title, msg.Body); err != nil {
				v.log.Warnw("notification delivery failed", "error", err)
			}
		}
	case protocol.ErrorAuth, protocol.ErrorBusy:
		// Already handled during admission; late arrivals end the session.
		v.shutdown()
	default:
		v.log.Debugw("unknown command ignored", "tag", cmd.CommandTag())
	}
}

// answer auto-accepts the camera's media call and arms the stability
// watchdog on the inbound stream.
func (v *Viewer) answer(ctx context.Context, call ports.IncomingCall) {
	v.mu.RLock()
	expected := v.target
	v.mu.RUnlock()
	if call.From != expected {
		v.log.Warnw("rejecting media call from unexpected peer", "from", call.From)
		call.Reject()
		return
	}

	receiver, err := call.Accept(ctx)
	if err != nil {
		v.log.Errorw("media call accept failed", "error", err)
		return
	}

	v.mu.Lock()
	if v.receiver != nil {
		_ = v.receiver.Close()
	}
	if v.watchdogCancel != nil {
		v.watchdogCancel()
	}
	v.receiver = receiver

	wdCtx, cancel := context.WithCancel(ctx)
	v.watchdogCancel = cancel
	v.watchdog = services.NewWatchdogService(
		receiver,
		v.cfg.WatchdogInterval,
		func(unstable bool) {
			v.post(func() { v.updateUnstable(unstable) })
		},
		func() error { return v.Send(protocol.WatchdogRefresh{}) },
		v.recorder,
		v.log,
	)
	watchdog := v.watchdog
	v.mu.Unlock()

	go watchdog.Run(wdCtx)
	v.log.Infow("media call answered", "from", call.From)
}

// handleLoss reacts to the control channel closing while connected.
// A transport error is recoverable: the viewer re-dials with the same
// token. A clean close ends the session.
func (v *Viewer) handleLoss(ctx context.Context, err error) {
	if v.State() == ViewerClosed {
		return
	}
	if err == nil {
		v.shutdown()
		return
	}

	v.log.Warnw("control channel lost, reconnecting", "error", err)
	v.recorder.SignalReconnect()
	v.teardownMedia()
	v.setState(ViewerConnecting)

	go func() {
		rerr := retry.Do(ctx, v.cfg.Reconnect, func() error {
			return v.dial(ctx)
		})
		if rerr != nil {
			v.log.Errorw("reconnect failed", "error", rerr)
			v.post(func() { v.shutdown() })
		}
	}()
}

// Send delivers a control command to the camera.
func (v *Viewer) Send(cmd protocol.Command) error {
	v.mu.RLock()
	channel := v.channel
	state := v.state
	v.mu.RUnlock()
	if channel == nil || state != ViewerConnected {
		return domain.ErrSignalingDown
	}
	return channel.Send(cmd)
}

// Convenience control surface.

func (v *Viewer) SetFlash(on bool) error { return v.Send(protocol.Flash{Value: on}) }

func (v *Viewer) SetLullaby(mode int) error { return v.Send(protocol.Lullaby{Mode: mode}) }

func (v *Viewer) SetQuality(q domain.Quality) error {
	return v.Send(protocol.SetQuality{Value: q})
}

func (v *Viewer) SetFacing(f domain.Facing) error {
	return v.Send(protocol.SetCamera{Value: f})
}

func (v *Viewer) SetSensitivity(s domain.Sensitivity) error {
	return v.Send(protocol.SetSensitivity{Value: s})
}

func (v *Viewer) SetMic(on bool) error { return v.Send(protocol.SetMic{Value: on}) }

// Talkback originates an audio-only call carrying the viewer's mic
// toward the camera. The returned sender stays warm; push-to-talk
// toggles the track rather than redialing.
func (v *Viewer) Talkback(ctx context.Context, mic ports.MediaTrack) (ports.MediaSender, error) {
	v.mu.RLock()
	target := v.target
	state := v.state
	v.mu.RUnlock()
	if state != ViewerConnected {
		return nil, domain.ErrSignalingDown
	}
	return v.network.Call(ctx, target, nil, mic)
}

// Close ends the session.
func (v *Viewer) Close() {
	v.post(func() { v.shutdown() })
}

func (v *Viewer) shutdown() {
	v.once.Do(func() { close(v.done) })
	v.setState(ViewerClosed)
	v.teardownMedia()

	v.mu.Lock()
	channel := v.channel
	v.channel = nil
	v.mu.Unlock()
	if channel != nil {
		_ = channel.Close()
	}
	_ = v.network.Close()
}

func (v *Viewer) teardownMedia() {
	v.mu.Lock()
	receiver := v.receiver
	v.receiver = nil
	if v.watchdogCancel != nil {
		v.watchdogCancel()
		v.watchdogCancel = nil
	}
	v.watchdog = nil
	v.mu.Unlock()

	if receiver != nil {
		_ = receiver.Close()
	}
	v.updateUnstable(false)
}

func (v *Viewer) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			v.shutdown()
			return
		case <-v.done:
			// Drain stragglers so posters never block.
			for {
				select {
				case fn := <-v.events:
					fn()
				default:
					return
				}
			}
		case fn := <-v.events:
			fn()
		}
	}
}

func (v *Viewer) post(fn func()) {
	select {
	case v.events <- fn:
	case <-v.done:
		fn()
	}
}

func (v *Viewer) updateLowBattery(low bool) {
	v.mu.Lock()
	changed := v.lowBattery != low
	v.lowBattery = low
	observer := v.onLowBattery
	v.mu.Unlock()

	if changed {
		v.log.Infow("camera battery warning", "low", low)
		if observer != nil {
			observer(low)
		}
	}
}

func (v *Viewer) updateUnstable(unstable bool) {
	v.mu.RLock()
	observer := v.onUnstable
	v.mu.RUnlock()
	if observer != nil {
		observer(unstable)
	}
}

func (v *Viewer) setState(next ViewerState) {
	v.mu.Lock()
	if v.state == next || v.state == ViewerClosed {
		v.mu.Unlock()
		return
	}
	prev := v.state
	v.state = next
	observer := v.onStateChange
	v.mu.Unlock()

	v.log.Infow("viewer state changed", "from", prev, "to", next)
	if observer != nil {
		observer(next)
	}
}
