package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/ports"
	"nido/internal/core/protocol"
	"nido/internal/core/services"

	"go.uber.org/zap"
)

// CameraState is the camera session lifecycle.
type CameraState string

const (
	CameraIdle             CameraState = "IDLE"
	CameraSignalingOpening CameraState = "SIGNALING_OPENING"
	CameraSignalingOpen    CameraState = "SIGNALING_OPEN"
	CameraLive             CameraState = "LIVE"
	CameraClosed           CameraState = "CLOSED"
)

const storeKeyMediaParams = "media_params"

// CameraConfig tunes the camera orchestrator.
type CameraConfig struct {
	ConnectTimeout time.Duration
	DefaultParams  domain.SourceParams
}

// Camera drives the camera-side session: it opens the device on the
// signaling network, admits viewers, originates their media calls and
// dispatches their control commands. All state transitions happen on a
// single event loop goroutine; I/O side effects run on their own
// goroutines and post results back into the loop.
type Camera struct {
	cfg      CameraConfig
	network  ports.PeerNetwork
	identity *services.IdentityService
	registry *services.RegistryService
	media    *services.MediaService
	analyzer *services.AnalyzerService
	lullaby  *services.LullabyService
	history  *services.HistoryService
	battery  ports.BatteryMonitor
	store    ports.DeviceStore
	log      *zap.SugaredLogger

	events chan func()
	done   chan struct{}

	mu               sync.RWMutex
	state            CameraState
	self             domain.DeviceIdentity
	token            domain.PairingToken
	onStateChange    func(CameraState)
	onViewerAdmitted func(viewer domain.DeviceID, name string)
	onViewerLeft     func(remaining int)
}

func NewCamera(
	cfg CameraConfig,
	network ports.PeerNetwork,
	identity *services.IdentityService,
	registry *services.RegistryService,
	media *services.MediaService,
	analyzer *services.AnalyzerService,
	lullaby *services.LullabyService,
	history *services.HistoryService,
	battery ports.BatteryMonitor,
	store ports.DeviceStore,
	log *zap.SugaredLogger,
) *Camera {
	return &Camera{
		cfg:      cfg,
		network:  network,
		identity: identity,
		registry: registry,
		media:    media,
		analyzer: analyzer,
		lullaby:  lullaby,
		history:  history,
		battery:  battery,
		store:    store,
		log:      log,
		events:   make(chan func(), 64),
		done:     make(chan struct{}),
		state:    CameraIdle,
	}
}

// OnStateChange registers a state observer. Called before Start.
func (c *Camera) OnStateChange(fn func(CameraState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnViewerAdmitted registers an observer fired for each successful
// admission. Called before Start.
func (c *Camera) OnViewerAdmitted(fn func(viewer domain.DeviceID, name string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onViewerAdmitted = fn
}

// OnViewerLeft registers an observer fired when a viewer slot is freed,
// with the number of viewers still connected. Called before Start.
func (c *Camera) OnViewerLeft(fn func(remaining int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onViewerLeft = fn
}

// State returns the current lifecycle state.
func (c *Camera) State() CameraState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Identity returns the device identity, valid after Start.
func (c *Camera) Identity() domain.DeviceIdentity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// PairingPayload returns the QR payload for this camera, valid after
// Start.
func (c *Camera) PairingPayload() ([]byte, error) {
	c.mu.RLock()
	self, token := c.self, c.token
	c.mu.RUnlock()
	return c.identity.PairingPayload(self, token)
}

// Rename updates the persisted display name and announces it to every
// admitted viewer.
func (c *Camera) Rename(ctx context.Context, name string) error {
	c.mu.RLock()
	self := c.self
	c.mu.RUnlock()

	updated, err := c.identity.SetDisplayName(ctx, self, name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.self = updated
	c.mu.Unlock()

	c.registry.Broadcast(protocol.InfoDeviceName{Name: updated.DisplayName})
	return nil
}

// Start brings the camera online: identity, capture, signaling, then
// the event loop. It returns once the device is reachable; the loop
// keeps running until ctx is cancelled or Close is called.
func (c *Camera) Start(ctx context.Context, defaultName string) error {
	self, err := c.identity.EnsureIdentity(ctx, defaultName)
	if err != nil {
		return err
	}
	token, err := c.identity.EnsureToken(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.self = self
	c.token = token
	c.mu.Unlock()

	if err := c.media.Start(ctx, c.loadParams(ctx)); err != nil {
		return err
	}

	c.setState(CameraSignalingOpening)
	openCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if _, err := c.network.Open(openCtx); err != nil {
		c.setState(CameraClosed)
		c.media.Stop()
		return fmt.Errorf("%w: %v", domain.ErrSignalingDown, err)
	}
	c.setState(CameraSignalingOpen)

	c.registry.OnAdmitted(func(connID domain.ConnectionID, viewer domain.DeviceID) {
		c.post(func() { c.callViewer(ctx, connID, viewer) })
	})
	c.registry.OnRemoved(func(connID domain.ConnectionID, remaining int) {
		c.post(func() {
			c.media.DetachSender(connID)
			if remaining == 0 {
				c.setState(CameraSignalingOpen)
			}
			c.mu.RLock()
			observer := c.onViewerLeft
			c.mu.RUnlock()
			if observer != nil {
				observer(remaining)
			}
		})
	})

	c.network.OnIncomingControl(func(in ports.IncomingControl) {
		c.post(func() { c.admit(ctx, in) })
	})
	c.network.OnIncomingCall(func(call ports.IncomingCall) {
		// Talkback audio from a viewer: auto-answer with no local tracks.
		go func() {
			if _, err := call.Accept(ctx); err != nil {
				c.log.Warnw("talkback accept failed", "from", call.From, "error", err)
			}
		}()
	})

	go c.watchBattery(ctx)
	go c.analyzer.Run(ctx)
	go c.loop(ctx)

	c.log.Infow("camera online", "device_id", self.ID)
	return nil
}

// Close tears the session down: viewers, capture, signaling.
func (c *Camera) Close() {
	c.post(func() {
		c.setState(CameraClosed)
		c.lullaby.Stop()
		c.registry.CloseAll()
		c.media.Stop()
		_ = c.network.Close()
		close(c.done)
	})
}

func (c *Camera) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.setState(CameraClosed)
			c.registry.CloseAll()
			c.media.Stop()
			_ = c.network.Close()
			return
		case <-c.done:
			return
		case fn := <-c.events:
			fn()
		}
	}
}

func (c *Camera) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

func (c *Camera) admit(ctx context.Context, in ports.IncomingControl) {
	if c.State() == CameraClosed {
		_ = in.Channel.Close()
		return
	}

	c.mu.RLock()
	self, token := c.self, c.token
	c.mu.RUnlock()

	var battery *domain.BatteryState
	if c.battery != nil {
		if state, ok := c.battery.Current(); ok {
			battery = &state
		}
	}

	slot, err := c.registry.Admit(ctx, token, self, c.media.Params().Facing, battery, in)
	if err != nil {
		return
	}

	in.Channel.OnCommand(func(cmd protocol.Command) {
		c.post(func() { c.dispatch(ctx, slot, cmd) })
	})

	if err := c.history.Record(ctx, slot.DeviceID, slot.DisplayName, ""); err != nil {
		c.log.Warnw("history record failed", "device_id", slot.DeviceID, "error", err)
	}
	c.setState(CameraLive)

	c.mu.RLock()
	observer := c.onViewerAdmitted
	c.mu.RUnlock()
	if observer != nil {
		observer(slot.DeviceID, slot.DisplayName)
	}
}

func (c *Camera) callViewer(ctx context.Context, connID domain.ConnectionID, viewer domain.DeviceID) {
	video, audio, err := c.media.Tracks()
	if err != nil {
		c.log.Errorw("no media source for outgoing call", "viewer", viewer, "error", err)
		return
	}
	// Call negotiation can take a while; keep it off the event loop.
	go func() {
		sender, err := c.network.Call(ctx, viewer, video, audio)
		if err != nil {
			c.log.Errorw("media call failed", "viewer", viewer, "error", err)
			c.registry.Remove(connID)
			return
		}
		c.post(func() { c.media.AttachSender(connID, sender) })
	}()
}

// dispatch handles one inbound viewer command. Unknown tags are logged
// and ignored.
func (c *Camera) dispatch(ctx context.Context, slot domain.ViewerSlot, cmd protocol.Command) {
	switch v := cmd.(type) {
	case protocol.Flash:
		if _, err := c.media.SetTorch(v.Value); err != nil {
			c.log.Warnw("torch toggle failed", "error", err)
		}
	case protocol.Lullaby:
		c.lullaby.SetMode(v.Mode)
	case protocol.SetQuality:
		if err := c.media.ApplyQuality(ctx, v.Value); err != nil {
			c.log.Warnw("quality change failed", "quality", v.Value, "error", err)
			return
		}
		c.saveParams(ctx)
	case protocol.SetCamera:
		if err := c.media.ApplyFacing(ctx, v.Value); err != nil {
			c.log.Warnw("facing change failed", "facing", v.Value, "error", err)
			return
		}
		c.saveParams(ctx)
		c.registry.Broadcast(protocol.InfoCameraType{Value: c.media.Params().Facing})
	case protocol.SetSensitivity:
		c.analyzer.SetSensitivity(v.Value)
	case protocol.SetMic:
		if err := c.media.SetMic(v.Value); err != nil {
			c.log.Warnw("mic toggle failed", "error", err)
			return
		}
		c.saveParams(ctx)
	case protocol.WatchdogRefresh:
		if err := c.media.Refresh(ctx); err != nil {
			c.log.Warnw("source refresh failed", "error", err)
		}
	default:
		c.log.Debugw("unknown command ignored", "tag", cmd.CommandTag(), "from", slot.DeviceID)
	}
}

func (c *Camera) watchBattery(ctx context.Context) {
	if c.battery == nil {
		return
	}
	updates := c.battery.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			c.post(func() {
				c.registry.Broadcast(protocol.BatteryStatus{Level: state.Level, Charging: state.Charging})
			})
		}
	}
}

func (c *Camera) setState(next CameraState) {
	c.mu.Lock()
	if c.state == next || c.state == CameraClosed {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = next
	observer := c.onStateChange
	c.mu.Unlock()

	c.log.Infow("camera state changed", "from", prev, "to", next)
	if observer != nil {
		observer(next)
	}
}

// loadParams restores the persisted capture preference, falling back to
// the configured default.
func (c *Camera) loadParams(ctx context.Context) domain.SourceParams {
	raw, ok, err := c.store.Get(ctx, storeKeyMediaParams)
	if err != nil || !ok {
		return c.cfg.DefaultParams
	}
	var params domain.SourceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return c.cfg.DefaultParams
	}
	if !params.Facing.Valid() || !params.Quality.Valid() {
		return c.cfg.DefaultParams
	}
	return params
}

func (c *Camera) saveParams(ctx context.Context) {
	data, err := json.Marshal(c.media.Params())
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, storeKeyMediaParams, data); err != nil {
		c.log.Warnw("capture preference persist failed", "error", err)
	}
}
