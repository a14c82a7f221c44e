package services

import (
	"context"
	"sync"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/ports"
	"nido/internal/core/protocol"
	"nido/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RegistryConfig tunes admission behaviour.
type RegistryConfig struct {
	// SettleDelay is how long the camera waits after admitting a viewer
	// before originating the media call, giving the viewer's control
	// channel time to settle.
	SettleDelay time.Duration
	// AttemptsPerMin and AttemptBurst bound admission attempts per
	// remote device, so a wrong token cannot be brute-forced.
	AttemptsPerMin int
	AttemptBurst   int
}

// RegistryService owns the camera's admitted viewer slots. At most
// domain.MaxViewers are live at once; a slot is freed the instant its
// control channel closes.
type RegistryService struct {
	cfg      RegistryConfig
	identity *IdentityService
	recorder Recorder
	log      *zap.SugaredLogger

	mu       sync.RWMutex
	slots    map[domain.ConnectionID]*slot
	limiters map[domain.DeviceID]*rate.Limiter

	// onAdmitted fires after the settle delay, off the admission path.
	onAdmitted func(connID domain.ConnectionID, viewer domain.DeviceID)
	onRemoved  func(connID domain.ConnectionID, remaining int)
}

type slot struct {
	info    domain.ViewerSlot
	channel ports.ControlChannel
}

func NewRegistryService(cfg RegistryConfig, identity *IdentityService, recorder Recorder, log *zap.SugaredLogger) *RegistryService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &RegistryService{
		cfg:      cfg,
		identity: identity,
		recorder: recorder,
		log:      log,
		slots:    make(map[domain.ConnectionID]*slot),
		limiters: make(map[domain.DeviceID]*rate.Limiter),
	}
}

// OnAdmitted registers the callback that originates the media call for
// a freshly admitted viewer. Called once during wiring, before Admit.
func (s *RegistryService) OnAdmitted(fn func(connID domain.ConnectionID, viewer domain.DeviceID)) {
	s.onAdmitted = fn
}

// OnRemoved registers the callback fired after a slot is freed, with
// the number of remaining viewers.
func (s *RegistryService) OnRemoved(fn func(connID domain.ConnectionID, remaining int)) {
	s.onRemoved = fn
}

// Admit runs the admission pipeline for an inbound control channel:
// rate limit, token check, duplicate eviction, capacity check. On
// success the viewer occupies a slot and the media call is scheduled
// after the settle delay. Every rejection sends its protocol error on
// the channel before closing it.
func (s *RegistryService) Admit(ctx context.Context, token domain.PairingToken, identity domain.DeviceIdentity, facing domain.Facing, battery *domain.BatteryState, in ports.IncomingControl) (domain.ViewerSlot, error) {
	req := in.Request
	ch := in.Channel

	if !s.allowAttempt(req.DeviceID) {
		s.recorder.ViewerRejected("rate_limited")
		s.log.Warnw("admission rate limited", "device_id", req.DeviceID)
		_ = ch.Send(protocol.ErrorAuth{Message: "too many attempts, try again later"})
		_ = ch.Close()
		return domain.ViewerSlot{}, domain.ErrTooManyAttempts
	}

	if !s.identity.VerifyToken(token, req.Token) {
		s.recorder.ViewerRejected("auth")
		s.log.Warnw("admission rejected, bad token",
			"device_id", req.DeviceID,
			"token", utils.MaskSensitive(req.Token, 4))
		_ = ch.Send(protocol.ErrorAuth{Message: "pairing code not recognized, re-scan the camera code"})
		_ = ch.Close()
		return domain.ViewerSlot{}, domain.ErrAuthRejected
	}

	// A re-admission from an already connected device evicts its stale
	// slot instead of double-counting it against capacity.
	if prev, ok := s.findByDevice(req.DeviceID); ok {
		s.log.Infow("evicting stale slot for re-admitting device",
			"device_id", req.DeviceID, "connection_id", prev.info.ConnectionID)
		s.Remove(prev.info.ConnectionID)
		_ = prev.channel.Close()
	}

	s.mu.Lock()
	if len(s.slots) >= domain.MaxViewers {
		s.mu.Unlock()
		s.recorder.ViewerRejected("busy")
		s.log.Infow("admission rejected, at capacity", "device_id", req.DeviceID)
		_ = ch.Send(protocol.ErrorBusy{Message: "all viewer slots are in use"})
		_ = ch.Close()
		return domain.ViewerSlot{}, domain.ErrCapacityReached
	}

	sessionToken, err := s.identity.IssueSessionToken(token, req.DeviceID, req.Name)
	if err != nil {
		s.mu.Unlock()
		return domain.ViewerSlot{}, err
	}

	info := domain.ViewerSlot{
		ConnectionID: domain.ConnectionID(uuid.NewString()),
		DeviceID:     req.DeviceID,
		DisplayName:  utils.SanitizeString(req.Name),
		SessionToken: sessionToken,
		AdmittedAt:   utils.Now(),
	}
	s.slots[info.ConnectionID] = &slot{info: info, channel: ch}
	count := len(s.slots)
	s.mu.Unlock()

	s.recorder.ViewerAdmitted()
	s.log.Infow("viewer admitted",
		"device_id", req.DeviceID,
		"connection_id", info.ConnectionID,
		"viewers", count)

	ch.OnClose(func(err error) {
		if err != nil {
			s.log.Infow("viewer channel closed", "connection_id", info.ConnectionID, "error", err)
		}
		s.Remove(info.ConnectionID)
	})

	// Greet the new viewer with current device state.
	_ = ch.Send(protocol.InfoDeviceName{Name: identity.DisplayName})
	_ = ch.Send(protocol.InfoCameraType{Value: facing})
	if battery != nil {
		_ = ch.Send(protocol.BatteryStatus{Level: battery.Level, Charging: battery.Charging})
	}

	if s.onAdmitted != nil {
		connID, viewer := info.ConnectionID, info.DeviceID
		go func() {
			select {
			case <-time.After(s.cfg.SettleDelay):
			case <-ctx.Done():
				return
			}
			s.onAdmitted(connID, viewer)
		}()
	}

	return info, nil
}

// Remove frees a slot. Safe to call for a connection that is already
// gone.
func (s *RegistryService) Remove(connID domain.ConnectionID) {
	s.mu.Lock()
	_, ok := s.slots[connID]
	if ok {
		delete(s.slots, connID)
	}
	remaining := len(s.slots)
	s.mu.Unlock()

	if !ok {
		return
	}

	s.recorder.ViewerRemoved()
	s.log.Infow("viewer slot freed", "connection_id", connID, "viewers", remaining)

	if s.onRemoved != nil {
		s.onRemoved(connID, remaining)
	}
}

// Broadcast sends a command to every admitted viewer. A failed send is
// logged and counted, never propagated: one dead channel must not keep
// state from reaching the healthy ones. The dead channel's own close
// event frees its slot.
func (s *RegistryService) Broadcast(cmd protocol.Command) {
	s.mu.RLock()
	targets := make([]*slot, 0, len(s.slots))
	for _, sl := range s.slots {
		targets = append(targets, sl)
	}
	s.mu.RUnlock()

	for _, sl := range targets {
		if err := sl.channel.Send(cmd); err != nil {
			s.recorder.BroadcastError()
			s.log.Warnw("broadcast send failed",
				"connection_id", sl.info.ConnectionID,
				"tag", cmd.CommandTag(),
				"error", err)
		}
	}
}

// Send delivers a command to one admitted viewer.
func (s *RegistryService) Send(connID domain.ConnectionID, cmd protocol.Command) error {
	s.mu.RLock()
	sl, ok := s.slots[connID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrSlotNotFound
	}
	return sl.channel.Send(cmd)
}

// Count returns the number of admitted viewers.
func (s *RegistryService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Slots returns a snapshot of the admitted viewers.
func (s *RegistryService) Slots() []domain.ViewerSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ViewerSlot, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, sl.info)
	}
	return out
}

// CloseAll closes every admitted channel, used on shutdown.
func (s *RegistryService) CloseAll() {
	s.mu.Lock()
	targets := make([]*slot, 0, len(s.slots))
	for id, sl := range s.slots {
		targets = append(targets, sl)
		delete(s.slots, id)
	}
	s.mu.Unlock()

	for _, sl := range targets {
		_ = sl.channel.Close()
	}
}

func (s *RegistryService) findByDevice(id domain.DeviceID) (*slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sl := range s.slots {
		if sl.info.DeviceID == id {
			return sl, true
		}
	}
	return nil, false
}

func (s *RegistryService) allowAttempt(id domain.DeviceID) bool {
	s.mu.Lock()
	lim, ok := s.limiters[id]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(s.cfg.AttemptsPerMin)/60.0), s.cfg.AttemptBurst)
		s.limiters[id] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}
