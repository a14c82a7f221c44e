package http

import (
	"context"
	"encoding/json"
	"net/http"

	"nido/internal/core/domain"
	"nido/internal/core/orchestrator"
	"nido/internal/core/ports"
	"nido/internal/infrastructure/monitoring"
	"nido/pkg/errors"
	"nido/pkg/validation"

	"github.com/gin-gonic/gin"
)

// CameraController is the slice of the camera session the API needs.
type CameraController interface {
	State() orchestrator.CameraState
	Identity() domain.DeviceIdentity
	PairingPayload() ([]byte, error)
	Rename(ctx context.Context, name string) error
}

// MediaSource reports capture parameters and serves snapshot frames.
type MediaSource interface {
	Params() domain.SourceParams
	Still(ctx context.Context) ([]byte, error)
}

// ViewerLister enumerates currently admitted viewers.
type ViewerLister interface {
	Slots() []domain.ViewerSlot
}

// PeerHistory is the remembered-peers surface exposed over the API.
type PeerHistory interface {
	List(ctx context.Context) ([]domain.HistoryEntry, error)
	Delete(ctx context.Context, peerID domain.DeviceID) error
	Clear(ctx context.Context) error
}

// DeviceHandler exposes the camera's local management API: the pairing
// payload for new viewers, the known-peer history and a live snapshot.
// It is meant for the device's own UI, not for remote viewers.
type DeviceHandler struct {
	camera  CameraController
	history PeerHistory
	viewers ViewerLister
	media   MediaSource
	qr      ports.QREncoder
}

func NewDeviceHandler(camera CameraController, history PeerHistory, viewers ViewerLister, media MediaSource, qr ports.QREncoder) *DeviceHandler {
	return &DeviceHandler{
		camera:  camera,
		history: history,
		viewers: viewers,
		media:   media,
		qr:      qr,
	}
}

func (h *DeviceHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/status", h.Status)
		api.PUT("/name", h.Rename)
		api.GET("/pairing", h.Pairing)
		api.GET("/pairing/qr.png", h.PairingQR)
		api.GET("/history", h.ListHistory)
		api.DELETE("/history", h.ClearHistory)
		api.DELETE("/history/:peer", h.DeleteHistoryEntry)
		api.GET("/still", h.Still)
	}
}

// Status reports the session state and connected viewers.
func (h *DeviceHandler) Status(c *gin.Context) {
	identity := h.camera.Identity()

	viewers := make([]gin.H, 0)
	for _, slot := range h.viewers.Slots() {
		viewers = append(viewers, gin.H{
			"device_id":    slot.DeviceID,
			"display_name": slot.DisplayName,
		})
	}

	params := h.media.Params()
	c.JSON(http.StatusOK, gin.H{
		"device_id":    identity.ID,
		"display_name": identity.DisplayName,
		"state":        h.camera.State(),
		"viewers":      viewers,
		"quality":      params.Quality,
		"facing":       params.Facing,
		"mic_enabled":  params.MicEnabled,
	})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Rename changes the device display name shown to viewers.
func (h *DeviceHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInput("name is required"))
		return
	}
	if err := h.camera.Rename(c.Request.Context(), req.Name); err != nil {
		c.Error(errors.NewInternal("failed to rename device"))
		return
	}
	c.Status(http.StatusNoContent)
}

// Pairing returns the payload a viewer scans or types to pair. It
// contains the pairing secret, so it stays on the loopback API.
func (h *DeviceHandler) Pairing(c *gin.Context) {
	payload, err := h.camera.PairingPayload()
	if err != nil {
		c.Error(errors.NewInternal("failed to build pairing payload"))
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

// PairingQR renders the pairing payload as a QR image when an encoder
// is configured.
func (h *DeviceHandler) PairingQR(c *gin.Context) {
	if h.qr == nil {
		c.Error(errors.NewNotFound("qr encoder"))
		return
	}
	payload, err := h.camera.PairingPayload()
	if err != nil {
		c.Error(errors.NewInternal("failed to build pairing payload"))
		return
	}
	image, err := h.qr.Encode(payload)
	if err != nil {
		c.Error(errors.NewInternal("failed to encode qr image"))
		return
	}
	c.Data(http.StatusOK, "image/png", image)
}

func (h *DeviceHandler) ListHistory(c *gin.Context) {
	entries, err := h.history.List(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternal("failed to load history"))
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *DeviceHandler) DeleteHistoryEntry(c *gin.Context) {
	peer := c.Param("peer")
	if err := validation.ValidateDeviceID(peer); err != nil {
		c.Error(errors.NewInvalidInput(err.Error()))
		return
	}

	if err := h.history.Delete(c.Request.Context(), domain.DeviceID(peer)); err != nil {
		if err == domain.ErrEntryNotFound {
			c.Error(errors.NewNotFound("history entry"))
			return
		}
		c.Error(errors.NewInternal("failed to delete history entry"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) ClearHistory(c *gin.Context) {
	if err := h.history.Clear(c.Request.Context()); err != nil {
		c.Error(errors.NewInternal("failed to clear history"))
		return
	}
	c.Status(http.StatusNoContent)
}

// Still returns a freshly captured JPEG frame from the active source.
func (h *DeviceHandler) Still(c *gin.Context) {
	frame, err := h.media.Still(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternal("no active capture source"))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", frame)
}

// HealthzHandler serves the aggregated health report. Degraded checks
// flip the HTTP status so probes can act on it.
func HealthzHandler(health *monitoring.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		body, err := json.Marshal(status)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(code, "application/json", body)
	}
}
