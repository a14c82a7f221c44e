package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"nido/internal/core/domain"
	"nido/internal/core/ports"
	"nido/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	storeKeyIdentity = "identity"
	storeKeyToken    = "pairing_token"
)

// IdentityService owns the device's persistent identity and the pairing
// secret. Both are created on first run and never rotated automatically;
// regenerating either invalidates every previously paired viewer.
type IdentityService struct {
	store           ports.DeviceStore
	sessionTokenTTL time.Duration
	log             *zap.SugaredLogger
}

// SessionClaims are the claims embedded in a per-admission session token.
type SessionClaims struct {
	DeviceID domain.DeviceID `json:"device_id"`
	Name     string          `json:"name"`
	jwt.RegisteredClaims
}

func NewIdentityService(store ports.DeviceStore, sessionTokenTTL time.Duration, log *zap.SugaredLogger) *IdentityService {
	return &IdentityService{
		store:           store,
		sessionTokenTTL: sessionTokenTTL,
		log:             log,
	}
}

// EnsureIdentity loads the persisted device identity, creating and
// persisting one on first run.
func (s *IdentityService) EnsureIdentity(ctx context.Context, defaultName string) (domain.DeviceIdentity, error) {
	raw, ok, err := s.store.Get(ctx, storeKeyIdentity)
	if err != nil {
		return domain.DeviceIdentity{}, fmt.Errorf("failed to load identity: %w", err)
	}
	if ok {
		var identity domain.DeviceIdentity
		if err := json.Unmarshal(raw, &identity); err != nil {
			return domain.DeviceIdentity{}, fmt.Errorf("failed to decode identity: %w", err)
		}
		return identity, nil
	}

	identity := domain.DeviceIdentity{
		ID:          domain.DeviceID(utils.GenerateDeviceID()),
		DisplayName: defaultName,
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return domain.DeviceIdentity{}, fmt.Errorf("failed to encode identity: %w", err)
	}
	if err := s.store.Set(ctx, storeKeyIdentity, data); err != nil {
		return domain.DeviceIdentity{}, fmt.Errorf("failed to persist identity: %w", err)
	}

	s.log.Infow("created device identity", "device_id", identity.ID)
	return identity, nil
}

// SetDisplayName updates and persists the device's display name.
func (s *IdentityService) SetDisplayName(ctx context.Context, identity domain.DeviceIdentity, name string) (domain.DeviceIdentity, error) {
	identity.DisplayName = utils.SanitizeString(name)
	data, err := json.Marshal(identity)
	if err != nil {
		return identity, fmt.Errorf("failed to encode identity: %w", err)
	}
	if err := s.store.Set(ctx, storeKeyIdentity, data); err != nil {
		return identity, fmt.Errorf("failed to persist identity: %w", err)
	}
	return identity, nil
}

// EnsureToken loads the persisted pairing token, creating one on first
// run.
func (s *IdentityService) EnsureToken(ctx context.Context) (domain.PairingToken, error) {
	raw, ok, err := s.store.Get(ctx, storeKeyToken)
	if err != nil {
		return domain.PairingToken{}, fmt.Errorf("failed to load pairing token: %w", err)
	}
	if ok {
		return domain.PairingToken{Secret: string(raw)}, nil
	}

	token := domain.PairingToken{Secret: utils.GeneratePairingSecret()}
	if err := s.store.Set(ctx, storeKeyToken, []byte(token.Secret)); err != nil {
		return domain.PairingToken{}, fmt.Errorf("failed to persist pairing token: %w", err)
	}

	s.log.Infow("created pairing token", "token", utils.MaskSensitive(token.Secret, 4))
	return token, nil
}

// VerifyToken compares a presented token against the device's pairing
// secret in constant time.
func (s *IdentityService) VerifyToken(token domain.PairingToken, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(token.Secret), []byte(presented)) == 1
}

// PairingPayload builds the QR/manual-code payload for this device.
func (s *IdentityService) PairingPayload(identity domain.DeviceIdentity, token domain.PairingToken) ([]byte, error) {
	payload := domain.PairingPayload{ID: identity.ID, Token: token.Secret}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pairing payload: %w", err)
	}
	return data, nil
}

// DecodePairingPayload parses a scanned or typed pairing payload.
func DecodePairingPayload(data []byte) (domain.PairingPayload, error) {
	var payload domain.PairingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.PairingPayload{}, fmt.Errorf("failed to decode pairing payload: %w", err)
	}
	if payload.ID == "" || payload.Token == "" {
		return domain.PairingPayload{}, fmt.Errorf("pairing payload missing id or token")
	}
	return payload, nil
}

// IssueSessionToken mints a short-lived session token for an admitted
// viewer, signed with the pairing secret.
func (s *IdentityService) IssueSessionToken(token domain.PairingToken, viewer domain.DeviceID, name string) (string, error) {
	claims := &SessionClaims{
		DeviceID: viewer,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(utils.Now().Add(s.sessionTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(utils.Now()),
		},
	}

	signed := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return signed.SignedString([]byte(token.Secret))
}

// ValidateSessionToken parses and verifies a session token.
func (s *IdentityService) ValidateSessionToken(token domain.PairingToken, signed string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(token.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	return claims, nil
}
