package services

import (
	"context"
	"testing"
	"time"

	"nido/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newIdentityService(store *memStore) *IdentityService {
	return NewIdentityService(store, time.Hour, zap.NewNop().Sugar())
}

func TestEnsureIdentity_CreatesOnceAndPersists(t *testing.T) {
	store := newMemStore()
	svc := newIdentityService(store)

	first, err := svc.EnsureIdentity(context.Background(), "Nursery Cam")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "Nursery Cam", first.DisplayName)

	again, err := svc.EnsureIdentity(context.Background(), "ignored default")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestEnsureToken_StableAcrossCalls(t *testing.T) {
	svc := newIdentityService(newMemStore())

	first, err := svc.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, first.Secret)

	again, err := svc.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Secret, again.Secret)
}

func TestVerifyToken(t *testing.T) {
	svc := newIdentityService(newMemStore())
	token := domain.PairingToken{Secret: "0123456789abcdef0123456789abcdef"}

	assert.True(t, svc.VerifyToken(token, token.Secret))
	assert.False(t, svc.VerifyToken(token, "wrong"))
	assert.False(t, svc.VerifyToken(token, ""))
}

func TestSetDisplayName_SanitizesAndPersists(t *testing.T) {
	store := newMemStore()
	svc := newIdentityService(store)

	identity, err := svc.EnsureIdentity(context.Background(), "Nursery Cam")
	require.NoError(t, err)

	updated, err := svc.SetDisplayName(context.Background(), identity, "  Sofia's Room\x00 ")
	require.NoError(t, err)
	assert.Equal(t, "Sofia's Room", updated.DisplayName)

	reloaded, err := svc.EnsureIdentity(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, "Sofia's Room", reloaded.DisplayName)
}

func TestPairingPayload_RoundTrip(t *testing.T) {
	svc := newIdentityService(newMemStore())
	identity := domain.DeviceIdentity{ID: "nido_cam01", DisplayName: "Nursery"}
	token := domain.PairingToken{Secret: "0123456789abcdef0123456789abcdef"}

	data, err := svc.PairingPayload(identity, token)
	require.NoError(t, err)

	payload, err := DecodePairingPayload(data)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, payload.ID)
	assert.Equal(t, token.Secret, payload.Token)
}

func TestDecodePairingPayload_Invalid(t *testing.T) {
	_, err := DecodePairingPayload([]byte("not json"))
	require.Error(t, err)

	_, err = DecodePairingPayload([]byte(`{"id":"","token":""}`))
	require.Error(t, err)
}

func TestSessionToken_IssueAndValidate(t *testing.T) {
	svc := newIdentityService(newMemStore())
	token := domain.PairingToken{Secret: "0123456789abcdef0123456789abcdef"}

	signed, err := svc.IssueSessionToken(token, "nido_view01", "Parent Phone")
	require.NoError(t, err)

	claims, err := svc.ValidateSessionToken(token, signed)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceID("nido_view01"), claims.DeviceID)
	assert.Equal(t, "Parent Phone", claims.Name)
}

func TestSessionToken_RejectsWrongSecret(t *testing.T) {
	svc := newIdentityService(newMemStore())

	signed, err := svc.IssueSessionToken(domain.PairingToken{Secret: "0123456789abcdef0123456789abcdef"}, "nido_view01", "Parent Phone")
	require.NoError(t, err)

	_, err = svc.ValidateSessionToken(domain.PairingToken{Secret: "another-secret-entirely-00000000"}, signed)
	require.Error(t, err)
}
