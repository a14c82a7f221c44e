package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nido/internal/core/services"
	"nido/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSessionRoutes_WhoamiWithValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()

	identity := services.NewIdentityService(memory.NewMemoryDeviceStore(), time.Hour, log)
	token, err := identity.EnsureToken(context.Background())
	require.NoError(t, err)

	signed, err := identity.IssueSessionToken(token, "nido_view01", "Parent Phone")
	require.NoError(t, err)

	router := gin.New()
	RegisterSessionRoutes(router, identity, token)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/session/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "nido_view01")
	assert.Contains(t, w.Body.String(), "Parent Phone")
}

func TestSessionRoutes_RejectsMissingAndBogusTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()

	identity := services.NewIdentityService(memory.NewMemoryDeviceStore(), time.Hour, log)
	token, err := identity.EnsureToken(context.Background())
	require.NoError(t, err)

	router := gin.New()
	RegisterSessionRoutes(router, identity, token)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/session/whoami", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/session/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
