package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nido/internal/core/domain"
	"nido/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startRelay(t *testing.T) (*Relay, string) {
	t.Helper()
	relay := NewRelay(zap.NewNop().Sugar())
	relay.SetPingInterval(50 * time.Millisecond)
	relay.SetPongTimeout(time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", relay.HandleWebSocket)
	mux.HandleFunc("/healthz", relay.HealthCheck)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return relay, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func newTestClient(url, deviceID string) *Client {
	return NewClient(ClientConfig{
		URL:          url,
		PingInterval: 50 * time.Millisecond,
		PongTimeout:  time.Second,
		WriteTimeout: time.Second,
		Reconnect: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			Multiplier:   2.0,
		},
	}, domain.DeviceID(deviceID), zap.NewNop().Sugar())
}

func TestRelay_RoutesEnvelopeBetweenDevices(t *testing.T) {
	_, url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	camera := newTestClient(url, "nido_cam")
	viewer := newTestClient(url, "nido_view")
	require.NoError(t, camera.Connect(ctx))
	require.NoError(t, viewer.Connect(ctx))
	defer camera.Close()
	defer viewer.Close()

	payload, _ := json.Marshal(map[string]string{"sdp": "v=0"})
	require.NoError(t, viewer.Send(Envelope{Type: EnvelopeOffer, To: "nido_cam", Payload: payload}))

	select {
	case env := <-camera.Inbox():
		assert.Equal(t, EnvelopeOffer, env.Type)
		// The relay stamps the sender regardless of what the client claims.
		assert.EqualValues(t, "nido_view", env.From)
		assert.JSONEq(t, `{"sdp":"v=0"}`, string(env.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("envelope never arrived")
	}
}

func TestRelay_UnknownTargetReturnsError(t *testing.T) {
	_, url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	viewer := newTestClient(url, "nido_view")
	require.NoError(t, viewer.Connect(ctx))
	defer viewer.Close()

	require.NoError(t, viewer.Send(Envelope{Type: EnvelopeOffer, To: "nido_ghost"}))

	select {
	case env := <-viewer.Inbox():
		assert.Equal(t, EnvelopeError, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("error envelope never arrived")
	}
}

func TestRelay_RejectsInvalidDeviceID(t *testing.T) {
	relay, _ := startRelay(t)

	req := httptest.NewRequest(http.MethodGet, "/ws?device_id=", nil)
	rec := httptest.NewRecorder()
	relay.HandleWebSocket(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelay_ReconnectDisplacesOldRegistration(t *testing.T) {
	relay, url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := newTestClient(url, "nido_cam")
	require.NoError(t, first.Connect(ctx))

	second := newTestClient(url, "nido_cam")
	require.NoError(t, second.Connect(ctx))
	defer second.Close()

	require.Eventually(t, func() bool {
		return relay.IsDeviceConnected("nido_cam")
	}, 2*time.Second, 20*time.Millisecond)

	// Only one registration survives.
	assert.Len(t, relay.ConnectedDevices(), 1)
}

func TestRelay_HealthCheckReportsConnections(t *testing.T) {
	relay, url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newTestClient(url, "nido_cam")
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	require.Eventually(t, func() bool {
		return relay.IsDeviceConnected("nido_cam")
	}, 2*time.Second, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	relay.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["connections"])
}

func TestClient_SendAfterCloseFails(t *testing.T) {
	_, url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newTestClient(url, "nido_cam")
	require.NoError(t, client.Connect(ctx))
	require.NoError(t, client.Close())

	err := client.Send(Envelope{Type: EnvelopeOffer, To: "nido_view"})
	assert.Error(t, err)
}

func TestClient_ReconnectsAfterServerDrop(t *testing.T) {
	relay := NewRelay(zap.NewNop().Sugar())
	relay.SetPingInterval(50 * time.Millisecond)
	relay.SetPongTimeout(time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", relay.HandleWebSocket)
	srv := httptest.NewServer(mux)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	camera := newTestClient(url, "nido_cam")
	require.NoError(t, camera.Connect(ctx))
	defer camera.Close()

	// A second registration under the same ID makes the relay close the
	// first connection; the client should dial back in on its own.
	usurper := newTestClient(url, "nido_cam")
	require.NoError(t, usurper.Connect(ctx))
	require.NoError(t, usurper.Close())

	viewer := newTestClient(url, "nido_view")
	require.NoError(t, viewer.Connect(ctx))
	defer viewer.Close()

	// Eventually the original client is registered again and reachable.
	require.Eventually(t, func() bool {
		err := viewer.Send(Envelope{Type: EnvelopeOffer, To: "nido_cam"})
		if err != nil {
			return false
		}
		select {
		case env := <-camera.Inbox():
			return env.Type == EnvelopeOffer
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 100*time.Millisecond)
}
