package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/matchlink/internal/client"
)

var _ client.Metrics = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_TransportCounters(t *testing.T) {
	m := NewMetrics()
	m.FrameSent("matchmaker")
	m.FrameSent("matchmaker")
	m.FrameReceived("session")
	m.HeartbeatSent("session")
	m.DecodeError("directory")

	body := scrape(t, m)
	assert.Contains(t, body, `matchlink_frames_sent_total{role="matchmaker"} 2`)
	assert.Contains(t, body, `matchlink_frames_received_total{role="session"} 1`)
	assert.Contains(t, body, `matchlink_heartbeats_sent_total{role="session"} 1`)
	assert.Contains(t, body, `matchlink_decode_errors_total{role="directory"} 1`)
}

func TestMetrics_ClientCounters(t *testing.T) {
	m := NewMetrics()
	m.StateChanged("JoinedLobby", "ConnectingToSession")
	m.ClientError(1003)
	m.RoomActors(3)
	m.IncStatusRequests()

	body := scrape(t, m)
	assert.Contains(t, body, `matchlink_state_transitions_total{from="JoinedLobby",to="ConnectingToSession"} 1`)
	assert.Contains(t, body, `matchlink_client_errors_total{code="1003"} 1`)
	assert.Contains(t, body, "matchlink_room_actors 3")
	assert.Contains(t, body, "matchlink_status_requests_total 1")
}

func TestMetrics_PrivateRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RoomActors(5)
	assert.Contains(t, scrape(t, b), "matchlink_room_actors 0")
}
