// internal/server/health_test.go
package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenrivals/roomserver/internal/protocol"
)

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, &stubSettlement{}, 0)
	host := connect(t, s)
	createRoom(t, s, host, hostPayload())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.HealthHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status        string `json:"status"`
		ActiveRooms   int    `json:"activeRooms"`
		ActiveClients int    `json:"activeClients"`
		Timestamp     string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 1, body.ActiveRooms)
	assert.Equal(t, 1, body.ActiveClients)
	assert.NotEmpty(t, body.Timestamp)
}

func TestDispatchUnknownCommandIsIgnored(t *testing.T) {
	s := newTestServer(t, &stubSettlement{}, 0)
	c := connect(t, s)
	s.Dispatch(c, protocol.Command{Type: "NONSENSE"})
	expectSilence(t, c)
}
