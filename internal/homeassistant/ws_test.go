package homeassistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeHA speaks the HA websocket handshake and answers commands from a
// table keyed by message type
type fakeHA struct {
	token   string
	results map[string]string // type -> raw JSON result
	errors  map[string]string // type -> error code

	mu   sync.Mutex
	seen []map[string]interface{}
}

func (f *fakeHA) messages() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.seen...)
}

func (f *fakeHA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.WriteJSON(map[string]string{"type": "auth_required", "ha_version": "2024.6.0"})

	var auth map[string]string
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth["access_token"] != f.token {
		conn.WriteJSON(map[string]string{"type": "auth_invalid", "message": "Invalid access token"})
		return
	}
	conn.WriteJSON(map[string]string{"type": "auth_ok", "ha_version": "2024.6.0"})

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		f.mu.Lock()
		f.seen = append(f.seen, msg)
		f.mu.Unlock()
		msgType, _ := msg["type"].(string)

		// an unrelated event first, the client must skip it
		conn.WriteJSON(map[string]interface{}{"id": msg["id"], "type": "event", "event": map[string]string{}})

		if code, ok := f.errors[msgType]; ok {
			conn.WriteJSON(map[string]interface{}{
				"id": msg["id"], "type": "result", "success": false,
				"error": map[string]string{"code": code, "message": "failed"},
			})
			continue
		}
		result := f.results[msgType]
		if result == "" {
			result = "null"
		}
		conn.WriteJSON(map[string]interface{}{
			"id": msg["id"], "type": "result", "success": true, "result": json.RawMessage(result),
		})
	}
}

func newFakeHA(t *testing.T, fake *fakeHA) *WSClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewWSClient(srv.URL, "secret", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://ha.local:8123", "ws://ha.local:8123/api/websocket"},
		{"https://ha.example.com/", "wss://ha.example.com/api/websocket"},
		{"ws://ha.local:8123/api/websocket", "ws://ha.local:8123/api/websocket"},
	}
	for _, tt := range tests {
		got, err := WebsocketURL(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := WebsocketURL("ftp://ha.local")
	assert.Error(t, err)
}

func TestWSClient_EntityRegistryList(t *testing.T) {
	client := newFakeHA(t, &fakeHA{
		token: "secret",
		results: map[string]string{
			"config/entity_registry/list": `[{"entity_id":"sensor.a","platform":"shelly"},{"entity_id":"sensor.b","platform":"mqtt"}]`,
		},
	})

	entries, err := client.EntityRegistryList(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sensor.a", entries[0].EntityID)
	assert.Equal(t, "mqtt", entries[1].Platform)

	// the connection is reused and ids keep increasing
	_, err = client.EntityRegistryList(context.Background())
	require.NoError(t, err)
}

func TestWSClient_Lovelace(t *testing.T) {
	fake := &fakeHA{
		token: "secret",
		results: map[string]string{
			"lovelace/dashboards/create": `{"id":"energy_dashboard","url_path":"energy-dashboard","title":"Energy Dashboard","mode":"storage"}`,
		},
	}
	client := newFakeHA(t, fake)
	ctx := context.Background()

	d, err := client.CreateDashboard(ctx, DashboardParams{URLPath: "energy-dashboard", Title: "Energy Dashboard", ShowInSidebar: true})
	require.NoError(t, err)
	assert.Equal(t, "energy_dashboard", d.ID)

	require.NoError(t, client.SaveDashboardConfig(ctx, "energy-dashboard", map[string]interface{}{"title": "Energy Dashboard"}))

	seen := fake.messages()
	require.Len(t, seen, 2)
	assert.Equal(t, "storage", seen[0]["mode"])
	assert.Equal(t, float64(1), seen[0]["id"])
	assert.Equal(t, "lovelace/config/save", seen[1]["type"])
	assert.Equal(t, float64(2), seen[1]["id"])
}

func TestWSClient_ResultError(t *testing.T) {
	client := newFakeHA(t, &fakeHA{
		token:  "secret",
		errors: map[string]string{"lovelace/dashboards/list": "unknown_command"},
	})

	_, err := client.ListDashboards(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unknown_command", apiErr.Code)
}

func TestWSClient_AuthInvalid(t *testing.T) {
	client := newFakeHA(t, &fakeHA{token: "other"})

	_, err := client.ListResources(context.Background())
	assert.ErrorIs(t, err, ErrAuthInvalid)
}
