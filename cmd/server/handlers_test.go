package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"energy_dashboard/internal/config"
	"energy_dashboard/internal/dashboard"
	"energy_dashboard/internal/energy"
	"energy_dashboard/internal/homeassistant"
	"energy_dashboard/internal/integration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSnapshots struct {
	snap *homeassistant.Snapshot
}

func (s *staticSnapshots) Refresh(context.Context) (*homeassistant.Snapshot, error) {
	return s.snap, nil
}

func (s *staticSnapshots) Current() *homeassistant.Snapshot {
	return s.snap
}

type nopPublisher struct{}

func (nopPublisher) PublishSensors(context.Context, []string) error        { return nil }
func (nopPublisher) PublishChart(context.Context, []energy.Series) error { return nil }

type memRegistrar struct {
	docs []dashboard.Document
}

func (m *memRegistrar) Register(_ context.Context, doc dashboard.Document) error {
	m.docs = append(m.docs, doc)
	return nil
}

func (m *memRegistrar) Unregister(context.Context) error { return nil }

func newTestServer(t *testing.T, apiToken string) (*httptest.Server, *memRegistrar) {
	t.Helper()
	snaps := &staticSnapshots{snap: &homeassistant.Snapshot{
		Entities: []energy.Entity{
			{ID: "sensor.a", Attributes: map[string]any{"unit_of_measurement": "W", "friendly_name": "A"}},
			{ID: "sensor.b", Attributes: map[string]any{"unit_of_measurement": "Wh", "friendly_name": "B"}},
			{ID: "sensor.c", Attributes: map[string]any{"friendly_name": "C"}},
		},
		LastUpdate: time.Now(),
	}}
	store, err := integration.NewEntryStore(t.TempDir())
	require.NoError(t, err)
	registrar := &memRegistrar{}

	integ := integration.New(integration.Config{
		Snapshots:  snaps,
		Registrar:  registrar,
		Entries:    store,
		Publishers: []integration.Publisher{nopPublisher{}},
	}, zap.NewNop())
	require.NoError(t, integ.Initialize(context.Background()))

	cfg := &config.Config{APIToken: apiToken, CORSOrigins: []string{"*"}}
	a := &app{integ: integ, flows: integration.NewFlowManager(integ), registry: snaps, logger: zap.NewNop()}
	srv := httptest.NewServer(newRouter(cfg, a))
	t.Cleanup(srv.Close)
	return srv, registrar
}

func doJSON(t *testing.T, method, url, body string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "")
	var body map[string]string
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/healthz", "", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServiceFlow_GetSensorsThenChart(t *testing.T) {
	srv, _ := newTestServer(t, "")

	var called map[string]interface{}
	status := doJSON(t, http.MethodPost, srv.URL+"/api/services/energy_dashboard/get_sensors", "", &called)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"sensor.a", "sensor.b"}, called["sensors"])

	var sensors struct {
		Sensors []string `json:"sensors"`
		Power   []string `json:"power"`
		Energy  []string `json:"energy"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/sensors", "", &sensors))
	assert.Equal(t, []string{"sensor.a", "sensor.b"}, sensors.Sensors)
	assert.Equal(t, []string{"sensor.a"}, sensors.Power)
	assert.Equal(t, []string{"sensor.b"}, sensors.Energy)

	status = doJSON(t, http.MethodPost, srv.URL+"/api/services/energy_dashboard/update_chart",
		`{"selected_sensors":["sensor.b","sensor.a"]}`, nil)
	require.Equal(t, http.StatusOK, status)

	var chart struct {
		Series []energy.Series `json:"series"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/chart", "", &chart))
	assert.Equal(t, []energy.Series{
		{Entity: "sensor.b", Name: "B", Type: "line"},
		{Entity: "sensor.a", Name: "A", Type: "line"},
	}, chart.Series)
}

func TestService_Errors(t *testing.T) {
	srv, _ := newTestServer(t, "")

	assert.Equal(t, http.StatusNotFound,
		doJSON(t, http.MethodPost, srv.URL+"/api/services/energy_dashboard/nope", "", nil))
	assert.Equal(t, http.StatusNotFound,
		doJSON(t, http.MethodPost, srv.URL+"/api/services/energy_dashboard/get_sensors?entry_id=missing", "", nil))
	assert.Equal(t, http.StatusBadRequest,
		doJSON(t, http.MethodPost, srv.URL+"/api/services/energy_dashboard/update_chart", "{", nil))
}

func TestDashboardRoutes(t *testing.T) {
	srv, registrar := newTestServer(t, "")

	var doc dashboard.Document
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/dashboard", "", &doc))
	assert.Equal(t, dashboard.DocumentTitle, doc.Title)
	require.Len(t, doc.Views, 1)
	assert.Len(t, doc.Views[0].Cards, 3)

	resp, err := http.Get(srv.URL + "/api/dashboard?format=yaml")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/dashboard", "", nil))
	assert.Len(t, registrar.docs, 1)
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodDelete, srv.URL+"/api/dashboard", "", nil))
}

func TestConfigAndOptionsFlow(t *testing.T) {
	srv, _ := newTestServer(t, "")

	var start integration.FlowResult
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/config/flow", "", &start))
	assert.Equal(t, integration.FlowResultForm, start.Type)

	var done integration.FlowResult
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/config/flow/"+start.FlowID, "{}", &done))
	assert.Equal(t, integration.FlowResultCreateEntry, done.Type)
	require.NotNil(t, done.Result)
	entryID := done.Result.EntryID

	var entries []integration.ConfigEntry
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/entries", "", &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Energy Dashboard", entries[0].Title)

	var opts integration.FlowResult
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/options/flow", `{"entry_id":"`+entryID+`"}`, &opts))
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/options/flow/"+opts.FlowID, `{"color":"green"}`, &done))
	assert.Equal(t, map[string]interface{}{"color": "green"}, done.Data)

	assert.Equal(t, http.StatusNoContent, doJSON(t, http.MethodDelete, srv.URL+"/api/entries/"+entryID, "", nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodDelete, srv.URL+"/api/entries/"+entryID, "", nil))
}

func TestRequireToken(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, doJSON(t, http.MethodGet, srv.URL+"/api/sensors", "", nil))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/sensors", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// health stays open
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil))
}
