package mqtt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("energy_dashboard", "energy_dashboard/service/update_chart",
		[]byte(`{"selected_sensors":["sensor.a"],"entry_id":"abc"}`))
	require.NoError(t, err)

	assert.Equal(t, "update_chart", cmd.Service)
	assert.Equal(t, "abc", cmd.EntryID)
	assert.Equal(t, map[string]interface{}{"selected_sensors": []interface{}{"sensor.a"}}, cmd.Data)
}

func TestParseCommand_EmptyPayload(t *testing.T) {
	cmd, err := ParseCommand("energy_dashboard", "energy_dashboard/service/get_sensors", nil)
	require.NoError(t, err)
	assert.Equal(t, "get_sensors", cmd.Service)
	assert.Empty(t, cmd.EntryID)
	assert.NotNil(t, cmd.Data)
}

func TestParseCommand_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{name: "other base", topic: "other/service/get_sensors"},
		{name: "no service", topic: "energy_dashboard/service/"},
		{name: "nested", topic: "energy_dashboard/service/get_sensors/extra"},
		{name: "state topic", topic: "energy_dashboard/sensors"},
		{name: "bad json", topic: "energy_dashboard/service/get_sensors", payload: "{"},
		{name: "not an object", topic: "energy_dashboard/service/get_sensors", payload: "[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand("energy_dashboard", tt.topic, []byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestTopics(t *testing.T) {
	c := NewClient(Config{Host: "localhost", Port: 1883, ClientID: "test", BaseTopic: "energy"}, zap.NewNop())

	assert.Equal(t, "energy/sensors", c.SensorsTopic())
	assert.Equal(t, "energy/chart_config", c.ChartConfigTopic())
	assert.Equal(t, "energy/dashboard", c.DashboardTopic())
	assert.Equal(t, "energy/bridge/state", c.BridgeStateTopic())
	assert.Equal(t, "energy/service/+", c.commandTopic())
}

func TestPublish_NotConnected(t *testing.T) {
	c := NewClient(Config{Host: "localhost", Port: 1883, ClientID: "test", BaseTopic: "energy"}, zap.NewNop())
	assert.ErrorIs(t, c.PublishSensors(context.Background(), []string{"sensor.a"}), ErrNotConnected)
}
