package homeassistant

import (
	"context"
	"strconv"

	"energy_dashboard/internal/energy"
)

// Entities under which the derived lists are published into HA state.
// The state is the item count; the list itself rides in an attribute
// because HA caps state strings at 255 characters.
const (
	SensorListEntityID  = "sensor.energy_dashboard_sensors"
	ChartConfigEntityID = "sensor.energy_dashboard_chart_config"

	SensorListAttribute  = "entities"
	ChartConfigAttribute = "series"
)

// StatePublisher publishes the sensor list and chart config as HA states
type StatePublisher struct {
	client *Client
}

func NewStatePublisher(client *Client) *StatePublisher {
	return &StatePublisher{client: client}
}

// PublishSensors sets sensor.energy_dashboard_sensors
func (p *StatePublisher) PublishSensors(ctx context.Context, sensors []string) error {
	_, err := p.client.SetState(ctx, SensorListEntityID, StateUpdate{
		State: strconv.Itoa(len(sensors)),
		Attributes: map[string]interface{}{
			SensorListAttribute: sensors,
			"friendly_name":     "Energy Dashboard Sensors",
			"icon":              "mdi:flash",
		},
	})
	return err
}

// PublishChart sets sensor.energy_dashboard_chart_config
func (p *StatePublisher) PublishChart(ctx context.Context, series []energy.Series) error {
	_, err := p.client.SetState(ctx, ChartConfigEntityID, StateUpdate{
		State: strconv.Itoa(len(series)),
		Attributes: map[string]interface{}{
			ChartConfigAttribute: series,
			"friendly_name":      "Energy Dashboard Chart Config",
			"icon":               "mdi:chart-line",
		},
	})
	return err
}
